package effectivevalues

import (
	"strings"
	"unicode"
)

// minDigitRunWidth is the width digit runs are left-padded to.
const minDigitRunWidth = 2

// appendNumericallySortable appends token with every run of digits stripped of
// leading zeros and zero-padded to minDigitRunWidth, and all letters upper-cased.
func appendNumericallySortable(buf *strings.Builder, token string) {
	runes := []rune(token)

	for i := 0; i < len(runes); {
		if !unicode.IsDigit(runes[i]) {
			buf.WriteRune(unicode.ToUpper(runes[i]))
			i++
			continue
		}

		j := i
		for j < len(runes) && unicode.IsDigit(runes[j]) {
			j++
		}

		digits := strings.TrimLeft(string(runes[i:j]), "0")
		if len(digits) < minDigitRunWidth {
			buf.WriteString(strings.Repeat("0", minDigitRunWidth-len(digits)))
		}
		buf.WriteString(digits)

		i = j
	}
}
