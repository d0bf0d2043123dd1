package effectivevalues

import (
	"regexp"
	"strings"
	"unicode"
)

// SuDocTypeID is the call number type id of Superintendent of Documents classification.
const SuDocTypeID = "fc388041-6cd0-4806-8a74-ebe3b9ab4c6e"

var (
	suDocPattern = regexp.MustCompile(
		`^(?:([A-Za-z]+\s*)(\d+)(\.(?:[A-Za-z]+\d*|\d+))(/(?:[A-Za-z]+(?:\d+(?:-\d+)?)?|\d+(?:-\d+)?))?)?(:?.*)$`)
	suDocTokenSeparators = regexp.MustCompile(`[./ -]`)
)

// SuDocCallNumber is a parsed Superintendent of Documents call number, e.g. "A 13.28:986".
type SuDocCallNumber struct {
	Raw               string
	AuthorSymbol      string
	SubordinateOffice string
	Series            string
	SubSeries         string
	Suffix            string
}

// ParseSuDoc parses a SuDoc call number. Input without the letter and digit stem
// becomes the suffix as a whole, and the call number is invalid.
func ParseSuDoc(callNumber string) SuDocCallNumber {
	cn := SuDocCallNumber{Raw: strings.TrimSpace(callNumber)}

	m := suDocPattern.FindStringSubmatch(cn.Raw)
	if m == nil {
		cn.Suffix = cn.Raw
		return cn
	}

	cn.AuthorSymbol = strings.TrimSpace(m[1])
	cn.SubordinateOffice = m[2]
	cn.Series = m[3]
	cn.SubSeries = m[4]
	cn.Suffix = m[5]

	return cn
}

// IsValid reports whether the letter and digit stem was recognized.
func (cn SuDocCallNumber) IsValid() bool {
	return cn.AuthorSymbol != ""
}

// ShelfKey builds the sortable shelf key of the call number.
func (cn SuDocCallNumber) ShelfKey() string {
	var key strings.Builder
	key.WriteString(cn.AuthorSymbol)

	for _, part := range []string{cn.SubordinateOffice, cn.Series, cn.SubSeries, cn.Suffix} {
		appendSuDocPart(&key, part)
	}

	return key.String()
}

func appendSuDocPart(key *strings.Builder, part string) {
	if strings.TrimSpace(part) == "" {
		return
	}

	switch part[0] {
	case '.', '/', '-', ':':
		part = part[1:]
	}

	for _, token := range suDocTokenSeparators.Split(part, -1) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		if key.Len() > 0 {
			key.WriteByte(' ')
		}

		if unicode.IsLetter(rune(token[0])) {
			key.WriteString(" !")
		} else if len(token) >= 3 {
			key.WriteByte('!')
		}

		appendNumericallySortable(key, token)
	}
}

// suDocShelfKey adapts SuDoc parsing to the ShelfKeyGenerator contract.
func suDocShelfKey(callNumber string) (string, bool) {
	cn := ParseSuDoc(callNumber)
	if !cn.IsValid() {
		return "", false
	}

	return cn.ShelfKey(), true
}
