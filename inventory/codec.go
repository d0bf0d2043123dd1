package inventory

import (
	"bytes"
	"errors"

	jsoniter "github.com/json-iterator/go"
)

// EncodeDocument encodes an entity document to its jsonb representation.
func EncodeDocument(v any) ([]byte, error) {
	data, err := jsoniter.ConfigFastest.Marshal(v)
	if err != nil {
		return nil, errors.Join(ErrEncodingDocumentFailed, err)
	}

	return data, nil
}

// DecodeDocument decodes a stored jsonb representation into the given entity document.
func DecodeDocument(data []byte, v any) error {
	if err := jsoniter.ConfigFastest.Unmarshal(data, v); err != nil {
		return errors.Join(ErrDecodingDocumentFailed, err)
	}

	return nil
}

// EqualsIgnoringMetadata reports whether two records have the same content once the
// server-managed metadata and the version are disregarded. Two nil records are equal, a nil and a non-nil record are not.
func EqualsIgnoringMetadata[T any, P interface {
	*T
	Record
}](a, b P) (bool, error) {
	if a == nil || b == nil {
		return a == nil && b == nil, nil
	}

	left, err := encodeWithoutMetadata[T, P](a)
	if err != nil {
		return false, err
	}

	right, err := encodeWithoutMetadata[T, P](b)
	if err != nil {
		return false, err
	}

	return bytes.Equal(left, right), nil
}

func encodeWithoutMetadata[T any, P interface {
	*T
	Record
}](rec P) ([]byte, error) {
	c := P(new(T))
	*c = *rec
	c.SetRecordMetadata(nil)
	c.SetRecordVersion(nil)

	return EncodeDocument(c)
}
