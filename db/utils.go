package db

import "errors"

var (
	Separator = []byte("|")

	ErrTxDiscarded = errors.New("commit after discard")
	ErrTxCommitted = errors.New("transaction already committed")
)

// PrependNamespace returns namespace|key in a freshly allocated slice.
func PrependNamespace(namespace []byte, key []byte) []byte {
	if namespace == nil {
		return ConvNilToBytes(key)
	}
	out := make([]byte, 0, len(namespace)+len(Separator)+len(key))
	out = append(out, namespace...)
	out = append(out, Separator...)
	return append(out, key...)
}

// StripNamespace is the inverse of PrependNamespace.
func StripNamespace(namespace []byte, key []byte) []byte {
	if namespace == nil {
		return key
	}
	return key[len(namespace)+len(Separator):]
}

func ConvNilToBytes(byteArray []byte) []byte {
	if byteArray == nil {
		return []byte{}
	}
	return byteArray
}
