package kserde

import (
	"bytes"
	"fmt"
)

var (
	StringSerializer   Serializer[string]   = func(s string) ([]byte, error) { return []byte(s), nil }
	StringDeserializer Deserializer[string] = func(b []byte) (string, error) { return string(b), nil }

	String = Serde[string]{Serializer: StringSerializer, Deserializer: StringDeserializer}
)

// LineSerializer formats values with format and appends a newline, e.g.
// LineSerializer[float64]("%.6f") writes "212.000000\n".
func LineSerializer[T any](format string) Serializer[T] {
	return func(v T) ([]byte, error) {
		return fmt.Appendf(nil, format+"\n", v), nil
	}
}

// LineDeserializer is the inverse of LineSerializer for strings: it drops one
// trailing "\n" or "\r\n".
var LineDeserializer Deserializer[string] = func(b []byte) (string, error) {
	b = bytes.TrimSuffix(b, []byte("\n"))
	b = bytes.TrimSuffix(b, []byte("\r"))
	return string(b), nil
}
