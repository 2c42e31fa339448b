// Package xjson pins the module to a single JSON implementation. Every
// serialization site imports this package instead of encoding/json, so
// swapping the codec stays a one-file change.
package xjson

import (
	stdjson "encoding/json"
	"io"

	json "github.com/goccy/go-json"
)

// RawMessage aliases encoding/json's RawMessage so stored payloads stay
// decodable by either codec.
type RawMessage = stdjson.RawMessage

func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// MarshalIndent is for documents meant to be read by people, like the
// file tier's on-disk aggregates.
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return json.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// NewDecoder decodes from a stream without buffering it whole.
func NewDecoder(r io.Reader) *json.Decoder {
	return json.NewDecoder(r)
}
