// Package ijson is a thin jsoniter wrapper used where the codebase parses
// arbitrarily-shaped, possibly-large manifest documents: the loader and
// the text transport's manual files. Everywhere else in the module uses
// encoding/json directly, matching the teacher's own split between
// src/json (jsoniter) and stdlib json.
package ijson

import jsoniter "github.com/json-iterator/go"

var api = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal encodes v using the compatible jsoniter configuration.
func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

// Unmarshal decodes data into v using the compatible jsoniter configuration.
func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }

// RawMessage re-exports the stdlib type jsoniter stays compatible with.
type RawMessage = jsoniter.RawMessage
