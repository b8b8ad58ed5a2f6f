package store

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
)

// Codec encodes and decodes entity values.
type Codec struct {
	Marshal   func(v any) ([]byte, error)
	Unmarshal func(data []byte, v any) error
}

var (
	// CBOR is the default value codec.
	CBOR = Codec{Marshal: cbor.Marshal, Unmarshal: cbor.Unmarshal}

	// JSON stores values as JSON documents, which keeps them readable in dumps.
	JSON = Codec{Marshal: json.Marshal, Unmarshal: json.Unmarshal}
)
