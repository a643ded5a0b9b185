package util

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes a value for the wire, wrapping any encoder error with
// context so call sites can log it without re-wrapping.
func MarshalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("JSON marshal error: %w", err)
	}
	return data, nil
}
