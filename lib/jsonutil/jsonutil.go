// Package jsonutil deals with the almost-JSON the upstream search service
// emits. Responses occasionally carry trailing commas before closing
// brackets, which encoding/json rightfully rejects.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var trailingCommaRegex = regexp.MustCompile(`,\s*([\]}])`)

// StripTrailingCommas removes commas that directly precede a closing
// bracket or brace. It operates on the raw bytes and does not attempt to
// understand string literals, which has been good enough for the payloads
// observed so far.
func StripTrailingCommas(data []byte) []byte {
	return trailingCommaRegex.ReplaceAll(data, []byte("$1"))
}

// UnmarshalLenient attempts a strict parse first and falls back to exactly
// one repair pass. A failure after the repair is a real parse error and is
// returned as such.
func UnmarshalLenient(data []byte, v any) error {
	strictErr := json.Unmarshal(data, v)
	if strictErr == nil {
		return nil
	}

	repaired := StripTrailingCommas(data)
	err := json.Unmarshal(repaired, v)
	if err != nil {
		return fmt.Errorf("parse after repair: %w (strict: %w)", err, strictErr)
	}
	return nil
}
