// ABOUTME: Extracts the first balanced JSON object from free-form model output
// ABOUTME: Falls back to jsonrepair for truncated or slightly malformed objects
package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ExtractJSON returns the first balanced {...} span in text.
// Braces inside JSON strings are ignored. An unterminated object is passed
// through jsonrepair; ErrParse is returned when nothing usable is found.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrParse
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	repaired, err := jsonrepair.JSONRepair(text[start:])
	if err != nil {
		return "", fmt.Errorf("%w: unterminated object: %v", ErrParse, err)
	}
	return repaired, nil
}

// decodeObject unmarshals span into v, retrying once on a repaired copy.
func decodeObject(span string, v any) error {
	err := json.Unmarshal([]byte(span), v)
	if err == nil {
		return nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(span)
	if repairErr != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}
