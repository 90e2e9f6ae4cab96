// Package sanitize strips secret-bearing fields from response payloads.
package sanitize

// Keys removed from every response body before it is encoded. Matching is
// exact: these are the literal field names the game client is known to
// leak inside entity dumps.
var secretKeys = map[string]struct{}{
	"privateKey": {},
	"apiKey":     {},
	"password":   {},
}

// Value returns a deep copy of v with secret keys removed at every level.
//
// v is expected to be a decoded JSON value (maps, slices, scalars). The
// input is never mutated; correlator result bodies may still be referenced
// by late log statements.
//
// Parameters:
//   - v: Decoded JSON value
//
// Returns:
//   - any: Sanitized copy
func Value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if _, secret := secretKeys[k]; secret {
				continue
			}
			out[k] = Value(inner)
		}

		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = Value(inner)
		}

		return out
	default:
		return v
	}
}

// Map sanitizes a decoded JSON object. Nil input yields nil.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := Value(m).(map[string]any)

	return out
}
