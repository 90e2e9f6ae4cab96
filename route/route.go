package route

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Source names a place a parameter may arrive in.
type Source string

// Parameter sources, tried in the order a Param declares them.
const (
	// SourceBody reads the decoded JSON request body.
	SourceBody Source = "body"

	// SourceQuery reads the URL query string.
	SourceQuery Source = "query"

	// SourcePath reads named URL path segments.
	SourcePath Source = "path"
)

// ParamType names the coercion applied to a parameter value.
type ParamType string

// Parameter types. A Param with no type passes its raw value through
// unchanged.
const (
	// TypeString accepts string values only.
	TypeString ParamType = "string"

	// TypeNumber accepts numbers, and strings that parse to a finite float.
	TypeNumber ParamType = "number"

	// TypeBoolean accepts booleans, and the strings "true"/"false" in any case.
	TypeBoolean ParamType = "boolean"

	// TypeArray accepts arrays, and strings that JSON-parse to an array.
	TypeArray ParamType = "array"

	// TypeObject accepts JSON objects. Arrays are not objects.
	TypeObject ParamType = "object"
)

// Correlation selects how a result frame is matched back to its request
// beyond the request id.
type Correlation int

const (
	// CorrelationGeneric matches on request id alone.
	CorrelationGeneric Correlation = iota

	// CorrelationSheet additionally requires the result to name the
	// requested entity uuid, and carries the requested render format.
	CorrelationSheet

	// CorrelationFile carries the requested file format to the response
	// writer.
	CorrelationFile
)

// Param declares one route parameter.
type Param struct {
	// Name is the parameter's key in every source.
	Name string

	// From lists the sources to try, in order. The first source holding a
	// defined value wins; a JSON null does not count as defined.
	From []Source

	// Type selects the coercion applied to the extracted value.
	Type ParamType
}

// Params holds a route's extracted, coerced parameters.
type Params map[string]any

// String returns the named parameter when it is a string, or "".
func (p Params) String(name string) string {
	s, _ := p[name].(string)
	return s
}

// Has reports whether the named parameter was extracted.
func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// ValidationError is a request rejected before any network I/O, carrying a
// field-specific message suitable for the HTTP 400 body.
type ValidationError struct {
	// Field is the offending parameter name, empty for cross-field failures.
	Field string

	// Message is the caller-facing description.
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalidf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Spec declares one correlated REST route.
//
// The router mounts a Spec at POST /api/{kind}. Its generic handler extracts
// and validates parameters with Extract, resolves the target client, sends
// the payload over that client's socket, and maps the correlated result to
// an HTTP response.
type Spec struct {
	// Kind is the message type sent over the client socket; results arrive
	// as "{kind}-result".
	Kind string

	// Timeout overrides the relay's default correlation window when > 0.
	Timeout time.Duration

	// Correlation selects the result-matching rule. Zero value matches on
	// request id alone.
	Correlation Correlation

	// Required lists parameters that must be present after extraction.
	Required []Param

	// Optional lists parameters extracted and coerced when present.
	Optional []Param

	// ValidateParams runs cross-field checks after coercion and before the
	// missing-required check. Returning an error rejects the request with
	// HTTP 400.
	ValidateParams func(Params) error

	// BuildPayload shapes the outbound socket payload. Nil gets the default:
	// every extracted parameter except clientId and kind, which are routing
	// metadata rather than domain data.
	BuildPayload func(Params) map[string]any
}

// Extract pulls the spec's parameters out of a request and validates them.
//
// Evaluation order is fixed: each declared parameter that is present is
// coerced first (a failure rejects immediately with a field-specific
// message), then the ValidateParams hook runs, and the missing-required
// check runs last. The hook therefore sees every coerced value and may
// report a more specific failure than a bare "missing parameter".
//
// Parameters:
//   - body: Decoded JSON request body, or nil
//   - query: URL query values, or nil
//   - path: Named URL path segments, or nil
//
// Returns:
//   - Params: Coerced parameter values keyed by name
//   - error: *ValidationError describing the first failure
func (s *Spec) Extract(body map[string]any, query url.Values, path map[string]string) (Params, error) {
	params := make(Params, len(s.Required)+len(s.Optional))

	for _, group := range [][]Param{s.Required, s.Optional} {
		for _, p := range group {
			raw, ok := lookup(p, body, query, path)
			if !ok {
				continue
			}
			v, err := coerce(p, raw)
			if err != nil {
				return nil, err
			}
			params[p.Name] = v
		}
	}

	if s.ValidateParams != nil {
		if err := s.ValidateParams(params); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return nil, verr
			}

			return nil, &ValidationError{Message: err.Error()}
		}
	}

	for _, p := range s.Required {
		if !params.Has(p.Name) {
			return nil, invalidf(p.Name, "missing required parameter: %s", p.Name)
		}
	}

	return params, nil
}

// Payload returns the outbound socket message fields for the request.
func (s *Spec) Payload(params Params) map[string]any {
	if s.BuildPayload != nil {
		return s.BuildPayload(params)
	}

	payload := make(map[string]any, len(params))
	for k, v := range params {
		if k == "clientId" || k == "kind" {
			continue
		}
		payload[k] = v
	}

	return payload
}

// lookup returns the first defined value among the param's sources.
func lookup(p Param, body map[string]any, query url.Values, path map[string]string) (any, bool) {
	for _, src := range p.From {
		switch src {
		case SourceBody:
			if v, ok := body[p.Name]; ok && v != nil {
				return v, true
			}
		case SourceQuery:
			if query.Has(p.Name) {
				return query.Get(p.Name), true
			}
		case SourcePath:
			if v, ok := path[p.Name]; ok && v != "" {
				return v, true
			}
		}
	}

	return nil, false
}

func coerce(p Param, raw any) (any, error) {
	switch p.Type {
	case TypeString:
		return coerceString(p.Name, raw)
	case TypeNumber:
		return coerceNumber(p.Name, raw)
	case TypeBoolean:
		return coerceBoolean(p.Name, raw)
	case TypeArray:
		return coerceArray(p.Name, raw)
	case TypeObject:
		return coerceObject(p.Name, raw)
	default:
		return raw, nil
	}
}

func coerceString(field string, raw any) (any, error) {
	if s, ok := raw.(string); ok {
		return s, nil
	}

	return nil, invalidf(field, "parameter %s must be a string", field)
}

func coerceNumber(field string, raw any) (any, error) {
	var (
		n   float64
		err error
	)
	switch v := raw.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		n, err = v.Float64()
	case string:
		n, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return nil, invalidf(field, "parameter %s must be a number", field)
	}
	// ParseFloat happily produces NaN and Inf from their spellings.
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, invalidf(field, "parameter %s must be a finite number", field)
	}

	return n, nil
}

func coerceBoolean(field string, raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		if strings.EqualFold(v, "true") {
			return true, nil
		}
		if strings.EqualFold(v, "false") {
			return false, nil
		}
	}

	return nil, invalidf(field, "parameter %s must be a boolean", field)
}

func coerceArray(field string, raw any) (any, error) {
	switch v := raw.(type) {
	case []any:
		return v, nil
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			if arr, ok := parsed.([]any); ok {
				return arr, nil
			}
		}
	}

	return nil, invalidf(field, "parameter %s must be an array", field)
}

func coerceObject(field string, raw any) (any, error) {
	if m, ok := raw.(map[string]any); ok {
		return m, nil
	}

	return nil, invalidf(field, "parameter %s must be an object", field)
}
