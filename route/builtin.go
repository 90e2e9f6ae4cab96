package route

import (
	"strings"
	"time"
)

// transferTimeout covers upload and download round trips, which move file
// payloads over the client socket and regularly outlive the default window.
const transferTimeout = 40 * time.Second

// clientID targets every spec: the client to relay through, query string
// first, then body.
var clientID = Param{Name: "clientId", From: []Source{SourceQuery, SourceBody}, Type: TypeString}

// forbiddenScriptCalls are substrings rejected in inline macro scripts.
// Scripts run inside the game client with its cookies and socket; these
// calls would let a REST caller exfiltrate or hijack that context.
var forbiddenScriptCalls = []string{
	"eval(",
	"fetch(",
	"XMLHttpRequest",
	"WebSocket(",
	"import(",
	"document.cookie",
	"localStorage",
}

// Builtin returns the relay's stock route specs.
//
// Each spec is mounted at POST /api/{kind} and relays to the target client
// as a correlated {kind} message. Callers may mount further specs of their
// own alongside these.
//
// Returns:
//   - []Spec: Fresh spec values; mutating them does not affect later calls
func Builtin() []Spec {
	return []Spec{
		{
			Kind: "roll",
			Required: []Param{
				clientID,
				{Name: "formula", From: []Source{SourceBody, SourceQuery}, Type: TypeString},
			},
			Optional: []Param{
				{Name: "flavor", From: []Source{SourceBody, SourceQuery}, Type: TypeString},
				{Name: "whisper", From: []Source{SourceBody}, Type: TypeArray},
				{Name: "createChatMessage", From: []Source{SourceBody, SourceQuery}, Type: TypeBoolean},
			},
		},
		{
			Kind: "modify-actor",
			Required: []Param{
				clientID,
				{Name: "uuid", From: []Source{SourceBody, SourceQuery}, Type: TypeString},
				{Name: "updates", From: []Source{SourceBody}, Type: TypeObject},
			},
		},
		{
			Kind:     "macro",
			Required: []Param{clientID},
			Optional: []Param{
				{Name: "uuid", From: []Source{SourceBody, SourceQuery}, Type: TypeString},
				{Name: "script", From: []Source{SourceBody}, Type: TypeString},
				{Name: "args", From: []Source{SourceBody}, Type: TypeArray},
			},
			ValidateParams: validateMacro,
		},
		{
			Kind:        "actor-sheet",
			Correlation: CorrelationSheet,
			Required: []Param{
				clientID,
				{Name: "uuid", From: []Source{SourceBody, SourceQuery}, Type: TypeString},
			},
			Optional: []Param{
				{Name: "format", From: []Source{SourceBody, SourceQuery}, Type: TypeString},
			},
			ValidateParams: validateRenderFormat,
		},
		{
			Kind:        "download",
			Timeout:     transferTimeout,
			Correlation: CorrelationFile,
			Required: []Param{
				clientID,
				{Name: "path", From: []Source{SourceBody, SourceQuery}, Type: TypeString},
			},
			Optional: []Param{
				{Name: "format", From: []Source{SourceBody, SourceQuery}, Type: TypeString},
			},
		},
		{
			Kind:    "upload",
			Timeout: transferTimeout,
			Required: []Param{
				clientID,
				{Name: "path", From: []Source{SourceBody, SourceQuery}, Type: TypeString},
				{Name: "data", From: []Source{SourceBody}, Type: TypeString},
			},
			Optional: []Param{
				{Name: "mimeType", From: []Source{SourceBody}, Type: TypeString},
				{Name: "overwrite", From: []Source{SourceBody, SourceQuery}, Type: TypeBoolean},
			},
		},
		{
			Kind: "chat",
			Required: []Param{
				clientID,
				{Name: "content", From: []Source{SourceBody, SourceQuery}, Type: TypeString},
			},
			Optional: []Param{
				{Name: "speaker", From: []Source{SourceBody}, Type: TypeString},
				{Name: "whisper", From: []Source{SourceBody}, Type: TypeArray},
			},
		},
	}
}

// validateMacro requires a macro reference or an inline script, and screens
// inline scripts for calls the relay refuses to execute.
func validateMacro(p Params) error {
	script := p.String("script")
	if script == "" && p.String("uuid") == "" {
		return &ValidationError{Field: "script", Message: "macro requires a uuid or a script"}
	}

	for _, call := range forbiddenScriptCalls {
		if strings.Contains(script, call) {
			return invalidf("script", "script contains forbidden call: %s", call)
		}
	}

	return nil
}

// validateRenderFormat limits sheet rendering to the formats the client
// plugin can produce.
func validateRenderFormat(p Params) error {
	switch p.String("format") {
	case "", "html", "json":
		return nil
	default:
		return invalidf("format", "format must be html or json")
	}
}
