package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssjmarx/The-Gold-Box-sub002/internal/correlate"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/handshake"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/presence"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/sanitize"
	"github.com/ssjmarx/The-Gold-Box-sub002/route"
	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// apiKeyHeader carries the caller's api key on session endpoints.
const apiKeyHeader = "x-api-key"

// buildRouter assembles the REST and WebSocket surface.
//
// The route table is frozen here; Mount rejects additions once the relay
// is running.
func (r *Relay) buildRouter() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(r.requestLogger)
	mux.Use(middleware.Recoverer)

	mux.Get("/relay", r.handleWS)
	mux.Get("/healthz", r.handleHealthz)
	mux.Method(http.MethodGet, "/metrics", promhttp.Handler())
	mux.Get("/clients", r.handleClients)

	mux.Post("/session-handshake", r.handleSessionHandshake)
	mux.Post("/start-session", r.handleStartSession)
	mux.Delete("/end-session", r.handleEndSession)
	mux.Get("/session", r.handleSessions)

	for kind, spec := range r.routes {
		mux.Post("/api/"+kind, r.correlatedHandler(spec))
	}

	return mux
}

// requestLogger logs one line per request at debug level.
func (r *Relay) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)

		next.ServeHTTP(ww, req)

		r.logger.Debug("http request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(req.Context()),
		)
	})
}

func (r *Relay) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	mode := "distributed"
	if r.presence.LocalOnly() {
		mode = "local-only"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"instanceId": r.cfg.InstanceID,
		"mode":       mode,
		"clients":    r.registry.Len(),
	})
}

// handleClients lists the locally connected client ids for the caller's
// token. Cross-instance visibility deliberately stays out; siblings answer
// for their own sockets.
func (r *Relay) handleClients(w http.ResponseWriter, req *http.Request) {
	tok := req.URL.Query().Get("token")
	if tok == "" {
		tok = req.Header.Get("x-auth-token")
	}
	if tok == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	ids := r.registry.ListConnected(tok)
	if ids == nil {
		ids = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"clients": ids})
}

func (r *Relay) handleSessionHandshake(w http.ResponseWriter, req *http.Request) {
	apiKey := req.Header.Get(apiKeyHeader)

	var body struct {
		FoundryURL string `json:"foundryUrl"`
		WorldName  string `json:"worldName"`
		Username   string `json:"username"`
	}
	if err := decodeBody(req, &body); err != nil {
		sessionError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	hs, err := r.sessions.Create(req.Context(), apiKey, body.FoundryURL, body.WorldName, body.Username)
	if err != nil {
		sessionError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, hs)
}

func (r *Relay) handleStartSession(w http.ResponseWriter, req *http.Request) {
	apiKey := req.Header.Get(apiKeyHeader)

	var body struct {
		HandshakeToken    string `json:"handshakeToken"`
		EncryptedPassword string `json:"encryptedPassword"`
	}
	if err := decodeBody(req, &body); err != nil {
		sessionError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.HandshakeToken == "" || body.EncryptedPassword == "" {
		sessionError(w, http.StatusBadRequest, "handshakeToken and encryptedPassword are required")
		return
	}

	result, err := r.sessions.StartSession(req.Context(), body.HandshakeToken, body.EncryptedPassword, apiKey)
	if err != nil {
		status := startSessionStatus(err)
		sessionError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": result.SessionID,
		"clientId":  result.ClientID,
	})
}

// startSessionStatus maps a start failure to its HTTP status.
//
// Handshake consumption failures are 401: the record is deleted on first
// use whatever the outcome, so the caller must begin again with a fresh
// handshake either way. Expired waits of any kind are 504, whether the
// wait was for the client or for a Redis deadline underneath.
func startSessionStatus(err error) int {
	switch {
	case errors.Is(err, types.ErrHandshakeNotFound),
		errors.Is(err, types.ErrHandshakeExpired),
		errors.Is(err, types.ErrAPIKeyMismatch),
		errors.Is(err, types.ErrNonceMismatch),
		errors.Is(err, types.ErrDecryptFailed):
		return http.StatusUnauthorized
	case types.IsTimeoutError(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (r *Relay) handleEndSession(w http.ResponseWriter, req *http.Request) {
	apiKey := req.Header.Get(apiKeyHeader)
	sessionID := req.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	err := r.sessions.EndSession(req.Context(), sessionID, apiKey)
	switch {
	case errors.Is(err, types.ErrSessionNotFound):
		sessionError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, types.ErrAPIKeyMismatch):
		sessionError(w, http.StatusForbidden, "session belongs to a different api key")
		return
	case err != nil:
		sessionError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "session ended",
	})
}

func (r *Relay) handleSessions(w http.ResponseWriter, req *http.Request) {
	apiKey := req.Header.Get(apiKeyHeader)
	if apiKey == "" {
		sessionError(w, http.StatusUnauthorized, "api key is required")
		return
	}

	sessions := r.sessions.Sessions(apiKey)
	if sessions == nil {
		sessions = []handshake.SessionInfo{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// correlatedHandler is the generic POST /api/{kind} handler: extract and
// validate parameters, resolve the target client, relay through the
// correlator, and map the outcome to HTTP.
func (r *Relay) correlatedHandler(spec route.Spec) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		if err := decodeBody(req, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		params, err := spec.Extract(body, req.URL.Query(), nil)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		clientID := params.String("clientId")
		client, err := r.locateClient(req.Context(), clientID)
		if err != nil {
			writeClientUnavailable(w, err)
			return
		}

		result, err := r.correlator.Send(req.Context(), client, correlate.Request{
			Kind:    spec.Kind,
			Payload: spec.Payload(params),
			Timeout: spec.Timeout,
			Variant: variantFor(spec, params),
		})
		if err != nil {
			writeRelayError(w, err)
			return
		}
		r.sessions.TouchActivity(clientID)

		if result.ErrorMessage != "" {
			writeError(w, http.StatusBadRequest, result.ErrorMessage)
			return
		}

		// Sheet renders requested as HTML come back as a page, not JSON.
		if result.Format == "html" {
			if html, ok := result.Body["html"].(string); ok {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(html))
				return
			}
		}

		writeJSON(w, http.StatusOK, sanitize.Map(result.Body))
	}
}

// locateClient resolves the target of a relayed request. A local registry
// hit wins outright; otherwise the presence directory decides between a
// client served by a sibling instance and one connected nowhere.
//
// Returns:
//   - *types.Client: The locally connected client
//   - error: ErrClientNotFound, or a RemoteClientError wrapping
//     ErrClientServedElsewhere and naming the owning instance
func (r *Relay) locateClient(ctx context.Context, clientID string) (*types.Client, error) {
	if client, ok := r.registry.Get(clientID); ok {
		return client, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, r.cfg.OperationTimeout)
	defer cancel()

	res := r.presence.Resolve(opCtx, clientID, r.registry.Has)
	if res.Where == presence.LocationRemote {
		return nil, &types.RemoteClientError{ClientID: clientID, InstanceID: res.InstanceID}
	}

	return nil, fmt.Errorf("client %s: %w", clientID, types.ErrClientNotFound)
}

// writeClientUnavailable maps a failed lookup to HTTP. Forwarding is
// deliberately not attempted; the caller re-issues against the owning
// instance named in the response.
func writeClientUnavailable(w http.ResponseWriter, err error) {
	var remote *types.RemoteClientError
	if errors.As(err, &remote) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":      "Client not served here",
			"instanceId": remote.InstanceID,
		})
		return
	}

	writeError(w, http.StatusNotFound, "Invalid client ID")
}

// variantFor selects the correlator's matching rule for a spec.
func variantFor(spec route.Spec, params route.Params) correlate.Variant {
	switch spec.Correlation {
	case route.CorrelationSheet:
		return correlate.ActorSheet{
			EntityUUID: params.String("uuid"),
			Format:     params.String("format"),
		}
	case route.CorrelationFile:
		return correlate.Download{Format: params.String("format")}
	default:
		return correlate.Generic{}
	}
}

// writeRelayError maps correlator failures to HTTP.
func writeRelayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrRequestTimeout):
		writeError(w, http.StatusRequestTimeout, "Request timed out")
	case errors.Is(err, types.ErrUpstreamSend):
		writeError(w, http.StatusInternalServerError, "Failed to send request to client")
	case errors.Is(err, context.Canceled):
		// Caller is gone; nothing useful to write.
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeBody decodes a JSON request body, tolerating an empty one.
// Parameters may legitimately arrive in the query string alone.
func decodeBody(req *http.Request, v any) error {
	if req.Body == nil {
		return nil
	}
	err := json.NewDecoder(req.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// The status line is already on the wire; an encode failure here can
	// only be logged by the caller's middleware.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func sessionError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
