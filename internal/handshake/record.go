package handshake

import (
	"crypto/rsa"
	"time"
)

// record is the owner-side handshake state. The private key field is why
// this never leaves the process: only its public parts are shared through
// Redis so other instances can discover the owner and park callers.
type record struct {
	apiKey     string
	foundryURL string
	worldName  string
	username   string
	publicKey  string
	privateKey *rsa.PrivateKey
	nonce      string
	expiresAt  time.Time
}

func (r *record) expired(now time.Time) bool {
	return now.After(r.expiresAt)
}

// sharedRecord is the Redis-visible projection of a handshake: everything
// except the private key, plus the owning instance so non-owners know where
// to route a start attempt.
type sharedRecord struct {
	APIKey     string    `json:"apiKey"`
	FoundryURL string    `json:"foundryUrl"`
	WorldName  string    `json:"worldName"`
	Username   string    `json:"username"`
	PublicKey  string    `json:"publicKey"`
	Nonce      string    `json:"nonce"`
	ExpiresAt  time.Time `json:"expires"`
	Owner      string    `json:"owner"`
}

// pendingStart is the parked start-session attempt a non-owner writes for
// the owning instance to consume.
type pendingStart struct {
	EncryptedPayload string `json:"encryptedPayload"`
	APIKey           string `json:"apiKey"`
}

// Outcome kind labels carried across instances in startOutcome records.
// The polling side maps them back onto the package's sentinel errors.
const (
	outcomeSuccess       = "success"
	outcomeNotFound      = "not_found"
	outcomeExpired       = "expired"
	outcomeKeyMismatch   = "key_mismatch"
	outcomeNonceMismatch = "nonce_mismatch"
	outcomeDecryptFailed = "decrypt_failure"
	outcomeUnauthorized  = "unauthorized"
	outcomeTimeout       = "timeout"
	outcomeError         = "error"
)

// startOutcome is the terminal result of a start attempt, written to the
// result key when the attempt was served on behalf of another instance.
type startOutcome struct {
	Kind      string `json:"kind"`
	SessionID string `json:"sessionId,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Handshake is the caller-facing view returned by Create. The caller
// encrypts {password, nonce} against PublicKeyPEM and presents the token
// within the expiry window.
type Handshake struct {
	Token        string    `json:"token"`
	PublicKeyPEM string    `json:"publicKey"`
	Nonce        string    `json:"nonce"`
	ExpiresAt    time.Time `json:"expires"`
}

// StartResult identifies the session and client a successful start produced.
type StartResult struct {
	SessionID string `json:"sessionId"`
	ClientID  string `json:"clientId"`
}

// SessionInfo is the caller-facing view of one active session.
type SessionInfo struct {
	SessionID    string    `json:"sessionId"`
	ClientID     string    `json:"clientId"`
	StartedAt    time.Time `json:"startedAt"`
	LastActivity time.Time `json:"lastActivity"`
}
