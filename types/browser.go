package types

import "context"

// BrowserCredentials carries everything a headless game login needs.
//
// Password is held only for the duration of the login actions and must
// never be logged.
type BrowserCredentials struct {
	// URL is the game server base URL.
	URL string

	// WorldName selects the world when the server is sitting on the setup
	// screen. Empty means the world is expected to be live already.
	WorldName string

	// Username is the player name shown in the join screen's user list.
	Username string

	// Password is the player's join password.
	Password string
}

// BrowserHandle is a live browser session.
type BrowserHandle interface {
	// UserID returns the user id resolved during login. The relay expects
	// the page plugin to connect as "foundry-{UserID}".
	UserID() string

	// Close shuts the browser down. Idempotent.
	Close(ctx context.Context) error
}

// Browser launches login sessions.
//
// Implementations must not tie the browser's lifetime to the context passed
// to Start; it only bounds the login phase. The returned handle owns the
// process until Close.
type Browser interface {
	Start(ctx context.Context, creds BrowserCredentials) (BrowserHandle, error)
}
