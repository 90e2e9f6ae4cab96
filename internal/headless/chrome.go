// Package headless drives browser-based game logins for relay-managed
// sessions.
//
// A started session owns one browser process. The page's relay plugin makes
// the actual WebSocket connection back to the relay once the login lands in
// the game world; this package only gets the browser to that point and
// reports the resolved user id so the caller knows which client id to wait
// for.
package headless

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/ssjmarx/The-Gold-Box-sub002/internal/logging"
	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// DefaultLoginTimeout bounds the whole login phase: navigation, world
// launch, join form, and waiting for the game to report ready.
const DefaultLoginTimeout = 2 * time.Minute

// ChromeConfig configures the Chrome launcher.
type ChromeConfig struct {
	// ExecPath overrides browser discovery. Empty lets chromedp find an
	// installed Chrome or Chromium.
	ExecPath string

	// Headful runs with a visible window. Debugging only.
	Headful bool

	// NoSandbox disables the Chrome sandbox. Required in most containers.
	NoSandbox bool

	// LoginTimeout bounds the login phase. 0 means DefaultLoginTimeout.
	LoginTimeout time.Duration
}

// Chrome launches game logins in headless Chrome.
type Chrome struct {
	cfg    ChromeConfig
	logger types.Logger
}

var _ types.Browser = (*Chrome)(nil)

// NewChrome creates a Chrome launcher.
func NewChrome(cfg ChromeConfig) *Chrome {
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = DefaultLoginTimeout
	}

	return &Chrome{cfg: cfg, logger: logging.NewNop()}
}

// SetLogger sets the logger. Optional.
func (c *Chrome) SetLogger(logger types.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Start launches a browser, walks it through world launch and login, and
// returns a handle once the game reports ready.
//
// The context bounds only the login phase. On any login failure the
// browser is torn down before the error is returned.
//
// Parameters:
//   - ctx: Bounds the login phase together with LoginTimeout
//   - creds: Server URL, world, username, password
//
// Returns:
//   - types.BrowserHandle: Live browser session with the resolved user id
//   - error: Navigation, world launch, or login failure
func (c *Chrome) Start(ctx context.Context, creds types.BrowserCredentials) (types.BrowserHandle, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if c.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ExecPath))
	}
	if c.cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if c.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	// The browser outlives the HTTP request that started the session, so
	// its context tree hangs off Background, not the caller's ctx.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	handle := &chromeHandle{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}

	loginCtx, cancelLogin := context.WithTimeout(browserCtx, c.cfg.LoginTimeout)
	defer cancelLogin()
	stop := context.AfterFunc(ctx, cancelLogin)
	defer stop()

	userID, err := c.login(loginCtx, creds)
	if err != nil {
		_ = handle.Close(context.Background())
		return nil, err
	}
	handle.userID = userID

	c.logger.Info("headless login complete",
		"url", creds.URL,
		"username", creds.Username,
		"user_id", userID,
	)

	return handle, nil
}

// login runs the world-launch and join-form actions.
func (c *Chrome) login(ctx context.Context, creds types.BrowserCredentials) (string, error) {
	joinURL := JoinURL(creds.URL)

	var path string
	if err := chromedp.Run(ctx,
		chromedp.Navigate(joinURL),
		chromedp.Evaluate(`location.pathname`, &path),
	); err != nil {
		return "", fmt.Errorf("navigate to %s: %w", joinURL, err)
	}

	// The server redirects /join to /setup while no world is live.
	if strings.Contains(path, "setup") {
		if err := c.launchWorld(ctx, creds.WorldName, joinURL); err != nil {
			return "", err
		}
	}

	var userSelected bool
	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(`select[name="userid"]`),
		chromedp.Evaluate(selectUserScript(creds.Username), &userSelected),
	); err != nil {
		return "", fmt.Errorf("join screen: %w", err)
	}
	if !userSelected {
		return "", fmt.Errorf("user %q not present in world user list", creds.Username)
	}

	var ready bool
	if err := chromedp.Run(ctx,
		chromedp.SendKeys(`input[name="password"]`, creds.Password),
		chromedp.Click(`button[name="join"]`, chromedp.NodeVisible),
		chromedp.Poll(`window.game !== undefined && game.ready === true`, &ready,
			chromedp.WithPollingInterval(500*time.Millisecond)),
	); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}

	var userID string
	if err := chromedp.Run(ctx, chromedp.Evaluate(`game.user.id`, &userID)); err != nil {
		return "", fmt.Errorf("resolve user id: %w", err)
	}
	if userID == "" {
		return "", fmt.Errorf("game reported an empty user id")
	}

	return userID, nil
}

// launchWorld clicks the named world's launch control on the setup screen
// and waits for the join screen to come up.
func (c *Chrome) launchWorld(ctx context.Context, worldName, joinURL string) error {
	if worldName == "" {
		return fmt.Errorf("server is on the setup screen and no world name was given")
	}

	c.logger.Debug("launching world from setup screen", "world", worldName)

	var launched bool
	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(`li.package.world, .package.world`),
		chromedp.Evaluate(launchWorldScript(worldName), &launched),
	); err != nil {
		return fmt.Errorf("setup screen: %w", err)
	}
	if !launched {
		return fmt.Errorf("world %q not found on setup screen", worldName)
	}

	// World boot takes a few seconds; the join form appearing is the
	// signal that it finished.
	if err := chromedp.Run(ctx,
		chromedp.Sleep(3*time.Second),
		chromedp.Navigate(joinURL),
		chromedp.WaitVisible(`select[name="userid"]`),
	); err != nil {
		return fmt.Errorf("world %q did not reach the join screen: %w", worldName, err)
	}

	return nil
}

// JoinURL builds the join-screen URL from a server base URL.
func JoinURL(base string) string {
	return strings.TrimRight(base, "/") + "/join"
}

// selectUserScript returns JS that picks the named user in the join form's
// user list and reports whether it was found.
func selectUserScript(username string) string {
	return fmt.Sprintf(`(() => {
	const sel = document.querySelector('select[name="userid"]');
	if (!sel) return false;
	const opt = Array.from(sel.options).find(o => o.text.trim() === %q);
	if (!opt) return false;
	sel.value = opt.value;
	sel.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
})()`, username)
}

// launchWorldScript returns JS that clicks the launch control of the world
// whose title matches and reports whether it was found.
func launchWorldScript(worldName string) string {
	return fmt.Sprintf(`(() => {
	const worlds = Array.from(document.querySelectorAll('li.package.world, .package.world'));
	const entry = worlds.find(w => {
		const title = w.querySelector('.package-title, h3');
		return title && title.textContent.trim() === %q;
	});
	if (!entry) return false;
	const launch = entry.querySelector('[data-action="worldLaunch"], button[name="action"], .control.play');
	if (!launch) return false;
	launch.click();
	return true;
})()`, worldName)
}

// chromeHandle owns one Chrome process.
type chromeHandle struct {
	userID        string
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	once          sync.Once
}

var _ types.BrowserHandle = (*chromeHandle)(nil)

func (h *chromeHandle) UserID() string {
	return h.userID
}

// Close shuts the browser down gracefully and releases the allocator.
// Safe to call more than once.
func (h *chromeHandle) Close(_ context.Context) error {
	var err error
	h.once.Do(func() {
		err = chromedp.Cancel(h.browserCtx)
		h.cancelBrowser()
		h.cancelAlloc()
	})

	return err
}
