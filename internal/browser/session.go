// Package browser drives the interactive login. A real browser session is
// the only way through the corporate single sign-on, so the worker opens the
// site, waits for an authenticated page and copies the cookies out.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/ignite/punchlist-monitor/internal/config"
	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/pkg/logger"
)

// ErrLoginTimeout is returned when no authenticated page appeared in time.
var ErrLoginTimeout = errors.New("browser: login not detected before timeout")

// Authenticator produces the credential handle for one cycle.
type Authenticator interface {
	Authenticate(ctx context.Context) (domain.Credentials, error)
	Close() error
}

// Session is a long-lived browser reused across cycles. The login page stays
// open so later cycles only re-read its cookies.
type Session struct {
	cfg     config.BrowserConfig
	siteURL string
	now     func() time.Time

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
}

// NewSession creates a session; the browser starts on first use.
func NewSession(cfg config.BrowserConfig, siteURL string) *Session {
	return &Session{cfg: cfg, siteURL: siteURL, now: time.Now}
}

// Authenticate opens the login URL if needed, waits up to the configured
// login timeout for any ready selector and returns the site cookies.
func (s *Session) Authenticate(ctx context.Context) (domain.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.start(ctx); err != nil {
		return domain.Credentials{}, err
	}

	if s.page == nil {
		page, err := s.browser.Page(proto.TargetCreateTarget{URL: s.loginURL()})
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("open login page: %w", err)
		}
		s.page = page
		logger.Info("browser: waiting for login", "url", s.loginURL(), "timeout", s.cfg.LoginTimeout())
	}

	wctx, cancel := context.WithTimeout(ctx, s.cfg.LoginTimeout())
	defer cancel()
	if _, err := s.page.Context(wctx).Element(ReadySelector(s.cfg.ReadySelectors)); err != nil {
		if ctx.Err() != nil {
			return domain.Credentials{}, ctx.Err()
		}
		if wctx.Err() != nil {
			return domain.Credentials{}, ErrLoginTimeout
		}
		s.resetPage()
		return domain.Credentials{}, fmt.Errorf("waiting for login: %w", err)
	}

	res, err := proto.NetworkGetCookies{Urls: []string{s.siteURL}}.Call(s.page)
	if err != nil {
		s.resetPage()
		return domain.Credentials{}, fmt.Errorf("get cookies: %w", err)
	}
	creds := Credentials(res.Cookies, s.now())
	logger.Info("browser: session authenticated", "cookies", len(creds.Cookies))
	return creds, nil
}

// Close shuts the browser down.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetPage()
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	return err
}

func (s *Session) loginURL() string {
	if s.cfg.LoginURL != "" {
		return s.cfg.LoginURL
	}
	return s.siteURL
}

func (s *Session) resetPage() {
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
}

// start connects to a running browser or launches one. A dead connection
// is replaced.
func (s *Session) start(ctx context.Context) error {
	if s.browser != nil {
		if _, err := s.browser.Version(); err == nil {
			return nil
		}
		logger.Warn("browser: stale connection, reconnecting")
		_ = s.browser.Close()
		s.browser = nil
		s.page = nil
	}

	controlURL := s.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().
			Headless(s.cfg.Headless).
			Set("ignore-certificate-errors")
		if s.cfg.Bin != "" {
			l = l.Bin(s.cfg.Bin)
		}
		if s.cfg.UserDataDir != "" {
			l = l.UserDataDir(s.cfg.UserDataDir)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	// The browser outlives the cycle context.
	b := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	s.browser = b
	return nil
}

// ReadySelector joins the selectors into one CSS selector list, which
// matches as soon as any of them is present.
func ReadySelector(selectors []string) string {
	parts := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		if sel = strings.TrimSpace(sel); sel != "" {
			parts = append(parts, sel)
		}
	}
	if len(parts) == 0 {
		parts = config.DefaultReadySelectors()
	}
	return strings.Join(parts, ", ")
}

// Credentials converts DevTools cookies into the credential handle.
func Credentials(cookies []*proto.NetworkCookie, now time.Time) domain.Credentials {
	out := domain.Credentials{CapturedAt: now, Cookies: make([]domain.Cookie, 0, len(cookies))}
	for _, c := range cookies {
		if c == nil {
			continue
		}
		cookie := domain.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			cookie.Expires = c.Expires.Time()
		}
		out.Cookies = append(out.Cookies, cookie)
	}
	return out
}

// Static is an Authenticator returning fixed credentials, used when the
// cookies come from elsewhere.
type Static domain.Credentials

// Authenticate returns the fixed credentials.
func (s Static) Authenticate(ctx context.Context) (domain.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return domain.Credentials{}, err
	}
	return domain.Credentials(s), nil
}

// Close is a no-op.
func (Static) Close() error { return nil }
