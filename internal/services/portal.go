package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/portalsync/internal/shared"
	"golang.org/x/time/rate"
)

const sessionCheckPath = "/api/session"

// SessionSource supplies the session a request is made with and accepts expiry reports.
type SessionSource interface {
	Current() *Session
	MarkExpired(reason string)
}

// PortalClient performs authenticated, throttled GET requests against the portal.
// It implements [Fetcher].
type PortalClient struct {
	baseURL    string
	loginPath  string
	httpClient *http.Client
	limiter    *rate.Limiter
	sessions   SessionSource
	logger     *log.Logger
}

// NewPortalClient creates a client for cfg. A nil client gets one with cfg's timeout.
//
// Redirects are never followed so a bounce to the login page can be recognised.
func NewPortalClient(cfg shared.PortalConfig, sessions SessionSource, client *http.Client, logger *log.Logger) *PortalClient {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout.Duration}
	}
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}

	return &PortalClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		loginPath:  loginPath,
		httpClient: client,
		limiter:    rate.NewLimiter(limit, 1),
		sessions:   sessions,
		logger:     shared.WithLogger(logger, "component", "portal"),
	}
}

// PerformAuthenticatedFetch implements [Fetcher].
func (p *PortalClient) PerformAuthenticatedFetch(ctx context.Context, locator string) (*RawPayload, error) {
	sess := p.sessions.Current()
	if sess == nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, shared.ErrMissingSession)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.resolve(sess, locator), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range sess.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Cookie", sess.Cookie)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrAPIRequest, err)
	}

	p.logger.Debug("portal response", "locator", locator, "status", resp.StatusCode, "bytes", len(body))

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		p.sessions.MarkExpired(fmt.Sprintf("status %d on %s", resp.StatusCode, locator))
		return nil, fmt.Errorf("%w: status %d", shared.ErrSessionExpired, resp.StatusCode)
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		if strings.Contains(resp.Header.Get("Location"), p.loginPath) {
			p.sessions.MarkExpired("redirected to login on " + locator)
			return nil, fmt.Errorf("%w: redirected to login", shared.ErrSessionExpired)
		}
		return nil, fmt.Errorf("%w: redirect %d on %s", shared.ErrUnexpectedStatus, resp.StatusCode, locator)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %d on %s", shared.ErrUnexpectedStatus, resp.StatusCode, locator)
	}

	return newRawPayload(locator, resp.StatusCode, resp.Header, body), nil
}

// CheckSession asks the portal whether the current session is still accepted.
func (p *PortalClient) CheckSession(ctx context.Context) error {
	_, err := p.PerformAuthenticatedFetch(ctx, sessionCheckPath)
	return err
}

// LoginURL is the page a user signs in on before importing a session.
func (p *PortalClient) LoginURL() string {
	return p.baseURL + p.loginPath
}

func (p *PortalClient) resolve(sess *Session, locator string) string {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return locator
	}
	base := p.baseURL
	if base == "" {
		base = strings.TrimRight(sess.BaseURL, "/")
	}
	if !strings.HasPrefix(locator, "/") {
		locator = "/" + locator
	}
	return base + locator
}
