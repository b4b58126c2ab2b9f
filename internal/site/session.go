// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package site

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pdiddy/ptengine/internal/httputil"
	"github.com/pdiddy/ptengine/pkg/types"
)

const (
	defaultInterval = 2 * time.Second
	maxBodyBytes    = 8 << 20
)

// Session holds the HTTP state one adapter uses against one site: the
// profile's session material, its token bucket, and the injected client.
// Only the owning adapter touches its limiter.
type Session struct {
	profile types.SiteProfile
	base    *url.URL
	client  *http.Client
	creds   CredentialSource
	limiter *rate.Limiter
	log     zerolog.Logger
	ua      string
	retries int

	mu     sync.RWMutex
	cookie string
	apiKey string
}

// NewSession prepares the shared HTTP state for profile.
func NewSession(profile types.SiteProfile, deps Deps) (*Session, error) {
	base, err := url.Parse(strings.TrimRight(profile.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("site %s: parsing base_url: %w", profile.Name, err)
	}

	interval := profile.RateLimit.Interval
	if interval == 0 {
		interval = defaultInterval
	}
	burst := profile.RateLimit.Burst
	if burst <= 0 {
		burst = 1
	}

	ua := profile.UserAgent
	if ua == "" {
		ua = deps.UserAgent
	}

	client := deps.Client
	if client == nil {
		client = http.DefaultClient
	}

	return &Session{
		profile: profile,
		base:    base,
		client:  client,
		creds:   deps.Credentials,
		limiter: rate.NewLimiter(rate.Every(interval), burst),
		log:     deps.Logger.With().Str("site", profile.Name).Logger(),
		ua:      ua,
		retries: deps.MaxRetries,
		cookie:  profile.Cookie,
		apiKey:  profile.APIKey,
	}, nil
}

// Profile returns the site profile.
func (s *Session) Profile() types.SiteProfile { return s.profile }

// APIKey returns the current API token.
func (s *Session) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}

// Refresh pulls fresh session material from the credential source. It is a
// no-op without one.
func (s *Session) Refresh(ctx context.Context) error {
	if s.creds == nil {
		return nil
	}
	c, err := s.creds.Credentials(ctx, s.profile.Name)
	if err != nil {
		return fmt.Errorf("refreshing credentials: %w", err)
	}
	s.mu.Lock()
	if c.Cookie != "" {
		s.cookie = c.Cookie
	}
	if c.APIKey != "" {
		s.apiKey = c.APIKey
	}
	s.mu.Unlock()
	s.log.Debug().Msg("session material refreshed")
	return nil
}

// Resolve turns a site-relative reference into an absolute URL.
func (s *Session) Resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return s.base.ResolveReference(u).String()
}

// Get fetches ref relative to the site root with params merged into the
// query string. It waits on the site's token bucket, injects session
// headers, and classifies failures into ErrSiteUnavailable and
// ErrAuthExpired.
func (s *Session) Get(ctx context.Context, ref string, params url.Values, header http.Header) ([]byte, error) {
	if s.profile.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.profile.Timeout)
		defer cancel()
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %w", ErrSiteUnavailable, err)
	}

	u, err := url.Parse(s.Resolve(ref))
	if err != nil {
		return nil, fmt.Errorf("building URL for %s: %w", ref, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if s.ua != "" {
		req.Header.Set("User-Agent", s.ua)
	}
	s.mu.RLock()
	if s.cookie != "" {
		req.Header.Set("Cookie", s.cookie)
	}
	s.mu.RUnlock()
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := httputil.DoWithRetry(ctx, s.client, req, s.retries)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrSiteUnavailable, err)
	}
	defer resp.Body.Close()

	s.log.Debug().
		Str("url", redact(u)).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("site request")

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", ErrAuthExpired, resp.StatusCode)
	case resp.StatusCode >= 500, httputil.Retryable(resp.StatusCode):
		return nil, fmt.Errorf("%w: HTTP %d", ErrSiteUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrSiteUnavailable, resp.StatusCode, redact(u))
	}

	if isLoginRedirect(resp.Request.URL) {
		return nil, fmt.Errorf("%w: redirected to %s", ErrAuthExpired, resp.Request.URL.Path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrSiteUnavailable, err)
	}
	return body, nil
}

func isLoginRedirect(u *url.URL) bool {
	if u == nil {
		return false
	}
	p := strings.ToLower(u.Path)
	return strings.Contains(p, "login") || strings.Contains(p, "takelogin")
}

// redact hides credentials in query strings before logging.
func redact(u *url.URL) string {
	c := *u
	q := c.Query()
	for _, k := range []string{"apikey", "api_token", "passkey", "torrent_pass", "authkey"} {
		if q.Has(k) {
			q.Set(k, "xxx")
		}
	}
	c.RawQuery = q.Encode()
	return c.String()
}
