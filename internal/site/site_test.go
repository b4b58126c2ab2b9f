// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package site

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ptengine/internal/httputil"
	"github.com/pdiddy/ptengine/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

func testProfile(framework types.Framework, baseURL string) types.SiteProfile {
	return types.SiteProfile{
		Name:      "test-" + string(framework),
		BaseURL:   baseURL,
		Framework: framework,
		Cookie:    "uid=1; pass=abc",
		APIKey:    "key123",
		Passkey:   "pk",
		Enabled:   true,
		RateLimit: types.RateLimit{Interval: time.Millisecond, Burst: 1},
	}
}

func newTestAdapter(t *testing.T, framework types.Framework, h http.Handler) Adapter {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	a, err := New(testProfile(framework, ts.URL), Deps{Client: ts.Client(), UserAgent: "ptengine-test"})
	require.NoError(t, err)
	return a
}

func TestFrameworksRegistered(t *testing.T) {
	assert.Equal(t, []types.Framework{
		types.FrameworkGazelle, types.FrameworkNexusPHP, types.FrameworkTorznab, types.FrameworkUnit3D,
	}, Frameworks())
}

func TestNewRejectsBadProfiles(t *testing.T) {
	_, err := New(types.SiteProfile{BaseURL: "http://x"}, Deps{})
	assert.Error(t, err)

	_, err = New(types.SiteProfile{Name: "a"}, Deps{})
	assert.Error(t, err)

	_, err = New(types.SiteProfile{Name: "a", BaseURL: "http://x", Framework: "ftp"}, Deps{})
	assert.ErrorContains(t, err, "unknown framework")
}

func TestNewAllSkipsDisabledAndReportsBroken(t *testing.T) {
	profiles := []types.SiteProfile{
		{Name: "ok", BaseURL: "http://a", Framework: types.FrameworkUnit3D, Enabled: true},
		{Name: "off", BaseURL: "http://b", Framework: types.FrameworkUnit3D},
		{Name: "bad", BaseURL: "http://c", Framework: "nope", Enabled: true},
	}
	adapters, errs := NewAll(profiles, Deps{})
	require.Len(t, adapters, 1)
	assert.Equal(t, "ok", adapters[0].Name())
	assert.Len(t, errs, 1)
}

func TestQueryIsEmpty(t *testing.T) {
	assert.True(t, Query{}.IsEmpty())
	assert.True(t, Query{Keyword: "  "}.IsEmpty())
	assert.False(t, Query{Keyword: "dune"}.IsEmpty())
}

func TestSessionClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthExpired},
		{http.StatusForbidden, ErrAuthExpired},
		{http.StatusBadGateway, ErrSiteUnavailable},
		{http.StatusServiceUnavailable, ErrSiteUnavailable},
		{http.StatusNotFound, ErrSiteUnavailable},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			s, err := NewSession(testProfile(types.FrameworkUnit3D, ts.URL), Deps{Client: ts.Client(), MaxRetries: 1})
			require.NoError(t, err)
			_, err = s.Get(context.Background(), "api", nil, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSessionLoginRedirectIsAuthExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/torrents.php", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login.php?returnto=torrents.php", http.StatusFound)
	})
	mux.HandleFunc("/login.php", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<form>login</form>")
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s, err := NewSession(testProfile(types.FrameworkNexusPHP, ts.URL), Deps{Client: ts.Client()})
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "torrents.php", nil, nil)
	assert.ErrorIs(t, err, ErrAuthExpired)
}

func TestSessionTransportErrorIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	s, err := NewSession(testProfile(types.FrameworkUnit3D, url), Deps{})
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "api", nil, nil)
	assert.ErrorIs(t, err, ErrSiteUnavailable)
}

func TestSessionSendsCookieAndUserAgent(t *testing.T) {
	var cookie, ua string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie = r.Header.Get("Cookie")
		ua = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	s, err := NewSession(testProfile(types.FrameworkNexusPHP, ts.URL), Deps{Client: ts.Client(), UserAgent: "ptengine-test"})
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "index.php", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "uid=1; pass=abc", cookie)
	assert.Equal(t, "ptengine-test", ua)
}

func TestSessionRateLimitSpacesRequests(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	p := testProfile(types.FrameworkUnit3D, ts.URL)
	p.RateLimit = types.RateLimit{Interval: 50 * time.Millisecond, Burst: 1}
	s, err := NewSession(p, Deps{Client: ts.Client()})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := s.Get(context.Background(), "api", nil, nil)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSessionRateLimitHonorsCancellation(t *testing.T) {
	p := testProfile(types.FrameworkUnit3D, "http://127.0.0.1:1")
	p.RateLimit = types.RateLimit{Interval: time.Hour, Burst: 1}
	s, err := NewSession(p, Deps{})
	require.NoError(t, err)
	s.limiter.Allow() // drain the only token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.Get(ctx, "api", nil, nil)
	assert.ErrorIs(t, err, ErrSiteUnavailable)
}

type staticCreds struct{ c Credentials }

func (s staticCreds) Credentials(context.Context, string) (Credentials, error) { return s.c, nil }

type failingCreds struct{}

func (failingCreds) Credentials(context.Context, string) (Credentials, error) {
	return Credentials{}, errors.New("vault locked")
}

func TestSessionRefresh(t *testing.T) {
	s, err := NewSession(testProfile(types.FrameworkUnit3D, "http://x"), Deps{Credentials: staticCreds{Credentials{APIKey: "fresh"}}})
	require.NoError(t, err)
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, "fresh", s.APIKey())

	s, err = NewSession(testProfile(types.FrameworkUnit3D, "http://x"), Deps{Credentials: failingCreds{}})
	require.NoError(t, err)
	assert.ErrorContains(t, s.Refresh(context.Background()), "vault locked")
	assert.Equal(t, "key123", s.APIKey())
}
