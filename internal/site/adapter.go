// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package site turns tracker sites into sources of raw listings. Each
// tracker framework (NexusPHP, Gazelle, Unit3D, Torznab feeds) has one
// Adapter implementation; all share the same contract so the aggregation
// pipeline never needs to know which framework it is talking to.
package site

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pdiddy/ptengine/pkg/types"
)

var (
	// ErrSiteUnavailable marks transient transport failures: timeouts,
	// connection errors, and 5xx or 429 responses that outlived retries.
	ErrSiteUnavailable = errors.New("site unavailable")

	// ErrAuthExpired marks an expired or rejected session.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrParse marks a response the adapter could not interpret.
	ErrParse = errors.New("malformed site response")

	// ErrUnsupported marks an operation the framework does not offer.
	ErrUnsupported = errors.New("operation not supported by site")
)

// Query is one search request against a site.
type Query struct {
	Keyword  string
	Category string

	// Limit caps the listings requested from the site; zero uses the
	// site default.
	Limit int
}

// IsEmpty reports whether the query has no search terms.
func (q Query) IsEmpty() bool {
	return strings.TrimSpace(q.Keyword) == ""
}

// Adapter is the capability set every tracker framework implements.
type Adapter interface {
	// Name returns the site name from the profile.
	Name() string

	// Search returns the raw listings matching q.
	Search(ctx context.Context, q Query) ([]types.RawSearchResult, error)

	// FetchDetail loads the detail page or record for ref, as returned in
	// RawSearchResult.DetailRef.
	FetchDetail(ctx context.Context, ref string) (types.RawSearchResult, error)

	// Authenticate refreshes session material when a CredentialSource is
	// configured and verifies the session is logged in.
	Authenticate(ctx context.Context) (types.AuthState, error)
}

// Credentials is session material handed to an adapter on reauthentication.
type Credentials struct {
	Cookie string
	APIKey string
}

// CredentialSource supplies fresh session material for a site.
type CredentialSource interface {
	Credentials(ctx context.Context, site string) (Credentials, error)
}

// Deps carries the shared utilities injected into every adapter.
type Deps struct {
	// Client performs HTTP requests. TLS, proxies, and cookie jars are
	// configured by the caller.
	Client *http.Client

	// Credentials is optional; without it Authenticate only verifies.
	Credentials CredentialSource

	Logger zerolog.Logger

	// UserAgent is used when the profile does not set one.
	UserAgent string

	// MaxRetries bounds retries on 429/503 responses (default 3).
	MaxRetries int
}

// Constructor builds an adapter for a profile.
type Constructor func(profile types.SiteProfile, deps Deps) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[types.Framework]Constructor{}
)

// Register binds a framework tag to its adapter constructor. Adapters in
// this package register themselves at init.
func Register(f types.Framework, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[f] = c
}

// Frameworks lists the registered framework tags in sorted order.
func Frameworks() []types.Framework {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]types.Framework, 0, len(registry))
	for f := range registry {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds the adapter for profile's framework.
func New(profile types.SiteProfile, deps Deps) (Adapter, error) {
	if profile.Name == "" {
		return nil, fmt.Errorf("site profile has no name")
	}
	if profile.BaseURL == "" {
		return nil, fmt.Errorf("site %s: base_url is required", profile.Name)
	}
	registryMu.RLock()
	c, ok := registry[profile.Framework]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("site %s: unknown framework %q", profile.Name, profile.Framework)
	}
	if deps.Client == nil {
		deps.Client = http.DefaultClient
	}
	return c(profile, deps)
}

// NewAll builds adapters for every enabled profile. A profile that fails
// to build is reported in the error slice and skipped.
func NewAll(profiles []types.SiteProfile, deps Deps) ([]Adapter, []error) {
	var adapters []Adapter
	var errs []error
	for _, p := range profiles {
		if !p.Enabled {
			continue
		}
		a, err := New(p, deps)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		adapters = append(adapters, a)
	}
	return adapters, errs
}
