// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the ptengine pipeline:
// site profiles and raw listings, recognized release metadata, canonical
// torrent records, rules, and download tasks.
package types

import "time"

// Framework identifies the tracker software family a site runs. It selects
// the site adapter implementation at configuration time.
type Framework string

const (
	FrameworkNexusPHP Framework = "nexusphp"
	FrameworkGazelle  Framework = "gazelle"
	FrameworkUnit3D   Framework = "unit3d"
	FrameworkTorznab  Framework = "torznab"
)

// RateLimit bounds the request rate an adapter may issue against one site.
type RateLimit struct {
	// Interval is the minimum spacing between requests (default 2s).
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`

	// Burst is the token bucket size (default 1).
	Burst int `json:"burst" yaml:"burst" mapstructure:"burst"`
}

// SiteProfile describes one tracker site. Profiles come from configuration
// and are only mutated by reauthentication.
type SiteProfile struct {
	// Name is the unique site identifier used in logs and errors.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// BaseURL is the site root (e.g. "https://tracker.example").
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Framework selects the adapter implementation.
	Framework Framework `json:"framework" yaml:"framework" mapstructure:"framework"`

	// Cookie is the raw Cookie header value for cookie-session sites.
	Cookie string `json:"cookie,omitempty" yaml:"cookie,omitempty" mapstructure:"cookie"`

	// APIKey is the API token for API-driven sites (Unit3D, Torznab, Gazelle).
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Passkey is appended to download links on sites that require it.
	Passkey string `json:"passkey,omitempty" yaml:"passkey,omitempty" mapstructure:"passkey"`

	// UserAgent overrides the default User-Agent for this site.
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent,omitempty" mapstructure:"user_agent"`

	// Enabled excludes the site from searches when false.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// RateLimit is this site's token bucket configuration.
	RateLimit RateLimit `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`

	// Timeout bounds a single search call against this site. Zero uses
	// the pipeline default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// AuthState reports the outcome of an adapter authentication check.
type AuthState struct {
	LoggedIn  bool      `json:"logged_in"`
	Username  string    `json:"username,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// RawSearchResult holds the unparsed fields scraped for one listing. It is
// owned by the adapter that produced it and lives for one search call.
type RawSearchResult struct {
	Site        string    `json:"site"`
	Title       string    `json:"title"`
	Subtitle    string    `json:"subtitle,omitempty"`
	DetailRef   string    `json:"detail_ref"`
	DownloadURL string    `json:"download_url"`
	SizeText    string    `json:"size_text"`
	Seeders     int       `json:"seeders"`
	Leechers    int       `json:"leechers"`
	Grabs       int       `json:"grabs,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Category    string    `json:"category,omitempty"`

	// Free marks a site-side download promotion.
	Free bool `json:"free,omitempty"`

	// HNR marks a hit-and-run seeding obligation shown by the site.
	HNR bool `json:"hnr,omitempty"`

	// InfoHash is set when the site exposes it in listings.
	InfoHash string `json:"info_hash,omitempty"`
}
