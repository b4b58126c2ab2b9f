// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package recognize derives structured release metadata from free-text
// release titles. Recognition is a pure function of the title: an ordered
// chain of extractors runs over an immutable span state, each consuming the
// text it matched so lower-precedence extractors never see it. Recognition
// never fails; unrecognized titles degrade to low confidence.
package recognize

import (
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"

	"github.com/pdiddy/ptengine/pkg/types"
)

const (
	// DefaultThreshold is the confidence below which NeedsReview is set.
	DefaultThreshold = 0.5

	// DefaultCacheTTL is how long a recognized title stays memoized.
	DefaultCacheTTL = 30 * time.Minute
)

// Options configures an Engine.
type Options struct {
	// Threshold overrides DefaultThreshold when positive.
	Threshold float64

	// CacheTTL overrides DefaultCacheTTL when positive.
	CacheTTL time.Duration

	// KnownGroups extends the built-in release group list.
	KnownGroups []string
}

// Engine recognizes release titles. It is safe for concurrent use.
type Engine struct {
	threshold float64
	groups    []string
	chain     []extractor
	cache     *ttlcache.Cache[string, types.ReleaseMetadata]
}

// New returns an Engine with the built-in extractor chain.
func New(opts Options) *Engine {
	e := &Engine{threshold: DefaultThreshold}
	if opts.Threshold > 0 {
		e.threshold = opts.Threshold
	}
	ttl := DefaultCacheTTL
	if opts.CacheTTL > 0 {
		ttl = opts.CacheTTL
	}
	e.cache = ttlcache.New(ttlcache.Options[string, types.ReleaseMetadata]{}.SetDefaultTTL(ttl))

	e.groups = append(slices.Clone(knownGroups), opts.KnownGroups...)
	// Longest first so HDChina wins over HDC at the same position.
	slices.SortStableFunc(e.groups, func(a, b string) int { return len(b) - len(a) })

	e.chain = []extractor{
		{"resolution", 0.15, extractResolution},
		{"source", 0.10, extractSource},
		{"video_codec", 0.10, extractVideoCodec},
		{"audio_codec", 0.05, extractAudioCodec},
		{"release_group", 0.10, e.extractGroup},
		{"season_episode", 0.10, extractSeasonEpisode},
		{"tags", 0.025, extractTags},
		{"language", 0.025, extractLanguages},
		{"year", 0.15, extractYear},
		{"title", 0.20, extractTitle},
	}
	return e
}

// Threshold returns the review threshold in use.
func (e *Engine) Threshold() float64 { return e.threshold }

// Recognize returns the metadata for title. Results are memoized by the
// raw title; callers receive their own copy.
func (e *Engine) Recognize(title string) types.ReleaseMetadata {
	if m, ok := e.cache.Get(title); ok {
		return clone(m)
	}
	m := e.recognize(title)
	e.cache.Set(title, m, ttlcache.DefaultTTL)
	return clone(m)
}

var extensionRE = regexp.MustCompile(`(?i)\.(mkv|mp4|avi|ts|m2ts|iso|rmvb|torrent)$`)

func (e *Engine) recognize(title string) types.ReleaseMetadata {
	s := state{text: extensionRE.ReplaceAllString(strings.TrimSpace(title), "")}
	for _, x := range e.chain {
		next, ok := x.run(s)
		if !ok {
			continue
		}
		s = next
		s.score += x.weight
	}

	m := s.meta
	m.MediaType = types.MediaMovie
	if m.Season != nil || m.Episodes != nil {
		m.MediaType = types.MediaTV
	}
	m.Confidence = math.Round(math.Min(s.score, 1)*1000) / 1000
	m.NeedsReview = m.Confidence < e.threshold
	return m
}

func clone(m types.ReleaseMetadata) types.ReleaseMetadata {
	if m.Season != nil {
		season := *m.Season
		m.Season = &season
	}
	if m.Episodes != nil {
		eps := *m.Episodes
		m.Episodes = &eps
	}
	m.Tags = slices.Clone(m.Tags)
	m.Languages = slices.Clone(m.Languages)
	return m
}
