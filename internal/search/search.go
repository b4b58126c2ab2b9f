// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search aggregates listings from many tracker sites into one
// ranked, deduplicated list of torrent records. Sites are queried
// concurrently with per-site timeouts; a failing site never fails the
// whole search.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/ptengine/internal/recognize"
	"github.com/pdiddy/ptengine/internal/rules"
	"github.com/pdiddy/ptengine/internal/site"
	"github.com/pdiddy/ptengine/pkg/types"
)

const (
	defaultMaxParallel = 4
	defaultSiteTimeout = 30 * time.Second
)

// ErrSiteDisabled is reported for sites disabled after a failed
// reauthentication. Enable clears it.
var ErrSiteDisabled = errors.New("site disabled until credentials are refreshed")

// Recognizer maps a raw title to release metadata.
type Recognizer interface {
	Recognize(title string) types.ReleaseMetadata
}

// SiteError reports one site's failure within a search.
type SiteError struct {
	Site string
	Err  error
}

func (e SiteError) Error() string { return e.Site + ": " + e.Err.Error() }

func (e SiteError) Unwrap() error { return e.Err }

// Output holds the ranked records and what happened on the way.
type Output struct {
	Records []types.TorrentRecord `json:"records"`
	Errors  []SiteError           `json:"-"`

	// DupsRemoved counts listings folded into an existing fingerprint.
	DupsRemoved int `json:"dups_removed"`

	// Rejected counts records dropped by rules.
	Rejected int `json:"rejected"`

	// Skipped counts listings that could not be turned into records.
	Skipped int `json:"skipped"`
}

// Pipeline runs searches across a fixed set of site adapters.
type Pipeline struct {
	adapters   []site.Adapter
	cfg        types.SearchConfig
	recognizer Recognizer
	log        zerolog.Logger
	metrics    *metrics

	mu       sync.Mutex
	rules    []types.Rule
	policy   types.DefaultPolicy
	disabled map[string]error
	stats    map[string]*SiteStats
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRules sets the rule set and default policy used to filter and rank.
// Without it every record is accepted.
func WithRules(rs []types.Rule, policy types.DefaultPolicy) Option {
	return func(p *Pipeline) { p.SetRules(rs, policy) }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithRecognizer replaces the default recognition engine.
func WithRecognizer(r Recognizer) Option {
	return func(p *Pipeline) { p.recognizer = r }
}

// WithRegisterer registers the per-site metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Pipeline) { p.metrics = newMetrics(reg) }
}

// New returns a pipeline over adapters.
func New(adapters []site.Adapter, cfg types.SearchConfig, opts ...Option) *Pipeline {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = defaultMaxParallel
	}
	if cfg.SiteTimeout <= 0 {
		cfg.SiteTimeout = defaultSiteTimeout
	}
	p := &Pipeline{
		adapters: adapters,
		cfg:      cfg,
		log:      zerolog.Nop(),
		policy:   types.AcceptByDefault,
		disabled: make(map[string]error),
		stats:    make(map[string]*SiteStats),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.recognizer == nil {
		p.recognizer = recognize.New(recognize.Options{Threshold: cfg.ReviewThreshold})
	}
	if p.metrics == nil {
		p.metrics = newMetrics(nil)
	}
	for _, a := range adapters {
		p.stats[a.Name()] = &SiteStats{Site: a.Name()}
	}
	return p
}

// SetRules swaps the rule set for subsequent searches.
func (p *Pipeline) SetRules(rs []types.Rule, policy types.DefaultPolicy) {
	if policy == "" {
		policy = types.RejectByDefault
	}
	sorted := rules.Sorted(rs)
	p.mu.Lock()
	p.rules, p.policy = sorted, policy
	p.mu.Unlock()
}

// Disabled returns the names of disabled sites in sorted order.
func (p *Pipeline) Disabled() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.disabled))
	for name := range p.disabled {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Enable re-enables a site disabled after failed reauthentication. It
// reports whether the site was disabled.
func (p *Pipeline) Enable(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.disabled[name]
	delete(p.disabled, name)
	return ok
}

type siteResult struct {
	site    string
	results []types.RawSearchResult
	err     error
}

// Search fans the query out to every enabled site, merges the listings by
// fingerprint, applies the rules, and ranks the survivors. Site failures
// are returned in Output.Errors; the error return is reserved for a
// request that cannot run at all.
func (p *Pipeline) Search(ctx context.Context, q site.Query) (Output, error) {
	if q.IsEmpty() {
		return Output{}, fmt.Errorf("query is empty: provide a keyword")
	}
	if len(p.adapters) == 0 {
		return Output{}, fmt.Errorf("no sites configured")
	}

	var out Output
	var active []site.Adapter
	p.mu.Lock()
	for _, a := range p.adapters {
		if err, ok := p.disabled[a.Name()]; ok {
			out.Errors = append(out.Errors, SiteError{Site: a.Name(), Err: fmt.Errorf("%w: %w", ErrSiteDisabled, err)})
			continue
		}
		active = append(active, a)
	}
	ruleSet, policy := p.rules, p.policy
	p.mu.Unlock()

	ch := make(chan siteResult, len(active))
	pending := make(map[string]bool, len(active))
	for _, a := range active {
		pending[a.Name()] = true
	}

	go func() {
		var g errgroup.Group
		g.SetLimit(p.cfg.MaxParallel)
		for _, a := range active {
			g.Go(func() error {
				ch <- p.searchSite(ctx, a, q)
				return nil
			})
		}
		g.Wait()
		close(ch)
	}()

	// This goroutine is the only writer of the merge state.
	m := newMerger(p.cfg.SeederMargin)
	collect := func(r siteResult) {
		delete(pending, r.site)
		if r.err != nil {
			out.Errors = append(out.Errors, SiteError{Site: r.site, Err: r.err})
			p.log.Warn().Str("site", r.site).Err(r.err).Msg("site search failed")
			return
		}
		for _, raw := range r.results {
			rec, err := p.toRecord(raw)
			if err != nil {
				out.Skipped++
				p.log.Warn().Str("site", r.site).Str("title", raw.Title).Err(err).Msg("listing skipped")
				continue
			}
			m.add(rec)
		}
	}

loop:
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				break loop
			}
			collect(r)
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case r, ok := <-ch:
					if !ok {
						drained = true
						continue
					}
					collect(r)
				default:
					drained = true
				}
			}
			for name := range pending {
				out.Errors = append(out.Errors, SiteError{Site: name, Err: ctx.Err()})
			}
			break loop
		}
	}

	out.DupsRemoved = m.dups
	for _, rec := range m.records {
		res := rules.Evaluate(rec, ruleSet, policy)
		if res.Decision == types.DecisionReject {
			out.Rejected++
			continue
		}
		if res.Rule == nil {
			if failed := rules.HardFailure(rec, ruleSet); failed != nil {
				out.Rejected++
				p.log.Debug().Str("fingerprint", rec.Fingerprint).Str("rule", failed.Name).Msg("hard constraint failed")
				continue
			}
		} else {
			rec.Rule = res.Rule.Name
			rec.Priority = res.Rule.Priority
		}
		rec.Decision = res.Decision
		rec.Boost = res.Boost
		rec.Notify = res.Notify
		out.Records = append(out.Records, rec)
	}

	Rank(out.Records)
	if p.cfg.MaxResults > 0 && len(out.Records) > p.cfg.MaxResults {
		out.Records = out.Records[:p.cfg.MaxResults]
	}
	sort.Slice(out.Errors, func(i, j int) bool { return out.Errors[i].Site < out.Errors[j].Site })

	p.log.Info().
		Str("query", q.Keyword).
		Int("records", len(out.Records)).
		Int("dups_removed", out.DupsRemoved).
		Int("rejected", out.Rejected).
		Int("site_errors", len(out.Errors)).
		Msg("search finished")
	return out, nil
}

// searchSite runs one site's search under its own timeout. An expired
// session gets exactly one reauthentication and one retry; if either
// fails the site is disabled.
func (p *Pipeline) searchSite(ctx context.Context, a site.Adapter, q site.Query) siteResult {
	name := a.Name()
	res := siteResult{site: name}
	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, p.cfg.SiteTimeout)
	defer cancel()

	results, err := a.Search(sctx, q)
	if errors.Is(err, site.ErrAuthExpired) {
		log := p.log.With().Str("site", name).Logger()
		log.Warn().Err(err).Msg("session expired, reauthenticating")
		if _, aerr := a.Authenticate(sctx); aerr != nil {
			err = fmt.Errorf("%w; reauthentication failed: %v", err, aerr)
		} else {
			results, err = a.Search(sctx, q)
		}
		if errors.Is(err, site.ErrAuthExpired) {
			p.disable(name, err)
			log.Error().Err(err).Msg("site disabled")
		}
	}
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, site.ErrSiteUnavailable) {
		err = fmt.Errorf("%w: no response within %s", site.ErrSiteUnavailable, p.cfg.SiteTimeout)
	}

	p.record(name, time.Since(start), err)
	res.results, res.err = results, err
	return res
}

func (p *Pipeline) disable(name string, err error) {
	p.mu.Lock()
	p.disabled[name] = err
	p.mu.Unlock()
}

// toRecord builds the canonical record for one listing.
func (p *Pipeline) toRecord(raw types.RawSearchResult) (types.TorrentRecord, error) {
	if strings.TrimSpace(raw.Title) == "" {
		return types.TorrentRecord{}, fmt.Errorf("%w: listing has no title", site.ErrParse)
	}
	size, err := types.ParseSize(raw.SizeText)
	if err != nil {
		return types.TorrentRecord{}, fmt.Errorf("%w: %v", site.ErrParse, err)
	}
	meta := p.recognizer.Recognize(raw.Title)
	if raw.Free {
		meta.Tags = addTag(meta.Tags, "free")
	}
	return types.TorrentRecord{
		Fingerprint: Fingerprint(raw.Title, size),
		Site:        raw.Site,
		Title:       raw.Title,
		Subtitle:    raw.Subtitle,
		SizeBytes:   size,
		Seeders:     raw.Seeders,
		Leechers:    raw.Leechers,
		PublishedAt: raw.PublishedAt,
		DownloadURL: raw.DownloadURL,
		DetailRef:   raw.DetailRef,
		Category:    raw.Category,
		Free:        raw.Free,
		HNR:         raw.HNR || site.LooksHitAndRun(raw.Title, raw.Subtitle),
		Metadata:    meta,
	}, nil
}

func addTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	out := append(tags[:len(tags):len(tags)], tag)
	sort.Strings(out)
	return out
}

// Rank orders records by rule priority, then seeders plus group boost,
// then newest first, with the fingerprint as the final tie-break.
func Rank(records []types.TorrentRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if sa, sb := a.Seeders+a.Boost, b.Seeders+b.Boost; sa != sb {
			return sa > sb
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.Fingerprint < b.Fingerprint
	})
}
