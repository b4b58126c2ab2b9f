// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ptengine/internal/site"
	"github.com/pdiddy/ptengine/pkg/types"
)

// --- mock adapter ---

type mockAdapter struct {
	name     string
	search   func(ctx context.Context, q site.Query) ([]types.RawSearchResult, error)
	authErr  error
	searches atomic.Int32
	auths    atomic.Int32
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Search(ctx context.Context, q site.Query) ([]types.RawSearchResult, error) {
	m.searches.Add(1)
	return m.search(ctx, q)
}

func (m *mockAdapter) FetchDetail(context.Context, string) (types.RawSearchResult, error) {
	return types.RawSearchResult{}, site.ErrUnsupported
}

func (m *mockAdapter) Authenticate(context.Context) (types.AuthState, error) {
	m.auths.Add(1)
	if m.authErr != nil {
		return types.AuthState{}, m.authErr
	}
	return types.AuthState{LoggedIn: true}, nil
}

func returning(results ...types.RawSearchResult) func(context.Context, site.Query) ([]types.RawSearchResult, error) {
	return func(context.Context, site.Query) ([]types.RawSearchResult, error) { return results, nil }
}

func failing(err error) func(context.Context, site.Query) ([]types.RawSearchResult, error) {
	return func(context.Context, site.Query) ([]types.RawSearchResult, error) { return nil, err }
}

func raw(siteName, title, size string, seeders int) types.RawSearchResult {
	return types.RawSearchResult{
		Site:        siteName,
		Title:       title,
		SizeText:    size,
		Seeders:     seeders,
		DownloadURL: "https://" + siteName + "/dl",
		PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testCfg() types.SearchConfig {
	return types.SearchConfig{MaxParallel: 4, SiteTimeout: time.Second}
}

var query = site.Query{Keyword: "avengers"}

const avengers = "Avengers.Endgame.2019.2160p.UHD.BluRay.x264-GROUPX"

// --- Search ---

func TestSearchRejectsUnusableRequests(t *testing.T) {
	p := New([]site.Adapter{&mockAdapter{name: "a", search: returning()}}, testCfg())
	_, err := p.Search(context.Background(), site.Query{Keyword: " "})
	assert.ErrorContains(t, err, "query is empty")

	_, err = New(nil, testCfg()).Search(context.Background(), query)
	assert.ErrorContains(t, err, "no sites configured")
}

func TestPartialFailure(t *testing.T) {
	adapters := []site.Adapter{
		&mockAdapter{name: "alpha", search: returning(raw("alpha", "Movie.One.2020.1080p.BluRay.x264-AAA", "8 GB", 10))},
		&mockAdapter{name: "beta", search: failing(site.ErrSiteUnavailable)},
		&mockAdapter{name: "gamma", search: returning(raw("gamma", "Movie.Two.2021.1080p.WEB-DL.H.264-BBB", "4 GB", 20))},
		&mockAdapter{name: "delta", search: failing(site.ErrParse)},
	}
	out, err := New(adapters, testCfg()).Search(context.Background(), query)
	require.NoError(t, err)
	assert.Len(t, out.Records, 2)
	require.Len(t, out.Errors, 2)
	assert.Equal(t, "beta", out.Errors[0].Site)
	assert.ErrorIs(t, out.Errors[0], site.ErrSiteUnavailable)
	assert.Equal(t, "delta", out.Errors[1].Site)
	assert.ErrorIs(t, out.Errors[1], site.ErrParse)
}

func TestMergeKeepsMostSeeded(t *testing.T) {
	adapters := []site.Adapter{
		&mockAdapter{name: "alpha", search: returning(raw("alpha", avengers, "20.1GB", 12))},
		&mockAdapter{name: "beta", search: returning(raw("beta", avengers, "20.1 GB", 30))},
	}
	out, err := New(adapters, testCfg()).Search(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	assert.Equal(t, 30, out.Records[0].Seeders)
	assert.Equal(t, "beta", out.Records[0].Site)
	assert.Equal(t, 1, out.DupsRemoved)
	assert.Equal(t, "2160p", out.Records[0].Metadata.Resolution)
}

func TestDedupInvariant(t *testing.T) {
	titles := []string{avengers, "The.Bear.S03E01.1080p.WEB.H264-SuccessfulCrab", "Dune.2021.2160p.WEB-DL.DDP5.1.H.265-FLUX"}
	var adapters []site.Adapter
	for _, name := range []string{"a", "b", "c", "d"} {
		var results []types.RawSearchResult
		for i, title := range titles {
			results = append(results, raw(name, title, "10 GB", i))
		}
		adapters = append(adapters, &mockAdapter{name: name, search: returning(results...)})
	}

	out, err := New(adapters, testCfg()).Search(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, out.Records, len(titles))
	assert.Equal(t, 9, out.DupsRemoved)

	seen := map[string]bool{}
	for _, r := range out.Records {
		assert.False(t, seen[r.Fingerprint], "fingerprint %s appears twice", r.Fingerprint)
		seen[r.Fingerprint] = true
		assert.Equal(t, "a", r.Site, "full tie keeps the smallest site name")
	}
}

func TestSameTitleDifferentSizeIsNotMerged(t *testing.T) {
	adapters := []site.Adapter{
		&mockAdapter{name: "alpha", search: returning(raw("alpha", avengers, "20 GB", 1))},
		&mockAdapter{name: "beta", search: returning(raw("beta", avengers, "60 GB", 1))},
	}
	out, err := New(adapters, testCfg()).Search(context.Background(), query)
	require.NoError(t, err)
	assert.Len(t, out.Records, 2)
	assert.Zero(t, out.DupsRemoved)
}

func TestReplaces(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	rec := func(site string, seeders int, at time.Time) types.TorrentRecord {
		return types.TorrentRecord{Site: site, Seeders: seeders, PublishedAt: at}
	}

	tests := []struct {
		name     string
		incoming types.TorrentRecord
		current  types.TorrentRecord
		margin   int
		want     bool
	}{
		{"more seeders", rec("b", 11, late), rec("a", 10, early), 0, true},
		{"fewer seeders", rec("b", 9, early), rec("a", 10, late), 0, false},
		{"within margin", rec("b", 12, early), rec("a", 10, late), 2, false},
		{"beyond margin", rec("b", 13, late), rec("a", 10, early), 2, true},
		{"tie earlier publish", rec("b", 10, early), rec("a", 10, late), 0, true},
		{"tie later publish", rec("b", 10, late), rec("a", 10, early), 0, false},
		{"tie unknown publish", rec("b", 10, time.Time{}), rec("a", 10, early), 0, false},
		{"tie known beats unknown", rec("b", 10, early), rec("a", 10, time.Time{}), 0, true},
		{"full tie smaller site", rec("a", 10, early), rec("b", 10, early), 0, true},
		{"full tie larger site", rec("c", 10, early), rec("b", 10, early), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, replaces(tt.incoming, tt.current, tt.margin))
		})
	}
}

func TestAuthExpiredDisablesSite(t *testing.T) {
	expired := &mockAdapter{name: "expired", search: failing(site.ErrAuthExpired), authErr: site.ErrAuthExpired}
	healthy := &mockAdapter{name: "healthy", search: returning(raw("healthy", avengers, "20 GB", 5))}
	p := New([]site.Adapter{expired, healthy}, testCfg())

	out, err := p.Search(context.Background(), query)
	require.NoError(t, err)
	assert.Len(t, out.Records, 1)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "expired", out.Errors[0].Site)
	assert.ErrorIs(t, out.Errors[0], site.ErrAuthExpired)
	assert.Equal(t, int32(1), expired.auths.Load(), "exactly one reauthentication")
	assert.Equal(t, int32(1), expired.searches.Load())
	assert.Equal(t, []string{"expired"}, p.Disabled())

	out, err = p.Search(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, out.Errors, 1)
	assert.ErrorIs(t, out.Errors[0], ErrSiteDisabled)
	assert.Equal(t, int32(1), expired.searches.Load(), "disabled site is not queried")

	assert.True(t, p.Enable("expired"))
	assert.False(t, p.Enable("expired"))
	_, err = p.Search(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, int32(2), expired.searches.Load())
}

func TestAuthExpiredRetrySucceeds(t *testing.T) {
	var calls atomic.Int32
	a := &mockAdapter{name: "flaky", search: func(context.Context, site.Query) ([]types.RawSearchResult, error) {
		if calls.Add(1) == 1 {
			return nil, site.ErrAuthExpired
		}
		return []types.RawSearchResult{raw("flaky", avengers, "20 GB", 5)}, nil
	}}
	p := New([]site.Adapter{a}, testCfg())

	out, err := p.Search(context.Background(), query)
	require.NoError(t, err)
	assert.Empty(t, out.Errors)
	assert.Len(t, out.Records, 1)
	assert.Equal(t, int32(1), a.auths.Load())
	assert.Empty(t, p.Disabled())
}

func TestAuthExpiredTwiceDisables(t *testing.T) {
	a := &mockAdapter{name: "stale", search: failing(site.ErrAuthExpired)}
	p := New([]site.Adapter{a}, testCfg())

	out, err := p.Search(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, int32(2), a.searches.Load())
	assert.Equal(t, int32(1), a.auths.Load())
	assert.Equal(t, []string{"stale"}, p.Disabled())
}

func blocking(ctx context.Context, _ site.Query) ([]types.RawSearchResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSiteTimeoutIsIsolated(t *testing.T) {
	cfg := testCfg()
	cfg.SiteTimeout = 20 * time.Millisecond
	adapters := []site.Adapter{
		&mockAdapter{name: "slow", search: blocking},
		&mockAdapter{name: "fast", search: returning(raw("fast", avengers, "20 GB", 5))},
	}
	out, err := New(adapters, cfg).Search(context.Background(), query)
	require.NoError(t, err)
	assert.Len(t, out.Records, 1)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "slow", out.Errors[0].Site)
	assert.ErrorIs(t, out.Errors[0], site.ErrSiteUnavailable)
}

func TestCancellationKeepsGatheredResults(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stuck := func(context.Context, site.Query) ([]types.RawSearchResult, error) {
		<-release
		return nil, nil
	}
	adapters := []site.Adapter{
		&mockAdapter{name: "stuck", search: stuck},
		&mockAdapter{name: "fast", search: returning(raw("fast", avengers, "20 GB", 5))},
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	out, err := New(adapters, testCfg()).Search(ctx, query)
	require.NoError(t, err)
	assert.Len(t, out.Records, 1)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "stuck", out.Errors[0].Site)
	assert.ErrorIs(t, out.Errors[0], context.Canceled)
}

func TestMaxParallelBoundsFanOut(t *testing.T) {
	var running, peak atomic.Int32
	search := func(context.Context, site.Query) ([]types.RawSearchResult, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	}
	var adapters []site.Adapter
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		adapters = append(adapters, &mockAdapter{name: name, search: search})
	}
	cfg := testCfg()
	cfg.MaxParallel = 2

	_, err := New(adapters, cfg).Search(context.Background(), query)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestMalformedListingIsSkipped(t *testing.T) {
	adapters := []site.Adapter{&mockAdapter{name: "a", search: returning(
		raw("a", avengers, "huge", 5),
		raw("a", "", "1 GB", 5),
		raw("a", "Movie.Two.2021.1080p.WEB-DL.H.264-BBB", "4 GB", 20),
	)}}
	out, err := New(adapters, testCfg()).Search(context.Background(), query)
	require.NoError(t, err)
	assert.Len(t, out.Records, 1)
	assert.Equal(t, 2, out.Skipped)
	assert.Empty(t, out.Errors)
}

func TestRulesFilterAndRank(t *testing.T) {
	adapters := []site.Adapter{&mockAdapter{name: "a", search: returning(
		raw("a", avengers, "20 GB", 3),
		raw("a", "Movie.Two.2021.1080p.WEB-DL.H.264-BBB", "10 GB", 8),
		raw("a", "Movie.Three.2022.720p.HDTV.x264-CCC", "2 GB", 50),
		raw("a", "Movie.Four.2022.CAM.x264-DDD", "1 GB", 500),
	)}}
	ruleSet := []types.Rule{
		{Name: "no-cam", Action: types.ActionReject, Priority: 100,
			Constraints: types.Constraints{DenyQualities: []string{"CAM"}}},
		{Name: "hd", Action: types.ActionAccept, Priority: 10,
			Constraints: types.Constraints{AllowQualities: []string{"1080p", "2160p"}, MinSeeders: 5, MaxSize: types.ByteSize(15 << 30)}},
		{Name: "watch", Action: types.ActionNotify, Priority: 1,
			Constraints: types.Constraints{Include: []string{"movie three"}}},
	}

	p := New(adapters, testCfg(), WithRules(ruleSet, types.RejectByDefault))
	out, err := p.Search(context.Background(), query)
	require.NoError(t, err)

	require.Len(t, out.Records, 2)
	assert.Equal(t, "hd", out.Records[0].Rule)
	assert.Equal(t, 10, out.Records[0].Priority)
	assert.Equal(t, "watch", out.Records[1].Rule)
	assert.True(t, out.Records[1].Notify)
	assert.Equal(t, 2, out.Rejected, "cam rejected by rule, 20GB/3-seeder fails hd bounds")
}

func TestFreeListingIsTagged(t *testing.T) {
	free := raw("a", avengers, "20 GB", 5)
	free.Free = true
	out, err := New([]site.Adapter{&mockAdapter{name: "a", search: returning(free)}}, testCfg()).
		Search(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	assert.True(t, out.Records[0].Metadata.HasTag("free"))
	assert.True(t, out.Records[0].Free)
}

func TestHitAndRunListingIsFlagged(t *testing.T) {
	badged := raw("a", avengers, "20 GB", 5)
	badged.HNR = true
	subtitled := raw("a", "Show.S01.1080p.WEB-DL.H264-TEAM", "8 GB", 5)
	subtitled.Subtitle = "第一季 考核72小时"
	clean := raw("a", "Movie.Two.2021.1080p.WEB-DL.H.264-BBB", "10 GB", 5)

	out, err := New([]site.Adapter{&mockAdapter{name: "a", search: returning(badged, subtitled, clean)}}, testCfg()).
		Search(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, out.Records, 3)

	flagged := map[string]bool{}
	for _, rec := range out.Records {
		flagged[rec.Title] = rec.HNR
	}
	assert.True(t, flagged[avengers])
	assert.True(t, flagged["Show.S01.1080p.WEB-DL.H264-TEAM"])
	assert.False(t, flagged["Movie.Two.2021.1080p.WEB-DL.H.264-BBB"])
	for _, rec := range out.Records {
		if rec.Title == "Show.S01.1080p.WEB-DL.H264-TEAM" {
			assert.Equal(t, "第一季 考核72小时", rec.Subtitle)
		}
	}
}

func TestMaxResultsTruncates(t *testing.T) {
	adapters := []site.Adapter{&mockAdapter{name: "a", search: returning(
		raw("a", "One.2020.1080p.BluRay.x264-A", "1 GB", 1),
		raw("a", "Two.2020.1080p.BluRay.x264-A", "1 GB", 2),
		raw("a", "Three.2020.1080p.BluRay.x264-A", "1 GB", 3),
	)}}
	cfg := testCfg()
	cfg.MaxResults = 2
	out, err := New(adapters, cfg).Search(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, out.Records, 2)
	assert.Equal(t, 3, out.Records[0].Seeders)
}

// --- Ranking ---

func TestRank(t *testing.T) {
	now := time.Now()
	records := []types.TorrentRecord{
		{Fingerprint: "e", Priority: 0, Seeders: 100},
		{Fingerprint: "d", Priority: 5, Seeders: 1, PublishedAt: now},
		{Fingerprint: "c", Priority: 5, Seeders: 1, PublishedAt: now.Add(time.Hour)},
		{Fingerprint: "b", Priority: 5, Seeders: 2, Boost: 0},
		{Fingerprint: "a", Priority: 5, Seeders: 1, Boost: 5},
		{Fingerprint: "f", Priority: 5, Seeders: 1, PublishedAt: now},
	}
	Rank(records)
	var order []string
	for _, r := range records {
		order = append(order, r.Fingerprint)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "f", "e"}, order)
}

// --- Fingerprint ---

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("Show.S01E01.1080p-GRP", 1<<30)
	assert.Equal(t, fp, Fingerprint("show s01e01 1080p grp", 1<<30))
	assert.Equal(t, fp, Fingerprint("  SHOW_S01E01 1080p [GRP] ", 1<<30))
	assert.NotEqual(t, fp, Fingerprint("Show.S01E02.1080p-GRP", 1<<30))
	assert.NotEqual(t, fp, Fingerprint("Show.S01E01.1080p-GRP", 1<<30+1))
	assert.NotEmpty(t, Fingerprint("", 0))
}

// --- Stats and metrics ---

func TestStatsAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	adapters := []site.Adapter{
		&mockAdapter{name: "ok", search: returning(raw("ok", avengers, "20 GB", 5))},
		&mockAdapter{name: "down", search: failing(site.ErrSiteUnavailable)},
	}
	p := New(adapters, testCfg(), WithRegisterer(reg))
	for i := 0; i < 2; i++ {
		_, err := p.Search(context.Background(), query)
		require.NoError(t, err)
	}

	stats := p.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "down", stats[0].Site)
	assert.Equal(t, 2, stats[0].Total)
	assert.Equal(t, 2, stats[0].Failed)
	assert.Equal(t, "site unavailable", stats[0].LastError)
	assert.Equal(t, "ok", stats[1].Site)
	assert.Equal(t, 2, stats[1].Succeeded)
	assert.False(t, stats[1].Disabled)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.searches.WithLabelValues("ok", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.searches.WithLabelValues("down", "unavailable")))
	count, err := testutil.GatherAndCount(reg, "ptengine_site_searches_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestConcurrentSearches(t *testing.T) {
	adapters := []site.Adapter{
		&mockAdapter{name: "a", search: returning(raw("a", avengers, "20 GB", 5))},
		&mockAdapter{name: "b", search: returning(raw("b", avengers, "20 GB", 9))},
	}
	p := New(adapters, testCfg())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.Search(context.Background(), query)
			assert.NoError(t, err)
			assert.Len(t, out.Records, 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, p.Stats()[0].Total)
}

// --- Output formats ---

func TestFormatTable(t *testing.T) {
	out := Output{
		Records: []types.TorrentRecord{{
			Title: avengers, Site: "alpha", SizeBytes: 20 << 30, Seeders: 5, Rule: "hd", Notify: true,
			Metadata: types.ReleaseMetadata{Resolution: "2160p", Source: "BluRay", ReleaseGroup: "GROUPX"},
		}},
		DupsRemoved: 1,
		Errors:      []SiteError{{Site: "beta", Err: site.ErrSiteUnavailable}},
	}
	var buf bytes.Buffer
	FormatTable(out, &buf)
	s := buf.String()
	assert.Contains(t, s, "Avengers")
	assert.Contains(t, s, "20 GiB")
	assert.Contains(t, s, "hd (notify)")
	assert.Contains(t, s, "1 results (1 duplicates removed)")
	assert.Contains(t, s, "warning: beta: site unavailable")

	buf.Reset()
	FormatTable(Output{}, &buf)
	assert.Contains(t, buf.String(), "No results found.")
}

func TestFormatJSON(t *testing.T) {
	out := Output{Records: []types.TorrentRecord{{Title: avengers, Fingerprint: "abc"}}}
	var buf bytes.Buffer
	require.NoError(t, FormatJSON(out, &buf))

	var decoded []types.TorrentRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "abc", decoded[0].Fingerprint)
}

func TestSiteErrorUnwraps(t *testing.T) {
	err := error(SiteError{Site: "a", Err: site.ErrAuthExpired})
	assert.True(t, errors.Is(err, site.ErrAuthExpired))
	assert.Equal(t, "a: authentication expired", err.Error())
}
