// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"errors"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pdiddy/ptengine/internal/site"
)

// SiteStats summarizes one site's search history in this process.
type SiteStats struct {
	Site       string        `json:"site"`
	Total      int           `json:"total"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	AvgLatency time.Duration `json:"avg_latency"`
	LastError  string        `json:"last_error,omitempty"`
	Disabled   bool          `json:"disabled"`

	totalLatency time.Duration
}

type metrics struct {
	searches *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// newMetrics builds the site collectors. A nil registerer leaves them
// unregistered, which keeps independent pipelines from colliding.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		searches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ptengine_site_searches_total",
			Help: "Site searches by outcome",
		}, []string{"site", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ptengine_site_search_duration_seconds",
			Help:    "Time spent in one site search, including reauthentication",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"site"}),
	}
}

// result labels a search outcome for metrics.
func result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, site.ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, site.ErrParse):
		return "parse_error"
	case errors.Is(err, site.ErrSiteUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func (p *Pipeline) record(name string, elapsed time.Duration, err error) {
	p.metrics.searches.WithLabelValues(name, result(err)).Inc()
	p.metrics.duration.WithLabelValues(name).Observe(elapsed.Seconds())

	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stats[name]
	if !ok {
		s = &SiteStats{Site: name}
		p.stats[name] = s
	}
	s.Total++
	s.totalLatency += elapsed
	s.AvgLatency = s.totalLatency / time.Duration(s.Total)
	if err != nil {
		s.Failed++
		s.LastError = err.Error()
		return
	}
	s.Succeeded++
}

// Stats returns a snapshot of per-site statistics sorted by site name.
func (p *Pipeline) Stats() []SiteStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SiteStats, 0, len(p.stats))
	for name, s := range p.stats {
		cp := *s
		_, cp.Disabled = p.disabled[name]
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Site < out[j].Site })
	return out
}
