// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// MediaType distinguishes episodic releases from movies.
type MediaType string

const (
	MediaMovie MediaType = "movie"
	MediaTV    MediaType = "tv"
)

// EpisodeRange is an inclusive episode span. Single episodes have Start == End.
type EpisodeRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Contains reports whether ep falls inside the range.
func (r EpisodeRange) Contains(ep int) bool {
	return ep >= r.Start && ep <= r.End
}

// ReleaseMetadata is the structured view of a release title. It is a pure
// function of the raw title: the same title always yields an equal value.
type ReleaseMetadata struct {
	// Title is the primary title with dots and underscores normalized to spaces.
	Title string `json:"title" yaml:"title"`

	// Year is the release year, or 0 when absent.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// Season is nil for releases without a season marker.
	Season *int `json:"season,omitempty" yaml:"season,omitempty"`

	// Episodes is nil for season packs and movies.
	Episodes *EpisodeRange `json:"episodes,omitempty" yaml:"episodes,omitempty"`

	Resolution   string `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	VideoCodec   string `json:"video_codec,omitempty" yaml:"video_codec,omitempty"`
	AudioCodec   string `json:"audio_codec,omitempty" yaml:"audio_codec,omitempty"`
	Source       string `json:"source,omitempty" yaml:"source,omitempty"`
	ReleaseGroup string `json:"release_group,omitempty" yaml:"release_group,omitempty"`

	// Tags holds special markers (HDR, REMUX, PROPER, ...) sorted ascending.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Languages holds language codes sorted ascending.
	Languages []string `json:"languages,omitempty" yaml:"languages,omitempty"`

	MediaType MediaType `json:"media_type" yaml:"media_type"`

	// Confidence is the summed weight of successful extractions in [0, 1].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// NeedsReview is set when Confidence fell below the engine threshold.
	NeedsReview bool `json:"needs_review,omitempty" yaml:"needs_review,omitempty"`
}

// HasTag reports whether tag is present.
func (m ReleaseMetadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
