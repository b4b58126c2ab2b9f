// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// TorrentRecord is the canonical, site-independent view of one release
// produced by the aggregation pipeline. At most one record per Fingerprint
// survives a search.
type TorrentRecord struct {
	// Fingerprint identifies the release across sites: a hash of the
	// normalized title and the size in bytes.
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`

	// Site names the site whose listing won the merge.
	Site string `json:"site" yaml:"site"`

	// Title is the raw listing title.
	Title string `json:"title" yaml:"title"`

	// Subtitle is the site's secondary description, often the localized
	// name of the release.
	Subtitle string `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`

	SizeBytes   int64     `json:"size_bytes" yaml:"size_bytes"`
	Seeders     int       `json:"seeders" yaml:"seeders"`
	Leechers    int       `json:"leechers" yaml:"leechers"`
	PublishedAt time.Time `json:"published_at" yaml:"published_at"`
	DownloadURL string    `json:"download_url" yaml:"download_url"`
	DetailRef   string    `json:"detail_ref,omitempty" yaml:"detail_ref,omitempty"`
	Category    string    `json:"category,omitempty" yaml:"category,omitempty"`
	Free        bool      `json:"free,omitempty" yaml:"free,omitempty"`

	// HNR marks a release that carries a hit-and-run seeding obligation.
	HNR bool `json:"hnr,omitempty" yaml:"hnr,omitempty"`

	Metadata ReleaseMetadata `json:"metadata" yaml:"metadata"`

	// Decision is the rule engine outcome for this record.
	Decision Decision `json:"decision" yaml:"decision"`

	// Rule names the matched rule, empty when the default policy decided.
	Rule string `json:"rule,omitempty" yaml:"rule,omitempty"`

	// Priority is the matched rule's priority, used for ranking.
	Priority int `json:"priority" yaml:"priority"`

	// Boost is the preferred-group ranking boost. It never gates.
	Boost int `json:"boost,omitempty" yaml:"boost,omitempty"`

	// Notify is set when the matched rule's action is notify-only.
	Notify bool `json:"notify,omitempty" yaml:"notify,omitempty"`
}
