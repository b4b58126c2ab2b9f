// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/pdiddy/ptengine/pkg/types"
)

// Fingerprint identifies a release across sites. It hashes the normalized
// title together with the size in bytes and never fails.
func Fingerprint(title string, size int64) string {
	key := normalizeTitle(title) + "|" + strconv.FormatInt(size, 10)
	return strconv.FormatUint(xxhash.Sum64String(key), 16)
}

// normalizeTitle lowercases the title and collapses every run of
// separators and punctuation into one space, so "Show.S01E01-GRP" and
// "show s01e01 grp" normalize alike.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteRune(' ')
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// merger folds records into one per fingerprint. It is owned by a single
// goroutine.
type merger struct {
	margin  int
	index   map[string]int
	records []types.TorrentRecord
	dups    int
}

func newMerger(margin int) *merger {
	return &merger{margin: margin, index: make(map[string]int)}
}

func (m *merger) add(rec types.TorrentRecord) {
	i, ok := m.index[rec.Fingerprint]
	if !ok {
		m.index[rec.Fingerprint] = len(m.records)
		m.records = append(m.records, rec)
		return
	}
	m.dups++
	if replaces(rec, m.records[i], m.margin) {
		m.records[i] = rec
	}
}

// replaces reports whether incoming should take the place of current.
// Incoming needs more than margin extra seeders. On equal seeders the
// earlier publish time wins, and on a full tie the smaller site name, so
// the outcome does not depend on which site answered first.
func replaces(incoming, current types.TorrentRecord, margin int) bool {
	if incoming.Seeders > current.Seeders+margin {
		return true
	}
	if incoming.Seeders != current.Seeders {
		return false
	}
	if !incoming.PublishedAt.Equal(current.PublishedAt) {
		switch {
		case incoming.PublishedAt.IsZero():
			return false
		case current.PublishedAt.IsZero():
			return true
		}
		return incoming.PublishedAt.Before(current.PublishedAt)
	}
	return incoming.Site < current.Site
}
