// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package site

import (
	"regexp"
	"strings"
)

// nexusHNRBadges selects the hit-and-run badges NexusPHP forks render
// next to a title.
const nexusHNRBadges = `img.hitandrun, img.hit_run, img[alt="H&R"], span.hitandrun, span.hnr`

var (
	// Codec and HDR names that would otherwise read as H-level markers.
	hnrFalsePositiveRE = regexp.MustCompile(`(?i)h\.?26[45]|hdr10\+?`)

	hnrMarkerRE = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bh[\s\-/:：]?([1-9]|10)\b`),
		regexp.MustCompile(`(?i)\bh(?:[\s\-/:：&]|n)r\b`),
	}

	hnrKeywordSets = [][]string{
		{"考核", "小时"},
		{"命中", "做种"},
		{"强制", "保种"},
	}
)

// LooksHitAndRun reports whether listing text announces a hit-and-run
// seeding obligation: H&R or H-level markers (H3, H-5), or the Chinese
// keyword pairs trackers use for mandatory seeding.
func LooksHitAndRun(texts ...string) bool {
	text := strings.ToLower(strings.Join(texts, " "))
	stripped := hnrFalsePositiveRE.ReplaceAllString(text, " ")
	for _, re := range hnrMarkerRE {
		if re.MatchString(stripped) {
			return true
		}
	}
	for _, set := range hnrKeywordSets {
		all := true
		for _, kw := range set {
			if !strings.Contains(text, kw) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}
