// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package recognize

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/ptengine/pkg/types"
)

// consumed replaces every byte of a span an extractor has claimed. Byte
// offsets stay stable, so later extractors and the title cut see the same
// layout as the raw title.
const consumed = '\x00'

// state is the value threaded through the extractor chain. Extractors
// never mutate their input; they return a modified copy.
type state struct {
	text  string
	meta  types.ReleaseMetadata
	score float64
}

type extractor struct {
	name   string
	weight float64
	run    func(state) (state, bool)
}

func (s state) consume(start, end int) state {
	b := []byte(s.text)
	for i := start; i < end; i++ {
		b[i] = consumed
	}
	s.text = string(b)
	return s
}

type pattern struct {
	re    *regexp.Regexp
	value string
}

func p(expr, value string) pattern {
	return pattern{re: regexp.MustCompile(expr), value: value}
}

// firstOf consumes the first match of the first pattern that matches.
func firstOf(s state, patterns []pattern) (state, string, bool) {
	for _, pt := range patterns {
		if loc := pt.re.FindStringIndex(s.text); loc != nil {
			return s.consume(loc[0], loc[1]), pt.value, true
		}
	}
	return s, "", false
}

// allOf consumes every match of every pattern and returns the sorted,
// de-duplicated values found.
func allOf(s state, patterns []pattern) (state, []string) {
	var found []string
	for _, pt := range patterns {
		locs := pt.re.FindAllStringIndex(s.text, -1)
		if len(locs) == 0 {
			continue
		}
		for _, loc := range locs {
			s = s.consume(loc[0], loc[1])
		}
		found = append(found, pt.value)
	}
	slices.Sort(found)
	return s, slices.Compact(found)
}

var (
	resolutionRE      = regexp.MustCompile(`(?i)\b(2160|1080|720|576|480)([pi])\b`)
	resolutionAliasRE = regexp.MustCompile(`(?i)\b(?:4K|UHD)\b`)
)

func extractResolution(s state) (state, bool) {
	found := false
	if m := resolutionRE.FindStringSubmatchIndex(s.text); m != nil {
		s.meta.Resolution = s.text[m[2]:m[3]] + strings.ToLower(s.text[m[4]:m[5]])
		s = s.consume(m[0], m[1])
		found = true
	}
	for _, loc := range resolutionAliasRE.FindAllStringIndex(s.text, -1) {
		s = s.consume(loc[0], loc[1])
		if !found {
			s.meta.Resolution = "2160p"
			found = true
		}
	}
	return s, found
}

var sourcePatterns = []pattern{
	p(`(?i)\b(?:Blu-?ray|BDRip|BRRip|BD(?:25|50|66|100)?)\b`, "BluRay"),
	p(`(?i)\bWEB[ .-]?DL\b`, "WEB-DL"),
	p(`(?i)\bWEB[ .-]?Rip\b`, "WEBRip"),
	p(`(?i)\bHDTV(?:Rip)?\b`, "HDTV"),
	p(`(?i)\bDVD(?:Rip|5|9)?\b`, "DVD"),
	p(`(?i)\bHDRip\b`, "HDRip"),
	p(`(?i)\bWEB\b`, "WEB"),
	p(`(?i)\b(?:HD)?CAM(?:Rip)?\b`, "CAM"),
	p(`(?i)\b(?:HD)?TS\b|\bTELESYNC\b`, "TS"),
}

func extractSource(s state) (state, bool) {
	s, v, ok := firstOf(s, sourcePatterns)
	s.meta.Source = v
	return s, ok
}

var videoCodecPatterns = []pattern{
	p(`(?i)\bx\.?265\b`, "x265"),
	p(`(?i)\b(?:H\.?265|HEVC)\b`, "H.265"),
	p(`(?i)\bx\.?264\b`, "x264"),
	p(`(?i)\b(?:H\.?264|AVC)\b`, "H.264"),
	p(`(?i)\bAV1\b`, "AV1"),
	p(`(?i)\bXviD\b`, "XviD"),
	p(`(?i)\bVC-?1\b`, "VC-1"),
	p(`(?i)\bMPEG-?2\b`, "MPEG-2"),
}

func extractVideoCodec(s state) (state, bool) {
	s, v, ok := firstOf(s, videoCodecPatterns)
	s.meta.VideoCodec = v
	return s, ok
}

const channels = `(?:[ .]?[1-9]\.[0-2])?`

var audioCodecPatterns = []pattern{
	p(`(?i)\b(?:DDP|DD\+|E-?AC-?3)`+channels, "DDP"),
	p(`(?i)\bTrueHD`+channels, "TrueHD"),
	p(`(?i)\bDTS-?HD[ .]?MA`+channels, "DTS-HD MA"),
	p(`(?i)\bDTS[-:]?X\b`, "DTS:X"),
	p(`(?i)\bDTS`+channels, "DTS"),
	p(`(?i)\b(?:DD|AC-?3)`+channels+`(?:\b|$)`, "DD"),
	p(`(?i)\bAAC`+channels, "AAC"),
	p(`(?i)\bFLAC`+channels, "FLAC"),
	p(`(?i)\bL?PCM`+channels, "LPCM"),
	p(`(?i)\bOPUS\b`, "Opus"),
	p(`(?i)\bMP3\b`, "MP3"),
}

func extractAudioCodec(s state) (state, bool) {
	s, v, ok := firstOf(s, audioCodecPatterns)
	s.meta.AudioCodec = v
	return s, ok
}

var (
	leadingBracketRE = regexp.MustCompile(`^\s*[\[【]([^\]】\x00]{1,30})[\]】]`)
	trailingDashRE   = regexp.MustCompile(`[-@]([A-Za-z0-9][A-Za-z0-9_]{1,19})$`)
	episodeTokenRE   = regexp.MustCompile(`(?i)^(?:e|ep)?\d+$`)
	digitRE          = regexp.MustCompile(`\d`)
)

// extractGroup looks for a known group at the trailing position, then in
// a leading bracket, and finally falls back to the trailing dash token.
func (e *Engine) extractGroup(s state) (state, bool) {
	tail := strings.TrimRight(s.text, " ])】")

	for _, g := range e.groups {
		n := len(g)
		if len(tail) <= n || !strings.EqualFold(tail[len(tail)-n:], g) {
			continue
		}
		r, size := utf8.DecodeLastRuneInString(tail[:len(tail)-n])
		if !isGroupSep(r) {
			continue
		}
		s.meta.ReleaseGroup = g
		return s.consume(len(tail)-n-size, len(tail)), true
	}

	lead := leadingBracketRE.FindStringSubmatchIndex(s.text)
	if lead != nil {
		name := strings.TrimSpace(s.text[lead[2]:lead[3]])
		for _, g := range e.groups {
			if strings.EqualFold(name, g) {
				s.meta.ReleaseGroup = g
				return s.consume(lead[0], lead[1]), true
			}
		}
	}

	// The structural heuristic only applies once something release-like
	// was found; otherwise a hyphenated title would yield a group.
	if s.score > 0 {
		if m := trailingDashRE.FindStringSubmatchIndex(tail); m != nil {
			token := tail[m[2]:m[3]]
			if !episodeTokenRE.MatchString(token) {
				s.meta.ReleaseGroup = token
				return s.consume(m[0], m[1]), true
			}
		}
	}

	if lead != nil {
		name := strings.TrimSpace(s.text[lead[2]:lead[3]])
		if utf8.RuneCountInString(name) <= 20 && !digitRE.MatchString(name) {
			s.meta.ReleaseGroup = name
			return s.consume(lead[0], lead[1]), true
		}
	}
	return s, false
}

func isGroupSep(r rune) bool {
	switch r {
	case '-', '.', ' ', '@', '[', '_', '【':
		return true
	}
	return false
}

var (
	seasonEpisodeRE = regexp.MustCompile(`(?i)\bS(\d{1,2})[ ._]?E(\d{1,4})(?:-?E(\d{1,4})|-(\d{1,4}))?\b`)

	seasonPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bS(\d{1,2})(?:-S?\d{1,2})?\b`),
		regexp.MustCompile(`(?i)\bSeason[ ._]?(\d{1,2})\b`),
		regexp.MustCompile(`第\s*(\d{1,2}|[一二三四五六七八九十]{1,3})\s*季`),
	}

	episodePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:EP|E)(\d{2,4})(?:-(?:EP|E)?(\d{2,4}))?\b`),
		regexp.MustCompile(`第\s*(\d{1,4})(?:\s*-\s*(\d{1,4}))?\s*[集话話]`),
		regexp.MustCompile(`\s-\s(\d{1,3})(?:v\d)?(?:\s|$)`),
	}
)

// extractSeasonEpisode handles SxxEyy forms (including ranges), season
// markers, and bare episode markers.
func extractSeasonEpisode(s state) (state, bool) {
	if m := seasonEpisodeRE.FindStringSubmatchIndex(s.text); m != nil {
		season, _ := strconv.Atoi(s.text[m[2]:m[3]])
		start, _ := strconv.Atoi(s.text[m[4]:m[5]])
		end := start
		for _, g := range []int{6, 8} {
			if m[g] >= 0 {
				end, _ = strconv.Atoi(s.text[m[g]:m[g+1]])
			}
		}
		s.meta.Season = &season
		s.meta.Episodes = episodeRange(start, end)
		return s.consume(m[0], m[1]), true
	}

	found := false
	for _, re := range seasonPatterns {
		if m := re.FindStringSubmatchIndex(s.text); m != nil {
			season := parseNumber(s.text[m[2]:m[3]])
			s.meta.Season = &season
			s = s.consume(m[0], m[1])
			found = true
			break
		}
	}
	for _, re := range episodePatterns {
		if m := re.FindStringSubmatchIndex(s.text); m != nil {
			start, _ := strconv.Atoi(s.text[m[2]:m[3]])
			end := start
			if len(m) > 4 && m[4] >= 0 {
				end, _ = strconv.Atoi(s.text[m[4]:m[5]])
			}
			s.meta.Episodes = episodeRange(start, end)
			s = s.consume(m[0], m[1])
			found = true
			break
		}
	}
	return s, found
}

func episodeRange(start, end int) *types.EpisodeRange {
	if end < start {
		end = start
	}
	return &types.EpisodeRange{Start: start, End: end}
}

var cnDigits = map[rune]int{'一': 1, '二': 2, '三': 3, '四': 4, '五': 5, '六': 6, '七': 7, '八': 8, '九': 9}

// parseNumber accepts Arabic digits or Chinese numerals up to 99.
func parseNumber(v string) int {
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	n, cur := 0, 0
	for _, r := range v {
		if r == '十' {
			if cur == 0 {
				cur = 1
			}
			n += cur * 10
			cur = 0
			continue
		}
		cur = cnDigits[r]
	}
	return n + cur
}

var tagPatterns = []pattern{
	p(`(?i)\bREMUX\b`, "REMUX"),
	p(`(?i)\bHDR10(?:\+|Plus)`, "HDR10+"),
	p(`(?i)\bHDR10\b`, "HDR10"),
	p(`(?i)\bHDR\b`, "HDR"),
	p(`(?i)\b(?:DV|DoVi|Dolby[ .]?Vision)\b`, "DV"),
	p(`(?i)\b(?:10[ .-]?bit|Hi10P)\b`, "10bit"),
	p(`(?i)\bAtmos\b`, "ATMOS"),
	p(`(?i)\bPROPER\b`, "PROPER"),
	p(`(?i)\bREPACK\b`, "REPACK"),
	p(`(?i)\bIMAX\b`, "IMAX"),
	p(`(?i)\bExtended\b`, "EXTENDED"),
	p(`(?i)\bUNCUT\b`, "UNCUT"),
	p(`(?i)\bHybrid\b`, "HYBRID"),
	p(`(?i)\bComplete\b|全集`, "COMPLETE"),
	p(`\bAMZN\b`, "AMZN"),
	p(`\bNF\b`, "NF"),
	p(`\bDSNP\b`, "DSNP"),
	p(`\bATVP\b`, "ATVP"),
	p(`\bHMAX\b`, "HMAX"),
}

func extractTags(s state) (state, bool) {
	s, tags := allOf(s, tagPatterns)
	s.meta.Tags = tags
	return s, len(tags) > 0
}

var languagePatterns = []pattern{
	p(`(?i)\b(?:CHS|Chinese|Mandarin)\b|国语|国配|中字|简体|简中|中英`, "zh"),
	p(`(?i)\b(?:CHT|BIG5)\b|繁体|繁中`, "zh-Hant"),
	p(`(?i)\bCantonese\b|粤语`, "yue"),
	p(`(?i)\b(?:English|ENG)\b|英语`, "en"),
	p(`(?i)\b(?:Japanese|JPN)\b|日语`, "ja"),
	p(`(?i)\b(?:Korean|KOR)\b|韩语`, "ko"),
	p(`(?i)\bFrench\b|法语`, "fr"),
	p(`(?i)\bMULTi\b`, "multi"),
}

func extractLanguages(s state) (state, bool) {
	s, langs := allOf(s, languagePatterns)
	s.meta.Languages = langs
	return s, len(langs) > 0
}

var yearRE = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

// extractYear takes the last year-like token that has title text before
// it, so titles such as "Blade Runner 2049" keep their number.
func extractYear(s state) (state, bool) {
	locs := yearRE.FindAllStringIndex(s.text, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		loc := locs[i]
		if cleanTitle(s.text[:loc[0]]) == "" {
			continue
		}
		s.meta.Year, _ = strconv.Atoi(s.text[loc[0]:loc[1]])
		return s.consume(loc[0], loc[1]), true
	}
	return s, false
}

// extractTitle takes the first run of unconsumed text.
func extractTitle(s state) (state, bool) {
	for _, seg := range strings.Split(s.text, string(consumed)) {
		if t := cleanTitle(seg); t != "" {
			s.meta.Title = t
			return s, true
		}
	}
	return s, false
}

var (
	titleSepRE   = regexp.MustCompile(`[._\s]+`)
	emptyPairsRE = regexp.MustCompile(`\(\s*\)|\[\s*\]|【\s*】`)
)

func cleanTitle(seg string) string {
	seg = strings.ReplaceAll(seg, string(consumed), " ")
	seg = titleSepRE.ReplaceAllString(seg, " ")
	seg = emptyPairsRE.ReplaceAllString(seg, " ")
	seg = strings.Trim(seg, " -[]()【】")
	return strings.Join(strings.Fields(seg), " ")
}
