// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rules evaluates declarative filter rules against torrent
// records. Evaluation is pure: rules are tried in descending priority and
// the first rule whose constraints all hold decides the record.
package rules

import (
	"cmp"
	"slices"
	"strings"

	"github.com/pdiddy/ptengine/pkg/types"
)

// Result is the outcome of evaluating a rule set against one record.
type Result struct {
	Decision types.Decision

	// Rule is the rule that decided the record; nil when the default
	// policy decided.
	Rule *types.Rule

	// Boost is the preferred-group ranking boost from the deciding rule.
	Boost int

	// Notify is set when the deciding rule is notify-only.
	Notify bool
}

// Sorted returns rules ordered by descending priority. Rules of equal
// priority keep their declaration order.
func Sorted(rules []types.Rule) []types.Rule {
	out := slices.Clone(rules)
	slices.SortStableFunc(out, func(a, b types.Rule) int { return cmp.Compare(b.Priority, a.Priority) })
	return out
}

// Evaluate returns the decision for rec. A rule whose constraints do not
// all hold is skipped; when no rule matches, policy decides.
func Evaluate(rec types.TorrentRecord, rules []types.Rule, policy types.DefaultPolicy) Result {
	for _, r := range Sorted(rules) {
		if !Matches(rec, r) {
			continue
		}
		matched := r
		res := Result{Rule: &matched, Boost: groupBoost(rec, r)}
		switch r.Action {
		case types.ActionReject:
			res.Decision = types.DecisionReject
			res.Boost = 0
		case types.ActionNotify:
			res.Decision = types.DecisionAccept
			res.Notify = true
		default:
			res.Decision = types.DecisionAccept
		}
		return res
	}

	if policy == types.AcceptByDefault {
		return Result{Decision: types.DecisionAccept}
	}
	return Result{Decision: types.DecisionReject}
}

// Matches reports whether every constraint of r holds for rec.
func Matches(rec types.TorrentRecord, r types.Rule) bool {
	c := r.Constraints
	if !categoryMatches(rec, r) {
		return false
	}
	if HardFail(rec, r) {
		return false
	}

	qualities := qualityTokens(rec)
	if len(c.AllowQualities) > 0 && !anyIn(qualities[:3], c.AllowQualities) {
		return false
	}
	if anyIn(qualities, c.DenyQualities) {
		return false
	}

	title := searchableTitle(rec)
	if len(c.Include) > 0 && !containsAny(title, c.Include) {
		return false
	}
	if containsAny(title, c.Exclude) {
		return false
	}
	return true
}

// HardFail reports whether rec violates r's hard constraints (size bounds
// and minimum seeders) within r's category.
func HardFail(rec types.TorrentRecord, r types.Rule) bool {
	if !categoryMatches(rec, r) {
		return false
	}
	c := r.Constraints
	if c.MinSize > 0 && rec.SizeBytes < int64(c.MinSize) {
		return true
	}
	if c.MaxSize > 0 && rec.SizeBytes > int64(c.MaxSize) {
		return true
	}
	return c.MinSeeders > 0 && rec.Seeders < c.MinSeeders
}

// HardFailure returns the highest-priority accepting rule whose hard
// constraints rec violates, or nil. Records let through by the default
// policy are still held to the size and seeder bounds of the rules that
// cover their category.
func HardFailure(rec types.TorrentRecord, rules []types.Rule) *types.Rule {
	for _, r := range Sorted(rules) {
		if r.Action == types.ActionReject {
			continue
		}
		if HardFail(rec, r) {
			failed := r
			return &failed
		}
	}
	return nil
}

func categoryMatches(rec types.TorrentRecord, r types.Rule) bool {
	return r.Category == "" || strings.EqualFold(r.Category, rec.Category)
}

func groupBoost(rec types.TorrentRecord, r types.Rule) int {
	g := rec.Metadata.ReleaseGroup
	if g == "" {
		return 0
	}
	for _, pg := range r.Constraints.PreferredGroups {
		if strings.EqualFold(pg, g) {
			return r.Constraints.GroupBoost
		}
	}
	return 0
}

// qualityTokens lists resolution, source, and video codec first (the
// allow-list surface), followed by tags, the promotion flag, and the
// hit-and-run flag.
func qualityTokens(rec types.TorrentRecord) []string {
	m := rec.Metadata
	tokens := []string{m.Resolution, m.Source, m.VideoCodec}
	tokens = append(tokens, m.Tags...)
	if m.AudioCodec != "" {
		tokens = append(tokens, m.AudioCodec)
	}
	if rec.Free {
		tokens = append(tokens, "free")
	}
	if rec.HNR {
		tokens = append(tokens, "hnr")
	}
	return tokens
}

func anyIn(tokens, set []string) bool {
	for _, t := range tokens {
		if t == "" {
			continue
		}
		for _, s := range set {
			if strings.EqualFold(t, s) {
				return true
			}
		}
	}
	return false
}

// searchableTitle lowercases the raw title, subtitle, and recognized title
// with release separators turned into spaces, so "the bear" finds
// "The.Bear.S03".
func searchableTitle(rec types.TorrentRecord) string {
	raw := strings.NewReplacer(".", " ", "_", " ").Replace(rec.Title)
	return strings.ToLower(raw + " " + rec.Subtitle + " " + rec.Metadata.Title)
}

func containsAny(title string, keywords []string) bool {
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(title, k) {
			return true
		}
	}
	return false
}
