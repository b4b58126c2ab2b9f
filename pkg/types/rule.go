// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Action is what a matching rule does with a record.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
	ActionNotify Action = "notify"
)

// Decision is the outcome of evaluating rules against a record.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
	DecisionSkip   Decision = "skip"
)

// DefaultPolicy decides records no rule matched.
type DefaultPolicy string

const (
	RejectByDefault DefaultPolicy = "reject-by-default"
	AcceptByDefault DefaultPolicy = "accept-by-default"
)

// Constraints is the conjunctive condition set of a rule. Zero values
// disable the corresponding check.
type Constraints struct {
	MinSize ByteSize `json:"min_size,omitempty" yaml:"min_size,omitempty"`
	MaxSize ByteSize `json:"max_size,omitempty" yaml:"max_size,omitempty"`

	// AllowQualities, when non-empty, requires the record's resolution,
	// source, or video codec to be listed.
	AllowQualities []string `json:"allow_qualities,omitempty" yaml:"allow_qualities,omitempty"`

	// DenyQualities rejects records whose resolution, source, video codec,
	// or tags are listed.
	DenyQualities []string `json:"deny_qualities,omitempty" yaml:"deny_qualities,omitempty"`

	// Include requires at least one keyword in the title.
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`

	// Exclude requires none of the keywords in the title.
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	MinSeeders int `json:"min_seeders,omitempty" yaml:"min_seeders,omitempty"`

	// PreferredGroups earn GroupBoost for ranking. They never gate.
	PreferredGroups []string `json:"preferred_groups,omitempty" yaml:"preferred_groups,omitempty"`
	GroupBoost      int      `json:"group_boost,omitempty" yaml:"group_boost,omitempty"`
}

// Rule is a declarative filter. Rules are immutable while being evaluated.
type Rule struct {
	Name string `json:"name" yaml:"name"`

	// Category restricts the rule to records of one category; empty matches all.
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	Constraints Constraints `json:"constraints" yaml:"constraints"`
	Action      Action      `json:"action" yaml:"action"`

	// Priority orders evaluation; higher runs first.
	Priority int `json:"priority" yaml:"priority"`
}
