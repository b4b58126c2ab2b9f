// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ptengine/pkg/types"
)

// Set is the on-disk rules document.
type Set struct {
	DefaultPolicy types.DefaultPolicy `yaml:"default_policy"`
	Rules         []types.Rule        `yaml:"rules"`
}

// LoadFile reads and validates a rules document.
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("reading rules %s: %w", path, err)
	}
	set, err := Parse(data)
	if err != nil {
		return Set{}, fmt.Errorf("rules %s: %w", path, err)
	}
	return set, nil
}

// Parse decodes and validates a rules document. Unknown fields are
// rejected so a misspelled constraint cannot silently widen a rule.
func Parse(data []byte) (Set, error) {
	var set Set
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil && !errors.Is(err, io.EOF) {
		return Set{}, fmt.Errorf("decoding rules: %w", err)
	}
	if set.DefaultPolicy == "" {
		set.DefaultPolicy = types.RejectByDefault
	}
	if err := Validate(set); err != nil {
		return Set{}, err
	}
	return set, nil
}

// Validate checks policy, actions, names, and size bounds.
func Validate(set Set) error {
	switch set.DefaultPolicy {
	case types.RejectByDefault, types.AcceptByDefault:
	default:
		return fmt.Errorf("unknown default policy %q", set.DefaultPolicy)
	}

	seen := make(map[string]bool, len(set.Rules))
	var errs []error
	for i, r := range set.Rules {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("rule %d: name is required", i))
		} else if seen[r.Name] {
			errs = append(errs, fmt.Errorf("rule %q: duplicate name", r.Name))
		}
		seen[r.Name] = true

		switch r.Action {
		case types.ActionAccept, types.ActionReject, types.ActionNotify:
		default:
			errs = append(errs, fmt.Errorf("rule %q: unknown action %q", r.Name, r.Action))
		}
		c := r.Constraints
		if c.MinSize > 0 && c.MaxSize > 0 && c.MinSize > c.MaxSize {
			errs = append(errs, fmt.Errorf("rule %q: min_size %s exceeds max_size %s", r.Name, c.MinSize, c.MaxSize))
		}
		if c.MinSeeders < 0 {
			errs = append(errs, fmt.Errorf("rule %q: min_seeders is negative", r.Name))
		}
	}
	return errors.Join(errs...)
}
