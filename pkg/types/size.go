// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.yaml.in/yaml/v3"
)

var sizeRE = regexp.MustCompile(`(?i)^([\d.]+)\s*([KMGTP]?)(i?B)?$`)

// ParseSize converts tracker size text ("20.1 GB", "700MiB", "1,024 KB")
// to bytes. Decimal unit names are read as binary multiples because that is
// what tracker software displays.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	m := sizeRE.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("unrecognized size %q", s)
	}
	unit := strings.ToUpper(m[2])
	normalized := m[1] + " B"
	if unit != "" {
		normalized = m[1] + " " + unit + "iB"
	}
	n, err := humanize.ParseBytes(normalized)
	if err != nil {
		return 0, fmt.Errorf("parsing size %q: %w", s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q out of range", s)
	}
	return int64(n), nil
}

// ByteSize is a byte count that decodes from either an integer or a
// human-readable size string in YAML.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	if n, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		*b = ByteSize(n)
		return nil
	}
	n, err := ParseSize(node.Value)
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

// String formats the size with binary units.
func (b ByteSize) String() string {
	if b <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(b))
}
