// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ptengine/pkg/types"
)

// ExportEntry is one archived task flattened for export.
type ExportEntry struct {
	ID          string             `json:"id" yaml:"id"`
	Title       string             `json:"title" yaml:"title"`
	Site        string             `json:"site" yaml:"site"`
	Fingerprint string             `json:"fingerprint" yaml:"fingerprint"`
	SizeBytes   int64              `json:"size_bytes" yaml:"size_bytes"`
	Client      string             `json:"client" yaml:"client"`
	State       types.TaskState    `json:"state" yaml:"state"`
	Attempts    int                `json:"attempts" yaml:"attempts"`
	Reason      string             `json:"reason,omitempty" yaml:"reason,omitempty"`
	Rule        string             `json:"rule,omitempty" yaml:"rule,omitempty"`
	CreatedAt   time.Time          `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" yaml:"updated_at"`
	History     []types.Transition `json:"history" yaml:"history"`
}

const exportLimit = 100000

// ExportYAML writes the tasks matching opts to w as a YAML list.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions, w io.Writer) error {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// ExportJSON writes the tasks matching opts to w as an indented JSON array.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions, w io.Writer) error {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func (s *Store) exportEntries(ctx context.Context, opts QueryOptions) ([]ExportEntry, error) {
	opts.MaxResults = exportLimit
	tasks, err := s.Query(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	entries := make([]ExportEntry, len(tasks))
	for i, t := range tasks {
		entries[i] = ExportEntry{
			ID:          t.ID,
			Title:       t.Record.Title,
			Site:        t.Record.Site,
			Fingerprint: t.Record.Fingerprint,
			SizeBytes:   t.Record.SizeBytes,
			Client:      t.Client,
			State:       t.State,
			Attempts:    t.Attempts,
			Reason:      t.Reason,
			Rule:        t.Record.Rule,
			CreatedAt:   t.CreatedAt,
			UpdatedAt:   t.UpdatedAt,
			History:     t.History,
		}
	}
	return entries, nil
}
