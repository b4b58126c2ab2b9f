// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/pdiddy/ptengine/pkg/types"
)

const maxTitleWidth = 60

// FormatTable writes the ranked records as a table to w, followed by the
// site errors.
func FormatTable(out Output, w io.Writer) {
	if len(out.Records) == 0 {
		fmt.Fprintln(w, "No results found.")
	} else {
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"#", "Title", "Site", "Size", "Seed", "Leech", "Quality", "Group", "Rule"})
		for i, r := range out.Records {
			rule := r.Rule
			if r.Notify {
				rule += " (notify)"
			}
			tw.AppendRow(table.Row{
				i + 1,
				text.Trim(r.Title, maxTitleWidth),
				r.Site,
				humanize.IBytes(uint64(r.SizeBytes)),
				r.Seeders,
				r.Leechers,
				quality(r.Metadata),
				r.Metadata.ReleaseGroup,
				rule,
			})
		}
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
			{Number: 5, Align: text.AlignRight},
			{Number: 6, Align: text.AlignRight},
		})
		tw.Render()

		fmt.Fprintf(w, "\n%d results", len(out.Records))
		if out.DupsRemoved > 0 {
			fmt.Fprintf(w, " (%d duplicates removed)", out.DupsRemoved)
		}
		if out.Rejected > 0 {
			fmt.Fprintf(w, " (%d rejected by rules)", out.Rejected)
		}
		fmt.Fprintln(w)
	}

	for _, e := range out.Errors {
		fmt.Fprintf(w, "warning: %v\n", e)
	}
}

// FormatJSON writes the records as indented JSON to w.
func FormatJSON(out Output, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out.Records)
}

// FormatStats writes per-site statistics as a table to w.
func FormatStats(stats []SiteStats, w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Site", "Searches", "OK", "Failed", "Avg latency", "State", "Last error"})
	for _, s := range stats {
		state := "enabled"
		if s.Disabled {
			state = "disabled"
		}
		tw.AppendRow(table.Row{s.Site, s.Total, s.Succeeded, s.Failed, s.AvgLatency.Round(time.Millisecond).String(), state, text.Trim(s.LastError, 50)})
	}
	tw.Render()
}

func quality(m types.ReleaseMetadata) string {
	q := m.Resolution
	for _, part := range []string{m.Source, m.VideoCodec} {
		if part == "" {
			continue
		}
		if q != "" {
			q += " "
		}
		q += part
	}
	if m.Season != nil {
		q += " S" + strconv.Itoa(*m.Season)
	}
	return q
}
