// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/pdiddy/ptengine/internal/history"
	"github.com/pdiddy/ptengine/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history [title]",
	Short: "Query finished downloads",
	Long: `History lists tasks that reached completed or failed, newest first.
An optional argument matches a substring of the release title; flags narrow
by state, client, site, or age.

Use --show with a task ID to print one task with its full transition log.`,
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if id, _ := cmd.Flags().GetString("show"); id != "" {
		t, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, t)
		}
		printTask(os.Stdout, t)
		return nil
	}

	opts, err := historyOptsFromFlags(cmd, args)
	if err != nil {
		return err
	}
	tasks, err := store.Query(ctx, opts)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(os.Stdout, tasks)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Title", "Size", "Site", "Client", "State", "Attempts", "Finished", "Reason"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{
			shortID(t.ID),
			text.Trim(t.Record.Title, 50),
			humanize.IBytes(uint64(t.Record.SizeBytes)),
			t.Record.Site,
			t.Client,
			t.State,
			t.Attempts,
			humanize.Time(t.UpdatedAt),
			text.Trim(t.Reason, 40),
		})
	}
	tw.Render()
	return nil
}

func printTask(w io.Writer, t types.DownloadTask) {
	fmt.Fprintf(w, "Task:     %s\n", t.ID)
	fmt.Fprintf(w, "Title:    %s\n", t.Record.Title)
	fmt.Fprintf(w, "Site:     %s\n", t.Record.Site)
	fmt.Fprintf(w, "Client:   %s (ref %s)\n", t.Client, t.ClientRef)
	fmt.Fprintf(w, "State:    %s after %d attempt(s)\n", t.State, t.Attempts)
	if t.Reason != "" {
		fmt.Fprintf(w, "Reason:   %s\n", t.Reason)
	}
	if t.LastError != "" {
		fmt.Fprintf(w, "Error:    %s\n", t.LastError)
	}
	fmt.Fprintln(w, "\nTransitions:")
	for _, tr := range t.History {
		line := fmt.Sprintf("  %s  %-10s -> %s", tr.At.Local().Format(time.DateTime), tr.From, tr.To)
		if tr.Note != "" {
			line += "  (" + tr.Note + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func historyOptsFromFlags(cmd *cobra.Command, args []string) (history.QueryOptions, error) {
	state, _ := cmd.Flags().GetString("state")
	client, _ := cmd.Flags().GetString("client")
	siteName, _ := cmd.Flags().GetString("site")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("max-results")

	opts := history.QueryOptions{
		Title:      strings.Join(args, " "),
		State:      types.TaskState(state),
		Client:     client,
		Site:       siteName,
		MaxResults: limit,
	}
	if state != "" && !opts.State.Terminal() {
		return opts, fmt.Errorf("invalid state %q: history holds only completed and failed tasks", state)
	}
	if since > 0 {
		opts.Since = time.Now().Add(-since)
	}
	return opts, nil
}

var historyExportCmd = &cobra.Command{
	Use:   "export [title]",
	Short: "Export finished downloads as YAML or JSON",
	Long: `Export writes every matching history entry with its transition log.
It accepts the same filters as history. Output goes to stdout unless --out
names a file.`,
	RunE: runHistoryExport,
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	opts, err := historyOptsFromFlags(cmd, args)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if path, _ := cmd.Flags().GetString("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer f.Close()
		w = f
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "yaml":
		return store.ExportYAML(context.Background(), opts, w)
	case "json":
		return store.ExportJSON(context.Background(), opts, w)
	default:
		return fmt.Errorf("unknown export format %q: use yaml or json", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func addHistoryFilters(cmd *cobra.Command) {
	cmd.Flags().String("state", "", "filter by state: completed, failed")
	cmd.Flags().String("client", "", "filter by download client")
	cmd.Flags().String("site", "", "filter by site")
	cmd.Flags().Duration("since", 0, "only tasks finished within this duration, e.g. 72h")
}

func init() {
	addHistoryFilters(historyCmd)
	historyCmd.Flags().Int("max-results", 50, "maximum number of tasks to list")
	historyCmd.Flags().Bool("json", false, "output as JSON")
	historyCmd.Flags().String("show", "", "print one task with its transitions")

	addHistoryFilters(historyExportCmd)
	historyExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	historyExportCmd.Flags().String("out", "", "output file (default: stdout)")

	historyCmd.AddCommand(historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}
