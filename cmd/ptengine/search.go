// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ptengine/internal/search"
	"github.com/pdiddy/ptengine/internal/site"
	"github.com/pdiddy/ptengine/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search <keywords>",
	Short: "Search every enabled site and rank the merged results",
	Long: `Search queries all enabled sites concurrently. Listings for the same
release are merged across sites, titles are parsed into release metadata, and
the rules file decides which records survive and in what order.

A failing site does not abort the search; its error is printed after the
results. With --download, accepted records are submitted to the named
download client and followed until they finish.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if n, _ := cmd.Flags().GetInt("max-results"); n > 0 {
		cfg.Search.MaxResults = n
	}
	rulesFile, _ := cmd.Flags().GetString("rules")

	p, err := buildPipeline(cfg, rulesFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	category, _ := cmd.Flags().GetString("category")
	limit, _ := cmd.Flags().GetInt("limit")
	out, err := p.Search(ctx, site.Query{
		Keyword:  strings.Join(args, " "),
		Category: category,
		Limit:    limit,
	})
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		if err := search.FormatJSON(out, os.Stdout); err != nil {
			return err
		}
	} else {
		search.FormatTable(out, os.Stdout)
	}
	if showStats, _ := cmd.Flags().GetBool("stats"); showStats {
		fmt.Fprintln(os.Stdout)
		search.FormatStats(p.Stats(), os.Stdout)
	}

	client, _ := cmd.Flags().GetString("download")
	if client == "" {
		return nil
	}
	return downloadAccepted(ctx, cfg, client, out.Records)
}

// downloadAccepted submits accepted, non-notify records that the history
// does not already list as completed.
func downloadAccepted(ctx context.Context, cfg types.EngineConfig, client string, records []types.TorrentRecord) error {
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	o, err := buildOrchestrator(cfg, store)
	if err != nil {
		return err
	}
	defer o.Close()

	var ids []string
	for _, rec := range records {
		if rec.Decision != types.DecisionAccept || rec.Notify {
			continue
		}
		done, err := store.Completed(ctx, rec.Fingerprint)
		if err != nil {
			return err
		}
		if done {
			fmt.Fprintf(os.Stdout, "skipping %s: already downloaded\n", rec.Title)
			continue
		}
		t, err := o.Submit(ctx, rec, client)
		if err != nil {
			return err
		}
		ids = append(ids, t.ID)
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stdout, "Nothing to download.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "\nSubmitted %d task(s) to %s\n", len(ids), client)
	if failed := follow(ctx, o, ids); failed > 0 {
		return fmt.Errorf("%d of %d download(s) failed", failed, len(ids))
	}
	return nil
}

func init() {
	searchCmd.Flags().String("category", "", "site category to search")
	searchCmd.Flags().Int("limit", 0, "listings requested per site (0: site default)")
	searchCmd.Flags().Int("max-results", 0, "truncate the ranked results (0: config value)")
	searchCmd.Flags().String("rules", "", "rules file (default: rules_file from config)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	searchCmd.Flags().Bool("stats", false, "print per-site statistics after the results")
	searchCmd.Flags().String("download", "", "submit accepted records to this download client")

	rootCmd.AddCommand(searchCmd)
}
