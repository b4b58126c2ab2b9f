// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pdiddy/ptengine/internal/download"
	"github.com/pdiddy/ptengine/internal/search"
	"github.com/pdiddy/ptengine/pkg/types"
)

var downloadCmd = &cobra.Command{
	Use:   "download <url>",
	Short: "Submit one torrent URL to a download client and follow it",
	Long: `Download hands a torrent or magnet URL to the named client and follows
the task through submission, retries, and polling until it completes or
fails. The finished task is recorded in the history database.

Interrupting the command cancels the task and removes the torrent from the
client, keeping any data already written.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, _ := cmd.Flags().GetString("client")
	if client == "" {
		if len(cfg.Clients) != 1 {
			return errors.New("--client is required when more than one client is configured")
		}
		client = cfg.Clients[0].Name
	}

	title, _ := cmd.Flags().GetString("title")
	if title == "" {
		title = args[0]
	}
	size, _ := cmd.Flags().GetString("size")
	var bytes int64
	if size != "" {
		if bytes, err = types.ParseSize(size); err != nil {
			return err
		}
	}
	siteName, _ := cmd.Flags().GetString("site")
	rec := types.TorrentRecord{
		Fingerprint: search.Fingerprint(title, bytes),
		Site:        siteName,
		Title:       title,
		SizeBytes:   bytes,
		DownloadURL: args[0],
		Decision:    types.DecisionAccept,
	}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	t, err := o.Submit(ctx, rec, client)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Submitted task %s to %s\n", t.ID, client)
	if failed := follow(ctx, o, []string{t.ID}); failed > 0 {
		return errors.New("download failed")
	}
	return nil
}

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List configured download clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Clients) == 0 {
			fmt.Println("No download clients configured.")
			return nil
		}
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"Client", "Type", "URL", "Category", "Save path", "Rate limit"})
		for _, c := range cfg.Clients {
			category := c.Category
			if !c.SupportsCategory {
				category = "-"
			}
			tw.AppendRow(table.Row{c.Name, c.Type, c.URL, category, c.SavePath, yesNo(c.SupportsRateLimit)})
		}
		tw.Render()
		fmt.Printf("Supported types: %v\n", download.ClientTypes())
		return nil
	},
}

func init() {
	downloadCmd.Flags().String("client", "", "download client name (default: the only configured client)")
	downloadCmd.Flags().String("title", "", "release title recorded in history (default: the URL)")
	downloadCmd.Flags().String("size", "", "release size, e.g. 4.2GB, used for the fingerprint")
	downloadCmd.Flags().String("site", "", "site the URL came from")

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(clientsCmd)
}
