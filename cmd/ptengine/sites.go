// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/ptengine/internal/site"
	"github.com/pdiddy/ptengine/pkg/types"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List configured sites",
	Long: `Sites prints every configured site with its framework, base URL, and
which session material is available. Use "sites check" to verify logins.`,
	RunE: runSites,
}

func runSites(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Sites) == 0 {
		fmt.Println("No sites configured.")
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Site", "Framework", "Base URL", "Enabled", "Cookie", "API key", "Passkey"})
	for _, s := range cfg.Sites {
		tw.AppendRow(table.Row{s.Name, s.Framework, s.BaseURL, yesNo(s.Enabled), yesNo(s.Cookie != ""), yesNo(s.APIKey != ""), yesNo(s.Passkey != "")})
	}
	tw.Render()
	fmt.Printf("Supported frameworks: %v\n", site.Frameworks())
	return nil
}

var sitesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the session of every enabled site",
	Long: `Check calls each enabled site's authentication probe concurrently and
reports whether the session is logged in. Sites whose session expired are
reauthenticated from .secrets/ when fresh material is there.`,
	RunE: runSitesCheck,
}

type checkResult struct {
	site  string
	state types.AuthState
	took  time.Duration
	err   error
}

func runSitesCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	adapters, errs := site.NewAll(cfg.Sites, siteDeps(cfg))
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	results := make([]checkResult, len(adapters))
	g, ctx := errgroup.WithContext(context.Background())
	for i, a := range adapters {
		g.Go(func() error {
			actx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			start := time.Now()
			st, err := a.Authenticate(actx)
			results[i] = checkResult{site: a.Name(), state: st, took: time.Since(start), err: err}
			return nil
		})
	}
	g.Wait()

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Site", "Logged in", "User", "Took", "Error"})
	bad := 0
	for _, r := range results {
		msg := ""
		if r.err != nil {
			msg = r.err.Error()
		}
		if r.err != nil || !r.state.LoggedIn {
			bad++
		}
		tw.AppendRow(table.Row{r.site, yesNo(r.state.LoggedIn), r.state.Username, r.took.Round(time.Millisecond).String(), msg})
	}
	tw.Render()

	if bad > 0 {
		return fmt.Errorf("%d site(s) not logged in", bad)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func init() {
	sitesCheckCmd.Flags().Duration("timeout", 30*time.Second, "per-site check timeout")

	sitesCmd.AddCommand(sitesCheckCmd)
	rootCmd.AddCommand(sitesCmd)
}
