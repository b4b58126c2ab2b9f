// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pdiddy/ptengine/internal/download"
	"github.com/pdiddy/ptengine/internal/history"
	"github.com/pdiddy/ptengine/internal/rules"
	"github.com/pdiddy/ptengine/internal/search"
	"github.com/pdiddy/ptengine/internal/secrets"
	"github.com/pdiddy/ptengine/internal/site"
	"github.com/pdiddy/ptengine/pkg/types"
)

// registry collects the pipeline metrics for the current process.
var registry = prometheus.NewRegistry()

func siteDeps(cfg types.EngineConfig) site.Deps {
	return site.Deps{
		Client:      httpClient(cfg.Search.HTTPConfig),
		Credentials: secrets.Dir(secretsDir),
		Logger:      logger,
		UserAgent:   cfg.Search.UserAgent,
	}
}

func buildPipeline(cfg types.EngineConfig, rulesFile string) (*search.Pipeline, error) {
	adapters, errs := site.NewAll(cfg.Sites, siteDeps(cfg))
	for _, err := range errs {
		logger.Warn().Err(err).Msg("skipping site")
	}
	if len(adapters) == 0 {
		return nil, errors.New("no enabled sites configured")
	}

	opts := []search.Option{search.WithLogger(logger), search.WithRegisterer(registry)}
	if rulesFile == "" {
		rulesFile = cfg.RulesFile
	}
	switch {
	case rulesFile != "":
		set, err := rules.LoadFile(rulesFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, search.WithRules(set.Rules, set.DefaultPolicy))
	case cfg.Search.DefaultPolicy != "":
		opts = append(opts, search.WithRules(nil, cfg.Search.DefaultPolicy))
	}
	return search.New(adapters, cfg.Search, opts...), nil
}

func openHistory(cfg types.EngineConfig) (*history.Store, error) {
	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("opening history %s: %w", cfg.HistoryDB, err)
	}
	return store, nil
}

func buildOrchestrator(cfg types.EngineConfig, store *history.Store) (*download.Orchestrator, error) {
	if len(cfg.Clients) == 0 {
		return nil, errors.New("no download clients configured")
	}
	clients, err := download.NewClients(cfg.Clients, download.Deps{Logger: logger})
	if err != nil {
		return nil, err
	}
	return download.New(clients, cfg.Download,
		download.WithLogger(logger),
		download.WithArchiver(store),
	), nil
}

// followInterval is how often follow checks task state directly, so a
// terminal event dropped from a full event buffer still ends the wait.
var followInterval = time.Second

// follow prints task transitions until every task in ids is terminal. When
// ctx ends first, the remaining tasks are cancelled and left to settle.
func follow(ctx context.Context, o *download.Orchestrator, ids []string) (failed int) {
	return followEvents(ctx, o, o.Events(), ids)
}

func followEvents(ctx context.Context, o *download.Orchestrator, events <-chan download.Event, ids []string) (failed int) {
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	settle := func(t types.DownloadTask) {
		delete(pending, t.ID)
		if t.State == types.TaskFailed {
			failed++
			fmt.Fprintf(os.Stdout, "%s  failed: %s\n", shortID(t.ID), t.Reason)
		}
	}
	check := func() {
		for id := range pending {
			if t, err := o.Get(id); err == nil && t.State.Terminal() {
				settle(t)
			}
		}
	}
	check()

	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			for id := range pending {
				o.Cancel(id, "interrupted")
			}
			return failed + len(pending)
		case <-ticker.C:
			check()
		case ev, ok := <-events:
			if !ok {
				check()
				return failed + len(pending)
			}
			if !pending[ev.TaskID] {
				continue
			}
			line := fmt.Sprintf("%s  %-10s -> %-10s  %s", shortID(ev.TaskID), ev.From, ev.To, ev.Task.Record.Title)
			if ev.Note != "" {
				line += "  (" + ev.Note + ")"
			}
			fmt.Fprintln(os.Stdout, line)
			if ev.To.Terminal() {
				settle(ev.Task)
			}
		}
	}
	return failed
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
