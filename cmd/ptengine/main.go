// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the ptengine CLI. It searches the
// configured tracker sites, filters the results through the rules file,
// and hands accepted releases to download clients.
package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ptengine/internal/secrets"
	"github.com/pdiddy/ptengine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

const secretsDir = ".secrets/"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// logger is configured by the root command before any subcommand runs.
var logger = zerolog.Nop()

// rootCmd is the base command for the ptengine CLI.
var rootCmd = &cobra.Command{
	Use:   "ptengine",
	Short: "Search private trackers and feed download clients",
	Long: `ptengine queries several private tracker sites at once, normalizes their
listings into one record per release, filters and ranks them with a rules
file, and submits accepted releases to qBittorrent, Transmission, or aria2.

Sites, clients, and tuning live in ptengine.yaml. Cookies, API keys, and
client passwords may instead be kept in .secrets/ as <site>-cookie,
<site>-apikey, and <client>-password.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(secretsDir)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}

		level, err := zerolog.ParseLevel(viper.GetString("log_level"))
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).With().Timestamp().Logger()
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./ptengine.yaml or ~/.config/ptengine/ptengine.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ptengine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "ptengine"))
		}
	}

	viper.SetDefault("history_db", "ptengine-history.db")
	viper.SetDefault("search.timeout", 30*time.Second)
	viper.SetDefault("search.user_agent", "ptengine/"+version)

	viper.SetEnvPrefix("PTENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the viper state and fills missing credentials from
// the secrets directory.
func loadConfig() (types.EngineConfig, error) {
	var cfg types.EngineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	secrets.Apply(loadedSecrets, cfg.Sites, cfg.Clients)
	return cfg, nil
}

func httpClient(cfg types.HTTPConfig) *http.Client {
	return &http.Client{Timeout: cfg.Timeout}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
