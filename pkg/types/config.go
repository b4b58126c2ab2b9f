// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make
// network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the default User-Agent header (e.g. "ptengine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SearchConfig holds settings for the aggregation pipeline.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// MaxParallel bounds concurrent site searches (default 4).
	MaxParallel int `json:"max_parallel" yaml:"max_parallel" mapstructure:"max_parallel"`

	// SiteTimeout bounds one site search call (default 30s).
	SiteTimeout time.Duration `json:"site_timeout" yaml:"site_timeout" mapstructure:"site_timeout"`

	// MaxResults truncates the ranked output; zero keeps everything.
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// SeederMargin is how many more seeders a duplicate needs to replace
	// the record already merged (default 0: strictly more).
	SeederMargin int `json:"seeder_margin" yaml:"seeder_margin" mapstructure:"seeder_margin"`

	// ReviewThreshold is the recognition confidence below which records
	// are flagged for review (default 0.5).
	ReviewThreshold float64 `json:"review_threshold" yaml:"review_threshold" mapstructure:"review_threshold"`

	// DefaultPolicy decides records that match no rule.
	DefaultPolicy DefaultPolicy `json:"default_policy" yaml:"default_policy" mapstructure:"default_policy"`
}

// OrchestratorConfig holds settings for the download orchestrator.
type OrchestratorConfig struct {
	// MaxAttempts bounds submission attempts per task (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// BaseDelay is the first retry delay; each retry doubles it (default 5s).
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`

	// MaxDelay caps the retry delay (default 5m).
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`

	// PollInterval is the status polling period for active tasks (default 30s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`

	// PollTimeout bounds one status poll (default 10s).
	PollTimeout time.Duration `json:"poll_timeout" yaml:"poll_timeout" mapstructure:"poll_timeout"`

	// MaxActive bounds concurrently active downloads (default 5).
	MaxActive int `json:"max_active" yaml:"max_active" mapstructure:"max_active"`
}

// EngineConfig groups everything the CLI loads from ptengine.yaml.
type EngineConfig struct {
	Search    SearchConfig            `json:"search" yaml:"search" mapstructure:"search"`
	Download  OrchestratorConfig      `json:"download" yaml:"download" mapstructure:"download"`
	Sites     []SiteProfile           `json:"sites" yaml:"sites" mapstructure:"sites"`
	Clients   []DownloadClientProfile `json:"clients" yaml:"clients" mapstructure:"clients"`
	RulesFile string                  `json:"rules_file" yaml:"rules_file" mapstructure:"rules_file"`
	HistoryDB string                  `json:"history_db" yaml:"history_db" mapstructure:"history_db"`
	LogLevel  string                  `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
}
