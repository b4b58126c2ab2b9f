// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// TaskState is the lifecycle state of a DownloadTask.
type TaskState string

const (
	TaskQueued     TaskState = "queued"
	TaskSubmitting TaskState = "submitting"
	TaskActive     TaskState = "active"
	TaskPaused     TaskState = "paused"
	TaskRetrying   TaskState = "retrying"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

// Terminal reports whether no transition may leave the state.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// ClientType selects a download client implementation.
type ClientType string

const (
	ClientQBittorrent  ClientType = "qbittorrent"
	ClientTransmission ClientType = "transmission"
	ClientAria2        ClientType = "aria2"
)

// DownloadClientProfile holds connection parameters for one download client.
type DownloadClientProfile struct {
	Name     string     `json:"name" yaml:"name" mapstructure:"name"`
	Type     ClientType `json:"type" yaml:"type" mapstructure:"type"`
	URL      string     `json:"url" yaml:"url" mapstructure:"url"`
	Username string     `json:"username,omitempty" yaml:"username,omitempty" mapstructure:"username"`
	Password string     `json:"password,omitempty" yaml:"password,omitempty" mapstructure:"password"`

	// Category is applied to submitted torrents when SupportsCategory is set.
	Category string `json:"category,omitempty" yaml:"category,omitempty" mapstructure:"category"`
	SavePath string `json:"save_path,omitempty" yaml:"save_path,omitempty" mapstructure:"save_path"`

	SupportsCategory  bool `json:"supports_category" yaml:"supports_category" mapstructure:"supports_category"`
	SupportsRateLimit bool `json:"supports_rate_limit" yaml:"supports_rate_limit" mapstructure:"supports_rate_limit"`

	// UploadLimit and DownloadLimit are bytes per second; zero is unlimited.
	UploadLimit   int64 `json:"upload_limit,omitempty" yaml:"upload_limit,omitempty" mapstructure:"upload_limit"`
	DownloadLimit int64 `json:"download_limit,omitempty" yaml:"download_limit,omitempty" mapstructure:"download_limit"`
}

// Transition records one state change of a task.
type Transition struct {
	From TaskState `json:"from" yaml:"from"`
	To   TaskState `json:"to" yaml:"to"`
	At   time.Time `json:"at" yaml:"at"`
	Note string    `json:"note,omitempty" yaml:"note,omitempty"`
}

// DownloadTask tracks submission of one record to one client. The
// orchestrator owns it; callers receive snapshots.
type DownloadTask struct {
	ID     string        `json:"id" yaml:"id"`
	Record TorrentRecord `json:"record" yaml:"record"`

	// Client names the DownloadClientProfile the task targets.
	Client string `json:"client" yaml:"client"`

	State    TaskState `json:"state" yaml:"state"`
	Attempts int       `json:"attempts" yaml:"attempts"`

	// LastError keeps the most recent submission or polling error.
	LastError string `json:"last_error,omitempty" yaml:"last_error,omitempty"`

	// Reason explains a Failed state (cancellation, exhausted retries,
	// permanent error).
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// ClientRef is the handle the client returned on submission.
	ClientRef string `json:"client_ref,omitempty" yaml:"client_ref,omitempty"`

	// Progress is the last polled completion fraction in [0, 1].
	Progress float64 `json:"progress" yaml:"progress"`

	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" yaml:"updated_at"`
	History   []Transition `json:"history" yaml:"history"`
}
