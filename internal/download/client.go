// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pdiddy/ptengine/pkg/types"
)

var (
	// ErrDuplicate marks a torrent the client already has.
	ErrDuplicate = errors.New("torrent already present in client")

	// ErrNotFound marks a client reference the client no longer knows.
	ErrNotFound = errors.New("torrent not found in client")
)

// TransientError wraps a client failure worth retrying: timeouts,
// connection errors, and 5xx or 429 responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a client failure that retrying cannot fix:
// rejected credentials, duplicates, invalid torrents.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. It returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as a PermanentError. It returns nil for nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// classifyStatus turns a non-2xx HTTP status from a client API into a
// typed error.
func classifyStatus(status int, detail string) error {
	err := fmt.Errorf("HTTP %d: %s", status, detail)
	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return Transient(err)
	}
	return Permanent(err)
}

// ClientState is a client-independent view of a torrent's state.
type ClientState string

const (
	StateQueued      ClientState = "queued"
	StateChecking    ClientState = "checking"
	StateDownloading ClientState = "downloading"
	StateSeeding     ClientState = "seeding"
	StatePaused      ClientState = "paused"
	StateCompleted   ClientState = "completed"
	StateError       ClientState = "error"
)

// Status is one poll result.
type Status struct {
	State ClientState

	// Progress is the completed fraction in [0, 1].
	Progress float64

	// Message carries the client's error text for StateError.
	Message string
}

// Done reports whether the client holds the full payload and has
// verified it.
func (s Status) Done() bool {
	return s.Progress >= 1 && (s.State == StateSeeding || s.State == StateCompleted)
}

// AddRequest is one submission to a download client.
type AddRequest struct {
	// TaskID is the orchestrator task the torrent belongs to. Clients that
	// cannot return a handle on add use it to find the torrent again.
	TaskID string

	URL  string
	Name string

	// Paused adds the torrent without starting it.
	Paused bool
}

// Client is the capability set every download client implements. Errors
// are wrapped as TransientError or PermanentError.
type Client interface {
	// Name returns the profile name.
	Name() string

	// Add submits a torrent and returns the client's handle for it.
	Add(ctx context.Context, req AddRequest) (string, error)

	// Status polls the torrent identified by ref.
	Status(ctx context.Context, ref string) (Status, error)

	Pause(ctx context.Context, ref string) error
	Resume(ctx context.Context, ref string) error

	// Remove deletes the torrent from the client, and its data when
	// deleteData is set.
	Remove(ctx context.Context, ref string, deleteData bool) error
}

// Deps carries what client constructors need besides the profile.
type Deps struct {
	// Client is the HTTP client used for RPC clients. Nil uses a client
	// with a 30s timeout.
	Client *http.Client
	Logger zerolog.Logger
}

// Constructor builds a client from its profile.
type Constructor func(profile types.DownloadClientProfile, deps Deps) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = map[types.ClientType]Constructor{}
)

// RegisterClient binds a client type to its constructor. Clients in this
// package register themselves at init.
func RegisterClient(t types.ClientType, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = c
}

// ClientTypes returns the registered client types in sorted order.
func ClientTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

// NewClient builds the client for profile.
func NewClient(profile types.DownloadClientProfile, deps Deps) (Client, error) {
	if profile.Name == "" {
		return nil, fmt.Errorf("download client profile has no name")
	}
	registryMu.RLock()
	c, ok := registry[profile.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("client %s: unknown type %q (known: %v)", profile.Name, profile.Type, ClientTypes())
	}
	if deps.Client == nil {
		deps.Client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	deps.Logger = deps.Logger.With().Str("client", profile.Name).Logger()
	return c(profile, deps)
}

// NewClients builds a client for every profile, keyed by name.
func NewClients(profiles []types.DownloadClientProfile, deps Deps) (map[string]Client, error) {
	out := make(map[string]Client, len(profiles))
	for _, p := range profiles {
		if _, dup := out[p.Name]; dup {
			return nil, fmt.Errorf("duplicate download client name %q", p.Name)
		}
		c, err := NewClient(p, deps)
		if err != nil {
			return nil, err
		}
		out[p.Name] = c
	}
	return out, nil
}
