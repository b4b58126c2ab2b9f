// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pdiddy/ptengine/pkg/types"
)

func init() {
	RegisterClient(types.ClientTransmission, newTransmission)
}

const sessionHeader = "X-Transmission-Session-Id"

// Transmission torrent status codes.
const (
	trStopped = iota
	trCheckWait
	trCheck
	trDownloadWait
	trDownload
	trSeedWait
	trSeed
)

// transmission speaks the Transmission RPC protocol. The server hands out
// a session id on a 409 response which must accompany every request.
type transmission struct {
	profile types.DownloadClientProfile
	url     string
	client  *http.Client
	log     zerolog.Logger

	mu        sync.Mutex
	sessionID string
}

func newTransmission(p types.DownloadClientProfile, deps Deps) (Client, error) {
	if p.URL == "" {
		return nil, fmt.Errorf("client %s: url is required", p.Name)
	}
	url := strings.TrimRight(p.URL, "/")
	if !strings.HasSuffix(url, "/rpc") {
		url += "/transmission/rpc"
	}
	return &transmission{profile: p, url: url, client: deps.Client, log: deps.Logger}, nil
}

func (t *transmission) Name() string { return t.profile.Name }

type trRequest struct {
	Method    string `json:"method"`
	Arguments any    `json:"arguments,omitempty"`
}

type trResponse struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments"`
}

type trTorrent struct {
	ID          int     `json:"id"`
	Hash        string  `json:"hashString"`
	Name        string  `json:"name"`
	Status      int     `json:"status"`
	PercentDone float64 `json:"percentDone"`
	Error       int     `json:"error"`
	ErrorString string  `json:"errorString"`
}

// call performs one RPC, repeating it once when the session id is
// missing or stale.
func (t *transmission) call(ctx context.Context, method string, args any, out any) error {
	for attempt := 0; attempt < 2; attempt++ {
		header := http.Header{}
		t.mu.Lock()
		if t.sessionID != "" {
			header.Set(sessionHeader, t.sessionID)
		}
		t.mu.Unlock()
		if t.profile.Username != "" {
			header.Set("Authorization", basicAuth(t.profile.Username, t.profile.Password))
		}

		resp, body, err := postJSON(ctx, t.client, t.url, header, trRequest{Method: method, Arguments: args})
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusConflict {
			t.mu.Lock()
			t.sessionID = resp.Header.Get(sessionHeader)
			t.mu.Unlock()
			t.log.Debug().Msg("transmission session id refreshed")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return classifyStatus(resp.StatusCode, snippet(body))
		}

		var r trResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return Transient(fmt.Errorf("decoding %s response: %w", method, err))
		}
		if r.Result != "success" {
			return Permanent(fmt.Errorf("%s: %s", method, r.Result))
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(r.Arguments, out); err != nil {
			return Transient(fmt.Errorf("decoding %s arguments: %w", method, err))
		}
		return nil
	}
	return Transient(errors.New("transmission session id handshake failed"))
}

// Add submits the torrent URL and returns its info hash.
func (t *transmission) Add(ctx context.Context, req AddRequest) (string, error) {
	args := map[string]any{"filename": req.URL, "paused": req.Paused}
	if t.profile.SavePath != "" {
		args["download-dir"] = t.profile.SavePath
	}
	var out struct {
		Added     *trTorrent `json:"torrent-added"`
		Duplicate *trTorrent `json:"torrent-duplicate"`
	}
	if err := t.call(ctx, "torrent-add", args, &out); err != nil {
		return "", err
	}
	if out.Duplicate != nil {
		return "", Permanent(fmt.Errorf("%w: %s", ErrDuplicate, out.Duplicate.Hash))
	}
	if out.Added == nil || out.Added.Hash == "" {
		return "", Transient(errors.New("torrent-add returned no torrent"))
	}
	hash := out.Added.Hash

	if set := t.settings(); len(set) > 0 {
		set["ids"] = []string{hash}
		if err := t.call(ctx, "torrent-set", set, nil); err != nil {
			t.log.Warn().Err(err).Str("hash", hash).Msg("applying torrent settings")
		}
	}
	return hash, nil
}

// settings returns the torrent-set arguments the profile asks for.
func (t *transmission) settings() map[string]any {
	set := map[string]any{}
	if t.profile.SupportsCategory && t.profile.Category != "" {
		set["labels"] = []string{t.profile.Category}
	}
	if t.profile.SupportsRateLimit {
		if t.profile.UploadLimit > 0 {
			set["uploadLimit"] = t.profile.UploadLimit / 1024
			set["uploadLimited"] = true
		}
		if t.profile.DownloadLimit > 0 {
			set["downloadLimit"] = t.profile.DownloadLimit / 1024
			set["downloadLimited"] = true
		}
	}
	return set
}

func (t *transmission) Status(ctx context.Context, ref string) (Status, error) {
	args := map[string]any{
		"ids":    []string{ref},
		"fields": []string{"id", "hashString", "name", "status", "percentDone", "error", "errorString"},
	}
	var out struct {
		Torrents []trTorrent `json:"torrents"`
	}
	if err := t.call(ctx, "torrent-get", args, &out); err != nil {
		return Status{}, err
	}
	if len(out.Torrents) == 0 {
		return Status{}, Permanent(fmt.Errorf("%w: %s", ErrNotFound, ref))
	}
	return transmissionStatus(out.Torrents[0]), nil
}

func transmissionStatus(tr trTorrent) Status {
	st := Status{Progress: tr.PercentDone}
	switch {
	case tr.Error != 0:
		st.State, st.Message = StateError, tr.ErrorString
	case tr.Status == trCheckWait, tr.Status == trCheck:
		st.State = StateChecking
	case tr.Status == trDownloadWait:
		st.State = StateQueued
	case tr.Status == trDownload:
		st.State = StateDownloading
	case tr.Status == trSeedWait, tr.Status == trSeed:
		st.State = StateSeeding
	case tr.Status == trStopped && tr.PercentDone >= 1:
		st.State = StateCompleted
	default:
		st.State = StatePaused
	}
	return st
}

func (t *transmission) Pause(ctx context.Context, ref string) error {
	return t.call(ctx, "torrent-stop", map[string]any{"ids": []string{ref}}, nil)
}

func (t *transmission) Resume(ctx context.Context, ref string) error {
	return t.call(ctx, "torrent-start", map[string]any{"ids": []string{ref}}, nil)
}

func (t *transmission) Remove(ctx context.Context, ref string, deleteData bool) error {
	return t.call(ctx, "torrent-remove", map[string]any{"ids": []string{ref}, "delete-local-data": deleteData}, nil)
}
