// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package download

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/pdiddy/ptengine/pkg/types"
)

func init() {
	RegisterClient(types.ClientAria2, newAria2)
}

// aria2 speaks aria2's JSON-RPC 2.0 interface. The profile password is
// the rpc-secret.
type aria2 struct {
	profile types.DownloadClientProfile
	url     string
	client  *http.Client
	log     zerolog.Logger
	seq     atomic.Int64
}

func newAria2(p types.DownloadClientProfile, deps Deps) (Client, error) {
	if p.URL == "" {
		return nil, fmt.Errorf("client %s: url is required", p.Name)
	}
	url := strings.TrimRight(p.URL, "/")
	if !strings.HasSuffix(url, "/jsonrpc") {
		url += "/jsonrpc"
	}
	return &aria2{profile: p, url: url, client: deps.Client, log: deps.Logger}, nil
}

func (a *aria2) Name() string { return a.profile.Name }

type a2Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type a2Response struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type a2Status struct {
	GID             string   `json:"gid"`
	Status          string   `json:"status"`
	TotalLength     string   `json:"totalLength"`
	CompletedLength string   `json:"completedLength"`
	ErrorMessage    string   `json:"errorMessage"`
	FollowedBy      []string `json:"followedBy"`
}

func (a *aria2) call(ctx context.Context, method string, out any, params ...any) error {
	if a.profile.Password != "" {
		params = append([]any{"token:" + a.profile.Password}, params...)
	}
	req := a2Request{
		JSONRPC: "2.0",
		ID:      strconv.FormatInt(a.seq.Add(1), 10),
		Method:  method,
		Params:  params,
	}
	resp, body, err := postJSON(ctx, a.client, a.url, nil, req)
	if err != nil {
		return err
	}

	var r a2Response
	if jerr := json.Unmarshal(body, &r); jerr != nil {
		if resp.StatusCode != http.StatusOK {
			return classifyStatus(resp.StatusCode, snippet(body))
		}
		return Transient(fmt.Errorf("decoding %s response: %w", method, jerr))
	}
	if r.Error != nil {
		msg := r.Error.Message
		if strings.Contains(msg, "is not found") {
			return Permanent(fmt.Errorf("%w: %s", ErrNotFound, msg))
		}
		return Permanent(fmt.Errorf("%s: %s", method, msg))
	}
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode, snippet(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return Transient(fmt.Errorf("decoding %s result: %w", method, err))
	}
	return nil
}

// Add queues the torrent URL and returns the download's GID.
func (a *aria2) Add(ctx context.Context, req AddRequest) (string, error) {
	opts := map[string]string{}
	if a.profile.SavePath != "" {
		opts["dir"] = a.profile.SavePath
	}
	if a.profile.SupportsRateLimit {
		if a.profile.UploadLimit > 0 {
			opts["max-upload-limit"] = strconv.FormatInt(a.profile.UploadLimit, 10)
		}
		if a.profile.DownloadLimit > 0 {
			opts["max-download-limit"] = strconv.FormatInt(a.profile.DownloadLimit, 10)
		}
	}
	if req.Paused {
		opts["pause"] = "true"
	}
	var gid string
	if err := a.call(ctx, "aria2.addUri", &gid, []string{req.URL}, opts); err != nil {
		return "", err
	}
	return gid, nil
}

// tellStatus follows the chain from a .torrent fetch to the download it
// spawned, so callers always see the payload transfer.
func (a *aria2) tellStatus(ctx context.Context, gid string) (a2Status, error) {
	keys := []string{"gid", "status", "totalLength", "completedLength", "errorMessage", "followedBy"}
	var st a2Status
	for hops := 0; hops < 3; hops++ {
		if err := a.call(ctx, "aria2.tellStatus", &st, gid, keys); err != nil {
			return a2Status{}, err
		}
		if len(st.FollowedBy) == 0 {
			return st, nil
		}
		gid = st.FollowedBy[0]
	}
	return st, nil
}

func (a *aria2) Status(ctx context.Context, ref string) (Status, error) {
	st, err := a.tellStatus(ctx, ref)
	if err != nil {
		return Status{}, err
	}
	return aria2Status(st), nil
}

func aria2Status(st a2Status) Status {
	total, _ := strconv.ParseInt(st.TotalLength, 10, 64)
	done, _ := strconv.ParseInt(st.CompletedLength, 10, 64)
	out := Status{}
	if total > 0 {
		out.Progress = float64(done) / float64(total)
	}
	switch st.Status {
	case "active":
		out.State = StateDownloading
		if total > 0 && done == total {
			out.State = StateSeeding
		}
	case "waiting":
		out.State = StateQueued
	case "paused":
		out.State = StatePaused
	case "complete":
		out.State, out.Progress = StateCompleted, 1
	case "removed":
		out.State, out.Message = StateError, "removed from aria2"
	default:
		out.State, out.Message = StateError, st.ErrorMessage
	}
	return out
}

func (a *aria2) target(ctx context.Context, ref string) (string, error) {
	st, err := a.tellStatus(ctx, ref)
	if err != nil {
		return "", err
	}
	return st.GID, nil
}

func (a *aria2) Pause(ctx context.Context, ref string) error {
	gid, err := a.target(ctx, ref)
	if err != nil {
		return err
	}
	return a.call(ctx, "aria2.pause", nil, gid)
}

func (a *aria2) Resume(ctx context.Context, ref string) error {
	gid, err := a.target(ctx, ref)
	if err != nil {
		return err
	}
	return a.call(ctx, "aria2.unpause", nil, gid)
}

// Remove stops the download. aria2 never deletes downloaded files, so
// deleteData is ignored.
func (a *aria2) Remove(ctx context.Context, ref string, deleteData bool) error {
	gid, err := a.target(ctx, ref)
	if err != nil {
		return err
	}
	if deleteData {
		a.log.Debug().Str("gid", gid).Msg("aria2 keeps data on remove")
	}
	return a.call(ctx, "aria2.remove", nil, gid)
}
