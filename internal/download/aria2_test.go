// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package download

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ptengine/pkg/types"
)

type fakeAria2 struct {
	mu     sync.Mutex
	calls  []string
	params [][]any
	status map[string]map[string]any
}

func (f *fakeAria2) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string `json:"id"`
		Method string `json:"method"`
		Params []any  `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, req.Method)
	f.params = append(f.params, req.Params)
	f.mu.Unlock()

	reply := func(result any) {
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}
	fail := func(msg string) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": 1, "message": msg}})
	}

	if len(req.Params) == 0 || req.Params[0] != "token:secret" {
		fail("Unauthorized")
		return
	}
	switch req.Method {
	case "aria2.addUri":
		reply("gid-meta")
	case "aria2.tellStatus":
		gid := req.Params[1].(string)
		st, ok := f.status[gid]
		if !ok {
			fail("GID " + gid + " is not found")
			return
		}
		reply(st)
	default:
		reply("OK")
	}
}

func newTestAria2(t *testing.T, f *fakeAria2, mutate func(*types.DownloadClientProfile)) Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	p := types.DownloadClientProfile{Name: "a2", Type: types.ClientAria2, URL: srv.URL, Password: "secret"}
	if mutate != nil {
		mutate(&p)
	}
	c, err := NewClient(p, Deps{Client: srv.Client()})
	require.NoError(t, err)
	return c
}

func TestAria2Add(t *testing.T) {
	f := &fakeAria2{}
	c := newTestAria2(t, f, func(p *types.DownloadClientProfile) {
		p.SavePath = "/data"
		p.SupportsRateLimit = true
		p.DownloadLimit = 1 << 20
	})

	gid, err := c.Add(context.Background(), AddRequest{URL: "https://site/dl/1", Paused: true})
	require.NoError(t, err)
	assert.Equal(t, "gid-meta", gid)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.params, 1)
	assert.Equal(t, []any{"https://site/dl/1"}, f.params[0][1])
	opts := f.params[0][2].(map[string]any)
	assert.Equal(t, "/data", opts["dir"])
	assert.Equal(t, "1048576", opts["max-download-limit"])
	assert.Equal(t, "true", opts["pause"])
}

func TestAria2StatusFollowsTorrentDownload(t *testing.T) {
	f := &fakeAria2{status: map[string]map[string]any{
		"gid-meta": {"gid": "gid-meta", "status": "complete", "totalLength": "100", "completedLength": "100", "followedBy": []string{"gid-data"}},
		"gid-data": {"gid": "gid-data", "status": "active", "totalLength": "1000", "completedLength": "250"},
	}}
	c := newTestAria2(t, f, nil)

	st, err := c.Status(context.Background(), "gid-meta")
	require.NoError(t, err)
	assert.Equal(t, StateDownloading, st.State)
	assert.InDelta(t, 0.25, st.Progress, 1e-9)

	require.NoError(t, c.Pause(context.Background(), "gid-meta"))
	f.mu.Lock()
	last := f.params[len(f.params)-1]
	assert.Equal(t, "aria2.pause", f.calls[len(f.calls)-1])
	assert.Equal(t, "gid-data", last[1])
	f.mu.Unlock()
}

func TestAria2Errors(t *testing.T) {
	c := newTestAria2(t, &fakeAria2{status: map[string]map[string]any{}}, nil)

	_, err := c.Status(context.Background(), "gid-x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsPermanent(err))

	bad := newTestAria2(t, &fakeAria2{}, func(p *types.DownloadClientProfile) { p.Password = "nope" })
	_, err = bad.Add(context.Background(), AddRequest{URL: "https://site/dl/1"})
	assert.True(t, IsPermanent(err))
	assert.ErrorContains(t, err, "Unauthorized")
}

func TestAria2StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		in   a2Status
		want Status
	}{
		{"active", a2Status{Status: "active", TotalLength: "200", CompletedLength: "50"}, Status{State: StateDownloading, Progress: 0.25}},
		{"seeding", a2Status{Status: "active", TotalLength: "200", CompletedLength: "200"}, Status{State: StateSeeding, Progress: 1}},
		{"waiting", a2Status{Status: "waiting"}, Status{State: StateQueued}},
		{"paused", a2Status{Status: "paused", TotalLength: "10", CompletedLength: "5"}, Status{State: StatePaused, Progress: 0.5}},
		{"complete", a2Status{Status: "complete"}, Status{State: StateCompleted, Progress: 1}},
		{"removed", a2Status{Status: "removed"}, Status{State: StateError, Message: "removed from aria2"}},
		{"error", a2Status{Status: "error", ErrorMessage: "disk full"}, Status{State: StateError, Message: "disk full"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, aria2Status(tt.in))
		})
	}
}
