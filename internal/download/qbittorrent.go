// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package download

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog"

	"github.com/pdiddy/ptengine/pkg/types"
)

func init() {
	RegisterClient(types.ClientQBittorrent, newQBittorrent)
}

const qbitTagPrefix = "ptengine-"

// qbittorrent drives the qBittorrent Web API. Adding by URL returns no
// hash, so each torrent is tagged with its task id and found by tag.
type qbittorrent struct {
	profile types.DownloadClientProfile
	api     *qbt.Client
	log     zerolog.Logger

	mu       sync.Mutex
	loggedIn bool
}

func newQBittorrent(p types.DownloadClientProfile, deps Deps) (Client, error) {
	if p.URL == "" {
		return nil, fmt.Errorf("client %s: url is required", p.Name)
	}
	api := qbt.NewClient(qbt.Config{
		Host:     strings.TrimRight(p.URL, "/"),
		Username: p.Username,
		Password: p.Password,
		Timeout:  int(defaultHTTPTimeout.Seconds()),
	})
	return &qbittorrent{profile: p, api: api, log: deps.Logger}, nil
}

func (q *qbittorrent) Name() string { return q.profile.Name }

func (q *qbittorrent) login(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.loggedIn {
		return nil
	}
	if err := q.api.LoginCtx(ctx); err != nil {
		return qbitError("login", err)
	}
	q.loggedIn = true
	return nil
}

// fail drops the session so the next call logs in again.
func (q *qbittorrent) fail(op string, err error) error {
	q.mu.Lock()
	q.loggedIn = false
	q.mu.Unlock()
	return qbitError(op, err)
}

// qbitError classifies a library error. Rejected credentials and bans
// are permanent; everything else is worth another try.
func qbitError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "bad credentials") || strings.Contains(msg, "banned") || strings.Contains(msg, "fails.") {
		return Permanent(fmt.Errorf("qbittorrent %s: %w", op, err))
	}
	return Transient(fmt.Errorf("qbittorrent %s: %w", op, err))
}

// Add submits the torrent URL tagged with the task id and returns the tag.
func (q *qbittorrent) Add(ctx context.Context, req AddRequest) (string, error) {
	if err := q.login(ctx); err != nil {
		return "", err
	}
	tag := qbitTagPrefix + req.TaskID
	// A retried add may find the torrent an earlier attempt submitted.
	if existing, err := q.find(ctx, tag); err == nil && existing != nil {
		return tag, nil
	}
	if err := q.api.AddTorrentFromUrlCtx(ctx, req.URL, q.addOptions(tag, req)); err != nil {
		return "", q.fail("add", err)
	}
	return tag, nil
}

func (q *qbittorrent) addOptions(tag string, req AddRequest) map[string]string {
	opts := map[string]string{"tags": tag}
	if q.profile.SupportsCategory && q.profile.Category != "" {
		opts["category"] = q.profile.Category
	}
	if q.profile.SavePath != "" {
		opts["savepath"] = q.profile.SavePath
	}
	if req.Name != "" {
		opts["rename"] = req.Name
	}
	if q.profile.SupportsRateLimit {
		if q.profile.UploadLimit > 0 {
			opts["upLimit"] = strconv.FormatInt(q.profile.UploadLimit, 10)
		}
		if q.profile.DownloadLimit > 0 {
			opts["dlLimit"] = strconv.FormatInt(q.profile.DownloadLimit, 10)
		}
	}
	if req.Paused {
		// qBittorrent 5 renamed paused to stopped.
		opts["paused"] = "true"
		opts["stopped"] = "true"
	}
	return opts
}

// find returns the torrent tagged with ref, or nil when there is none.
func (q *qbittorrent) find(ctx context.Context, ref string) (*qbt.Torrent, error) {
	torrents, err := q.api.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Tag: ref})
	if err != nil {
		return nil, q.fail("list", err)
	}
	for i := range torrents {
		if hasTag(torrents[i].Tags, ref) {
			return &torrents[i], nil
		}
	}
	return nil, nil
}

func hasTag(tags, tag string) bool {
	for _, t := range strings.Split(tags, ",") {
		if strings.TrimSpace(t) == tag {
			return true
		}
	}
	return false
}

// lookup resolves ref to its torrent. A missing torrent is transient:
// qBittorrent registers URL downloads only after fetching the file.
func (q *qbittorrent) lookup(ctx context.Context, ref string) (*qbt.Torrent, error) {
	if err := q.login(ctx); err != nil {
		return nil, err
	}
	t, err := q.find(ctx, ref)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, Transient(fmt.Errorf("%w: %s", ErrNotFound, ref))
	}
	return t, nil
}

func (q *qbittorrent) Status(ctx context.Context, ref string) (Status, error) {
	t, err := q.lookup(ctx, ref)
	if err != nil {
		return Status{}, err
	}
	return qbitStatus(*t), nil
}

func qbitStatus(t qbt.Torrent) Status {
	st := Status{Progress: t.Progress}
	switch t.State {
	case qbt.TorrentStateError, qbt.TorrentStateMissingFiles:
		st.State, st.Message = StateError, string(t.State)
	case qbt.TorrentStateCheckingUp, qbt.TorrentStateCheckingDl, qbt.TorrentStateCheckingResumeData,
		qbt.TorrentStateAllocating, qbt.TorrentStateMoving:
		st.State = StateChecking
	case qbt.TorrentStateUploading, qbt.TorrentStateStalledUp, qbt.TorrentStateForcedUp, qbt.TorrentStateQueuedUp:
		st.State = StateSeeding
	case qbt.TorrentStateQueuedDl:
		st.State = StateQueued
	case qbt.TorrentStatePausedUp, "stoppedUP":
		st.State = StateCompleted
	case qbt.TorrentStatePausedDl, "stoppedDL":
		st.State = StatePaused
	default:
		st.State = StateDownloading
	}
	return st
}

func (q *qbittorrent) Pause(ctx context.Context, ref string) error {
	t, err := q.lookup(ctx, ref)
	if err != nil {
		return err
	}
	if err := q.api.PauseCtx(ctx, []string{t.Hash}); err != nil {
		return q.fail("pause", err)
	}
	return nil
}

func (q *qbittorrent) Resume(ctx context.Context, ref string) error {
	t, err := q.lookup(ctx, ref)
	if err != nil {
		return err
	}
	if err := q.api.ResumeCtx(ctx, []string{t.Hash}); err != nil {
		return q.fail("resume", err)
	}
	return nil
}

func (q *qbittorrent) Remove(ctx context.Context, ref string, deleteData bool) error {
	t, err := q.lookup(ctx, ref)
	if err != nil {
		return err
	}
	if err := q.api.DeleteTorrentsCtx(ctx, []string{t.Hash}, deleteData); err != nil {
		return q.fail("remove", err)
	}
	return nil
}
