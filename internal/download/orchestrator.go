// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package download submits accepted torrent records to download clients
// and tracks each submission through its lifecycle: queued, submitting,
// active, paused, retrying, and the terminal completed and failed states.
// Every task runs in its own goroutine; transitions on one task are
// serialized by that task's mutex.
package download

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/ptengine/pkg/types"
)

const (
	defaultMaxAttempts  = 3
	defaultBaseDelay    = 5 * time.Second
	defaultMaxDelay     = 5 * time.Minute
	defaultPollInterval = 30 * time.Second
	defaultPollTimeout  = 10 * time.Second
	defaultMaxActive    = 5
	eventBuffer         = 256
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("orchestrator closed")

// Event reports one task transition. From is empty for the initial
// queued event.
type Event struct {
	TaskID string
	From   types.TaskState
	To     types.TaskState
	At     time.Time
	Note   string

	// Task is a snapshot taken right after the transition.
	Task types.DownloadTask
}

// Archiver stores tasks that reached a terminal state.
type Archiver interface {
	Archive(ctx context.Context, task types.DownloadTask) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithArchiver records terminal tasks in a.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archive = a }
}

type task struct {
	mu        sync.Mutex
	t         types.DownloadTask
	client    Client
	cancel    context.CancelFunc
	cancelled bool
}

func (tk *task) snapshot() types.DownloadTask {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	return tk.snapshotLocked()
}

func (tk *task) snapshotLocked() types.DownloadTask {
	s := tk.t
	s.History = slices.Clone(tk.t.History)
	return s
}

func (tk *task) update(fn func(*types.DownloadTask)) {
	tk.mu.Lock()
	fn(&tk.t)
	tk.t.UpdatedAt = time.Now()
	tk.mu.Unlock()
}

// Orchestrator drives download tasks against a fixed set of clients.
type Orchestrator struct {
	clients map[string]Client
	cfg     types.OrchestratorConfig
	log     zerolog.Logger
	archive Archiver
	slots   *semaphore.Weighted
	events  chan Event
	dropped atomic.Int64

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu           sync.RWMutex
	tasks        map[string]*task
	closed       bool
	eventsClosed bool
}

// New returns an orchestrator over clients, keyed by profile name.
func New(clients map[string]Client, cfg types.OrchestratorConfig, opts ...Option) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = defaultMaxActive
	}
	ctx, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		clients: clients,
		cfg:     cfg,
		log:     zerolog.Nop(),
		slots:   semaphore.NewWeighted(int64(cfg.MaxActive)),
		events:  make(chan Event, eventBuffer),
		ctx:     ctx,
		stop:    stop,
		tasks:   make(map[string]*task),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Events returns the transition stream. Events are dropped rather than
// blocking a task when the buffer is full. The channel closes on Close.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// Submit queues rec for the named client and starts driving it. The
// returned task is a snapshot.
func (o *Orchestrator) Submit(ctx context.Context, rec types.TorrentRecord, client string) (*types.DownloadTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, ok := o.clients[client]
	if !ok {
		return nil, fmt.Errorf("unknown download client %q", client)
	}
	if rec.DownloadURL == "" {
		return nil, fmt.Errorf("record %q has no download URL", rec.Title)
	}

	now := time.Now()
	tctx, cancel := context.WithCancel(o.ctx)
	tk := &task{
		client: c,
		cancel: cancel,
		t: types.DownloadTask{
			ID:        uuid.NewString(),
			Record:    rec,
			Client:    client,
			State:     types.TaskQueued,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	o.tasks[tk.t.ID] = tk
	o.wg.Add(1)
	o.mu.Unlock()

	snap := tk.snapshot()
	o.emit(Event{TaskID: snap.ID, To: types.TaskQueued, At: now, Task: snap})
	o.log.Info().
		Str("task", snap.ID).
		Str("client", client).
		Str("fingerprint", rec.Fingerprint).
		Str("title", rec.Title).
		Msg("task queued")

	go o.run(tctx, tk)
	return &snap, nil
}

// Get returns a snapshot of the task.
func (o *Orchestrator) Get(id string) (types.DownloadTask, error) {
	tk, err := o.task(id)
	if err != nil {
		return types.DownloadTask{}, err
	}
	return tk.snapshot(), nil
}

// List returns snapshots of every task, oldest first.
func (o *Orchestrator) List() []types.DownloadTask {
	o.mu.RLock()
	tasks := make([]*task, 0, len(o.tasks))
	for _, tk := range o.tasks {
		tasks = append(tasks, tk)
	}
	o.mu.RUnlock()

	out := make([]types.DownloadTask, 0, len(tasks))
	for _, tk := range tasks {
		out = append(out, tk.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Cancel fails the task with reason. Terminal tasks cannot be cancelled.
// A torrent already handed to the client is removed from it, keeping its
// data.
func (o *Orchestrator) Cancel(id, reason string) error {
	tk, err := o.task(id)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "cancelled by request"
	}
	_, err = o.apply(tk, types.TaskFailed, reason, func(t *types.DownloadTask) {
		t.Reason = ErrCancelled.Error() + ": " + reason
		t.LastError = ErrCancelled.Error()
		tk.cancelled = true
	})
	if err != nil {
		return err
	}
	tk.cancel()
	return nil
}

// Pause pauses an active task in its client.
func (o *Orchestrator) Pause(ctx context.Context, id string) error {
	return o.toggle(ctx, id, types.TaskPaused, Client.Pause)
}

// Resume restarts a paused task in its client.
func (o *Orchestrator) Resume(ctx context.Context, id string) error {
	return o.toggle(ctx, id, types.TaskActive, Client.Resume)
}

func (o *Orchestrator) toggle(ctx context.Context, id string, to types.TaskState, call func(Client, context.Context, string) error) error {
	tk, err := o.task(id)
	if err != nil {
		return err
	}
	snap := tk.snapshot()
	if err := checkTransition(snap.State, to); err != nil {
		return err
	}
	if err := call(tk.client, ctx, snap.ClientRef); err != nil {
		return fmt.Errorf("task %s: %w", id, err)
	}
	_, err = o.apply(tk, to, "requested", nil)
	return err
}

// Close stops every task goroutine and closes the event stream. Tasks
// keep their last state; nothing is removed from the clients.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.stop()
	o.wg.Wait()

	o.mu.Lock()
	o.eventsClosed = true
	close(o.events)
	o.mu.Unlock()

	if n := o.dropped.Load(); n > 0 {
		o.log.Warn().Int64("dropped", n).Msg("task events dropped")
	}
}

func (o *Orchestrator) task(id string) (*task, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	tk, ok := o.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return tk, nil
}

// apply moves tk to state to. mutate runs with the task mutex held.
func (o *Orchestrator) apply(tk *task, to types.TaskState, note string, mutate func(*types.DownloadTask)) (types.DownloadTask, error) {
	tk.mu.Lock()
	from := tk.t.State
	if err := checkTransition(from, to); err != nil {
		tk.mu.Unlock()
		return types.DownloadTask{}, err
	}
	now := time.Now()
	if mutate != nil {
		mutate(&tk.t)
	}
	tk.t.State = to
	tk.t.UpdatedAt = now
	tk.t.History = append(tk.t.History, types.Transition{From: from, To: to, At: now, Note: note})
	snap := tk.snapshotLocked()
	o.emit(Event{TaskID: snap.ID, From: from, To: to, At: now, Note: note, Task: snap})
	tk.mu.Unlock()

	ev := o.log.Debug()
	if to.Terminal() {
		ev = o.log.Info()
	}
	ev.Str("task", snap.ID).
		Str("state", string(to)).
		Str("from", string(from)).
		Str("fingerprint", snap.Record.Fingerprint).
		Str("note", note).
		Msg("task transition")

	if to.Terminal() && o.archive != nil {
		actx, cancel := context.WithTimeout(context.Background(), o.cfg.PollTimeout)
		if err := o.archive.Archive(actx, snap); err != nil {
			o.log.Warn().Err(err).Str("task", snap.ID).Msg("archiving task")
		}
		cancel()
	}
	return snap, nil
}

func (o *Orchestrator) emit(ev Event) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.eventsClosed {
		return
	}
	select {
	case o.events <- ev:
	default:
		o.dropped.Add(1)
	}
}

// backoff returns the delay before retry n (1-based): BaseDelay doubled
// per attempt, capped at MaxDelay.
func backoff(n int, base, ceiling time.Duration) time.Duration {
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return min(d, ceiling)
}

// run drives one task from queued to a terminal state, or until the task
// is cancelled or the orchestrator closes.
func (o *Orchestrator) run(ctx context.Context, tk *task) {
	defer o.wg.Done()
	defer tk.cancel()
	id := tk.snapshot().ID
	log := o.log.With().Str("task", id).Logger()

	ref, ok := o.submit(ctx, tk, log)
	if ok {
		o.poll(ctx, tk, ref, log)
		o.slots.Release(1)
	}

	tk.mu.Lock()
	cancelled := tk.cancelled
	tk.mu.Unlock()
	if cancelled && ref != "" {
		o.discard(tk.client, ref, log)
	}
}

// submit hands the record to the client, retrying transient failures. It
// returns the client reference whenever the client accepted the torrent,
// and whether the task became active. Each attempt holds an active slot;
// the slot is released before a retry backoff and kept only when the task
// became active.
func (o *Orchestrator) submit(ctx context.Context, tk *task, log zerolog.Logger) (string, bool) {
	for {
		if err := o.slots.Acquire(ctx, 1); err != nil {
			return "", false
		}
		snap, err := o.apply(tk, types.TaskSubmitting, "", func(t *types.DownloadTask) { t.Attempts++ })
		if err != nil {
			o.slots.Release(1)
			return "", false
		}

		ref, err := tk.client.Add(ctx, AddRequest{TaskID: snap.ID, URL: snap.Record.DownloadURL, Name: snap.Record.Title})
		if ctx.Err() != nil {
			o.slots.Release(1)
			return ref, false
		}
		if err == nil {
			if _, aerr := o.apply(tk, types.TaskActive, "accepted by client", func(t *types.DownloadTask) {
				t.ClientRef = ref
				t.LastError = ""
			}); aerr != nil {
				o.slots.Release(1)
				return ref, false
			}
			return ref, true
		}
		o.slots.Release(1)

		msg := err.Error()
		if IsPermanent(err) {
			o.apply(tk, types.TaskFailed, msg, func(t *types.DownloadTask) {
				t.LastError = msg
				t.Reason = msg
			})
			return "", false
		}

		if _, aerr := o.apply(tk, types.TaskRetrying, msg, func(t *types.DownloadTask) { t.LastError = msg }); aerr != nil {
			return "", false
		}
		if snap.Attempts >= o.cfg.MaxAttempts {
			o.apply(tk, types.TaskFailed, "retries exhausted", func(t *types.DownloadTask) {
				t.Reason = fmt.Sprintf("retries exhausted after %d attempts", t.Attempts)
			})
			return "", false
		}

		delay := backoff(snap.Attempts, o.cfg.BaseDelay, o.cfg.MaxDelay)
		log.Warn().Err(err).Int("attempt", snap.Attempts).Dur("backoff", delay).Msg("submission failed, retrying")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", false
		case <-timer.C:
		}
	}
}

// poll checks the client every PollInterval until the task completes,
// fails, or is cancelled. Paused tasks are not polled.
func (o *Orchestrator) poll(ctx context.Context, tk *task, ref string, log zerolog.Logger) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		state := tk.snapshot().State
		if state.Terminal() {
			return
		}
		if state == types.TaskPaused {
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, o.cfg.PollTimeout)
		st, err := tk.client.Status(pctx, ref)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			msg := err.Error()
			if IsPermanent(err) {
				if _, aerr := o.apply(tk, types.TaskFailed, msg, func(t *types.DownloadTask) {
					t.LastError = msg
					t.Reason = msg
				}); aerr == nil {
					return
				}
				continue
			}
			tk.update(func(t *types.DownloadTask) { t.LastError = msg })
			log.Warn().Err(err).Msg("status poll failed")
			continue
		}

		tk.update(func(t *types.DownloadTask) { t.Progress = st.Progress })
		switch {
		case st.Done():
			if _, err := o.apply(tk, types.TaskCompleted, string(st.State), nil); err == nil {
				return
			}
		case st.State == StateError:
			reason := "client error: " + st.Message
			if _, err := o.apply(tk, types.TaskFailed, reason, func(t *types.DownloadTask) {
				t.LastError = st.Message
				t.Reason = reason
			}); err == nil {
				return
			}
		}
	}
}

// discard removes a cancelled task's torrent from its client.
func (o *Orchestrator) discard(c Client, ref string, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PollTimeout)
	defer cancel()
	if err := c.Remove(ctx, ref, false); err != nil {
		log.Warn().Err(err).Str("ref", ref).Msg("removing cancelled torrent")
	}
}
