package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/user/linkbridge/internal/room"
	"github.com/user/linkbridge/internal/session"
	"github.com/user/linkbridge/internal/types"
)

const (
	DefaultTick       = 50 * time.Millisecond
	maxPendingOps     = 64
	reconnectMaxDelay = 30 * time.Second
)

var (
	ErrStopped     = errors.New("bridge: runner stopped")
	ErrUnknownLink = errors.New("bridge: unknown link tag")
)

type RunnerOptions struct {
	Tick    time.Duration
	Session session.Options
	// Room.URL empty runs a single-peer room in process; this peer is host.
	Room room.Options
}

type sessionMsg struct {
	client *session.Client
	packet session.Packet
	up     bool
}

type roomMsg struct {
	client *room.Client
	event  room.Event
	up     bool
}

// Runner owns the tick loop. Every Core call happens on the loop goroutine;
// other goroutines reach the Core through Do.
type Runner struct {
	core *Core
	opts RunnerOptions

	ops     chan func()
	pending *semaphore.Weighted
	roomCh  chan roomMsg
	sessCh  chan sessionMsg
	done    chan struct{}

	dialSession func(context.Context, session.Options) (*session.Client, error)
	dialRoom    func(context.Context, room.Options) (*room.Client, error)

	// loop-owned
	runCtx     context.Context
	roomClient *room.Client
	sessClient *session.Client
	sessCancel context.CancelFunc
	sessWG     sync.WaitGroup
}

func NewRunner(core *Core, opts RunnerOptions) *Runner {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Room.Peer == "" {
		opts.Room.Peer = types.NewPeerID()
	}
	return &Runner{
		core:        core,
		opts:        opts,
		ops:         make(chan func()),
		pending:     semaphore.NewWeighted(maxPendingOps),
		roomCh:      make(chan roomMsg, 64),
		sessCh:      make(chan sessionMsg, 64),
		done:        make(chan struct{}),
		dialSession: session.Dial,
		dialRoom:    room.Dial,
	}
}

// PeerID returns this process's identity in the room.
func (r *Runner) PeerID() types.PeerID {
	return r.opts.Room.Peer
}

// Do runs fn on the tick loop and waits for its result.
func (r *Runner) Do(ctx context.Context, fn func(*Core) error) error {
	if err := r.pending.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.pending.Release(1)

	result := make(chan error, 1)
	op := func() {
		defer func() {
			if rec := recover(); rec != nil {
				result <- fmt.Errorf("panic: %v", rec)
			}
		}()
		result <- fn(r.core)
	}
	select {
	case r.ops <- op:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run blocks until ctx is cancelled or a supervisor fails.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if r.opts.Room.URL != "" {
		g.Go(func() error {
			r.superviseRoom(ctx)
			return nil
		})
	}
	g.Go(func() error {
		return r.loop(ctx)
	})
	return g.Wait()
}

func (r *Runner) loop(ctx context.Context) error {
	r.runCtx = ctx
	defer close(r.done)
	defer func() {
		r.stopSession()
		r.sessWG.Wait()
		if r.roomClient != nil {
			r.roomClient.Close()
		}
		if err := r.core.FlushCheckpoint(); err != nil {
			slog.Warn("final checkpoint flush failed", "error", err)
		}
	}()

	if r.opts.Room.URL == "" {
		mesh := room.NewMesh()
		r.applyRole(r.core.AttachNetwork(mesh.Join(r.opts.Room.Peer)))
	}

	ticker := time.NewTicker(r.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.applyRole(r.core.Tick(now))
		case op := <-r.ops:
			op()
		case m := <-r.roomCh:
			r.handleRoom(m)
		case m := <-r.sessCh:
			r.handleSession(m)
		}
	}
}

func (r *Runner) handleRoom(m roomMsg) {
	if m.up {
		if r.roomClient != nil {
			r.roomClient.Close()
		}
		r.roomClient = m.client
		r.applyRole(r.core.AttachNetwork(m.client))
		return
	}
	if m.client != r.roomClient {
		return
	}
	switch {
	case m.event.Envelope != nil:
		r.core.HandleEnvelope(*m.event.Envelope)
	case m.event.Closed:
		slog.Warn("room connection lost", "error", m.event.Err)
		r.roomClient = nil
		r.applyRole(r.core.AttachNetwork(nil))
	default:
		slog.Info("room membership changed", "host", string(m.event.Host), "peers", len(m.event.Peers), "self", string(r.opts.Room.Peer))
		r.applyRole(r.core.RefreshRole())
		r.core.Resync()
	}
}

func (r *Runner) handleSession(m sessionMsg) {
	if m.up {
		if !r.core.IsHost() || r.sessCancel == nil {
			m.client.Close()
			return
		}
		r.sessClient = m.client
		r.core.AttachSession(m.client)
		return
	}
	if m.client != r.sessClient {
		return
	}
	if closed, ok := m.packet.(session.Closed); ok {
		slog.Warn("session closed", "error", closed.Err)
		r.sessClient = nil
		r.core.DetachSession()
		return
	}
	r.core.HandlePacket(m.packet)
}

func (r *Runner) applyRole(gained, lost bool) {
	if lost {
		r.stopSession()
	}
	if gained {
		r.startSession()
	}
}

func (r *Runner) startSession() {
	if r.opts.Session.URL == "" {
		slog.Warn("host without a configured session endpoint")
		return
	}
	if r.sessCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.runCtx)
	r.sessCancel = cancel
	opts := r.opts.Session
	opts.Tags = r.core.LinkTags()
	r.sessWG.Add(1)
	go func() {
		defer r.sessWG.Done()
		r.superviseSession(ctx, opts)
	}()
}

func (r *Runner) stopSession() {
	if r.sessCancel != nil {
		r.sessCancel()
		r.sessCancel = nil
	}
	if r.sessClient != nil {
		r.sessClient.Close()
		r.sessClient = nil
	}
	r.core.DetachSession()
}

func newReconnectBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = reconnectMaxDelay
	bo.MaxElapsedTime = 0
	return bo
}

// superviseSession keeps one session alive until ctx ends. A refused login
// is permanent and ends supervision.
func (r *Runner) superviseSession(ctx context.Context, opts session.Options) {
	for {
		var client *session.Client
		err := backoff.RetryNotify(func() error {
			c, err := r.dialSession(ctx, opts)
			if err != nil && !session.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			client = c
			return err
		}, backoff.WithContext(newReconnectBackoff(), ctx), func(err error, d time.Duration) {
			slog.Warn("session connect failed, retrying", "url", opts.URL, "error", err, "delay", d)
		})
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("session connect abandoned", "url", opts.URL, "error", err)
			}
			return
		}

		if !sendTo(ctx, r.sessCh, sessionMsg{client: client, up: true}) {
			client.Close()
			return
		}
		for p := range client.Events() {
			if !sendTo(ctx, r.sessCh, sessionMsg{client: client, packet: p}) {
				client.Close()
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (r *Runner) superviseRoom(ctx context.Context) {
	for {
		var client *room.Client
		err := backoff.RetryNotify(func() error {
			c, err := r.dialRoom(ctx, r.opts.Room)
			client = c
			return err
		}, backoff.WithContext(newReconnectBackoff(), ctx), func(err error, d time.Duration) {
			slog.Warn("room connect failed, retrying", "url", r.opts.Room.URL, "error", err, "delay", d)
		})
		if err != nil {
			return
		}

		if !sendTo(ctx, r.roomCh, roomMsg{client: client, up: true}) {
			client.Close()
			return
		}
		for ev := range client.Events() {
			if !sendTo(ctx, r.roomCh, roomMsg{client: client, event: ev}) {
				client.Close()
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func sendTo[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
