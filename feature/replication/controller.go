package replication

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"library-sync/core/errs"
	"library-sync/core/metrics"
	"library-sync/core/reconcile"
	"library-sync/feature/library/merge"
	"library-sync/feature/library/models"
	"library-sync/feature/library/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Local is the record store as seen by replication.
type Local interface {
	All(ctx context.Context, filter models.Filter) ([]models.Record, error)
	Read(ctx context.Context, id string) (*models.Record, error)
	Upsert(ctx context.Context, rec models.Record, lib *models.LibraryRef) (*models.Record, error)
	Delete(ctx context.Context, id string) error
	Observe(l store.Listener) func()
	PendingWrites(ctx context.Context) ([]store.PendingWrite, error)
	AckPending(ctx context.Context, id string, seq int64, writes int) error
}

// Handle is one active replication of a scope. ctx governs the session and
// the pull stream; pushCtx governs pushes so Stop can drain them.
type Handle struct {
	id         string
	scope      Scope
	ctx        context.Context
	cancel     context.CancelFunc
	pushCtx    context.Context
	cancelPush context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	// syncMu serializes pushes, pulled batches and sync cycles.
	syncMu     sync.Mutex
	checkpoint Checkpoint
	connected  atomic.Bool
	pushFailed atomic.Bool
}

// ID identifies the handle.
func (h *Handle) ID() string { return h.id }

// Scope returns the replicated scope.
func (h *Handle) Scope() Scope { return h.scope }

// Done is closed once stopping begins.
func (h *Handle) Done() <-chan struct{} { return h.ctx.Done() }

// enter registers work that Stop must wait for. It fails once stopping began.
func (h *Handle) enter() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	return true
}

func newHandle(scope Scope) *Handle {
	h := &Handle{id: uuid.NewString(), scope: scope}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.pushCtx, h.cancelPush = context.WithCancel(context.Background())
	return h
}

// close stops the pull side, lets pushes in flight finish within drain and
// then cancels whatever is left.
func (h *Handle) close(drain time.Duration) {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(drain)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	}
	h.cancelPush()
	<-done
}

// Controller owns the replication lifecycle between the local store and the
// remote backend. At most one scope is replicated at a time.
type Controller struct {
	local   Local
	backend Backend
	logger  *zap.Logger
	metrics *metrics.Metrics
	cfg     Config
	opts    merge.Options
	now     func() time.Time

	broker    *StatusBroker
	pending   *pendingQueue
	unobserve func()

	startMu sync.Mutex
	sf      singleflight.Group

	mu     sync.Mutex
	active *Handle
}

// Option customizes a Controller.
type Option func(*Controller)

// WithMetrics records push, pull and state metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates a controller and starts tracking local writes.
func New(local Local, backend Backend, logger *zap.Logger, cfg Config, opts ...Option) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		local:   local,
		backend: backend,
		logger:  logger,
		cfg:     cfg,
		opts: merge.Options{
			PreserveLocalFavorites:  cfg.PreserveLocalFavorites,
			PreserveRemoteFavorites: cfg.PreserveRemoteFavorites,
			ConflictResolution:      merge.Resolution(cfg.ConflictResolution),
			ConflictWindow:          cfg.ConflictWindow,
		},
		now:     time.Now,
		broker:  NewStatusBroker(Status{State: StateOffline}),
		pending: newPendingQueue(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics.SetState(string(StateOffline), knownStates)
	c.unobserve = local.Observe(c.observe)
	if _, err := c.reload(context.Background(), func(pendingOp) bool { return true }); err != nil {
		logger.Warn("Failed to load pending writes", zap.Error(err))
	}
	return c
}

// reload replaces the pending queue with the journaled writes kept by keep.
func (c *Controller) reload(ctx context.Context, keep func(pendingOp) bool) (int, error) {
	writes, err := c.local.PendingWrites(ctx)
	if err != nil {
		return c.pending.retain(keep), err
	}
	ops := writes[:0]
	for _, w := range writes {
		if keep(w) {
			ops = append(ops, w)
		}
	}
	n := c.pending.load(ops, keep)
	c.metrics.SetPending(n)
	c.publish(func(s *Status) { s.PendingOperations = n })
	return n, nil
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Start replicates scope. Concurrent and repeated calls for the same scope
// return the same handle; a different scope replaces the active one. The
// handle is returned even when the initial sync fails, in which case the
// controller keeps reconnecting in the background.
func (c *Controller) Start(ctx context.Context, scope Scope) (*Handle, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	v, err, _ := c.sf.Do(scope.String(), func() (any, error) {
		return c.start(ctx, scope)
	})
	h, _ := v.(*Handle)
	return h, err
}

func (c *Controller) start(ctx context.Context, scope Scope) (*Handle, error) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	prev := c.active
	if prev != nil && prev.scope == scope {
		c.mu.Unlock()
		return prev, nil
	}
	c.active = nil
	c.mu.Unlock()

	if prev != nil {
		c.logger.Info("Replacing replication scope",
			zap.String("from", prev.scope.String()),
			zap.String("to", scope.String()))
		prev.close(c.cfg.DrainTimeout)
	}

	n, err := c.reload(ctx, func(op pendingOp) bool { return scope.Contains(&op.Record) })
	if err != nil {
		c.logger.Warn("Failed to load pending writes", zap.String("scope", scope.String()), zap.Error(err))
	}
	c.metrics.SetPending(n)

	h := newHandle(scope)

	c.mu.Lock()
	c.active = h
	c.mu.Unlock()

	c.publish(func(s *Status) {
		s.State = StateConnecting
		s.Error = ""
		s.Scope = &scope
		s.PendingOperations = n
	})
	c.logger.Info("Replication starting",
		zap.String("scope", scope.String()),
		zap.String("identifier", scope.Identifier()),
		zap.String("handle", h.id))

	ready := make(chan error, 1)
	h.wg.Add(2)
	go c.run(h, ready)
	go c.pushLoop(h)

	select {
	case err := <-ready:
		return h, err
	case <-ctx.Done():
		return h, ctx.Err()
	}
}

// Stop ends the active replication. The pull stream stops first, pushes in
// flight are drained within the drain timeout, then the handle is torn down.
// A remote batch cut by the timeout may be left partially applied; local
// writes stay atomic and stay pending until acknowledged.
func (c *Controller) Stop() {
	c.mu.Lock()
	h := c.active
	c.active = nil
	c.mu.Unlock()

	if h == nil {
		return
	}
	h.close(c.cfg.DrainTimeout)

	c.publish(func(s *Status) {
		s.State = StateOffline
		s.Error = ""
		s.Scope = nil
	})
	c.logger.Info("Replication stopped", zap.String("scope", h.scope.String()), zap.String("handle", h.id))
}

// Close stops replication and detaches from the store.
func (c *Controller) Close() {
	c.Stop()
	if c.unobserve != nil {
		c.unobserve()
	}
}

// Active returns the active handle, or nil.
func (c *Controller) Active() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Status returns the latest status.
func (c *Controller) Status() Status {
	return c.broker.Current()
}

// Subscribe streams status changes. Call the returned function to stop.
func (c *Controller) Subscribe() (<-chan Status, func()) {
	return c.broker.Subscribe()
}

// PendingOperations counts local writes not yet acknowledged by the backend.
func (c *Controller) PendingOperations() int {
	return c.pending.count()
}

// ForcePushPending pushes buffered writes now. It is a no-op without an
// active replication.
func (c *Controller) ForcePushPending(ctx context.Context) error {
	h := c.Active()
	if h == nil || !h.enter() {
		return nil
	}
	defer h.wg.Done()

	if err := ctx.Err(); err != nil {
		return err
	}
	return c.push(h)
}

// TriggerSync runs a full sync cycle on the active replication, or a
// one-shot cycle for the configured scope when none is active.
func (c *Controller) TriggerSync(ctx context.Context) error {
	if h := c.Active(); h != nil {
		if !h.enter() {
			return nil
		}
		defer h.wg.Done()

		c.setState(h, StateSyncing, "")
		if err := c.cycle(h); err != nil {
			c.fail(h, err)
			return err
		}
		// Between reconnects the run loop still owns the session.
		if h.connected.Load() {
			c.setState(h, StateOnline, "")
		} else {
			c.setState(h, StateConnecting, "")
		}
		return nil
	}

	scope := c.cfg.DefaultScope()
	if err := scope.Validate(); err != nil {
		return err
	}

	hctx, cancel := context.WithCancel(ctx)
	defer cancel()
	h := &Handle{id: uuid.NewString(), scope: scope, ctx: hctx, cancel: cancel, pushCtx: hctx, cancelPush: cancel}

	c.publish(func(s *Status) { s.State = StateSyncing; s.Scope = &scope })
	err := c.cycle(h)
	c.publish(func(s *Status) {
		s.State = StateOffline
		s.Scope = nil
		s.Error = ""
		if err != nil {
			s.State = StateError
			s.Error = err.Error()
		}
	})
	c.metrics.SetState(string(c.Status().State), knownStates)
	return err
}

// run keeps a session alive until the handle stops, reconnecting after failures.
func (c *Controller) run(h *Handle, ready chan<- error) {
	defer h.wg.Done()

	var once sync.Once
	signal := func(err error) {
		once.Do(func() { ready <- err })
	}

	for {
		err := c.session(h, signal)
		h.connected.Store(false)
		if h.ctx.Err() != nil {
			signal(h.ctx.Err())
			return
		}
		c.fail(h, err)

		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-h.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		c.logger.Info("Replication reconnecting", zap.String("scope", h.scope.String()))
	}
}

// session bootstraps with a sync cycle, then applies the change stream until it fails.
func (c *Controller) session(h *Handle, signal func(error)) error {
	c.setState(h, StateConnecting, "")
	if err := c.cycle(h); err != nil {
		signal(err)
		return err
	}

	h.syncMu.Lock()
	since := h.checkpoint
	h.syncMu.Unlock()

	stream, err := c.backend.Subscribe(h.ctx, h.scope, since)
	if err != nil {
		err = &errs.SyncError{Op: "subscribe", Cause: err}
		signal(err)
		return err
	}

	h.connected.Store(true)
	c.setState(h, StateOnline, "")
	signal(nil)

	for {
		select {
		case <-h.ctx.Done():
			return h.ctx.Err()
		case batch, ok := <-stream:
			if !ok {
				return &errs.SyncError{Op: "pull", Cause: errStreamClosed}
			}
			if batch.Err != nil {
				return &errs.SyncError{Op: "pull", Cause: batch.Err}
			}
			if err := c.applyBatch(h, batch); err != nil {
				return err
			}
		}
	}
}

// pushLoop pushes pending writes every push interval while connected.
func (c *Controller) pushLoop(h *Handle) {
	defer h.wg.Done()

	ticker := time.NewTicker(c.cfg.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}
		if !h.connected.Load() || c.pending.count() == 0 {
			continue
		}
		if err := c.push(h); err != nil {
			if h.ctx.Err() != nil {
				return
			}
			h.pushFailed.Store(true)
			c.fail(h, err)
			continue
		}
		if h.pushFailed.Swap(false) && h.connected.Load() {
			c.setState(h, StateOnline, "")
		}
	}
}

// observe queues local writes for push. Replicated writes are not echoed back.
func (c *Controller) observe(m store.Mutation) {
	if m.Origin == store.OriginReplica {
		return
	}
	if h := c.Active(); h != nil && !h.scope.Contains(&m.Record) {
		return
	}
	rec := m.Record
	rec.ID = m.ID
	n := c.pending.add(pendingOp{ID: m.ID, Op: m.Op, Record: rec, Seq: m.Seq})
	c.metrics.SetPending(n)
	c.publish(func(s *Status) { s.PendingOperations = n })
}

func (c *Controller) spec() *reconcile.Spec[models.Record] {
	return &reconcile.Spec[models.Record]{Adapter: merge.Adapter{}, ConflictWindow: c.cfg.ConflictWindow}
}

func (c *Controller) publish(fn func(*Status)) {
	c.broker.Update(fn)
}

// setState publishes a state for h if it is still the active handle.
func (c *Controller) setState(h *Handle, state State, reason string) {
	if c.Active() != h {
		return
	}
	c.publish(func(s *Status) {
		s.State = state
		s.Error = reason
	})
	c.metrics.SetState(string(state), knownStates)
}

func (c *Controller) fail(h *Handle, err error) {
	c.logger.Warn("Replication error",
		zap.String("scope", h.scope.String()),
		zap.String("kind", string(errs.KindOf(err))),
		zap.Error(err))
	c.setState(h, StateError, err.Error())
}
