// Package coordinator manages the background poll loop of every registered
// postal code. Each code gets its own goroutine running fetch cycles
// sequentially; the coordinator owns their lifecycle.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/geekuality/posti-delivery-dates/internal/poll"
	"github.com/geekuality/posti-delivery-dates/internal/poll/state"
	"github.com/geekuality/posti-delivery-dates/internal/posti"
	"github.com/geekuality/posti-delivery-dates/internal/snapshot"
	"github.com/geekuality/posti-delivery-dates/internal/telemetry"
)

// Notifier receives a callback after every cycle that changed a snapshot.
type Notifier interface {
	// SnapshotUpdated is called with a copy of the freshly stored snapshot.
	SnapshotUpdated(ctx context.Context, postalCode string, snap *snapshot.Snapshot)
}

// Coordinator manages background polling for multiple postal codes.
//
//go:generate mockgen -destination=mocks/mock_coordinator.go -package=mocks github.com/geekuality/posti-delivery-dates/internal/poll/coordinator Coordinator
type Coordinator interface {
	// Start begins background polling for all codes known to the state
	// service. Blocks until the context is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully stops the coordinator and all pollers.
	Stop() error

	// Register adds a postal code at runtime and starts its poller.
	// A non-nil seed puts the poller in the seeded phase.
	Register(ctx context.Context, postalCode string, seed *snapshot.Snapshot) error

	// Deregister stops the named code's poller and removes its state.
	Deregister(ctx context.Context, postalCode string) error

	// Refresh triggers an immediate out-of-schedule cycle for one code.
	Refresh(postalCode string) error

	// Ready reports whether the coordinator has started.
	Ready() bool
}

// defaultCoordinator is the default implementation of Coordinator.
type defaultCoordinator struct {
	fetcher   posti.Fetcher
	stateSvc  state.Service
	intervals poll.Intervals

	mu      sync.Mutex
	pollers map[string]*poller

	// Lifecycle management
	runCtx     context.Context
	cancelFunc context.CancelFunc
	done       chan struct{}
	started    atomic.Bool
	wg         sync.WaitGroup

	notifier      Notifier
	pollMetrics   *telemetry.PollMetrics
	codeMetrics   *telemetry.CodeMetrics
	tracer        trace.Tracer
	now           func() time.Time
	schedulerOpts []poll.SchedulerOption
}

// pollTracerName identifies the poll coordinator's tracer.
const pollTracerName = "github.com/geekuality/posti-delivery-dates/internal/poll/coordinator"

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithNotifier sets the snapshot-update notifier
func WithNotifier(n Notifier) Option {
	return func(c *defaultCoordinator) {
		c.notifier = n
	}
}

// WithPollMetrics sets the poll cycle metrics for the coordinator
func WithPollMetrics(metrics *telemetry.PollMetrics) Option {
	return func(c *defaultCoordinator) {
		c.pollMetrics = metrics
	}
}

// WithCodeMetrics sets the per-code metrics for the coordinator
func WithCodeMetrics(metrics *telemetry.CodeMetrics) Option {
	return func(c *defaultCoordinator) {
		c.codeMetrics = metrics
	}
}

// WithTracerProvider sets the tracer used to trace fetch cycles
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *defaultCoordinator) {
		if tp != nil {
			c.tracer = tp.Tracer(pollTracerName)
		}
	}
}

// WithClock injects the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(c *defaultCoordinator) {
		c.now = now
	}
}

// WithSchedulerOptions passes options through to each poller's scheduler
func WithSchedulerOptions(opts ...poll.SchedulerOption) Option {
	return func(c *defaultCoordinator) {
		c.schedulerOpts = opts
	}
}

// New creates a coordinator with injected dependencies.
func New(
	fetcher posti.Fetcher,
	stateSvc state.Service,
	intervals poll.Intervals,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		fetcher:   fetcher,
		stateSvc:  stateSvc,
		intervals: intervals,
		pollers:   make(map[string]*poller),
		done:      make(chan struct{}),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start begins background polling for all registered codes.
func (c *defaultCoordinator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	// Publish the run context before listing codes: a concurrent Register
	// either lands in the list below or starts its own poller, never neither
	c.mu.Lock()
	c.runCtx = runCtx
	c.cancelFunc = cancel
	c.mu.Unlock()

	defer func() {
		close(c.done)
		slog.Info("Poll coordinator shutting down")
	}()

	codes, err := c.stateSvc.ListCodes(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to list registered codes: %w", err)
	}

	slog.Info("Starting poll coordinator", "code_count", len(codes))

	c.mu.Lock()
	for _, code := range codes {
		if err := c.startPollerLocked(runCtx, code); err != nil {
			c.mu.Unlock()
			cancel()
			return err
		}
	}
	c.mu.Unlock()

	c.started.Store(true)

	<-runCtx.Done()
	c.started.Store(false)

	// Wait for every poller to drain; no state mutation happens after this
	c.wg.Wait()
	return nil
}

// Stop gracefully stops the coordinator.
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping poll coordinator")
		cancel()
		<-c.done
	}
	return nil
}

// Ready reports whether the coordinator loop is running.
func (c *defaultCoordinator) Ready() bool {
	return c.started.Load()
}

// Register adds one code at runtime and starts its poller.
func (c *defaultCoordinator) Register(ctx context.Context, postalCode string, seed *snapshot.Snapshot) error {
	if err := c.stateSvc.Register(ctx, postalCode, seed); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runCtx == nil {
		// Not started yet; Start will pick the code up from the state service
		return nil
	}
	if err := c.startPollerLocked(c.runCtx, postalCode); err != nil {
		return err
	}

	c.codeMetrics.RecordCodeRegistered(ctx, 1)
	return nil
}

// Deregister stops one code's poller and removes its persisted state.
func (c *defaultCoordinator) Deregister(ctx context.Context, postalCode string) error {
	c.mu.Lock()
	p, ok := c.pollers[postalCode]
	if ok {
		delete(c.pollers, postalCode)
	}
	c.mu.Unlock()

	if ok {
		// Cancel the in-flight fetch and armed timer, then wait for the
		// loop to drain so no late write can land in removed state
		p.cancel()
		<-p.done
	}

	if err := c.stateSvc.Remove(ctx, postalCode); err != nil {
		return err
	}

	c.codeMetrics.RecordCodeRegistered(ctx, -1)
	slog.Info("Deregistered postal code", "postal_code", postalCode)
	return nil
}

// Refresh triggers an immediate cycle for one code.
func (c *defaultCoordinator) Refresh(postalCode string) error {
	c.mu.Lock()
	p, ok := c.pollers[postalCode]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", state.ErrCodeNotRegistered, postalCode)
	}

	// Non-blocking: a refresh already queued is enough
	select {
	case p.refresh <- struct{}{}:
	default:
	}
	return nil
}

// startPollerLocked spawns the poller goroutine for one code. A code whose
// poller is already running is left alone, so the startup listing may
// overlap codes registered while it was being taken. Caller must hold c.mu.
func (c *defaultCoordinator) startPollerLocked(runCtx context.Context, postalCode string) error {
	if _, ok := c.pollers[postalCode]; ok {
		return nil
	}

	snap, err := c.stateSvc.GetSnapshot(runCtx, postalCode)
	if err != nil {
		return err
	}

	p := newPoller(pollerDeps{
		postalCode:  postalCode,
		seeded:      snap != nil,
		fetcher:     c.fetcher,
		stateSvc:    c.stateSvc,
		scheduler:   poll.NewScheduler(c.intervals, c.schedulerOpts...),
		notifier:    c.notifier,
		pollMetrics: c.pollMetrics,
		codeMetrics: c.codeMetrics,
		tracer:      c.tracer,
		now:         c.now,
	})

	pollerCtx, pollerCancel := context.WithCancel(runCtx)
	p.cancel = pollerCancel

	c.pollers[postalCode] = p
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		p.run(pollerCtx)
	}()

	return nil
}
