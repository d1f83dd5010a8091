package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/geekuality/posti-delivery-dates/internal/poll"
	"github.com/geekuality/posti-delivery-dates/internal/poll/state"
	"github.com/geekuality/posti-delivery-dates/internal/posti"
	"github.com/geekuality/posti-delivery-dates/internal/posti/mocks"
	"github.com/geekuality/posti-delivery-dates/internal/snapshot"
)

const testCode = "00100"

func testIntervals() poll.Intervals {
	return poll.Intervals{
		Base:             12 * time.Hour,
		InitialOffsetMax: 0,
		JitterMax:        0,
		Retry:            time.Hour,
	}
}

func newTestState(t *testing.T) state.Service {
	t.Helper()
	store, err := snapshot.NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return state.NewService(store)
}

// startCoordinator runs Start in the background and stops it at cleanup.
func startCoordinator(t *testing.T, coord Coordinator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	startErr := make(chan error, 1)
	go func() {
		startErr <- coord.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-startErr)
	})

	require.Eventually(t, coord.Ready, time.Second, 5*time.Millisecond)
}

func waitForPhase(t *testing.T, stateSvc state.Service, code string, want snapshot.Phase) *snapshot.PollStatus {
	t.Helper()
	var status *snapshot.PollStatus
	require.Eventually(t, func() bool {
		s, err := stateSvc.GetStatus(context.Background(), code)
		if err != nil {
			return false
		}
		status = s
		return s.Phase == want
	}, 2*time.Second, 5*time.Millisecond, "expected phase %s", want)
	return status
}

func TestSeededPollerSkipsFirstCycle(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	// No fetch expectation: the seeded first cycle must stay off the network.

	stateSvc := newTestState(t)
	now := time.Now()
	seed := snapshot.New(testCode, []string{"2026-03-11"}, now)
	require.NoError(t, stateSvc.Register(context.Background(), testCode, seed))

	coord := New(fetcher, stateSvc, testIntervals(), WithClock(func() time.Time { return now }))
	startCoordinator(t, coord)

	status := waitForPhase(t, stateSvc, testCode, snapshot.PhaseSteady)
	assert.Equal(t, "Fetch skipped: "+poll.ReasonSeededSkip, status.Message)
	assert.NotEmpty(t, status.InstanceID)

	// The seeded snapshot is untouched.
	snap, err := stateSvc.GetSnapshot(context.Background(), testCode)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-11"}, snap.DeliveryDates)
}

func TestUnseededPollerFetchesImmediately(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().
		Fetch(gomock.Any(), testCode).
		Return([]string{"2026-03-11", "2026-03-13"}, nil)

	stateSvc := newTestState(t)
	require.NoError(t, stateSvc.Register(context.Background(), testCode, nil))

	now := time.Now()
	coord := New(fetcher, stateSvc, testIntervals(), WithClock(func() time.Time { return now }))
	startCoordinator(t, coord)

	status := waitForPhase(t, stateSvc, testCode, snapshot.PhaseSteady)
	assert.Equal(t, "Fetch completed successfully", status.Message)
	assert.Zero(t, status.AttemptCount)
	require.NotNil(t, status.LastSuccess)

	snap, err := stateSvc.GetSnapshot(context.Background(), testCode)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, []string{"2026-03-11", "2026-03-13"}, snap.DeliveryDates)
	assert.Empty(t, snap.LastDeliveryDate, "no previous snapshot means nothing to reconcile")
}

func TestFetchFailureEntersFailingPhase(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().
		Fetch(gomock.Any(), testCode).
		Return(nil, assert.AnError).
		MinTimes(1)

	stateSvc := newTestState(t)
	require.NoError(t, stateSvc.Register(context.Background(), testCode, nil))

	coord := New(fetcher, stateSvc, testIntervals())
	startCoordinator(t, coord)

	status := waitForPhase(t, stateSvc, testCode, snapshot.PhaseFailing)
	assert.Contains(t, status.Message, assert.AnError.Error())
	assert.Equal(t, 1, status.AttemptCount)
	require.NotNil(t, status.LastAttempt)
	assert.Nil(t, status.LastSuccess)

	// Cached state outlives the failure.
	snap, err := stateSvc.GetSnapshot(context.Background(), testCode)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestStaleSeedForcesImmediateFetch(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().
		Fetch(gomock.Any(), testCode).
		Return([]string{"2026-03-12", "2026-03-14"}, nil)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	stateSvc := newTestState(t)
	// Seeded, but fetched longer ago than the base interval: staleness
	// overrides the seeded skip, and the passed date reconciles into
	// the last completed delivery.
	seed := snapshot.New(testCode, []string{"2026-03-09", "2026-03-12"}, now.Add(-13*time.Hour))
	require.NoError(t, stateSvc.Register(context.Background(), testCode, seed))

	coord := New(fetcher, stateSvc, testIntervals(), WithClock(func() time.Time { return now }))
	startCoordinator(t, coord)

	waitForPhase(t, stateSvc, testCode, snapshot.PhaseSteady)

	snap, err := stateSvc.GetSnapshot(context.Background(), testCode)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, []string{"2026-03-12", "2026-03-14"}, snap.DeliveryDates)
	assert.Equal(t, "2026-03-09", snap.LastDeliveryDate)
	assert.True(t, now.Equal(snap.LastUpdated))
}

func TestRefreshForcesOutOfScheduleCycle(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)

	fetched := make(chan struct{})
	fetcher.EXPECT().
		Fetch(gomock.Any(), testCode).
		DoAndReturn(func(context.Context, string) ([]string, error) {
			close(fetched)
			return []string{"2026-03-11"}, nil
		})

	stateSvc := newTestState(t)
	now := time.Now()
	seed := snapshot.New(testCode, []string{"2026-03-11"}, now)
	require.NoError(t, stateSvc.Register(context.Background(), testCode, seed))

	coord := New(fetcher, stateSvc, testIntervals(), WithClock(func() time.Time { return now }))
	startCoordinator(t, coord)

	// Wait out the seeded skip, then force a refresh. The next cycle would
	// otherwise be half a day away.
	waitForPhase(t, stateSvc, testCode, snapshot.PhaseSteady)
	require.NoError(t, coord.Refresh(testCode))

	select {
	case <-fetched:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not trigger a fetch")
	}
}

func TestRefreshUnknownCode(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)

	stateSvc := newTestState(t)
	coord := New(fetcher, stateSvc, testIntervals())
	startCoordinator(t, coord)

	assert.ErrorIs(t, coord.Refresh("99999"), state.ErrCodeNotRegistered)
}

// gatedListService delays ListCodes until released, to widen the window
// between startup listing and poller creation.
type gatedListService struct {
	state.Service
	listStarted chan struct{}
	release     chan struct{}
}

func (g *gatedListService) ListCodes(ctx context.Context) ([]string, error) {
	close(g.listStarted)
	<-g.release
	return g.Service.ListCodes(ctx)
}

func TestRegisterDuringStartupStartsPoller(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().
		Fetch(gomock.Any(), testCode).
		Return([]string{"2026-03-11"}, nil).
		MinTimes(1)

	gated := &gatedListService{
		Service:     newTestState(t),
		listStarted: make(chan struct{}),
		release:     make(chan struct{}),
	}

	coord := New(fetcher, gated, testIntervals())

	ctx, cancel := context.WithCancel(context.Background())
	startErr := make(chan error, 1)
	go func() {
		startErr <- coord.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-startErr)
	})

	// Register lands mid-startup, while the code listing is still in flight
	<-gated.listStarted
	require.NoError(t, coord.Register(context.Background(), testCode, nil))
	close(gated.release)

	require.Eventually(t, coord.Ready, time.Second, 5*time.Millisecond)
	waitForPhase(t, gated, testCode, snapshot.PhaseSteady)

	// The code has a live poller, not just persisted state
	require.NoError(t, coord.Refresh(testCode))

	// The startup listing overlapped the runtime registration; the code
	// still gets exactly one poller
	dc := coord.(*defaultCoordinator)
	dc.mu.Lock()
	defer dc.mu.Unlock()
	assert.Len(t, dc.pollers, 1)
}

func TestRegisterStartsPollerAtRuntime(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().
		Fetch(gomock.Any(), testCode).
		Return([]string{"2026-03-11"}, nil)

	stateSvc := newTestState(t)
	coord := New(fetcher, stateSvc, testIntervals())
	startCoordinator(t, coord)

	require.NoError(t, coord.Register(context.Background(), testCode, nil))
	waitForPhase(t, stateSvc, testCode, snapshot.PhaseSteady)
}

func TestDeregisterStopsPollerAndRemovesState(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)

	stateSvc := newTestState(t)
	now := time.Now()
	seed := snapshot.New(testCode, []string{"2026-03-11"}, now)
	require.NoError(t, stateSvc.Register(context.Background(), testCode, seed))

	coord := New(fetcher, stateSvc, testIntervals(), WithClock(func() time.Time { return now }))
	startCoordinator(t, coord)
	waitForPhase(t, stateSvc, testCode, snapshot.PhaseSteady)

	require.NoError(t, coord.Deregister(context.Background(), testCode))

	_, err := stateSvc.GetSnapshot(context.Background(), testCode)
	assert.ErrorIs(t, err, state.ErrCodeNotRegistered)

	assert.ErrorIs(t, coord.Refresh(testCode), state.ErrCodeNotRegistered)
}

func TestReadyLifecycle(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)

	stateSvc := newTestState(t)
	coord := New(fetcher, stateSvc, testIntervals())

	assert.False(t, coord.Ready())

	ctx, cancel := context.WithCancel(context.Background())
	startErr := make(chan error, 1)
	go func() {
		startErr <- coord.Start(ctx)
	}()
	require.Eventually(t, coord.Ready, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-startErr)
	assert.False(t, coord.Ready())
}

func TestFetchCycleEmitsSpan(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().
		Fetch(gomock.Any(), testCode).
		Return([]string{"2026-03-11", "2026-03-13"}, nil)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})

	stateSvc := newTestState(t)
	require.NoError(t, stateSvc.Register(context.Background(), testCode, nil))

	coord := New(fetcher, stateSvc, testIntervals(), WithTracerProvider(tp))
	startCoordinator(t, coord)
	waitForPhase(t, stateSvc, testCode, snapshot.PhaseSteady)

	require.Eventually(t, func() bool { return len(recorder.Ended()) == 1 }, 2*time.Second, 5*time.Millisecond)

	span := recorder.Ended()[0]
	assert.Equal(t, "poll.fetch", span.Name())
	attrs := span.Attributes()
	assert.Contains(t, attrs, attribute.String("postal.code", testCode))
	assert.Contains(t, attrs, attribute.String("fetch.reason", poll.ReasonFirstFetch))
	assert.Contains(t, attrs, attribute.String("fetch.outcome", "success"))
	assert.Contains(t, attrs, attribute.Int("delivery.date_count", 2))
}

func TestFetchCycleSpanRecordsFailure(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().
		Fetch(gomock.Any(), testCode).
		Return(nil, &posti.FetchError{Kind: posti.KindBadStatus, StatusCode: 503, Message: "upstream down"}).
		MinTimes(1)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})

	stateSvc := newTestState(t)
	require.NoError(t, stateSvc.Register(context.Background(), testCode, nil))

	coord := New(fetcher, stateSvc, testIntervals(), WithTracerProvider(tp))
	startCoordinator(t, coord)
	waitForPhase(t, stateSvc, testCode, snapshot.PhaseFailing)

	require.Eventually(t, func() bool { return len(recorder.Ended()) >= 1 }, 2*time.Second, 5*time.Millisecond)

	span := recorder.Ended()[0]
	assert.Equal(t, "poll.fetch", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)
	attrs := span.Attributes()
	assert.Contains(t, attrs, attribute.Int("source.status_code", 503))
	assert.Contains(t, attrs, attribute.String("fetch.outcome", "failure"))
}

// fakeNotifier records SnapshotUpdated callbacks.
type fakeNotifier struct {
	mu      sync.Mutex
	updates []*snapshot.Snapshot
}

func (n *fakeNotifier) SnapshotUpdated(_ context.Context, _ string, snap *snapshot.Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, snap)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.updates)
}

func TestNotifierReceivesSnapshotUpdates(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().
		Fetch(gomock.Any(), testCode).
		Return([]string{"2026-03-11"}, nil)

	notifier := &fakeNotifier{}

	stateSvc := newTestState(t)
	require.NoError(t, stateSvc.Register(context.Background(), testCode, nil))

	coord := New(fetcher, stateSvc, testIntervals(), WithNotifier(notifier))
	startCoordinator(t, coord)

	require.Eventually(t, func() bool { return notifier.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []string{"2026-03-11"}, notifier.updates[0].DeliveryDates)
}
