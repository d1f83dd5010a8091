package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, dir
}

func TestFileStoreSnapshotRoundtrip(t *testing.T) {
	t.Parallel()
	store, dir := newTestStore(t)
	ctx := context.Background()

	snap := New("00100", []string{"2026-03-11", "2026-03-13"}, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	snap.LastDeliveryDate = "2026-03-09"

	require.NoError(t, store.SaveSnapshot(ctx, "00100", snap))

	loaded, err := store.LoadSnapshot(ctx, "00100")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap.PostalCode, loaded.PostalCode)
	assert.Equal(t, snap.DeliveryDates, loaded.DeliveryDates)
	assert.Equal(t, snap.LastDeliveryDate, loaded.LastDeliveryDate)
	assert.True(t, snap.LastUpdated.Equal(loaded.LastUpdated))

	// The write lands in the expected per-code layout.
	_, err = os.Stat(filepath.Join(dir, "00100", SnapshotFileName))
	assert.NoError(t, err)
}

func TestFileStoreLoadSnapshotAbsent(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	snap, err := store.LoadSnapshot(context.Background(), "99999")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestFileStoreStatusRoundtrip(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	attempt := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	status := &PollStatus{
		Phase:        PhaseSteady,
		Message:      "Fetch succeeded",
		LastAttempt:  &attempt,
		AttemptCount: 0,
		InstanceID:   "abc-123",
	}

	require.NoError(t, store.SaveStatus(ctx, "00100", status))

	loaded, err := store.LoadStatus(ctx, "00100")
	require.NoError(t, err)
	assert.Equal(t, PhaseSteady, loaded.Phase)
	assert.Equal(t, "Fetch succeeded", loaded.Message)
	require.NotNil(t, loaded.LastAttempt)
	assert.True(t, attempt.Equal(*loaded.LastAttempt))
	assert.Equal(t, "abc-123", loaded.InstanceID)
}

func TestFileStoreLoadStatusAbsentReturnsEmpty(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	status, err := store.LoadStatus(context.Background(), "99999")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, Phase(""), status.Phase)
}

func TestFileStoreInterruptedFetchResetsToFailing(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveStatus(ctx, "00100", &PollStatus{Phase: PhaseFetching}))

	loaded, err := store.LoadStatus(ctx, "00100")
	require.NoError(t, err)
	assert.Equal(t, PhaseFailing, loaded.Phase)
	assert.Equal(t, "Fetch interrupted by process restart", loaded.Message)
}

func TestFileStoreListCodes(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	codes, err := store.ListCodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, codes)

	require.NoError(t, store.SaveSnapshot(ctx, "00100", &Snapshot{PostalCode: "00100"}))
	require.NoError(t, store.SaveStatus(ctx, "33100", &PollStatus{Phase: PhaseSeeded}))

	codes, err = store.ListCodes(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"00100", "33100"}, codes)
}

func TestFileStoreRemove(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSnapshot(ctx, "00100", &Snapshot{PostalCode: "00100"}))
	require.NoError(t, store.Remove(ctx, "00100"))

	snap, err := store.LoadSnapshot(ctx, "00100")
	require.NoError(t, err)
	assert.Nil(t, snap)

	codes, err := store.ListCodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, codes)

	// Removing an unknown code is not an error.
	assert.NoError(t, store.Remove(ctx, "99999"))
}

func TestFileStoreLockExcludesSecondProcess(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	first, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = NewFileStore(dir)
	assert.Error(t, err, "second store over the same directory must be refused")

	require.NoError(t, first.Close())

	second, err := NewFileStore(dir)
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}
