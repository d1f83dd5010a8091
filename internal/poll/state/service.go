// Package state manages the cached per-postal-code poll state which the
// server persists between restarts.
package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/geekuality/posti-delivery-dates/internal/snapshot"
)

// Service provides race-free access to the snapshots and poll statuses of
// all registered postal codes. Reads hand out deep copies; check-and-set
// cycles go through UpdateStatusAtomically.
//
//go:generate mockgen -destination=mocks/mock_service.go -package=mocks github.com/geekuality/posti-delivery-dates/internal/poll/state Service
type Service interface {
	// Initialize populates the state cache for the given postal codes from
	// persistent storage. Intended to be called once at application startup.
	Initialize(ctx context.Context, postalCodes []string) error

	// Register adds a postal code at runtime, optionally with a seed snapshot.
	Register(ctx context.Context, postalCode string, seed *snapshot.Snapshot) error

	// GetSnapshot returns a copy of the named code's snapshot, nil when none exists.
	GetSnapshot(ctx context.Context, postalCode string) (*snapshot.Snapshot, error)

	// UpdateSnapshot overwrites and persists the named code's snapshot.
	UpdateSnapshot(ctx context.Context, postalCode string, snap *snapshot.Snapshot) error

	// GetStatus returns a copy of the named code's poll status.
	GetStatus(ctx context.Context, postalCode string) (*snapshot.PollStatus, error)

	// ListStatuses returns the poll status of every registered code.
	ListStatuses(ctx context.Context) (map[string]*snapshot.PollStatus, error)

	// ListCodes returns the registered postal codes.
	ListCodes(ctx context.Context) ([]string, error)

	// UpdateStatusAtomically applies testAndUpdateFn to the named code's
	// status under the lock and persists the result when the function
	// reports a mutation. Returns whether the status was modified.
	UpdateStatusAtomically(
		ctx context.Context,
		postalCode string,
		testAndUpdateFn func(status *snapshot.PollStatus) bool,
	) (bool, error)

	// Remove drops the named code from the cache and persistent storage.
	Remove(ctx context.Context, postalCode string) error
}

// ErrCodeNotRegistered is returned for operations on an unknown postal code.
var ErrCodeNotRegistered = fmt.Errorf("postal code not registered")

// ErrCodeAlreadyRegistered is returned when registering a known postal code.
var ErrCodeAlreadyRegistered = fmt.Errorf("postal code already registered")

// codeState is the cached state of one postal code.
type codeState struct {
	snap   *snapshot.Snapshot
	status *snapshot.PollStatus
}

// service implements Service with an in-memory cache backed by a Store.
type service struct {
	mu    sync.RWMutex
	codes map[string]*codeState
	store snapshot.Store
}

// NewService creates a state service backed by the given store.
func NewService(store snapshot.Store) Service {
	return &service{
		codes: make(map[string]*codeState),
		store: store,
	}
}

// Initialize loads persisted state for the given codes, overwriting any
// previous cache contents.
func (s *service) Initialize(ctx context.Context, postalCodes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes = make(map[string]*codeState, len(postalCodes))
	for _, code := range postalCodes {
		snap, err := s.store.LoadSnapshot(ctx, code)
		if err != nil {
			return fmt.Errorf("failed to load snapshot for code '%s': %w", code, err)
		}
		status, err := s.store.LoadStatus(ctx, code)
		if err != nil {
			return fmt.Errorf("failed to load status for code '%s': %w", code, err)
		}
		s.codes[code] = &codeState{snap: snap, status: status}
	}
	return nil
}

// Register adds one code at runtime, persisting the seed snapshot if given.
func (s *service) Register(ctx context.Context, postalCode string, seed *snapshot.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[postalCode]; ok {
		return fmt.Errorf("%w: %s", ErrCodeAlreadyRegistered, postalCode)
	}

	if seed != nil {
		if err := s.store.SaveSnapshot(ctx, postalCode, seed); err != nil {
			return fmt.Errorf("failed to persist seed snapshot for code '%s': %w", postalCode, err)
		}
	}

	// The status API never shows an unnamed phase: the initial phase mirrors
	// the one the code's poller will start in
	phase := snapshot.PhaseFirstFetch
	if seed != nil {
		phase = snapshot.PhaseSeeded
	}

	s.codes[postalCode] = &codeState{
		snap:   seed.Clone(),
		status: &snapshot.PollStatus{Phase: phase},
	}
	return nil
}

// GetSnapshot returns a deep copy of the cached snapshot.
func (s *service) GetSnapshot(_ context.Context, postalCode string) (*snapshot.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, ok := s.codes[postalCode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCodeNotRegistered, postalCode)
	}
	return cs.snap.Clone(), nil
}

// UpdateSnapshot overwrites the cached snapshot and persists it.
func (s *service) UpdateSnapshot(ctx context.Context, postalCode string, snap *snapshot.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.codes[postalCode]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCodeNotRegistered, postalCode)
	}

	if err := s.store.SaveSnapshot(ctx, postalCode, snap); err != nil {
		return fmt.Errorf("failed to persist snapshot for code '%s': %w", postalCode, err)
	}
	cs.snap = snap.Clone()
	return nil
}

// GetStatus returns a deep copy of the cached poll status.
func (s *service) GetStatus(_ context.Context, postalCode string) (*snapshot.PollStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, ok := s.codes[postalCode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCodeNotRegistered, postalCode)
	}
	return cs.status.Clone(), nil
}

// ListStatuses returns deep copies of every code's poll status.
func (s *service) ListStatuses(_ context.Context) (map[string]*snapshot.PollStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*snapshot.PollStatus, len(s.codes))
	for code, cs := range s.codes {
		out[code] = cs.status.Clone()
	}
	return out, nil
}

// ListCodes returns the registered postal codes.
func (s *service) ListCodes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	return codes, nil
}

// UpdateStatusAtomically runs a check-and-set cycle on one code's status.
func (s *service) UpdateStatusAtomically(
	ctx context.Context,
	postalCode string,
	testAndUpdateFn func(status *snapshot.PollStatus) bool,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.codes[postalCode]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrCodeNotRegistered, postalCode)
	}

	if cs.status == nil {
		cs.status = &snapshot.PollStatus{}
	}

	modified := testAndUpdateFn(cs.status)
	if !modified {
		return false, nil
	}

	if err := s.store.SaveStatus(ctx, postalCode, cs.status); err != nil {
		return true, fmt.Errorf("failed to persist status for code '%s': %w", postalCode, err)
	}
	return true, nil
}

// Remove drops the code from the cache and deletes its persisted state.
func (s *service) Remove(ctx context.Context, postalCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[postalCode]; !ok {
		return fmt.Errorf("%w: %s", ErrCodeNotRegistered, postalCode)
	}

	if err := s.store.Remove(ctx, postalCode); err != nil {
		return err
	}
	delete(s.codes, postalCode)
	return nil
}
