// Package service provides the business logic behind the delivery date API:
// registering postal codes, reading derived views, and controlling pollers.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geekuality/posti-delivery-dates/internal/poll/coordinator"
	"github.com/geekuality/posti-delivery-dates/internal/poll/state"
	"github.com/geekuality/posti-delivery-dates/internal/posti"
	"github.com/geekuality/posti-delivery-dates/internal/snapshot"
	"github.com/geekuality/posti-delivery-dates/internal/validators"
	"github.com/geekuality/posti-delivery-dates/internal/view"
)

var (
	// ErrCodeNotFound is returned when a postal code is not registered
	ErrCodeNotFound = errors.New("postal code not found")
	// ErrCodeAlreadyRegistered is returned when registering a duplicate code
	ErrCodeAlreadyRegistered = errors.New("postal code already registered")
	// ErrInvalidPostalCode is returned for a malformed postal code
	ErrInvalidPostalCode = errors.New("invalid postal code")
	// ErrNoData is returned when the endpoint has no schedule for a
	// well-formed code
	ErrNoData = errors.New("no delivery data for postal code")
	// ErrSourceUnavailable is returned when the probe cannot reach the
	// schedule source
	ErrSourceUnavailable = errors.New("schedule source unavailable")
	// ErrNotReady is returned while the poll coordinator has not started
	ErrNotReady = errors.New("service not ready")
)

// Reading is the presentation read contract for one postal code.
type Reading struct {
	// State is the next delivery date, empty when none is announced
	State string `json:"state,omitempty"`

	// Attributes carries the derived view values
	Attributes view.View `json:"attributes"`

	// Available is true when the last fetch succeeded or any snapshot
	// exists at all; cached data counts as available even when stale
	Available bool `json:"available"`
}

// DeliveryService defines the operations the API exposes.
//
//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go DeliveryService
type DeliveryService interface {
	// CheckReadiness checks if the service is ready to serve requests
	CheckReadiness(ctx context.Context) error

	// ListCodes returns the registered postal codes
	ListCodes(ctx context.Context) ([]string, error)

	// RegisterCode validates a code, probes the schedule source once, and
	// starts a seeded poller for it
	RegisterCode(ctx context.Context, postalCode string) (*Reading, error)

	// GetReading returns the derived view for one code
	GetReading(ctx context.Context, postalCode string) (*Reading, error)

	// GetStatus returns the poll status for one code
	GetStatus(ctx context.Context, postalCode string) (*snapshot.PollStatus, error)

	// RefreshCode triggers an immediate out-of-schedule fetch cycle
	RefreshCode(ctx context.Context, postalCode string) error

	// DeleteCode stops the code's poller and removes its persisted state
	DeleteCode(ctx context.Context, postalCode string) error
}

// deliveryService is the default implementation of DeliveryService.
type deliveryService struct {
	fetcher     posti.Fetcher
	stateSvc    state.Service
	coordinator coordinator.Coordinator
	now         func() time.Time
}

// Option configures the service.
type Option func(*deliveryService)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *deliveryService) {
		s.now = now
	}
}

// New creates the delivery service.
func New(
	fetcher posti.Fetcher,
	stateSvc state.Service,
	coord coordinator.Coordinator,
	opts ...Option,
) DeliveryService {
	s := &deliveryService{
		fetcher:     fetcher,
		stateSvc:    stateSvc,
		coordinator: coord,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckReadiness reports readiness once the coordinator loop is running.
func (s *deliveryService) CheckReadiness(_ context.Context) error {
	if !s.coordinator.Ready() {
		return ErrNotReady
	}
	return nil
}

// ListCodes returns the registered postal codes.
func (s *deliveryService) ListCodes(ctx context.Context) ([]string, error) {
	return s.stateSvc.ListCodes(ctx)
}

// RegisterCode runs the setup flow: shape validation, one probe fetch, then
// seeding and poller start. Setup failures never create a poller.
func (s *deliveryService) RegisterCode(ctx context.Context, postalCode string) (*Reading, error) {
	code, err := validators.ValidatePostalCode(postalCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPostalCode, err.Error())
	}

	if s.isRegistered(ctx, code) {
		return nil, fmt.Errorf("%w: %s", ErrCodeAlreadyRegistered, code)
	}

	// Probe the schedule source once with the same fetcher the poller uses
	dates, err := s.fetcher.Fetch(ctx, code)
	if err != nil {
		return nil, classifyProbeError(err)
	}

	seed := snapshot.New(code, dates, s.now())
	if err := s.coordinator.Register(ctx, code, seed); err != nil {
		// A concurrent registration can win between the check above and here
		if errors.Is(err, state.ErrCodeAlreadyRegistered) {
			return nil, fmt.Errorf("%w: %s", ErrCodeAlreadyRegistered, code)
		}
		return nil, fmt.Errorf("failed to register code '%s': %w", code, err)
	}

	return s.buildReading(seed, &snapshot.PollStatus{Phase: snapshot.PhaseSeeded}), nil
}

// GetReading returns the derived view for one code.
func (s *deliveryService) GetReading(ctx context.Context, postalCode string) (*Reading, error) {
	snap, err := s.stateSvc.GetSnapshot(ctx, postalCode)
	if err != nil {
		return nil, mapStateError(err, postalCode)
	}
	status, err := s.stateSvc.GetStatus(ctx, postalCode)
	if err != nil {
		return nil, mapStateError(err, postalCode)
	}
	snapOrEmpty := snap
	if snapOrEmpty == nil {
		snapOrEmpty = &snapshot.Snapshot{PostalCode: postalCode}
	}
	reading := s.buildReading(snapOrEmpty, status)
	reading.Available = snap != nil || status.Phase != snapshot.PhaseFailing
	return reading, nil
}

// GetStatus returns the poll status for one code.
func (s *deliveryService) GetStatus(ctx context.Context, postalCode string) (*snapshot.PollStatus, error) {
	status, err := s.stateSvc.GetStatus(ctx, postalCode)
	if err != nil {
		return nil, mapStateError(err, postalCode)
	}
	return status, nil
}

// RefreshCode triggers an immediate fetch cycle for one code.
func (s *deliveryService) RefreshCode(ctx context.Context, postalCode string) error {
	if !s.isRegistered(ctx, postalCode) {
		return fmt.Errorf("%w: %s", ErrCodeNotFound, postalCode)
	}
	return s.coordinator.Refresh(postalCode)
}

// DeleteCode tears the code down: poller stopped, state removed.
func (s *deliveryService) DeleteCode(ctx context.Context, postalCode string) error {
	if !s.isRegistered(ctx, postalCode) {
		return fmt.Errorf("%w: %s", ErrCodeNotFound, postalCode)
	}
	return s.coordinator.Deregister(ctx, postalCode)
}

func (s *deliveryService) isRegistered(ctx context.Context, postalCode string) bool {
	codes, err := s.stateSvc.ListCodes(ctx)
	if err != nil {
		return false
	}
	for _, c := range codes {
		if c == postalCode {
			return true
		}
	}
	return false
}

func (s *deliveryService) buildReading(snap *snapshot.Snapshot, status *snapshot.PollStatus) *Reading {
	v := view.Compute(snap.PostalCode, snap, s.now())
	return &Reading{
		State:      v.NextScheduledDate,
		Attributes: v,
		Available:  status.Phase != snapshot.PhaseFailing,
	}
}

// classifyProbeError maps fetch failures during setup to service errors.
func classifyProbeError(err error) error {
	var fetchErr *posti.FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Kind {
		case posti.KindEmptyOrMalformed:
			return fmt.Errorf("%w: %s", ErrNoData, fetchErr.Message)
		default:
			return fmt.Errorf("%w: %s", ErrSourceUnavailable, fetchErr.Message)
		}
	}
	return fmt.Errorf("%w: %s", ErrSourceUnavailable, err.Error())
}

// mapStateError converts state-service lookups into API-level errors.
func mapStateError(err error, postalCode string) error {
	if errors.Is(err, state.ErrCodeNotRegistered) {
		return fmt.Errorf("%w: %s", ErrCodeNotFound, postalCode)
	}
	return err
}
