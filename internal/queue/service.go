// Package queue reads and advances per-day hospital queues.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hms/internal/models"
	"hms/internal/store"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrAdvanceInFlight is returned when another advance for the same queue is
// still running in this process.
var ErrAdvanceInFlight = errors.New("advance already in progress")

type Service struct {
	store    store.QueueStore
	logger   zerolog.Logger
	tracer   trace.Tracer
	advances *prometheus.CounterVec
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewService(queues store.QueueStore, logger zerolog.Logger, reg prometheus.Registerer) *Service {
	advances := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hms_queue_advance_total",
		Help: "Queue advance attempts by result.",
	}, []string{"result"})
	if reg != nil {
		reg.MustRegister(advances)
	}
	return &Service{
		store:    queues,
		logger:   logger.With().Str("component", "queue").Logger(),
		tracer:   otel.Tracer("hms/queue"),
		advances: advances,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

func (s *Service) State(ctx context.Context, key models.QueueKey) (State, error) {
	if err := key.Validate(); err != nil {
		return State{}, err
	}
	q, found, err := s.store.GetQueue(ctx, key)
	if err != nil {
		return State{}, fmt.Errorf("load queue: %w", err)
	}
	if !found {
		return Project(models.Queue{Key: key}, nil), nil
	}
	tickets, err := s.store.ListTickets(ctx, key)
	if err != nil {
		return State{}, fmt.Errorf("load tickets: %w", err)
	}
	return Project(q, tickets), nil
}

// Advance moves currentTurn to the next ticket and marks it en_consulta. The
// store applies both writes in one transaction; concurrent calls for the same
// key in this process are rejected rather than queued.
func (s *Service) Advance(ctx context.Context, input store.AdvanceInput) (State, error) {
	ctx, span := s.tracer.Start(ctx, "queue.advance", trace.WithAttributes(
		attribute.String("queue.key", input.Key.String()),
	))
	defer span.End()

	state, err := s.advance(ctx, input)
	result := advanceResult(err)
	s.advances.WithLabelValues(result).Inc()
	span.SetAttributes(attribute.String("queue.advance.result", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		s.logger.Info().Err(err).Str("queue", input.Key.String()).Str("result", result).Msg("advance rejected")
		return State{}, err
	}
	s.logger.Info().
		Str("queue", input.Key.String()).
		Int("current_turn", state.Queue.CurrentTurn).
		Str("request_id", input.RequestID).
		Msg("queue advanced")
	return state, nil
}

func (s *Service) advance(ctx context.Context, input store.AdvanceInput) (State, error) {
	if err := input.Key.Validate(); err != nil {
		return State{}, err
	}
	release, ok := s.acquire(input.Key)
	if !ok {
		return State{}, ErrAdvanceInFlight
	}
	defer release()

	if input.RequestID == "" {
		input.RequestID = uuid.NewString()
	}
	if input.OccurredAt.IsZero() {
		input.OccurredAt = s.now().UTC()
	}
	q, current, err := s.store.AdvanceTurn(ctx, input)
	if err != nil {
		return State{}, err
	}
	state, err := s.State(ctx, input.Key)
	if err != nil {
		// The advance is committed; answer from what the store returned.
		s.logger.Warn().Err(err).Str("queue", input.Key.String()).Msg("reload state after advance")
		return committedState(q, current), nil
	}
	return state, nil
}

// committedState is the state reported when the post-advance reload fails.
// Only the ticket now in consultation is known, so Tickets holds just that one.
func committedState(q models.Queue, current models.Ticket) State {
	state := Project(q, []models.Ticket{current})
	state.Stats = Stats{Total: q.LastAssignedTurn}
	state.CanAdvance = false
	return state
}

func (s *Service) acquire(key models.QueueKey) (func(), bool) {
	id := key.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return nil, false
	}
	s.inFlight[id] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inFlight, id)
		s.mu.Unlock()
	}, true
}

// Issue hands out the next turn number. Repeating a request id returns the
// ticket created the first time with created=false.
func (s *Service) Issue(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error) {
	if err := input.Key.Validate(); err != nil {
		return models.Ticket{}, false, err
	}
	if input.RequestID == "" {
		input.RequestID = uuid.NewString()
	}
	if input.CheckInTime.IsZero() {
		input.CheckInTime = s.now().UTC()
	}
	ticket, created, err := s.store.IssueTicket(ctx, input)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if created {
		s.logger.Info().Str("queue", input.Key.String()).Int("turn", ticket.TurnNumber).Msg("ticket issued")
	}
	return ticket, created, nil
}

func (s *Service) Finish(ctx context.Context, input store.FinishTicketInput) (models.Ticket, error) {
	if err := input.Key.Validate(); err != nil {
		return models.Ticket{}, err
	}
	if input.TurnNumber <= 0 {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if input.OccurredAt.IsZero() {
		input.OccurredAt = s.now().UTC()
	}
	ticket, err := s.store.FinishTicket(ctx, input)
	if err != nil {
		return models.Ticket{}, err
	}
	s.logger.Info().Str("queue", input.Key.String()).Int("turn", ticket.TurnNumber).Msg("consultation finished")
	return ticket, nil
}

func advanceResult(err error) string {
	switch {
	case err == nil:
		return "advanced"
	case errors.Is(err, ErrAdvanceInFlight):
		return "in_flight"
	case errors.Is(err, store.ErrStaleTurn):
		return "stale_turn"
	case errors.Is(err, store.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, store.ErrNoNextTicket):
		return "no_next_ticket"
	case errors.Is(err, store.ErrTicketMissing):
		return "ticket_missing"
	case errors.Is(err, store.ErrRequestReused):
		return "request_reused"
	case errors.Is(err, models.ErrInvalidQueueKey):
		return "invalid_key"
	default:
		return "error"
	}
}
