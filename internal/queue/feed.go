package queue

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"hms/internal/hub"
	"hms/internal/models"
	"hms/internal/store"

	"github.com/rs/zerolog"
)

const SnapshotType = "queue.state"

type Snapshot struct {
	Type   string          `json:"type"`
	Key    models.QueueKey `json:"key"`
	State  State           `json:"state"`
	SentAt time.Time       `json:"sent_at"`
}

func MarshalSnapshot(key models.QueueKey, state State, sentAt time.Time) ([]byte, error) {
	return json.Marshal(Snapshot{Type: SnapshotType, Key: key, State: state, SentAt: sentAt})
}

type FeedConfig struct {
	Interval  time.Duration
	BatchSize int
	// Overlap re-reads events this far behind the newest one seen, so rows
	// committed after a later-stamped row are not skipped.
	Overlap time.Duration
}

// Feed tails the queue_events outbox and publishes a fresh snapshot for every
// queue that changed and has subscribers.
type Feed struct {
	service *Service
	events  store.QueueStore
	hub     *hub.Hub
	logger  zerolog.Logger
	cfg     FeedConfig

	offset  store.EventOffset
	seen    map[string]time.Time
	running int32
}

func NewFeed(service *Service, events store.QueueStore, h *hub.Hub, logger zerolog.Logger, cfg FeedConfig) *Feed {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Overlap <= 0 {
		cfg.Overlap = 5 * time.Second
	}
	return &Feed{
		service: service,
		events:  events,
		hub:     h,
		logger:  logger.With().Str("component", "feed").Logger(),
		cfg:     cfg,
		offset:  store.EventOffset{CreatedAt: time.Now().UTC()},
		seen:    make(map[string]time.Time),
	}
}

func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := f.Poll(ctx); err != nil && ctx.Err() == nil {
				f.logger.Error().Err(err).Msg("poll queue events")
			}
		}
	}
}

// Poll reads every event newer than the overlap window, skipping ids already
// handled, and returns how many snapshots were published.
func (f *Feed) Poll(ctx context.Context) (int, error) {
	if !atomic.CompareAndSwapInt32(&f.running, 0, 1) {
		return 0, nil
	}
	defer atomic.StoreInt32(&f.running, 0)

	pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	touched := make(map[string]models.QueueKey)
	var order []string
	cursor := store.EventOffset{CreatedAt: f.offset.CreatedAt.Add(-f.cfg.Overlap)}
	for {
		events, err := f.events.ListQueueEvents(pollCtx, cursor, f.cfg.BatchSize)
		if err != nil {
			return 0, err
		}
		for _, event := range events {
			cursor = cursor.Advance(event)
			if _, done := f.seen[event.EventID]; done {
				continue
			}
			f.seen[event.EventID] = event.CreatedAt
			if f.offset.Before(event) {
				f.offset = f.offset.Advance(event)
			}
			id := event.Key.String()
			if _, ok := touched[id]; !ok {
				order = append(order, id)
			}
			touched[id] = event.Key
		}
		if len(events) < f.cfg.BatchSize {
			break
		}
	}
	f.forget()

	published := 0
	for _, id := range order {
		if f.hub.Subscribers(id) == 0 {
			continue
		}
		key := touched[id]
		if err := f.Push(pollCtx, key); err != nil {
			f.logger.Warn().Err(err).Str("queue", id).Msg("publish snapshot")
			continue
		}
		published++
	}
	return published, nil
}

// forget drops seen ids that fell out of the overlap window.
func (f *Feed) forget() {
	horizon := f.offset.CreatedAt.Add(-f.cfg.Overlap)
	for id, createdAt := range f.seen {
		if createdAt.Before(horizon) {
			delete(f.seen, id)
		}
	}
}

// Push publishes the current state of key to its subscribers.
func (f *Feed) Push(ctx context.Context, key models.QueueKey) error {
	state, err := f.service.State(ctx, key)
	if err != nil {
		return err
	}
	payload, err := MarshalSnapshot(key, state, time.Now().UTC())
	if err != nil {
		return err
	}
	f.hub.Publish(key.String(), payload)
	return nil
}
