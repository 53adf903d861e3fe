// Package hub fans queue snapshots out to live subscribers. Each subscriber
// has a one-slot mailbox: an unread snapshot is replaced by a newer one, so
// a slow reader only ever sees the latest state.
package hub

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Subscription struct {
	ID    string
	Topic string

	hub    *Hub
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// C delivers snapshots. It is closed once the subscription is closed.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// offer places payload in the mailbox, evicting an unread snapshot.
func (s *Subscription) offer(payload []byte) (replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-s.ch:
		replaced = true
	default:
	}
	s.ch <- payload
	return replaced
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscription
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[string]*Subscription),
		logger: logger.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		ID:    uuid.NewString(),
		Topic: topic,
		hub:   h,
		ch:    make(chan []byte, 1),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]*Subscription)
		h.topics[topic] = subs
	}
	subs[sub.ID] = sub
	return sub
}

// Publish delivers payload to every subscriber of topic and returns how many
// mailboxes received it.
func (h *Hub) Publish(topic string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, sub := range h.topics[topic] {
		if sub.offer(payload) {
			h.logger.Debug().Str("subscription_id", sub.ID).Str("topic", topic).Msg("replaced unread snapshot")
		}
		delivered++
	}
	return delivered
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Topics lists topics with at least one subscriber.
func (h *Hub) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	topics := make([]string, 0, len(h.topics))
	for topic := range h.topics {
		topics = append(topics, topic)
	}
	return topics
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	if subs, ok := h.topics[sub.Topic]; ok {
		delete(subs, sub.ID)
		if len(subs) == 0 {
			delete(h.topics, sub.Topic)
		}
	}
	h.mu.Unlock()
	sub.shutdown()
}

type ClientMessage struct {
	Action     string `json:"action"`
	QueueName  string `json:"queue_name"`
	HospitalID string `json:"hospital_id"`
	Date       string `json:"date"`
}

// ParseClientMessage accepts subscribe and unsubscribe actions only.
func ParseClientMessage(data []byte) (ClientMessage, bool) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, false
	}
	msg.Action = strings.ToLower(strings.TrimSpace(msg.Action))
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return ClientMessage{}, false
	}
	return msg, true
}
