package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"hms/internal/hub"
	"hms/internal/models"
	"hms/internal/queue"

	"github.com/igm/sockjs-go/sockjs"
)

const (
	closeMissingToken   = 4001
	closeInvalidToken   = 4002
	closeHospitalDenied = 4003
)

const stateLookupTimeout = 5 * time.Second

// realtimeHandler serves SockJS under /realtime and plain websocket clients
// at /realtime/websocket.
func (h *Handler) realtimeHandler() http.Handler {
	opts := sockjs.DefaultOptions
	opts.RawWebsocket = true
	return sockjs.NewHandler("/realtime", opts, h.serveSession)
}

func (h *Handler) serveSession(session sockjs.Session) {
	token := sessionToken(session.Request())
	if token == "" {
		_ = session.Close(closeMissingToken, "missing token")
		return
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		_ = session.Close(closeInvalidToken, "invalid token")
		return
	}
	logger := h.logger.With().Str("session_id", session.ID()).Str("hospital_id", claims.HospitalID).Logger()

	var current *hub.Subscription
	defer func() {
		if current != nil {
			current.Close()
		}
	}()

	for {
		raw, err := session.Recv()
		if err != nil {
			return
		}
		msg, ok := hub.ParseClientMessage([]byte(raw))
		if !ok {
			continue
		}
		if current != nil {
			current.Close()
			current = nil
		}
		if msg.Action == "unsubscribe" {
			continue
		}

		key := models.QueueKey{
			QueueName:  strings.TrimSpace(msg.QueueName),
			HospitalID: strings.TrimSpace(msg.HospitalID),
			Date:       strings.TrimSpace(msg.Date),
		}
		if err := key.Validate(); err != nil {
			logger.Debug().Err(err).Msg("ignoring subscribe with invalid key")
			continue
		}
		if key.HospitalID != claims.HospitalID {
			_ = session.Close(closeHospitalDenied, "access denied")
			return
		}

		current = h.hub.Subscribe(key.String())
		h.sendCurrentState(session, key)
		go forward(session, current)
	}
}

// sendCurrentState gives a new subscriber the state it would otherwise only
// see after the next change.
func (h *Handler) sendCurrentState(session sockjs.Session, key models.QueueKey) {
	ctx, cancel := context.WithTimeout(context.Background(), stateLookupTimeout)
	defer cancel()
	state, err := h.queues.State(ctx, key)
	if err != nil {
		h.logger.Warn().Err(err).Str("queue", key.String()).Msg("initial snapshot failed")
		return
	}
	payload, err := queue.MarshalSnapshot(key, state, h.now().UTC())
	if err != nil {
		return
	}
	_ = session.Send(string(payload))
}

func forward(session sockjs.Session, sub *hub.Subscription) {
	for payload := range sub.C() {
		if err := session.Send(string(payload)); err != nil {
			sub.Close()
			return
		}
	}
}

func sessionToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
