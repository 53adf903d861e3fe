package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"hms/internal/models"
	"hms/internal/store"

	"github.com/gin-gonic/gin"
)

type advanceRequest struct {
	RequestID    string `json:"request_id"`
	ExpectedTurn *int   `json:"expected_turn" binding:"omitempty,min=0"`
}

type issueTicketRequest struct {
	RequestID   string `json:"request_id"`
	PatientName string `json:"patient_name" binding:"required,max=200"`
}

func queueKeyFromPath(c *gin.Context) (models.QueueKey, bool) {
	key := models.QueueKey{
		QueueName:  strings.TrimSpace(c.Param("queue")),
		HospitalID: strings.TrimSpace(c.Param("hospital")),
		Date:       strings.TrimSpace(c.Param("date")),
	}
	if err := key.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return models.QueueKey{}, false
	}
	if !requireHospital(c, key.HospitalID) {
		return models.QueueKey{}, false
	}
	return key, true
}

// bindOptionalJSON accepts an empty body as the zero value.
func bindOptionalJSON(c *gin.Context, target interface{}) bool {
	if err := c.ShouldBindJSON(target); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func (h *Handler) handleQueueState(c *gin.Context) {
	key, ok := queueKeyFromPath(c)
	if !ok {
		return
	}
	state, err := h.queues.State(c.Request.Context(), key)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, state)
}

func (h *Handler) handleAdvance(c *gin.Context) {
	key, ok := queueKeyFromPath(c)
	if !ok {
		return
	}
	var req advanceRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = strings.TrimSpace(c.GetHeader("X-Request-ID"))
	}
	state, err := h.queues.Advance(c.Request.Context(), store.AdvanceInput{
		Key:          key,
		RequestID:    requestID,
		ExpectedTurn: req.ExpectedTurn,
		OccurredAt:   h.now().UTC(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, state)
}

func (h *Handler) handleIssueTicket(c *gin.Context) {
	key, ok := queueKeyFromPath(c)
	if !ok {
		return
	}
	var req issueTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	ticket, created, err := h.queues.Issue(c.Request.Context(), store.IssueTicketInput{
		Key:         key,
		RequestID:   strings.TrimSpace(req.RequestID),
		PatientName: strings.TrimSpace(req.PatientName),
		CheckInTime: h.now().UTC(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(c, status, ticket)
}

func (h *Handler) handleFinishTicket(c *gin.Context) {
	key, ok := queueKeyFromPath(c)
	if !ok {
		return
	}
	turn, err := strconv.Atoi(c.Param("turn"))
	if err != nil || turn <= 0 {
		writeError(c, http.StatusBadRequest, "invalid_request", "turn must be a positive integer")
		return
	}
	ticket, err := h.queues.Finish(c.Request.Context(), store.FinishTicketInput{
		Key:        key,
		TurnNumber: turn,
		OccurredAt: h.now().UTC(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ticket)
}
