package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"hms/internal/hub"
	"hms/internal/models"
	"hms/internal/queue"
	"hms/internal/schedule"
	"hms/internal/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const ctxRequestID = "request_id"

type Handler struct {
	queues     *queue.Service
	accounts   store.AccountStore
	schedules  store.ScheduleStore
	hub        *hub.Hub
	verifier   *TokenVerifier
	limiter    *RateLimiter
	metrics    *Metrics
	registry   *prometheus.Registry
	logger     zerolog.Logger
	origins    []string
	bcryptCost int
	now        func() time.Time
}

type Options struct {
	Queues      *queue.Service
	Accounts    store.AccountStore
	Schedules   store.ScheduleStore
	Hub         *hub.Hub
	Verifier    *TokenVerifier
	RateLimit   RateLimitConfig
	CORSOrigins []string
	Registry    *prometheus.Registry
	Logger      zerolog.Logger
	BcryptCost  int
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Fields  []schedule.FieldError `json:"fields,omitempty"`
}

func NewHandler(opts Options) *Handler {
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Handler{
		queues:     opts.Queues,
		accounts:   opts.Accounts,
		schedules:  opts.Schedules,
		hub:        opts.Hub,
		verifier:   opts.Verifier,
		limiter:    NewRateLimiter(opts.RateLimit),
		metrics:    NewMetrics(registry),
		registry:   registry,
		logger:     opts.Logger.With().Str("component", "http").Logger(),
		origins:    opts.CORSOrigins,
		bcryptCost: opts.BcryptCost,
		now:        time.Now,
	}
}

func (h *Handler) Routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestIDMiddleware(), h.loggingMiddleware(), h.metrics.Middleware())
	if len(h.origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     h.origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})))
	r.Any("/realtime/*path", h.limiter.IPMiddleware(), gin.WrapH(h.realtimeHandler()))

	authed := r.Group("", h.limiter.IPMiddleware(), h.authMiddleware(), h.limiter.HospitalMiddleware())

	authed.POST("/api/doctors/createDr", requireRole(models.RoleHospitalAdmin), h.handleCreateDoctor)
	authed.POST("/monitores/create", requireRole(models.RoleHospitalAdmin), h.handleCreateMonitor)

	doctors := authed.Group("/api/doctors")
	doctors.GET("", requireRole(models.RoleHospitalAdmin, models.RoleDoctor), h.handleListDoctors)
	doctors.GET("/:id", requireRole(models.RoleHospitalAdmin, models.RoleDoctor), h.handleGetDoctor)
	doctors.PUT("/:id", requireRole(models.RoleHospitalAdmin, models.RoleDoctor), h.handleUpdateDoctor)
	doctors.DELETE("/:id", requireRole(models.RoleHospitalAdmin), h.handleDeleteDoctor)

	queues := authed.Group("/api/queues/:queue/:hospital/:date")
	queues.GET("", h.handleQueueState)
	queues.POST("/advance", requireRole(models.RoleHospitalAdmin, models.RoleDoctor, models.RoleMonitor), h.handleAdvance)
	queues.POST("/tickets", requireRole(models.RoleHospitalAdmin, models.RoleDoctor, models.RoleMonitor), h.handleIssueTicket)
	queues.POST("/tickets/:turn/finish", requireRole(models.RoleHospitalAdmin, models.RoleDoctor), h.handleFinishTicket)

	schedules := authed.Group("/api/offices/:office/schedules")
	schedules.GET("", h.handleListSchedule)
	schedules.POST("", requireRole(models.RoleHospitalAdmin, models.RoleDoctor), h.handleCreateScheduleEntry)
	schedules.PUT("/:id", requireRole(models.RoleHospitalAdmin, models.RoleDoctor), h.handleUpdateScheduleEntry)
	schedules.DELETE("/:id", requireRole(models.RoleHospitalAdmin, models.RoleDoctor), h.handleDeleteScheduleEntry)

	return r
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrEmailExists):
		return http.StatusConflict, "email_exists", "email already registered"
	case errors.Is(err, queue.ErrAdvanceInFlight):
		return http.StatusConflict, "advance_in_flight", "another advance for this queue is in progress"
	case errors.Is(err, store.ErrStaleTurn):
		return http.StatusConflict, "stale_turn", "queue already advanced, refresh and retry"
	case errors.Is(err, store.ErrNotEligible):
		return http.StatusConflict, "not_eligible", "current consultation is not finished"
	case errors.Is(err, store.ErrNoNextTicket):
		return http.StatusConflict, "no_next_ticket", "no patients in queue"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrRequestReused):
		return http.StatusConflict, "request_reused", "request id already used on another queue"
	case errors.Is(err, store.ErrTicketMissing):
		return http.StatusUnprocessableEntity, "ticket_missing", "next ticket record is missing"
	case errors.Is(err, schedule.ErrMalformedEntry):
		return http.StatusUnprocessableEntity, "malformed_entry", "stored schedule entry is malformed"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrDoctorNotFound):
		return http.StatusNotFound, "doctor_not_found", "doctor not found"
	case errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found", "schedule entry not found"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	case errors.Is(err, models.ErrInvalidQueueKey):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, schedule.ErrConfirmationRequired):
		return http.StatusPreconditionRequired, "confirmation_required", "confirm=true is required to delete"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout", "temporary failure, please retry"
	default:
		return http.StatusInternalServerError, "internal_error", "temporary failure, please retry"
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verr *schedule.ValidationError
	if errors.As(err, &verr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
			RequestID: requestID(c),
			Error:     responseError{Code: "invalid_draft", Message: "schedule entry is invalid", Fields: verr.Fields},
		})
		return
	}
	status, code, message := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("request_id", requestID(c)).Str("path", c.FullPath()).Msg("request failed")
	}
	writeError(c, status, code, message)
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{
		RequestID: requestID(c),
		Error:     responseError{Code: code, Message: message},
	})
}

func writeJSON(c *gin.Context, status int, payload interface{}) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}
