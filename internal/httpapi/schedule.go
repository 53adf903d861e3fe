package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hms/internal/models"
	"hms/internal/schedule"
	"hms/internal/store"

	"github.com/gin-gonic/gin"
)

type scheduleEntryRequest struct {
	schedule.Draft
	// DoctorID names the doctor profile when an administrator writes on a
	// doctor's behalf. Entries are stored under the doctor's user id.
	DoctorID string `json:"doctorId"`
}

type scheduleResponse struct {
	OfficeID string           `json:"officeId"`
	Events   []schedule.Event `json:"events"`
	Skipped  int              `json:"skipped"`
}

func (h *Handler) handleListSchedule(c *gin.Context) {
	officeID := strings.TrimSpace(c.Param("office"))
	from, to, windowed, ok := parseWindow(c)
	if !ok {
		return
	}
	entries, rejected, err := h.schedules.ListEntries(c.Request.Context(), officeID)
	if err != nil {
		h.fail(c, err)
		return
	}

	var events []schedule.Event
	if windowed {
		events = schedule.Expand(entries, from, to)
	} else {
		events = schedule.Reconcile(entries, h.now())
	}
	if events == nil {
		events = []schedule.Event{}
	}
	writeJSON(c, http.StatusOK, scheduleResponse{OfficeID: officeID, Events: events, Skipped: len(rejected)})
}

func parseWindow(c *gin.Context) (time.Time, time.Time, bool, bool) {
	rawFrom, rawTo := c.Query("from"), c.Query("to")
	if rawFrom == "" && rawTo == "" {
		return time.Time{}, time.Time{}, false, true
	}
	from, errFrom := time.Parse(time.RFC3339, rawFrom)
	to, errTo := time.Parse(time.RFC3339, rawTo)
	if errFrom != nil || errTo != nil || !to.After(from) {
		writeError(c, http.StatusBadRequest, "invalid_request", "from and to must be RFC3339 with to after from")
		return time.Time{}, time.Time{}, false, false
	}
	if to.Sub(from) > 366*24*time.Hour {
		writeError(c, http.StatusBadRequest, "invalid_request", "window must not exceed one year")
		return time.Time{}, time.Time{}, false, false
	}
	return from, to, true, true
}

func (h *Handler) handleCreateScheduleEntry(c *gin.Context) {
	var req scheduleEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	doctorID, ok := h.ownerForWrite(c, req.DoctorID)
	if !ok {
		return
	}
	editor := h.editor(c.Param("office"), doctorID)
	op, err := editor.Create(req.Draft)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.apply(c, op, http.StatusCreated)
}

func (h *Handler) handleUpdateScheduleEntry(c *gin.Context) {
	var req scheduleEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	existing, ok := h.loadEntryForCaller(c)
	if !ok {
		return
	}
	op, err := h.editor(existing.OfficeID, existing.DoctorID).Update(existing.ID, req.Draft)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.apply(c, op, http.StatusOK)
}

func (h *Handler) handleDeleteScheduleEntry(c *gin.Context) {
	confirmed, _ := strconv.ParseBool(c.Query("confirm"))
	op, err := h.editor(c.Param("office"), "").Delete(c.Param("id"), confirmed)
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, ok := h.loadEntryForCaller(c); !ok {
		return
	}
	h.apply(c, op, http.StatusOK)
}

func (h *Handler) apply(c *gin.Context, op schedule.Op, status int) {
	ctx := c.Request.Context()
	switch op.Kind {
	case schedule.OpDelete:
		if err := h.schedules.DeleteEntry(ctx, op.Entry.OfficeID, op.Entry.ID); err != nil {
			h.fail(c, err)
			return
		}
		writeJSON(c, status, gin.H{"id": op.Entry.ID, "deleted": true})
	default:
		saved, err := h.schedules.SaveEntry(ctx, op.Entry)
		if err != nil {
			h.fail(c, err)
			return
		}
		writeJSON(c, status, schedule.Encode(saved))
	}
}

func (h *Handler) editor(officeID, doctorID string) *schedule.Editor {
	return schedule.NewEditor(strings.TrimSpace(officeID), doctorID)
}

// loadEntryForCaller resolves :id and checks that the caller is the owning
// doctor or administers the owning doctor's hospital.
func (h *Handler) loadEntryForCaller(c *gin.Context) (schedule.Entry, bool) {
	ctx := c.Request.Context()
	entry, err := h.schedules.GetEntry(ctx, strings.TrimSpace(c.Param("office")), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return schedule.Entry{}, false
	}
	claims, _ := claimsFromContext(c)
	if claims.Role == models.RoleDoctor {
		if entry.DoctorID != claims.Subject {
			writeError(c, http.StatusForbidden, "access_denied", "entry belongs to another doctor")
			return schedule.Entry{}, false
		}
		return entry, true
	}
	owner, err := h.accounts.GetDoctorByUserID(ctx, entry.DoctorID)
	if err != nil && !errors.Is(err, store.ErrDoctorNotFound) {
		h.fail(c, err)
		return schedule.Entry{}, false
	}
	if err != nil || owner.HospitalID != claims.HospitalID {
		writeError(c, http.StatusForbidden, "access_denied", "entry belongs to another hospital")
		return schedule.Entry{}, false
	}
	return entry, true
}

// ownerForWrite returns the user id a new entry is stored under. Doctors
// always write their own schedule; administrators name a doctor profile of
// their own hospital.
func (h *Handler) ownerForWrite(c *gin.Context, requested string) (string, bool) {
	claims, _ := claimsFromContext(c)
	if claims.Role == models.RoleDoctor {
		return claims.Subject, true
	}
	requested = strings.TrimSpace(requested)
	if requested == "" {
		writeError(c, http.StatusBadRequest, "invalid_request", "doctorId is required")
		return "", false
	}
	doctor, err := h.accounts.GetDoctor(c.Request.Context(), requested)
	if err != nil {
		h.fail(c, err)
		return "", false
	}
	if doctor.HospitalID != claims.HospitalID {
		writeError(c, http.StatusForbidden, "access_denied", "doctor belongs to another hospital")
		return "", false
	}
	return doctor.UserID, true
}
