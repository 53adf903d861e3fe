package httpapi

import (
	"net/http"
	"strings"

	"hms/internal/models"
	"hms/internal/store"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type createDoctorRequest struct {
	Email              string `json:"email" binding:"required,email"`
	Password           string `json:"password" binding:"required,min=6"`
	FirstName          string `json:"firstName" binding:"required"`
	LastName           string `json:"lastName" binding:"required"`
	CedulaProfesional  string `json:"cedulaProfesional" binding:"required"`
	Especialidad       string `json:"especialidad" binding:"required"`
	TelefonoDeContacto string `json:"telefonoDeContacto"`
}

type createDoctorResponse struct {
	DoctorID          string `json:"doctorId"`
	Email             string `json:"email"`
	FullName          string `json:"fullName"`
	HospitalID        string `json:"hospitalId"`
	Especialidad      string `json:"especialidad"`
	CedulaProfesional string `json:"cedulaProfesional"`
}

type createMonitorRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Phone     string `json:"phone"`
	Cedula    string `json:"cedula"`
}

type createMonitorResponse struct {
	MonitorID  string `json:"monitorId"`
	Email      string `json:"email"`
	HospitalID string `json:"hospitalId"`
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
}

type updateDoctorRequest struct {
	FirstName          *string `json:"firstName" binding:"omitempty,min=1"`
	LastName           *string `json:"lastName" binding:"omitempty,min=1"`
	CedulaProfesional  *string `json:"cedulaProfesional" binding:"omitempty,min=1"`
	Especialidad       *string `json:"especialidad" binding:"omitempty,min=1"`
	TelefonoDeContacto *string `json:"telefonoDeContacto"`
}

func (h *Handler) handleCreateDoctor(c *gin.Context) {
	claims, _ := claimsFromContext(c)
	if claims.HospitalID == "" {
		writeError(c, http.StatusForbidden, "access_denied", "administrator has no hospital")
		return
	}
	var req createDoctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	hash, err := h.hashPassword(req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	doctor, err := h.accounts.CreateDoctor(c.Request.Context(), store.CreateDoctorInput{
		HospitalID:         claims.HospitalID,
		CreatedBy:          claims.Subject,
		Email:              req.Email,
		PasswordHash:       hash,
		FirstName:          strings.TrimSpace(req.FirstName),
		LastName:           strings.TrimSpace(req.LastName),
		CedulaProfesional:  strings.TrimSpace(req.CedulaProfesional),
		Especialidad:       strings.TrimSpace(req.Especialidad),
		TelefonoDeContacto: strings.TrimSpace(req.TelefonoDeContacto),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info().Str("doctor_id", doctor.DoctorID).Str("hospital_id", doctor.HospitalID).Str("created_by", claims.Subject).Msg("doctor created")
	writeJSON(c, http.StatusCreated, createDoctorResponse{
		DoctorID:          doctor.DoctorID,
		Email:             doctor.Email,
		FullName:          doctor.FullName,
		HospitalID:        doctor.HospitalID,
		Especialidad:      doctor.Especialidad,
		CedulaProfesional: doctor.CedulaProfesional,
	})
}

func (h *Handler) handleCreateMonitor(c *gin.Context) {
	claims, _ := claimsFromContext(c)
	if claims.HospitalID == "" {
		writeError(c, http.StatusForbidden, "access_denied", "administrator has no hospital")
		return
	}
	var req createMonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	hash, err := h.hashPassword(req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	monitor, err := h.accounts.CreateMonitor(c.Request.Context(), store.CreateMonitorInput{
		HospitalID:   claims.HospitalID,
		CreatedBy:    claims.Subject,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        strings.TrimSpace(req.Phone),
		Cedula:       strings.TrimSpace(req.Cedula),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info().Str("monitor_id", monitor.MonitorID).Str("hospital_id", monitor.HospitalID).Str("created_by", claims.Subject).Msg("monitor created")
	writeJSON(c, http.StatusCreated, createMonitorResponse{
		MonitorID:  monitor.MonitorID,
		Email:      monitor.Email,
		HospitalID: monitor.HospitalID,
		FullName:   monitor.FullName,
		Phone:      monitor.Phone,
	})
}

// handleListDoctors returns the hospital roster to administrators and only
// the caller's own profile to doctors.
func (h *Handler) handleListDoctors(c *gin.Context) {
	claims, _ := claimsFromContext(c)
	doctors, err := h.accounts.ListDoctors(c.Request.Context(), claims.HospitalID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !isAdmin(claims) {
		own := make([]models.Doctor, 0, 1)
		for _, doctor := range doctors {
			if doctor.UserID == claims.Subject {
				own = append(own, doctor)
			}
		}
		doctors = own
	}
	if doctors == nil {
		doctors = []models.Doctor{}
	}
	writeJSON(c, http.StatusOK, gin.H{"doctors": doctors})
}

func (h *Handler) handleGetDoctor(c *gin.Context) {
	doctor, ok := h.loadDoctorForCaller(c, true)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, doctor)
}

func (h *Handler) handleUpdateDoctor(c *gin.Context) {
	doctor, ok := h.loadDoctorForCaller(c, true)
	if !ok {
		return
	}
	var req updateDoctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	updated, err := h.accounts.UpdateDoctor(c.Request.Context(), store.UpdateDoctorInput{
		DoctorID:           doctor.DoctorID,
		FirstName:          trimmed(req.FirstName),
		LastName:           trimmed(req.LastName),
		CedulaProfesional:  trimmed(req.CedulaProfesional),
		Especialidad:       trimmed(req.Especialidad),
		TelefonoDeContacto: trimmed(req.TelefonoDeContacto),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, updated)
}

func (h *Handler) handleDeleteDoctor(c *gin.Context) {
	doctor, ok := h.loadDoctorForCaller(c, false)
	if !ok {
		return
	}
	if err := h.accounts.DeleteDoctor(c.Request.Context(), doctor.DoctorID); err != nil {
		h.fail(c, err)
		return
	}
	claims, _ := claimsFromContext(c)
	h.logger.Info().Str("doctor_id", doctor.DoctorID).Str("deleted_by", claims.Subject).Msg("doctor deleted")
	writeJSON(c, http.StatusOK, gin.H{"doctorId": doctor.DoctorID, "deleted": true})
}

// loadDoctorForCaller resolves :id and checks that the caller administers the
// doctor's hospital or, when allowSelf is set, is that doctor.
func (h *Handler) loadDoctorForCaller(c *gin.Context, allowSelf bool) (models.Doctor, bool) {
	claims, _ := claimsFromContext(c)
	doctor, err := h.accounts.GetDoctor(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return models.Doctor{}, false
	}
	switch {
	case isAdmin(claims) && claims.HospitalID == doctor.HospitalID:
		return doctor, true
	case allowSelf && claims.Role == models.RoleDoctor && doctor.UserID == claims.Subject:
		return doctor, true
	default:
		writeError(c, http.StatusForbidden, "access_denied", "not allowed to access this doctor")
		return models.Doctor{}, false
	}
}

func (h *Handler) hashPassword(password string) (string, error) {
	cost := h.bcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}
