package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hms/internal/hub"
	"hms/internal/models"
	"hms/internal/queue"
	"hms/internal/schedule"
	"hms/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-0123456789"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAccounts struct {
	createDoctorFn  func(ctx context.Context, input store.CreateDoctorInput) (models.Doctor, error)
	createMonitorFn func(ctx context.Context, input store.CreateMonitorInput) (models.Monitor, error)
	listDoctorsFn   func(ctx context.Context, hospitalID string) ([]models.Doctor, error)
	getDoctorFn     func(ctx context.Context, doctorID string) (models.Doctor, error)
	getByUserFn     func(ctx context.Context, userID string) (models.Doctor, error)
	updateDoctorFn  func(ctx context.Context, input store.UpdateDoctorInput) (models.Doctor, error)
	deleteDoctorFn  func(ctx context.Context, doctorID string) error
}

func (f fakeAccounts) CreateDoctor(ctx context.Context, input store.CreateDoctorInput) (models.Doctor, error) {
	if f.createDoctorFn == nil {
		return models.Doctor{}, nil
	}
	return f.createDoctorFn(ctx, input)
}

func (f fakeAccounts) CreateMonitor(ctx context.Context, input store.CreateMonitorInput) (models.Monitor, error) {
	if f.createMonitorFn == nil {
		return models.Monitor{}, nil
	}
	return f.createMonitorFn(ctx, input)
}

func (f fakeAccounts) ListDoctors(ctx context.Context, hospitalID string) ([]models.Doctor, error) {
	if f.listDoctorsFn == nil {
		return nil, nil
	}
	return f.listDoctorsFn(ctx, hospitalID)
}

func (f fakeAccounts) GetDoctor(ctx context.Context, doctorID string) (models.Doctor, error) {
	if f.getDoctorFn == nil {
		return models.Doctor{}, store.ErrDoctorNotFound
	}
	return f.getDoctorFn(ctx, doctorID)
}

func (f fakeAccounts) GetDoctorByUserID(ctx context.Context, userID string) (models.Doctor, error) {
	if f.getByUserFn == nil {
		return models.Doctor{}, store.ErrDoctorNotFound
	}
	return f.getByUserFn(ctx, userID)
}

func (f fakeAccounts) UpdateDoctor(ctx context.Context, input store.UpdateDoctorInput) (models.Doctor, error) {
	if f.updateDoctorFn == nil {
		return models.Doctor{}, nil
	}
	return f.updateDoctorFn(ctx, input)
}

func (f fakeAccounts) DeleteDoctor(ctx context.Context, doctorID string) error {
	if f.deleteDoctorFn == nil {
		return nil
	}
	return f.deleteDoctorFn(ctx, doctorID)
}

type fakeSchedules struct {
	listFn   func(ctx context.Context, officeID string) ([]schedule.Entry, []schedule.Rejected, error)
	getFn    func(ctx context.Context, officeID, entryID string) (schedule.Entry, error)
	saveFn   func(ctx context.Context, entry schedule.Entry) (schedule.Entry, error)
	deleteFn func(ctx context.Context, officeID, entryID string) error
}

func (f fakeSchedules) ListEntries(ctx context.Context, officeID string) ([]schedule.Entry, []schedule.Rejected, error) {
	if f.listFn == nil {
		return nil, nil, nil
	}
	return f.listFn(ctx, officeID)
}

func (f fakeSchedules) GetEntry(ctx context.Context, officeID, entryID string) (schedule.Entry, error) {
	if f.getFn == nil {
		return schedule.Entry{}, store.ErrEntryNotFound
	}
	return f.getFn(ctx, officeID, entryID)
}

func (f fakeSchedules) SaveEntry(ctx context.Context, entry schedule.Entry) (schedule.Entry, error) {
	if f.saveFn == nil {
		return entry, nil
	}
	return f.saveFn(ctx, entry)
}

func (f fakeSchedules) DeleteEntry(ctx context.Context, officeID, entryID string) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, officeID, entryID)
}

type fakeQueues struct {
	getQueueFn    func(ctx context.Context, key models.QueueKey) (models.Queue, bool, error)
	listTicketsFn func(ctx context.Context, key models.QueueKey) ([]models.Ticket, error)
	advanceFn     func(ctx context.Context, input store.AdvanceInput) (models.Queue, models.Ticket, error)
	issueFn       func(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error)
	finishFn      func(ctx context.Context, input store.FinishTicketInput) (models.Ticket, error)
}

func (f fakeQueues) GetQueue(ctx context.Context, key models.QueueKey) (models.Queue, bool, error) {
	if f.getQueueFn == nil {
		return models.Queue{}, false, nil
	}
	return f.getQueueFn(ctx, key)
}

func (f fakeQueues) ListTickets(ctx context.Context, key models.QueueKey) ([]models.Ticket, error) {
	if f.listTicketsFn == nil {
		return nil, nil
	}
	return f.listTicketsFn(ctx, key)
}

func (f fakeQueues) AdvanceTurn(ctx context.Context, input store.AdvanceInput) (models.Queue, models.Ticket, error) {
	if f.advanceFn == nil {
		return models.Queue{}, models.Ticket{}, nil
	}
	return f.advanceFn(ctx, input)
}

func (f fakeQueues) IssueTicket(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error) {
	if f.issueFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.issueFn(ctx, input)
}

func (f fakeQueues) FinishTicket(ctx context.Context, input store.FinishTicketInput) (models.Ticket, error) {
	if f.finishFn == nil {
		return models.Ticket{}, nil
	}
	return f.finishFn(ctx, input)
}

func (f fakeQueues) ListQueueEvents(ctx context.Context, after store.EventOffset, limit int) ([]store.QueueEvent, error) {
	return nil, nil
}

func (f fakeQueues) SummarizeDay(ctx context.Context, date string) ([]models.QueueSummary, error) {
	return nil, nil
}

type testDeps struct {
	accounts  fakeAccounts
	schedules fakeSchedules
	queues    fakeQueues
	now       time.Time
}

func newTestRouter(deps testDeps) http.Handler {
	return newTestHandler(deps).Routes()
}

func newTestHandler(deps testDeps) *Handler {
	h := NewHandler(Options{
		Queues:     queue.NewService(deps.queues, zerolog.Nop(), nil),
		Accounts:   deps.accounts,
		Schedules:  deps.schedules,
		Hub:        hub.New(zerolog.Nop()),
		Verifier:   NewTokenVerifier(testSecret, "", ""),
		RateLimit:  RateLimitConfig{IPPerMinute: 6000, IPBurst: 1000, HospitalPerMinute: 6000, HospitalBurst: 1000},
		Logger:     zerolog.Nop(),
		BcryptCost: bcrypt.MinCost,
	})
	if !deps.now.IsZero() {
		h.now = func() time.Time { return deps.now }
	}
	return h
}

func signToken(t *testing.T, role, hospitalID, subject string) string {
	t.Helper()
	claims := Claims{
		HospitalID: hospitalID,
		Role:       role,
		Email:      subject + "@hospital.test",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func validDoctorBody() map[string]string {
	return map[string]string{
		"email":             "ana@hospital.test",
		"password":          "secreto1",
		"firstName":         "Ana",
		"lastName":          "Ruiz",
		"cedulaProfesional": "CP-1",
		"especialidad":      "Cardiologia",
	}
}

func TestCreateDoctorUsesCallerHospital(t *testing.T) {
	var got store.CreateDoctorInput
	router := newTestRouter(testDeps{accounts: fakeAccounts{
		createDoctorFn: func(ctx context.Context, input store.CreateDoctorInput) (models.Doctor, error) {
			got = input
			return models.Doctor{
				DoctorID:          "doc-1",
				HospitalID:        input.HospitalID,
				Email:             input.Email,
				FullName:          models.FullName(input.FirstName, input.LastName),
				Especialidad:      input.Especialidad,
				CedulaProfesional: input.CedulaProfesional,
			}, nil
		},
	}})

	rec := doRequest(t, router, http.MethodPost, "/api/doctors/createDr", signToken(t, models.RoleHospitalAdmin, "hosp-1", "admin-1"), validDoctorBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp createDoctorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "doc-1", resp.DoctorID)
	assert.Equal(t, "hosp-1", resp.HospitalID)
	assert.Equal(t, "Ana Ruiz", resp.FullName)

	assert.Equal(t, "hosp-1", got.HospitalID)
	assert.Equal(t, "admin-1", got.CreatedBy)
	assert.NotEqual(t, "secreto1", got.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("secreto1")))
}

func TestCreateDoctorRejections(t *testing.T) {
	exists := fakeAccounts{createDoctorFn: func(ctx context.Context, input store.CreateDoctorInput) (models.Doctor, error) {
		return models.Doctor{}, store.ErrEmailExists
	}}
	shortPassword := validDoctorBody()
	shortPassword["password"] = "123"

	tests := []struct {
		name     string
		accounts fakeAccounts
		token    string
		body     interface{}
		status   int
		code     string
	}{
		{name: "missing token", body: validDoctorBody(), status: http.StatusUnauthorized, code: "unauthorized"},
		{name: "doctor role", token: signToken(t, models.RoleDoctor, "hosp-1", "user-2"), body: validDoctorBody(), status: http.StatusForbidden, code: "forbidden"},
		{name: "short password", token: signToken(t, models.RoleHospitalAdmin, "hosp-1", "admin-1"), body: shortPassword, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "email exists", accounts: exists, token: signToken(t, models.RoleHospitalAdmin, "hosp-1", "admin-1"), body: validDoctorBody(), status: http.StatusConflict, code: "email_exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(testDeps{accounts: tt.accounts})
			rec := doRequest(t, router, http.MethodPost, "/api/doctors/createDr", tt.token, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestCreateDoctorRejectsExpiredToken(t *testing.T) {
	claims := Claims{
		HospitalID: "hosp-1",
		Role:       models.RoleHospitalAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := doRequest(t, newTestRouter(testDeps{}), http.MethodPost, "/api/doctors/createDr", token, validDoctorBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateMonitor(t *testing.T) {
	router := newTestRouter(testDeps{accounts: fakeAccounts{
		createMonitorFn: func(ctx context.Context, input store.CreateMonitorInput) (models.Monitor, error) {
			return models.Monitor{
				MonitorID:  "mon-1",
				HospitalID: input.HospitalID,
				Email:      input.Email,
				FullName:   models.FullName(input.FirstName, input.LastName),
				Phone:      input.Phone,
			}, nil
		},
	}})

	body := map[string]string{
		"email":     "sala@hospital.test",
		"password":  "pantalla1",
		"firstName": "Sala",
		"lastName":  "Norte",
		"phone":     "555-0100",
	}
	rec := doRequest(t, router, http.MethodPost, "/monitores/create", signToken(t, models.RoleHospitalAdmin, "hosp-1", "admin-1"), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp createMonitorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "mon-1", resp.MonitorID)
	assert.Equal(t, "hosp-1", resp.HospitalID)
	assert.Equal(t, "Sala Norte", resp.FullName)
}

func TestListDoctorsDoctorSeesOwnProfile(t *testing.T) {
	router := newTestRouter(testDeps{accounts: fakeAccounts{
		listDoctorsFn: func(ctx context.Context, hospitalID string) ([]models.Doctor, error) {
			return []models.Doctor{
				{DoctorID: "doc-1", UserID: "user-1", HospitalID: hospitalID},
				{DoctorID: "doc-2", UserID: "user-2", HospitalID: hospitalID},
			}, nil
		},
	}})

	rec := doRequest(t, router, http.MethodGet, "/api/doctors", signToken(t, models.RoleDoctor, "hosp-1", "user-2"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Doctors []models.Doctor `json:"doctors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Doctors, 1)
	assert.Equal(t, "doc-2", resp.Doctors[0].DoctorID)
}

func TestGetDoctorOtherHospitalDenied(t *testing.T) {
	router := newTestRouter(testDeps{accounts: fakeAccounts{
		getDoctorFn: func(ctx context.Context, doctorID string) (models.Doctor, error) {
			return models.Doctor{DoctorID: doctorID, UserID: "user-1", HospitalID: "hosp-2"}, nil
		},
	}})

	rec := doRequest(t, router, http.MethodGet, "/api/doctors/doc-1", signToken(t, models.RoleHospitalAdmin, "hosp-1", "admin-1"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

const queuePath = "/api/queues/consulta_general/hosp-1/03-03-2026"

func TestQueueStateEmptyDay(t *testing.T) {
	router := newTestRouter(testDeps{})

	rec := doRequest(t, router, http.MethodGet, queuePath, signToken(t, models.RoleMonitor, "hosp-1", "mon-1"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var state queue.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.False(t, state.CanAdvance)
	assert.Equal(t, queue.MessageEmptyQueue, state.Message)
	assert.Equal(t, 0, state.Stats.Total)
	assert.Nil(t, state.Current)
}

func TestQueueOtherHospitalDenied(t *testing.T) {
	router := newTestRouter(testDeps{})

	rec := doRequest(t, router, http.MethodGet, queuePath, signToken(t, models.RoleMonitor, "hosp-2", "mon-1"), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "access_denied", decodeError(t, rec).Error.Code)
}

func TestQueueInvalidDate(t *testing.T) {
	router := newTestRouter(testDeps{})

	rec := doRequest(t, router, http.MethodGet, "/api/queues/consulta_general/hosp-1/2026-03-03", signToken(t, models.RoleMonitor, "hosp-1", "mon-1"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdvanceReturnsNewState(t *testing.T) {
	key := models.QueueKey{QueueName: "consulta_general", HospitalID: "hosp-1", Date: "03-03-2026"}
	var got store.AdvanceInput
	advanced := false
	router := newTestRouter(testDeps{queues: fakeQueues{
		advanceFn: func(ctx context.Context, input store.AdvanceInput) (models.Queue, models.Ticket, error) {
			got = input
			advanced = true
			return models.Queue{}, models.Ticket{}, nil
		},
		getQueueFn: func(ctx context.Context, k models.QueueKey) (models.Queue, bool, error) {
			if !advanced {
				return models.Queue{Key: key, CurrentTurn: 2, LastAssignedTurn: 3}, true, nil
			}
			return models.Queue{Key: key, CurrentTurn: 3, LastAssignedTurn: 3}, true, nil
		},
		listTicketsFn: func(ctx context.Context, k models.QueueKey) ([]models.Ticket, error) {
			return []models.Ticket{
				{TurnNumber: 1, PatientStatus: models.StatusFinished},
				{TurnNumber: 2, PatientStatus: models.StatusFinished},
				{TurnNumber: 3, PatientStatus: models.StatusInConsult},
			}, nil
		},
	}})

	body := map[string]interface{}{"request_id": "req-42", "expected_turn": 2}
	rec := doRequest(t, router, http.MethodPost, queuePath+"/advance", signToken(t, models.RoleDoctor, "hosp-1", "user-1"), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var state queue.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, 3, state.Queue.CurrentTurn)
	require.NotNil(t, state.Current)
	assert.Equal(t, 3, state.Current.TurnNumber)
	assert.False(t, state.CanAdvance)

	assert.Equal(t, key, got.Key)
	assert.Equal(t, "req-42", got.RequestID)
	require.NotNil(t, got.ExpectedTurn)
	assert.Equal(t, 2, *got.ExpectedTurn)
}

func TestAdvanceErrorMapping(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		code    string
		message string
	}{
		{err: store.ErrNotEligible, status: http.StatusConflict, code: "not_eligible"},
		{err: store.ErrStaleTurn, status: http.StatusConflict, code: "stale_turn"},
		{err: store.ErrNoNextTicket, status: http.StatusConflict, code: "no_next_ticket", message: "no patients in queue"},
		{err: store.ErrTicketMissing, status: http.StatusUnprocessableEntity, code: "ticket_missing"},
		{err: store.ErrRequestReused, status: http.StatusConflict, code: "request_reused"},
		{err: errors.New("connection reset"), status: http.StatusInternalServerError, code: "internal_error", message: "temporary failure, please retry"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			router := newTestRouter(testDeps{queues: fakeQueues{
				advanceFn: func(ctx context.Context, input store.AdvanceInput) (models.Queue, models.Ticket, error) {
					return models.Queue{}, models.Ticket{}, tt.err
				},
			}})
			rec := doRequest(t, router, http.MethodPost, queuePath+"/advance", signToken(t, models.RoleDoctor, "hosp-1", "user-1"), nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Error.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Error.Message)
			}
		})
	}
}

func TestIssueTicketStatus(t *testing.T) {
	created := true
	router := newTestRouter(testDeps{queues: fakeQueues{
		issueFn: func(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error) {
			return models.Ticket{TurnNumber: 4, PatientName: input.PatientName, PatientStatus: models.StatusWaiting}, created, nil
		},
	}})
	token := signToken(t, models.RoleMonitor, "hosp-1", "mon-1")
	body := map[string]string{"request_id": "kiosk-1", "patient_name": "Luis"}

	rec := doRequest(t, router, http.MethodPost, queuePath+"/tickets", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created = false
	rec = doRequest(t, router, http.MethodPost, queuePath+"/tickets", token, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var ticket models.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ticket))
	assert.Equal(t, 4, ticket.TurnNumber)
	assert.Equal(t, "Luis", ticket.PatientName)
}

func TestFinishTicketRejectsBadTurn(t *testing.T) {
	router := newTestRouter(testDeps{})

	rec := doRequest(t, router, http.MethodPost, queuePath+"/tickets/abc/finish", signToken(t, models.RoleDoctor, "hosp-1", "user-1"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func mondayEntry(doctorID string) schedule.Entry {
	return schedule.Entry{
		ID:          "entry-1",
		OfficeID:    "office-1",
		DoctorID:    doctorID,
		IsAvailable: true,
		Recurring: &schedule.WeeklyWindow{
			Days:      []time.Weekday{time.Monday},
			StartTime: "09:00",
			EndTime:   "10:00",
		},
	}
}

func TestListScheduleReconcilesFromNow(t *testing.T) {
	router := newTestRouter(testDeps{
		now: time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC),
		schedules: fakeSchedules{
			listFn: func(ctx context.Context, officeID string) ([]schedule.Entry, []schedule.Rejected, error) {
				assert.Equal(t, "office-1", officeID)
				return []schedule.Entry{mondayEntry("user-1")}, []schedule.Rejected{{ID: "legacy", Err: schedule.ErrMalformedEntry}}, nil
			},
		},
	})

	rec := doRequest(t, router, http.MethodGet, "/api/offices/office-1/schedules", signToken(t, models.RoleMonitor, "hosp-1", "mon-1"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp scheduleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Skipped)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, schedule.TitleAvailable, resp.Events[0].Title)
	assert.True(t, resp.Events[0].Start.Equal(time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Hour, resp.Events[0].End.Sub(resp.Events[0].Start))
}

func TestListScheduleWindow(t *testing.T) {
	router := newTestRouter(testDeps{schedules: fakeSchedules{
		listFn: func(ctx context.Context, officeID string) ([]schedule.Entry, []schedule.Rejected, error) {
			return []schedule.Entry{mondayEntry("user-1")}, nil, nil
		},
	}})
	token := signToken(t, models.RoleMonitor, "hosp-1", "mon-1")

	rec := doRequest(t, router, http.MethodGet, "/api/offices/office-1/schedules?from=2026-03-02T00:00:00Z&to=2026-03-16T00:00:00Z", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp scheduleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Events, 2)

	rec = doRequest(t, router, http.MethodGet, "/api/offices/office-1/schedules?from=2026-03-16T00:00:00Z&to=2026-03-02T00:00:00Z", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateScheduleEntryOwnedByDoctor(t *testing.T) {
	var saved schedule.Entry
	router := newTestRouter(testDeps{schedules: fakeSchedules{
		saveFn: func(ctx context.Context, entry schedule.Entry) (schedule.Entry, error) {
			saved = entry
			return entry, nil
		},
	}})

	body := map[string]interface{}{
		"days":        []string{"Lunes", "miercoles"},
		"startTime":   "09:00",
		"endTime":     "13:00",
		"isAvailable": true,
		"doctorId":    "someone-else",
	}
	rec := doRequest(t, router, http.MethodPost, "/api/offices/office-1/schedules", signToken(t, models.RoleDoctor, "hosp-1", "user-9"), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, "user-9", saved.DoctorID)
	assert.Equal(t, "office-1", saved.OfficeID)
	require.NotNil(t, saved.Recurring)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, saved.Recurring.Days)

	var raw schedule.RawEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, []string{"Lunes", "Miércoles"}, raw.Days)
	assert.NotEmpty(t, raw.ID)
}

func TestCreateScheduleEntryInvalidDraft(t *testing.T) {
	router := newTestRouter(testDeps{})

	body := map[string]interface{}{"days": []string{}, "startTime": "09:00", "endTime": "10:00"}
	rec := doRequest(t, router, http.MethodPost, "/api/offices/office-1/schedules", signToken(t, models.RoleDoctor, "hosp-1", "user-9"), body)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	resp := decodeError(t, rec)
	assert.Equal(t, "invalid_draft", resp.Error.Code)
	require.NotEmpty(t, resp.Error.Fields)
	assert.Equal(t, "days", resp.Error.Fields[0].Field)
}

func TestCreateScheduleEntryAdminNeedsDoctor(t *testing.T) {
	router := newTestRouter(testDeps{})

	body := map[string]interface{}{"days": []string{"Lunes"}, "startTime": "09:00", "endTime": "10:00"}
	rec := doRequest(t, router, http.MethodPost, "/api/offices/office-1/schedules", signToken(t, models.RoleHospitalAdmin, "hosp-1", "admin-1"), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteScheduleEntry(t *testing.T) {
	deleted := ""
	router := newTestRouter(testDeps{schedules: fakeSchedules{
		getFn: func(ctx context.Context, officeID, entryID string) (schedule.Entry, error) {
			return mondayEntry("user-1"), nil
		},
		deleteFn: func(ctx context.Context, officeID, entryID string) error {
			deleted = officeID + "/" + entryID
			return nil
		},
	}})
	owner := signToken(t, models.RoleDoctor, "hosp-1", "user-1")

	rec := doRequest(t, router, http.MethodDelete, "/api/offices/office-1/schedules/entry-1", owner, nil)
	require.Equal(t, http.StatusPreconditionRequired, rec.Code)
	assert.Equal(t, "confirmation_required", decodeError(t, rec).Error.Code)
	assert.Empty(t, deleted)

	rec = doRequest(t, router, http.MethodDelete, "/api/offices/office-1/schedules/entry-1?confirm=true", signToken(t, models.RoleDoctor, "hosp-1", "user-2"), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, deleted)

	rec = doRequest(t, router, http.MethodDelete, "/api/offices/office-1/schedules/entry-1?confirm=true", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "office-1/entry-1", deleted)
}

// doctorDirectory resolves doctor profiles by profile id and by user id.
func doctorDirectory(doctors ...models.Doctor) fakeAccounts {
	return fakeAccounts{
		getDoctorFn: func(ctx context.Context, doctorID string) (models.Doctor, error) {
			for _, d := range doctors {
				if d.DoctorID == doctorID {
					return d, nil
				}
			}
			return models.Doctor{}, store.ErrDoctorNotFound
		},
		getByUserFn: func(ctx context.Context, userID string) (models.Doctor, error) {
			for _, d := range doctors {
				if d.UserID == userID {
					return d, nil
				}
			}
			return models.Doctor{}, store.ErrDoctorNotFound
		},
	}
}

func TestAdminScheduleWritesScopedToHospital(t *testing.T) {
	entries := map[string]schedule.Entry{}
	saves := 0
	router := newTestRouter(testDeps{
		accounts: doctorDirectory(
			models.Doctor{DoctorID: "doc-1", UserID: "user-1", HospitalID: "hosp-1"},
			models.Doctor{DoctorID: "doc-2", UserID: "user-2", HospitalID: "hosp-2"},
		),
		schedules: fakeSchedules{
			getFn: func(ctx context.Context, officeID, entryID string) (schedule.Entry, error) {
				entry, ok := entries[entryID]
				if !ok {
					return schedule.Entry{}, store.ErrEntryNotFound
				}
				return entry, nil
			},
			saveFn: func(ctx context.Context, entry schedule.Entry) (schedule.Entry, error) {
				saves++
				entries[entry.ID] = entry
				return entry, nil
			},
			deleteFn: func(ctx context.Context, officeID, entryID string) error {
				delete(entries, entryID)
				return nil
			},
		},
	})
	admin := signToken(t, models.RoleHospitalAdmin, "hosp-1", "admin-1")
	draft := func(doctorID string) map[string]interface{} {
		return map[string]interface{}{"days": []string{"Lunes"}, "startTime": "09:00", "endTime": "10:00", "isAvailable": true, "doctorId": doctorID}
	}

	rec := doRequest(t, router, http.MethodPost, "/api/offices/office-1/schedules", admin, draft("doc-2"))
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Equal(t, "access_denied", decodeError(t, rec).Error.Code)
	assert.Equal(t, 0, saves)

	rec = doRequest(t, router, http.MethodPost, "/api/offices/office-1/schedules", admin, draft("doc-404"))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, saves)

	rec = doRequest(t, router, http.MethodPost, "/api/offices/office-1/schedules", admin, draft("doc-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, entries, 1)
	var id string
	for entryID, entry := range entries {
		id = entryID
		assert.Equal(t, "user-1", entry.DoctorID)
	}

	// The doctor sees the entry the administrator wrote as their own.
	rec = doRequest(t, router, http.MethodPut, "/api/offices/office-1/schedules/"+id, signToken(t, models.RoleDoctor, "hosp-1", "user-1"), draft(""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	otherAdmin := signToken(t, models.RoleHospitalAdmin, "hosp-2", "admin-2")
	rec = doRequest(t, router, http.MethodDelete, "/api/offices/office-1/schedules/"+id+"?confirm=true", otherAdmin, nil)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	rec = doRequest(t, router, http.MethodPut, "/api/offices/office-1/schedules/"+id, otherAdmin, draft(""))
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Len(t, entries, 1)

	rec = doRequest(t, router, http.MethodDelete, "/api/offices/office-1/schedules/"+id+"?confirm=true", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, entries)
}

func TestAdminDeleteEntryOfUnknownOwnerDenied(t *testing.T) {
	deleted := false
	router := newTestRouter(testDeps{schedules: fakeSchedules{
		getFn: func(ctx context.Context, officeID, entryID string) (schedule.Entry, error) {
			return mondayEntry("user-gone"), nil
		},
		deleteFn: func(ctx context.Context, officeID, entryID string) error {
			deleted = true
			return nil
		},
	}})

	rec := doRequest(t, router, http.MethodDelete, "/api/offices/office-1/schedules/entry-1?confirm=true", signToken(t, models.RoleHospitalAdmin, "hosp-1", "admin-1"), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, deleted)
}

func TestUpdateScheduleEntryNotFound(t *testing.T) {
	router := newTestRouter(testDeps{})

	body := map[string]interface{}{"days": []string{"Lunes"}, "startTime": "09:00", "endTime": "10:00"}
	rec := doRequest(t, router, http.MethodPut, "/api/offices/office-1/schedules/missing", signToken(t, models.RoleDoctor, "hosp-1", "user-1"), body)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "entry_not_found", decodeError(t, rec).Error.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(testDeps{})
	doRequest(t, router, http.MethodGet, "/healthz", "", nil)

	rec := doRequest(t, router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hms_http_requests_total")
}
