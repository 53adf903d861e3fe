package store

import (
	"context"
	"time"

	"hms/internal/models"
	"hms/internal/schedule"
)

type AdvanceInput struct {
	Key       models.QueueKey
	RequestID string
	// ExpectedTurn is the currentTurn the operator was looking at; nil skips the check.
	ExpectedTurn *int
	OccurredAt   time.Time
}

type IssueTicketInput struct {
	Key         models.QueueKey
	RequestID   string
	PatientName string
	CheckInTime time.Time
}

type FinishTicketInput struct {
	Key        models.QueueKey
	TurnNumber int
	OccurredAt time.Time
}

type QueueStore interface {
	GetQueue(ctx context.Context, key models.QueueKey) (models.Queue, bool, error)
	ListTickets(ctx context.Context, key models.QueueKey) ([]models.Ticket, error)
	AdvanceTurn(ctx context.Context, input AdvanceInput) (models.Queue, models.Ticket, error)
	IssueTicket(ctx context.Context, input IssueTicketInput) (models.Ticket, bool, error)
	FinishTicket(ctx context.Context, input FinishTicketInput) (models.Ticket, error)
	ListQueueEvents(ctx context.Context, after EventOffset, limit int) ([]QueueEvent, error)
	SummarizeDay(ctx context.Context, date string) ([]models.QueueSummary, error)
}

type CreateDoctorInput struct {
	HospitalID         string
	CreatedBy          string
	Email              string
	PasswordHash       string
	FirstName          string
	LastName           string
	CedulaProfesional  string
	Especialidad       string
	TelefonoDeContacto string
}

type CreateMonitorInput struct {
	HospitalID   string
	CreatedBy    string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        string
	Cedula       string
}

// UpdateDoctorInput carries optional profile changes; nil fields are left untouched.
type UpdateDoctorInput struct {
	DoctorID           string
	FirstName          *string
	LastName           *string
	CedulaProfesional  *string
	Especialidad       *string
	TelefonoDeContacto *string
}

type AccountStore interface {
	CreateDoctor(ctx context.Context, input CreateDoctorInput) (models.Doctor, error)
	CreateMonitor(ctx context.Context, input CreateMonitorInput) (models.Monitor, error)
	ListDoctors(ctx context.Context, hospitalID string) ([]models.Doctor, error)
	GetDoctor(ctx context.Context, doctorID string) (models.Doctor, error)
	GetDoctorByUserID(ctx context.Context, userID string) (models.Doctor, error)
	UpdateDoctor(ctx context.Context, input UpdateDoctorInput) (models.Doctor, error)
	DeleteDoctor(ctx context.Context, doctorID string) error
}

type ScheduleStore interface {
	ListEntries(ctx context.Context, officeID string) ([]schedule.Entry, []schedule.Rejected, error)
	GetEntry(ctx context.Context, officeID, entryID string) (schedule.Entry, error)
	SaveEntry(ctx context.Context, entry schedule.Entry) (schedule.Entry, error)
	DeleteEntry(ctx context.Context, officeID, entryID string) error
}
