package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the DD-MM-YYYY layout used in queue keys.
const DateLayout = "02-01-2006"

const (
	StatusWaiting   = "esperando"
	StatusInConsult = "en_consulta"
	StatusFinished  = "finalizada"
)

var ErrInvalidQueueKey = errors.New("invalid queue key")

// QueueKey identifies one queue per hospital per calendar day.
type QueueKey struct {
	QueueName  string `json:"queueName"`
	HospitalID string `json:"hospitalId"`
	Date       string `json:"date"`
}

func NewQueueKey(queueName, hospitalID string, day time.Time) QueueKey {
	return QueueKey{QueueName: queueName, HospitalID: hospitalID, Date: day.Format(DateLayout)}
}

func (k QueueKey) Validate() error {
	if strings.TrimSpace(k.QueueName) == "" || strings.TrimSpace(k.HospitalID) == "" {
		return fmt.Errorf("%w: queue name and hospital id are required", ErrInvalidQueueKey)
	}
	if _, err := time.Parse(DateLayout, k.Date); err != nil {
		return fmt.Errorf("%w: date must be DD-MM-YYYY", ErrInvalidQueueKey)
	}
	return nil
}

func (k QueueKey) String() string {
	return k.QueueName + "/" + k.HospitalID + "/" + k.Date
}

type Queue struct {
	Key              QueueKey  `json:"key"`
	CurrentTurn      int       `json:"currentTurn"`
	LastAssignedTurn int       `json:"lastAssignedTurn"`
	UpdatedAt        time.Time `json:"updatedAt,omitempty"`
}

type Ticket struct {
	TicketID      string    `json:"ticketId"`
	TurnNumber    int       `json:"turnNumber"`
	PatientName   string    `json:"patientName"`
	PatientStatus string    `json:"patientStatus"`
	CheckInTime   time.Time `json:"checkInTime"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

// QueueSummary is the per-queue roll-up used by the daily report.
type QueueSummary struct {
	Key              QueueKey `json:"key"`
	CurrentTurn      int      `json:"currentTurn"`
	LastAssignedTurn int      `json:"lastAssignedTurn"`
	Waiting          int      `json:"waiting"`
	InConsult        int      `json:"inConsult"`
	Finished         int      `json:"finished"`
}
