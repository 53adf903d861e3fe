package store

import "errors"

var (
	ErrNotEligible    = errors.New("queue cannot advance")
	ErrNoNextTicket   = errors.New("no next ticket in queue")
	ErrTicketMissing  = errors.New("next ticket record missing")
	ErrStaleTurn      = errors.New("queue already advanced")
	ErrTicketNotFound = errors.New("ticket not found")
	ErrInvalidState   = errors.New("invalid ticket state")
	ErrEmailExists    = errors.New("email already registered")
	ErrDoctorNotFound = errors.New("doctor not found")
	ErrEntryNotFound  = errors.New("schedule entry not found")
	ErrAccessDenied   = errors.New("access denied")
	ErrRequestReused  = errors.New("request id already used on another queue")
)
