package queue

import (
	"sort"

	"hms/internal/models"
	"hms/internal/store"
)

const MessageEmptyQueue = "no patients in queue"

type Stats struct {
	Waiting  int `json:"waiting"`
	Attended int `json:"attended"`
	Total    int `json:"total"`
}

// State is the read model shown to operators. Current is derived from the
// ticket list and is never stored.
type State struct {
	Queue      models.Queue    `json:"queue"`
	Tickets    []models.Ticket `json:"tickets"`
	Current    *models.Ticket  `json:"current"`
	Stats      Stats           `json:"stats"`
	CanAdvance bool            `json:"canAdvance"`
	Message    string          `json:"message,omitempty"`
}

func Project(q models.Queue, tickets []models.Ticket) State {
	ordered := make([]models.Ticket, len(tickets))
	copy(ordered, tickets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TurnNumber < ordered[j].TurnNumber
	})

	state := State{
		Queue:      q,
		Tickets:    ordered,
		Stats:      Stats{Total: q.LastAssignedTurn},
		CanAdvance: store.CanAdvance(q, ordered),
	}
	for _, ticket := range ordered {
		switch ticket.PatientStatus {
		case models.StatusWaiting:
			state.Stats.Waiting++
		case models.StatusFinished:
			state.Stats.Attended++
		}
	}
	if current, ok := store.TicketAt(ordered, q.CurrentTurn); ok {
		state.Current = &current
	}
	if q.LastAssignedTurn == 0 {
		state.Message = MessageEmptyQueue
	}
	return state
}
