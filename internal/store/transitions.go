package store

import "hms/internal/models"

var transitionMap = map[string][]string{
	"advance": {models.StatusWaiting},
	"finish":  {models.StatusInConsult},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// CanAdvance is the single eligibility predicate for moving currentTurn forward:
// the ticket at currentTurn has finished, or nobody is being served and more
// tickets have been issued.
func CanAdvance(queue models.Queue, tickets []models.Ticket) bool {
	current, found := TicketAt(tickets, queue.CurrentTurn)
	if found {
		return current.PatientStatus == models.StatusFinished
	}
	return queue.LastAssignedTurn > queue.CurrentTurn
}

func TicketAt(tickets []models.Ticket, turn int) (models.Ticket, bool) {
	if turn <= 0 {
		return models.Ticket{}, false
	}
	for _, ticket := range tickets {
		if ticket.TurnNumber == turn {
			return ticket, true
		}
	}
	return models.Ticket{}, false
}
