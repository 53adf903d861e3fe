package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hms/internal/models"
	"hms/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	actionAdvance = "advance"
	actionIssue   = "issue"
)

func (s *Store) GetQueue(ctx context.Context, key models.QueueKey) (models.Queue, bool, error) {
	date, err := queueDate(key)
	if err != nil {
		return models.Queue{}, false, err
	}
	q := models.Queue{Key: key}
	row := s.pool.QueryRow(ctx, `
		SELECT current_turn, last_assigned_turn, updated_at
		FROM queues
		WHERE queue_name = $1 AND hospital_id = $2 AND queue_date = $3
	`, key.QueueName, key.HospitalID, date)
	if err := row.Scan(&q.CurrentTurn, &q.LastAssignedTurn, &q.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Queue{Key: key}, false, nil
		}
		return models.Queue{}, false, err
	}
	return q, true, nil
}

func (s *Store) ListTickets(ctx context.Context, key models.QueueKey) ([]models.Ticket, error) {
	date, err := queueDate(key)
	if err != nil {
		return nil, err
	}
	return listTickets(ctx, s.pool, key, date)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func listTickets(ctx context.Context, q querier, key models.QueueKey, date time.Time) ([]models.Ticket, error) {
	rows, err := q.Query(ctx, `
		SELECT ticket_id, turn_number, patient_name, patient_status, check_in_time, updated_at
		FROM tickets
		WHERE queue_name = $1 AND hospital_id = $2 AND queue_date = $3
		ORDER BY turn_number ASC
	`, key.QueueName, key.HospitalID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var ticket models.Ticket
		if err := rows.Scan(&ticket.TicketID, &ticket.TurnNumber, &ticket.PatientName, &ticket.PatientStatus, &ticket.CheckInTime, &ticket.UpdatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

// AdvanceTurn locks the queue row, checks eligibility against the locked
// state and then moves current_turn and the next ticket together.
func (s *Store) AdvanceTurn(ctx context.Context, input store.AdvanceInput) (models.Queue, models.Ticket, error) {
	date, err := queueDate(input.Key)
	if err != nil {
		return models.Queue{}, models.Ticket{}, err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Queue{}, models.Ticket{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q, found, err := lockQueue(ctx, tx, input.Key, date)
	if err != nil {
		return models.Queue{}, models.Ticket{}, err
	}
	if !found {
		return models.Queue{}, models.Ticket{}, store.ErrNotEligible
	}

	if input.RequestID != "" {
		ticketID, seen, err := findActionRequest(ctx, tx, actionAdvance, input.RequestID, input.Key, date)
		if err != nil {
			return models.Queue{}, models.Ticket{}, err
		}
		if seen {
			ticket, err := getTicketByID(ctx, tx, ticketID)
			if err != nil {
				return models.Queue{}, models.Ticket{}, err
			}
			if err := tx.Commit(ctx); err != nil {
				return models.Queue{}, models.Ticket{}, err
			}
			return q, ticket, nil
		}
	}

	if input.ExpectedTurn != nil && *input.ExpectedTurn != q.CurrentTurn {
		return models.Queue{}, models.Ticket{}, store.ErrStaleTurn
	}

	tickets, err := listTickets(ctx, tx, input.Key, date)
	if err != nil {
		return models.Queue{}, models.Ticket{}, err
	}
	if !store.CanAdvance(q, tickets) {
		return models.Queue{}, models.Ticket{}, store.ErrNotEligible
	}
	next := q.CurrentTurn + 1
	if next > q.LastAssignedTurn {
		return models.Queue{}, models.Ticket{}, store.ErrNoNextTicket
	}
	ticket, ok := store.TicketAt(tickets, next)
	if !ok {
		return models.Queue{}, models.Ticket{}, store.ErrTicketMissing
	}
	if !store.ValidTransition(actionAdvance, ticket.PatientStatus) {
		return models.Queue{}, models.Ticket{}, store.ErrInvalidState
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	if _, err := tx.Exec(ctx, `
		UPDATE tickets SET patient_status = $2, updated_at = $3 WHERE ticket_id = $1
	`, ticket.TicketID, models.StatusInConsult, occurredAt); err != nil {
		return models.Queue{}, models.Ticket{}, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE queues SET current_turn = $4, updated_at = $5
		WHERE queue_name = $1 AND hospital_id = $2 AND queue_date = $3
	`, input.Key.QueueName, input.Key.HospitalID, date, next, occurredAt); err != nil {
		return models.Queue{}, models.Ticket{}, err
	}
	if input.RequestID != "" {
		if err := insertActionRequest(ctx, tx, actionAdvance, input.RequestID, input.Key, date, ticket.TicketID); err != nil {
			return models.Queue{}, models.Ticket{}, err
		}
	}
	if err := insertQueueEvent(ctx, tx, input.Key, date, store.EventTurnAdvanced, next); err != nil {
		return models.Queue{}, models.Ticket{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Queue{}, models.Ticket{}, err
	}

	q.CurrentTurn = next
	q.UpdatedAt = occurredAt
	ticket.PatientStatus = models.StatusInConsult
	ticket.UpdatedAt = occurredAt
	return q, ticket, nil
}

func (s *Store) IssueTicket(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error) {
	date, err := queueDate(input.Key)
	if err != nil {
		return models.Ticket{}, false, err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	checkIn := input.CheckInTime
	if checkIn.IsZero() {
		checkIn = time.Now().UTC()
	}

	// Create the row if needed, then lock it so the request id lookup below
	// sees every issue committed before us for this queue.
	if _, err := tx.Exec(ctx, `
		INSERT INTO queues (queue_name, hospital_id, queue_date, current_turn, last_assigned_turn, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4)
		ON CONFLICT (queue_name, hospital_id, queue_date) DO NOTHING
	`, input.Key.QueueName, input.Key.HospitalID, date, checkIn); err != nil {
		return models.Ticket{}, false, err
	}
	if _, _, err := lockQueue(ctx, tx, input.Key, date); err != nil {
		return models.Ticket{}, false, err
	}

	if input.RequestID != "" {
		ticketID, seen, err := findActionRequest(ctx, tx, actionIssue, input.RequestID, input.Key, date)
		if err != nil {
			return models.Ticket{}, false, err
		}
		if seen {
			ticket, err := getTicketByID(ctx, tx, ticketID)
			if err != nil {
				return models.Ticket{}, false, err
			}
			return ticket, false, nil
		}
	}

	var turn int
	row := tx.QueryRow(ctx, `
		UPDATE queues SET last_assigned_turn = last_assigned_turn + 1, updated_at = $4
		WHERE queue_name = $1 AND hospital_id = $2 AND queue_date = $3
		RETURNING last_assigned_turn
	`, input.Key.QueueName, input.Key.HospitalID, date, checkIn)
	if err := row.Scan(&turn); err != nil {
		return models.Ticket{}, false, err
	}

	ticket := models.Ticket{
		TicketID:      uuid.NewString(),
		TurnNumber:    turn,
		PatientName:   input.PatientName,
		PatientStatus: models.StatusWaiting,
		CheckInTime:   checkIn,
		UpdatedAt:     checkIn,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO tickets (ticket_id, queue_name, hospital_id, queue_date, turn_number, patient_name, patient_status, check_in_time, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, ticket.TicketID, input.Key.QueueName, input.Key.HospitalID, date, ticket.TurnNumber, ticket.PatientName, ticket.PatientStatus, checkIn); err != nil {
		return models.Ticket{}, false, err
	}
	if input.RequestID != "" {
		if err := insertActionRequest(ctx, tx, actionIssue, input.RequestID, input.Key, date, ticket.TicketID); err != nil {
			return models.Ticket{}, false, err
		}
	}
	if err := insertQueueEvent(ctx, tx, input.Key, date, store.EventTicketIssued, turn); err != nil {
		return models.Ticket{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

// FinishTicket closes the consultation for the ticket currently being served.
func (s *Store) FinishTicket(ctx context.Context, input store.FinishTicketInput) (models.Ticket, error) {
	date, err := queueDate(input.Key)
	if err != nil {
		return models.Ticket{}, err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q, found, err := lockQueue(ctx, tx, input.Key, date)
	if err != nil {
		return models.Ticket{}, err
	}
	if !found {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	tickets, err := listTickets(ctx, tx, input.Key, date)
	if err != nil {
		return models.Ticket{}, err
	}
	ticket, ok := store.TicketAt(tickets, input.TurnNumber)
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if input.TurnNumber != q.CurrentTurn || !store.ValidTransition("finish", ticket.PatientStatus) {
		return models.Ticket{}, store.ErrInvalidState
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	if _, err := tx.Exec(ctx, `
		UPDATE tickets SET patient_status = $2, updated_at = $3 WHERE ticket_id = $1
	`, ticket.TicketID, models.StatusFinished, occurredAt); err != nil {
		return models.Ticket{}, err
	}
	if err := insertQueueEvent(ctx, tx, input.Key, date, store.EventTicketFinished, ticket.TurnNumber); err != nil {
		return models.Ticket{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	ticket.PatientStatus = models.StatusFinished
	ticket.UpdatedAt = occurredAt
	return ticket, nil
}

func (s *Store) ListQueueEvents(ctx context.Context, after store.EventOffset, limit int) ([]store.QueueEvent, error) {
	if limit <= 0 {
		limit = defaultEventPage
	}
	afterID := after.EventID
	if afterID == "" {
		afterID = zeroUUID
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, queue_name, hospital_id, queue_date, type, turn_number, created_at
		FROM queue_events
		WHERE (created_at, event_id) > ($1, $2::uuid)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, after.CreatedAt, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.QueueEvent
	for rows.Next() {
		var event store.QueueEvent
		var date time.Time
		if err := rows.Scan(&event.EventID, &event.Key.QueueName, &event.Key.HospitalID, &date, &event.Type, &event.TurnNumber, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.Key.Date = date.Format(models.DateLayout)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// SummarizeDay rolls up every queue of one DD-MM-YYYY date.
func (s *Store) SummarizeDay(ctx context.Context, day string) ([]models.QueueSummary, error) {
	date, err := time.Parse(models.DateLayout, day)
	if err != nil {
		return nil, models.ErrInvalidQueueKey
	}
	rows, err := s.pool.Query(ctx, `
		SELECT q.queue_name, q.hospital_id, q.current_turn, q.last_assigned_turn,
			COUNT(t.ticket_id) FILTER (WHERE t.patient_status = 'esperando'),
			COUNT(t.ticket_id) FILTER (WHERE t.patient_status = 'en_consulta'),
			COUNT(t.ticket_id) FILTER (WHERE t.patient_status = 'finalizada')
		FROM queues q
		LEFT JOIN tickets t
			ON t.queue_name = q.queue_name AND t.hospital_id = q.hospital_id AND t.queue_date = q.queue_date
		WHERE q.queue_date = $1
		GROUP BY q.queue_name, q.hospital_id, q.current_turn, q.last_assigned_turn
		ORDER BY q.hospital_id, q.queue_name
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.QueueSummary
	for rows.Next() {
		summary := models.QueueSummary{Key: models.QueueKey{Date: day}}
		if err := rows.Scan(&summary.Key.QueueName, &summary.Key.HospitalID, &summary.CurrentTurn, &summary.LastAssignedTurn,
			&summary.Waiting, &summary.InConsult, &summary.Finished); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func lockQueue(ctx context.Context, tx pgx.Tx, key models.QueueKey, date time.Time) (models.Queue, bool, error) {
	q := models.Queue{Key: key}
	row := tx.QueryRow(ctx, `
		SELECT current_turn, last_assigned_turn, updated_at
		FROM queues
		WHERE queue_name = $1 AND hospital_id = $2 AND queue_date = $3
		FOR UPDATE
	`, key.QueueName, key.HospitalID, date)
	if err := row.Scan(&q.CurrentTurn, &q.LastAssignedTurn, &q.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Queue{}, false, nil
		}
		return models.Queue{}, false, err
	}
	return q, true, nil
}

// findActionRequest returns the ticket recorded for a request id. A request id
// already used on another queue is rejected with store.ErrRequestReused.
func findActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string, key models.QueueKey, date time.Time) (string, bool, error) {
	var ticketID sql.NullString
	var sameQueue bool
	row := tx.QueryRow(ctx, `
		SELECT ticket_id::text, (queue_name = $3 AND hospital_id = $4 AND queue_date = $5)
		FROM action_requests
		WHERE request_id = $1 AND action = $2
	`, requestID, action, key.QueueName, key.HospitalID, date)
	if err := row.Scan(&ticketID, &sameQueue); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	if !sameQueue {
		return "", false, store.ErrRequestReused
	}
	if !ticketID.Valid {
		return "", false, nil
	}
	return ticketID.String, true, nil
}

// insertActionRequest records a request id. The primary key only collides when
// the same id is being used on another queue, since callers hold the queue lock.
func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string, key models.QueueKey, date time.Time, ticketID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO action_requests (request_id, action, queue_name, hospital_id, queue_date, ticket_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, requestID, action, key.QueueName, key.HospitalID, date, nullIfEmpty(ticketID))
	if isUniqueViolation(err) {
		return store.ErrRequestReused
	}
	return err
}

func getTicketByID(ctx context.Context, tx pgx.Tx, ticketID string) (models.Ticket, error) {
	var ticket models.Ticket
	row := tx.QueryRow(ctx, `
		SELECT ticket_id, turn_number, patient_name, patient_status, check_in_time, updated_at
		FROM tickets
		WHERE ticket_id = $1
	`, ticketID)
	if err := row.Scan(&ticket.TicketID, &ticket.TurnNumber, &ticket.PatientName, &ticket.PatientStatus, &ticket.CheckInTime, &ticket.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

// insertQueueEvent stamps created_at with clock_timestamp() so rows become
// visible to the feed close to the order of their timestamps.
func insertQueueEvent(ctx context.Context, tx pgx.Tx, key models.QueueKey, date time.Time, eventType string, turn int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO queue_events (event_id, queue_name, hospital_id, queue_date, type, turn_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp())
	`, uuid.NewString(), key.QueueName, key.HospitalID, date, eventType, turn)
	return err
}
