package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"hms/internal/models"
	"hms/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const doctorColumns = `
	doctor_id, user_id, hospital_id, email, first_name, last_name,
	cedula_profesional, especialidad, telefono_de_contacto, created_at, updated_at`

// CreateDoctor inserts the login user and the doctor profile in one
// transaction. A taken email maps to store.ErrEmailExists.
func (s *Store) CreateDoctor(ctx context.Context, input store.CreateDoctorInput) (models.Doctor, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Doctor{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	email := normalizeEmail(input.Email)
	userID, err := insertUser(ctx, tx, input.HospitalID, email, input.PasswordHash, models.RoleDoctor, input.CreatedBy, now)
	if err != nil {
		return models.Doctor{}, err
	}

	doctor := models.Doctor{
		DoctorID:           uuid.NewString(),
		UserID:             userID,
		HospitalID:         input.HospitalID,
		Email:              email,
		FirstName:          input.FirstName,
		LastName:           input.LastName,
		FullName:           models.FullName(input.FirstName, input.LastName),
		CedulaProfesional:  input.CedulaProfesional,
		Especialidad:       input.Especialidad,
		TelefonoDeContacto: input.TelefonoDeContacto,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO doctors (doctor_id, user_id, hospital_id, email, first_name, last_name,
			cedula_profesional, especialidad, telefono_de_contacto, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, doctor.DoctorID, doctor.UserID, doctor.HospitalID, doctor.Email, doctor.FirstName, doctor.LastName,
		doctor.CedulaProfesional, doctor.Especialidad, doctor.TelefonoDeContacto, now); err != nil {
		return models.Doctor{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Doctor{}, err
	}
	return doctor, nil
}

func (s *Store) CreateMonitor(ctx context.Context, input store.CreateMonitorInput) (models.Monitor, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Monitor{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	email := normalizeEmail(input.Email)
	userID, err := insertUser(ctx, tx, input.HospitalID, email, input.PasswordHash, models.RoleMonitor, input.CreatedBy, now)
	if err != nil {
		return models.Monitor{}, err
	}

	monitor := models.Monitor{
		MonitorID:  uuid.NewString(),
		UserID:     userID,
		HospitalID: input.HospitalID,
		Email:      email,
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		FullName:   models.FullName(input.FirstName, input.LastName),
		Phone:      input.Phone,
		Cedula:     input.Cedula,
		CreatedAt:  now,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO monitors (monitor_id, user_id, hospital_id, email, first_name, last_name, phone, cedula, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, monitor.MonitorID, monitor.UserID, monitor.HospitalID, monitor.Email, monitor.FirstName, monitor.LastName,
		monitor.Phone, monitor.Cedula, now); err != nil {
		return models.Monitor{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Monitor{}, err
	}
	return monitor, nil
}

func (s *Store) ListDoctors(ctx context.Context, hospitalID string) ([]models.Doctor, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+doctorColumns+`
		FROM doctors
		WHERE hospital_id = $1
		ORDER BY last_name ASC, first_name ASC
	`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doctors []models.Doctor
	for rows.Next() {
		doctor, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		doctors = append(doctors, doctor)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return doctors, nil
}

func (s *Store) GetDoctor(ctx context.Context, doctorID string) (models.Doctor, error) {
	if _, err := uuid.Parse(doctorID); err != nil {
		return models.Doctor{}, store.ErrDoctorNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE doctor_id = $1`, doctorID)
	doctor, err := scanDoctor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Doctor{}, store.ErrDoctorNotFound
		}
		return models.Doctor{}, err
	}
	return doctor, nil
}

// GetDoctorByUserID resolves the profile behind a login user id.
func (s *Store) GetDoctorByUserID(ctx context.Context, userID string) (models.Doctor, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return models.Doctor{}, store.ErrDoctorNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE user_id = $1`, userID)
	doctor, err := scanDoctor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Doctor{}, store.ErrDoctorNotFound
		}
		return models.Doctor{}, err
	}
	return doctor, nil
}

func (s *Store) UpdateDoctor(ctx context.Context, input store.UpdateDoctorInput) (models.Doctor, error) {
	if _, err := uuid.Parse(input.DoctorID); err != nil {
		return models.Doctor{}, store.ErrDoctorNotFound
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE doctors SET
			first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			cedula_profesional = COALESCE($4, cedula_profesional),
			especialidad = COALESCE($5, especialidad),
			telefono_de_contacto = COALESCE($6, telefono_de_contacto),
			updated_at = $7
		WHERE doctor_id = $1
		RETURNING `+doctorColumns,
		input.DoctorID, input.FirstName, input.LastName, input.CedulaProfesional, input.Especialidad,
		input.TelefonoDeContacto, time.Now().UTC())
	doctor, err := scanDoctor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Doctor{}, store.ErrDoctorNotFound
		}
		return models.Doctor{}, err
	}
	return doctor, nil
}

// DeleteDoctor removes the login user; the profile row cascades.
func (s *Store) DeleteDoctor(ctx context.Context, doctorID string) error {
	if _, err := uuid.Parse(doctorID); err != nil {
		return store.ErrDoctorNotFound
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM users
		WHERE user_id = (SELECT user_id FROM doctors WHERE doctor_id = $1)
	`, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDoctorNotFound
	}
	return nil
}

func insertUser(ctx context.Context, tx pgx.Tx, hospitalID, email, passwordHash, role, createdBy string, createdAt time.Time) (string, error) {
	userID := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO users (user_id, hospital_id, email, password_hash, role, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, userID, hospitalID, email, passwordHash, role, nullIfEmpty(createdBy), createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return "", store.ErrEmailExists
		}
		return "", err
	}
	return userID, nil
}

func scanDoctor(row pgx.Row) (models.Doctor, error) {
	var doctor models.Doctor
	if err := row.Scan(&doctor.DoctorID, &doctor.UserID, &doctor.HospitalID, &doctor.Email, &doctor.FirstName, &doctor.LastName,
		&doctor.CedulaProfesional, &doctor.Especialidad, &doctor.TelefonoDeContacto, &doctor.CreatedAt, &doctor.UpdatedAt); err != nil {
		return models.Doctor{}, err
	}
	doctor.FullName = models.FullName(doctor.FirstName, doctor.LastName)
	return doctor, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
