package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const sessionColumns = `
	id, clinic_id, doctor_id, patient_id, booking_id, modality, status,
	scheduled_at, started_at, ended_at, duration_minutes, meeting_room_id,
	notes, vital_signs, prescriptions, follow_ups, technical_issues,
	recording_url, recording_consent, created_at, updated_at
`

// Helpers

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}

	return &c, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.ClinicID,
		&d.Name,
		&specialty,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var vitals, prescriptions, followUps, issues []byte

	err := row.Scan(
		&s.ID,
		&s.ClinicID,
		&s.DoctorID,
		&s.PatientID,
		&s.BookingID,
		&s.Modality,
		&s.Status,
		&s.ScheduledAt,
		&s.StartedAt,
		&s.EndedAt,
		&s.DurationMinutes,
		&s.MeetingRoomID,
		&s.Notes,
		&vitals,
		&prescriptions,
		&followUps,
		&issues,
		&s.RecordingURL,
		&s.RecordingConsent,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if err := unmarshalList(vitals, &s.VitalSigns); err != nil {
		return nil, fmt.Errorf("decode vital_signs: %w", err)
	}
	if err := unmarshalList(prescriptions, &s.Prescriptions); err != nil {
		return nil, fmt.Errorf("decode prescriptions: %w", err)
	}
	if err := unmarshalList(followUps, &s.FollowUps); err != nil {
		return nil, fmt.Errorf("decode follow_ups: %w", err)
	}
	if err := unmarshalList(issues, &s.TechnicalIssues); err != nil {
		return nil, fmt.Errorf("decode technical_issues: %w", err)
	}

	return &s, nil
}

func unmarshalList[T any](data []byte, dst *[]T) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

// Interface methods

func (r *PgRepository) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM clinics
		WHERE id = $1
	`, id)
	return scanClinic(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, name, specialty, status, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) CreateSession(ctx context.Context, s *Session) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO online_consultations (
			id, clinic_id, doctor_id, patient_id, booking_id, modality, status,
			scheduled_at, meeting_room_id, recording_consent,
			vital_signs, prescriptions, follow_ups, technical_issues,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 'scheduled', $7, $8, $9,
		        '[]'::jsonb, '[]'::jsonb, '[]'::jsonb, '[]'::jsonb, now(), now())
		RETURNING `+sessionColumns, s.ID, s.ClinicID, s.DoctorID, s.PatientID, s.BookingID,
		s.Modality, s.ScheduledAt, s.MeetingRoomID, s.RecordingConsent)

	created, err := scanSession(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrMeetingRoomTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetSessionByID(ctx context.Context, clinicID, id uuid.UUID) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM online_consultations
		WHERE id = $1 AND clinic_id = $2
	`, id, clinicID)
	return scanSession(row)
}

func (r *PgRepository) ListSessions(ctx context.Context, clinicID uuid.UUID, f ListFilter) ([]Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM online_consultations
		WHERE clinic_id = $1
	`
	args := []any{clinicID}

	if f.Status != nil {
		args = append(args, *f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		query += fmt.Sprintf(" AND doctor_id = $%d", len(args))
	}

	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY scheduled_at DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateSessionStatus(ctx context.Context, id uuid.UUID, from, to Status, upd StatusUpdate) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE online_consultations
		SET status = $2,
		    started_at = COALESCE($4, started_at),
		    ended_at = COALESCE($5, ended_at),
		    duration_minutes = COALESCE($6, duration_minutes),
		    notes = COALESCE($7, notes),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+sessionColumns, id, to, from, upd.StartedAt, upd.EndedAt, upd.DurationMinutes, upd.Notes)

	return scanSession(row)
}

func (r *PgRepository) AppendVitalSigns(ctx context.Context, id uuid.UUID, reading VitalSignReading) (*Session, error) {
	return r.appendEntry(ctx, id, "vital_signs", reading)
}

func (r *PgRepository) AppendPrescription(ctx context.Context, id uuid.UUID, p Prescription) (*Session, error) {
	return r.appendEntry(ctx, id, "prescriptions", p)
}

func (r *PgRepository) AppendFollowUp(ctx context.Context, id uuid.UUID, f FollowUpInstruction) (*Session, error) {
	return r.appendEntry(ctx, id, "follow_ups", f)
}

func (r *PgRepository) AppendTechnicalIssue(ctx context.Context, id uuid.UUID, issue TechnicalIssue) (*Session, error) {
	return r.appendEntry(ctx, id, "technical_issues", issue)
}

// appendEntry pushes one entry onto a jsonb list column. The cancelled guard
// lives in the statement itself so a racing cancel always wins; the column
// name comes from the fixed callers above, never from request input.
func (r *PgRepository) appendEntry(ctx context.Context, id uuid.UUID, column string, entry any) (*Session, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode %s entry: %w", column, err)
	}

	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE online_consultations
		SET %s = %s || jsonb_build_array($2::jsonb),
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'cancelled'
		RETURNING `+sessionColumns, column, column), id, data)

	updated, err := scanSession(row)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, r.appendMissReason(ctx, id)
		}
		return nil, err
	}
	return updated, nil
}

// appendMissReason distinguishes "no such session" from "session cancelled"
// after a guarded append matched no row.
func (r *PgRepository) appendMissReason(ctx context.Context, id uuid.UUID) error {
	var status Status
	err := r.pool.QueryRow(ctx, `
		SELECT status FROM online_consultations WHERE id = $1
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		return err
	}
	if status == StatusCancelled {
		return ErrCancelled
	}
	return ErrSessionNotFound
}

func (r *PgRepository) UpdateDoctorStatus(ctx context.Context, doctorID uuid.UUID, status DoctorStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
	`, doctorID, status)
	if err != nil {
		return fmt.Errorf("update doctor status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, consultation_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.SessionID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
