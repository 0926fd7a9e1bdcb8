package clinicalrecord

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record

	err := row.Scan(
		&rec.ID,
		&rec.ClinicID,
		&rec.DoctorID,
		&rec.PatientID,
		&rec.ConsultationID,
		&rec.RecordType,
		&rec.Status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return &rec, nil
}

func (r *PgRepository) CreateDraft(ctx context.Context, rec Record) (*Record, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	// ON CONFLICT on the consultation reference keeps effect replays from
	// producing duplicate drafts.
	row := r.pool.QueryRow(ctx, `
		INSERT INTO electronic_medical_records (
			id, clinic_id, doctor_id, patient_id, consultation_id,
			record_type, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 'draft', now(), now())
		ON CONFLICT (consultation_id) DO UPDATE SET updated_at = electronic_medical_records.updated_at
		RETURNING id, clinic_id, doctor_id, patient_id, consultation_id,
		          record_type, status, created_at, updated_at
	`, rec.ID, rec.ClinicID, rec.DoctorID, rec.PatientID, rec.ConsultationID, rec.RecordType)

	return scanRecord(row)
}

func (r *PgRepository) GetByConsultationID(ctx context.Context, consultationID uuid.UUID) (*Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, doctor_id, patient_id, consultation_id,
		       record_type, status, created_at, updated_at
		FROM electronic_medical_records
		WHERE consultation_id = $1
	`, consultationID)
	return scanRecord(row)
}
