package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) RecordConsultationCompleted(ctx context.Context, clinicID uuid.UUID, day time.Time, durationMinutes int) error {
	truncated := day.UTC().Truncate(24 * time.Hour)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO daily_consultation_metrics (clinic_id, day, total_consultations, total_duration_minutes)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (clinic_id, day) DO UPDATE
		SET total_consultations = daily_consultation_metrics.total_consultations + 1,
		    total_duration_minutes = daily_consultation_metrics.total_duration_minutes + EXCLUDED.total_duration_minutes
	`, clinicID, truncated, durationMinutes)
	if err != nil {
		return fmt.Errorf("record consultation completed: %w", err)
	}
	return nil
}

func (r *PgRepository) GetDaily(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]DailyMetrics, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT clinic_id, day, total_consultations, total_duration_minutes
		FROM daily_consultation_metrics
		WHERE clinic_id = $1
		  AND day BETWEEN $2 AND $3
		ORDER BY day
	`, clinicID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DailyMetrics
	for rows.Next() {
		var m DailyMetrics
		if err := rows.Scan(&m.ClinicID, &m.Day, &m.TotalConsultations, &m.TotalDurationMinutes); err != nil {
			return nil, err
		}
		m.computeAverage()
		result = append(result, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
