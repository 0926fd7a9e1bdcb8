package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DailyMetrics aggregates completed consultations for one clinic and day.
// AverageDuration is derived from the two totals, never stored.
type DailyMetrics struct {
	ClinicID             uuid.UUID `json:"clinic_id"`
	Day                  time.Time `json:"day"`
	TotalConsultations   int       `json:"total_consultations"`
	TotalDurationMinutes int       `json:"total_duration_minutes"`
	AverageDuration      float64   `json:"average_duration"`
}

func (m *DailyMetrics) computeAverage() {
	if m.TotalConsultations > 0 {
		m.AverageDuration = float64(m.TotalDurationMinutes) / float64(m.TotalConsultations)
	}
}

type Repository interface {
	// RecordConsultationCompleted bumps the day's counters for the clinic.
	RecordConsultationCompleted(ctx context.Context, clinicID uuid.UUID, day time.Time, durationMinutes int) error
	GetDaily(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]DailyMetrics, error)
}

type dayKey struct {
	clinicID uuid.UUID
	day      string
}

// MemoryRepository backs tests and fixtures.
type MemoryRepository struct {
	mu      sync.Mutex
	metrics map[dayKey]*DailyMetrics
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{metrics: make(map[dayKey]*DailyMetrics)}
}

func (r *MemoryRepository) RecordConsultationCompleted(_ context.Context, clinicID uuid.UUID, day time.Time, durationMinutes int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	truncated := day.UTC().Truncate(24 * time.Hour)
	key := dayKey{clinicID: clinicID, day: truncated.Format("2006-01-02")}
	m, ok := r.metrics[key]
	if !ok {
		m = &DailyMetrics{ClinicID: clinicID, Day: truncated}
		r.metrics[key] = m
	}
	m.TotalConsultations++
	m.TotalDurationMinutes += durationMinutes
	return nil
}

func (r *MemoryRepository) GetDaily(_ context.Context, clinicID uuid.UUID, from, to time.Time) ([]DailyMetrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []DailyMetrics
	for _, m := range r.metrics {
		if m.ClinicID != clinicID {
			continue
		}
		if m.Day.Before(from) || m.Day.After(to) {
			continue
		}
		out := *m
		out.computeAverage()
		result = append(result, out)
	}
	return result, nil
}
