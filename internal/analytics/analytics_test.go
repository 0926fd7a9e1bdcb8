package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDailyMetricsAccumulate(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	clinicID := uuid.New()
	day := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)

	for _, dur := range []int{30, 20, 25} {
		if err := repo.RecordConsultationCompleted(ctx, clinicID, day, dur); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	daily, err := repo.GetDaily(ctx, clinicID, day, day)
	if err != nil {
		t.Fatalf("get daily: %v", err)
	}
	if len(daily) != 1 {
		t.Fatalf("expected 1 day, got %d", len(daily))
	}
	m := daily[0]
	if m.TotalConsultations != 3 || m.TotalDurationMinutes != 75 {
		t.Fatalf("unexpected totals: %+v", m)
	}
	if m.AverageDuration != 25 {
		t.Fatalf("expected average 25, got %f", m.AverageDuration)
	}
}

func TestGetDailyFiltersRange(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	clinicID := uuid.New()

	inRange := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	outOfRange := inRange.AddDate(0, 0, -10)

	if err := repo.RecordConsultationCompleted(ctx, clinicID, inRange, 15); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := repo.RecordConsultationCompleted(ctx, clinicID, outOfRange, 15); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := repo.RecordConsultationCompleted(ctx, uuid.New(), inRange, 15); err != nil {
		t.Fatalf("record: %v", err)
	}

	daily, err := repo.GetDaily(ctx, clinicID, inRange.AddDate(0, 0, -1), inRange)
	if err != nil {
		t.Fatalf("get daily: %v", err)
	}
	if len(daily) != 1 || !daily[0].Day.Equal(inRange) {
		t.Fatalf("range filter failed: %+v", daily)
	}
}
