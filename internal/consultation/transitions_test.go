package consultation

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func scheduledSession() *Session {
	return &Session{
		ID:            uuid.New(),
		ClinicID:      uuid.New(),
		DoctorID:      uuid.New(),
		PatientID:     uuid.New(),
		Modality:      ModalityVideo,
		Status:        StatusScheduled,
		ScheduledAt:   time.Now().Add(10 * time.Minute),
		MeetingRoomID: NewMeetingRoomID(),
	}
}

func TestStartTransition(t *testing.T) {
	s := scheduledSession()
	now := time.Now()

	effects, err := s.Start(now)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if s.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", s.Status)
	}
	if s.StartedAt == nil || !s.StartedAt.Equal(now) {
		t.Fatalf("expected started_at %v, got %v", now, s.StartedAt)
	}

	if len(effects) != 2 {
		t.Fatalf("expected 2 effects, got %d", len(effects))
	}
	if effects[0].Type != EffectMarkDoctorBusy || effects[1].Type != EffectNotifyStarted {
		t.Fatalf("unexpected effects: %v %v", effects[0].Type, effects[1].Type)
	}
	if effects[0].DoctorID != s.DoctorID {
		t.Fatal("effect should carry the session's doctor")
	}
}

func TestStartRejectsWrongState(t *testing.T) {
	for _, status := range []Status{StatusInProgress, StatusCompleted, StatusCancelled} {
		s := scheduledSession()
		s.Status = status
		if _, err := s.Start(time.Now()); !errors.Is(err, ErrNotScheduled) {
			t.Fatalf("status %s: expected ErrNotScheduled, got %v", status, err)
		}
	}
}

func TestEndTransition(t *testing.T) {
	s := scheduledSession()
	started := time.Now().Add(-32 * time.Minute)
	s.Status = StatusInProgress
	s.StartedAt = &started

	notes := "patient stable, follow up in two weeks"
	now := time.Now()

	effects, err := s.End(now, &notes)
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if s.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", s.Status)
	}
	if s.DurationMinutes == nil || *s.DurationMinutes != 32 {
		t.Fatalf("expected duration 32, got %v", s.DurationMinutes)
	}
	if s.Notes == nil || *s.Notes != notes {
		t.Fatalf("notes not stored: %v", s.Notes)
	}

	want := []EffectType{
		EffectCreateRecord,
		EffectUpdateAnalytics,
		EffectMarkDoctorAvailable,
		EffectNotifyCompleted,
	}
	if len(effects) != len(want) {
		t.Fatalf("expected %d effects, got %d", len(want), len(effects))
	}
	for i, w := range want {
		if effects[i].Type != w {
			t.Fatalf("effect %d: expected %s, got %s", i, w, effects[i].Type)
		}
	}
	if effects[1].DurationMinutes != 32 {
		t.Fatalf("analytics effect should carry the duration, got %d", effects[1].DurationMinutes)
	}
}

func TestEndRejectsWrongState(t *testing.T) {
	s := scheduledSession()
	if _, err := s.End(time.Now(), nil); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress, got %v", err)
	}
}

func TestEndWithoutStartTime(t *testing.T) {
	s := scheduledSession()
	s.Status = StatusInProgress

	if _, err := s.End(time.Now(), nil); !errors.Is(err, ErrMissingStartTime) {
		t.Fatalf("expected ErrMissingStartTime, got %v", err)
	}
}

func TestCancelFromScheduled(t *testing.T) {
	s := scheduledSession()

	effects, err := s.Cancel(time.Now(), "patient request")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if s.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", s.Status)
	}
	if s.DurationMinutes != nil {
		t.Fatal("a cancelled consultation must not have a duration")
	}

	if len(effects) != 2 {
		t.Fatalf("expected 2 effects, got %d", len(effects))
	}
	for _, e := range effects {
		if e.Type == EffectCreateRecord {
			t.Fatal("cancel must not create a clinical record")
		}
	}
	if effects[0].Type != EffectMarkDoctorAvailable {
		t.Fatalf("expected doctor released first, got %s", effects[0].Type)
	}
	if effects[1].Type != EffectNotifyCancelled || effects[1].Reason != "patient request" {
		t.Fatalf("cancellation notice should carry the reason: %+v", effects[1])
	}
}

func TestCancelFromInProgress(t *testing.T) {
	s := scheduledSession()
	started := time.Now().Add(-5 * time.Minute)
	s.Status = StatusInProgress
	s.StartedAt = &started

	if _, err := s.Cancel(time.Now(), "connection lost"); err != nil {
		t.Fatalf("cancel from in_progress failed: %v", err)
	}
	if s.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", s.Status)
	}
}

func TestCancelRejectsFinishedStates(t *testing.T) {
	for _, status := range []Status{StatusCompleted, StatusCancelled} {
		s := scheduledSession()
		s.Status = status
		if _, err := s.Cancel(time.Now(), "too late"); !errors.Is(err, ErrAlreadyFinished) {
			t.Fatalf("status %s: expected ErrAlreadyFinished, got %v", status, err)
		}
	}
}
