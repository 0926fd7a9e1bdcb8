package consultation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotScheduled    = errors.New("cannot start: not scheduled")
	ErrNotInProgress   = errors.New("cannot end: not in progress")
	ErrAlreadyFinished = errors.New("cannot cancel: consultation already finished")
	ErrCancelled       = errors.New("consultation is cancelled")
	ErrSessionBusy     = errors.New("consultation is being updated")

	// ErrMissingStartTime guards end() against a session that claims to be
	// in progress without a start timestamp. Unreachable through the state
	// machine; treated as a programming error, not a zero duration.
	ErrMissingStartTime = errors.New("consultation in progress has no start time")
)

type EffectType string

const (
	EffectMarkDoctorBusy      EffectType = "doctor.mark_busy"
	EffectMarkDoctorAvailable EffectType = "doctor.mark_available"
	EffectCreateRecord        EffectType = "clinical_record.create_draft"
	EffectUpdateAnalytics     EffectType = "analytics.consultation_completed"
	EffectNotifyStarted       EffectType = "notify.consultation_started"
	EffectNotifyCompleted     EffectType = "notify.consultation_completed"
	EffectNotifyCancelled     EffectType = "notify.consultation_cancelled"
)

// Effect is one side effect a transition asks the dispatcher to perform.
// Effects are fire-and-forget relative to the transition: the transition
// commits first, a worker performs them later.
type Effect struct {
	Type            EffectType `json:"type"`
	SessionID       uuid.UUID  `json:"session_id"`
	ClinicID        uuid.UUID  `json:"clinic_id"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	Reason          string     `json:"reason,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	OccurredAt      time.Time  `json:"occurred_at"`
}

// EffectEnvelope carries the ordered effects of a single transition. The
// dispatcher runs them in order, which is what guarantees the draft clinical
// record exists before the analytics update references it.
type EffectEnvelope struct {
	SessionID  uuid.UUID `json:"session_id"`
	Effects    []Effect  `json:"effects"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// EffectQueue hands a transition's envelope to an external worker.
type EffectQueue interface {
	Enqueue(ctx context.Context, env EffectEnvelope) error
}

func (s *Session) effect(t EffectType, now time.Time) Effect {
	return Effect{
		Type:       t,
		SessionID:  s.ID,
		ClinicID:   s.ClinicID,
		DoctorID:   s.DoctorID,
		PatientID:  s.PatientID,
		OccurredAt: now,
	}
}

// Start moves a scheduled session to in_progress. It mutates the session in
// place and returns the effects to dispatch; callers persist the new state
// with a conditional update before dispatching.
func (s *Session) Start(now time.Time) ([]Effect, error) {
	if s.Status != StatusScheduled {
		return nil, ErrNotScheduled
	}
	started := now
	s.Status = StatusInProgress
	s.StartedAt = &started
	s.UpdatedAt = now

	return []Effect{
		s.effect(EffectMarkDoctorBusy, now),
		s.effect(EffectNotifyStarted, now),
	}, nil
}

// End completes an in-progress session, computing its duration and storing
// the consultation notes if given. The clinical-record effect precedes the
// analytics effect.
func (s *Session) End(now time.Time, notes *string) ([]Effect, error) {
	if s.Status != StatusInProgress {
		return nil, ErrNotInProgress
	}
	if s.StartedAt == nil {
		return nil, ErrMissingStartTime
	}
	ended := now
	s.Status = StatusCompleted
	s.EndedAt = &ended
	dur := s.Duration()
	s.DurationMinutes = &dur
	if notes != nil {
		s.Notes = notes
	}
	s.UpdatedAt = now

	completed := s.effect(EffectNotifyCompleted, now)
	record := s.effect(EffectCreateRecord, now)
	analytics := s.effect(EffectUpdateAnalytics, now)
	analytics.DurationMinutes = dur

	return []Effect{
		record,
		analytics,
		s.effect(EffectMarkDoctorAvailable, now),
		completed,
	}, nil
}

// Cancel aborts a scheduled or in-progress session. The doctor is returned
// to the available pool and no clinical record is created; duration stays
// absent. Clinical entries made before cancellation are retained.
func (s *Session) Cancel(now time.Time, reason string) ([]Effect, error) {
	if s.Status == StatusCompleted || s.Status == StatusCancelled {
		return nil, ErrAlreadyFinished
	}
	ended := now
	s.Status = StatusCancelled
	s.EndedAt = &ended
	s.UpdatedAt = now

	notify := s.effect(EffectNotifyCancelled, now)
	notify.Reason = reason

	return []Effect{
		s.effect(EffectMarkDoctorAvailable, now),
		notify,
	}, nil
}
