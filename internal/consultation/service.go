package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/clinicdesk/online-consultation-service/internal/redis"
)

const (
	EventConsultationCreated   = "CONSULTATION_CREATED"
	EventConsultationStarted   = "CONSULTATION_STARTED"
	EventConsultationCompleted = "CONSULTATION_COMPLETED"
	EventConsultationCancelled = "CONSULTATION_CANCELLED"
	EventVitalSignsRecorded    = "VITAL_SIGNS_RECORDED"
	EventPrescriptionAdded     = "PRESCRIPTION_ADDED"
	EventFollowUpAdded         = "FOLLOW_UP_ADDED"
	EventTechnicalIssueLogged  = "TECHNICAL_ISSUE_LOGGED"
)

// meetingRoomAttempts bounds retries when a generated room token collides
// with an existing session.
const meetingRoomAttempts = 5

type Service struct {
	repo   Repository
	locker redisclient.Locker
	queue  EffectQueue
}

func NewService(repo Repository, locker redisclient.Locker, queue EffectQueue) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		queue:  queue,
	}
}

type CreateSessionParams struct {
	ClinicID         uuid.UUID
	DoctorID         uuid.UUID
	PatientID        uuid.UUID
	BookingID        *uuid.UUID
	Modality         Modality
	ScheduledAt      time.Time
	RecordingConsent bool
}

// CreateSession converts a booking or direct request into a scheduled
// session. Bad input is rejected here; a partially valid session is never
// stored.
func (s *Service) CreateSession(ctx context.Context, p CreateSessionParams) (*Session, error) {
	if !p.Modality.Valid() {
		return nil, &ValidationError{Field: "modality", Reason: "must be one of video, audio, chat"}
	}
	if p.ScheduledAt.IsZero() {
		return nil, &ValidationError{Field: "scheduled_at", Reason: "is required"}
	}

	if _, err := s.repo.GetClinicByID(ctx, p.ClinicID); err != nil {
		if errors.Is(err, ErrClinicNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load clinic: %w", err)
	}

	doctor, err := s.repo.GetDoctorByID(ctx, p.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if doctor.ClinicID != p.ClinicID {
		return nil, ErrDoctorNotFound
	}

	if _, err := s.repo.GetPatientByID(ctx, p.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	now := time.Now()
	session := &Session{
		ID:               uuid.New(),
		ClinicID:         p.ClinicID,
		DoctorID:         p.DoctorID,
		PatientID:        p.PatientID,
		BookingID:        p.BookingID,
		Modality:         p.Modality,
		Status:           StatusScheduled,
		ScheduledAt:      p.ScheduledAt,
		RecordingConsent: p.RecordingConsent,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var created *Session
	for attempt := 0; attempt < meetingRoomAttempts; attempt++ {
		session.MeetingRoomID = NewMeetingRoomID()
		created, err = s.repo.CreateSession(ctx, session)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrMeetingRoomTaken) {
			return nil, fmt.Errorf("create consultation: %w", err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create consultation: %w", err)
	}

	s.logEvent(ctx, created.ID, EventConsultationCreated, map[string]any{
		"clinic_id":    created.ClinicID.String(),
		"doctor_id":    created.DoctorID.String(),
		"patient_id":   created.PatientID.String(),
		"modality":     created.Modality,
		"scheduled_at": created.ScheduledAt,
	})

	return created, nil
}

// Start moves a session to in_progress. The persist step is a conditional
// update guarded by the scheduled status, so of two concurrent callers
// exactly one commits; the loser observes the wrong-state failure and no
// effect fires twice.
func (s *Service) Start(ctx context.Context, clinicID, id uuid.UUID) (*Session, error) {
	session, err := s.repo.GetSessionByID(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}

	effects, err := session.Start(time.Now())
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateSessionStatus(ctx, session.ID, StatusScheduled, StatusInProgress, StatusUpdate{
		StartedAt: session.StartedAt,
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			// Raced: another caller moved the session first.
			return nil, ErrNotScheduled
		}
		return nil, fmt.Errorf("start consultation: %w", err)
	}

	s.dispatch(ctx, updated.ID, effects)
	s.logEvent(ctx, updated.ID, EventConsultationStarted, map[string]any{
		"started_at": updated.StartedAt,
	})

	return updated, nil
}

// End completes an in-progress session. Side effects (draft clinical record,
// analytics update, doctor availability, notification) are enqueued after the
// transition commits and never roll it back.
func (s *Service) End(ctx context.Context, clinicID, id uuid.UUID, notes *string) (*Session, error) {
	session, err := s.repo.GetSessionByID(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}

	effects, err := session.End(time.Now(), notes)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateSessionStatus(ctx, session.ID, StatusInProgress, StatusCompleted, StatusUpdate{
		EndedAt:         session.EndedAt,
		DurationMinutes: session.DurationMinutes,
		Notes:           session.Notes,
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrNotInProgress
		}
		return nil, fmt.Errorf("end consultation: %w", err)
	}

	s.dispatch(ctx, updated.ID, effects)
	s.logEvent(ctx, updated.ID, EventConsultationCompleted, map[string]any{
		"ended_at":         updated.EndedAt,
		"duration_minutes": updated.DurationMinutes,
	})

	return updated, nil
}

// Cancel aborts a scheduled or in-progress session. No clinical record is
// created and the doctor returns to the available pool; clinical entries
// made before cancellation are retained for audit.
func (s *Service) Cancel(ctx context.Context, clinicID, id uuid.UUID, reason string) (*Session, error) {
	session, err := s.repo.GetSessionByID(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}

	from := session.Status
	effects, err := session.Cancel(time.Now(), reason)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateSessionStatus(ctx, session.ID, from, StatusCancelled, StatusUpdate{
		EndedAt: session.EndedAt,
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrAlreadyFinished
		}
		return nil, fmt.Errorf("cancel consultation: %w", err)
	}

	s.dispatch(ctx, updated.ID, effects)
	s.logEvent(ctx, updated.ID, EventConsultationCancelled, map[string]any{
		"reason":   reason,
		"ended_at": updated.EndedAt,
	})

	return updated, nil
}

// RecordVitalSigns appends a timestamped reading. Appends on one session are
// serialized through the per-session lock.
func (s *Service) RecordVitalSigns(ctx context.Context, clinicID, id uuid.UUID, reading VitalSignReading) (*Session, error) {
	if reading.RecordedAt.IsZero() {
		reading.RecordedAt = time.Now()
	}

	var updated *Session
	err := s.withAppendLock(ctx, clinicID, id, func(lockCtx context.Context) error {
		var err error
		updated, err = s.repo.AppendVitalSigns(lockCtx, id, reading)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventVitalSignsRecorded, map[string]any{
		"recorded_at": reading.RecordedAt,
	})
	return updated, nil
}

func (s *Service) AddPrescription(ctx context.Context, clinicID, id uuid.UUID, p Prescription) (*Session, error) {
	if p.MedicationName == "" {
		return nil, &ValidationError{Field: "medication_name", Reason: "is required"}
	}
	if p.PrescribedAt.IsZero() {
		p.PrescribedAt = time.Now()
	}

	var updated *Session
	err := s.withAppendLock(ctx, clinicID, id, func(lockCtx context.Context) error {
		var err error
		updated, err = s.repo.AppendPrescription(lockCtx, id, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventPrescriptionAdded, map[string]any{
		"medication_name": p.MedicationName,
	})
	return updated, nil
}

func (s *Service) AddFollowUpInstruction(ctx context.Context, clinicID, id uuid.UUID, instruction string) (*Session, error) {
	if instruction == "" {
		return nil, &ValidationError{Field: "instruction", Reason: "is required"}
	}

	entry := FollowUpInstruction{Instruction: instruction, AddedAt: time.Now()}

	var updated *Session
	err := s.withAppendLock(ctx, clinicID, id, func(lockCtx context.Context) error {
		var err error
		updated, err = s.repo.AppendFollowUp(lockCtx, id, entry)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventFollowUpAdded, nil)
	return updated, nil
}

func (s *Service) ReportTechnicalIssue(ctx context.Context, clinicID, id uuid.UUID, issue TechnicalIssue) (*Session, error) {
	if !issue.Severity.Valid() {
		return nil, &ValidationError{Field: "severity", Reason: "must be one of minor, moderate, major"}
	}
	if issue.ReportedAt.IsZero() {
		issue.ReportedAt = time.Now()
	}

	var updated *Session
	err := s.withAppendLock(ctx, clinicID, id, func(lockCtx context.Context) error {
		var err error
		updated, err = s.repo.AppendTechnicalIssue(lockCtx, id, issue)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventTechnicalIssueLogged, map[string]any{
		"severity": issue.Severity,
	})
	return updated, nil
}

// withAppendLock verifies the session exists in the clinic, then runs the
// append inside the per-session lock. The store re-checks the cancelled
// guard, so a cancel racing the lock acquisition still wins.
func (s *Service) withAppendLock(ctx context.Context, clinicID, id uuid.UUID, fn func(ctx context.Context) error) error {
	session, err := s.repo.GetSessionByID(ctx, clinicID, id)
	if err != nil {
		return err
	}
	if session.Status == StatusCancelled {
		return ErrCancelled
	}
	if err := s.locker.WithSessionLock(ctx, id, fn); err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return ErrSessionBusy
		}
		return err
	}
	return nil
}

func (s *Service) GetSession(ctx context.Context, clinicID, id uuid.UUID) (*Session, error) {
	session, err := s.repo.GetSessionByID(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) ListSessions(ctx context.Context, clinicID uuid.UUID, f ListFilter) ([]Session, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	sessions, err := s.repo.ListSessions(ctx, clinicID, f)
	if err != nil {
		return nil, fmt.Errorf("list consultations: %w", err)
	}
	return sessions, nil
}

// dispatch hands the transition's effects to the queue. Failures are logged
// and swallowed: a slow or absent downstream never fails the transition.
func (s *Service) dispatch(ctx context.Context, sessionID uuid.UUID, effects []Effect) {
	if len(effects) == 0 {
		return
	}
	env := EffectEnvelope{
		SessionID:  sessionID,
		Effects:    effects,
		EnqueuedAt: time.Now(),
	}
	if err := s.queue.Enqueue(ctx, env); err != nil {
		log.Printf("failed to enqueue effects for consultation %s: %v", sessionID, err)
	}
}

func (s *Service) logEvent(ctx context.Context, sessionID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	sID := sessionID

	ev := EventLog{
		EventType: eventType,
		SessionID: &sID,
		Payload:   data,
		CreatedAt: time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for consultation %s: %v", eventType, sessionID, err)
	}
}
