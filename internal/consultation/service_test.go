package consultation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/clinicdesk/online-consultation-service/internal/redis"
)

// passthroughLocker runs the callback directly; lock semantics are covered
// by the store's own guards in these tests.
type passthroughLocker struct{}

func (passthroughLocker) WithSessionLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// contendedLocker simulates another request holding the session lock.
type contendedLocker struct{}

func (contendedLocker) WithSessionLock(context.Context, uuid.UUID, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// captureQueue records every enqueued envelope.
type captureQueue struct {
	mu        sync.Mutex
	envelopes []EffectEnvelope
	fail      bool
}

func (q *captureQueue) Enqueue(_ context.Context, env EffectEnvelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return errors.New("queue unavailable")
	}
	q.envelopes = append(q.envelopes, env)
	return nil
}

func (q *captureQueue) all() []EffectEnvelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]EffectEnvelope(nil), q.envelopes...)
}

type serviceFixture struct {
	svc     *Service
	repo    *MemoryRepository
	queue   *captureQueue
	clinic  Clinic
	doctor  Doctor
	patient Patient
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	repo := NewMemoryRepository()
	queue := &captureQueue{}

	clinic := Clinic{ID: uuid.New(), Name: "Sakura Clinic"}
	doctor := Doctor{ID: uuid.New(), ClinicID: clinic.ID, Name: "Dr. Tanaka", Status: DoctorActive}
	patient := Patient{ID: uuid.New(), Name: "Sato Yuki"}

	repo.PutClinic(clinic)
	repo.PutDoctor(doctor)
	repo.PutPatient(patient)

	return &serviceFixture{
		svc:     NewService(repo, passthroughLocker{}, queue),
		repo:    repo,
		queue:   queue,
		clinic:  clinic,
		doctor:  doctor,
		patient: patient,
	}
}

func (f *serviceFixture) createScheduled(t *testing.T) *Session {
	t.Helper()
	session, err := f.svc.CreateSession(context.Background(), CreateSessionParams{
		ClinicID:    f.clinic.ID,
		DoctorID:    f.doctor.ID,
		PatientID:   f.patient.ID,
		Modality:    ModalityVideo,
		ScheduledAt: time.Now().Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func TestCreateSessionValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateSession(ctx, CreateSessionParams{
		ClinicID:    f.clinic.ID,
		DoctorID:    f.doctor.ID,
		PatientID:   f.patient.ID,
		Modality:    Modality("telepathy"),
		ScheduledAt: time.Now(),
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "modality" {
		t.Fatalf("expected modality validation error, got %v", err)
	}

	_, err = f.svc.CreateSession(ctx, CreateSessionParams{
		ClinicID:  f.clinic.ID,
		DoctorID:  f.doctor.ID,
		PatientID: f.patient.ID,
		Modality:  ModalityChat,
	})
	if !errors.As(err, &verr) || verr.Field != "scheduled_at" {
		t.Fatalf("expected scheduled_at validation error, got %v", err)
	}

	_, err = f.svc.CreateSession(ctx, CreateSessionParams{
		ClinicID:    f.clinic.ID,
		DoctorID:    uuid.New(),
		PatientID:   f.patient.ID,
		Modality:    ModalityVideo,
		ScheduledAt: time.Now(),
	})
	if !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("expected ErrDoctorNotFound, got %v", err)
	}
}

func TestCreateSessionRejectsDoctorFromOtherClinic(t *testing.T) {
	f := newServiceFixture(t)

	other := Clinic{ID: uuid.New(), Name: "Other Clinic"}
	outsider := Doctor{ID: uuid.New(), ClinicID: other.ID, Name: "Dr. Elsewhere", Status: DoctorActive}
	f.repo.PutClinic(other)
	f.repo.PutDoctor(outsider)

	_, err := f.svc.CreateSession(context.Background(), CreateSessionParams{
		ClinicID:    f.clinic.ID,
		DoctorID:    outsider.ID,
		PatientID:   f.patient.ID,
		Modality:    ModalityVideo,
		ScheduledAt: time.Now(),
	})
	if !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("expected ErrDoctorNotFound for cross-clinic doctor, got %v", err)
	}
}

func TestCreateSessionAssignsMeetingRoom(t *testing.T) {
	f := newServiceFixture(t)

	session := f.createScheduled(t)
	if session.Status != StatusScheduled {
		t.Fatalf("expected scheduled, got %s", session.Status)
	}
	if len(session.MeetingRoomID) != 12 {
		t.Fatalf("expected 12-character meeting room, got %q", session.MeetingRoomID)
	}

	events := f.repo.Events()
	if len(events) != 1 || events[0].EventType != EventConsultationCreated {
		t.Fatalf("expected a creation event, got %+v", events)
	}
}

func TestStartEnqueuesEffectsOnce(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	session := f.createScheduled(t)

	started, err := f.svc.Start(ctx, f.clinic.ID, session.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", started.Status)
	}

	// Second start must fail and must not enqueue anything more.
	if _, err := f.svc.Start(ctx, f.clinic.ID, session.ID); !errors.Is(err, ErrNotScheduled) {
		t.Fatalf("expected ErrNotScheduled on repeat start, got %v", err)
	}

	envelopes := f.queue.all()
	if len(envelopes) != 1 {
		t.Fatalf("expected exactly 1 envelope, got %d", len(envelopes))
	}
	if got := envelopes[0].Effects; len(got) != 2 || got[0].Type != EffectMarkDoctorBusy {
		t.Fatalf("unexpected start effects: %+v", got)
	}
}

func TestEndComputesDurationAndOrdersEffects(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	session := f.createScheduled(t)

	if _, err := f.svc.Start(ctx, f.clinic.ID, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	notes := "viral pharyngitis, rest advised"
	ended, err := f.svc.End(ctx, f.clinic.ID, session.ID, &notes)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", ended.Status)
	}
	if ended.DurationMinutes == nil {
		t.Fatal("completed consultation must have a duration")
	}
	if ended.Notes == nil || *ended.Notes != notes {
		t.Fatalf("notes not persisted: %v", ended.Notes)
	}

	envelopes := f.queue.all()
	if len(envelopes) != 2 {
		t.Fatalf("expected 2 envelopes (start, end), got %d", len(envelopes))
	}

	endEffects := envelopes[1].Effects
	recordIdx, analyticsIdx := -1, -1
	for i, e := range endEffects {
		switch e.Type {
		case EffectCreateRecord:
			recordIdx = i
		case EffectUpdateAnalytics:
			analyticsIdx = i
		}
	}
	if recordIdx == -1 || analyticsIdx == -1 || recordIdx > analyticsIdx {
		t.Fatalf("clinical record must precede analytics: %+v", endEffects)
	}
}

func TestCancelInProgress(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	session := f.createScheduled(t)

	if _, err := f.svc.Start(ctx, f.clinic.ID, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	cancelled, err := f.svc.Cancel(ctx, f.clinic.ID, session.ID, "patient dropped")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.DurationMinutes != nil {
		t.Fatal("cancelled consultation must not have a duration")
	}

	envelopes := f.queue.all()
	cancelEffects := envelopes[len(envelopes)-1].Effects
	for _, e := range cancelEffects {
		if e.Type == EffectCreateRecord || e.Type == EffectUpdateAnalytics {
			t.Fatalf("cancel must not produce %s", e.Type)
		}
	}
	foundAvailable := false
	for _, e := range cancelEffects {
		if e.Type == EffectMarkDoctorAvailable {
			foundAvailable = true
		}
	}
	if !foundAvailable {
		t.Fatal("cancel must release the doctor")
	}

	if _, err := f.svc.Cancel(ctx, f.clinic.ID, session.ID, "again"); !errors.Is(err, ErrAlreadyFinished) {
		t.Fatalf("expected ErrAlreadyFinished on repeat cancel, got %v", err)
	}
}

func TestEndRequiresInProgress(t *testing.T) {
	f := newServiceFixture(t)
	session := f.createScheduled(t)

	if _, err := f.svc.End(context.Background(), f.clinic.ID, session.ID, nil); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress, got %v", err)
	}
}

func TestAppendsPreserveOrder(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	session := f.createScheduled(t)

	if _, err := f.svc.Start(ctx, f.clinic.ID, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	temp1, temp2 := 37.2, 38.1
	if _, err := f.svc.RecordVitalSigns(ctx, f.clinic.ID, session.ID, VitalSignReading{Temperature: &temp1}); err != nil {
		t.Fatalf("first reading: %v", err)
	}
	updated, err := f.svc.RecordVitalSigns(ctx, f.clinic.ID, session.ID, VitalSignReading{Temperature: &temp2})
	if err != nil {
		t.Fatalf("second reading: %v", err)
	}

	if len(updated.VitalSigns) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(updated.VitalSigns))
	}
	if *updated.VitalSigns[0].Temperature != temp1 || *updated.VitalSigns[1].Temperature != temp2 {
		t.Fatalf("readings out of order: %+v", updated.VitalSigns)
	}
	if updated.VitalSigns[0].RecordedAt.IsZero() {
		t.Fatal("recorded_at should default to now")
	}
}

func TestAppendRejectedAfterCancel(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	session := f.createScheduled(t)

	if _, err := f.svc.AddPrescription(ctx, f.clinic.ID, session.ID, Prescription{
		MedicationName: "ibuprofen",
		Dosage:         "200mg",
		Frequency:      "3x daily",
		Duration:       "5 days",
	}); err != nil {
		t.Fatalf("prescription before cancel: %v", err)
	}

	if _, err := f.svc.Cancel(ctx, f.clinic.ID, session.ID, "no-show"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err := f.svc.AddPrescription(ctx, f.clinic.ID, session.ID, Prescription{
		MedicationName: "paracetamol",
		Dosage:         "500mg",
		Frequency:      "2x daily",
		Duration:       "3 days",
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}

	// Entries made before cancellation stay readable.
	got, err := f.svc.GetSession(ctx, f.clinic.ID, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Prescriptions) != 1 || got.Prescriptions[0].MedicationName != "ibuprofen" {
		t.Fatalf("pre-cancel prescription lost: %+v", got.Prescriptions)
	}
}

func TestAppendUnderLockContention(t *testing.T) {
	f := newServiceFixture(t)
	f.svc = NewService(f.repo, contendedLocker{}, f.queue)
	session := f.createScheduled(t)

	temp := 37.0
	_, err := f.svc.RecordVitalSigns(context.Background(), f.clinic.ID, session.ID, VitalSignReading{Temperature: &temp})
	if !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}

	// The contended append must not have landed.
	got, err := f.svc.GetSession(context.Background(), f.clinic.ID, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.VitalSigns) != 0 {
		t.Fatalf("reading appended despite contention: %+v", got.VitalSigns)
	}
}

func TestReportTechnicalIssueValidatesSeverity(t *testing.T) {
	f := newServiceFixture(t)
	session := f.createScheduled(t)

	_, err := f.svc.ReportTechnicalIssue(context.Background(), f.clinic.ID, session.ID, TechnicalIssue{
		Severity: IssueSeverity("catastrophic"),
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "severity" {
		t.Fatalf("expected severity validation error, got %v", err)
	}
}

func TestQueueFailureDoesNotFailTransition(t *testing.T) {
	f := newServiceFixture(t)
	f.queue.fail = true
	session := f.createScheduled(t)

	started, err := f.svc.Start(context.Background(), f.clinic.ID, session.ID)
	if err != nil {
		t.Fatalf("start should survive a queue outage: %v", err)
	}
	if started.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", started.Status)
	}
}

func TestListSessionsFiltersAndClamps(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.createScheduled(t)
	}

	sessions, err := f.svc.ListSessions(ctx, f.clinic.ID, ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions with limit, got %d", len(sessions))
	}

	status := StatusCompleted
	sessions, err = f.svc.ListSessions(ctx, f.clinic.ID, ListFilter{Status: &status})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no completed sessions, got %d", len(sessions))
	}
}
