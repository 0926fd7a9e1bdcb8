package effects

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/online-consultation-service/internal/analytics"
	"github.com/clinicdesk/online-consultation-service/internal/clinicalrecord"
	"github.com/clinicdesk/online-consultation-service/internal/consultation"
	"github.com/clinicdesk/online-consultation-service/internal/notification"
)

// recordingNotifier captures which notifications were delivered.
type recordingNotifier struct {
	delivered []consultation.EffectType
	failOn    consultation.EffectType
}

func (n *recordingNotifier) record(t consultation.EffectType) error {
	if t == n.failOn {
		return errors.New("delivery refused")
	}
	n.delivered = append(n.delivered, t)
	return nil
}

func (n *recordingNotifier) ConsultationStarted(_ context.Context, e consultation.Effect) error {
	return n.record(consultation.EffectNotifyStarted)
}

func (n *recordingNotifier) ConsultationCompleted(_ context.Context, e consultation.Effect) error {
	return n.record(consultation.EffectNotifyCompleted)
}

func (n *recordingNotifier) ConsultationCancelled(_ context.Context, e consultation.Effect) error {
	return n.record(consultation.EffectNotifyCancelled)
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	sessions   *consultation.MemoryRepository
	records    *clinicalrecord.MemoryRepository
	metrics    *analytics.MemoryRepository
	notifier   *recordingNotifier
	doctor     consultation.Doctor
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	sessions := consultation.NewMemoryRepository()
	records := clinicalrecord.NewMemoryRepository()
	metrics := analytics.NewMemoryRepository()
	notifier := &recordingNotifier{}

	doctor := consultation.Doctor{
		ID:       uuid.New(),
		ClinicID: uuid.New(),
		Name:     "Dr. Matsumoto",
		Status:   consultation.DoctorBusy,
	}
	sessions.PutDoctor(doctor)

	return &dispatcherFixture{
		dispatcher: NewDispatcher(sessions, records, metrics, notifier),
		sessions:   sessions,
		records:    records,
		metrics:    metrics,
		notifier:   notifier,
		doctor:     doctor,
	}
}

func completionEnvelope(doctor consultation.Doctor, sessionID uuid.UUID, duration int) consultation.EffectEnvelope {
	now := time.Now()
	base := consultation.Effect{
		SessionID:  sessionID,
		ClinicID:   doctor.ClinicID,
		DoctorID:   doctor.ID,
		PatientID:  uuid.New(),
		OccurredAt: now,
	}

	record := base
	record.Type = consultation.EffectCreateRecord

	metrics := base
	metrics.Type = consultation.EffectUpdateAnalytics
	metrics.DurationMinutes = duration

	available := base
	available.Type = consultation.EffectMarkDoctorAvailable

	notify := base
	notify.Type = consultation.EffectNotifyCompleted

	return consultation.EffectEnvelope{
		SessionID:  sessionID,
		Effects:    []consultation.Effect{record, metrics, available, notify},
		EnqueuedAt: now,
	}
}

func TestRunCompletionEnvelope(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	sessionID := uuid.New()

	f.dispatcher.Run(ctx, completionEnvelope(f.doctor, sessionID, 25))

	rec, err := f.records.GetByConsultationID(ctx, sessionID)
	if err != nil {
		t.Fatalf("draft record missing: %v", err)
	}
	if rec.Status != clinicalrecord.StatusDraft {
		t.Fatalf("expected draft status, got %s", rec.Status)
	}

	day := time.Now().UTC().Truncate(24 * time.Hour)
	daily, err := f.metrics.GetDaily(ctx, f.doctor.ClinicID, day, day)
	if err != nil {
		t.Fatalf("get daily: %v", err)
	}
	if len(daily) != 1 || daily[0].TotalConsultations != 1 || daily[0].TotalDurationMinutes != 25 {
		t.Fatalf("analytics not updated: %+v", daily)
	}

	updatedDoctor, err := f.sessions.GetDoctorByID(ctx, f.doctor.ID)
	if err != nil {
		t.Fatalf("get doctor: %v", err)
	}
	if updatedDoctor.Status != consultation.DoctorActive {
		t.Fatalf("doctor not released: %s", updatedDoctor.Status)
	}

	if len(f.notifier.delivered) != 1 || f.notifier.delivered[0] != consultation.EffectNotifyCompleted {
		t.Fatalf("unexpected notifications: %v", f.notifier.delivered)
	}
}

func TestRunAbortsOnFirstFailure(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	sessionID := uuid.New()

	// An unknown doctor fails the availability flip; the completion
	// notification after it must not be delivered.
	env := completionEnvelope(f.doctor, sessionID, 25)
	env.Effects[2].DoctorID = uuid.New()

	f.dispatcher.Run(ctx, env)

	if len(f.notifier.delivered) != 0 {
		t.Fatalf("effects after the failure ran anyway: %v", f.notifier.delivered)
	}

	// The failure lands in the event log.
	events := f.sessions.Events()
	if len(events) != 1 || events[0].EventType != EventEffectFailed {
		t.Fatalf("expected an %s event, got %+v", EventEffectFailed, events)
	}
}

func TestRunIsIdempotentForRecordCreation(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	sessionID := uuid.New()

	env := completionEnvelope(f.doctor, sessionID, 25)
	f.dispatcher.Run(ctx, env)
	f.dispatcher.Run(ctx, env)

	first, err := f.records.GetByConsultationID(ctx, sessionID)
	if err != nil {
		t.Fatalf("draft record missing: %v", err)
	}
	second, err := f.records.GetByConsultationID(ctx, sessionID)
	if err != nil {
		t.Fatalf("draft record missing after replay: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("replay created a second draft record")
	}
}

func TestRunUnknownEffectType(t *testing.T) {
	f := newDispatcherFixture(t)
	sessionID := uuid.New()

	env := consultation.EffectEnvelope{
		SessionID: sessionID,
		Effects: []consultation.Effect{
			{Type: consultation.EffectType("mystery"), SessionID: sessionID},
		},
	}
	f.dispatcher.Run(context.Background(), env)

	events := f.sessions.Events()
	if len(events) != 1 || events[0].EventType != EventEffectFailed {
		t.Fatalf("unknown effect should be recorded as a failure, got %+v", events)
	}
}

var _ notification.Notifier = (*recordingNotifier)(nil)
