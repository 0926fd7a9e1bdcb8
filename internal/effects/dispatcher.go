package effects

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/clinicdesk/online-consultation-service/internal/analytics"
	"github.com/clinicdesk/online-consultation-service/internal/clinicalrecord"
	"github.com/clinicdesk/online-consultation-service/internal/consultation"
	"github.com/clinicdesk/online-consultation-service/internal/notification"
)

const EventEffectFailed = "EFFECT_FAILED"

// Dispatcher executes the effects of one envelope in order. An effect
// failure aborts the rest of that envelope: the analytics update may assume
// the clinical record it follows was created. Failures never reach back
// into the transition that emitted them.
type Dispatcher struct {
	sessions  consultation.Repository
	records   clinicalrecord.Repository
	analytics analytics.Repository
	notifier  notification.Notifier
}

func NewDispatcher(sessions consultation.Repository, records clinicalrecord.Repository, metrics analytics.Repository, notifier notification.Notifier) *Dispatcher {
	return &Dispatcher{
		sessions:  sessions,
		records:   records,
		analytics: metrics,
		notifier:  notifier,
	}
}

// Run performs each effect in the envelope. It logs and records the first
// failure, then stops.
func (d *Dispatcher) Run(ctx context.Context, env consultation.EffectEnvelope) {
	for _, e := range env.Effects {
		if err := d.perform(ctx, e); err != nil {
			log.Printf("effect %s for consultation %s failed: %v", e.Type, e.SessionID, err)
			d.recordFailure(ctx, e, err)
			return
		}
	}
}

func (d *Dispatcher) perform(ctx context.Context, e consultation.Effect) error {
	switch e.Type {
	case consultation.EffectMarkDoctorBusy:
		return d.sessions.UpdateDoctorStatus(ctx, e.DoctorID, consultation.DoctorBusy)

	case consultation.EffectMarkDoctorAvailable:
		return d.sessions.UpdateDoctorStatus(ctx, e.DoctorID, consultation.DoctorActive)

	case consultation.EffectCreateRecord:
		sessionID := e.SessionID
		_, err := d.records.CreateDraft(ctx, clinicalrecord.Record{
			ClinicID:       e.ClinicID,
			DoctorID:       e.DoctorID,
			PatientID:      e.PatientID,
			ConsultationID: &sessionID,
			RecordType:     clinicalrecord.TypeConsultation,
		})
		return err

	case consultation.EffectUpdateAnalytics:
		return d.analytics.RecordConsultationCompleted(ctx, e.ClinicID, e.OccurredAt, e.DurationMinutes)

	case consultation.EffectNotifyStarted:
		return d.notifier.ConsultationStarted(ctx, e)

	case consultation.EffectNotifyCompleted:
		return d.notifier.ConsultationCompleted(ctx, e)

	case consultation.EffectNotifyCancelled:
		return d.notifier.ConsultationCancelled(ctx, e)
	}

	return fmt.Errorf("unknown effect type %q", e.Type)
}

func (d *Dispatcher) recordFailure(ctx context.Context, e consultation.Effect, cause error) {
	payload, err := json.Marshal(map[string]any{
		"effect": e.Type,
		"error":  cause.Error(),
	})
	if err != nil {
		payload = nil
	}

	sessionID := e.SessionID
	ev := consultation.EventLog{
		EventType: EventEffectFailed,
		SessionID: &sessionID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := d.sessions.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to record effect failure for consultation %s: %v", e.SessionID, err)
	}
}
