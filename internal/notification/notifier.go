package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/clinicdesk/online-consultation-service/internal/consultation"
)

const EventNotificationSent = "NOTIFICATION_SENT"

// Notifier delivers transition notifications to the patient and clinic.
// Delivery is best effort: the transition has already committed by the time
// any of these run.
type Notifier interface {
	ConsultationStarted(ctx context.Context, e consultation.Effect) error
	ConsultationCompleted(ctx context.Context, e consultation.Effect) error
	ConsultationCancelled(ctx context.Context, e consultation.Effect) error
}

// EventSink records delivered notifications in the event log.
type EventSink interface {
	InsertEvent(ctx context.Context, ev consultation.EventLog) error
}

// LogNotifier writes formatted notifications to the process log and the
// event log. The push/email gateway sits behind this in deployments that
// have one.
type LogNotifier struct {
	events EventSink
}

func NewLogNotifier(events EventSink) *LogNotifier {
	return &LogNotifier{events: events}
}

func StartedMessage(e consultation.Effect) string {
	return fmt.Sprintf("consultation %s with doctor %s has started", e.SessionID, e.DoctorID)
}

func CompletedMessage(e consultation.Effect) string {
	return fmt.Sprintf("consultation %s completed after %d minutes", e.SessionID, e.DurationMinutes)
}

func CancelledMessage(e consultation.Effect) string {
	if e.Reason == "" {
		return fmt.Sprintf("consultation %s was cancelled", e.SessionID)
	}
	return fmt.Sprintf("consultation %s was cancelled: %s", e.SessionID, e.Reason)
}

func (n *LogNotifier) ConsultationStarted(ctx context.Context, e consultation.Effect) error {
	return n.deliver(ctx, e, "consultation_started", StartedMessage(e))
}

func (n *LogNotifier) ConsultationCompleted(ctx context.Context, e consultation.Effect) error {
	return n.deliver(ctx, e, "consultation_completed", CompletedMessage(e))
}

func (n *LogNotifier) ConsultationCancelled(ctx context.Context, e consultation.Effect) error {
	return n.deliver(ctx, e, "consultation_cancelled", CancelledMessage(e))
}

func (n *LogNotifier) deliver(ctx context.Context, e consultation.Effect, kind, message string) error {
	log.Printf("notify kind=%s patient=%s clinic=%s message=%q", kind, e.PatientID, e.ClinicID, message)

	payload, err := json.Marshal(map[string]any{
		"kind":       kind,
		"message":    message,
		"patient_id": e.PatientID.String(),
		"clinic_id":  e.ClinicID.String(),
	})
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}

	sessionID := e.SessionID
	ev := consultation.EventLog{
		EventType: EventNotificationSent,
		SessionID: &sessionID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := n.events.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}
