package notification

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/clinicdesk/online-consultation-service/internal/consultation"
)

func TestMessageFormatting(t *testing.T) {
	sessionID := uuid.MustParse("3e8c9d6e-1111-4f58-9a41-6a5f7e2b0c11")
	doctorID := uuid.MustParse("7b2a4c9f-2222-4d31-8e0d-9c3f5a1b6d22")

	e := consultation.Effect{
		SessionID:       sessionID,
		DoctorID:        doctorID,
		DurationMinutes: 42,
	}

	if got := StartedMessage(e); got != "consultation 3e8c9d6e-1111-4f58-9a41-6a5f7e2b0c11 with doctor 7b2a4c9f-2222-4d31-8e0d-9c3f5a1b6d22 has started" {
		t.Fatalf("unexpected started message: %q", got)
	}
	if got := CompletedMessage(e); got != "consultation 3e8c9d6e-1111-4f58-9a41-6a5f7e2b0c11 completed after 42 minutes" {
		t.Fatalf("unexpected completed message: %q", got)
	}

	e.Reason = "patient request"
	if got := CancelledMessage(e); got != "consultation 3e8c9d6e-1111-4f58-9a41-6a5f7e2b0c11 was cancelled: patient request" {
		t.Fatalf("unexpected cancelled message: %q", got)
	}

	e.Reason = ""
	if got := CancelledMessage(e); got != "consultation 3e8c9d6e-1111-4f58-9a41-6a5f7e2b0c11 was cancelled" {
		t.Fatalf("unexpected cancelled message without reason: %q", got)
	}
}

func TestLogNotifierRecordsEvent(t *testing.T) {
	events := consultation.NewMemoryRepository()
	notifier := NewLogNotifier(events)

	e := consultation.Effect{
		SessionID: uuid.New(),
		ClinicID:  uuid.New(),
		PatientID: uuid.New(),
	}

	if err := notifier.ConsultationStarted(context.Background(), e); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	logged := events.Events()
	if len(logged) != 1 {
		t.Fatalf("expected 1 event, got %d", len(logged))
	}
	ev := logged[0]
	if ev.EventType != EventNotificationSent {
		t.Fatalf("expected %s, got %s", EventNotificationSent, ev.EventType)
	}
	if ev.SessionID == nil || *ev.SessionID != e.SessionID {
		t.Fatalf("event not tied to the session: %v", ev.SessionID)
	}

	var payload map[string]string
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["kind"] != "consultation_started" {
		t.Fatalf("unexpected payload kind: %q", payload["kind"])
	}
	if payload["patient_id"] != e.PatientID.String() {
		t.Fatalf("payload missing patient: %+v", payload)
	}
}
