package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/online-consultation-service/internal/analytics"
	"github.com/clinicdesk/online-consultation-service/internal/consultation"
	redisclient "github.com/clinicdesk/online-consultation-service/internal/redis"
)

func createConsultationHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicIDParam(w, r)
		if !ok {
			return
		}

		var req CreateConsultationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		var bookingID *uuid.UUID
		if req.BookingID != "" {
			id, err := uuid.Parse(req.BookingID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_booking_id", "booking_id must be a valid UUID")
				return
			}
			bookingID = &id
		}

		session, err := svc.CreateSession(r.Context(), consultation.CreateSessionParams{
			ClinicID:         clinicID,
			DoctorID:         doctorID,
			PatientID:        patientID,
			BookingID:        bookingID,
			Modality:         consultation.Modality(req.Modality),
			ScheduledAt:      req.ScheduledAt,
			RecordingConsent: req.RecordingConsent,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toConsultationResponse(session))
	}
}

func listConsultationsHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicIDParam(w, r)
		if !ok {
			return
		}

		f := consultation.ListFilter{
			Limit:  intQuery(r, "limit", 20),
			Offset: intQuery(r, "offset", 0),
		}
		if v := r.URL.Query().Get("status"); v != "" {
			status := consultation.Status(v)
			f.Status = &status
		}
		if v := r.URL.Query().Get("doctor_id"); v != "" {
			doctorID, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			f.DoctorID = &doctorID
		}

		sessions, err := svc.ListSessions(r.Context(), clinicID, f)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := ConsultationListResponse{
			Consultations: make([]ConsultationResponse, 0, len(sessions)),
			Limit:         f.Limit,
			Offset:        f.Offset,
		}
		for i := range sessions {
			resp.Consultations = append(resp.Consultations, toConsultationResponse(&sessions[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func getConsultationHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, id, ok := consultationParams(w, r)
		if !ok {
			return
		}

		session, err := svc.GetSession(r.Context(), clinicID, id)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationResponse(session))
	}
}

func startConsultationHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, id, ok := consultationParams(w, r)
		if !ok {
			return
		}

		session, err := svc.Start(r.Context(), clinicID, id)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationResponse(session))
	}
}

func endConsultationHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, id, ok := consultationParams(w, r)
		if !ok {
			return
		}

		var req EndConsultationRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		session, err := svc.End(r.Context(), clinicID, id, req.Notes)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationResponse(session))
	}
}

func cancelConsultationHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, id, ok := consultationParams(w, r)
		if !ok {
			return
		}

		var req CancelConsultationRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		session, err := svc.Cancel(r.Context(), clinicID, id, req.Reason)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationResponse(session))
	}
}

func recordVitalSignsHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, id, ok := consultationParams(w, r)
		if !ok {
			return
		}

		var req VitalSignsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		session, err := svc.RecordVitalSigns(r.Context(), clinicID, id, consultation.VitalSignReading{
			Temperature: req.Temperature,
			HeartRate:   req.HeartRate,
			SystolicBP:  req.SystolicBP,
			DiastolicBP: req.DiastolicBP,
			OxygenSat:   req.OxygenSat,
			Note:        req.Note,
			RecordedAt:  time.Now(),
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationResponse(session))
	}
}

func addPrescriptionHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, id, ok := consultationParams(w, r)
		if !ok {
			return
		}

		var req PrescriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		session, err := svc.AddPrescription(r.Context(), clinicID, id, consultation.Prescription{
			MedicationName: req.MedicationName,
			Dosage:         req.Dosage,
			Frequency:      req.Frequency,
			Duration:       req.Duration,
			Instructions:   req.Instructions,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationResponse(session))
	}
}

func addFollowUpHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, id, ok := consultationParams(w, r)
		if !ok {
			return
		}

		var req FollowUpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		session, err := svc.AddFollowUpInstruction(r.Context(), clinicID, id, req.Instruction)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationResponse(session))
	}
}

func reportTechnicalIssueHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, id, ok := consultationParams(w, r)
		if !ok {
			return
		}

		var req TechnicalIssueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		session, err := svc.ReportTechnicalIssue(r.Context(), clinicID, id, consultation.TechnicalIssue{
			Severity:    consultation.IssueSeverity(req.Severity),
			Description: req.Description,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationResponse(session))
	}
}

func meetingURLHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, id, ok := consultationParams(w, r)
		if !ok {
			return
		}

		session, err := svc.GetSession(r.Context(), clinicID, id)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, MeetingURLResponse{
			MeetingURL:    session.MeetingURL(),
			MeetingRoomID: session.MeetingRoomID,
		})
	}
}

func dailyAnalyticsHandler(metrics analytics.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicIDParam(w, r)
		if !ok {
			return
		}

		to := time.Now().UTC().Truncate(24 * time.Hour)
		from := to.AddDate(0, 0, -30)
		if v := r.URL.Query().Get("from"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
				return
			}
			from = parsed
		}
		if v := r.URL.Query().Get("to"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
				return
			}
			to = parsed
		}

		daily, err := metrics.GetDaily(r.Context(), clinicID, from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if daily == nil {
			daily = []analytics.DailyMetrics{}
		}

		writeJSON(w, http.StatusOK, map[string]any{"daily": daily})
	}
}

func clinicIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	clinicID, err := uuid.Parse(chi.URLParam(r, "clinicID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinicID must be a valid UUID")
		return uuid.Nil, false
	}
	return clinicID, true
}

func consultationParams(w http.ResponseWriter, r *http.Request) (clinicID, id uuid.UUID, ok bool) {
	clinicID, ok = clinicIDParam(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_consultation_id", "id must be a valid UUID")
		return uuid.Nil, uuid.Nil, false
	}
	return clinicID, id, true
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// handleDomainError maps service failures to HTTP responses. Wrong-state
// failures and validation errors both surface as 422 with distinct codes so
// callers can tell them apart.
func handleDomainError(w http.ResponseWriter, err error) {
	var vErr *consultation.ValidationError

	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", vErr.Error())
	case errors.Is(err, consultation.ErrNotScheduled),
		errors.Is(err, consultation.ErrNotInProgress),
		errors.Is(err, consultation.ErrAlreadyFinished),
		errors.Is(err, consultation.ErrMissingStartTime):
		writeError(w, http.StatusUnprocessableEntity, "invalid_transition", err.Error())
	case errors.Is(err, consultation.ErrCancelled):
		writeError(w, http.StatusUnprocessableEntity, "consultation_cancelled", err.Error())
	case errors.Is(err, consultation.ErrSessionBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "consultation_busy", "consultation is being updated, please retry shortly")
	case errors.Is(err, consultation.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "consultation_not_found", err.Error())
	case errors.Is(err, consultation.ErrClinicNotFound):
		writeError(w, http.StatusNotFound, "clinic_not_found", err.Error())
	case errors.Is(err, consultation.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, consultation.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
