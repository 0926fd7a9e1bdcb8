package consultation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a map-backed Repository. It exists so the state
// machine is exercisable without Postgres; the service and handler tests
// run against it, and it honors the same guards the SQL statements do.
type MemoryRepository struct {
	mu           sync.Mutex
	clinics      map[uuid.UUID]*Clinic
	doctors      map[uuid.UUID]*Doctor
	patients     map[uuid.UUID]*Patient
	sessions     map[uuid.UUID]*Session
	meetingRooms map[string]uuid.UUID
	events       []EventLog
	nextEventID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		clinics:      make(map[uuid.UUID]*Clinic),
		doctors:      make(map[uuid.UUID]*Doctor),
		patients:     make(map[uuid.UUID]*Patient),
		sessions:     make(map[uuid.UUID]*Session),
		meetingRooms: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) PutClinic(c Clinic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clinics[c.ID] = &c
}

func (r *MemoryRepository) PutDoctor(d Doctor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[d.ID] = &d
}

func (r *MemoryRepository) PutPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = &p
}

func cloneSession(s *Session) *Session {
	c := *s
	c.VitalSigns = append([]VitalSignReading(nil), s.VitalSigns...)
	c.Prescriptions = append([]Prescription(nil), s.Prescriptions...)
	c.FollowUps = append([]FollowUpInstruction(nil), s.FollowUps...)
	c.TechnicalIssues = append([]TechnicalIssue(nil), s.TechnicalIssues...)
	return &c
}

func (r *MemoryRepository) GetClinicByID(_ context.Context, id uuid.UUID) (*Clinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	out := *c
	return &out, nil
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	out := *d
	return &out, nil
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	out := *p
	return &out, nil
}

func (r *MemoryRepository) CreateSession(_ context.Context, s *Session) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.meetingRooms[s.MeetingRoomID]; taken {
		return nil, ErrMeetingRoomTaken
	}
	stored := cloneSession(s)
	r.sessions[stored.ID] = stored
	r.meetingRooms[stored.MeetingRoomID] = stored.ID
	return cloneSession(stored), nil
}

func (r *MemoryRepository) GetSessionByID(_ context.Context, clinicID, id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.ClinicID != clinicID {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (r *MemoryRepository) ListSessions(_ context.Context, clinicID uuid.UUID, f ListFilter) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*Session
	for _, s := range r.sessions {
		if s.ClinicID != clinicID {
			continue
		}
		if f.Status != nil && s.Status != *f.Status {
			continue
		}
		if f.DoctorID != nil && s.DoctorID != *f.DoctorID {
			continue
		}
		matched = append(matched, s)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ScheduledAt.After(matched[j].ScheduledAt)
	})

	var result []Session
	for i, s := range matched {
		if i < f.Offset {
			continue
		}
		if f.Limit > 0 && len(result) >= f.Limit {
			break
		}
		result = append(result, *cloneSession(s))
	}
	return result, nil
}

func (r *MemoryRepository) UpdateSessionStatus(_ context.Context, id uuid.UUID, from, to Status, upd StatusUpdate) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.Status != from {
		return nil, ErrSessionNotFound
	}

	s.Status = to
	if upd.StartedAt != nil {
		s.StartedAt = upd.StartedAt
	}
	if upd.EndedAt != nil {
		s.EndedAt = upd.EndedAt
	}
	if upd.DurationMinutes != nil {
		s.DurationMinutes = upd.DurationMinutes
	}
	if upd.Notes != nil {
		s.Notes = upd.Notes
	}
	s.UpdatedAt = time.Now()

	return cloneSession(s), nil
}

func (r *MemoryRepository) appendToSession(id uuid.UUID, fn func(s *Session)) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Status == StatusCancelled {
		return nil, ErrCancelled
	}
	fn(s)
	s.UpdatedAt = time.Now()
	return cloneSession(s), nil
}

func (r *MemoryRepository) AppendVitalSigns(_ context.Context, id uuid.UUID, reading VitalSignReading) (*Session, error) {
	return r.appendToSession(id, func(s *Session) {
		s.VitalSigns = append(s.VitalSigns, reading)
	})
}

func (r *MemoryRepository) AppendPrescription(_ context.Context, id uuid.UUID, p Prescription) (*Session, error) {
	return r.appendToSession(id, func(s *Session) {
		s.Prescriptions = append(s.Prescriptions, p)
	})
}

func (r *MemoryRepository) AppendFollowUp(_ context.Context, id uuid.UUID, f FollowUpInstruction) (*Session, error) {
	return r.appendToSession(id, func(s *Session) {
		s.FollowUps = append(s.FollowUps, f)
	})
}

func (r *MemoryRepository) AppendTechnicalIssue(_ context.Context, id uuid.UUID, issue TechnicalIssue) (*Session, error) {
	return r.appendToSession(id, func(s *Session) {
		s.TechnicalIssues = append(s.TechnicalIssues, issue)
	})
}

func (r *MemoryRepository) UpdateDoctorStatus(_ context.Context, doctorID uuid.UUID, status DoctorStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[doctorID]
	if !ok {
		return ErrDoctorNotFound
	}
	d.Status = status
	d.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log, oldest first.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventLog(nil), r.events...)
}
