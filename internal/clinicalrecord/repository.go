package clinicalrecord

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrRecordNotFound = errors.New("clinical record not found")

type Repository interface {
	// CreateDraft inserts a draft record for a completed consultation.
	// Creating a second draft for the same consultation is a no-op that
	// returns the existing record, so a replayed effect cannot duplicate it.
	CreateDraft(ctx context.Context, rec Record) (*Record, error)
	GetByConsultationID(ctx context.Context, consultationID uuid.UUID) (*Record, error)
}

// MemoryRepository backs tests and fixtures.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
	byCons  map[uuid.UUID]uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[uuid.UUID]*Record),
		byCons:  make(map[uuid.UUID]uuid.UUID),
	}
}

func (r *MemoryRepository) CreateDraft(_ context.Context, rec Record) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ConsultationID != nil {
		if existingID, ok := r.byCons[*rec.ConsultationID]; ok {
			out := *r.records[existingID]
			return &out, nil
		}
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Status = StatusDraft
	stored := rec
	r.records[stored.ID] = &stored
	if stored.ConsultationID != nil {
		r.byCons[*stored.ConsultationID] = stored.ID
	}
	out := stored
	return &out, nil
}

func (r *MemoryRepository) GetByConsultationID(_ context.Context, consultationID uuid.UUID) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCons[consultationID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := *r.records[id]
	return &out, nil
}
