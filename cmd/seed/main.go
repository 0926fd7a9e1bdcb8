package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/online-consultation-service/internal/consultation"
	"github.com/clinicdesk/online-consultation-service/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	clinicIDs, err := seedClinics(context.Background(), pool, 5)
	if err != nil {
		log.Fatalf("seed clinics: %v", err)
	}
	doctorIDs, err := seedDoctors(context.Background(), pool, clinicIDs, 8)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 500)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedConsultations(context.Background(), pool, clinicIDs, doctorIDs, patientIDs, 200); err != nil {
		log.Fatalf("seed consultations: %v", err)
	}

	log.Println("seed complete")
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d clinics", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Company() + " Clinic"

		_, err := tx.Exec(ctx, `
			INSERT INTO clinics (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, id, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, clinicIDs []uuid.UUID, perClinic int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors per clinic", perClinic)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var ids []uuid.UUID
	for _, clinicID := range clinicIDs {
		for i := 0; i < perClinic; i++ {
			id := uuid.New()
			name := "Dr. " + gofakeit.Name()
			spec := specialties[gofakeit.Number(0, len(specialties)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO doctors (id, clinic_id, name, specialty, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 'active', now(), now())
			`, id, clinicID, name, spec)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, email)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedConsultations(ctx context.Context, pool *pgxpool.Pool, clinicIDs, doctorIDs, patientIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d scheduled consultations", count)

	modalities := []consultation.Modality{
		consultation.ModalityVideo,
		consultation.ModalityAudio,
		consultation.ModalityChat,
	}

	perClinic := len(doctorIDs) / len(clinicIDs)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		clinicIdx := gofakeit.Number(0, len(clinicIDs)-1)
		clinicID := clinicIDs[clinicIdx]
		// Pick a doctor seeded into this clinic.
		doctorID := doctorIDs[clinicIdx*perClinic+gofakeit.Number(0, perClinic-1)]
		patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
		modality := modalities[gofakeit.Number(0, len(modalities)-1)]
		scheduledAt := time.Now().Add(time.Duration(gofakeit.Number(-60, 7*24*60)) * time.Minute)

		_, err := tx.Exec(ctx, `
			INSERT INTO online_consultations (
				id, clinic_id, doctor_id, patient_id, modality, status,
				scheduled_at, meeting_room_id, recording_consent,
				vital_signs, prescriptions, follow_ups, technical_issues,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, 'scheduled', $6, $7, $8,
			        '[]'::jsonb, '[]'::jsonb, '[]'::jsonb, '[]'::jsonb, now(), now())
		`, uuid.New(), clinicID, doctorID, patientID, modality, scheduledAt,
			consultation.NewMeetingRoomID(), gofakeit.Bool())
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
