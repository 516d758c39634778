package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// MedicationRecord is one confirmed medication as persisted.
type MedicationRecord struct {
	ID           uuid.UUID
	ImageHash    string
	DrugName     string
	Dosage       string
	Frequency    string
	DoseTiming   string
	DosingSource string
	Duration     string
	Route        string
	SafetyFlag   string
	PatientName  string
	PatientAge   int
	Card         rx.NudgeCard
	CreatedAt    time.Time
}

// MedicationRepository persists confirmed medications.
type MedicationRepository interface {
	SaveConfirmed(ctx context.Context, rec *MedicationRecord) error
	ListByImageHash(ctx context.Context, imageHash string) ([]MedicationRecord, error)
}

type medicationRepo struct {
	pool *pgxpool.Pool
}

// NewMedicationRepository constructs the pgx-backed repository.
func NewMedicationRepository(pool *pgxpool.Pool) (MedicationRepository, error) {
	if pool == nil {
		return nil, apperrors.InvalidParam("postgres: pool is required")
	}
	return &medicationRepo{pool: pool}, nil
}

const insertMedicationSQL = `
INSERT INTO confirmed_medications (
	id, image_hash, drug_name, dosage, frequency, dose_timing, dosing_source,
	duration, route, safety_flag, patient_name, patient_age, card, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

func (r *medicationRepo) SaveConfirmed(ctx context.Context, rec *MedicationRecord) error {
	if rec == nil {
		return apperrors.InvalidParam("postgres: record is nil")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	card, err := json.Marshal(rec.Card)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "card encode")
	}

	_, err = r.pool.Exec(ctx, insertMedicationSQL,
		rec.ID, rec.ImageHash, rec.DrugName, rec.Dosage, rec.Frequency,
		rec.DoseTiming, rec.DosingSource, rec.Duration, rec.Route,
		rec.SafetyFlag, rec.PatientName, rec.PatientAge, card, rec.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "medication insert")
	}
	return nil
}

const listByHashSQL = `
SELECT id, image_hash, drug_name, dosage, frequency, dose_timing,
       dosing_source, duration, route, safety_flag, patient_name,
       patient_age, card, created_at
FROM confirmed_medications
WHERE image_hash = $1
ORDER BY created_at`

func (r *medicationRepo) ListByImageHash(ctx context.Context, imageHash string) ([]MedicationRecord, error) {
	rows, err := r.pool.Query(ctx, listByHashSQL, imageHash)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "medication query")
	}
	defer rows.Close()

	var records []MedicationRecord
	for rows.Next() {
		var rec MedicationRecord
		var card []byte
		if err := rows.Scan(
			&rec.ID, &rec.ImageHash, &rec.DrugName, &rec.Dosage, &rec.Frequency,
			&rec.DoseTiming, &rec.DosingSource, &rec.Duration, &rec.Route,
			&rec.SafetyFlag, &rec.PatientName, &rec.PatientAge, &card, &rec.CreatedAt,
		); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "medication scan")
		}
		if len(card) > 0 {
			if err := json.Unmarshal(card, &rec.Card); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "card decode")
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil && err != pgx.ErrNoRows {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "medication rows")
	}
	return records, nil
}
