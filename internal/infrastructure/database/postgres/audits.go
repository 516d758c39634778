package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/dosewise/rxlens/pkg/errors"
)

// ScanAudit is one analyze attempt as persisted, successful or not.  Audits
// are written best-effort by the pipeline and never block a scan.
type ScanAudit struct {
	ID              uuid.UUID
	ImageHash       string
	Strategy        string
	MedicationCount int
	FailedCount     int
	ErrorCode       string
	CreatedAt       time.Time
}

// AuditRepository records scan audits.
type AuditRepository interface {
	SaveScanAudit(ctx context.Context, audit *ScanAudit) error
}

type auditRepo struct {
	pool *pgxpool.Pool
}

// NewAuditRepository constructs the pgx-backed audit repository.
func NewAuditRepository(pool *pgxpool.Pool) (AuditRepository, error) {
	if pool == nil {
		return nil, apperrors.InvalidParam("postgres: pool is required")
	}
	return &auditRepo{pool: pool}, nil
}

const insertAuditSQL = `
INSERT INTO scan_audits (
	id, image_hash, strategy, medication_count, failed_count, error_code, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (r *auditRepo) SaveScanAudit(ctx context.Context, audit *ScanAudit) error {
	if audit == nil {
		return apperrors.InvalidParam("postgres: audit is nil")
	}
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, insertAuditSQL,
		audit.ID, audit.ImageHash, audit.Strategy, audit.MedicationCount,
		audit.FailedCount, audit.ErrorCode, audit.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "audit insert")
	}
	return nil
}
