package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dosewise/rxlens/internal/infrastructure/database/postgres"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// RecordsHandler serves confirmed medication records.
type RecordsHandler struct {
	repo postgres.MedicationRepository
}

// NewRecordsHandler constructs the handler.  The repository is required.
func NewRecordsHandler(repo postgres.MedicationRepository) (*RecordsHandler, error) {
	if repo == nil {
		return nil, apperrors.InvalidParam("handlers: medication repository is required")
	}
	return &RecordsHandler{repo: repo}, nil
}

type recordView struct {
	ID           string       `json:"id"`
	DrugName     string       `json:"drug_name"`
	Dosage       string       `json:"dosage"`
	DoseTiming   string       `json:"dose_timing"`
	DosingSource string       `json:"dosing_source"`
	Duration     string       `json:"duration"`
	Route        string       `json:"route"`
	SafetyFlag   string       `json:"safety_flag"`
	Card         rx.NudgeCard `json:"patient_facing_card"`
	ConfirmedAt  time.Time    `json:"confirmed_at"`
}

// ListByImageHash handles GET /prescriptions/:hash/records.
func (h *RecordsHandler) ListByImageHash(c *gin.Context) {
	records, err := h.repo.ListByImageHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]recordView, len(records))
	for i, rec := range records {
		views[i] = recordView{
			ID:           rec.ID.String(),
			DrugName:     rec.DrugName,
			Dosage:       rec.Dosage,
			DoseTiming:   rec.DoseTiming,
			DosingSource: rec.DosingSource,
			Duration:     rec.Duration,
			Route:        rec.Route,
			SafetyFlag:   rec.SafetyFlag,
			Card:         rec.Card,
			ConfirmedAt:  rec.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"records": views})
}
