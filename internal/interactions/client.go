// Package interactions provides the client for the external drug-interaction
// service.  The safety aggregator calls it with the full medication list and
// receives pairwise findings to distribute across candidates.
package interactions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dosewise/rxlens/internal/config"
	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// PairFinding is one pairwise interaction between two drugs in the checked
// list.  DrugA and DrugB carry the names exactly as submitted.
type PairFinding struct {
	DrugA          string      `json:"drug_a"`
	DrugB          string      `json:"drug_b"`
	Tier           rx.Tier     `json:"tier"`
	Description    string      `json:"description"`
	Severity       rx.Severity `json:"severity"`
	Recommendation string      `json:"recommendation"`
}

// Client abstracts the interaction service.  An error always carries
// ErrCodeInteractionUnavailable; an empty finding list with a nil error means
// the service answered and found nothing.
type Client interface {
	CheckInteractions(ctx context.Context, drugs []string) ([]PairFinding, error)
}

type httpClient struct {
	baseURL string
	hc      *http.Client
	timeout time.Duration
	logger  logging.Logger
}

// NewClient constructs the production interaction Client from cfg.
func NewClient(cfg config.InteractionsConfig, logger logging.Logger) Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultInteractionsTimeout
	}
	return &httpClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger.Named("interactions"),
	}
}

type checkRequest struct {
	Drugs []string `json:"drugs"`
}

type checkResponse struct {
	Findings []PairFinding `json:"findings"`
}

func (c *httpClient) CheckInteractions(ctx context.Context, drugs []string) ([]PairFinding, error) {
	// Deduplicate while preserving order; the service treats the list as a
	// set and repeated names inflate pair counts.
	seen := make(map[string]struct{}, len(drugs))
	unique := make([]string, 0, len(drugs))
	for _, d := range drugs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		key := strings.ToLower(d)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, d)
	}
	if len(unique) < 2 {
		return nil, nil
	}

	body, err := json.Marshal(checkRequest{Drugs: unique})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInteractionUnavailable, "interaction request encode")
	}

	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(tctx, http.MethodPost,
		c.baseURL+"/interactions/check", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInteractionUnavailable, "interaction request build")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		c.logger.Warn("interaction request failed", logging.Err(err))
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInteractionUnavailable, "interaction request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("interaction service returned non-200",
			logging.Int("status", resp.StatusCode))
		return nil, apperrors.New(apperrors.ErrCodeInteractionUnavailable,
			fmt.Sprintf("interaction service returned %d", resp.StatusCode)).
			WithDetail(strings.TrimSpace(string(raw)))
	}

	var decoded checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInteractionUnavailable, "interaction response decode")
	}
	return decoded.Findings, nil
}
