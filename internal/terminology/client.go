// Package terminology provides the client for the external drug terminology
// service.  The validator uses it to resolve free-text drug names to
// canonical concepts and to fetch spelling candidates for unrecognised names.
package terminology

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dosewise/rxlens/internal/config"
	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
)

// Concept is a canonical drug concept returned by the terminology service.
type Concept struct {
	CanonicalID   string   `json:"canonical_id"`
	CanonicalName string   `json:"canonical_name"`
	Synonyms      []string `json:"synonyms,omitempty"`
}

// Candidate is one approximate-match candidate with the service's own
// relevance score.
type Candidate struct {
	CanonicalID string  `json:"canonical_id"`
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
}

// Client abstracts the terminology service.
//
// Lookup resolves an exact or synonym match: found=false with a nil error
// means the service answered and the name is simply unknown.  Any transport
// or server failure is returned as an ErrCodeTerminologyUnavailable error so
// callers can distinguish "unknown drug" from "cannot know right now".
type Client interface {
	Lookup(ctx context.Context, name string) (*Concept, bool, error)
	ApproximateSearch(ctx context.Context, name string, maxResults int) ([]Candidate, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Rate limiter
// ─────────────────────────────────────────────────────────────────────────────

// rateLimiter is a token-bucket limiter refilled at a fixed interval.  The
// public terminology APIs throttle aggressively; staying under their limit is
// cheaper than handling 429 retries.
type rateLimiter struct {
	tokens   chan struct{}
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

func newRateLimiter(rps float64) *rateLimiter {
	if rps <= 0 {
		rps = 1
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	rl := &rateLimiter{
		tokens:   make(chan struct{}, burst),
		interval: time.Duration(float64(time.Second) / rps),
		stop:     make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		rl.tokens <- struct{}{}
	}
	go func() {
		ticker := time.NewTicker(rl.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case rl.tokens <- struct{}{}:
				default:
				}
			case <-rl.stop:
				return
			}
		}
	}()
	return rl
}

func (rl *rateLimiter) Acquire(ctx context.Context) error {
	select {
	case <-rl.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rl *rateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// ─────────────────────────────────────────────────────────────────────────────
// HTTP client
// ─────────────────────────────────────────────────────────────────────────────

type httpClient struct {
	baseURL string
	hc      *http.Client
	timeout time.Duration
	limiter *rateLimiter
	logger  logging.Logger
}

// NewClient constructs the production terminology Client from cfg.
func NewClient(cfg config.TerminologyConfig, logger logging.Logger) Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTerminologyTimeout
	}
	return &httpClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
		timeout: timeout,
		limiter: newRateLimiter(cfg.RatePerSecond),
		logger:  logger.Named("terminology"),
	}
}

// lookupResponse is the wire shape of GET /drugs/lookup.
type lookupResponse struct {
	Found   bool     `json:"found"`
	Concept *Concept `json:"concept,omitempty"`
}

// approximateResponse is the wire shape of GET /drugs/approximate.
type approximateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

func (c *httpClient) Lookup(ctx context.Context, name string) (*Concept, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, apperrors.InvalidParam("drug name is empty")
	}

	var resp lookupResponse
	endpoint := c.baseURL + "/drugs/lookup?name=" + url.QueryEscape(name)
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, false, err
	}
	if !resp.Found || resp.Concept == nil {
		return nil, false, nil
	}
	return resp.Concept, true, nil
}

func (c *httpClient) ApproximateSearch(ctx context.Context, name string, maxResults int) ([]Candidate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.InvalidParam("drug name is empty")
	}
	if maxResults < 1 {
		maxResults = config.DefaultMaxSuggestions
	}

	var resp approximateResponse
	endpoint := c.baseURL + "/drugs/approximate?name=" + url.QueryEscape(name) +
		"&max=" + strconv.Itoa(maxResults)
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) > maxResults {
		resp.Candidates = resp.Candidates[:maxResults]
	}
	return resp.Candidates, nil
}

// getJSON performs a rate-limited GET with a per-call timeout and decodes the
// JSON body into out.  Every failure mode maps to TerminologyUnavailable.
func (c *httpClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTerminologyUnavailable, "terminology rate limiter")
	}

	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(tctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTerminologyUnavailable, "terminology request build")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.logger.Warn("terminology request failed",
			logging.String("endpoint", endpoint), logging.Err(err))
		return apperrors.Wrap(err, apperrors.ErrCodeTerminologyUnavailable, "terminology request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("terminology returned non-200",
			logging.Int("status", resp.StatusCode),
			logging.Duration("elapsed", time.Since(start)))
		return apperrors.New(apperrors.ErrCodeTerminologyUnavailable,
			fmt.Sprintf("terminology service returned %d", resp.StatusCode)).
			WithDetail(strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTerminologyUnavailable, "terminology response decode")
	}
	return nil
}

// Close releases the limiter's refill goroutine.
func (c *httpClient) Close() {
	c.limiter.Close()
}
