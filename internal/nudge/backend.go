package nudge

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
)

// Backend is the text-generation dependency of the Generator.  Complete
// returns the model's raw text output for a prompt.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type httpBackend struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	hc          *http.Client
	timeout     time.Duration
	logger      logging.Logger
}

// NewBackend constructs the production Backend against an OpenAI-compatible
// chat completions API.
func NewBackend(cfg config.NudgeConfig, logger logging.Logger) Backend {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultNudgeTimeout
	}
	return &httpBackend{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		hc:          &http.Client{Timeout: timeout},
		timeout:     timeout,
		logger:      logger.Named("nudge.backend"),
	}
}

type completionRequest struct {
	Model       string              `json:"model"`
	Messages    []completionMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (b *httpBackend) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:       b.model,
		Temperature: b.temperature,
		Messages:    []completionMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeGenerationUnavailable, "generation request encode")
	}

	tctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(tctx, http.MethodPost,
		b.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeGenerationUnavailable, "generation request build")
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.hc.Do(req)
	if err != nil {
		b.logger.Warn("generation request failed", logging.Err(err))
		return "", apperrors.Wrap(err, apperrors.ErrCodeGenerationUnavailable, "generation request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", apperrors.New(apperrors.ErrCodeGenerationUnavailable,
			fmt.Sprintf("generation backend returned %d", resp.StatusCode)).
			WithDetail(strings.TrimSpace(string(raw)))
	}

	var decoded completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeGenerationParse, "generation response decode")
	}
	if len(decoded.Choices) == 0 {
		return "", apperrors.New(apperrors.ErrCodeGenerationParse, "generation response has no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}
