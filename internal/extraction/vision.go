package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
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

// visionPrompt instructs the model to emit strict JSON and to use the
// unreadable sentinel instead of guessing names it cannot read.
const visionPrompt = `You are reading a prescription photo. Extract every medication as JSON:
{"medications":[{"drug_name":"","dosage":"","frequency":"","dose_timing":"","dosing_source":"","duration":"","route":""}]}
Rules:
- dose_timing is a morning-noon-evening triple like "1-0-1" when stated.
- dosing_source is "prescription" when the frequency is written on the paper.
  If you supply a clinically standard default instead, set it to "ai_generated".
- If you cannot read a drug name, set drug_name to "UNREADABLE". Never guess.
- Output only the JSON object, no prose.`

// VisionStrategy extracts medications with a multimodal model behind an
// OpenAI-compatible chat completions API.
type VisionStrategy struct {
	baseURL string
	apiKey  string
	model   string
	hc      *http.Client
	timeout time.Duration
	logger  logging.Logger
}

// NewVisionStrategy constructs the tier-1 strategy from cfg.
func NewVisionStrategy(cfg config.ExtractionConfig, logger logging.Logger) *VisionStrategy {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	timeout := cfg.VisionTimeout
	if timeout <= 0 {
		timeout = config.DefaultVisionTimeout
	}
	return &VisionStrategy{
		baseURL: strings.TrimRight(cfg.VisionBaseURL, "/"),
		apiKey:  cfg.VisionAPIKey,
		model:   cfg.VisionModel,
		hc:      &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger.Named("vision"),
	}
}

func (s *VisionStrategy) Name() string { return "vision" }

// Chat completion wire types, request side.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

// Response side.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// medicationsEnvelope is the strict shape the model must produce.
type medicationsEnvelope struct {
	Medications []rx.MedicationCandidate `json:"medications"`
}

func (s *VisionStrategy) Extract(ctx context.Context, image []byte) ([]rx.MedicationCandidate, error) {
	payload := chatRequest{
		Model:       s.model,
		Temperature: 0,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: visionPrompt},
				{Type: "image_url", ImageURL: &chatImageURL{
					URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeBackendUnavailable, "vision request encode")
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(tctx, http.MethodPost,
		s.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeBackendUnavailable, "vision request build")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeBackendUnavailable, "vision request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.New(apperrors.ErrCodeBackendUnavailable,
			fmt.Sprintf("vision backend returned %d", resp.StatusCode)).
			WithDetail(strings.TrimSpace(string(raw)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeExtractionParse, "vision response decode")
	}
	if len(decoded.Choices) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeExtractionParse, "vision response has no choices")
	}

	return parseMedicationsJSON(decoded.Choices[0].Message.Content)
}

// parseMedicationsJSON parses the model's content into candidates.  The parse
// is fail-closed: anything that does not decode as the expected envelope is
// an ErrCodeExtractionParse error, never a silently empty result.  A leading
// code fence is the only tolerated decoration.
func parseMedicationsJSON(content string) ([]rx.MedicationCandidate, error) {
	text := strings.TrimSpace(content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	var envelope medicationsEnvelope
	if err := dec.Decode(&envelope); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeExtractionParse,
			"vision output is not the expected JSON shape")
	}

	// Default the dosing source so downstream consumers never see an empty
	// provenance field.
	for i := range envelope.Medications {
		if envelope.Medications[i].DosingSource == "" {
			envelope.Medications[i].DosingSource = rx.DosingFromPrescription
		}
	}
	return envelope.Medications, nil
}
