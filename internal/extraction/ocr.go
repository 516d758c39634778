package extraction

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

// OCRStrategy wraps the OCR engine and pattern-matches the recovered text.
// As a chain tier it is the deterministic fallback that needs no language
// model; the text-model tier reuses its engine through readText.
type OCRStrategy struct {
	baseURL       string
	hc            *http.Client
	timeout       time.Duration
	minTextLength int
	logger        logging.Logger
}

// NewOCRStrategy constructs the OCR strategy from cfg.
func NewOCRStrategy(cfg config.ExtractionConfig, logger logging.Logger) *OCRStrategy {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	timeout := cfg.OCRTimeout
	if timeout <= 0 {
		timeout = config.DefaultOCRTimeout
	}
	minLen := cfg.MinTextLength
	if minLen <= 0 {
		minLen = config.DefaultMinTextLength
	}
	return &OCRStrategy{
		baseURL:       strings.TrimRight(cfg.OCRBaseURL, "/"),
		hc:            &http.Client{Timeout: timeout},
		timeout:       timeout,
		minTextLength: minLen,
		logger:        logger.Named("ocr"),
	}
}

func (s *OCRStrategy) Name() string { return "ocr" }

type ocrResponse struct {
	Text string `json:"text"`
}

// Extract OCRs the image and pattern-matches the text line by line.
func (s *OCRStrategy) Extract(ctx context.Context, image []byte) ([]rx.MedicationCandidate, error) {
	text, err := s.readText(ctx, image)
	if err != nil {
		return nil, err
	}
	return parsePrescriptionText(text), nil
}

// readText runs preprocessing, the OCR engine, and the minimum-length gate.
// Text shorter than the configured minimum means the photo itself is
// unusable, which is terminal for the whole chain.
func (s *OCRStrategy) readText(ctx context.Context, image []byte) (string, error) {
	prepared, err := preprocessForOCR(image)
	if err != nil {
		return "", err
	}

	text, err := s.recognize(ctx, prepared)
	if err != nil {
		return "", err
	}

	if len(strings.TrimSpace(text)) < s.minTextLength {
		return "", apperrors.UnreadableInput("too little text recovered from image").
			WithSuggestions([]string{
				"Retake the photo in better lighting",
				"Hold the camera directly above the prescription",
				"Make sure the full page is in frame",
			})
	}
	return text, nil
}

// recognize posts the prepared image to the OCR engine.
func (s *OCRStrategy) recognize(ctx context.Context, image []byte) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(tctx, http.MethodPost,
		s.baseURL+"/ocr", bytes.NewReader(image))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeBackendUnavailable, "ocr request build")
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		s.logger.Warn("ocr request failed", logging.Err(err))
		return "", apperrors.Wrap(err, apperrors.ErrCodeBackendUnavailable, "ocr request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", apperrors.New(apperrors.ErrCodeBackendUnavailable,
			fmt.Sprintf("ocr engine returned %d", resp.StatusCode)).
			WithDetail(strings.TrimSpace(string(raw)))
	}

	var decoded ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeExtractionParse, "ocr response decode")
	}
	return decoded.Text, nil
}
