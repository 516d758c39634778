package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dosewise/rxlens/internal/config"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
)

func newOCR(t *testing.T, handler http.HandlerFunc) *OCRStrategy {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOCRStrategy(config.ExtractionConfig{
		OCRBaseURL:    srv.URL,
		MinTextLength: 5,
	}, nil)
}

func ocrReply(text string) []byte {
	b, _ := json.Marshal(map[string]string{"text": text})
	return b
}

func TestOCRExtract(t *testing.T) {
	photo := encodePNG(t, 100, 60)

	o := newOCR(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocr", r.URL.Path)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		_, _ = w.Write(ocrReply("Tab Amoxicillin 500mg 1-0-1 x 5 days"))
	})

	meds, err := o.Extract(context.Background(), photo)
	require.NoError(t, err)
	require.Len(t, meds, 1)
	assert.Equal(t, "Amoxicillin", meds[0].DrugName)
}

func TestOCRExtract_ShortTextIsUnreadable(t *testing.T) {
	o := newOCR(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(ocrReply("ab"))
	})

	_, err := o.Extract(context.Background(), encodePNG(t, 100, 60))
	require.Error(t, err)
	assert.True(t, apperrors.IsUnreadableInput(err))
	assert.NotEmpty(t, apperrors.GetSuggestions(err))
}

func TestOCRExtract_EngineDown(t *testing.T) {
	o := newOCR(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "engine crashed", http.StatusInternalServerError)
	})

	_, err := o.Extract(context.Background(), encodePNG(t, 100, 60))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBackendUnavailable))
}

func TestOCRExtract_UndecodableImage(t *testing.T) {
	o := newOCR(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected for an undecodable image")
	})

	_, err := o.Extract(context.Background(), []byte("garbage"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnreadableInput))
}
