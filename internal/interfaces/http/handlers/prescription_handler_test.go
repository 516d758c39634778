package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

type mockService struct {
	analyzeFunc    func(ctx context.Context, image []byte, patient rx.PatientContext, forceRefresh bool) (*rx.AnalysisResult, error)
	confirmFunc    func(ctx context.Context, imageHash string, meds []rx.MedicationCandidate, patient rx.PatientContext) ([]rx.ConfirmedMedication, error)
	invalidateFunc func(ctx context.Context, imageHash string) error
}

func (m *mockService) Analyze(ctx context.Context, image []byte, patient rx.PatientContext, forceRefresh bool) (*rx.AnalysisResult, error) {
	return m.analyzeFunc(ctx, image, patient, forceRefresh)
}

func (m *mockService) Confirm(ctx context.Context, imageHash string, meds []rx.MedicationCandidate, patient rx.PatientContext) ([]rx.ConfirmedMedication, error) {
	return m.confirmFunc(ctx, imageHash, meds, patient)
}

func (m *mockService) InvalidateCache(ctx context.Context, imageHash string) error {
	return m.invalidateFunc(ctx, imageHash)
}

func newTestRouter(t *testing.T, service PrescriptionService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h, err := NewPrescriptionHandler(service, nil)
	require.NoError(t, err)

	r := gin.New()
	r.POST("/analyze", h.Analyze)
	r.POST("/confirm", h.Confirm)
	r.DELETE("/prescriptions/:hash/cache", h.InvalidateCache)
	return r
}

func multipartBody(t *testing.T, fields map[string]string, photo []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if photo != nil {
		fw, err := w.CreateFormFile("photo", "rx.jpg")
		require.NoError(t, err)
		_, err = fw.Write(photo)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestAnalyzeMultipartUpload(t *testing.T) {
	var gotImage []byte
	var gotPatient rx.PatientContext
	var gotRefresh bool
	r := newTestRouter(t, &mockService{
		analyzeFunc: func(_ context.Context, image []byte, patient rx.PatientContext, forceRefresh bool) (*rx.AnalysisResult, error) {
			gotImage, gotPatient, gotRefresh = image, patient, forceRefresh
			return &rx.AnalysisResult{ImageHash: "abc123"}, nil
		},
	})

	body, contentType := multipartBody(t, map[string]string{
		"patient_name":       "Asha",
		"patient_age":        "70",
		"lifestyle":          "active",
		"concerns":           "sleep, memory",
		"active_medications": "Warfarin, Metformin",
		"force_refresh":      "true",
	}, []byte("jpeg-bytes"))

	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("jpeg-bytes"), gotImage)
	assert.Equal(t, "Asha", gotPatient.Name)
	assert.Equal(t, 70, gotPatient.Age)
	assert.Equal(t, []string{"sleep", "memory"}, gotPatient.Concerns)
	assert.Equal(t, []string{"Warfarin", "Metformin"}, gotPatient.ActiveMedications)
	assert.True(t, gotRefresh)

	var resp rx.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc123", resp.ImageHash)
}

func TestAnalyzeJSONUpload(t *testing.T) {
	var gotImage []byte
	r := newTestRouter(t, &mockService{
		analyzeFunc: func(_ context.Context, image []byte, _ rx.PatientContext, _ bool) (*rx.AnalysisResult, error) {
			gotImage = image
			return &rx.AnalysisResult{ImageHash: "def456"}, nil
		},
	})

	payload, err := json.Marshal(map[string]interface{}{
		"image_base64": base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")),
		"patient":      rx.PatientContext{Name: "Ravi", Age: 8},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("jpeg-bytes"), gotImage)
}

func TestAnalyzeMissingPhoto(t *testing.T) {
	r := newTestRouter(t, &mockService{
		analyzeFunc: func(context.Context, []byte, rx.PatientContext, bool) (*rx.AnalysisResult, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	})

	body, contentType := multipartBody(t, map[string]string{"patient_name": "Asha"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeUnreadableImageStatus(t *testing.T) {
	r := newTestRouter(t, &mockService{
		analyzeFunc: func(context.Context, []byte, rx.PatientContext, bool) (*rx.AnalysisResult, error) {
			return nil, apperrors.UnreadableInput("image too blurry").
				WithSuggestions([]string{"Retake the photo in better light"})
		},
	})

	body, contentType := multipartBody(t, nil, []byte("blurry"))
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, apperrors.HTTPStatusForCode(apperrors.ErrCodeUnreadableInput), rec.Code)

	var resp struct {
		Error ErrorResponse `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(apperrors.ErrCodeUnreadableInput), resp.Error.Code)
	assert.Equal(t, []string{"Retake the photo in better light"}, resp.Error.Suggestions)
}

func TestConfirmRoundTrip(t *testing.T) {
	r := newTestRouter(t, &mockService{
		confirmFunc: func(_ context.Context, imageHash string, meds []rx.MedicationCandidate, _ rx.PatientContext) ([]rx.ConfirmedMedication, error) {
			require.Equal(t, "abc123", imageHash)
			require.Len(t, meds, 1)
			return []rx.ConfirmedMedication{{
				ExtractedData: meds[0],
				SafetyFlag:    rx.FlagGreen,
				PatientCard:   rx.NudgeCard{Headline: "Your medicine: Paracetamol"},
			}}, nil
		},
	})

	payload, err := json.Marshal(confirmRequest{
		ImageHash: "abc123",
		Medications: []rx.MedicationCandidate{{
			DrugName: "Paracetamol", Dosage: "500mg", DoseTiming: "1-0-1",
		}},
		Patient: rx.PatientContext{Name: "Asha", Age: 70},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/confirm", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp confirmResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Medications, 1)
	assert.Equal(t, rx.FlagGreen, resp.Medications[0].SafetyFlag)
}

func TestConfirmMissingHash(t *testing.T) {
	r := newTestRouter(t, &mockService{
		confirmFunc: func(context.Context, string, []rx.MedicationCandidate, rx.PatientContext) ([]rx.ConfirmedMedication, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/confirm", bytes.NewBufferString(`{"medications":[{}]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidateCacheEndpoint(t *testing.T) {
	var invalidated string
	r := newTestRouter(t, &mockService{
		invalidateFunc: func(_ context.Context, imageHash string) error {
			invalidated = imageHash
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodDelete, "/prescriptions/abc123/cache", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "abc123", invalidated)
}
