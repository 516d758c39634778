package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
// Codes are prefixed by the module that owns the failure category so that
// metrics and log queries can aggregate per module.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_005"
	ErrCodeTimeout            ErrorCode = "COMMON_006"
	ErrCodeValidation         ErrorCode = "COMMON_007"
	ErrCodeSerialization      ErrorCode = "COMMON_008"
	ErrCodeDatabaseError      ErrorCode = "COMMON_009"
	ErrCodeCacheError         ErrorCode = "COMMON_010"
	ErrCodeUnknown            ErrorCode = "COMMON_099"

	CodeOK ErrorCode = "OK"
)

// Extraction module error codes
const (
	// ErrCodeUnreadableInput marks an image from which no usable text could
	// be obtained (blur, glare, OCR output below the minimum length).  The
	// UI surfaces a "please retake the photo" prompt for this code.
	ErrCodeUnreadableInput ErrorCode = "EXT_001"

	// ErrCodeNoMedicationsFound marks an extraction that produced text but
	// no plausible medication lines after all chain stages were exhausted.
	ErrCodeNoMedicationsFound ErrorCode = "EXT_002"

	// ErrCodeBackendUnavailable marks a vision or OCR backend that could not
	// be reached; reported only when every fallback stage also failed.
	ErrCodeBackendUnavailable ErrorCode = "EXT_003"

	// ErrCodeExtractionParse marks a backend response that could not be
	// parsed into the structured medication schema.
	ErrCodeExtractionParse ErrorCode = "EXT_004"
)

// Terminology / name-validation module error codes
const (
	// ErrCodeNameUnrecognized marks a drug name that failed both exact and
	// fuzzy validation.  The AppError carries suggestions when available.
	ErrCodeNameUnrecognized ErrorCode = "TERM_001"

	// ErrCodeTerminologyUnavailable marks a terminology-service outage.
	// Distinct from ErrCodeNameUnrecognized so that a network failure is
	// never reported as "not a real drug".
	ErrCodeTerminologyUnavailable ErrorCode = "TERM_002"
)

// Interaction / safety module error codes
const (
	ErrCodeInteractionUnavailable ErrorCode = "SAFE_001"
	ErrCodeDosageParse            ErrorCode = "SAFE_002"
)

// Nudge generation module error codes
const (
	ErrCodeGenerationUnavailable ErrorCode = "GEN_001"
	ErrCodeGenerationParse       ErrorCode = "GEN_002"
)

// errorCodeHTTPStatus maps ErrorCodes to HTTP status codes for the handler
// layer.  Codes not listed map to 500.
var errorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,

	ErrCodeUnreadableInput:    http.StatusUnprocessableEntity,
	ErrCodeNoMedicationsFound: http.StatusUnprocessableEntity,
	ErrCodeBackendUnavailable: http.StatusBadGateway,
	ErrCodeExtractionParse:    http.StatusBadGateway,

	ErrCodeNameUnrecognized:       http.StatusUnprocessableEntity,
	ErrCodeTerminologyUnavailable: http.StatusServiceUnavailable,

	ErrCodeInteractionUnavailable: http.StatusServiceUnavailable,
	ErrCodeDosageParse:            http.StatusUnprocessableEntity,

	ErrCodeGenerationUnavailable: http.StatusServiceUnavailable,
	ErrCodeGenerationParse:       http.StatusBadGateway,
}

// errorCodeMessage maps ErrorCodes to default messages.
var errorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",

	ErrCodeUnreadableInput:    "prescription image is unreadable",
	ErrCodeNoMedicationsFound: "no medications could be extracted",
	ErrCodeBackendUnavailable: "extraction backend unavailable",
	ErrCodeExtractionParse:    "failed to parse extraction response",

	ErrCodeNameUnrecognized:       "drug name not recognized",
	ErrCodeTerminologyUnavailable: "terminology service unavailable",

	ErrCodeInteractionUnavailable: "interaction service unavailable",
	ErrCodeDosageParse:            "failed to parse dosage",

	ErrCodeGenerationUnavailable: "nudge generation unavailable",
	ErrCodeGenerationParse:       "failed to parse generated card",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := errorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
