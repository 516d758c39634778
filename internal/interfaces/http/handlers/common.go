// Package handlers implements the HTTP handlers of the prescription API.
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "github.com/dosewise/rxlens/pkg/errors"
)

// ErrorResponse is the standard error body.  Suggestions are populated for
// drug-name validation failures so the client can offer a pick-one recovery
// path.
type ErrorResponse struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Detail      string   `json:"detail,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// respondError maps an error to its HTTP status and writes the structured
// body.  Server-side failures are masked with the code's default message so
// internals never leak to clients.
func respondError(c *gin.Context, err error) {
	var ae *apperrors.AppError
	if !errors.As(err, &ae) {
		ae = apperrors.Internal("internal server error")
	}

	body := ErrorResponse{
		Code:        string(ae.Code),
		Message:     ae.Message,
		Detail:      ae.Detail,
		Suggestions: ae.Suggestions,
	}
	if apperrors.IsServerError(ae.Code) {
		body.Message = apperrors.DefaultMessageForCode(ae.Code)
		body.Detail = ""
	}
	c.AbortWithStatusJSON(apperrors.HTTPStatusForCode(ae.Code), gin.H{"error": body})
}
