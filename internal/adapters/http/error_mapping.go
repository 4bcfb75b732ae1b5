package httpadapter

import (
	"net/http"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicErrorMessage hides internal failure detail from clients; 4xx causes
// are the caller's own input and are echoed back.
func publicErrorMessage(status int, err error) string {
	switch {
	case status == http.StatusServiceUnavailable:
		return "temporarily unavailable"
	case status >= 500:
		return "internal error"
	default:
		return err.Error()
	}
}
