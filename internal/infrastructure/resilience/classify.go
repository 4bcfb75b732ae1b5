package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

// StatusError is a non-2xx reply from an HTTP dependency.
type StatusError struct {
	Service    string
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Service, e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Service, e.Operation, e.StatusCode, body)
}

// ClassifyTransport retries network errors, open circuits and transient HTTP
// statuses. Caller cancellation is neither retried nor held against the
// dependency.
func ClassifyTransport(err error) Verdict {
	switch {
	case err == nil:
		return Verdict{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Verdict{}
	case IsCircuitOpen(err):
		return Verdict{Retry: true, Trip: true}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		transient := IsTransientStatus(statusErr.StatusCode)
		return Verdict{Retry: transient, Trip: transient}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Verdict{Retry: true, Trip: true}
	}
	return Verdict{Trip: true}
}

func IsTransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// MarkTemporary tags retry-worthy failures with domain.ErrTemporary so the
// HTTP layer can answer 503 instead of 500.
func MarkTemporary(operation string, err error, classify Classifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classify == nil {
		classify = ClassifyTransport
	}
	if classify(err).Retry {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
