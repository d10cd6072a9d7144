package fetcher

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Adapter error taxonomy. Callers classify with errors.Is; the
// scheduler's next tick is the only retry mechanism.
var (
	ErrRateLimited       = errors.New("source rate limited")
	ErrUnauthorized      = errors.New("source credentials rejected")
	ErrUnavailable       = errors.New("source unavailable")
	ErrMalformedResponse = errors.New("source returned malformed response")
)

func classifyStatus(source string, status int, payload []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s (%d): %w", source, status, ErrRateLimited)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s (%d): %w", source, status, ErrUnauthorized)
	case status >= 500:
		return fmt.Errorf("%s (%d): %w", source, status, ErrUnavailable)
	default:
		detail := strings.TrimSpace(string(payload))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		if detail != "" {
			return fmt.Errorf("%s (%d): %s: %w", source, status, detail, ErrMalformedResponse)
		}
		return fmt.Errorf("%s (%d): %w", source, status, ErrMalformedResponse)
	}
}

func malformed(source string, err error) error {
	return fmt.Errorf("%s: %v: %w", source, err, ErrMalformedResponse)
}

func unavailable(source string, err error) error {
	return fmt.Errorf("%s: %v: %w", source, err, ErrUnavailable)
}
