package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// HTTPError is a provider response with a 4xx/5xx status. The raw body is
// kept so each provider's classifier can decode its own error envelope.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.StatusCode)
}

// DecodeJSON unmarshals the error body into v.
func (e *HTTPError) DecodeJSON(v any) error {
	return json.Unmarshal(e.Body, v)
}

// StatusCode extracts the HTTP status from an error chain, 0 for
// non-HTTP errors.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// isTimeout reports whether err is a socket/connection timeout, the only
// transport failure the engine retries.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
