package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OutboundMessage is one text message handed to a transport.
type OutboundMessage struct {
	TenantID string
	// To is a normalized destination: digits, optionally with a leading '+'.
	To   string
	Body string
	// From is the sender number for transports that need one.
	From string
	// Session is the WAHA session name.
	Session string
}

// Transport delivers a message through one provider and returns the provider message id.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg OutboundMessage) (string, error)
}

// ProviderError is a non-2xx answer from a provider API.
type ProviderError struct {
	Provider   string
	StatusCode int
	Detail     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s send failed: %s", e.Provider, e.Detail)
}

// Temporary reports whether retrying later could succeed.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

var errBodyRequired = errors.New("messaging: body required")

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func readLimited(r io.Reader) []byte {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))
	return []byte(strings.TrimSpace(string(body)))
}
