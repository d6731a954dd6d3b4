package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wolfman30/messaging-gateway/internal/tenancy"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

func TestRequestLoggerRecordsStatusAndTenant(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("info", &buf)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", nil)
	req = req.WithContext(tenancy.WithTenantID(req.Context(), "t1"))
	req.Header.Set("X-Request-ID", "req-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected one json line, got %q: %v", buf.String(), err)
	}
	if line["status"] != float64(http.StatusAccepted) {
		t.Fatalf("expected status 202, got %v", line["status"])
	}
	if line["tenant_id"] != "t1" || line["request_id"] != "req-1" {
		t.Fatalf("unexpected attributes: %v", line)
	}
	if line["bytes"] != float64(2) {
		t.Fatalf("expected 2 bytes written, got %v", line["bytes"])
	}
}
