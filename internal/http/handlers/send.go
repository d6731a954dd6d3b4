package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/wolfman30/messaging-gateway/internal/messaging"
	"github.com/wolfman30/messaging-gateway/internal/tenancy"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

// MessageSender is the outbound boundary exposed to API callers.
type MessageSender interface {
	Send(ctx context.Context, tenantID, to, body string) messaging.SendResult
}

// SendHandler serves POST /api/v1/messages for an authenticated tenant.
type SendHandler struct {
	sender MessageSender
	logger *logging.Logger
}

func NewSendHandler(sender MessageSender, logger *logging.Logger) *SendHandler {
	if sender == nil {
		panic("handlers: message sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SendHandler{sender: sender, logger: logger}
}

type sendMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendMessageResponse struct {
	Success    bool   `json:"success"`
	MessageID  string `json:"message_id,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
}

func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "tenant required", http.StatusUnauthorized)
		return
	}

	var req sendMessageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Body) == "" {
		http.Error(w, "to and body are required", http.StatusBadRequest)
		return
	}
	if strings.Trim(messaging.NormalizeDestination(req.To), "+") == "" {
		http.Error(w, "to must be a phone number", http.StatusBadRequest)
		return
	}

	res := h.sender.Send(r.Context(), tenantID, req.To, req.Body)
	if res.Success {
		writeJSON(w, http.StatusOK, sendMessageResponse{Success: true, MessageID: res.MessageID})
		return
	}

	resp := sendMessageResponse{Error: "send failed"}
	status := http.StatusBadGateway
	var serr *messaging.SendError
	if errors.As(res.Error(), &serr) {
		resp.Error = serr.Message
		resp.ErrorKind = string(serr.Kind)
		switch serr.Kind {
		case messaging.KindConfiguration:
			status = http.StatusUnprocessableEntity
		case messaging.KindRateLimited:
			status = http.StatusTooManyRequests
			resp.RetryAfter = int(math.Ceil(serr.RetryAfter.Seconds()))
			if resp.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
			}
		}
	}
	h.logger.Warn("api send failed", "tenant_id", tenantID, "kind", resp.ErrorKind, "status", status)
	writeJSON(w, status, resp)
}
