package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/messaging-gateway/internal/tenancy"
	"github.com/wolfman30/messaging-gateway/internal/tenant"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

// ConfigStore reads and writes tenant messaging configs.
type ConfigStore interface {
	Get(ctx context.Context, tenantID string) (*tenant.MessagingConfig, error)
	Set(ctx context.Context, cfg *tenant.MessagingConfig) error
}

// MessagingConfigHandler serves the caller's own messaging configuration.
type MessagingConfigHandler struct {
	store  ConfigStore
	logger *logging.Logger
}

func NewMessagingConfigHandler(store ConfigStore, logger *logging.Logger) *MessagingConfigHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &MessagingConfigHandler{store: store, logger: logger}
}

// Get serves GET /api/v1/messaging-config.
func (h *MessagingConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "tenant required", http.StatusUnauthorized)
		return
	}
	cfg, err := h.store.Get(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to load messaging config", "tenant_id", tenantID, "error", err)
		http.Error(w, "failed to load config", http.StatusInternalServerError)
		return
	}
	transport, routeErr := cfg.ActiveTransport()
	resp := map[string]any{"config": cfg, "active_transport": transport}
	if routeErr != nil {
		resp["route_error"] = routeErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Put serves PUT /api/v1/messaging-config. Configs that do not resolve to a
// transport are rejected.
func (h *MessagingConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "tenant required", http.StatusUnauthorized)
		return
	}
	var cfg tenant.MessagingConfig
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	cfg.TenantID = tenantID

	err := h.store.Set(r.Context(), &cfg)
	switch {
	case err == nil:
	case errors.Is(err, tenant.ErrNoTransport), errors.Is(err, tenant.ErrMissingOutboundNumber):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	default:
		h.logger.Error("failed to save messaging config", "tenant_id", tenantID, "error", err)
		http.Error(w, "failed to save config", http.StatusInternalServerError)
		return
	}
	h.logger.Info("messaging config updated", "tenant_id", tenantID, "tier", cfg.Tier, "provider", cfg.Provider)
	writeJSON(w, http.StatusOK, map[string]any{"config": cfg})
}
