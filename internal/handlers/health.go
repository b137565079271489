package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Davincible/llm-bridge/internal/converters"
	"github.com/Davincible/llm-bridge/internal/providers"
)

type HealthHandler struct {
	registry *providers.Registry
	factory  *converters.Factory
	logger   *slog.Logger
}

func NewHealthHandler(registry *providers.Registry, factory *converters.Factory, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		registry: registry,
		factory:  factory,
		logger:   logger,
	}
}

// ServeHTTP reports liveness together with what the bridge can route.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":            "ok",
		"providers":         h.registry.List(),
		"converters":        h.factory.ListConverters(),
		"streaming_formats": h.factory.ListStreamingConverters(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to write health check response", "error", err)
	}
}
