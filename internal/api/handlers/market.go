package handlers

import (
	"context"
	"net/http"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/marketgate"
	"github.com/wonny/canslim/internal/provider"
	"github.com/wonny/canslim/pkg/logger"
)

// GateFunc evaluates the market gate against the named provider
type GateFunc func(ctx context.Context, providerName string) (marketgate.Decision, error)

// MarketHandler serves provider and market-gate endpoints
type MarketHandler struct {
	providers *provider.Registry
	gate      GateFunc
	logger    *logger.Logger
}

// NewMarketHandler creates a new market handler
func NewMarketHandler(providers *provider.Registry, gate GateFunc, log *logger.Logger) *MarketHandler {
	return &MarketHandler{
		providers: providers,
		gate:      gate,
		logger:    log,
	}
}

// ProviderInfo describes one registered provider
type ProviderInfo struct {
	Name         string                 `json:"name"`
	Default      bool                   `json:"default"`
	Capabilities contracts.Capabilities `json:"capabilities"`
	Healthy      bool                   `json:"healthy"`
}

// Providers lists registered providers with a live connection test
// GET /api/providers
func (h *MarketHandler) Providers(w http.ResponseWriter, r *http.Request) {
	names := h.providers.Names()
	out := make([]ProviderInfo, 0, len(names))
	for _, name := range names {
		p, err := h.providers.Get(name)
		if err != nil {
			continue
		}
		out = append(out, ProviderInfo{
			Name:         name,
			Default:      name == h.providers.Default(),
			Capabilities: p.Capabilities(),
			Healthy:      p.TestConnection(r.Context()),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// MarketGate evaluates the gate now
// GET /api/market-gate?provider=yahoo
func (h *MarketHandler) MarketGate(w http.ResponseWriter, r *http.Request) {
	d, err := h.gate(r.Context(), r.URL.Query().Get("provider"))
	if err != nil {
		respondErr(w, h.logger, err, "Failed to evaluate market gate")
		return
	}
	respondJSON(w, http.StatusOK, d)
}
