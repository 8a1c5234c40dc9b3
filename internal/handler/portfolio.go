package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finsight-ai/advisor-platform/internal/chat"
	"github.com/finsight-ai/advisor-platform/internal/middleware"
	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/internal/portfolio"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
)

// PortfolioHandler handles the holdings blob endpoints.
type PortfolioHandler struct {
	manager *chat.Manager
	store   *portfolio.Store
	logger  *logger.Logger
}

// NewPortfolioHandler creates a new portfolio handler.
func NewPortfolioHandler(manager *chat.Manager, store *portfolio.Store, log *logger.Logger) *PortfolioHandler {
	return &PortfolioHandler{manager: manager, store: store, logger: log}
}

func (h *PortfolioHandler) scope(r *http.Request) (model.Actor, string) {
	clientID := middleware.GetClientID(r.Context())
	engine := h.manager.Engine(clientID)
	return engine.Sessions.Actor(), clientID
}

// Get handles GET /api/v1/portfolio
func (h *PortfolioHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, clientID := h.scope(r)
	pf, err := h.store.Get(r.Context(), actor, clientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load portfolio")
		return
	}
	writeJSON(w, http.StatusOK, pf)
}

// Replace handles PUT /api/v1/portfolio
func (h *PortfolioHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var pf model.Portfolio
	if err := json.NewDecoder(r.Body).Decode(&pf); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, st := range pf.Stocks {
		if err := middleware.ValidateSymbol(st.Symbol); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	actor, clientID := h.scope(r)
	if err := h.store.Replace(r.Context(), actor, clientID, pf); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save portfolio")
		return
	}
	writeJSON(w, http.StatusOK, pf)
}

// AddStock handles POST /api/v1/portfolio/stocks
func (h *PortfolioHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	var stock model.PortfolioStock
	if err := json.NewDecoder(r.Body).Decode(&stock); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateSymbol(stock.Symbol); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if stock.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	actor, clientID := h.scope(r)
	pf, err := h.store.Add(r.Context(), actor, clientID, stock)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save portfolio")
		return
	}
	writeJSON(w, http.StatusOK, pf)
}

// RemoveStock handles DELETE /api/v1/portfolio/stocks/{symbol}
func (h *PortfolioHandler) RemoveStock(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if err := middleware.ValidateSymbol(symbol); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	actor, clientID := h.scope(r)
	pf, err := h.store.Remove(r.Context(), actor, clientID, symbol)
	if err != nil {
		if errors.Is(err, portfolio.ErrUnknownSymbol) {
			writeError(w, http.StatusNotFound, "symbol not in portfolio")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save portfolio")
		return
	}
	writeJSON(w, http.StatusOK, pf)
}
