package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"exchange/internal/models"
	"exchange/internal/service"
)

// OrderbookHandler отвечает за публичные рыночные данные
//
// Endpoints:
// - GET /api/v1/pairs                       - список торгуемых пар
// - GET /api/v1/orderbook/{pair}/prices     - лучшие цены пары
// - GET /api/v1/orderbook/{pair}/deals      - последние сделки пары
type OrderbookHandler struct {
	orderService service.OrderServiceInterface
}

// NewOrderbookHandler создает новый OrderbookHandler с внедрением зависимостей
func NewOrderbookHandler(orderService service.OrderServiceInterface) *OrderbookHandler {
	return &OrderbookHandler{
		orderService: orderService,
	}
}

// GetPairs возвращает список активных валютных пар
// GET /api/v1/pairs
func (h *OrderbookHandler) GetPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.orderService.ListPairs(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to get pairs", err.Error())
		return
	}

	if pairs == nil {
		pairs = []*models.CurrencyPair{}
	}
	respondWithJSON(w, http.StatusOK, pairs)
}

// GetPrices возвращает лучшие цены пары
// GET /api/v1/orderbook/{pair}/prices
//
// Нулевое значение цены означает пустую сторону книги.
// Полностью заблокированные ордера в лучших ценах не участвуют.
//
// Response:
//
//	{"pair_code": "BTC_USDT", "bid_max": "50000.1", "ask_min": "50001"}
func (h *OrderbookHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	pairCode := mux.Vars(r)["pair"]

	prices, err := h.orderService.GetPairPrices(r.Context(), pairCode)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, prices)
}

// GetRecentDeals возвращает последние сделки пары
// GET /api/v1/orderbook/{pair}/deals?limit=50
//
// Query Parameters:
// - limit: максимум сделок в ответе (по умолчанию 50, максимум 500)
func (h *OrderbookHandler) GetRecentDeals(w http.ResponseWriter, r *http.Request) {
	pairCode := mux.Vars(r)["pair"]

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondWithError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative number", "")
			return
		}
		limit = parsed
	}

	deals, err := h.orderService.GetRecentDeals(r.Context(), pairCode, limit)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	if deals == nil {
		deals = []*models.Deal{}
	}
	respondWithJSON(w, http.StatusOK, deals)
}

func (h *OrderbookHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrPairNotFound):
		respondWithError(w, http.StatusNotFound, "pair_not_found", "Currency pair not found", "")
	default:
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}
