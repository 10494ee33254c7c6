package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"exchange/internal/matching"
	"exchange/internal/models"
	"exchange/internal/service"
	"exchange/pkg/utils"
)

// LiquidityHandler отвечает за фид внешней ликвидности
//
// Endpoints (защищены админским токеном):
// - POST /api/v1/liquidity/orders              - импорт ордера внешней биржи
// - PUT /api/v1/liquidity/orders/{id}          - изменение объёма импортированного ордера
// - DELETE /api/v1/liquidity/orders/{id}       - удаление импортированного ордера
// - POST /api/v1/liquidity/trade-results       - подтверждение внешней сделки
// - DELETE /api/v1/liquidity/orderbooks        - удаление стакана (exchange, pair)
//
// Каждый вызов фида обновляет его heartbeat: стаканы замолчавших
// фидов удаляются из пулов автоматически.
type LiquidityHandler struct {
	liquidityService service.LiquidityServiceInterface
}

// NewLiquidityHandler создает новый LiquidityHandler с внедрением зависимостей
func NewLiquidityHandler(liquidityService service.LiquidityServiceInterface) *LiquidityHandler {
	return &LiquidityHandler{
		liquidityService: liquidityService,
	}
}

// ImportOrderRequest структура запроса на импорт ордера
type ImportOrderRequest struct {
	OrderID  string `json:"order_id"`
	Exchange string `json:"exchange"` // binance, kraken, bitfinex
	PairCode string `json:"pair_code"`
	IsBid    bool   `json:"is_bid"`
	Price    string `json:"price"`
	Amount   string `json:"amount"`
}

// UpdateOrderRequest структура запроса на изменение объёма
type UpdateOrderRequest struct {
	Exchange string `json:"exchange"`
	PairCode string `json:"pair_code"`
	Amount   string `json:"amount"`
}

// ImportOrder зеркалирует ордер внешней биржи в книгу
// POST /api/v1/liquidity/orders
//
// Response:
// - 202 Accepted: ордер поставлен в очередь пула
// - 400 Bad Request: невалидные параметры или неизвестная биржа
func (h *LiquidityHandler) ImportOrder(w http.ResponseWriter, r *http.Request) {
	var req ImportOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	if req.OrderID == "" {
		respondWithError(w, http.StatusBadRequest, "missing_order_id", "order_id is required", "")
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_price", "price must be a decimal string", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_amount", "amount must be a decimal string", err.Error())
		return
	}

	err = h.liquidityService.ImportOrder(r.Context(), service.ImportOrderParams{
		OrderID:  req.OrderID,
		Exchange: req.Exchange,
		PairCode: req.PairCode,
		IsBid:    req.IsBid,
		Price:    price,
		Amount:   amount,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, SuccessResponse{Message: "order queued"})
}

// UpdateOrder изменяет объём импортированного ордера
// PUT /api/v1/liquidity/orders/{id}
//
// Новый объём не может опуститься ниже уже исполненной и
// заблокированной части: пул поднимет его до потреблённого объёма.
func (h *LiquidityHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var req UpdateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_amount", "amount must be a decimal string", err.Error())
		return
	}

	if err := h.liquidityService.UpdateOrder(r.Context(), req.Exchange, req.PairCode, orderID, amount); err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, SuccessResponse{Message: "update queued"})
}

// DeleteOrder удаляет импортированный ордер из книги
// DELETE /api/v1/liquidity/orders/{id}?exchange=binance&pair_code=BTC_USDT
//
// Ордер запоминается как удалённый: если фид привезёт его создание
// позже удаления, создание будет подавлено.
func (h *LiquidityHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	exchange := r.URL.Query().Get("exchange")
	pairCode := r.URL.Query().Get("pair_code")

	if err := h.liquidityService.DeleteOrder(r.Context(), exchange, pairCode, orderID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, SuccessResponse{Message: "delete queued"})
}

// ApplyTradeResult применяет подтверждение внешней сделки
// POST /api/v1/liquidity/trade-results
//
// Request Body:
//
//	{
//	  "pair_code": "BTC_USDT",
//	  "bid_id": "...",
//	  "ask_id": "...",
//	  "fulfilled": "0.5",
//	  "unfulfilled": "0.1"
//	}
//
// Вызов синхронный: ответ приходит после применения результата пулом.
//
// Response:
// - 200 OK: результат применён (с id сделки и теневого ордера, если есть)
// - 404 Not Found: ордера блокировки не найдены
// - 504 Gateway Timeout: пул не успел применить результат
func (h *LiquidityHandler) ApplyTradeResult(w http.ResponseWriter, r *http.Request) {
	var res models.ExternalTradeResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	result, err := h.liquidityService.ApplyExternalResult(r.Context(), &res)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// RemoveOrderbook удаляет все ордера биржи по паре
// DELETE /api/v1/liquidity/orderbooks?exchange=binance&pair_code=BTC_USDT
func (h *LiquidityHandler) RemoveOrderbook(w http.ResponseWriter, r *http.Request) {
	exchange := r.URL.Query().Get("exchange")
	pairCode := r.URL.Query().Get("pair_code")

	if err := h.liquidityService.RemoveOrderbook(r.Context(), exchange, pairCode); err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, SuccessResponse{Message: "orderbook removal queued"})
}

func (h *LiquidityHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrLocalExchange),
		errors.Is(err, service.ErrUnknownExchange),
		errors.Is(err, utils.ErrInvalidPairCode),
		errors.Is(err, utils.ErrInvalidPrice),
		errors.Is(err, utils.ErrInvalidAmount),
		errors.Is(err, models.ErrEmptyPairCode),
		errors.Is(err, models.ErrNonPositivePrice),
		errors.Is(err, models.ErrNonPositiveAmount):
		respondWithError(w, http.StatusBadRequest, "invalid_feed_request", "Invalid liquidity feed request", err.Error())

	case errors.Is(err, matching.ErrExternalOrderPair):
		respondWithError(w, http.StatusNotFound, "orders_not_found", "Trade result references unknown orders", "")

	case errors.Is(err, matching.ErrStaleExternalResult):
		respondWithError(w, http.StatusConflict, "stale_trade_result", "Trade result arrived after the block was released", "")

	case errors.Is(err, matching.ErrExternalResultWait):
		respondWithError(w, http.StatusGatewayTimeout, "apply_timeout", "Timed out waiting for the matching pool", "")

	case errors.Is(err, matching.ErrPoolStopped):
		respondWithError(w, http.StatusServiceUnavailable, "pool_stopped", "Matching pool is shutting down", "")

	default:
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}
