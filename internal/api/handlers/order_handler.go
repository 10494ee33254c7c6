package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"exchange/internal/models"
	"exchange/internal/service"
	"exchange/pkg/utils"
)

// OrderHandler отвечает за пользовательские ордера
//
// Endpoints:
// - POST /api/v1/orders          - создание ордера
// - GET /api/v1/orders           - открытые ордера пользователя
// - GET /api/v1/orders/{id}      - получение конкретного ордера
// - DELETE /api/v1/orders/{id}   - отмена ордера
//
// Аутентификацию пользователей выполняет внешний gateway,
// сюда приходит уже проверенный user_id.
type OrderHandler struct {
	orderService service.OrderServiceInterface
}

// NewOrderHandler создает новый OrderHandler с внедрением зависимостей
func NewOrderHandler(orderService service.OrderServiceInterface) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// CreateOrderRequest структура запроса на создание ордера
type CreateOrderRequest struct {
	UserID   int64  `json:"user_id"`
	PairCode string `json:"pair_code"` // BTC_USDT
	IsBid    bool   `json:"is_bid"`    // true - покупка, false - продажа
	Price    string `json:"price"`     // лимитная цена, десятичная строка
	Amount   string `json:"amount"`    // объём в базовой валюте
}

// CreateOrder создает новый ордер и ставит его на сведение
// POST /api/v1/orders
//
// Request Body:
//
//	{
//	  "user_id": 42,
//	  "pair_code": "BTC_USDT",
//	  "is_bid": true,
//	  "price": "50000.12",
//	  "amount": "0.5"
//	}
//
// Response:
// - 201 Created: ордер принят (сведение асинхронное)
// - 400 Bad Request: невалидные параметры
// - 404 Not Found: пара не существует
// - 409 Conflict: пара не активна
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	if req.UserID <= 0 {
		respondWithError(w, http.StatusBadRequest, "missing_user_id", "user_id is required", "")
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

	order, err := h.orderService.CreateOrder(r.Context(), service.CreateOrderParams{
		UserID:   req.UserID,
		PairCode: req.PairCode,
		IsBid:    req.IsBid,
		Price:    price,
		Amount:   amount,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, order)
}

// GetOrders возвращает открытые ордера пользователя
// GET /api/v1/orders?user_id=42
//
// Response:
// - 200 OK: массив ордеров
// - 400 Bad Request: user_id отсутствует или не число
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromQuery(w, r)
	if !ok {
		return
	}

	orders, err := h.orderService.GetOpenOrders(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	if orders == nil {
		orders = []*models.Order{}
	}
	respondWithJSON(w, http.StatusOK, orders)
}

// GetOrder возвращает один ордер пользователя
// GET /api/v1/orders/{id}?user_id=42
//
// Response:
// - 200 OK: ордер
// - 403 Forbidden: ордер принадлежит другому пользователю
// - 404 Not Found: ордер не найден
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromQuery(w, r)
	if !ok {
		return
	}
	orderID := mux.Vars(r)["id"]

	order, err := h.orderService.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, order)
}

// CancelOrder отменяет ордер пользователя
// DELETE /api/v1/orders/{id}?user_id=42
//
// Уже сведённая часть ордера не откатывается, остаток снимается
// с книги. Объём, заблокированный под внешние сделки, дорабатывается
// через подтверждение внешней биржи.
//
// Response:
// - 200 OK: ордер отменён
// - 403 Forbidden: ордер принадлежит другому пользователю
// - 404 Not Found: ордер не найден
// - 409 Conflict: ордер уже исполнен или отменён
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromQuery(w, r)
	if !ok {
		return
	}
	orderID := mux.Vars(r)["id"]

	if err := h.orderService.CancelOrder(r.Context(), userID, orderID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "order canceled"})
}

// userIDFromQuery извлекает обязательный параметр user_id
func userIDFromQuery(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		respondWithError(w, http.StatusBadRequest, "missing_user_id", "user_id query parameter is required", "")
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a positive number", "")
		return 0, false
	}
	return userID, true
}

// handleServiceError обрабатывает ошибки от сервиса и возвращает соответствующий HTTP статус
func (h *OrderHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrOrderNotFound):
		respondWithError(w, http.StatusNotFound, "order_not_found", "Order not found", "")

	case errors.Is(err, models.ErrPairNotFound):
		respondWithError(w, http.StatusNotFound, "pair_not_found", "Currency pair not found", "")

	case errors.Is(err, service.ErrPairInactive):
		respondWithError(w, http.StatusConflict, "pair_inactive", "Currency pair is not active", "")

	case errors.Is(err, service.ErrNotOrderOwner):
		respondWithError(w, http.StatusForbidden, "not_owner", "Order belongs to another user", "")

	case errors.Is(err, service.ErrOrderInactive):
		respondWithError(w, http.StatusConflict, "order_inactive", "Order is already fulfilled or canceled", "")

	case errors.Is(err, utils.ErrInvalidPairCode),
		errors.Is(err, utils.ErrInvalidPrice),
		errors.Is(err, utils.ErrInvalidAmount),
		errors.Is(err, models.ErrNonPositivePrice),
		errors.Is(err, models.ErrNonPositiveAmount),
		errors.Is(err, models.ErrEmptyPairCode):
		respondWithError(w, http.StatusBadRequest, "invalid_order", "Invalid order parameters", err.Error())

	default:
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}
