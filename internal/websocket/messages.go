package websocket

import (
	"time"

	"exchange/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeOrderbook - снапшот книги заявок по паре.
	// Отправляется после каждого изменения пула (создание, отмена,
	// сведение, внешний расчёт).
	MessageTypeOrderbook MessageType = "orderbook"

	// MessageTypeDeals - новые сделки, рассчитанные движком.
	// Отправляется пачкой по итогам одного прохода матчинга.
	MessageTypeDeals MessageType = "deals"
)

// OrderbookMessage - снапшот книги заявок одной пары.
// Ордера без доступного объёма в снапшот не попадают.
type OrderbookMessage struct {
	Type      MessageType    `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	PairCode  string         `json:"pair_code"`
	Bids      []models.Order `json:"bids"`
	Asks      []models.Order `json:"asks"`
}

// DealsMessage - пакет новых сделок
type DealsMessage struct {
	Type      MessageType    `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Deals     []*models.Deal `json:"deals"`
}
