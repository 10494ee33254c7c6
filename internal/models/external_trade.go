package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExternalTrade - ожидающая подтверждения кросс-биржевая сделка.
//
// Создаётся в момент сведения локального ордера с импортированным
// (вместо немедленного Deal). Удаляется когда внешняя система подтверждает
// исполнение (ExternalTradeResult) или по таймауту (auto-unblock).
type ExternalTrade struct {
	OrderID     string    `json:"order_id" db:"order_id"`
	PairCode    string    `json:"pair_code" db:"pair_code"`
	DateBlocked time.Time `json:"date_blocked" db:"date_blocked"`
}

// ExternalTradeResult - подтверждение от внешнего источника ликвидности,
// что ранее заблокированное сведение рассчиталось (частично или полностью).
//
// Fulfilled + Unfulfilled = объём, заблокированный при сведении.
type ExternalTradeResult struct {
	PairCode string `json:"pair_code"`
	BidID    string `json:"bid_id"`
	AskID    string `json:"ask_id"`
	// Fulfilled - объём, фактически исполненный внешней биржей
	Fulfilled decimal.Decimal `json:"fulfilled"`
	// Unfulfilled - неисполненный остаток заблокированного объёма
	Unfulfilled decimal.Decimal `json:"unfulfilled"`
}

// SaveExternalOrderResult - результат применения ExternalTradeResult.
//
// NewExternalOrderID заполняется, если внешний контрагент исполнился
// частично и для Deal был синтезирован завершённый "теневой" ордер
// ровно на исполненный срез.
type SaveExternalOrderResult struct {
	NewExternalOrderID string `json:"new_external_order_id,omitempty"`
	CreatedDealID      string `json:"created_deal_id,omitempty"`
}

// PairPrices - лучшие цены пары: максимальный bid и минимальный ask
type PairPrices struct {
	PairCode string          `json:"pair_code"`
	BidMax   decimal.Decimal `json:"bid_max"`
	AskMin   decimal.Decimal `json:"ask_min"`
}
