package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Ошибки валидации и поиска моделей
var (
	ErrEmptyPairCode     = errors.New("pair code is required")
	ErrNonPositivePrice  = errors.New("price must be positive")
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrOrderNotFound     = errors.New("order not found")
	ErrDealNotFound      = errors.New("deal not found")
	ErrPairNotFound      = errors.New("currency pair not found")
)

// Deal - неизменяемая запись об одном сведении bid и ask.
//
// Создаётся ровно один раз внутри матчера (или при подтверждении внешней
// сделки) и после этого никогда не мутирует. Хранится append-only.
//
// Price - цена ордера из пула (price-maker выигрывает).
// Volume - min(available_amount) обеих сторон на момент сведения.
type Deal struct {
	ID          string          `json:"id" db:"id"`
	DateCreated time.Time       `json:"date_created" db:"date_created"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Volume      decimal.Decimal `json:"volume" db:"volume"`
	BidID       string          `json:"bid_id" db:"bid_id"`
	AskID       string          `json:"ask_id" db:"ask_id"`
	PairCode    string          `json:"pair_code" db:"pair_code"`
	// FromInnerTradingBot копируется со стороны bid
	FromInnerTradingBot bool `json:"from_inner_trading_bot" db:"from_inner_trading_bot"`
	// SentToDealEnding - флаг доставки в сервис расчётов.
	// Выставляется фоновым отправителем после успешной доставки.
	SentToDealEnding bool `json:"sent_to_deal_ending" db:"sent_to_deal_ending"`
}
