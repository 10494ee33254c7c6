package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Биржи-источники ордеров.
// ExchangeLocal - ордер создан локальным пользователем.
// Остальные значения - ордера, импортированные из фидов ликвидности.
const (
	ExchangeLocal   = "local"
	ExchangeBinance = "binance"
	ExchangeKraken  = "kraken"
	ExchangeBitfinex = "bitfinex"
)

// Order представляет заявку на покупку (bid) или продажу (ask)
// фиксированного объёма валютной пары по лимитной цене.
//
// Инварианты (проверяются в движке после каждого матчинга):
//   - Amount > 0, Price > 0
//   - Fulfilled + Blocked <= Amount
//   - AvailableAmount() >= 0
//
// Мутирует ордер только обрабатывающий поток MatchingPool его пары.
type Order struct {
	ID           string          `json:"id" db:"id"`
	IsBid        bool            `json:"is_bid" db:"is_bid"`
	PairCode     string          `json:"pair_code" db:"pair_code"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	// Fulfilled - объём, сведённый с локальным контрагентом и рассчитанный
	Fulfilled decimal.Decimal `json:"fulfilled" db:"fulfilled"`
	// Blocked - объём, сведённый с внешним (импортированным) контрагентом
	// и ожидающий подтверждения внешней биржи
	Blocked     decimal.Decimal `json:"blocked" db:"blocked"`
	DateCreated time.Time       `json:"date_created" db:"date_created"`
	UserID      int64           `json:"user_id" db:"user_id"`
	IsCanceled  bool            `json:"is_canceled" db:"is_canceled"`
	Exchange    string          `json:"exchange" db:"exchange"`
	// FromInnerTradingBot - ордер внутреннего бота подпитки ликвидности.
	// Такие ордера сводятся только между собой.
	FromInnerTradingBot bool `json:"from_inner_trading_bot" db:"from_inner_trading_bot"`
	// LiquidityBlocksCount - количество незакрытых блокировок по внешним сделкам
	LiquidityBlocksCount int `json:"liquidity_blocks_count" db:"liquidity_blocks_count"`
}

// AvailableAmount возвращает остаток, доступный для сведения:
// Amount - Fulfilled - Blocked
func (o *Order) AvailableAmount() decimal.Decimal {
	return o.Amount.Sub(o.Fulfilled).Sub(o.Blocked)
}

// IsActive возвращает true, если ордер не отменён и не исполнен полностью
func (o *Order) IsActive() bool {
	return !o.IsCanceled && o.Fulfilled.LessThan(o.Amount)
}

// IsLocal возвращает true для ордеров локальных пользователей
func (o *Order) IsLocal() bool {
	return o.Exchange == ExchangeLocal
}

// Validate проверяет базовые инварианты ордера при создании
func (o *Order) Validate() error {
	if o.PairCode == "" {
		return ErrEmptyPairCode
	}
	if !o.Price.IsPositive() {
		return ErrNonPositivePrice
	}
	if !o.Amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	return nil
}
