package models

// CurrencyPair - справочные данные валютной пары.
//
// Точности используются сервисным слоем для масштабирования decimal
// значений перед постановкой в очередь пула; сам матчер считает
// входные значения уже корректно округлёнными.
type CurrencyPair struct {
	ID              int    `json:"id" db:"id"`
	Code            string `json:"code" db:"code"`
	BaseCurrency    string `json:"base_currency" db:"base_currency"`
	QuoteCurrency   string `json:"quote_currency" db:"quote_currency"`
	PricePrecision  int32  `json:"price_precision" db:"price_precision"`
	AmountPrecision int32  `json:"amount_precision" db:"amount_precision"`
	IsActive        bool   `json:"is_active" db:"is_active"`
}
