package utils

import (
	"errors"
	"regexp"

	"github.com/shopspring/decimal"
)

// Ошибки валидации
var (
	ErrInvalidPairCode = errors.New("pair code must look like BASE_QUOTE, e.g. BTC_USDT")
	ErrInvalidAmount   = errors.New("amount must be a positive number")
	ErrInvalidPrice    = errors.New("price must be a positive number")
)

// pairCodeRe - формат кода пары: BASE_QUOTE, только заглавные буквы и цифры
var pairCodeRe = regexp.MustCompile(`^[A-Z0-9]{2,10}_[A-Z0-9]{2,10}$`)

// ValidatePairCode проверяет формат кода валютной пары
func ValidatePairCode(code string) error {
	if !pairCodeRe.MatchString(code) {
		return ErrInvalidPairCode
	}
	return nil
}

// ValidateAmount проверяет, что объём - положительное число
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// ValidatePrice проверяет, что цена - положительное число
func ValidatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return ErrInvalidPrice
	}
	return nil
}
