package repository

import (
	"database/sql"
	"errors"

	"exchange/internal/models"
)

// PairRepository - работа с таблицей currency_pairs
type PairRepository struct {
	db *sql.DB
}

// NewPairRepository создает новый экземпляр репозитория
func NewPairRepository(db *sql.DB) *PairRepository {
	return &PairRepository{db: db}
}

// GetByCode возвращает валютную пару по коду
func (r *PairRepository) GetByCode(code string) (*models.CurrencyPair, error) {
	query := `
		SELECT id, code, base_currency, quote_currency, price_precision, amount_precision, is_active
		FROM currency_pairs
		WHERE code = $1`

	pair := &models.CurrencyPair{}
	err := r.db.QueryRow(query, code).Scan(
		&pair.ID,
		&pair.Code,
		&pair.BaseCurrency,
		&pair.QuoteCurrency,
		&pair.PricePrecision,
		&pair.AmountPrecision,
		&pair.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrPairNotFound
		}
		return nil, err
	}
	return pair, nil
}

// GetAll возвращает все активные валютные пары
func (r *PairRepository) GetAll() ([]*models.CurrencyPair, error) {
	query := `
		SELECT id, code, base_currency, quote_currency, price_precision, amount_precision, is_active
		FROM currency_pairs
		WHERE is_active
		ORDER BY code`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []*models.CurrencyPair
	for rows.Next() {
		pair := &models.CurrencyPair{}
		err := rows.Scan(
			&pair.ID,
			&pair.Code,
			&pair.BaseCurrency,
			&pair.QuoteCurrency,
			&pair.PricePrecision,
			&pair.AmountPrecision,
			&pair.IsActive,
		)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}
