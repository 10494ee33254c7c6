package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"exchange/internal/models"
)

const dealColumns = `id, date_created, price, volume, bid_id, ask_id, pair_code,
		from_inner_trading_bot, sent_to_deal_ending`

// DealRepository - работа с таблицей deals.
// Сделки вставляются матчингом (см. OrderRepository.SaveMatchResults),
// здесь только чтение и учёт доставки в deal-ending.
type DealRepository struct {
	db *sql.DB
}

// NewDealRepository создает новый экземпляр репозитория
func NewDealRepository(db *sql.DB) *DealRepository {
	return &DealRepository{db: db}
}

// GetByID возвращает сделку по ID
func (r *DealRepository) GetByID(id string) (*models.Deal, error) {
	query := `
		SELECT ` + dealColumns + `
		FROM deals
		WHERE id = $1`

	deal, err := scanDeal(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrDealNotFound
		}
		return nil, err
	}
	return deal, nil
}

// GetRecentByPair возвращает последние сделки пары, новые первыми
func (r *DealRepository) GetRecentByPair(pairCode string, limit int) ([]*models.Deal, error) {
	query := `
		SELECT ` + dealColumns + `
		FROM deals
		WHERE pair_code = $1
		ORDER BY date_created DESC
		LIMIT $2`

	rows, err := r.db.Query(query, pairCode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDeals(rows)
}

// GetUnsentToDealEnding возвращает сделки, ещё не доставленные в сервис
// расчётов, старые первыми
func (r *DealRepository) GetUnsentToDealEnding(limit int) ([]*models.Deal, error) {
	query := `
		SELECT ` + dealColumns + `
		FROM deals
		WHERE NOT sent_to_deal_ending
		ORDER BY date_created ASC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDeals(rows)
}

// MarkSentToDealEnding помечает сделки доставленными
func (r *DealRepository) MarkSentToDealEnding(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(
		`UPDATE deals SET sent_to_deal_ending = true WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	return err
}

func scanDeal(s scanner) (*models.Deal, error) {
	deal := &models.Deal{}
	err := s.Scan(
		&deal.ID,
		&deal.DateCreated,
		&deal.Price,
		&deal.Volume,
		&deal.BidID,
		&deal.AskID,
		&deal.PairCode,
		&deal.FromInnerTradingBot,
		&deal.SentToDealEnding,
	)
	if err != nil {
		return nil, err
	}
	return deal, nil
}

func scanDeals(rows *sql.Rows) ([]*models.Deal, error) {
	var deals []*models.Deal
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, deal)
	}
	return deals, rows.Err()
}
