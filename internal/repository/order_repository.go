package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"exchange/internal/models"
)

const orderColumns = `id, is_bid, pair_code, price, amount, fulfilled, blocked,
		date_created, user_id, is_canceled, exchange, from_inner_trading_bot, liquidity_blocks_count`

// OrderRepository - работа с таблицей orders
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create создает запись об ордере
func (r *OrderRepository) Create(order *models.Order) error {
	query := `
		INSERT INTO orders (id, is_bid, pair_code, price, amount, fulfilled, blocked,
			date_created, user_id, is_canceled, exchange, from_inner_trading_bot, liquidity_blocks_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(
		query,
		order.ID,
		order.IsBid,
		order.PairCode,
		order.Price,
		order.Amount,
		order.Fulfilled,
		order.Blocked,
		order.DateCreated,
		order.UserID,
		order.IsCanceled,
		order.Exchange,
		order.FromInnerTradingBot,
		order.LiquidityBlocksCount,
	)
	return err
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id string) (*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// GetActiveByPair возвращает открытые ордера пары в порядке создания.
// Порядок важен: восстановление пула воспроизводит их хронологически.
func (r *OrderRepository) GetActiveByPair(pairCode string) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE pair_code = $1 AND NOT is_canceled AND fulfilled < amount
		ORDER BY date_created ASC`

	rows, err := r.db.Query(query, pairCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

// GetActiveByUser возвращает открытые ордера пользователя
func (r *OrderRepository) GetActiveByUser(userID int64) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1 AND NOT is_canceled AND fulfilled < amount
		ORDER BY date_created DESC`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

// PairCodesWithOpenOrders возвращает коды пар, по которым есть открытые ордера
func (r *OrderRepository) PairCodesWithOpenOrders() ([]string, error) {
	query := `
		SELECT DISTINCT pair_code
		FROM orders
		WHERE NOT is_canceled AND fulfilled < amount`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// MarkCanceled помечает ордер отменённым
func (r *OrderRepository) MarkCanceled(id string) error {
	result, err := r.db.Exec(`UPDATE orders SET is_canceled = true WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrOrderNotFound
	}
	return nil
}

// MarkCanceledBatch помечает отменёнными все перечисленные ордера
func (r *OrderRepository) MarkCanceledBatch(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(`UPDATE orders SET is_canceled = true WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

// SaveMatchResults фиксирует результаты одного действия матчинга: изменённые
// ордера и новые сделки одной транзакцией. Либо всё, либо ничего - пул
// полагается на атомарность при откате своей памяти.
func (r *OrderRepository) SaveMatchResults(orders []*models.Order, deals []*models.Deal) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	updateQuery := `
		UPDATE orders
		SET amount = $2, fulfilled = $3, blocked = $4, is_canceled = $5, liquidity_blocks_count = $6
		WHERE id = $1`

	for _, o := range orders {
		if _, err := tx.Exec(updateQuery,
			o.ID, o.Amount, o.Fulfilled, o.Blocked, o.IsCanceled, o.LiquidityBlocksCount,
		); err != nil {
			return fmt.Errorf("update order %s: %w", o.ID, err)
		}
	}

	dealQuery := `
		INSERT INTO deals (id, date_created, price, volume, bid_id, ask_id, pair_code,
			from_inner_trading_bot, sent_to_deal_ending)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false)`

	for _, d := range deals {
		if _, err := tx.Exec(dealQuery,
			d.ID, d.DateCreated, d.Price, d.Volume, d.BidID, d.AskID, d.PairCode,
			d.FromInnerTradingBot,
		); err != nil {
			return fmt.Errorf("insert deal %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// scanner - общий интерфейс sql.Row и sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s scanner) (*models.Order, error) {
	order := &models.Order{}
	err := s.Scan(
		&order.ID,
		&order.IsBid,
		&order.PairCode,
		&order.Price,
		&order.Amount,
		&order.Fulfilled,
		&order.Blocked,
		&order.DateCreated,
		&order.UserID,
		&order.IsCanceled,
		&order.Exchange,
		&order.FromInnerTradingBot,
		&order.LiquidityBlocksCount,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func scanOrders(rows *sql.Rows) ([]*models.Order, error) {
	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
