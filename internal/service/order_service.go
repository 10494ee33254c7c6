// Package service содержит бизнес-логику над матчингом: приём и отмена
// пользовательских ордеров и обработку фида внешней ликвидности.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"exchange/internal/models"
	"exchange/pkg/utils"
)

// Ошибки сервиса ордеров
var (
	ErrPairInactive  = errors.New("currency pair is not active")
	ErrNotOrderOwner = errors.New("order belongs to another user")
	ErrOrderInactive = errors.New("order is already fulfilled or canceled")
)

// pairCacheTTL - пары меняются редко, кэш снимает повтор запросов к БД
// из горячего пути создания ордера
const pairCacheTTL = time.Minute

// CreateOrderParams - параметры нового пользовательского ордера
type CreateOrderParams struct {
	UserID   int64
	PairCode string
	IsBid    bool
	Price    decimal.Decimal
	Amount   decimal.Decimal
}

// OrderService - приём, отмена и чтение пользовательских ордеров
type OrderService struct {
	orders OrderRepositoryInterface
	deals  DealRepositoryInterface
	pairs  PairRepositoryInterface
	pools  MatchingPools
	log    *zap.Logger

	pairCache   map[string]cachedPair
	pairCacheMu sync.Mutex
}

type cachedPair struct {
	pair     *models.CurrencyPair
	loadedAt time.Time
}

// NewOrderService создает сервис ордеров
func NewOrderService(
	orders OrderRepositoryInterface,
	deals DealRepositoryInterface,
	pairs PairRepositoryInterface,
	pools MatchingPools,
	log *zap.Logger,
) *OrderService {
	return &OrderService{
		orders:    orders,
		deals:     deals,
		pairs:     pairs,
		pools:     pools,
		log:       log,
		pairCache: make(map[string]cachedPair),
	}
}

// CreateOrder валидирует, сохраняет и ставит новый ордер на сведение.
//
// Ордер сначала фиксируется в хранилище и только потом уходит в пул:
// при рестарте между этими шагами восстановление пула подхватит его
// из БД, потерь нет. Сведение асинхронное, результат приходит через
// websocket и market-data.
func (s *OrderService) CreateOrder(ctx context.Context, params CreateOrderParams) (*models.Order, error) {
	if err := utils.ValidatePairCode(params.PairCode); err != nil {
		return nil, err
	}
	if err := utils.ValidatePrice(params.Price); err != nil {
		return nil, err
	}
	if err := utils.ValidateAmount(params.Amount); err != nil {
		return nil, err
	}

	pair, err := s.getPair(params.PairCode)
	if err != nil {
		return nil, err
	}
	if !pair.IsActive {
		return nil, ErrPairInactive
	}

	order := &models.Order{
		ID:          uuid.NewString(),
		IsBid:       params.IsBid,
		PairCode:    pair.Code,
		Price:       params.Price.Round(pair.PricePrecision),
		Amount:      params.Amount.Round(pair.AmountPrecision),
		DateCreated: time.Now().UTC(),
		UserID:      params.UserID,
		Exchange:    models.ExchangeLocal,
	}

	// Округление могло занулить значения
	if err := order.Validate(); err != nil {
		return nil, err
	}

	if err := s.orders.Create(order); err != nil {
		return nil, err
	}
	s.pools.EnqueueCreate(order)

	s.log.Info("order accepted",
		zap.String("order_id", order.ID),
		zap.String("pair", order.PairCode),
		zap.Bool("is_bid", order.IsBid),
		zap.Int64("user_id", order.UserID))

	return order, nil
}

// CancelOrder отменяет ордер пользователя. Отмена асинхронная:
// заблокированный под внешнее подтверждение объём будет дорасчитан,
// если результат придёт позже отмены.
func (s *OrderService) CancelOrder(ctx context.Context, userID int64, orderID string) error {
	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return ErrNotOrderOwner
	}
	if !order.IsActive() {
		return ErrOrderInactive
	}

	s.pools.EnqueueCancel(order.PairCode, orderID, false)

	s.log.Info("order cancel requested",
		zap.String("order_id", orderID),
		zap.Int64("user_id", userID))
	return nil
}

// GetOpenOrders возвращает открытые ордера пользователя
func (s *OrderService) GetOpenOrders(ctx context.Context, userID int64) ([]*models.Order, error) {
	return s.orders.GetActiveByUser(userID)
}

// GetOrder возвращает ордер, проверяя владельца
func (s *OrderService) GetOrder(ctx context.Context, userID int64, orderID string) (*models.Order, error) {
	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	return order, nil
}

// GetPairPrices возвращает лучшие цены пары
func (s *OrderService) GetPairPrices(ctx context.Context, pairCode string) (models.PairPrices, error) {
	if _, err := s.getPair(pairCode); err != nil {
		return models.PairPrices{}, err
	}
	return s.pools.BestPrices(pairCode), nil
}

// GetRecentDeals возвращает последние сделки пары
func (s *OrderService) GetRecentDeals(ctx context.Context, pairCode string, limit int) ([]*models.Deal, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if _, err := s.getPair(pairCode); err != nil {
		return nil, err
	}
	return s.deals.GetRecentByPair(pairCode, limit)
}

// ListPairs возвращает все активные валютные пары
func (s *OrderService) ListPairs(ctx context.Context) ([]*models.CurrencyPair, error) {
	return s.pairs.GetAll()
}

// getPair возвращает пару из кэша или из репозитория
func (s *OrderService) getPair(code string) (*models.CurrencyPair, error) {
	s.pairCacheMu.Lock()
	cached, ok := s.pairCache[code]
	s.pairCacheMu.Unlock()

	if ok && time.Since(cached.loadedAt) < pairCacheTTL {
		return cached.pair, nil
	}

	pair, err := s.pairs.GetByCode(code)
	if err != nil {
		return nil, err
	}

	s.pairCacheMu.Lock()
	s.pairCache[code] = cachedPair{pair: pair, loadedAt: time.Now()}
	s.pairCacheMu.Unlock()
	return pair, nil
}
