package service

import (
	"context"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

// OrderRepositoryInterface определяет интерфейс репозитория ордеров
type OrderRepositoryInterface interface {
	Create(order *models.Order) error
	GetByID(id string) (*models.Order, error)
	GetActiveByUser(userID int64) ([]*models.Order, error)
}

// DealRepositoryInterface определяет интерфейс репозитория сделок
type DealRepositoryInterface interface {
	GetRecentByPair(pairCode string, limit int) ([]*models.Deal, error)
}

// PairRepositoryInterface определяет интерфейс репозитория валютных пар
type PairRepositoryInterface interface {
	GetByCode(code string) (*models.CurrencyPair, error)
	GetAll() ([]*models.CurrencyPair, error)
}

// MatchingPools определяет интерфейс реестра пулов матчинга
// (реализуется matching.PoolsHandler)
type MatchingPools interface {
	EnqueueCreate(order *models.Order)
	EnqueueCancel(pairCode, orderID string, force bool)
	EnqueueUpdateLiquidityOrder(pairCode, orderID string, newAmount decimal.Decimal)
	EnqueueRemoveOrderbook(exchange, pairCode string)
	ApplyExternalResult(ctx context.Context, res *models.ExternalTradeResult) (models.SaveExternalOrderResult, error)
	BestPrices(pairCode string) models.PairPrices
}

// OrderServiceInterface определяет интерфейс сервиса ордеров для API handlers
type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, params CreateOrderParams) (*models.Order, error)
	CancelOrder(ctx context.Context, userID int64, orderID string) error
	GetOpenOrders(ctx context.Context, userID int64) ([]*models.Order, error)
	GetOrder(ctx context.Context, userID int64, orderID string) (*models.Order, error)
	GetPairPrices(ctx context.Context, pairCode string) (models.PairPrices, error)
	GetRecentDeals(ctx context.Context, pairCode string, limit int) ([]*models.Deal, error)
	ListPairs(ctx context.Context) ([]*models.CurrencyPair, error)
}

// LiquidityServiceInterface определяет интерфейс сервиса ликвидности для API handlers
type LiquidityServiceInterface interface {
	ImportOrder(ctx context.Context, params ImportOrderParams) error
	UpdateOrder(ctx context.Context, exchange, pairCode, orderID string, newAmount decimal.Decimal) error
	DeleteOrder(ctx context.Context, exchange, pairCode, orderID string) error
	ApplyExternalResult(ctx context.Context, res *models.ExternalTradeResult) (models.SaveExternalOrderResult, error)
	RemoveOrderbook(ctx context.Context, exchange, pairCode string) error
}

// Проверки реализации интерфейсов на этапе компиляции
var _ OrderServiceInterface = (*OrderService)(nil)
var _ LiquidityServiceInterface = (*LiquidityService)(nil)
