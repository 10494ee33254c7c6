package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exchange/internal/models"
	"exchange/internal/service"
)

// ============ Mock Order Service ============

// MockOrderService мок для OrderServiceInterface
type MockOrderService struct {
	orders map[string]*models.Order
	deals  []*models.Deal
	pairs  []*models.CurrencyPair
	prices models.PairPrices

	createErr error
	cancelErr error
	getErr    error

	canceled []string
	mu       sync.Mutex
}

// NewMockOrderService создает новый мок сервиса ордеров
func NewMockOrderService() *MockOrderService {
	return &MockOrderService{
		orders: make(map[string]*models.Order),
	}
}

func (m *MockOrderService) CreateOrder(ctx context.Context, params service.CreateOrderParams) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, m.createErr
	}

	order := &models.Order{
		ID:          uuid.NewString(),
		IsBid:       params.IsBid,
		PairCode:    params.PairCode,
		Price:       params.Price,
		Amount:      params.Amount,
		DateCreated: time.Now().UTC(),
		UserID:      params.UserID,
		Exchange:    models.ExchangeLocal,
	}
	m.orders[order.ID] = order
	return order, nil
}

func (m *MockOrderService) CancelOrder(ctx context.Context, userID int64, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.canceled = append(m.canceled, orderID)
	return nil
}

func (m *MockOrderService) GetOpenOrders(ctx context.Context, userID int64) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	var result []*models.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *MockOrderService) GetOrder(ctx context.Context, userID int64, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	order, ok := m.orders[orderID]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	if order.UserID != userID {
		return nil, service.ErrNotOrderOwner
	}
	return order, nil
}

func (m *MockOrderService) GetPairPrices(ctx context.Context, pairCode string) (models.PairPrices, error) {
	if m.getErr != nil {
		return models.PairPrices{}, m.getErr
	}
	return m.prices, nil
}

func (m *MockOrderService) GetRecentDeals(ctx context.Context, pairCode string, limit int) ([]*models.Deal, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if limit > 0 && len(m.deals) > limit {
		return m.deals[:limit], nil
	}
	return m.deals, nil
}

func (m *MockOrderService) ListPairs(ctx context.Context) ([]*models.CurrencyPair, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.pairs, nil
}

// ============ Mock Liquidity Service ============

// MockLiquidityService мок для LiquidityServiceInterface
type MockLiquidityService struct {
	importErr error
	updateErr error
	deleteErr error
	applyErr  error
	removeErr error

	imported    []service.ImportOrderParams
	updated     [][2]string // orderID, amount
	deleted     []string
	applied     []*models.ExternalTradeResult
	removed     [][2]string // exchange, pairCode
	applyResult models.SaveExternalOrderResult
	mu          sync.Mutex
}

// NewMockLiquidityService создает новый мок сервиса ликвидности
func NewMockLiquidityService() *MockLiquidityService {
	return &MockLiquidityService{}
}

func (m *MockLiquidityService) ImportOrder(ctx context.Context, params service.ImportOrderParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.importErr != nil {
		return m.importErr
	}
	m.imported = append(m.imported, params)
	return nil
}

func (m *MockLiquidityService) UpdateOrder(ctx context.Context, exchange, pairCode, orderID string, newAmount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated = append(m.updated, [2]string{orderID, newAmount.String()})
	return nil
}

func (m *MockLiquidityService) DeleteOrder(ctx context.Context, exchange, pairCode, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, orderID)
	return nil
}

func (m *MockLiquidityService) ApplyExternalResult(ctx context.Context, res *models.ExternalTradeResult) (models.SaveExternalOrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applyErr != nil {
		return models.SaveExternalOrderResult{}, m.applyErr
	}
	m.applied = append(m.applied, res)
	return m.applyResult, nil
}

func (m *MockLiquidityService) RemoveOrderbook(ctx context.Context, exchange, pairCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, [2]string{exchange, pairCode})
	return nil
}

// Проверки реализации интерфейсов на этапе компиляции
var _ service.OrderServiceInterface = (*MockOrderService)(nil)
var _ service.LiquidityServiceInterface = (*MockLiquidityService)(nil)
