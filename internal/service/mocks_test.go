package service

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

// ============ МОКИ ============

type mockOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]*models.Order
	created []*models.Order
	err     error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*models.Order)}
}

func (m *mockOrderRepo) Create(order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.orders[order.ID] = order
	m.created = append(m.created, order)
	return nil
}

func (m *mockOrderRepo) GetByID(id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) GetActiveByUser(userID int64) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Order
	for _, o := range m.orders {
		if o.UserID == userID && o.IsActive() {
			out = append(out, o)
		}
	}
	return out, nil
}

type mockDealRepo struct {
	deals []*models.Deal
}

func (m *mockDealRepo) GetRecentByPair(pairCode string, limit int) ([]*models.Deal, error) {
	if len(m.deals) > limit {
		return m.deals[:limit], nil
	}
	return m.deals, nil
}

type mockPairRepo struct {
	pairs map[string]*models.CurrencyPair
	calls int
}

func newMockPairRepo(pairs ...*models.CurrencyPair) *mockPairRepo {
	m := &mockPairRepo{pairs: make(map[string]*models.CurrencyPair)}
	for _, p := range pairs {
		m.pairs[p.Code] = p
	}
	return m
}

func (m *mockPairRepo) GetByCode(code string) (*models.CurrencyPair, error) {
	m.calls++
	p, ok := m.pairs[code]
	if !ok {
		return nil, models.ErrPairNotFound
	}
	return p, nil
}

func (m *mockPairRepo) GetAll() ([]*models.CurrencyPair, error) {
	var out []*models.CurrencyPair
	for _, p := range m.pairs {
		out = append(out, p)
	}
	return out, nil
}

// mockPools фиксирует все обращения к реестру пулов
type mockPools struct {
	mu        sync.Mutex
	created   []*models.Order
	cancels   [][3]interface{} // pairCode, orderID, force
	updates   []struct {
		PairCode, OrderID string
		Amount            decimal.Decimal
	}
	removals       [][2]string
	externalResult *models.ExternalTradeResult
	externalReply  models.SaveExternalOrderResult
	externalErr    error
	prices         models.PairPrices
}

func (m *mockPools) EnqueueCreate(order *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, order)
}

func (m *mockPools) EnqueueCancel(pairCode, orderID string, force bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels = append(m.cancels, [3]interface{}{pairCode, orderID, force})
}

func (m *mockPools) EnqueueUpdateLiquidityOrder(pairCode, orderID string, newAmount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, struct {
		PairCode, OrderID string
		Amount            decimal.Decimal
	}{pairCode, orderID, newAmount})
}

func (m *mockPools) EnqueueRemoveOrderbook(exchange, pairCode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removals = append(m.removals, [2]string{exchange, pairCode})
}

func (m *mockPools) ApplyExternalResult(ctx context.Context, res *models.ExternalTradeResult) (models.SaveExternalOrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.externalResult = res
	return m.externalReply, m.externalErr
}

func (m *mockPools) BestPrices(pairCode string) models.PairPrices {
	return m.prices
}
