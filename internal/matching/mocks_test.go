package matching

import (
	"context"
	"sync"

	"exchange/internal/models"
)

// ============ МОКИ ============

// fakeStore - in-memory хранилище ордеров с инъекцией ошибок
type fakeStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	deals  []*models.Deal

	saveErr    error
	cancelErr  error
	saveCalls  int
	canceled   []string
	activePair map[string][]*models.Order // ответ GetActiveByPair, если задан
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]*models.Order)}
}

func (s *fakeStore) Create(order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *order
	s.orders[order.ID] = &cp
	return nil
}

func (s *fakeStore) GetByID(id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) GetActiveByPair(pairCode string) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activePair != nil {
		return s.activePair[pairCode], nil
	}
	var out []*models.Order
	for _, o := range s.orders {
		if o.PairCode == pairCode && o.IsActive() {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) PairCodesWithOpenOrders() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var codes []string
	for _, o := range s.orders {
		if o.IsActive() && !seen[o.PairCode] {
			seen[o.PairCode] = true
			codes = append(codes, o.PairCode)
		}
	}
	return codes, nil
}

func (s *fakeStore) MarkCanceled(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = append(s.canceled, id)
	if s.cancelErr != nil {
		return s.cancelErr
	}
	if o, ok := s.orders[id]; ok {
		o.IsCanceled = true
	}
	return nil
}

func (s *fakeStore) MarkCanceledBatch(ids []string) error {
	for _, id := range ids {
		if err := s.MarkCanceled(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) SaveMatchResults(orders []*models.Order, deals []*models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	for _, o := range orders {
		cp := *o
		s.orders[o.ID] = &cp
	}
	for _, d := range deals {
		cp := *d
		s.deals = append(s.deals, &cp)
	}
	return nil
}

func (s *fakeStore) savedDeals() []*models.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Deal(nil), s.deals...)
}

func (s *fakeStore) savedOrder(id string) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		cp := *o
		return &cp
	}
	return nil
}

// fakeReporter собирает разосланные снапшоты книги и сделки
type fakeReporter struct {
	mu        sync.Mutex
	books     int
	lastBids  []models.Order
	lastAsks  []models.Order
	deals     []*models.Deal
}

func (r *fakeReporter) OrderbookChanged(pairCode string, bids, asks []models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books++
	r.lastBids = bids
	r.lastAsks = asks
}

func (r *fakeReporter) DealsCreated(deals []*models.Deal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deals = append(r.deals, deals...)
}

func (r *fakeReporter) dealCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deals)
}

// fakeGateway фиксирует запросы к шлюзу ликвидности
type fakeGateway struct {
	mu       sync.Mutex
	trades   [][2]models.Order
	removals [][2]string // (exchange, pairCode)
	err      error
	notify   chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{notify: make(chan struct{}, 16)}
}

func (g *fakeGateway) CreateTrade(_ context.Context, bid, ask models.Order) error {
	g.mu.Lock()
	g.trades = append(g.trades, [2]models.Order{bid, ask})
	err := g.err
	g.mu.Unlock()
	g.notify <- struct{}{}
	return err
}

func (g *fakeGateway) RemoveOrderbook(_ context.Context, exchange, pairCode string) error {
	g.mu.Lock()
	g.removals = append(g.removals, [2]string{exchange, pairCode})
	err := g.err
	g.mu.Unlock()
	g.notify <- struct{}{}
	return err
}

func (g *fakeGateway) tradeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.trades)
}

func (g *fakeGateway) removalCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.removals)
}

// fakeTracker - учёт блокировок без таймеров
type fakeTracker struct {
	mu         sync.Mutex
	registered []string
	resolved   []string
}

func (t *fakeTracker) Register(orderID, pairCode string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registered = append(t.registered, orderID)
}

func (t *fakeTracker) Resolve(orderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resolved = append(t.resolved, orderID)
}
