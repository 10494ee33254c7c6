package matching

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"exchange/internal/models"
)

// PoolsHandler - реестр пулов матчинга: по одному пулу на валютную пару,
// создаются лениво и ровно один раз на код пары.
//
// Первый доступ может прийти одновременно из нескольких API-запросов,
// поэтому get-or-create построен на sync.Map.LoadOrStore: проигравший
// гонку экземпляр отбрасывается, не успев запуститься.
type PoolsHandler struct {
	pools sync.Map // map[string]*Pool

	deps PoolDeps
	log  *zap.Logger

	// ctx - жизненный цикл всех пулов; отмена останавливает воркеры
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	drainTimeout time.Duration
}

// NewPoolsHandler создает реестр. Пулы живут до вызова Shutdown.
func NewPoolsHandler(deps PoolDeps, drainTimeout time.Duration, log *zap.Logger) *PoolsHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &PoolsHandler{
		deps:         deps,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
		drainTimeout: drainTimeout,
	}
}

// GetPool возвращает пул пары, при первом обращении создавая и запуская его
func (h *PoolsHandler) GetPool(pairCode string) *Pool {
	if v, ok := h.pools.Load(pairCode); ok {
		return v.(*Pool)
	}

	pool := NewPool(pairCode, h.deps)
	actual, loaded := h.pools.LoadOrStore(pairCode, pool)
	if loaded {
		// Проиграли гонку создания: воркер ещё не запускался, экземпляр
		// можно просто отбросить
		return actual.(*Pool)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		pool.Run(h.ctx)
	}()

	h.log.Info("matching pool created", zap.String("pair", pairCode))
	return pool
}

// ListPools возвращает все существующие пулы
func (h *PoolsHandler) ListPools() []*Pool {
	var pools []*Pool
	h.pools.Range(func(_, v interface{}) bool {
		pools = append(pools, v.(*Pool))
		return true
	})
	return pools
}

// EnqueueCreate ставит входящий ордер на сведение в пул его пары
func (h *PoolsHandler) EnqueueCreate(order *models.Order) {
	h.GetPool(order.PairCode).EnqueueCreate(order)
}

// EnqueueCancel ставит отмену ордера в пул пары
func (h *PoolsHandler) EnqueueCancel(pairCode, orderID string, force bool) {
	h.GetPool(pairCode).EnqueueCancel(orderID, force)
}

// EnqueueUpdateLiquidityOrder ставит изменение объёма импортированного ордера
func (h *PoolsHandler) EnqueueUpdateLiquidityOrder(pairCode, orderID string, newAmount decimal.Decimal) {
	h.GetPool(pairCode).EnqueueUpdateLiquidityOrder(orderID, newAmount)
}

// ApplyExternalResult применяет подтверждение внешней сделки в пуле пары
func (h *PoolsHandler) ApplyExternalResult(ctx context.Context, res *models.ExternalTradeResult) (models.SaveExternalOrderResult, error) {
	return h.GetPool(res.PairCode).ApplyExternalResult(ctx, res)
}

// BestPrices возвращает лучшие цены пары
func (h *PoolsHandler) BestPrices(pairCode string) models.PairPrices {
	return h.GetPool(pairCode).BestPrices()
}

// EnqueueAutoUnblock ставит разблокировку в пул пары
// (используется watcher'ом истечения блокировок)
func (h *PoolsHandler) EnqueueAutoUnblock(pairCode, orderID string) {
	h.GetPool(pairCode).EnqueueAutoUnblock(orderID)
}

// EnqueueRemoveOrderbook ставит удаление стакана биржи в пул пары
// (используется watcher'ом heartbeat'ов фидов)
func (h *PoolsHandler) EnqueueRemoveOrderbook(exchange, pairCode string) {
	h.GetPool(pairCode).EnqueueRemoveOrderbook(exchange)
}

// Start эйджерно создает пулы для всех пар с открытыми ордерами,
// чтобы восстановление прошло до первого трафика
func (h *PoolsHandler) Start() error {
	codes, err := h.deps.Store.PairCodesWithOpenOrders()
	if err != nil {
		return err
	}

	for _, code := range codes {
		h.GetPool(code)
	}

	h.log.Info("matching pools rehydrated", zap.Int("pools", len(codes)))
	return nil
}

// Shutdown останавливает все пулы: ждёт осушения очередей в пределах
// грейс-периода, затем принудительно отменяет воркеры.
func (h *PoolsHandler) Shutdown() {
	deadline := time.Now().Add(h.drainTimeout)

	for _, pool := range h.ListPools() {
		for !pool.Drained() && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
	}

	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("all matching pools stopped")
	case <-time.After(h.drainTimeout):
		h.log.Warn("pool shutdown grace period expired")
	}
}
