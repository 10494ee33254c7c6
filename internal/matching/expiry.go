package matching

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AutoUnblockEnqueuer ставит принудительную разблокировку в пул пары.
// Реализуется PoolsHandler.
type AutoUnblockEnqueuer interface {
	EnqueueAutoUnblock(pairCode, orderID string)
}

// OrderbookRemover ставит удаление стакана биржи в пул пары.
// Реализуется PoolsHandler.
type OrderbookRemover interface {
	EnqueueRemoveOrderbook(exchange, pairCode string)
}

// blockRecord - одна отслеживаемая блокировка
type blockRecord struct {
	orderID     string
	pairCode    string
	dateBlocked time.Time
}

// ExpireBlocksHandler отслеживает ордера с объёмом, заблокированным под
// внешнее подтверждение, и принудительно разблокирует их по таймауту.
//
// Тик каждые ExpireCheckFreq: блокировки старше BlockTTL ставятся
// в очередь владеющего пула действием AutoUnblock и снимаются с учёта.
// Несколько секунд люфта допустимы - это wall-clock поллинг,
// а не жёсткий realtime-дедлайн.
type ExpireBlocksHandler struct {
	mu      sync.Mutex
	records []blockRecord

	pools AutoUnblockEnqueuer // устанавливается после создания PoolsHandler

	ttl   time.Duration
	freq  time.Duration
	now   func() time.Time
	log   *zap.Logger
}

// NewExpireBlocksHandler создает handler блокировок
func NewExpireBlocksHandler(ttl, freq time.Duration, log *zap.Logger) *ExpireBlocksHandler {
	return &ExpireBlocksHandler{
		ttl:  ttl,
		freq: freq,
		now:  time.Now,
		log:  log,
	}
}

// SetPools устанавливает получателя разблокировок.
// Вызывается после создания PoolsHandler (разрыв циклической зависимости).
func (h *ExpireBlocksHandler) SetPools(pools AutoUnblockEnqueuer) {
	h.mu.Lock()
	h.pools = pools
	h.mu.Unlock()
}

// Register начинает отслеживание блокировки ордера
func (h *ExpireBlocksHandler) Register(orderID, pairCode string) {
	h.mu.Lock()
	h.records = append(h.records, blockRecord{
		orderID:     orderID,
		pairCode:    pairCode,
		dateBlocked: h.now(),
	})
	h.mu.Unlock()
}

// Resolve снимает с учёта самую раннюю блокировку ордера
// (подтверждение пришло штатно)
func (h *ExpireBlocksHandler) Resolve(orderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, r := range h.records {
		if r.orderID == orderID {
			h.records = append(h.records[:i], h.records[i+1:]...)
			return
		}
	}
}

// Tracked возвращает количество отслеживаемых блокировок
func (h *ExpireBlocksHandler) Tracked() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Run запускает периодическое сканирование. Блокируется до отмены контекста.
func (h *ExpireBlocksHandler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.freq)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.expireStale()
		}
	}
}

// expireStale снимает просроченные блокировки и ставит разблокировки в пулы
func (h *ExpireBlocksHandler) expireStale() {
	now := h.now()

	h.mu.Lock()
	var expired []blockRecord
	kept := h.records[:0]
	for _, r := range h.records {
		if now.Sub(r.dateBlocked) > h.ttl {
			expired = append(expired, r)
		} else {
			kept = append(kept, r)
		}
	}
	h.records = kept
	pools := h.pools
	h.mu.Unlock()

	if len(expired) == 0 || pools == nil {
		return
	}

	for _, r := range expired {
		h.log.Warn("external block expired",
			zap.String("order_id", r.orderID),
			zap.String("pair", r.pairCode),
			zap.Time("date_blocked", r.dateBlocked))
		pools.EnqueueAutoUnblock(r.pairCode, r.orderID)
	}
}

// ============ Heartbeat фидов ликвидности ============

type feedKey struct {
	exchange string
	pairCode string
}

// FeedWatcher следит за heartbeat'ами фидов ликвидности по паре
// (exchange, pair). Если фид молчит дольше TTL, его стакан удаляется
// из владеющего пула.
type FeedWatcher struct {
	mu       sync.Mutex
	lastSeen map[feedKey]time.Time

	pools OrderbookRemover

	ttl  time.Duration
	freq time.Duration
	now  func() time.Time
	log  *zap.Logger
}

// NewFeedWatcher создает watcher фидов
func NewFeedWatcher(ttl, freq time.Duration, log *zap.Logger) *FeedWatcher {
	return &FeedWatcher{
		lastSeen: make(map[feedKey]time.Time),
		ttl:      ttl,
		freq:     freq,
		now:      time.Now,
		log:      log,
	}
}

// SetPools устанавливает получателя удалений стаканов
func (w *FeedWatcher) SetPools(pools OrderbookRemover) {
	w.mu.Lock()
	w.pools = pools
	w.mu.Unlock()
}

// Touch фиксирует активность фида. Вызывается на каждое входящее
// сообщение ликвидности (create/update/delete).
func (w *FeedWatcher) Touch(exchange, pairCode string) {
	w.mu.Lock()
	w.lastSeen[feedKey{exchange: exchange, pairCode: pairCode}] = w.now()
	w.mu.Unlock()
}

// Forget снимает фид с учёта (стакан удалён явно)
func (w *FeedWatcher) Forget(exchange, pairCode string) {
	w.mu.Lock()
	delete(w.lastSeen, feedKey{exchange: exchange, pairCode: pairCode})
	w.mu.Unlock()
}

// Run запускает периодическую проверку heartbeat'ов
func (w *FeedWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.freq)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.removeSilent()
		}
	}
}

// removeSilent удаляет стаканы замолчавших фидов
func (w *FeedWatcher) removeSilent() {
	now := w.now()

	w.mu.Lock()
	var silent []feedKey
	for key, seen := range w.lastSeen {
		if now.Sub(seen) > w.ttl {
			silent = append(silent, key)
			delete(w.lastSeen, key)
		}
	}
	pools := w.pools
	w.mu.Unlock()

	if pools == nil {
		return
	}

	for _, key := range silent {
		w.log.Warn("liquidity feed went silent, removing orderbook",
			zap.String("exchange", key.exchange),
			zap.String("pair", key.pairCode))
		pools.EnqueueRemoveOrderbook(key.exchange, key.pairCode)
	}
}
