package matching

import (
	"sync"
	"time"
)

// DeletedOrdersKeeper - ограниченный по времени набор ID ордеров,
// удалённых пока их CreateOrder мог быть ещё "в полёте" к пулу.
//
// Фид ликвидности не гарантирует порядок: delete может прийти раньше
// create из-за сетевого переупорядочивания. Contains проверяется перед
// обработкой любого входящего liquidity create/update; записи старше TTL
// вычищаются лениво при каждом добавлении.
//
// Потокобезопасен для конкурентных add/check из нескольких продюсеров.
type DeletedOrdersKeeper struct {
	mu      sync.Mutex
	deleted map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewDeletedOrdersKeeper создает keeper с указанным TTL записей
func NewDeletedOrdersKeeper(ttl time.Duration) *DeletedOrdersKeeper {
	return &DeletedOrdersKeeper{
		deleted: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Add регистрирует удалённый ордер и лениво вычищает устаревшие записи
func (k *DeletedOrdersKeeper) Add(orderID string) {
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	for id, deletedAt := range k.deleted {
		if now.Sub(deletedAt) > k.ttl {
			delete(k.deleted, id)
		}
	}

	k.deleted[orderID] = now
}

// Contains возвращает true, если ордер был удалён в пределах TTL
func (k *DeletedOrdersKeeper) Contains(orderID string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	deletedAt, ok := k.deleted[orderID]
	if !ok {
		return false
	}
	return k.now().Sub(deletedAt) <= k.ttl
}

// Len возвращает количество записей (включая ещё не вычищенные устаревшие)
func (k *DeletedOrdersKeeper) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.deleted)
}
