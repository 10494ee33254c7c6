package matching

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

// Типы действий пула
const (
	actionCreateOrder = iota
	actionCancelOrder
	actionExternalResult
	actionAutoUnblock
	actionUpdateLiquidityOrder
	actionRemoveOrderbook
)

// poolAction - один элемент очереди пула.
// Заполняются только поля, относящиеся к типу действия.
type poolAction struct {
	kind int

	order          *models.Order              // CreateOrder
	rehydrated     bool                       // CreateOrder при восстановлении из БД
	orderID        string                     // CancelOrder, AutoUnblock, UpdateLiquidityOrder
	force          bool                       // CancelOrder
	externalResult *models.ExternalTradeResult // ExternalResult
	newAmount      decimal.Decimal            // UpdateLiquidityOrder
	exchange       string                     // RemoveOrderbook

	// reply - опциональный канал для синхронного ответа
	// (используется ExternalResult). Ёмкость 1, пишется ровно один раз.
	reply chan externalReply
}

type externalReply struct {
	result models.SaveExternalOrderResult
	err    error
}

// actionQueue - неограниченная строго FIFO очередь multi-producer /
// single-consumer. Go-каналы ограничены по ёмкости, а продюсеры пула
// (API, фиды ликвидности, watchers) не должны блокироваться на push,
// поэтому очередь построена на слайсе под мьютексом с сигнальным каналом.
type actionQueue struct {
	mu     sync.Mutex
	items  []poolAction
	notify chan struct{} // ёмкость 1: "появились элементы"
}

func newActionQueue() *actionQueue {
	return &actionQueue{
		notify: make(chan struct{}, 1),
	}
}

// Push добавляет действие в хвост очереди. Никогда не блокирует.
func (q *actionQueue) Push(a poolAction) {
	q.mu.Lock()
	q.items = append(q.items, a)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop снимает действие с головы очереди, блокируясь до появления
// элемента или отмены контекста.
func (q *actionQueue) Pop(ctx context.Context) (poolAction, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			a := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return a, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return poolAction{}, false
		case <-q.notify:
		}
	}
}

// Len возвращает текущую глубину очереди (для метрик)
func (q *actionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drained возвращает true, если очередь пуста
func (q *actionQueue) Drained() bool {
	return q.Len() == 0
}
