package matching

import (
	"context"

	"exchange/internal/models"
)

// OrderStore - порт хранилища, потребляемый пулами.
// Реализуется internal/repository поверх Postgres.
type OrderStore interface {
	// Create вставляет новый ордер (в т.ч. теневые ордера внешних сведений)
	Create(order *models.Order) error
	// GetByID возвращает ордер или models.ErrOrderNotFound
	GetByID(id string) (*models.Order, error)
	// GetActiveByPair возвращает активные ордера пары по возрастанию date_created
	GetActiveByPair(pairCode string) ([]*models.Order, error)
	// PairCodesWithOpenOrders возвращает коды пар, имеющих открытые ордера
	PairCodesWithOpenOrders() ([]string, error)
	// MarkCanceled помечает ордер отменённым; отсутствие ордера - не ошибка
	MarkCanceled(id string) error
	// MarkCanceledBatch помечает отменёнными несколько ордеров одной командой
	MarkCanceledBatch(ids []string) error
	// SaveMatchResults атомарно сохраняет изменённые ордера и новые сделки
	SaveMatchResults(orders []*models.Order, deals []*models.Deal) error
}

// Reporter - порт асинхронных уведомлений о результатах обработки.
// Вызывается из отдельной горутины, не блокирует цикл пула;
// ошибки доставки реализация логирует сама.
type Reporter interface {
	// OrderbookChanged получает снапшот активной части пула после изменения
	OrderbookChanged(pairCode string, bids, asks []models.Order)
	// DealsCreated получает новые сделки
	DealsCreated(deals []*models.Deal)
}

// LiquidityGateway - порт шлюза ликвидности для кросс-биржевых сведений
type LiquidityGateway interface {
	// CreateTrade запрашивает создание сделки на внешней бирже (best effort)
	CreateTrade(ctx context.Context, bid, ask models.Order) error
	// RemoveOrderbook сообщает шлюзу об удалении стакана
	RemoveOrderbook(ctx context.Context, exchange, pairCode string) error
}

// BlockTracker учитывает ордера в состоянии внешней блокировки
type BlockTracker interface {
	// Register начинает отслеживание блокировки ордера
	Register(orderID, pairCode string)
	// Resolve снимает блокировку с отслеживания (подтверждение пришло)
	Resolve(orderID string)
}
