package matching

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"exchange/internal/models"
)

// Состояния пула
const (
	poolStarting int32 = iota
	poolRunning
	poolStopping
	poolStopped
)

// Ошибки пула
var (
	ErrPoolStopped         = errors.New("matching pool is stopped")
	ErrExternalOrderPair   = errors.New("external trade result references unknown orders")
	ErrExternalResultWait  = errors.New("timed out waiting for external trade result")
	ErrStaleExternalResult = errors.New("external trade result exceeds blocked amount")
)

// Pool - последовательный обработчик одной валютной пары, единственная
// точка истины для её набора ордеров.
//
// Все мутации проходят через неограниченную FIFO очередь действий,
// которую разбирает ровно одна горутина - это и делает матчинг
// линеаризуемым в пределах пары: внутри самого матчинга нет гонок,
// синхронизация нужна только на стороне продюсеров очереди.
//
// Между "вычислить сведение" и "применить к пулу" воркер не уступает
// управление; приостанавливается он только на ожидании очереди и на I/O
// сохранения.
type Pool struct {
	pairCode string

	// orders - активные ордера пары; владеет списком только воркер
	orders []*models.Order

	queue   *actionQueue
	matcher *Matcher
	state   atomic.Int32

	store    OrderStore
	reporter Reporter
	gateway  LiquidityGateway
	blocks   BlockTracker
	keeper   *DeletedOrdersKeeper

	// prices - снапшот лучших цен для читателей вне воркера
	prices atomic.Value // models.PairPrices

	// resultWait - дефолтный таймаут ожидания ApplyExternalResult
	resultWait time.Duration

	log  *zap.Logger
	done chan struct{}
}

// PoolDeps - зависимости пула
type PoolDeps struct {
	Store    OrderStore
	Reporter Reporter
	Gateway  LiquidityGateway
	Blocks   BlockTracker
	Keeper   *DeletedOrdersKeeper
	Log      *zap.Logger

	// ResultWait - таймаут применения ExternalTradeResult, когда
	// контекст вызова не несёт своего дедлайна. 0 - без таймаута.
	ResultWait time.Duration
}

// NewPool создает пул пары. Обработка начинается после вызова Run.
func NewPool(pairCode string, deps PoolDeps) *Pool {
	p := &Pool{
		pairCode:   pairCode,
		queue:      newActionQueue(),
		store:      deps.Store,
		reporter:   deps.Reporter,
		gateway:    deps.Gateway,
		blocks:     deps.Blocks,
		keeper:     deps.Keeper,
		log:        deps.Log.With(zap.String("pair", pairCode)),
		resultWait: deps.ResultWait,
		done:       make(chan struct{}),
	}
	p.matcher = NewMatcher(p.onExternalTrade)
	p.prices.Store(models.PairPrices{PairCode: pairCode})
	p.state.Store(poolStarting)
	return p
}

// PairCode возвращает код валютной пары пула
func (p *Pool) PairCode() string {
	return p.pairCode
}

// Run восстанавливает пул из хранилища и запускает цикл обработки.
// Блокируется до отмены контекста; вызывается ровно один раз.
func (p *Pool) Run(ctx context.Context) {
	defer close(p.done)
	defer p.state.Store(poolStopped)

	p.rehydrate()
	p.state.Store(poolRunning)
	ActivePools.Inc()
	defer ActivePools.Dec()

	for {
		action, ok := p.queue.Pop(ctx)
		if !ok {
			p.state.Store(poolStopping)
			return
		}
		p.process(action)
		QueueDepth.WithLabelValues(p.pairCode).Set(float64(p.queue.Len()))
	}
}

// Done возвращает канал, закрываемый после полной остановки пула
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// Drained возвращает true, если очередь действий пуста
func (p *Pool) Drained() bool {
	return p.queue.Drained()
}

// rehydrate воспроизводит открытые ордера пары через обычный путь
// CreateOrder в хронологическом порядке. Дубликатов сделок не возникает:
// ордера, отдыхавшие в книге одновременно, по построению не пересекаются
// по цене, а исполненные отфильтрованы условием is_active при загрузке.
func (p *Pool) rehydrate() {
	orders, err := p.store.GetActiveByPair(p.pairCode)
	if err != nil {
		p.log.Error("failed to load resting orders, pool starts empty", zap.Error(err))
		return
	}

	for _, o := range orders {
		p.queue.Push(poolAction{kind: actionCreateOrder, order: o, rehydrated: true})
	}

	if len(orders) > 0 {
		p.log.Info("pool rehydration scheduled", zap.Int("orders", len(orders)))
	}
}

// ============ Постановка действий в очередь (producer-side) ============

// EnqueueCreate ставит входящий ордер на сведение
func (p *Pool) EnqueueCreate(order *models.Order) {
	p.queue.Push(poolAction{kind: actionCreateOrder, order: order})
}

// EnqueueCancel ставит отмену ордера.
// При force=false отмена ордера с заблокированным объёмом не отбрасывает
// запись о блокировке: пришедший позже внешний результат будет применён.
func (p *Pool) EnqueueCancel(orderID string, force bool) {
	p.queue.Push(poolAction{kind: actionCancelOrder, orderID: orderID, force: force})
}

// EnqueueAutoUnblock ставит принудительную разблокировку по таймауту
func (p *Pool) EnqueueAutoUnblock(orderID string) {
	p.queue.Push(poolAction{kind: actionAutoUnblock, orderID: orderID})
}

// EnqueueUpdateLiquidityOrder ставит изменение объёма импортированного ордера
func (p *Pool) EnqueueUpdateLiquidityOrder(orderID string, newAmount decimal.Decimal) {
	p.queue.Push(poolAction{kind: actionUpdateLiquidityOrder, orderID: orderID, newAmount: newAmount})
}

// EnqueueRemoveOrderbook ставит удаление всех ордеров биржи из пула
func (p *Pool) EnqueueRemoveOrderbook(exchange string) {
	p.queue.Push(poolAction{kind: actionRemoveOrderbook, exchange: exchange})
}

// ApplyExternalResult ставит подтверждение внешней сделки и ждёт результата
// применения (синхронный ответ нужен шлюзу ликвидности).
func (p *Pool) ApplyExternalResult(ctx context.Context, res *models.ExternalTradeResult) (models.SaveExternalOrderResult, error) {
	if p.state.Load() == poolStopped {
		return models.SaveExternalOrderResult{}, ErrPoolStopped
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && p.resultWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.resultWait)
		defer cancel()
	}

	reply := make(chan externalReply, 1)
	p.queue.Push(poolAction{kind: actionExternalResult, externalResult: res, reply: reply})

	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return models.SaveExternalOrderResult{}, ErrExternalResultWait
	}
}

// BestPrices возвращает последний снапшот лучших цен пары.
// Читается без обращения к воркеру (eventually consistent).
func (p *Pool) BestPrices() models.PairPrices {
	return p.prices.Load().(models.PairPrices)
}

// ============ Цикл обработки (consumer-side) ============

func (p *Pool) process(a poolAction) {
	switch a.kind {
	case actionCreateOrder:
		p.processCreate(a)
		ActionsProcessed.WithLabelValues(p.pairCode, "create").Inc()
	case actionCancelOrder:
		p.processCancel(a.orderID, a.force)
		ActionsProcessed.WithLabelValues(p.pairCode, "cancel").Inc()
	case actionExternalResult:
		p.processExternalResult(a)
		ActionsProcessed.WithLabelValues(p.pairCode, "external_result").Inc()
	case actionAutoUnblock:
		p.processAutoUnblock(a.orderID)
		ActionsProcessed.WithLabelValues(p.pairCode, "auto_unblock").Inc()
	case actionUpdateLiquidityOrder:
		p.processUpdateLiquidityOrder(a.orderID, a.newAmount)
		ActionsProcessed.WithLabelValues(p.pairCode, "update_liquidity").Inc()
	case actionRemoveOrderbook:
		p.processRemoveOrderbook(a.exchange)
		ActionsProcessed.WithLabelValues(p.pairCode, "remove_orderbook").Inc()
	}
}

// processCreate сводит входящий ордер и фиксирует результаты.
// Ошибка сохранения откатывает действие целиком: память пересобирается
// из хранилища, чтобы не разъехаться с ним.
func (p *Pool) processCreate(a poolAction) {
	order := a.order

	// Подавление ордеров, удалённых пока create был "в полёте".
	// К восстановленным из хранилища не применяется.
	if !a.rehydrated && !order.IsLocal() && p.keeper != nil && p.keeper.Contains(order.ID) {
		SuppressedCreates.Inc()
		p.log.Info("create suppressed: order was deleted in flight", zap.String("order_id", order.ID))
		// Строка могла успеть сохраниться до прихода удаления; без отмены
		// восстановление пула вернуло бы её в книгу
		if err := p.store.MarkCanceled(order.ID); err != nil && !errors.Is(err, models.ErrOrderNotFound) {
			p.log.Error("failed to cancel suppressed order",
				zap.String("order_id", order.ID), zap.Error(err))
		}
		return
	}

	start := time.Now()
	modified, deals := p.matcher.Match(p.orders, order)
	MatchLatency.WithLabelValues(p.pairCode).Observe(float64(time.Since(start).Microseconds()) / 1000)

	p.orders = append(p.orders, order)
	p.removeInactive()

	if len(modified) > 0 || len(deals) > 0 {
		if err := p.persist(modified, deals); err != nil {
			return
		}
	}

	if len(deals) > 0 {
		DealsCreated.WithLabelValues(p.pairCode).Add(float64(len(deals)))
	}

	p.refreshPrices()
	p.checkConsistency()
	p.report(deals)
}

// processCancel помечает ордер отменённым и убирает его из пула.
// Отмена несуществующего ордера - no-op.
func (p *Pool) processCancel(orderID string, force bool) {
	if err := p.store.MarkCanceled(orderID); err != nil && !errors.Is(err, models.ErrOrderNotFound) {
		p.log.Error("failed to mark order canceled", zap.String("order_id", orderID), zap.Error(err))
	}

	order := p.takeOrder(orderID)
	if order == nil {
		return
	}

	order.IsCanceled = true

	if !force && order.Blocked.IsPositive() {
		// apply-then-cancel: блокировка остаётся на учёте, внешний
		// результат найдёт ордер в хранилище и будет применён
		p.log.Info("canceled order keeps pending external block",
			zap.String("order_id", orderID),
			zap.String("blocked", order.Blocked.String()))
	}

	p.refreshPrices()
	p.report(nil)
}

// processExternalResult применяет подтверждение внешней биржи к паре
// ранее заблокированных ордеров.
func (p *Pool) processExternalResult(a poolAction) {
	res := a.externalResult

	bid, bidErr := p.findOrder(res.BidID)
	ask, askErr := p.findOrder(res.AskID)
	if bidErr != nil || askErr != nil {
		p.log.Error("external trade result for unknown orders",
			zap.String("bid_id", res.BidID),
			zap.String("ask_id", res.AskID),
			zap.NamedError("bid_err", bidErr),
			zap.NamedError("ask_err", askErr))
		a.replyTo(models.SaveExternalOrderResult{}, ErrExternalOrderPair)
		return
	}

	result, err := p.applyExternalResult(res, bid, ask)
	a.replyTo(result, err)
	p.refreshPrices()
	p.checkConsistency()
}

func (p *Pool) applyExternalResult(res *models.ExternalTradeResult, bid, ask *models.Order) (models.SaveExternalOrderResult, error) {
	total := res.Fulfilled.Add(res.Unfulfilled)
	if !total.IsPositive() {
		return models.SaveExternalOrderResult{}, nil
	}

	// Запоздавшее подтверждение: авто-разблокировка уже сняла блокировку,
	// и объём мог быть сведён повторно. Применение дало бы
	// fulfilled+blocked > amount и вторую сделку на тот же объём.
	for _, o := range []*models.Order{bid, ask} {
		if total.GreaterThan(o.Blocked) {
			p.log.Error("external result exceeds blocked amount",
				zap.String("order_id", o.ID),
				zap.String("total", total.String()),
				zap.String("blocked", o.Blocked.String()))
			return models.SaveExternalOrderResult{}, ErrStaleExternalResult
		}
	}

	for _, o := range []*models.Order{bid, ask} {
		o.Blocked = o.Blocked.Sub(total)
		if o.LiquidityBlocksCount > 0 {
			o.LiquidityBlocksCount--
		}
		p.blocks.Resolve(o.ID)
	}

	var result models.SaveExternalOrderResult
	var deals []*models.Deal
	modified := []*models.Order{bid, ask}

	if res.Fulfilled.IsPositive() {
		bid.Fulfilled = bid.Fulfilled.Add(res.Fulfilled)
		ask.Fulfilled = ask.Fulfilled.Add(res.Fulfilled)

		dealBidID, dealAskID := bid.ID, ask.ID
		external := externalSide(bid, ask)
		dealPrice := external.Price

		// Частичное исполнение внешнего контрагента: сделка должна
		// ссылаться на завершённую запись ровно на исполненный срез
		if res.Unfulfilled.IsPositive() {
			shadow := &models.Order{
				ID:          uuid.NewString(),
				IsBid:       external.IsBid,
				PairCode:    external.PairCode,
				Price:       external.Price,
				Amount:      res.Fulfilled,
				Fulfilled:   res.Fulfilled,
				DateCreated: time.Now().UTC(),
				UserID:      external.UserID,
				Exchange:    external.Exchange,
			}
			if err := p.store.Create(shadow); err != nil {
				p.log.Error("failed to create shadow order", zap.Error(err))
				return models.SaveExternalOrderResult{}, err
			}
			result.NewExternalOrderID = shadow.ID
			if external.IsBid {
				dealBidID = shadow.ID
			} else {
				dealAskID = shadow.ID
			}
		}

		deal := &models.Deal{
			ID:                  uuid.NewString(),
			DateCreated:         time.Now().UTC(),
			Price:               dealPrice,
			Volume:              res.Fulfilled,
			BidID:               dealBidID,
			AskID:               dealAskID,
			PairCode:            p.pairCode,
			FromInnerTradingBot: bid.FromInnerTradingBot,
		}
		deals = append(deals, deal)
		result.CreatedDealID = deal.ID
	}

	if err := p.persist(modified, deals); err != nil {
		return models.SaveExternalOrderResult{}, err
	}

	if len(deals) > 0 {
		DealsCreated.WithLabelValues(p.pairCode).Inc()
	}

	p.removeInactive()
	p.report(deals)
	return result, nil
}

// processAutoUnblock принудительно снимает блокировку, по которой внешняя
// биржа так и не прислала подтверждение. Аномалия ликвидности.
func (p *Pool) processAutoUnblock(orderID string) {
	order, err := p.findOrder(orderID)
	if err != nil {
		p.log.Warn("auto-unblock for unknown order", zap.String("order_id", orderID))
		return
	}

	if !order.Blocked.IsPositive() {
		return
	}

	p.log.Warn("forcing unblock: external confirmation never arrived",
		zap.String("order_id", orderID),
		zap.String("blocked", order.Blocked.String()))

	order.Blocked = decimal.Zero
	order.LiquidityBlocksCount = 0
	AutoUnblocks.WithLabelValues(p.pairCode).Inc()

	if err := p.persist([]*models.Order{order}, nil); err != nil {
		return
	}

	p.refreshPrices()
	p.report(nil)
}

// processUpdateLiquidityOrder применяет новое значение объёма
// импортированного ордера, пришедшее из фида.
func (p *Pool) processUpdateLiquidityOrder(orderID string, newAmount decimal.Decimal) {
	order, err := p.findOrder(orderID)
	if err != nil {
		return
	}

	consumed := order.Fulfilled.Add(order.Blocked)
	if newAmount.LessThan(consumed) {
		// Фид не может забрать уже сведённый объём
		p.log.Warn("liquidity update below consumed volume, clamping",
			zap.String("order_id", orderID),
			zap.String("requested", newAmount.String()),
			zap.String("consumed", consumed.String()))
		newAmount = consumed
	}

	order.Amount = newAmount

	if err := p.persist([]*models.Order{order}, nil); err != nil {
		return
	}

	p.removeInactive()
	p.refreshPrices()
	p.report(nil)
}

// processRemoveOrderbook убирает из пула все ордера указанной биржи
// (фид замолчал) и помечает их отменёнными в хранилище.
func (p *Pool) processRemoveOrderbook(exchange string) {
	var removedIDs []string
	kept := p.orders[:0]

	for _, o := range p.orders {
		if o.Exchange == exchange {
			o.IsCanceled = true
			removedIDs = append(removedIDs, o.ID)
			continue
		}
		kept = append(kept, o)
	}
	p.orders = kept
	p.notifyOrderbookRemoved(exchange)

	if len(removedIDs) == 0 {
		return
	}

	if err := p.store.MarkCanceledBatch(removedIDs); err != nil {
		p.log.Error("failed to cancel orderbook orders",
			zap.String("exchange", exchange), zap.Error(err))
	}

	p.log.Info("orderbook removed",
		zap.String("exchange", exchange), zap.Int("orders", len(removedIDs)))

	p.refreshPrices()
	p.report(nil)
}

// ============ Внутренние помощники воркера ============

// onExternalTrade - колбэк матчера при кросс-биржевом сведении:
// ставит обе стороны на учёт блокировок и уведомляет шлюз ликвидности.
// Уведомление асинхронное и best effort - матчинг оно не искажает.
func (p *Pool) onExternalTrade(bid, ask *models.Order) {
	p.blocks.Register(bid.ID, p.pairCode)
	p.blocks.Register(ask.ID, p.pairCode)
	ExternalBlocks.WithLabelValues(p.pairCode).Inc()

	if p.gateway == nil {
		return
	}

	bidCopy, askCopy := *bid, *ask
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.gateway.CreateTrade(ctx, bidCopy, askCopy); err != nil {
			p.log.Error("liquidity gateway create trade failed",
				zap.String("bid_id", bidCopy.ID),
				zap.String("ask_id", askCopy.ID),
				zap.Error(err))
		}
	}()
}

// persist сохраняет результаты действия одной транзакцией.
// При ошибке память пересобирается из хранилища (re-derive), чтобы
// следующее действие не работало с незафиксированным состоянием.
func (p *Pool) persist(orders []*models.Order, deals []*models.Deal) error {
	start := time.Now()
	err := p.store.SaveMatchResults(orders, deals)
	PersistLatency.WithLabelValues(p.pairCode).Observe(float64(time.Since(start).Microseconds()) / 1000)

	if err != nil {
		PersistFailures.WithLabelValues(p.pairCode).Inc()
		p.log.Error("persistence failed, reloading pool from storage", zap.Error(err))
		p.reload()
		return err
	}
	return nil
}

// reload пересобирает список ордеров из хранилища после сбоя сохранения
func (p *Pool) reload() {
	orders, err := p.store.GetActiveByPair(p.pairCode)
	if err != nil {
		p.log.Error("reload after failed persistence also failed", zap.Error(err))
		return
	}
	p.orders = orders
	p.refreshPrices()
}

// findOrder ищет ордер в пуле, затем в хранилище (уже вытесненные
// из памяти ордера с блокировками остаются там).
func (p *Pool) findOrder(orderID string) (*models.Order, error) {
	for _, o := range p.orders {
		if o.ID == orderID {
			return o, nil
		}
	}
	return p.store.GetByID(orderID)
}

// takeOrder удаляет ордер из пула и возвращает его; nil если не найден
func (p *Pool) takeOrder(orderID string) *models.Order {
	for i, o := range p.orders {
		if o.ID == orderID {
			p.orders = append(p.orders[:i], p.orders[i+1:]...)
			return o
		}
	}
	return nil
}

// removeInactive вычищает исполненные и отменённые ордера
func (p *Pool) removeInactive() {
	kept := p.orders[:0]
	for _, o := range p.orders {
		if o.IsActive() {
			kept = append(kept, o)
		}
	}
	// Обнуляем хвост, чтобы не держать ссылки
	for i := len(kept); i < len(p.orders); i++ {
		p.orders[i] = nil
	}
	p.orders = kept
	PoolOrders.WithLabelValues(p.pairCode).Set(float64(len(kept)))
}

// refreshPrices обновляет снапшот лучших цен.
// Учитываются только ордера с положительным доступным объёмом:
// полностью заблокированные остаются в пуле, но книгу не представляют.
func (p *Pool) refreshPrices() {
	prices := models.PairPrices{PairCode: p.pairCode}

	for _, o := range p.orders {
		if !o.AvailableAmount().IsPositive() {
			continue
		}
		if o.IsBid {
			if prices.BidMax.IsZero() || o.Price.GreaterThan(prices.BidMax) {
				prices.BidMax = o.Price
			}
		} else {
			if prices.AskMin.IsZero() || o.Price.LessThan(prices.AskMin) {
				prices.AskMin = o.Price
			}
		}
	}

	p.prices.Store(prices)
}

// checkConsistency логирует нарушение инварианта книги: лучший bid не
// может быть выше лучшего ask среди доступного объёма. Равные цены
// легально сосуществуют в несовместимых сегментах (бот/не-бот, разные
// внешние биржи). Не фатально, но указывает на баг матчинга.
func (p *Pool) checkConsistency() {
	prices := p.BestPrices()
	if prices.BidMax.IsZero() || prices.AskMin.IsZero() {
		return
	}
	if prices.BidMax.GreaterThan(prices.AskMin) {
		CrossedBookDetected.WithLabelValues(p.pairCode).Inc()
		p.log.Error("crossed book after processing",
			zap.String("bid_max", prices.BidMax.String()),
			zap.String("ask_min", prices.AskMin.String()))
	}
}

// report асинхронно рассылает снапшот книги и новые сделки.
// Копии снимаются в потоке воркера, доставка не блокирует очередь.
func (p *Pool) report(deals []*models.Deal) {
	if p.reporter == nil {
		return
	}

	var bids, asks []models.Order
	for _, o := range p.orders {
		if !o.AvailableAmount().IsPositive() {
			continue
		}
		if o.IsBid {
			bids = append(bids, *o)
		} else {
			asks = append(asks, *o)
		}
	}

	pair := p.pairCode
	go func() {
		p.reporter.OrderbookChanged(pair, bids, asks)
		if len(deals) > 0 {
			p.reporter.DealsCreated(deals)
		}
	}()
}

// notifyOrderbookRemoved сообщает шлюзу ликвидности, что стакан биржи
// снят с учёта и сведения по нему больше не принимаются. Асинхронно и
// best effort, как и CreateTrade.
func (p *Pool) notifyOrderbookRemoved(exchange string) {
	if p.gateway == nil {
		return
	}

	pair := p.pairCode
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.gateway.RemoveOrderbook(ctx, exchange, pair); err != nil {
			p.log.Error("liquidity gateway remove orderbook failed",
				zap.String("exchange", exchange), zap.Error(err))
		}
	}()
}

// externalSide возвращает внешнюю (импортированную) сторону сведения;
// по правилу совместимости бирж она может быть только одна
func externalSide(bid, ask *models.Order) *models.Order {
	if !bid.IsLocal() {
		return bid
	}
	return ask
}

// replyTo отвечает ожидающему продюсеру, если тот запросил ответ
func (a poolAction) replyTo(result models.SaveExternalOrderResult, err error) {
	if a.reply != nil {
		a.reply <- externalReply{result: result, err: err}
	}
}
