package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"exchange/internal/models"
)

// OrderbookBroadcaster - локальная доставка снапшотов книги
// (реализуется websocket-хабом)
type OrderbookBroadcaster interface {
	BroadcastOrderbook(pairCode string, bids, asks []models.Order)
	BroadcastDeals(deals []*models.Deal)
}

// Reporter рассылает изменения книги и новые сделки всем потребителям:
// websocket-подписчикам, сервису market-data и Kafka. Реализует
// matching.Reporter.
//
// Вызывается из горутин доставки пулов; все получатели best effort,
// ошибка одного не мешает остальным.
type Reporter struct {
	hub        OrderbookBroadcaster
	marketData *MarketDataClient
	kafka      *KafkaPublisher

	timeout time.Duration
	log     *zap.Logger
}

// NewReporter создает рассыльщик. Любой получатель может быть nil.
func NewReporter(hub OrderbookBroadcaster, md *MarketDataClient, kafka *KafkaPublisher, log *zap.Logger) *Reporter {
	return &Reporter{
		hub:        hub,
		marketData: md,
		kafka:      kafka,
		timeout:    10 * time.Second,
		log:        log,
	}
}

// OrderbookChanged рассылает новый снапшот книги пары
func (r *Reporter) OrderbookChanged(pairCode string, bids, asks []models.Order) {
	if r.hub != nil {
		r.hub.BroadcastOrderbook(pairCode, bids, asks)
	}

	if r.marketData != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		snapshot := OrderbookSnapshot{PairCode: pairCode, Bids: bids, Asks: asks}
		if err := r.marketData.SendOrderbook(ctx, snapshot); err != nil {
			r.log.Error("market-data orderbook delivery failed",
				zap.String("pair", pairCode), zap.Error(err))
		}
	}
}

// DealsCreated рассылает новые сделки
func (r *Reporter) DealsCreated(deals []*models.Deal) {
	if len(deals) == 0 {
		return
	}

	if r.hub != nil {
		r.hub.BroadcastDeals(deals)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if r.marketData != nil {
		if err := r.marketData.SendDeals(ctx, deals); err != nil {
			r.log.Error("market-data deals delivery failed", zap.Error(err))
		}
	}

	if r.kafka != nil {
		if err := r.kafka.PublishDeals(ctx, deals); err != nil {
			r.log.Error("kafka deals publish failed", zap.Error(err))
		}
	}
}
