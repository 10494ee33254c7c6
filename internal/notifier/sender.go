package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"exchange/internal/models"
	"exchange/pkg/retry"
)

const senderBatchSize = 100

// DealSource - сделки, ожидающие доставки в deal-ending
type DealSource interface {
	GetUnsentToDealEnding(limit int) ([]*models.Deal, error)
	MarkSentToDealEnding(ids []string) error
}

// DealEndingSender - фоновая досылка сделок в сервис расчётов.
//
// Сделка пишется в БД синхронно с матчингом, а доставка в deal-ending
// асинхронная: сервис расчётов может быть недоступен, и матчинг из-за
// этого не останавливается. Sender периодически выбирает недоставленные
// сделки, доставляет с retry и помечает успех.
type DealEndingSender struct {
	source   DealSource
	client   *DealEndingClient
	interval time.Duration
	log      *zap.Logger
}

// NewDealEndingSender создает фоновый отправитель
func NewDealEndingSender(source DealSource, client *DealEndingClient, interval time.Duration, log *zap.Logger) *DealEndingSender {
	return &DealEndingSender{
		source:   source,
		client:   client,
		interval: interval,
		log:      log,
	}
}

// Run запускает цикл досылки. Блокируется до отмены контекста.
func (s *DealEndingSender) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

// flush доставляет одну пачку недоставленных сделок
func (s *DealEndingSender) flush(ctx context.Context) {
	deals, err := s.source.GetUnsentToDealEnding(senderBatchSize)
	if err != nil {
		s.log.Error("failed to load unsent deals", zap.Error(err))
		return
	}
	if len(deals) == 0 {
		return
	}

	cfg := retry.ConservativeConfig()
	cfg.RetryIf = retry.RetryIfNotContext

	var sent []string
	for _, deal := range deals {
		deal := deal
		err := retry.Do(ctx, func() error {
			return s.client.Send(ctx, deal)
		}, cfg)
		if err != nil {
			// Недоставленные останутся в выборке следующего тика
			s.log.Warn("deal-ending delivery failed",
				zap.String("deal_id", deal.ID), zap.Error(err))
			continue
		}
		sent = append(sent, deal.ID)
	}

	if len(sent) == 0 {
		return
	}
	if err := s.source.MarkSentToDealEnding(sent); err != nil {
		s.log.Error("failed to mark deals as sent", zap.Error(err))
		return
	}
	s.log.Info("deals delivered to deal-ending", zap.Int("count", len(sent)))
}
