package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"exchange/internal/matching"
	"exchange/internal/models"
	"exchange/pkg/utils"
)

// Ошибки сервиса ликвидности
var (
	ErrLocalExchange   = errors.New("liquidity feed cannot carry local orders")
	ErrUnknownExchange = errors.New("unknown liquidity exchange")
)

// knownExchanges - биржи, с которых принимается импортированная ликвидность
var knownExchanges = map[string]bool{
	models.ExchangeBinance:  true,
	models.ExchangeKraken:   true,
	models.ExchangeBitfinex: true,
}

// ImportOrderParams - ордер из фида внешней ликвидности
type ImportOrderParams struct {
	OrderID  string
	Exchange string
	PairCode string
	IsBid    bool
	Price    decimal.Decimal
	Amount   decimal.Decimal
}

// LiquidityService - обработка фида внешней ликвидности: импорт, изменение
// и удаление зеркалированных ордеров, подтверждения внешних сделок.
type LiquidityService struct {
	orders OrderRepositoryInterface
	pools  MatchingPools
	keeper *matching.DeletedOrdersKeeper
	feeds  *matching.FeedWatcher
	log    *zap.Logger
}

// NewLiquidityService создает сервис ликвидности
func NewLiquidityService(
	orders OrderRepositoryInterface,
	pools MatchingPools,
	keeper *matching.DeletedOrdersKeeper,
	feeds *matching.FeedWatcher,
	log *zap.Logger,
) *LiquidityService {
	return &LiquidityService{
		orders: orders,
		pools:  pools,
		keeper: keeper,
		feeds:  feeds,
		log:    log,
	}
}

// ImportOrder зеркалирует ордер внешней биржи в книгу.
// Если удаление этого ордера уже пришло (фид не упорядочен), импорт
// будет подавлен пулом по записи в keeper.
func (s *LiquidityService) ImportOrder(ctx context.Context, params ImportOrderParams) error {
	if err := s.validateFeed(params.Exchange, params.PairCode); err != nil {
		return err
	}
	if err := utils.ValidatePrice(params.Price); err != nil {
		return err
	}
	if err := utils.ValidateAmount(params.Amount); err != nil {
		return err
	}

	s.feeds.Touch(params.Exchange, params.PairCode)

	// Удаление этого ордера уже пришло (фид не упорядочен): create
	// отбрасывается до сохранения, иначе восстановление пула после
	// рестарта вернуло бы осиротевшую активную строку в книгу
	if s.keeper.Contains(params.OrderID) {
		s.log.Info("liquidity create dropped: order already deleted",
			zap.String("order_id", params.OrderID))
		return nil
	}

	order := &models.Order{
		ID:          params.OrderID,
		IsBid:       params.IsBid,
		PairCode:    params.PairCode,
		Price:       params.Price,
		Amount:      params.Amount,
		DateCreated: time.Now().UTC(),
		Exchange:    params.Exchange,
	}
	if err := order.Validate(); err != nil {
		return err
	}

	if err := s.orders.Create(order); err != nil {
		return err
	}
	s.pools.EnqueueCreate(order)
	return nil
}

// UpdateOrder применяет новое значение объёма импортированного ордера
func (s *LiquidityService) UpdateOrder(ctx context.Context, exchange, pairCode, orderID string, newAmount decimal.Decimal) error {
	if err := s.validateFeed(exchange, pairCode); err != nil {
		return err
	}
	if err := utils.ValidateAmount(newAmount); err != nil {
		return err
	}

	s.feeds.Touch(exchange, pairCode)
	s.pools.EnqueueUpdateLiquidityOrder(pairCode, orderID, newAmount)
	return nil
}

// DeleteOrder убирает импортированный ордер из книги. Запись в keeper
// подавляет create этого же ордера, пришедший с опозданием.
func (s *LiquidityService) DeleteOrder(ctx context.Context, exchange, pairCode, orderID string) error {
	if err := s.validateFeed(exchange, pairCode); err != nil {
		return err
	}

	s.feeds.Touch(exchange, pairCode)
	s.keeper.Add(orderID)
	s.pools.EnqueueCancel(pairCode, orderID, false)
	return nil
}

// ApplyExternalResult применяет подтверждение внешней биржи по ранее
// заблокированной паре ордеров. Синхронный: ответ с ID созданных
// записей возвращается сервису ликвидности.
func (s *LiquidityService) ApplyExternalResult(ctx context.Context, res *models.ExternalTradeResult) (models.SaveExternalOrderResult, error) {
	if err := utils.ValidatePairCode(res.PairCode); err != nil {
		return models.SaveExternalOrderResult{}, err
	}

	result, err := s.pools.ApplyExternalResult(ctx, res)
	if err != nil {
		s.log.Error("external trade result rejected",
			zap.String("pair", res.PairCode),
			zap.String("bid_id", res.BidID),
			zap.String("ask_id", res.AskID),
			zap.Error(err))
		return models.SaveExternalOrderResult{}, err
	}
	return result, nil
}

// RemoveOrderbook принудительно убирает стакан биржи из книги пары
func (s *LiquidityService) RemoveOrderbook(ctx context.Context, exchange, pairCode string) error {
	if err := s.validateFeed(exchange, pairCode); err != nil {
		return err
	}

	s.feeds.Forget(exchange, pairCode)
	s.pools.EnqueueRemoveOrderbook(exchange, pairCode)
	return nil
}

func (s *LiquidityService) validateFeed(exchange, pairCode string) error {
	if exchange == models.ExchangeLocal {
		return ErrLocalExchange
	}
	if !knownExchanges[exchange] {
		return ErrUnknownExchange
	}
	return utils.ValidatePairCode(pairCode)
}
