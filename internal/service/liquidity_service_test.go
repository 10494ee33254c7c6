package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"exchange/internal/matching"
	"exchange/internal/models"
)

func newLiquidityService() (*LiquidityService, *mockOrderRepo, *mockPools, *matching.DeletedOrdersKeeper) {
	repo := newMockOrderRepo()
	pools := &mockPools{}
	keeper := matching.NewDeletedOrdersKeeper(time.Minute)
	feeds := matching.NewFeedWatcher(time.Minute, time.Second, zap.NewNop())
	svc := NewLiquidityService(repo, pools, keeper, feeds, zap.NewNop())
	return svc, repo, pools, keeper
}

func validImport() ImportOrderParams {
	return ImportOrderParams{
		OrderID:  "ext-1",
		Exchange: models.ExchangeBinance,
		PairCode: "BTC_USDT",
		IsBid:    false,
		Price:    dec("100"),
		Amount:   dec("2"),
	}
}

// ============ ТЕСТЫ ============

func TestLiquidityService_ImportOrder(t *testing.T) {
	svc, repo, pools, _ := newLiquidityService()

	if err := svc.ImportOrder(context.Background(), validImport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.created) != 1 {
		t.Fatal("импортированный ордер не сохранён")
	}
	saved := repo.created[0]
	if saved.ID != "ext-1" || saved.Exchange != models.ExchangeBinance {
		t.Errorf("unexpected order: %+v", saved)
	}
	if saved.IsLocal() {
		t.Error("импортированный ордер не должен быть локальным")
	}
	if len(pools.created) != 1 {
		t.Fatal("ордер не поставлен на сведение")
	}
}

func TestLiquidityService_ImportOrderValidation(t *testing.T) {
	svc, repo, _, _ := newLiquidityService()

	tests := []struct {
		name    string
		mutate  func(*ImportOrderParams)
		wantErr error
	}{
		{
			name:    "локальная биржа",
			mutate:  func(p *ImportOrderParams) { p.Exchange = models.ExchangeLocal },
			wantErr: ErrLocalExchange,
		},
		{
			name:    "неизвестная биржа",
			mutate:  func(p *ImportOrderParams) { p.Exchange = "mtgox" },
			wantErr: ErrUnknownExchange,
		},
		{
			name:    "нулевой объём",
			mutate:  func(p *ImportOrderParams) { p.Amount = dec("0") },
			wantErr: nil, // любая ошибка валидации
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validImport()
			tt.mutate(&params)
			err := svc.ImportOrder(context.Background(), params)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if len(repo.created) != 0 {
		t.Error("невалидный импорт не должен сохраняться")
	}
}

// Фид не гарантирует порядок: create может прийти после delete того же
// ордера. Такой create отбрасывается до сохранения, иначе в хранилище
// осталась бы активная строка без ордера в пуле.
func TestLiquidityService_ImportAfterDeleteDropped(t *testing.T) {
	svc, repo, pools, keeper := newLiquidityService()

	if err := svc.DeleteOrder(context.Background(), models.ExchangeBinance, "BTC_USDT", "ext-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !keeper.Contains("ext-1") {
		t.Fatal("удаление не зарегистрировано")
	}

	if err := svc.ImportOrder(context.Background(), validImport()); err != nil {
		t.Fatalf("запоздавший create должен молча отбрасываться: %v", err)
	}

	if len(repo.created) != 0 {
		t.Error("ордер сохранён после собственного удаления")
	}
	if len(pools.created) != 0 {
		t.Error("ордер поставлен на сведение после собственного удаления")
	}
}

func TestLiquidityService_DeleteOrderRegistersInKeeper(t *testing.T) {
	svc, _, pools, keeper := newLiquidityService()

	err := svc.DeleteOrder(context.Background(), models.ExchangeBinance, "BTC_USDT", "ext-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !keeper.Contains("ext-1") {
		t.Error("удалённый ордер не зарегистрирован в keeper")
	}
	if len(pools.cancels) != 1 {
		t.Fatal("отмена не поставлена в очередь")
	}
}

func TestLiquidityService_UpdateOrder(t *testing.T) {
	svc, _, pools, _ := newLiquidityService()

	err := svc.UpdateOrder(context.Background(), models.ExchangeBinance, "BTC_USDT", "ext-1", dec("5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pools.updates) != 1 || !pools.updates[0].Amount.Equal(dec("5")) {
		t.Errorf("unexpected updates: %+v", pools.updates)
	}

	if err := svc.UpdateOrder(context.Background(), models.ExchangeBinance, "BTC_USDT", "ext-1", dec("0")); err == nil {
		t.Error("нулевой объём должен отклоняться")
	}
}

func TestLiquidityService_ApplyExternalResult(t *testing.T) {
	svc, _, pools, _ := newLiquidityService()
	pools.externalReply = models.SaveExternalOrderResult{CreatedDealID: "d-1"}

	res := &models.ExternalTradeResult{
		PairCode: "BTC_USDT", BidID: "b-1", AskID: "a-1", Fulfilled: dec("1"),
	}
	result, err := svc.ApplyExternalResult(context.Background(), res)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CreatedDealID != "d-1" {
		t.Errorf("result = %+v", result)
	}
	if pools.externalResult != res {
		t.Error("результат не дошёл до пула")
	}

	pools.externalErr = matching.ErrExternalOrderPair
	if _, err := svc.ApplyExternalResult(context.Background(), res); !errors.Is(err, matching.ErrExternalOrderPair) {
		t.Errorf("err = %v, want ErrExternalOrderPair", err)
	}
}

func TestLiquidityService_RemoveOrderbook(t *testing.T) {
	svc, _, pools, _ := newLiquidityService()

	if err := svc.RemoveOrderbook(context.Background(), models.ExchangeKraken, "BTC_USDT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pools.removals) != 1 || pools.removals[0] != [2]string{models.ExchangeKraken, "BTC_USDT"} {
		t.Errorf("unexpected removals: %v", pools.removals)
	}
}
