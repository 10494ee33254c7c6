package matching

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

// ============ ТЕСТОВЫЕ ПОМОЩНИКИ ============

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var orderSeq int

// testOrder создает локальный ордер с заданными параметрами
func testOrder(isBid bool, price, amount string) *models.Order {
	orderSeq++
	return &models.Order{
		ID:          fmt.Sprintf("order-%d", orderSeq),
		IsBid:       isBid,
		PairCode:    "BTC_USDT",
		Price:       dec(price),
		Amount:      dec(amount),
		DateCreated: time.Now().UTC().Add(time.Duration(orderSeq) * time.Millisecond),
		UserID:      int64(orderSeq),
		Exchange:    models.ExchangeLocal,
	}
}

func externalOrder(isBid bool, price, amount, exchange string) *models.Order {
	o := testOrder(isBid, price, amount)
	o.Exchange = exchange
	return o
}

// ============ ТЕСТЫ ============

// Встречные ордера по одной цене сводятся полностью, сделка по цене
// ордера из пула.
func TestMatcher_FullLocalMatch(t *testing.T) {
	m := NewMatcher(nil)

	ask := testOrder(false, "100", "2")
	bid := testOrder(true, "100", "2")

	modified, deals := m.Match([]*models.Order{ask}, bid)

	if len(deals) != 1 {
		t.Fatalf("deals = %d, want 1", len(deals))
	}
	deal := deals[0]
	if !deal.Price.Equal(dec("100")) {
		t.Errorf("deal price = %s, want 100", deal.Price)
	}
	if !deal.Volume.Equal(dec("2")) {
		t.Errorf("deal volume = %s, want 2", deal.Volume)
	}
	if deal.BidID != bid.ID || deal.AskID != ask.ID {
		t.Errorf("deal sides = (%s, %s), want (%s, %s)", deal.BidID, deal.AskID, bid.ID, ask.ID)
	}

	if len(modified) != 2 {
		t.Fatalf("modified = %d, want 2", len(modified))
	}
	if bid.IsActive() || ask.IsActive() {
		t.Error("полностью сведённые ордера должны стать неактивными")
	}
	if !bid.Fulfilled.Equal(dec("2")) || !ask.Fulfilled.Equal(dec("2")) {
		t.Errorf("fulfilled = (%s, %s), want (2, 2)", bid.Fulfilled, ask.Fulfilled)
	}
}

// Сделка создаётся по цене отдыхающего ордера, не входящего:
// bid по 105 против ask по 100 даёт сделку по 100.
func TestMatcher_DealAtRestingPrice(t *testing.T) {
	m := NewMatcher(nil)

	ask := testOrder(false, "100", "1")
	bid := testOrder(true, "105", "1")

	_, deals := m.Match([]*models.Order{ask}, bid)

	if len(deals) != 1 {
		t.Fatalf("deals = %d, want 1", len(deals))
	}
	if !deals[0].Price.Equal(dec("100")) {
		t.Errorf("deal price = %s, want 100 (цена ордера из пула)", deals[0].Price)
	}
}

// Входящий bid обходит ask'и от дешёвых к дорогим; при равной цене
// побеждает раньше пришедший.
func TestMatcher_PriceTimePriority(t *testing.T) {
	m := NewMatcher(nil)

	askExpensive := testOrder(false, "3", "1")
	askCheapFirst := testOrder(false, "2", "1")
	askCheapSecond := testOrder(false, "2", "1")

	pool := []*models.Order{askExpensive, askCheapFirst, askCheapSecond}
	bid := testOrder(true, "3", "2")

	_, deals := m.Match(pool, bid)

	if len(deals) != 2 {
		t.Fatalf("deals = %d, want 2", len(deals))
	}
	if deals[0].AskID != askCheapFirst.ID {
		t.Errorf("первая сделка с %s, want %s (дешёвый и ранний)", deals[0].AskID, askCheapFirst.ID)
	}
	if deals[1].AskID != askCheapSecond.ID {
		t.Errorf("вторая сделка с %s, want %s (дешёвый, но поздний)", deals[1].AskID, askCheapSecond.ID)
	}
	if !askExpensive.Fulfilled.IsZero() {
		t.Error("дорогой ask не должен был свестись")
	}
	if bid.IsActive() {
		t.Error("bid должен быть исполнен полностью")
	}
}

// Входящий ask обходит bid'ы от дорогих к дешёвым
func TestMatcher_AskMatchesHighestBidsFirst(t *testing.T) {
	m := NewMatcher(nil)

	bidLow := testOrder(true, "90", "1")
	bidHigh := testOrder(true, "110", "1")

	pool := []*models.Order{bidLow, bidHigh}
	ask := testOrder(false, "90", "1")

	_, deals := m.Match(pool, ask)

	if len(deals) != 1 {
		t.Fatalf("deals = %d, want 1", len(deals))
	}
	if deals[0].BidID != bidHigh.ID {
		t.Errorf("сделка с %s, want %s (самый дорогой bid)", deals[0].BidID, bidHigh.ID)
	}
	if !deals[0].Price.Equal(dec("110")) {
		t.Errorf("deal price = %s, want 110", deals[0].Price)
	}
}

// Частичное сведение: входящий объём распределяется по нескольким
// уровням, остаток остаётся несведённым.
func TestMatcher_PartialFillAcrossLevels(t *testing.T) {
	m := NewMatcher(nil)

	ask1 := testOrder(false, "100", "0.5")
	ask2 := testOrder(false, "101", "0.3")

	pool := []*models.Order{ask2, ask1}
	bid := testOrder(true, "101", "1")

	modified, deals := m.Match(pool, bid)

	if len(deals) != 2 {
		t.Fatalf("deals = %d, want 2", len(deals))
	}
	if !deals[0].Volume.Equal(dec("0.5")) || !deals[0].Price.Equal(dec("100")) {
		t.Errorf("deal[0] = %s@%s, want 0.5@100", deals[0].Volume, deals[0].Price)
	}
	if !deals[1].Volume.Equal(dec("0.3")) || !deals[1].Price.Equal(dec("101")) {
		t.Errorf("deal[1] = %s@%s, want 0.3@101", deals[1].Volume, deals[1].Price)
	}
	if !bid.AvailableAmount().Equal(dec("0.2")) {
		t.Errorf("остаток bid = %s, want 0.2", bid.AvailableAmount())
	}
	if !bid.IsActive() {
		t.Error("частично сведённый bid должен остаться активным")
	}
	// Входящий ордер возвращается последним
	if modified[len(modified)-1].ID != bid.ID {
		t.Error("входящий ордер должен быть последним в modified")
	}
}

// Сведение против частично потреблённых отдыхающих ордеров: в расчёт
// идёт только доступный объём (amount - fulfilled - blocked).
// Ask'и с доступными 6 и 4 разбирают входящий bid на 10 без остатка.
func TestMatcher_PartiallyConsumedRestingOrders(t *testing.T) {
	m := NewMatcher(nil)

	askFirst := testOrder(false, "100", "10")
	askFirst.Fulfilled = dec("3")
	askFirst.Blocked = dec("1") // доступно 6

	askSecond := testOrder(false, "100", "6")
	askSecond.Fulfilled = dec("2") // доступно 4

	pool := []*models.Order{askFirst, askSecond}
	bid := testOrder(true, "100", "10")

	_, deals := m.Match(pool, bid)

	if len(deals) != 2 {
		t.Fatalf("deals = %d, want 2", len(deals))
	}
	if !deals[0].Volume.Equal(dec("6")) || deals[0].AskID != askFirst.ID {
		t.Errorf("deal[0] = %s с %s, want 6 с %s", deals[0].Volume, deals[0].AskID, askFirst.ID)
	}
	if !deals[1].Volume.Equal(dec("4")) || deals[1].AskID != askSecond.ID {
		t.Errorf("deal[1] = %s с %s, want 4 с %s", deals[1].Volume, deals[1].AskID, askSecond.ID)
	}

	if !askFirst.Fulfilled.Equal(dec("9")) || !askFirst.Blocked.Equal(dec("1")) {
		t.Errorf("askFirst = %s/%s blocked, want 9/1 (блокировка не тронута)",
			askFirst.Fulfilled, askFirst.Blocked)
	}
	if !askFirst.AvailableAmount().IsZero() {
		t.Errorf("askFirst available = %s, want 0", askFirst.AvailableAmount())
	}
	if askSecond.IsActive() {
		t.Error("askSecond должен быть исполнен полностью")
	}
	if !bid.Fulfilled.Equal(dec("10")) || bid.IsActive() {
		t.Errorf("bid fulfilled = %s, want 10 без остатка", bid.Fulfilled)
	}
}

// Пустой пул: входящий ордер остаётся нетронутым и ждёт встречных
func TestMatcher_EmptyPool(t *testing.T) {
	m := NewMatcher(nil)

	bid := testOrder(true, "100", "1")
	modified, deals := m.Match(nil, bid)

	if len(modified) != 0 || len(deals) != 0 {
		t.Errorf("modified = %d, deals = %d, want 0, 0", len(modified), len(deals))
	}
	if !bid.Fulfilled.IsZero() || !bid.Blocked.IsZero() {
		t.Error("входящий ордер не должен меняться")
	}
}

// Ордера по несовпадающим ценам не сводятся
func TestMatcher_NoCross(t *testing.T) {
	m := NewMatcher(nil)

	ask := testOrder(false, "105", "1")
	bid := testOrder(true, "100", "1")

	modified, deals := m.Match([]*models.Order{ask}, bid)

	if len(modified) != 0 || len(deals) != 0 {
		t.Errorf("modified = %d, deals = %d, want 0, 0", len(modified), len(deals))
	}
}

// Сведение с внешним ордером блокирует объём на обеих сторонах,
// сделку не создаёт и вызывает колбэк.
func TestMatcher_ExternalMatchBlocksVolume(t *testing.T) {
	var gotBid, gotAsk *models.Order
	m := NewMatcher(func(bid, ask *models.Order) {
		gotBid, gotAsk = bid, ask
	})

	ask := externalOrder(false, "100", "3", models.ExchangeBinance)
	bid := testOrder(true, "100", "2")

	modified, deals := m.Match([]*models.Order{ask}, bid)

	if len(deals) != 0 {
		t.Fatalf("deals = %d, want 0 (сделка до подтверждения не создаётся)", len(deals))
	}
	if len(modified) != 2 {
		t.Fatalf("modified = %d, want 2", len(modified))
	}

	if !bid.Blocked.Equal(dec("2")) || !ask.Blocked.Equal(dec("2")) {
		t.Errorf("blocked = (%s, %s), want (2, 2)", bid.Blocked, ask.Blocked)
	}
	if bid.LiquidityBlocksCount != 1 || ask.LiquidityBlocksCount != 1 {
		t.Errorf("blocks count = (%d, %d), want (1, 1)",
			bid.LiquidityBlocksCount, ask.LiquidityBlocksCount)
	}
	if !bid.Fulfilled.IsZero() || !ask.Fulfilled.IsZero() {
		t.Error("fulfilled не должен меняться до подтверждения")
	}

	if gotBid == nil || gotAsk == nil {
		t.Fatal("колбэк внешнего сведения не вызван")
	}
	if gotBid.ID != bid.ID || gotAsk.ID != ask.ID {
		t.Errorf("колбэк получил (%s, %s), want (%s, %s)", gotBid.ID, gotAsk.ID, bid.ID, ask.ID)
	}

	// Заблокированный полностью bid недоступен, но формально активен
	if !bid.AvailableAmount().IsZero() {
		t.Errorf("available bid = %s, want 0", bid.AvailableAmount())
	}
	if !bid.IsActive() {
		t.Error("заблокированный ордер остаётся активным")
	}
}

// Два внешних ордера между собой не сводятся: не более одной
// не-локальной стороны в сведении.
func TestMatcher_TwoExternalSidesDoNotMatch(t *testing.T) {
	called := false
	m := NewMatcher(func(bid, ask *models.Order) { called = true })

	ask := externalOrder(false, "100", "1", models.ExchangeBinance)
	bid := externalOrder(true, "100", "1", models.ExchangeKraken)

	modified, deals := m.Match([]*models.Order{ask}, bid)

	if len(modified) != 0 || len(deals) != 0 || called {
		t.Error("внешние ордера не должны сводиться между собой")
	}
}

// Ордера внутреннего бота сводятся только между собой
func TestMatcher_BotFlagIsolation(t *testing.T) {
	m := NewMatcher(nil)

	botAsk := testOrder(false, "100", "1")
	botAsk.FromInnerTradingBot = true

	userBid := testOrder(true, "100", "1")

	if modified, deals := m.Match([]*models.Order{botAsk}, userBid); len(modified) != 0 || len(deals) != 0 {
		t.Error("пользовательский bid не должен сводиться с ордером бота")
	}

	botBid := testOrder(true, "100", "1")
	botBid.FromInnerTradingBot = true

	_, deals := m.Match([]*models.Order{botAsk}, botBid)
	if len(deals) != 1 {
		t.Fatalf("deals = %d, want 1 (бот с ботом сводится)", len(deals))
	}
	if !deals[0].FromInnerTradingBot {
		t.Error("флаг бота должен копироваться в сделку")
	}
}

// Полностью заблокированные ордера пропускаются: доступного объёма нет,
// хотя цены формально пересекаются.
func TestMatcher_FullyBlockedOrdersSkipped(t *testing.T) {
	m := NewMatcher(nil)

	ask := externalOrder(false, "2.5", "1", models.ExchangeBinance)
	ask.Blocked = dec("1")
	ask.LiquidityBlocksCount = 1

	bid := testOrder(true, "3", "1")

	modified, deals := m.Match([]*models.Order{ask}, bid)

	if len(modified) != 0 || len(deals) != 0 {
		t.Error("заблокированный ask не должен участвовать в сведении")
	}
	if !ask.Blocked.Equal(dec("1")) {
		t.Errorf("blocked = %s, want 1 (без изменений)", ask.Blocked)
	}
}

// Смешанный пул: локальный и внешний ask на пересекающихся ценах.
// Сначала сводится более дешёвый независимо от биржи.
func TestMatcher_MixedPoolCheapestFirst(t *testing.T) {
	m := NewMatcher(func(bid, ask *models.Order) {})

	localAsk := testOrder(false, "101", "1")
	extAsk := externalOrder(false, "100", "1", models.ExchangeBitfinex)

	pool := []*models.Order{localAsk, extAsk}
	bid := testOrder(true, "101", "2")

	_, deals := m.Match(pool, bid)

	// Внешний ask дешевле: его объём блокируется первым, затем
	// локальный даёт сделку
	if !extAsk.Blocked.Equal(dec("1")) {
		t.Errorf("external blocked = %s, want 1", extAsk.Blocked)
	}
	if len(deals) != 1 {
		t.Fatalf("deals = %d, want 1", len(deals))
	}
	if deals[0].AskID != localAsk.ID {
		t.Errorf("сделка с %s, want %s", deals[0].AskID, localAsk.ID)
	}
	if !bid.Blocked.Equal(dec("1")) || !bid.Fulfilled.Equal(dec("1")) {
		t.Errorf("bid blocked/fulfilled = %s/%s, want 1/1", bid.Blocked, bid.Fulfilled)
	}
	if bid.IsActive() && bid.AvailableAmount().IsPositive() {
		t.Error("bid должен быть полностью распределён")
	}
}

// Отменённые и чужие по паре ордера не участвуют в отборе
func TestMatcher_CandidateFiltering(t *testing.T) {
	m := NewMatcher(nil)

	canceled := testOrder(false, "100", "1")
	canceled.IsCanceled = true

	otherPair := testOrder(false, "100", "1")
	otherPair.PairCode = "ETH_USDT"

	sameSide := testOrder(true, "100", "1")

	pool := []*models.Order{canceled, otherPair, sameSide}
	bid := testOrder(true, "100", "1")

	modified, deals := m.Match(pool, bid)
	if len(modified) != 0 || len(deals) != 0 {
		t.Error("ни один из ордеров пула не должен был свестись")
	}
}

// Инвариант fulfilled + blocked <= amount сохраняется на длинной
// последовательности сведений.
func TestMatcher_InvariantHeldAcrossSequence(t *testing.T) {
	m := NewMatcher(func(bid, ask *models.Order) {})

	pool := []*models.Order{
		testOrder(false, "100", "1"),
		externalOrder(false, "99", "0.7", models.ExchangeBinance),
		testOrder(false, "101", "2.5"),
	}

	incoming := []*models.Order{
		testOrder(true, "100", "1.2"),
		testOrder(true, "101", "2"),
		testOrder(true, "99", "0.4"),
	}

	for _, in := range incoming {
		m.Match(pool, in)
		pool = append(pool, in)

		for _, o := range pool {
			consumed := o.Fulfilled.Add(o.Blocked)
			if consumed.GreaterThan(o.Amount) {
				t.Fatalf("ордер %s: fulfilled+blocked = %s > amount %s",
					o.ID, consumed, o.Amount)
			}
			if o.AvailableAmount().IsNegative() {
				t.Fatalf("ордер %s: available = %s < 0", o.ID, o.AvailableAmount())
			}
		}

		kept := pool[:0]
		for _, o := range pool {
			if o.IsActive() {
				kept = append(kept, o)
			}
		}
		pool = kept
	}
}

func BenchmarkMatcher_Match(b *testing.B) {
	m := NewMatcher(nil)

	pool := make([]*models.Order, 0, 500)
	for i := 0; i < 500; i++ {
		pool = append(pool, testOrder(false, fmt.Sprintf("%d", 100+i%50), "1000000"))
	}

	bid := testOrder(true, "110", "1")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bid.Fulfilled = decimal.Zero
		m.Match(pool, bid)
	}
}
