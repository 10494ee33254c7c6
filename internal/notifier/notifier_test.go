package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"exchange/internal/models"
)

func testDeal(id string) *models.Deal {
	return &models.Deal{
		ID:          id,
		DateCreated: time.Now().UTC(),
		Price:       decimal.RequireFromString("100"),
		Volume:      decimal.RequireFromString("1"),
		BidID:       "bid-1",
		AskID:       "ask-1",
		PairCode:    "BTC_USDT",
	}
}

// ============ ТЕСТЫ ============

func TestMarketDataClient_SendOrderbook(t *testing.T) {
	var gotPath string
	var gotSnapshot OrderbookSnapshot

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotSnapshot); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hc := NewHTTPClient(DefaultHTTPClientConfig())
	defer hc.Close()
	client := NewMarketDataClient(srv.URL, hc, zap.NewNop())

	snapshot := OrderbookSnapshot{
		PairCode: "BTC_USDT",
		Bids:     []models.Order{{ID: "b-1", IsBid: true, PairCode: "BTC_USDT"}},
	}
	if err := client.SendOrderbook(context.Background(), snapshot); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/api/v1/orderbook" {
		t.Errorf("path = %s, want /api/v1/orderbook", gotPath)
	}
	if gotSnapshot.PairCode != "BTC_USDT" || len(gotSnapshot.Bids) != 1 {
		t.Errorf("unexpected payload: %+v", gotSnapshot)
	}
}

func TestMarketDataClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hc := NewHTTPClient(DefaultHTTPClientConfig())
	defer hc.Close()
	client := NewMarketDataClient(srv.URL, hc, zap.NewNop())

	if err := client.SendDeals(context.Background(), []*models.Deal{testDeal("d-1")}); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestDealEndingClient_Send(t *testing.T) {
	var gotDeal models.Deal
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/deals" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotDeal)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	hc := NewHTTPClient(DefaultHTTPClientConfig())
	defer hc.Close()
	client := NewDealEndingClient(srv.URL, hc)

	if err := client.Send(context.Background(), testDeal("d-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotDeal.ID != "d-1" {
		t.Errorf("deal id = %s, want d-1", gotDeal.ID)
	}
}

func TestLiquidityClient_CreateTrade(t *testing.T) {
	var gotReq externalTradeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/trades" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hc := NewHTTPClient(DefaultHTTPClientConfig())
	defer hc.Close()
	client := NewLiquidityClient(srv.URL, hc)

	bid := models.Order{ID: "b-1", IsBid: true, Exchange: models.ExchangeLocal}
	ask := models.Order{ID: "a-1", Exchange: models.ExchangeBinance}
	if err := client.CreateTrade(context.Background(), bid, ask); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotReq.Bid.ID != "b-1" || gotReq.Ask.ID != "a-1" {
		t.Errorf("unexpected payload: %+v", gotReq)
	}
}

func TestLiquidityClient_RemoveOrderbook(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hc := NewHTTPClient(DefaultHTTPClientConfig())
	defer hc.Close()
	client := NewLiquidityClient(srv.URL, hc)

	if err := client.RemoveOrderbook(context.Background(), "binance", "BTC_USDT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["exchange"] != "binance" || got["pair_code"] != "BTC_USDT" {
		t.Errorf("unexpected payload: %v", got)
	}
}

// ============ Sender ============

type fakeDealSource struct {
	mu     sync.Mutex
	unsent []*models.Deal
	marked []string
	err    error
}

func (s *fakeDealSource) GetUnsentToDealEnding(limit int) ([]*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if len(s.unsent) > limit {
		return s.unsent[:limit], nil
	}
	return s.unsent, nil
}

func (s *fakeDealSource) MarkSentToDealEnding(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, ids...)
	return nil
}

func TestDealEndingSender_FlushMarksDelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hc := NewHTTPClient(DefaultHTTPClientConfig())
	defer hc.Close()

	source := &fakeDealSource{unsent: []*models.Deal{testDeal("d-1"), testDeal("d-2")}}
	sender := NewDealEndingSender(source, NewDealEndingClient(srv.URL, hc), time.Second, zap.NewNop())

	sender.flush(context.Background())

	source.mu.Lock()
	defer source.mu.Unlock()
	if len(source.marked) != 2 {
		t.Fatalf("помечено %d сделок, want 2", len(source.marked))
	}
}

func TestDealEndingSender_FailedDeliveryNotMarked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var deal models.Deal
		json.NewDecoder(r.Body).Decode(&deal)
		// d-1 не доставляется никогда, d-2 - с первого раза
		if deal.ID == "d-1" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hc := NewHTTPClient(DefaultHTTPClientConfig())
	defer hc.Close()

	source := &fakeDealSource{unsent: []*models.Deal{testDeal("d-1"), testDeal("d-2")}}
	sender := NewDealEndingSender(source, NewDealEndingClient(srv.URL, hc), time.Second, zap.NewNop())

	sender.flush(context.Background())

	source.mu.Lock()
	defer source.mu.Unlock()
	if len(source.marked) != 1 || source.marked[0] != "d-2" {
		t.Fatalf("помечено %v, want только d-2", source.marked)
	}
}

func TestDealEndingSender_SourceErrorIsNotFatal(t *testing.T) {
	source := &fakeDealSource{err: errors.New("db down")}
	hc := NewHTTPClient(DefaultHTTPClientConfig())
	defer hc.Close()
	sender := NewDealEndingSender(source, NewDealEndingClient("http://127.0.0.1:0", hc), time.Second, zap.NewNop())

	// Не паникует и ничего не помечает
	sender.flush(context.Background())
	if len(source.marked) != 0 {
		t.Error("при ошибке выборки ничего не должно помечаться")
	}
}

// ============ Reporter ============

type fakeHub struct {
	mu    sync.Mutex
	books int
	deals int
}

func (h *fakeHub) BroadcastOrderbook(pairCode string, bids, asks []models.Order) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.books++
}

func (h *fakeHub) BroadcastDeals(deals []*models.Deal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deals += len(deals)
}

func TestReporter_FansOutToAllSinks(t *testing.T) {
	var mdOrderbooks, mdDeals int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.URL.Path {
		case "/api/v1/orderbook":
			mdOrderbooks++
		case "/api/v1/deals":
			mdDeals++
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hc := NewHTTPClient(DefaultHTTPClientConfig())
	defer hc.Close()

	hub := &fakeHub{}
	reporter := NewReporter(hub, NewMarketDataClient(srv.URL, hc, zap.NewNop()), nil, zap.NewNop())

	reporter.OrderbookChanged("BTC_USDT", []models.Order{{ID: "b-1"}}, nil)
	reporter.DealsCreated([]*models.Deal{testDeal("d-1")})

	hub.mu.Lock()
	if hub.books != 1 || hub.deals != 1 {
		t.Errorf("hub получил books=%d deals=%d, want 1/1", hub.books, hub.deals)
	}
	hub.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	if mdOrderbooks != 1 || mdDeals != 1 {
		t.Errorf("market-data получил books=%d deals=%d, want 1/1", mdOrderbooks, mdDeals)
	}
}

func TestReporter_NilSinksAreSkipped(t *testing.T) {
	reporter := NewReporter(nil, nil, nil, zap.NewNop())
	reporter.OrderbookChanged("BTC_USDT", nil, nil)
	reporter.DealsCreated([]*models.Deal{testDeal("d-1")})
}
