package notifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"exchange/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OrderbookSnapshot - снапшот книги пары для внешних потребителей
type OrderbookSnapshot struct {
	PairCode string         `json:"pair_code"`
	Bids     []models.Order `json:"bids"`
	Asks     []models.Order `json:"asks"`
}

// MarketDataClient отправляет снапшоты книги и сделки в сервис market-data
type MarketDataClient struct {
	baseURL string
	http    *HTTPClient
	log     *zap.Logger
}

// NewMarketDataClient создает клиент market-data
func NewMarketDataClient(baseURL string, hc *HTTPClient, log *zap.Logger) *MarketDataClient {
	return &MarketDataClient{baseURL: baseURL, http: hc, log: log}
}

// SendOrderbook отправляет снапшот книги пары
func (c *MarketDataClient) SendOrderbook(ctx context.Context, snapshot OrderbookSnapshot) error {
	return c.post(ctx, "/api/v1/orderbook", snapshot)
}

// SendDeals отправляет новые сделки
func (c *MarketDataClient) SendDeals(ctx context.Context, deals []*models.Deal) error {
	return c.post(ctx, "/api/v1/deals", deals)
}

func (c *MarketDataClient) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("market-data %s: status %d", path, resp.StatusCode)
	}
	return nil
}
