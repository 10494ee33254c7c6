package notifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"exchange/internal/models"
)

// LiquidityClient уведомляет сервис ликвидности о кросс-биржевых
// сведениях и удалённых стаканах. Реализует matching.LiquidityGateway.
type LiquidityClient struct {
	baseURL string
	http    *HTTPClient
}

// NewLiquidityClient создает клиент сервиса ликвидности
func NewLiquidityClient(baseURL string, hc *HTTPClient) *LiquidityClient {
	return &LiquidityClient{baseURL: baseURL, http: hc}
}

// externalTradeRequest - заявка на исполнение сведения на внешней бирже
type externalTradeRequest struct {
	Bid models.Order `json:"bid"`
	Ask models.Order `json:"ask"`
}

// CreateTrade просит сервис ликвидности исполнить сведение на внешней
// бирже. Подтверждение придёт позже отдельным ExternalTradeResult.
func (c *LiquidityClient) CreateTrade(ctx context.Context, bid, ask models.Order) error {
	return c.post(ctx, "/api/v1/trades", externalTradeRequest{Bid: bid, Ask: ask})
}

// RemoveOrderbook сообщает о принудительном удалении стакана биржи
// (фид замолчал)
func (c *LiquidityClient) RemoveOrderbook(ctx context.Context, exchange, pairCode string) error {
	payload := map[string]string{"exchange": exchange, "pair_code": pairCode}
	return c.post(ctx, "/api/v1/orderbook/remove", payload)
}

func (c *LiquidityClient) post(ctx context.Context, path string, payload interface{}) error {
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
		return fmt.Errorf("liquidity %s: status %d", path, resp.StatusCode)
	}
	return nil
}
