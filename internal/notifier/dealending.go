package notifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"exchange/internal/models"
)

// DealEndingClient доставляет сделки в сервис расчётов (списание и
// зачисление средств по сторонам сделки).
type DealEndingClient struct {
	baseURL string
	http    *HTTPClient
}

// NewDealEndingClient создает клиент deal-ending
func NewDealEndingClient(baseURL string, hc *HTTPClient) *DealEndingClient {
	return &DealEndingClient{baseURL: baseURL, http: hc}
}

// Send доставляет одну сделку. Ошибка означает, что доставку нужно
// повторить: флаг sent_to_deal_ending выставляет только вызывающий
// и только после успешного ответа.
func (c *DealEndingClient) Send(ctx context.Context, deal *models.Deal) error {
	body, err := json.Marshal(deal)
	if err != nil {
		return fmt.Errorf("marshal deal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/deals", bytes.NewReader(body))
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
		return fmt.Errorf("deal-ending: status %d for deal %s", resp.StatusCode, deal.ID)
	}
	return nil
}
