package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client submits order requests to the execution gateway. A transport error,
// timeout or non-2xx status is always a rejection: the caller must never
// treat an ambiguous response as an order that reached the venue.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func New(baseURL string, timeout time.Duration, ratePerSec float64, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if ratePerSec <= 0 {
		ratePerSec = 2
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		log:     log,
	}
}

type submitResponse struct {
	Accepted bool         `json:"accepted"`
	Order    OrderRequest `json:"order"`
	Reason   string       `json:"reason"`
}

// Submit posts the request and returns whether the gateway accepted it plus
// the echoed configuration. err is non-nil only when accepted is false.
func (c *Client) Submit(ctx context.Context, req OrderRequest) (bool, OrderRequest, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, OrderRequest{}, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return false, OrderRequest{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return false, OrderRequest{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return false, OrderRequest{}, fmt.Errorf("gateway submit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return false, OrderRequest{}, fmt.Errorf("gateway submit: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, OrderRequest{}, fmt.Errorf("gateway submit: decode response: %w", err)
	}
	if !result.Accepted {
		reason := strings.TrimSpace(result.Reason)
		if reason == "" {
			reason = "no reason given"
		}
		return false, OrderRequest{}, fmt.Errorf("gateway rejected order %s: %s", req.ID, reason)
	}
	echo := result.Order
	if echo.ID == "" {
		// Some gateway builds omit the echo; fall back to what we sent.
		echo = req
	}
	return true, echo, nil
}
