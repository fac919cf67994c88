package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"lp-hedge-bot/internal/rebalance"
)

// HTTPExposureSource aggregates LP positions from the on-chain position
// service. The service sums per-chain balances itself; one entry arrives
// per symbol.
type HTTPExposureSource struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewHTTPExposureSource(baseURL string, timeout time.Duration, log *zap.Logger) *HTTPExposureSource {
	return &HTTPExposureSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (s *HTTPExposureSource) ReadExposures(ctx context.Context) (map[string]rebalance.ExposureReading, error) {
	payload, err := getJSON(ctx, s.http, s.baseURL+"/lp/positions")
	if err != nil {
		return nil, fmt.Errorf("%w: exposures: %v", ErrDataUnavailable, err)
	}
	list, ok := payload["positions"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: exposures: missing positions list", ErrDataUnavailable)
	}
	out := make(map[string]rebalance.ExposureReading, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		symbol := strings.ToUpper(stringFromAny(entry["symbol"]))
		if symbol == "" {
			continue
		}
		qty, ok := floatFromAny(entry["quantity"])
		if !ok {
			s.log.Warn("dropping exposure entry with unparseable quantity", zap.String("symbol", symbol))
			continue
		}
		reading := out[symbol]
		reading.Instrument = symbol
		reading.Quantity += qty
		out[symbol] = reading
	}
	return out, nil
}

// HTTPHedgeSource reads the broker-held derivative positions. The broker
// reports a mark price for every listed symbol, including flat ones, so the
// USD gate has a price even when no hedge exists yet.
type HTTPHedgeSource struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewHTTPHedgeSource(baseURL string, timeout time.Duration, log *zap.Logger) *HTTPHedgeSource {
	return &HTTPHedgeSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (s *HTTPHedgeSource) ReadHedges(ctx context.Context) (map[string]rebalance.HedgePosition, error) {
	payload, err := getJSON(ctx, s.http, s.baseURL+"/positions")
	if err != nil {
		return nil, fmt.Errorf("%w: hedges: %v", ErrDataUnavailable, err)
	}
	list, ok := payload["positions"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: hedges: missing positions list", ErrDataUnavailable)
	}
	out := make(map[string]rebalance.HedgePosition, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		symbol := strings.ToUpper(stringFromAny(entry["symbol"]))
		if symbol == "" {
			continue
		}
		qty, _ := floatFromAny(entry["quantity"])
		notional, _ := floatFromAny(entry["notional"])
		price, _ := floatFromAny(entry["price"])
		funding, _ := floatFromAny(entry["fundingRate"])
		out[symbol] = rebalance.HedgePosition{
			Instrument:  symbol,
			Quantity:    qty,
			NotionalUSD: notional,
			MarkPrice:   price,
			FundingRate: funding,
		}
	}
	return out, nil
}

func getJSON(ctx context.Context, client *http.Client, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}

// floatFromAny tolerates numbers arriving as JSON numbers or as strings,
// which venue APIs mix freely.
func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
