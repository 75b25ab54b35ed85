package price

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/zkLinkProtocol/nova-point-backend/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MarketChartProvider queries a price-history API for per-day market
// charts and picks the sample closest to (and not newer than) the
// requested time. Transient HTTP failures are retried with bounded
// exponential backoff; after exhaustion the scoring unit fails and is
// deferred to the next cycle.
type MarketChartProvider struct {
	cfg    config.PriceConfig
	client *http.Client
}

func NewMarketChartProvider(cfg config.PriceConfig) *MarketChartProvider {
	return &MarketChartProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"`
}

// MarketChart fetches the [timestampMs, usdPrice] series for one day.
func (p *MarketChartProvider) MarketChart(ctx context.Context, priceID string, day time.Time) ([][2]float64, error) {
	u, err := url.Parse(fmt.Sprintf("%s/coins/%s/market_chart", p.cfg.BaseURL, url.PathEscape(priceID)))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("date", day.UTC().Format("02-01-2006"))
	q.Set("vs_currency", "usd")
	u.RawQuery = q.Encode()

	var resp marketChartResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if p.cfg.APIKey != "" {
			req.Header.Set("x-api-key", p.cfg.APIKey)
		}
		res, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			err := fmt.Errorf("unexpected status %d", res.StatusCode)
			if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
			return fmt.Errorf("decode market chart: %w", err)
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.cfg.MaxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("get market chart for %q: %w", priceID, err)
	}
	return resp.Prices, nil
}

// TokenPriceByTime returns the latest sample at or before the requested
// time. A sample older than the configured max age is an error rather
// than a silently wrong price.
func (p *MarketChartProvider) TokenPriceByTime(ctx context.Context, priceID string, at time.Time) (decimal.Decimal, error) {
	prices, err := p.MarketChart(ctx, priceID, at)
	if err != nil {
		return decimal.Zero, err
	}
	best, ok := pickSample(prices, at, p.cfg.MaxAge)
	if !ok {
		return decimal.Zero, fmt.Errorf("%q at %s: %w", priceID, at.UTC().Format(time.RFC3339), ErrStalePrice)
	}
	return best, nil
}

// pickSample selects the newest [tsMs, price] sample not after `at` and
// not older than maxAge relative to it.
func pickSample(prices [][2]float64, at time.Time, maxAge time.Duration) (decimal.Decimal, bool) {
	var (
		found  bool
		bestTs time.Time
		best   float64
	)
	for _, s := range prices {
		ts := time.UnixMilli(int64(s[0]))
		if ts.After(at) {
			continue
		}
		if at.Sub(ts) > maxAge {
			continue
		}
		if !found || ts.After(bestTs) {
			found = true
			bestTs = ts
			best = s[1]
		}
	}
	if !found {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(best), true
}
