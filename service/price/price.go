// Package price resolves USD token prices at a given block time. Prices
// come from an external market-chart provider, are cached in-process per
// price id with hour-bucketed lookup, and are persisted as per-block
// snapshots so re-scoring a block never re-queries the provider.
package price

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zkLinkProtocol/nova-point-backend/config"
	"github.com/zkLinkProtocol/nova-point-backend/schema"
)

// Map holds resolved USD prices keyed by price id for one scoring unit.
type Map map[string]decimal.Decimal

// NotFoundError is fatal for the scoring unit being evaluated: a
// supported, non-stable token must have a price for its block.
type NotFoundError struct {
	PriceID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("price not found for %q", e.PriceID)
}

// ErrStalePrice marks a provider sample more than the configured max age
// older than the requested timestamp. Such a price is never used.
var ErrStalePrice = errors.New("price sample too old")

var one = decimal.NewFromInt(1)

// TokenPrice returns the USD price for a token. Stablecoins are pinned
// to exactly 1.0 regardless of the supplied map.
func TokenPrice(token config.TokenConfig, m Map) (decimal.Decimal, error) {
	if token.IsStable() {
		return one, nil
	}
	p, ok := m[token.PriceID]
	if !ok {
		return decimal.Zero, &NotFoundError{PriceID: token.PriceID}
	}
	return p, nil
}

// EthPrice returns the USD price of ETH from the map.
func EthPrice(ethPriceID string, m Map) (decimal.Decimal, error) {
	p, ok := m[ethPriceID]
	if !ok {
		return decimal.Zero, &NotFoundError{PriceID: ethPriceID}
	}
	return p, nil
}

// Provider supplies a USD price for a price id at a point in time.
type Provider interface {
	TokenPriceByTime(ctx context.Context, priceID string, at time.Time) (decimal.Decimal, error)
}

// SnapshotStore persists resolved (block, priceId) -> price pairs.
type SnapshotStore interface {
	PriceSnapshots(ctx context.Context, blockNumber int64, priceIDs []string) (map[string]decimal.Decimal, error)
	UpsertPriceSnapshots(ctx context.Context, snapshots []schema.TokenPriceSnapshot) error
}

type sample struct {
	at    time.Time
	price decimal.Decimal
}

type Service struct {
	cfg      config.PriceConfig
	provider Provider
	store    SnapshotStore
	logger   *zap.Logger

	mu     sync.Mutex
	cache  map[string]map[int64]sample // priceID -> hour bucket -> sample
	latest map[string]sample
}

func NewService(cfg config.PriceConfig, provider Provider, store SnapshotStore, logger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		provider: provider,
		store:    store,
		logger:   logger,
		cache:    make(map[string]map[int64]sample),
		latest:   make(map[string]sample),
	}
}

// Resolve produces the price map for one scoring unit. Snapshots stored
// for the block win over everything; the in-process cache is consulted
// next; only then is the provider queried, and the result is written
// back as a snapshot (idempotent cache-through).
func (s *Service) Resolve(ctx context.Context, blockNumber int64, at time.Time, priceIDs []string) (Map, error) {
	m := make(Map, len(priceIDs))
	missing := make([]string, 0, len(priceIDs))
	snapshots, err := s.store.PriceSnapshots(ctx, blockNumber, priceIDs)
	if err != nil {
		return nil, fmt.Errorf("load price snapshots: %w", err)
	}
	for _, id := range priceIDs {
		if p, ok := snapshots[id]; ok {
			m[id] = p
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return m, nil
	}
	var newSnapshots []schema.TokenPriceSnapshot
	for _, id := range missing {
		p, ok := s.cachedPrice(id, at)
		if !ok {
			p, err = s.provider.TokenPriceByTime(ctx, id, at)
			if err != nil {
				return nil, fmt.Errorf("fetch price for %q: %w", id, err)
			}
			s.logger.Debug("fetched price",
				zap.String("priceId", id),
				zap.Time("at", at),
				zap.String("price", p.String()))
			s.storeSample(id, at, p)
		}
		m[id] = p
		newSnapshots = append(newSnapshots, schema.TokenPriceSnapshot{
			BlockNumber: blockNumber,
			PriceID:     id,
			USDPrice:    schema.ToDecimal128(p),
		})
	}
	if err := s.store.UpsertPriceSnapshots(ctx, newSnapshots); err != nil {
		return nil, fmt.Errorf("save price snapshots: %w", err)
	}
	return m, nil
}

func (s *Service) cachedPrice(priceID string, at time.Time) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buckets, ok := s.cache[priceID]; ok {
		if smp, ok := buckets[hourBucket(at)]; ok {
			if age := at.Sub(smp.at); age <= s.cfg.MaxAge && age >= -s.cfg.MaxAge {
				return smp.price, true
			}
		}
	}
	// Tolerate the most recent sample when it is close enough to the
	// requested time, so back-to-back units don't refetch every minute.
	if smp, ok := s.latest[priceID]; ok {
		if d := at.Sub(smp.at); d >= -s.cfg.Freshness && d <= s.cfg.Freshness {
			return smp.price, true
		}
	}
	return decimal.Zero, false
}

func (s *Service) storeSample(priceID string, at time.Time, p decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buckets, ok := s.cache[priceID]
	if !ok {
		buckets = make(map[int64]sample)
		s.cache[priceID] = buckets
	}
	smp := sample{at: at, price: p}
	buckets[hourBucket(at)] = smp
	if prev, ok := s.latest[priceID]; !ok || at.After(prev.at) {
		s.latest[priceID] = smp
	}
}

func hourBucket(t time.Time) int64 {
	return t.UTC().Truncate(time.Hour).Unix()
}
