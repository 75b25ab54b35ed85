package price

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zkLinkProtocol/nova-point-backend/config"
	"github.com/zkLinkProtocol/nova-point-backend/schema"
)

func TestTokenPrice(t *testing.T) {
	m := Map{"ethereum": decimal.NewFromInt(2000)}

	p, err := TokenPrice(config.TokenConfig{Address: "0xusdc", Type: config.TokenTypeStable}, m)
	require.NoError(t, err)
	require.True(t, p.Equal(decimal.NewFromInt(1)))

	p, err = TokenPrice(config.TokenConfig{Address: "0xeth", PriceID: "ethereum"}, m)
	require.NoError(t, err)
	require.True(t, p.Equal(decimal.NewFromInt(2000)))

	_, err = TokenPrice(config.TokenConfig{Address: "0xwbtc", PriceID: "bitcoin"}, m)
	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
	require.Equal(t, "bitcoin", nfe.PriceID)
}

type fakeProvider struct {
	prices map[string]decimal.Decimal
	calls  int
}

func (p *fakeProvider) TokenPriceByTime(ctx context.Context, priceID string, at time.Time) (decimal.Decimal, error) {
	p.calls++
	v, ok := p.prices[priceID]
	if !ok {
		return decimal.Zero, &NotFoundError{PriceID: priceID}
	}
	return v, nil
}

type fakeSnapshotStore struct {
	snapshots map[int64]map[string]decimal.Decimal
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{snapshots: make(map[int64]map[string]decimal.Decimal)}
}

func (s *fakeSnapshotStore) PriceSnapshots(ctx context.Context, blockNumber int64, priceIDs []string) (map[string]decimal.Decimal, error) {
	m := make(map[string]decimal.Decimal)
	for _, id := range priceIDs {
		if p, ok := s.snapshots[blockNumber][id]; ok {
			m[id] = p
		}
	}
	return m, nil
}

func (s *fakeSnapshotStore) UpsertPriceSnapshots(ctx context.Context, snapshots []schema.TokenPriceSnapshot) error {
	for _, snap := range snapshots {
		m, ok := s.snapshots[snap.BlockNumber]
		if !ok {
			m = make(map[string]decimal.Decimal)
			s.snapshots[snap.BlockNumber] = m
		}
		m[snap.PriceID] = schema.FromDecimal128(snap.USDPrice)
	}
	return nil
}

func TestResolve(t *testing.T) {
	provider := &fakeProvider{prices: map[string]decimal.Decimal{
		"ethereum": decimal.NewFromInt(3000),
		"arbitrum": decimal.NewFromFloat(1.25),
	}}
	store := newFakeSnapshotStore()
	s := NewService(config.PriceConfig{Freshness: 5 * time.Minute, MaxAge: time.Hour}, provider, store, zap.NewNop())

	at := time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)
	m, err := s.Resolve(context.Background(), 100, at, []string{"ethereum", "arbitrum"})
	require.NoError(t, err)
	require.True(t, m["ethereum"].Equal(decimal.NewFromInt(3000)))
	require.True(t, m["arbitrum"].Equal(decimal.NewFromFloat(1.25)))
	require.Equal(t, 2, provider.calls)

	// Same block resolves from the stored snapshots, not the provider.
	m, err = s.Resolve(context.Background(), 100, at, []string{"ethereum", "arbitrum"})
	require.NoError(t, err)
	require.True(t, m["ethereum"].Equal(decimal.NewFromInt(3000)))
	require.Equal(t, 2, provider.calls)

	// A new block within the freshness window hits the in-process cache
	// and still writes its own snapshot.
	m, err = s.Resolve(context.Background(), 101, at.Add(time.Minute), []string{"ethereum"})
	require.NoError(t, err)
	require.True(t, m["ethereum"].Equal(decimal.NewFromInt(3000)))
	require.Equal(t, 2, provider.calls)
	require.True(t, store.snapshots[101]["ethereum"].Equal(decimal.NewFromInt(3000)))
}

func TestResolveUnknownPriceID(t *testing.T) {
	provider := &fakeProvider{prices: map[string]decimal.Decimal{}}
	s := NewService(config.PriceConfig{MaxAge: time.Hour}, provider, newFakeSnapshotStore(), zap.NewNop())
	_, err := s.Resolve(context.Background(), 100, time.Now(), []string{"nope"})
	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
}

func TestPickSample(t *testing.T) {
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	ms := func(t time.Time) float64 { return float64(t.UnixMilli()) }
	prices := [][2]float64{
		{ms(at.Add(-2 * time.Hour)), 2900},
		{ms(at.Add(-10 * time.Minute)), 3000},
		{ms(at.Add(10 * time.Minute)), 3100},
	}

	p, ok := pickSample(prices, at, time.Hour)
	require.True(t, ok)
	require.True(t, p.Equal(decimal.NewFromInt(3000)))

	// Only samples older than maxAge remain.
	p, ok = pickSample(prices[:1], at, time.Hour)
	require.False(t, ok)

	// Only future samples remain.
	_, ok = pickSample(prices[2:], at, time.Hour)
	require.False(t, ok)
}
