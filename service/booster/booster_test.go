package booster

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/zkLinkProtocol/nova-point-backend/config"
)

var (
	phaseStart    = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	withdrawStart = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
)

func newTestEngine(t *testing.T, tokens []config.TokenConfig, opts ...func(*config.BoosterConfig)) *Engine {
	t.Helper()
	cfg := config.BoosterConfig{
		PhaseStart:    phaseStart,
		WithdrawStart: withdrawStart,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg, tokens)
}

func TestEarlyBird(t *testing.T) {
	e := newTestEngine(t, nil)
	for _, tc := range []struct {
		name      string
		blockTime time.Time
		want      string
	}{
		{"phase start", phaseStart, "2"},
		{"last instant of week 0", phaseStart.Add(7*24*time.Hour - time.Second), "2"},
		{"first instant of week 1", phaseStart.Add(7 * 24 * time.Hour), "1.5"},
		{"first instant of week 2", phaseStart.Add(14 * 24 * time.Hour), "1.2"},
		{"just before withdraw start", withdrawStart.Add(-time.Second), "1.2"},
		{"withdraw start", withdrawStart, "1"},
		{"long after", withdrawStart.AddDate(1, 0, 0), "1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.True(t, e.EarlyBird(tc.blockTime).Equal(decimal.RequireFromString(tc.want)),
				"got %s", e.EarlyBird(tc.blockTime))
		})
	}
}

func TestLoyalty(t *testing.T) {
	e := newTestEngine(t, nil)
	deposit := phaseStart
	for _, tc := range []struct {
		name         string
		blockTime    time.Time
		firstDeposit *time.Time
		want         string
	}{
		{"before withdraw phase", withdrawStart.Add(-time.Hour), &deposit, "1"},
		{"unknown first deposit", withdrawStart.AddDate(0, 0, 10), nil, "1"},
		{"31 full days held", withdrawStart, &deposit, "1.155"},
		{"cap reached", withdrawStart.AddDate(1, 0, 0), &deposit, "1.5"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Loyalty(tc.blockTime, tc.firstDeposit)
			require.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s", got)
		})
	}
}

func TestLoyaltyDepositAfterBlockTime(t *testing.T) {
	e := newTestEngine(t, nil)
	deposit := withdrawStart.AddDate(0, 1, 0)
	got := e.Loyalty(withdrawStart, &deposit)
	require.True(t, got.Equal(decimal.NewFromInt(1)), "got %s", got)
}

func TestToken(t *testing.T) {
	tokens := []config.TokenConfig{
		{
			Address: "0xabc",
			Multipliers: []config.MultiplierConfig{
				{Multiplier: 1.5, Timestamp: phaseStart},
				{Multiplier: 2, Timestamp: phaseStart.AddDate(0, 0, 10)},
			},
		},
	}
	e := newTestEngine(t, tokens)
	for _, tc := range []struct {
		name      string
		address   string
		blockTime time.Time
		want      string
	}{
		{"first entry active", "0xabc", phaseStart.AddDate(0, 0, 5), "1.5"},
		{"second entry active", "0xabc", phaseStart.AddDate(0, 0, 10), "2"},
		{"all entries in the future falls back to oldest", "0xabc", phaseStart.Add(-time.Hour), "1.5"},
		{"unknown token", "0xdef", phaseStart, "1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Token(tc.address, tc.blockTime)
			require.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s", got)
		})
	}
}

func TestProject(t *testing.T) {
	e := newTestEngine(t, nil, func(cfg *config.BoosterConfig) {
		cfg.ProjectBoosters = []config.ProjectBoosterConfig{
			{Project: "novaswap", PointType: "txVol", Booster: 1.5},
		}
	})
	require.True(t, e.Project("novaswap", "txVol").Equal(decimal.RequireFromString("1.5")))
	require.True(t, e.Project("novaswap", "txNum").Equal(decimal.NewFromInt(1)))
	require.True(t, e.Project("other", "txVol").Equal(decimal.NewFromInt(1)))
}

func TestHoldBoosters(t *testing.T) {
	deposit := phaseStart
	e := newTestEngine(t, nil)
	// week 0: earlyBird 2, loyalty neutral before withdraw phase.
	got := e.HoldBoosters("0xpair", phaseStart.Add(time.Hour), &deposit)
	require.True(t, got.Equal(decimal.NewFromInt(2)), "got %s", got)
	// after withdraw start: earlyBird gone, loyalty active.
	got = e.HoldBoosters("0xpair", withdrawStart.AddDate(0, 0, 169), &deposit)
	require.True(t, got.Equal(decimal.RequireFromString("1.5")), "got %s", got)
}

func TestDefaultWithdrawStart(t *testing.T) {
	e := New(config.BoosterConfig{PhaseStart: phaseStart}, nil)
	require.True(t, e.EarlyBird(phaseStart.AddDate(0, 1, 0)).Equal(decimal.NewFromInt(1)))
	require.True(t, e.EarlyBird(phaseStart.AddDate(0, 1, 0).Add(-time.Second)).Equal(decimal.RequireFromString("1.2")))
}
