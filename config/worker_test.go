package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validWorkerConfig() WorkerConfig {
	cfg := DefaultWorkerConfig
	cfg.ChainRPCURL = "http://localhost:8545"
	cfg.Projects = []ProjectConfig{
		{Name: "novaswap", AdapterCmd: "novaswap-adapter", StartBlock: 1, TVL: true, Tx: true},
	}
	cfg.Tokens = []TokenConfig{
		{Address: "0xweth", Symbol: "WETH", Decimals: 18, PriceID: "ethereum"},
		{Address: "0xusdc", Symbol: "USDC", Decimals: 6, Type: TokenTypeStable},
	}
	cfg.Booster.PhaseStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg.Price.BaseURL = "https://api.example.com/v3"
	return cfg
}

func TestWorkerConfigValidate(t *testing.T) {
	require.NoError(t, validWorkerConfig().Validate())

	for _, tc := range []struct {
		name   string
		mutate func(*WorkerConfig)
	}{
		{"missing rpc url", func(cfg *WorkerConfig) { cfg.ChainRPCURL = "" }},
		{"no projects", func(cfg *WorkerConfig) { cfg.Projects = nil }},
		{"duplicate project", func(cfg *WorkerConfig) { cfg.Projects = append(cfg.Projects, cfg.Projects[0]) }},
		{"project without adapter", func(cfg *WorkerConfig) { cfg.Projects[0].AdapterCmd = "" }},
		{"project without units", func(cfg *WorkerConfig) { cfg.Projects[0].TVL = false; cfg.Projects[0].Tx = false }},
		{"no tokens", func(cfg *WorkerConfig) { cfg.Tokens = nil }},
		{"non-stable token without price id", func(cfg *WorkerConfig) { cfg.Tokens[0].PriceID = "" }},
		{"inverted season window", func(cfg *WorkerConfig) {
			cfg.Seasons = []SeasonConfig{{Season: 1, StartTime: time.Now(), EndTime: time.Now().Add(-time.Hour)}}
		}},
		{"missing phase start", func(cfg *WorkerConfig) { cfg.Booster.PhaseStart = time.Time{} }},
		{"missing price base url", func(cfg *WorkerConfig) { cfg.Price.BaseURL = "" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validWorkerConfig()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestEffectiveWithdrawStart(t *testing.T) {
	phaseStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	cfg := BoosterConfig{PhaseStart: phaseStart}
	require.Equal(t, phaseStart.AddDate(0, 1, 0), cfg.EffectiveWithdrawStart())

	explicit := phaseStart.AddDate(0, 2, 0)
	cfg.WithdrawStart = explicit
	require.Equal(t, explicit, cfg.EffectiveWithdrawStart())
}
