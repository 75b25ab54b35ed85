package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

var DefaultWorkerConfig = WorkerConfig{
	EthTokenAddress: "0x000000000000000000000000000000000000800a",
	EthPriceID:      "ethereum",
	AdapterTimeout:  10 * time.Minute,
	IngestInterval:  time.Minute,
	ScoreInterval:   time.Minute,
	ScheduleCron:    "0 0,8,16 * * *",
	AggregateCron:   "30 1 * * *",
	ReferralBooster: 0.1,
	Booster:         DefaultBoosterConfig,
	Price:           DefaultPriceConfig,
	MongoDB:         DefaultMongoDBConfig,
	Log:             zap.NewProductionConfig(),
}

type WorkerConfig struct {
	ChainRPCURL     string          `yaml:"chain_rpc_url"`
	EthTokenAddress string          `yaml:"eth_token_address"`
	EthPriceID      string          `yaml:"eth_price_id"`
	AdapterTimeout  time.Duration   `yaml:"adapter_timeout"`
	IngestInterval  time.Duration   `yaml:"ingest_interval"`
	ScoreInterval   time.Duration   `yaml:"score_interval"`
	ScheduleCron    string          `yaml:"schedule_cron"`
	AggregateCron   string          `yaml:"aggregate_cron"`
	ReferralBooster float64         `yaml:"referral_booster"`
	Projects        []ProjectConfig `yaml:"projects"`
	Tokens          []TokenConfig   `yaml:"tokens"`
	Seasons         []SeasonConfig  `yaml:"seasons"`
	Booster         BoosterConfig   `yaml:"booster"`
	Price           PriceConfig     `yaml:"price"`
	MongoDB         MongoDBConfig   `yaml:"mongodb"`
	Log             zap.Config      `yaml:"log"`
}

func (cfg WorkerConfig) Validate() error {
	if cfg.ChainRPCURL == "" {
		return fmt.Errorf("'chain_rpc_url' is required")
	}
	if len(cfg.Projects) == 0 {
		return fmt.Errorf("'projects' is empty")
	}
	seen := make(map[string]struct{})
	for _, p := range cfg.Projects {
		if p.Name == "" {
			return fmt.Errorf("project without 'name'")
		}
		if _, ok := seen[p.Name]; ok {
			return fmt.Errorf("duplicate project %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.AdapterCmd == "" {
			return fmt.Errorf("project %q: 'adapter_cmd' is required", p.Name)
		}
		if !p.TVL && !p.Tx {
			return fmt.Errorf("project %q: at least one of 'tvl', 'tx' must be enabled", p.Name)
		}
	}
	if len(cfg.Tokens) == 0 {
		return fmt.Errorf("'tokens' is empty")
	}
	for _, t := range cfg.Tokens {
		if t.Address == "" {
			return fmt.Errorf("token without 'address'")
		}
		if !t.IsStable() && t.PriceID == "" {
			return fmt.Errorf("token %q: 'cg_price_id' is required", t.Address)
		}
	}
	for i, s := range cfg.Seasons {
		if !s.StartTime.Before(s.EndTime) {
			return fmt.Errorf("season #%d: 'start_time' must precede 'end_time'", i)
		}
	}
	if err := cfg.Booster.Validate(); err != nil {
		return fmt.Errorf("validate 'booster' field: %w", err)
	}
	if err := cfg.Price.Validate(); err != nil {
		return fmt.Errorf("validate 'price' field: %w", err)
	}
	return nil
}

// TokenMap indexes the supported-token registry by token address.
func (cfg WorkerConfig) TokenMap() map[string]TokenConfig {
	m := make(map[string]TokenConfig)
	for _, t := range cfg.Tokens {
		m[t.Address] = t
	}
	return m
}

type ProjectConfig struct {
	Name        string   `yaml:"name"`
	AdapterCmd  string   `yaml:"adapter_cmd"`
	AdapterArgs []string `yaml:"adapter_args"`
	StartBlock  int64    `yaml:"start_block"`
	TVL         bool     `yaml:"tvl"`
	Tx          bool     `yaml:"tx"`
	// Bridge projects accrue their per-transaction count points under
	// the bridge point type instead of txNum.
	Bridge bool `yaml:"bridge"`
	// DirectHold projects snapshot wallet balances rather than LP
	// positions; their hold points are typed directHold instead of
	// lpHold.
	DirectHold bool `yaml:"direct_hold"`
}

const TokenTypeStable = "stable"

type TokenConfig struct {
	Address     string             `yaml:"address"`
	Symbol      string             `yaml:"symbol"`
	Decimals    int32              `yaml:"decimals"`
	PriceID     string             `yaml:"cg_price_id"`
	Type        string             `yaml:"type"`
	Multipliers []MultiplierConfig `yaml:"multipliers"`
}

func (t TokenConfig) IsStable() bool {
	return t.Type == TokenTypeStable
}

type MultiplierConfig struct {
	Multiplier float64   `yaml:"multiplier"`
	Timestamp  time.Time `yaml:"timestamp"`
}

type SeasonConfig struct {
	Season    int       `yaml:"season"`
	StartTime time.Time `yaml:"start_time"`
	EndTime   time.Time `yaml:"end_time"`
}

var DefaultBoosterConfig = BoosterConfig{}

type BoosterConfig struct {
	PhaseStart         time.Time                 `yaml:"phase_start"`
	WithdrawStart      time.Time                 `yaml:"withdraw_start"`
	ProjectBoosters    []ProjectBoosterConfig    `yaml:"project_boosters"`
	AddressMultipliers []AddressMultiplierConfig `yaml:"address_multipliers"`
}

func (cfg BoosterConfig) Validate() error {
	if cfg.PhaseStart.IsZero() {
		return fmt.Errorf("'phase_start' is required")
	}
	for _, pb := range cfg.ProjectBoosters {
		if pb.Booster <= 0 {
			return fmt.Errorf("project booster for %q/%q must be positive", pb.Project, pb.PointType)
		}
	}
	return nil
}

// EffectiveWithdrawStart defaults to one month past the phase start when
// no explicit withdraw start is configured.
func (cfg BoosterConfig) EffectiveWithdrawStart() time.Time {
	if !cfg.WithdrawStart.IsZero() {
		return cfg.WithdrawStart
	}
	return cfg.PhaseStart.AddDate(0, 1, 0)
}

type ProjectBoosterConfig struct {
	Project   string  `yaml:"project"`
	PointType string  `yaml:"point_type"`
	Booster   float64 `yaml:"booster"`
}

type AddressMultiplierConfig struct {
	Address     string             `yaml:"address"`
	Multipliers []MultiplierConfig `yaml:"multipliers"`
}

var DefaultPriceConfig = PriceConfig{
	RequestTimeout: 10 * time.Second,
	MaxRetries:     3,
	Freshness:      5 * time.Minute,
	MaxAge:         time.Hour,
}

type PriceConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     uint64        `yaml:"max_retries"`
	Freshness      time.Duration `yaml:"freshness"`
	MaxAge         time.Duration `yaml:"max_age"`
}

func (cfg PriceConfig) Validate() error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("'base_url' is required")
	}
	if cfg.MaxAge <= 0 {
		return fmt.Errorf("'max_age' must be positive")
	}
	return nil
}
