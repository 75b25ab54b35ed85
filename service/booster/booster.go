// Package booster computes the multipliers layered onto base point
// values. The engine is pure: every multiplier is a deterministic
// function of a timestamp and the configuration captured at
// construction, and missing configuration always degrades to a neutral
// 1.0 factor instead of an error.
package booster

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zkLinkProtocol/nova-point-backend/config"
)

const week = 7 * 24 * time.Hour

var (
	one = decimal.NewFromInt(1)

	earlyBirdWeek0 = decimal.RequireFromString("2")
	earlyBirdWeek1 = decimal.RequireFromString("1.5")
	earlyBirdLate  = decimal.RequireFromString("1.2")

	loyaltyPerDay = decimal.RequireFromString("0.005")
	loyaltyCap    = decimal.RequireFromString("0.5")
)

type multiplierEntry struct {
	multiplier decimal.Decimal
	timestamp  time.Time
}

type Engine struct {
	phaseStart    time.Time
	withdrawStart time.Time

	// pointType -> project -> booster
	projectBoosters map[string]map[string]decimal.Decimal
	// sorted descending by timestamp, built once at load time
	tokenMultipliers   map[string][]multiplierEntry
	addressMultipliers map[string][]multiplierEntry
}

func New(cfg config.BoosterConfig, tokens []config.TokenConfig) *Engine {
	e := &Engine{
		phaseStart:         cfg.PhaseStart,
		withdrawStart:      cfg.EffectiveWithdrawStart(),
		projectBoosters:    make(map[string]map[string]decimal.Decimal),
		tokenMultipliers:   make(map[string][]multiplierEntry),
		addressMultipliers: make(map[string][]multiplierEntry),
	}
	for _, pb := range cfg.ProjectBoosters {
		m, ok := e.projectBoosters[pb.PointType]
		if !ok {
			m = make(map[string]decimal.Decimal)
			e.projectBoosters[pb.PointType] = m
		}
		m[pb.Project] = decimal.NewFromFloat(pb.Booster)
	}
	for _, t := range tokens {
		e.tokenMultipliers[t.Address] = newEntries(t.Multipliers)
	}
	for _, am := range cfg.AddressMultipliers {
		e.addressMultipliers[am.Address] = newEntries(am.Multipliers)
	}
	return e
}

func newEntries(ms []config.MultiplierConfig) []multiplierEntry {
	es := make([]multiplierEntry, 0, len(ms))
	for _, m := range ms {
		es = append(es, multiplierEntry{
			multiplier: decimal.NewFromFloat(m.Multiplier),
			timestamp:  m.Timestamp,
		})
	}
	sort.SliceStable(es, func(i, j int) bool { return es[i].timestamp.After(es[j].timestamp) })
	return es
}

// EarlyBird returns the launch-phase multiplier for a block time. Weekly
// windows are half-open [start, end) measured from the phase start:
// week 0 pays x2, week 1 pays x1.5, and later weeks pay x1.2 until the
// withdraw phase opens.
func (e *Engine) EarlyBird(blockTime time.Time) decimal.Decimal {
	if blockTime.Before(e.phaseStart.Add(week)) {
		return earlyBirdWeek0
	}
	if blockTime.Before(e.phaseStart.Add(2 * week)) {
		return earlyBirdWeek1
	}
	if blockTime.Before(e.withdrawStart) {
		return earlyBirdLate
	}
	return one
}

// Loyalty grows 0.5% per full day since the address's first deposit,
// capped at +50%. It stays neutral before the withdraw phase and for
// addresses whose first deposit is unknown.
func (e *Engine) Loyalty(blockTime time.Time, firstDeposit *time.Time) decimal.Decimal {
	if blockTime.Before(e.withdrawStart) || firstDeposit == nil {
		return one
	}
	days := int64(blockTime.Sub(*firstDeposit).Hours() / 24)
	if days < 0 {
		days = 0
	}
	bonus := loyaltyPerDay.Mul(decimal.NewFromInt(days))
	if bonus.GreaterThan(loyaltyCap) {
		bonus = loyaltyCap
	}
	return one.Add(bonus)
}

func (e *Engine) Project(projectName, pointType string) decimal.Decimal {
	if m, ok := e.projectBoosters[pointType]; ok {
		if b, ok := m[projectName]; ok {
			return b
		}
	}
	return one
}

// Token returns the token multiplier in effect at blockTime: the entry
// with the greatest timestamp <= blockTime, or the oldest entry when
// every timestamp lies in the future. The fallback matters; changing it
// would rewrite historical point totals.
func (e *Engine) Token(tokenAddress string, blockTime time.Time) decimal.Decimal {
	return pick(e.tokenMultipliers[tokenAddress], blockTime)
}

func (e *Engine) Address(address string, blockTime time.Time) decimal.Decimal {
	return pick(e.addressMultipliers[address], blockTime)
}

// Group is reserved; it always returns 1 today but keeps the
// multiplication order in the accrual engine explicit.
func (e *Engine) Group(pairAddress string) decimal.Decimal {
	return one
}

func pick(es []multiplierEntry, blockTime time.Time) decimal.Decimal {
	if len(es) == 0 {
		return one
	}
	for _, en := range es {
		if !en.timestamp.After(blockTime) {
			return en.multiplier
		}
	}
	return es[len(es)-1].multiplier
}

// HoldBoosters is the combined multiplier applied to a summed base hold
// point: earlyBird * group * loyalty, in that order.
func (e *Engine) HoldBoosters(pairAddress string, blockTime time.Time, firstDeposit *time.Time) decimal.Decimal {
	return e.EarlyBird(blockTime).
		Mul(e.Group(pairAddress)).
		Mul(e.Loyalty(blockTime, firstDeposit))
}

// TxBoosters is the combined multiplier for transaction activity points
// of the given type.
func (e *Engine) TxBoosters(projectName, pointType string, blockTime time.Time, firstDeposit *time.Time) decimal.Decimal {
	return e.Project(projectName, pointType).Mul(e.Loyalty(blockTime, firstDeposit))
}
