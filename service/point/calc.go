// Package point turns ingested facts into point deltas. The arithmetic
// lives in pure calculator functions over already-loaded rows; the
// engine in engine.go wires them to the store, price resolver and
// booster engine per scoring unit.
//
// All monetary math uses arbitrary-precision decimals. Raw on-chain
// amounts arrive as integer strings and are scaled by 10^decimals only
// at the conversion step, never through native floats.
package point

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zkLinkProtocol/nova-point-backend/config"
	"github.com/zkLinkProtocol/nova-point-backend/schema"
	"github.com/zkLinkProtocol/nova-point-backend/service/booster"
	"github.com/zkLinkProtocol/nova-point-backend/service/price"
	"github.com/zkLinkProtocol/nova-point-backend/service/store"
)

// CalcContext carries everything a calculator needs for one scoring
// unit: resolved prices, booster engine, first-deposit times and the
// re-entrancy guard of already-scored audit keys.
type CalcContext struct {
	ProjectName   string
	Tokens        map[string]config.TokenConfig
	Prices        price.Map
	EthPriceID    string
	Booster       *booster.Engine
	FirstDeposits map[string]time.Time
	Scored        map[string]struct{}
}

func (c *CalcContext) firstDeposit(address string) *time.Time {
	if t, ok := c.FirstDeposits[address]; ok {
		return &t
	}
	return nil
}

// GuardKey is how scored audit keys are represented in CalcContext:
// the point type prefixed onto the natural block-point key.
func GuardKey(pointType string, blockNumber int64, address, pairAddress string) string {
	return pointType + "|" + store.BlockPointKey(blockNumber, address, pairAddress)
}

func (c *CalcContext) isScored(pointType string, blockNumber int64, address, pairAddress string) bool {
	_, ok := c.Scored[GuardKey(pointType, blockNumber, address, pairAddress)]
	return ok
}

type holdGroup struct {
	address     string
	pairAddress string
	blockNumber int64
	timestamp   time.Time
	base        decimal.Decimal
}

// HoldPoints computes hold-point deltas for one TVL snapshot block.
// Facts are grouped by (address, pair); per token the base contribution
// is (balance / 10^decimals) * tokenPrice / ethPrice * tokenMultiplier,
// summed across the tokens the address holds in the pool, then boosted
// by earlyBird * group * loyalty * addressMultiplier. Unsupported
// tokens contribute zero and are skipped, not errors. Keys already in
// the audit trail are skipped entirely.
func HoldPoints(facts []schema.BalanceFact, pointType string, c *CalcContext) ([]schema.BlockAddressPoint, []store.PointDelta, error) {
	ethPrice, err := price.EthPrice(c.EthPriceID, c.Prices)
	if err != nil {
		return nil, nil, err
	}
	groups := make(map[string]*holdGroup)
	var order []string
	for _, f := range facts {
		if c.isScored(pointType, f.BlockNumber, f.Address, f.PairAddress) {
			continue
		}
		key := store.BlockPointKey(f.BlockNumber, f.Address, f.PairAddress)
		token, ok := c.Tokens[f.TokenAddress]
		if !ok {
			continue
		}
		tokenPrice, err := price.TokenPrice(token, c.Prices)
		if err != nil {
			return nil, nil, err
		}
		balance, err := decimal.NewFromString(f.Balance)
		if err != nil {
			return nil, nil, fmt.Errorf("parse balance %q: %w", f.Balance, err)
		}
		tvl := balance.Shift(-token.Decimals).Mul(tokenPrice).Div(ethPrice)
		contribution := tvl.Mul(c.Booster.Token(f.TokenAddress, f.Timestamp))
		g, ok := groups[key]
		if !ok {
			g = &holdGroup{
				address:     f.Address,
				pairAddress: f.PairAddress,
				blockNumber: f.BlockNumber,
				timestamp:   f.Timestamp,
			}
			groups[key] = g
			order = append(order, key)
		}
		g.base = g.base.Add(contribution)
	}
	var (
		audits []schema.BlockAddressPoint
		deltas []store.PointDelta
	)
	for _, key := range order {
		g := groups[key]
		if g.base.IsZero() {
			continue
		}
		mult := c.Booster.HoldBoosters(g.pairAddress, g.timestamp, c.firstDeposit(g.address)).
			Mul(c.Booster.Address(g.address, g.timestamp))
		point := g.base.Mul(mult)
		audits = append(audits, schema.BlockAddressPoint{
			BlockNumber: g.blockNumber,
			Address:     g.address,
			PairAddress: g.pairAddress,
			HoldPoint:   schema.ToDecimal128(point),
			Type:        pointType,
			Timestamp:   g.timestamp,
		})
		deltas = append(deltas, store.PointDelta{
			Address:     g.address,
			PairAddress: g.pairAddress,
			Delta:       point,
		})
	}
	return audits, deltas, nil
}

// TxPoints computes transaction-activity audit rows for one block
// range: a count point (base 1) and a volume point (quantity / 10^dec *
// price), each boosted by projectBooster(type) * loyalty. Multiple
// transactions sharing (block, address, contract) fold into one audit
// row per type. Tx points are audit-only; they do not merge into the
// cumulative stake ledger.
func TxPoints(facts []schema.TransactionFact, countType string, c *CalcContext) ([]schema.BlockAddressPoint, error) {
	type acc struct {
		row schema.BlockAddressPoint
		sum decimal.Decimal
	}
	sums := make(map[string]*acc)
	var order []string
	add := func(pointType string, f schema.TransactionFact, v decimal.Decimal) {
		key := pointType + "|" + store.BlockPointKey(f.BlockNumber, f.UserAddress, f.ContractAddress)
		a, ok := sums[key]
		if !ok {
			a = &acc{row: schema.BlockAddressPoint{
				BlockNumber: f.BlockNumber,
				Address:     f.UserAddress,
				PairAddress: f.ContractAddress,
				Type:        pointType,
				Timestamp:   f.Timestamp,
			}}
			sums[key] = a
			order = append(order, key)
		}
		a.sum = a.sum.Add(v)
	}
	one := decimal.NewFromInt(1)
	for _, f := range facts {
		fd := c.firstDeposit(f.UserAddress)

		if !c.isScored(countType, f.BlockNumber, f.UserAddress, f.ContractAddress) {
			mult := c.Booster.TxBoosters(c.ProjectName, countType, f.Timestamp, fd)
			add(countType, f, one.Mul(mult))
		}
		if !c.isScored(schema.PointTypeTxVol, f.BlockNumber, f.UserAddress, f.ContractAddress) {
			quantity, err := decimal.NewFromString(f.Quantity)
			if err != nil {
				return nil, fmt.Errorf("parse quantity %q: %w", f.Quantity, err)
			}
			volume := quantity.Shift(-f.Decimals).Mul(schema.FromDecimal128(f.Price))
			mult := c.Booster.TxBoosters(c.ProjectName, schema.PointTypeTxVol, f.Timestamp, fd)
			add(schema.PointTypeTxVol, f, volume.Mul(mult))
		}
	}
	var audits []schema.BlockAddressPoint
	for _, key := range order {
		a := sums[key]
		if a.sum.IsZero() {
			continue
		}
		a.row.HoldPoint = schema.ToDecimal128(a.sum)
		audits = append(audits, a.row)
	}
	return audits, nil
}

// ReferralPoints values each referrer at ReferralBooster times the
// summed season stake points of the addresses they referred. Recomputed
// wholesale per season, never incrementally.
func ReferralPoints(users []schema.User, stakeByAddress map[string]decimal.Decimal, referralBooster decimal.Decimal) map[string]decimal.Decimal {
	points := make(map[string]decimal.Decimal)
	for _, u := range users {
		if u.Referrer == "" {
			continue
		}
		stake, ok := stakeByAddress[u.Address]
		if !ok || stake.IsZero() {
			continue
		}
		delta := referralBooster.Mul(stake)
		if cur, ok := points[u.Referrer]; ok {
			points[u.Referrer] = cur.Add(delta)
		} else {
			points[u.Referrer] = delta
		}
	}
	return points
}
