package point

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zkLinkProtocol/nova-point-backend/config"
	"github.com/zkLinkProtocol/nova-point-backend/schema"
	"github.com/zkLinkProtocol/nova-point-backend/service/booster"
	"github.com/zkLinkProtocol/nova-point-backend/service/price"
	"github.com/zkLinkProtocol/nova-point-backend/service/store"
)

// Engine scores adapter-processed units. A unit either commits fully
// (audit rows + ledger merge in one transaction, then the scored flag)
// or leaves its flags untouched for the next cycle to retry.
type Engine struct {
	cfg     config.WorkerConfig
	ss      *store.Service
	ps      *price.Service
	bs      *booster.Engine
	tokens  map[string]config.TokenConfig
	logger  *zap.Logger
	project map[string]config.ProjectConfig
}

func NewEngine(cfg config.WorkerConfig, ss *store.Service, ps *price.Service, bs *booster.Engine, logger *zap.Logger) *Engine {
	projects := make(map[string]config.ProjectConfig)
	for _, p := range cfg.Projects {
		projects[p.Name] = p
	}
	return &Engine{
		cfg:     cfg,
		ss:      ss,
		ps:      ps,
		bs:      bs,
		tokens:  cfg.TokenMap(),
		logger:  logger,
		project: projects,
	}
}

func (e *Engine) holdPointType(projectName string) string {
	if p, ok := e.project[projectName]; ok && p.DirectHold {
		return schema.PointTypeDirectHold
	}
	return schema.PointTypeLPHold
}

func (e *Engine) txCountPointType(projectName string) string {
	if p, ok := e.project[projectName]; ok && p.Bridge {
		return schema.PointTypeBridge
	}
	return schema.PointTypeTxNum
}

// ScoreTVLUnit scores one adapter-processed TVL snapshot block.
func (e *Engine) ScoreTVLUnit(ctx context.Context, unit schema.TVLProcessingStatus) error {
	pairs, err := e.ss.ProjectPairs(ctx, unit.ProjectName)
	if err != nil {
		return fmt.Errorf("load project pairs: %w", err)
	}
	facts, err := e.ss.BalanceFactsAt(ctx, pairs, unit.BlockNumber)
	if err != nil {
		return fmt.Errorf("load balance facts: %w", err)
	}
	if len(facts) == 0 {
		return e.ss.MarkTVLScored(ctx, unit.ProjectName, unit.BlockNumber)
	}
	blockTime := facts[0].Timestamp
	pointType := e.holdPointType(unit.ProjectName)

	calcCtx, err := e.calcContext(ctx, unit.ProjectName, unit.BlockNumber, blockTime,
		[]string{pointType}, unit.BlockNumber, unit.BlockNumber, balanceTokens(facts), balanceAddresses(facts))
	if err != nil {
		return err
	}
	audits, deltas, err := HoldPoints(facts, pointType, calcCtx)
	if err != nil {
		return fmt.Errorf("compute hold points: %w", err)
	}
	if err := e.ss.CommitPoints(ctx, audits, deltas); err != nil {
		return fmt.Errorf("commit points: %w", err)
	}
	if err := e.ss.MarkTVLScored(ctx, unit.ProjectName, unit.BlockNumber); err != nil {
		return err
	}
	e.logger.Info("scored tvl unit",
		zap.String("project", unit.ProjectName),
		zap.Int64("block", unit.BlockNumber),
		zap.Int("audits", len(audits)))
	return nil
}

// ScoreTxUnit scores one adapter-processed transaction block range.
func (e *Engine) ScoreTxUnit(ctx context.Context, unit schema.TxProcessingStatus) error {
	pairs, err := e.ss.ProjectPairs(ctx, unit.ProjectName)
	if err != nil {
		return fmt.Errorf("load project pairs: %w", err)
	}
	facts, err := e.ss.TransactionFactsIn(ctx, pairs, unit.BlockNumberStart, unit.BlockNumberEnd)
	if err != nil {
		return fmt.Errorf("load transaction facts: %w", err)
	}
	if len(facts) == 0 {
		return e.ss.MarkTxScored(ctx, unit.ProjectName, unit.BlockNumberStart)
	}
	countType := e.txCountPointType(unit.ProjectName)

	calcCtx, err := e.calcContext(ctx, unit.ProjectName, 0, time.Time{},
		[]string{countType, schema.PointTypeTxVol}, unit.BlockNumberStart, unit.BlockNumberEnd,
		nil, txAddresses(facts))
	if err != nil {
		return err
	}
	audits, err := TxPoints(facts, countType, calcCtx)
	if err != nil {
		return fmt.Errorf("compute tx points: %w", err)
	}
	if err := e.ss.CommitPoints(ctx, audits, nil); err != nil {
		return fmt.Errorf("commit points: %w", err)
	}
	if err := e.ss.MarkTxScored(ctx, unit.ProjectName, unit.BlockNumberStart); err != nil {
		return err
	}
	e.logger.Info("scored tx unit",
		zap.String("project", unit.ProjectName),
		zap.Int64("from", unit.BlockNumberStart),
		zap.Int64("to", unit.BlockNumberEnd),
		zap.Int("audits", len(audits)))
	return nil
}

// calcContext assembles prices, first deposits and the re-entrancy
// guard for one unit. tokenAddrs may be nil when no price resolution is
// needed (tx facts carry their own prices).
func (e *Engine) calcContext(ctx context.Context, projectName string, blockNumber int64, blockTime time.Time,
	pointTypes []string, guardStart, guardEnd int64, tokenAddrs, addresses []string) (*CalcContext, error) {

	prices := make(price.Map)
	if len(tokenAddrs) > 0 {
		ids := []string{e.cfg.EthPriceID}
		seen := map[string]struct{}{e.cfg.EthPriceID: {}}
		for _, addr := range tokenAddrs {
			t, ok := e.tokens[addr]
			if !ok || t.IsStable() || t.PriceID == "" {
				continue
			}
			if _, dup := seen[t.PriceID]; dup {
				continue
			}
			seen[t.PriceID] = struct{}{}
			ids = append(ids, t.PriceID)
		}
		var err error
		prices, err = e.ps.Resolve(ctx, blockNumber, blockTime, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve prices: %w", err)
		}
	}

	scored := make(map[string]struct{})
	for _, pt := range pointTypes {
		keys, err := e.ss.ScoredKeys(ctx, pt, guardStart, guardEnd)
		if err != nil {
			return nil, fmt.Errorf("load scored keys: %w", err)
		}
		for k := range keys {
			scored[pt+"|"+k] = struct{}{}
		}
	}

	firstDeposits, err := e.ss.FirstDeposits(ctx, addresses)
	if err != nil {
		return nil, fmt.Errorf("load first deposits: %w", err)
	}

	return &CalcContext{
		ProjectName:   projectName,
		Tokens:        e.tokens,
		Prices:        prices,
		EthPriceID:    e.cfg.EthPriceID,
		Booster:       e.bs,
		FirstDeposits: firstDeposits,
		Scored:        scored,
	}, nil
}

func balanceTokens(facts []schema.BalanceFact) []string {
	seen := make(map[string]struct{})
	var addrs []string
	for _, f := range facts {
		if _, ok := seen[f.TokenAddress]; ok {
			continue
		}
		seen[f.TokenAddress] = struct{}{}
		addrs = append(addrs, f.TokenAddress)
	}
	return addrs
}

func balanceAddresses(facts []schema.BalanceFact) []string {
	seen := make(map[string]struct{})
	var addrs []string
	for _, f := range facts {
		if _, ok := seen[f.Address]; ok {
			continue
		}
		seen[f.Address] = struct{}{}
		addrs = append(addrs, f.Address)
	}
	return addrs
}

func txAddresses(facts []schema.TransactionFact) []string {
	seen := make(map[string]struct{})
	var addrs []string
	for _, f := range facts {
		if _, ok := seen[f.UserAddress]; ok {
			continue
		}
		seen[f.UserAddress] = struct{}{}
		addrs = append(addrs, f.UserAddress)
	}
	return addrs
}
