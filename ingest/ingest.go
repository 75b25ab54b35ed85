package ingest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zkLinkProtocol/nova-point-backend/config"
	"github.com/zkLinkProtocol/nova-point-backend/schema"
	"github.com/zkLinkProtocol/nova-point-backend/service/store"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// NormalizeAddress lowercases an address so joins across collections
// never miss on casing.
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}

// NormalizeTokenAddress maps the zero address, which adapters emit for
// the chain's native asset, onto the configured ETH token address.
func NormalizeTokenAddress(addr, ethTokenAddress string) string {
	addr = NormalizeAddress(addr)
	if addr == zeroAddress {
		return NormalizeAddress(ethTokenAddress)
	}
	return addr
}

// ValidateBalances rejects a whole batch on the first malformed row or
// in-batch duplicate. Balance must be a non-negative integer string.
func ValidateBalances(records []BalanceRecord) error {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.UserAddress == "" || r.TokenAddress == "" || r.PoolAddress == "" {
			return fmt.Errorf("balance row #%d: missing address field", i)
		}
		if r.BlockNumber <= 0 {
			return fmt.Errorf("balance row #%d: invalid block number %d", i, r.BlockNumber)
		}
		if r.Timestamp <= 0 {
			return fmt.Errorf("balance row #%d: invalid timestamp %d", i, r.Timestamp)
		}
		if _, ok := new(big.Int).SetString(r.Balance, 10); !ok || strings.HasPrefix(r.Balance, "-") {
			return fmt.Errorf("balance row #%d: invalid balance %q", i, r.Balance)
		}
		key := fmt.Sprintf("%s|%s|%s|%d",
			NormalizeAddress(r.UserAddress), NormalizeAddress(r.TokenAddress),
			NormalizeAddress(r.PoolAddress), r.BlockNumber)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("balance row #%d: duplicate key %s", i, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ValidateTransactions rejects a whole batch on the first malformed row
// or in-batch duplicate (txHash, nonce).
func ValidateTransactions(records []TransactionRecord) error {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.UserAddress == "" || r.ContractAddress == "" || r.TokenAddress == "" {
			return fmt.Errorf("transaction row #%d: missing address field", i)
		}
		if r.TxHash == "" {
			return fmt.Errorf("transaction row #%d: missing tx hash", i)
		}
		if r.BlockNumber <= 0 {
			return fmt.Errorf("transaction row #%d: invalid block number %d", i, r.BlockNumber)
		}
		if r.Timestamp <= 0 {
			return fmt.Errorf("transaction row #%d: invalid timestamp %d", i, r.Timestamp)
		}
		if _, ok := new(big.Int).SetString(r.Quantity, 10); !ok || strings.HasPrefix(r.Quantity, "-") {
			return fmt.Errorf("transaction row #%d: invalid quantity %q", i, r.Quantity)
		}
		if r.Price < 0 {
			return fmt.Errorf("transaction row #%d: negative price %f", i, r.Price)
		}
		key := fmt.Sprintf("%s|%d", strings.ToLower(r.TxHash), r.Nonce)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("transaction row #%d: duplicate (txHash, nonce) %s", i, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Pipeline drives one project's adapter output into the store. A unit
// is marked ingested only after every row of its batch has persisted;
// any failure leaves the unit pending and nothing partially written
// survives re-ingestion thanks to the insert-ignore keys.
type Pipeline struct {
	ethTokenAddress string
	ss              *store.Service
	logger          *zap.Logger
}

func NewPipeline(cfg config.WorkerConfig, ss *store.Service, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		ethTokenAddress: NormalizeAddress(cfg.EthTokenAddress),
		ss:              ss,
		logger:          logger,
	}
}

// IngestTVL runs the adapter for one pending TVL snapshot block and
// persists the batch.
func (p *Pipeline) IngestTVL(ctx context.Context, adapter Adapter, unit schema.TVLProcessingStatus) error {
	records, err := adapter.UserTVL(ctx, unit.BlockNumber)
	if err != nil {
		return fmt.Errorf("fetch tvl: %w", err)
	}
	if err := ValidateBalances(records); err != nil {
		return fmt.Errorf("validate tvl batch: %w", err)
	}

	facts := make([]schema.BalanceFact, 0, len(records))
	pairs := make(map[string]struct{})
	earliest := make(map[string]time.Time)
	for _, r := range records {
		addr := NormalizeAddress(r.UserAddress)
		ts := time.Unix(r.Timestamp, 0).UTC()
		facts = append(facts, schema.BalanceFact{
			Address:      addr,
			TokenAddress: NormalizeTokenAddress(r.TokenAddress, p.ethTokenAddress),
			PairAddress:  NormalizeAddress(r.PoolAddress),
			BlockNumber:  r.BlockNumber,
			Balance:      r.Balance,
			Timestamp:    ts,
		})
		pairs[NormalizeAddress(r.PoolAddress)] = struct{}{}
		if cur, ok := earliest[addr]; !ok || ts.Before(cur) {
			earliest[addr] = ts
		}
	}

	if err := p.ss.InsertBalanceFacts(ctx, facts); err != nil {
		return err
	}
	if err := p.ss.RegisterProjectPairs(ctx, unit.ProjectName, keys(pairs)); err != nil {
		return err
	}
	if err := p.ss.UpsertFirstDeposits(ctx, firstDeposits(earliest)); err != nil {
		return err
	}
	if err := p.ss.MarkTVLIngested(ctx, unit.ProjectName, unit.BlockNumber); err != nil {
		return err
	}
	p.logger.Info("ingested tvl unit",
		zap.String("project", unit.ProjectName),
		zap.Int64("block", unit.BlockNumber),
		zap.Int("rows", len(facts)))
	return nil
}

// IngestTx runs the adapter for one pending transaction range and
// persists the batch.
func (p *Pipeline) IngestTx(ctx context.Context, adapter Adapter, unit schema.TxProcessingStatus) error {
	records, err := adapter.UserTransactions(ctx, unit.BlockNumberStart, unit.BlockNumberEnd)
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}
	if err := ValidateTransactions(records); err != nil {
		return fmt.Errorf("validate tx batch: %w", err)
	}

	facts := make([]schema.TransactionFact, 0, len(records))
	pairs := make(map[string]struct{})
	for _, r := range records {
		facts = append(facts, schema.TransactionFact{
			Timestamp:       time.Unix(r.Timestamp, 0).UTC(),
			UserAddress:     NormalizeAddress(r.UserAddress),
			ContractAddress: NormalizeAddress(r.ContractAddress),
			TokenAddress:    NormalizeTokenAddress(r.TokenAddress, p.ethTokenAddress),
			Decimals:        r.Decimals,
			Price:           schema.ToDecimal128(decimal.NewFromFloat(r.Price)),
			Quantity:        r.Quantity,
			TxHash:          strings.ToLower(r.TxHash),
			Nonce:           r.Nonce,
			BlockNumber:     r.BlockNumber,
		})
		pairs[NormalizeAddress(r.ContractAddress)] = struct{}{}
	}

	if err := p.ss.InsertTransactionFacts(ctx, facts); err != nil {
		return err
	}
	if err := p.ss.RegisterProjectPairs(ctx, unit.ProjectName, keys(pairs)); err != nil {
		return err
	}
	if err := p.ss.MarkTxIngested(ctx, unit); err != nil {
		return err
	}
	p.logger.Info("ingested tx unit",
		zap.String("project", unit.ProjectName),
		zap.Int64("from", unit.BlockNumberStart),
		zap.Int64("to", unit.BlockNumberEnd),
		zap.Int("rows", len(facts)))
	return nil
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func firstDeposits(earliest map[string]time.Time) []schema.AddressFirstDeposit {
	out := make([]schema.AddressFirstDeposit, 0, len(earliest))
	for addr, ts := range earliest {
		out = append(out, schema.AddressFirstDeposit{Address: addr, FirstDepositTime: ts})
	}
	return out
}
