package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zkLinkProtocol/nova-point-backend/schema"
)

// PointDelta is one additive contribution to the cumulative ledger.
type PointDelta struct {
	Address     string
	PairAddress string
	Delta       decimal.Decimal
}

// BlockPointKey is the re-entrancy guard key for one audit row.
func BlockPointKey(blockNumber int64, address, pairAddress string) string {
	return fmt.Sprintf("%d|%s|%s", blockNumber, address, pairAddress)
}

// ScoredKeys returns the audit keys already written for a block range
// and point type. The accrual engine skips these before computing any
// delta, which makes retrying a half-failed scoring pass safe.
func (s *Service) ScoredKeys(ctx context.Context, pointType string, blockNumberStart, blockNumberEnd int64) (map[string]struct{}, error) {
	cur, err := s.BlockPointCollection().Find(ctx, bson.M{
		schema.BlockPointTypeKey: pointType,
		schema.BlockPointBlockNumberKey: bson.M{
			"$gte": blockNumberStart,
			"$lte": blockNumberEnd,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("find scored keys: %w", err)
	}
	defer cur.Close(ctx)
	keys := make(map[string]struct{})
	for cur.Next(ctx) {
		var bp schema.BlockAddressPoint
		if err := cur.Decode(&bp); err != nil {
			return nil, fmt.Errorf("decode block point: %w", err)
		}
		keys[BlockPointKey(bp.BlockNumber, bp.Address, bp.PairAddress)] = struct{}{}
	}
	return keys, cur.Err()
}

// CommitPoints writes the audit rows and merges the matching deltas into
// the cumulative ledger in one transaction. The ledger merge is a pure
// += so it MUST commit together with its audit rows: a half-applied
// retry would otherwise double-add.
func (s *Service) CommitPoints(ctx context.Context, audits []schema.BlockAddressPoint, deltas []PointDelta) error {
	if len(audits) == 0 && len(deltas) == 0 {
		return nil
	}
	sess, err := s.mc.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if len(audits) > 0 {
			docs := make([]interface{}, len(audits))
			for i, a := range audits {
				docs[i] = a
			}
			if _, err := s.BlockPointCollection().InsertMany(sc, docs); err != nil {
				return nil, fmt.Errorf("insert block points: %w", err)
			}
		}
		if err := s.MergeStakePoints(sc, deltas); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// MergeStakePoints is the single reviewed code path for the additive
// ledger merge (stakePoint += delta). Callers never overwrite totals.
func (s *Service) MergeStakePoints(ctx context.Context, deltas []PointDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(deltas))
	for _, d := range deltas {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{
				schema.PointLedgerAddressKey:     d.Address,
				schema.PointLedgerPairAddressKey: d.PairAddress,
			}).
			SetUpdate(bson.M{
				"$inc": bson.M{schema.PointLedgerStakePointKey: schema.ToDecimal128(d.Delta)},
			}).
			SetUpsert(true))
	}
	if _, err := s.PointLedgerCollection().BulkWrite(ctx, writes); err != nil {
		return fmt.Errorf("merge stake points: %w", err)
	}
	return nil
}

func (s *Service) PointLedgerEntry(ctx context.Context, address, pairAddress string) (*schema.PointLedger, error) {
	var pl schema.PointLedger
	if err := s.PointLedgerCollection().FindOne(ctx, bson.M{
		schema.PointLedgerAddressKey:     address,
		schema.PointLedgerPairAddressKey: pairAddress,
	}).Decode(&pl); err != nil {
		return nil, err
	}
	return &pl, nil
}

// SeasonPointSum is one aggregated (address, pair, type) total inside a
// season window.
type SeasonPointSum struct {
	Address     string
	PairAddress string
	Type        string
	Point       decimal.Decimal
}

// SumBlockPoints aggregates the audit trail per (address, pair, type)
// over [start, end). Deterministic over an immutable window, so season
// aggregation can rerun it at will.
func (s *Service) SumBlockPoints(ctx context.Context, pointTypes []string, start, end time.Time) ([]SeasonPointSum, error) {
	cur, err := s.BlockPointCollection().Aggregate(ctx, bson.A{
		bson.M{"$match": bson.M{
			schema.BlockPointTypeKey: bson.M{"$in": pointTypes},
			schema.BlockPointTimestampKey: bson.M{
				"$gte": start,
				"$lt":  end,
			},
		}},
		bson.M{"$group": bson.M{
			"_id": bson.M{
				"address":     "$" + schema.BlockPointAddressKey,
				"pairAddress": "$" + schema.BlockPointPairAddressKey,
				"type":        "$" + schema.BlockPointTypeKey,
			},
			"point": bson.M{"$sum": "$" + schema.BlockPointHoldPointKey},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate block points: %w", err)
	}
	defer cur.Close(ctx)
	var sums []SeasonPointSum
	for cur.Next(ctx) {
		var row struct {
			ID struct {
				Address     string `bson:"address"`
				PairAddress string `bson:"pairAddress"`
				Type        string `bson:"type"`
			} `bson:"_id"`
			Point primitive.Decimal128 `bson:"point"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode block point sum: %w", err)
		}
		sums = append(sums, SeasonPointSum{
			Address:     row.ID.Address,
			PairAddress: row.ID.PairAddress,
			Type:        row.ID.Type,
			Point:       schema.FromDecimal128(row.Point),
		})
	}
	return sums, cur.Err()
}

// StakePointsByAddress sums hold-type points per address over a window;
// referral accrual reads it to value each referred address's season.
func (s *Service) StakePointsByAddress(ctx context.Context, start, end time.Time) (map[string]decimal.Decimal, error) {
	sums, err := s.SumBlockPoints(ctx, []string{schema.PointTypeDirectHold, schema.PointTypeLPHold}, start, end)
	if err != nil {
		return nil, err
	}
	m := make(map[string]decimal.Decimal)
	for _, sum := range sums {
		if cur, ok := m[sum.Address]; ok {
			m[sum.Address] = cur.Add(sum.Point)
		} else {
			m[sum.Address] = sum.Point
		}
	}
	return m, nil
}

// UpsertSeasonTotalPoints rewrites derived season rows; only point and
// userName are mutable on conflict.
func (s *Service) UpsertSeasonTotalPoints(ctx context.Context, rows []schema.SeasonTotalPoint) error {
	if len(rows) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(rows))
	for _, r := range rows {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{
				schema.SeasonPointUserAddressKey: r.UserAddress,
				schema.SeasonPointPairAddressKey: r.PairAddress,
				schema.SeasonPointTypeKey:        r.Type,
				schema.SeasonPointSeasonKey:      r.Season,
			}).
			SetUpdate(bson.M{"$set": bson.M{
				schema.SeasonPointPointKey:    r.Point,
				schema.SeasonPointUserNameKey: r.UserName,
			}}).
			SetUpsert(true))
	}
	if _, err := s.SeasonPointCollection().BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("upsert season total points: %w", err)
	}
	return nil
}

func (s *Service) SeasonTotalPoints(ctx context.Context, season int) ([]schema.SeasonTotalPoint, error) {
	cur, err := s.SeasonPointCollection().Find(ctx, bson.M{schema.SeasonPointSeasonKey: season})
	if err != nil {
		return nil, fmt.Errorf("find season total points: %w", err)
	}
	defer cur.Close(ctx)
	var rows []schema.SeasonTotalPoint
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode season total points: %w", err)
	}
	return rows, nil
}
