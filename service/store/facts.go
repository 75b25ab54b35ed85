package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zkLinkProtocol/nova-point-backend/schema"
)

// InsertBalanceFacts persists TVL snapshot rows insert-ignore on the
// natural key, so re-ingesting a block is a safe no-op.
func (s *Service) InsertBalanceFacts(ctx context.Context, facts []schema.BalanceFact) error {
	if len(facts) == 0 {
		return nil
	}
	docs := make([]interface{}, len(facts))
	for i, f := range facts {
		docs[i] = f
	}
	_, err := s.BalanceCollection().InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err := ignoreDuplicates(err); err != nil {
		return fmt.Errorf("insert balance facts: %w", err)
	}
	return nil
}

// InsertTransactionFacts persists tx event rows insert-ignore on
// (txHash, nonce). Duplicates within a batch are rejected upstream by
// validation; duplicates against prior ingestions are ignored here.
func (s *Service) InsertTransactionFacts(ctx context.Context, facts []schema.TransactionFact) error {
	if len(facts) == 0 {
		return nil
	}
	docs := make([]interface{}, len(facts))
	for i, f := range facts {
		docs[i] = f
	}
	_, err := s.TransactionCollection().InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err := ignoreDuplicates(err); err != nil {
		return fmt.Errorf("insert transaction facts: %w", err)
	}
	return nil
}

func (s *Service) BalanceFactsAt(ctx context.Context, pairAddresses []string, blockNumber int64) ([]schema.BalanceFact, error) {
	cur, err := s.BalanceCollection().Find(ctx, bson.M{
		schema.BalancePairAddressKey: bson.M{"$in": pairAddresses},
		schema.BalanceBlockNumberKey: blockNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("find balance facts: %w", err)
	}
	defer cur.Close(ctx)
	var facts []schema.BalanceFact
	if err := cur.All(ctx, &facts); err != nil {
		return nil, fmt.Errorf("decode balance facts: %w", err)
	}
	return facts, nil
}

func (s *Service) TransactionFactsIn(ctx context.Context, pairAddresses []string, blockNumberStart, blockNumberEnd int64) ([]schema.TransactionFact, error) {
	cur, err := s.TransactionCollection().Find(ctx, bson.M{
		schema.TransactionContractKey: bson.M{"$in": pairAddresses},
		schema.TransactionBlockNumberKey: bson.M{
			"$gte": blockNumberStart,
			"$lte": blockNumberEnd,
		},
	}, options.Find().SetSort(bson.M{schema.TransactionBlockNumberKey: 1}))
	if err != nil {
		return nil, fmt.Errorf("find transaction facts: %w", err)
	}
	defer cur.Close(ctx)
	var facts []schema.TransactionFact
	if err := cur.All(ctx, &facts); err != nil {
		return nil, fmt.Errorf("decode transaction facts: %w", err)
	}
	return facts, nil
}

// UpsertFirstDeposits records first-deposit times write-once: $min keeps
// the earliest observation even if adapters replay history out of order.
func (s *Service) UpsertFirstDeposits(ctx context.Context, deposits []schema.AddressFirstDeposit) error {
	if len(deposits) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(deposits))
	for _, d := range deposits {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{schema.FirstDepositAddressKey: d.Address}).
			SetUpdate(bson.M{
				"$min": bson.M{schema.FirstDepositTimeKey: d.FirstDepositTime},
			}).
			SetUpsert(true))
	}
	if _, err := s.FirstDepositCollection().BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("upsert first deposits: %w", err)
	}
	return nil
}

func (s *Service) FirstDeposits(ctx context.Context, addresses []string) (map[string]time.Time, error) {
	cur, err := s.FirstDepositCollection().Find(ctx, bson.M{
		schema.FirstDepositAddressKey: bson.M{"$in": addresses},
	})
	if err != nil {
		return nil, fmt.Errorf("find first deposits: %w", err)
	}
	defer cur.Close(ctx)
	m := make(map[string]time.Time)
	for cur.Next(ctx) {
		var d schema.AddressFirstDeposit
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode first deposit: %w", err)
		}
		m[d.Address] = d.FirstDepositTime
	}
	return m, cur.Err()
}

// RegisterProjectPairs records discovered pool addresses for a project
// (upsert-ignore) so aggregation can group facts by project later.
func (s *Service) RegisterProjectPairs(ctx context.Context, projectName string, pairAddresses []string) error {
	if len(pairAddresses) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(pairAddresses))
	for _, pair := range pairAddresses {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{
				schema.ProjectNameKey:        projectName,
				schema.ProjectPairAddressKey: pair,
			}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{"discoveredAt": time.Now()}}).
			SetUpsert(true))
	}
	if _, err := s.ProjectCollection().BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("register project pairs: %w", err)
	}
	return nil
}

func (s *Service) ProjectPairs(ctx context.Context, projectName string) ([]string, error) {
	cur, err := s.ProjectCollection().Find(ctx, bson.M{schema.ProjectNameKey: projectName})
	if err != nil {
		return nil, fmt.Errorf("find project pairs: %w", err)
	}
	defer cur.Close(ctx)
	var pairs []string
	for cur.Next(ctx) {
		var p schema.Project
		if err := cur.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode project: %w", err)
		}
		pairs = append(pairs, p.PairAddress)
	}
	return pairs, cur.Err()
}

// PriceSnapshots loads cached prices for a block, keyed by price id.
func (s *Service) PriceSnapshots(ctx context.Context, blockNumber int64, priceIDs []string) (map[string]decimal.Decimal, error) {
	cur, err := s.PriceSnapshotCollection().Find(ctx, bson.M{
		schema.PriceSnapshotBlockNumberKey: blockNumber,
		schema.PriceSnapshotPriceIDKey:     bson.M{"$in": priceIDs},
	})
	if err != nil {
		return nil, fmt.Errorf("find price snapshots: %w", err)
	}
	defer cur.Close(ctx)
	m := make(map[string]decimal.Decimal)
	for cur.Next(ctx) {
		var snap schema.TokenPriceSnapshot
		if err := cur.Decode(&snap); err != nil {
			return nil, fmt.Errorf("decode price snapshot: %w", err)
		}
		m[snap.PriceID] = schema.FromDecimal128(snap.USDPrice)
	}
	return m, cur.Err()
}

func (s *Service) UpsertPriceSnapshots(ctx context.Context, snapshots []schema.TokenPriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(snapshots))
	for _, snap := range snapshots {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{
				schema.PriceSnapshotPriceIDKey:     snap.PriceID,
				schema.PriceSnapshotBlockNumberKey: snap.BlockNumber,
			}).
			SetUpdate(bson.M{
				"$set": bson.M{schema.PriceSnapshotUSDPriceKey: snap.USDPrice},
			}).
			SetUpsert(true))
	}
	if _, err := s.PriceSnapshotCollection().BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("upsert price snapshots: %w", err)
	}
	return nil
}

// UpsertUsers loads display metadata and referral edges, last write wins.
func (s *Service) UpsertUsers(ctx context.Context, users []schema.User) error {
	if len(users) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(users))
	for _, u := range users {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{schema.UserAddressKey: u.Address}).
			SetUpdate(bson.M{"$set": bson.M{
				schema.UserNameKey:     u.UserName,
				schema.UserReferrerKey: u.Referrer,
			}}).
			SetUpsert(true))
	}
	if _, err := s.UserCollection().BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("upsert users: %w", err)
	}
	return nil
}

func (s *Service) Users(ctx context.Context) ([]schema.User, error) {
	cur, err := s.UserCollection().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cur.Close(ctx)
	var users []schema.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}
