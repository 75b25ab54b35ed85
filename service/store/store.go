// Package store is the persistence layer. MongoDB is the single source
// of truth and the only synchronization point between cycles: fact and
// audit rows are written insert-ignore on their natural keys, status
// flags advance through monotone idempotent upserts, and the cumulative
// ledger is only ever touched through the transactional additive merge
// in points.go.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zkLinkProtocol/nova-point-backend/config"
	"github.com/zkLinkProtocol/nova-point-backend/schema"
)

type Service struct {
	cfg config.MongoDBConfig
	mc  *mongo.Client
}

func NewService(cfg config.MongoDBConfig, mc *mongo.Client) *Service {
	return &Service{cfg, mc}
}

func (s *Service) TVLStatusCollection() *mongo.Collection {
	return s.mc.Database(s.cfg.DB).Collection(s.cfg.TVLStatusCollection)
}

func (s *Service) TxStatusCollection() *mongo.Collection {
	return s.mc.Database(s.cfg.DB).Collection(s.cfg.TxStatusCollection)
}

func (s *Service) BalanceCollection() *mongo.Collection {
	return s.mc.Database(s.cfg.DB).Collection(s.cfg.BalanceCollection)
}

func (s *Service) TransactionCollection() *mongo.Collection {
	return s.mc.Database(s.cfg.DB).Collection(s.cfg.TransactionCollection)
}

func (s *Service) PointLedgerCollection() *mongo.Collection {
	return s.mc.Database(s.cfg.DB).Collection(s.cfg.PointLedgerCollection)
}

func (s *Service) BlockPointCollection() *mongo.Collection {
	return s.mc.Database(s.cfg.DB).Collection(s.cfg.BlockPointCollection)
}

func (s *Service) SeasonPointCollection() *mongo.Collection {
	return s.mc.Database(s.cfg.DB).Collection(s.cfg.SeasonPointCollection)
}

func (s *Service) FirstDepositCollection() *mongo.Collection {
	return s.mc.Database(s.cfg.DB).Collection(s.cfg.FirstDepositCollection)
}

func (s *Service) PriceSnapshotCollection() *mongo.Collection {
	return s.mc.Database(s.cfg.DB).Collection(s.cfg.PriceSnapshotCollection)
}

func (s *Service) ProjectCollection() *mongo.Collection {
	return s.mc.Database(s.cfg.DB).Collection(s.cfg.ProjectCollection)
}

func (s *Service) UserCollection() *mongo.Collection {
	return s.mc.Database(s.cfg.DB).Collection(s.cfg.UserCollection)
}

// EnsureDBIndexes creates the unique indexes that back every natural
// key; insert-ignore semantics everywhere depend on them.
func (s *Service) EnsureDBIndexes(ctx context.Context) ([]string, error) {
	unique := options.Index().SetUnique(true)
	var res []string
	for _, x := range []struct {
		coll *mongo.Collection
		is   []mongo.IndexModel
	}{
		{s.TVLStatusCollection(), []mongo.IndexModel{
			{Keys: bson.D{{Key: schema.TVLStatusProjectNameKey, Value: 1}, {Key: schema.TVLStatusBlockNumberKey, Value: 1}}, Options: unique},
		}},
		{s.TxStatusCollection(), []mongo.IndexModel{
			{Keys: bson.D{{Key: schema.TxStatusProjectNameKey, Value: 1}, {Key: schema.TxStatusBlockNumberStartKey, Value: 1}}, Options: unique},
		}},
		{s.BalanceCollection(), []mongo.IndexModel{
			{Keys: bson.D{
				{Key: schema.BalanceAddressKey, Value: 1},
				{Key: schema.BalanceTokenAddressKey, Value: 1},
				{Key: schema.BalancePairAddressKey, Value: 1},
				{Key: schema.BalanceBlockNumberKey, Value: 1},
			}, Options: unique},
			{Keys: bson.D{{Key: schema.BalancePairAddressKey, Value: 1}, {Key: schema.BalanceBlockNumberKey, Value: 1}}},
		}},
		{s.TransactionCollection(), []mongo.IndexModel{
			{Keys: bson.D{{Key: schema.TransactionTxHashKey, Value: 1}, {Key: schema.TransactionNonceKey, Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: schema.TransactionContractKey, Value: 1}, {Key: schema.TransactionBlockNumberKey, Value: 1}}},
		}},
		{s.PointLedgerCollection(), []mongo.IndexModel{
			{Keys: bson.D{{Key: schema.PointLedgerAddressKey, Value: 1}, {Key: schema.PointLedgerPairAddressKey, Value: 1}}, Options: unique},
		}},
		{s.BlockPointCollection(), []mongo.IndexModel{
			{Keys: bson.D{
				{Key: schema.BlockPointBlockNumberKey, Value: 1},
				{Key: schema.BlockPointAddressKey, Value: 1},
				{Key: schema.BlockPointPairAddressKey, Value: 1},
				{Key: schema.BlockPointTypeKey, Value: 1},
			}, Options: unique},
			{Keys: bson.D{{Key: schema.BlockPointTypeKey, Value: 1}, {Key: schema.BlockPointTimestampKey, Value: 1}}},
		}},
		{s.SeasonPointCollection(), []mongo.IndexModel{
			{Keys: bson.D{
				{Key: schema.SeasonPointUserAddressKey, Value: 1},
				{Key: schema.SeasonPointPairAddressKey, Value: 1},
				{Key: schema.SeasonPointTypeKey, Value: 1},
				{Key: schema.SeasonPointSeasonKey, Value: 1},
			}, Options: unique},
			{Keys: bson.D{{Key: schema.SeasonPointSeasonKey, Value: 1}}},
		}},
		{s.FirstDepositCollection(), []mongo.IndexModel{
			{Keys: bson.D{{Key: schema.FirstDepositAddressKey, Value: 1}}, Options: unique},
		}},
		{s.PriceSnapshotCollection(), []mongo.IndexModel{
			{Keys: bson.D{{Key: schema.PriceSnapshotPriceIDKey, Value: 1}, {Key: schema.PriceSnapshotBlockNumberKey, Value: 1}}, Options: unique},
		}},
		{s.ProjectCollection(), []mongo.IndexModel{
			{Keys: bson.D{{Key: schema.ProjectNameKey, Value: 1}, {Key: schema.ProjectPairAddressKey, Value: 1}}, Options: unique},
		}},
		{s.UserCollection(), []mongo.IndexModel{
			{Keys: bson.D{{Key: schema.UserAddressKey, Value: 1}}, Options: unique},
		}},
	} {
		names, err := x.coll.Indexes().CreateMany(ctx, x.is)
		if err != nil {
			return res, err
		}
		res = append(res, names...)
	}
	return res, nil
}

// ignoreDuplicates swallows duplicate-key write errors so natural-key
// conflicts behave as insert-ignore. Any other error is surfaced.
func ignoreDuplicates(err error) error {
	if err == nil {
		return nil
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, we := range bwe.WriteErrors {
			if !mongo.IsDuplicateKeyError(we) {
				return err
			}
		}
		if bwe.WriteConcernError != nil {
			return err
		}
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}
