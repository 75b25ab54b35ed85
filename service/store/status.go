package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zkLinkProtocol/nova-point-backend/schema"
)

// Processing-status ledger. Flags only ever move false -> true and rows
// are never deleted, so concurrent writers converge to the same state
// without locks.

// ScheduleTVL creates a pending TVL unit for the observed chain head.
// Calling it again for the same block is a no-op.
func (s *Service) ScheduleTVL(ctx context.Context, projectName string, chainHead int64) error {
	_, err := s.TVLStatusCollection().UpdateOne(ctx, bson.M{
		schema.TVLStatusProjectNameKey: projectName,
		schema.TVLStatusBlockNumberKey: chainHead,
	}, bson.M{
		"$setOnInsert": bson.M{
			schema.TVLStatusAdapterProcessedKey: false,
			schema.TVLStatusPointProcessedKey:   false,
		},
	}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("schedule tvl unit: %w", err)
	}
	return nil
}

type txRangeAction int

const (
	txRangeSkip txRangeAction = iota
	txRangeInsert
	txRangeExtend
)

// nextTxRange decides how a project's transaction schedule advances
// from its latest range and the observed chain head. Ranges never gap
// and never overlap: a fresh range always starts at the previous
// range's end + 1, and an un-ingested range only ever extends its end
// toward the chain head. For txRangeInsert the returned block is the
// new range's start; for txRangeExtend it is the new end.
func nextTxRange(latest *schema.TxProcessingStatus, startBlock, chainHead int64) (txRangeAction, int64) {
	if latest == nil {
		if chainHead < startBlock {
			return txRangeSkip, 0
		}
		return txRangeInsert, startBlock
	}
	if chainHead <= latest.BlockNumberEnd {
		return txRangeSkip, 0
	}
	switch {
	case !latest.AdapterProcessed:
		return txRangeExtend, chainHead
	case latest.PointProcessed:
		return txRangeInsert, latest.BlockNumberEnd + 1
	default:
		// Ingested but not yet scored; leave the range closed so the
		// scorer sees a stable snapshot.
		return txRangeSkip, 0
	}
}

// ScheduleTx creates or extends the project's open transaction range.
func (s *Service) ScheduleTx(ctx context.Context, projectName string, startBlock, chainHead int64) error {
	var latest *schema.TxProcessingStatus
	var row schema.TxProcessingStatus
	err := s.TxStatusCollection().FindOne(ctx, bson.M{
		schema.TxStatusProjectNameKey: projectName,
	}, options.FindOne().SetSort(bson.M{schema.TxStatusBlockNumberStartKey: -1})).Decode(&row)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("find latest tx unit: %w", err)
		}
	} else {
		latest = &row
	}
	action, block := nextTxRange(latest, startBlock, chainHead)
	switch action {
	case txRangeExtend:
		if _, err := s.TxStatusCollection().UpdateOne(ctx, bson.M{
			schema.TxStatusProjectNameKey:      projectName,
			schema.TxStatusBlockNumberStartKey: latest.BlockNumberStart,
			schema.TxStatusAdapterProcessedKey: false,
		}, bson.M{
			"$max": bson.M{schema.TxStatusBlockNumberEndKey: block},
		}); err != nil {
			return fmt.Errorf("extend tx unit: %w", err)
		}
		return nil
	case txRangeInsert:
		return s.insertTxUnit(ctx, projectName, block, chainHead)
	default:
		return nil
	}
}

func (s *Service) insertTxUnit(ctx context.Context, projectName string, start, end int64) error {
	_, err := s.TxStatusCollection().UpdateOne(ctx, bson.M{
		schema.TxStatusProjectNameKey:      projectName,
		schema.TxStatusBlockNumberStartKey: start,
	}, bson.M{
		"$setOnInsert": bson.M{
			schema.TxStatusBlockNumberEndKey:   end,
			schema.TxStatusAdapterProcessedKey: false,
			schema.TxStatusPointProcessedKey:   false,
		},
	}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("insert tx unit: %w", err)
	}
	return nil
}

func (s *Service) PendingTVLIngestion(ctx context.Context, projectName string) ([]schema.TVLProcessingStatus, error) {
	return s.findTVLUnits(ctx, bson.M{
		schema.TVLStatusProjectNameKey:      projectName,
		schema.TVLStatusAdapterProcessedKey: false,
	})
}

func (s *Service) PendingTVLScoring(ctx context.Context, projectName string) ([]schema.TVLProcessingStatus, error) {
	return s.findTVLUnits(ctx, bson.M{
		schema.TVLStatusProjectNameKey:      projectName,
		schema.TVLStatusAdapterProcessedKey: true,
		schema.TVLStatusPointProcessedKey:   false,
	})
}

func (s *Service) findTVLUnits(ctx context.Context, filter bson.M) ([]schema.TVLProcessingStatus, error) {
	cur, err := s.TVLStatusCollection().Find(ctx, filter,
		options.Find().SetSort(bson.M{schema.TVLStatusBlockNumberKey: 1}))
	if err != nil {
		return nil, fmt.Errorf("find tvl units: %w", err)
	}
	defer cur.Close(ctx)
	var units []schema.TVLProcessingStatus
	if err := cur.All(ctx, &units); err != nil {
		return nil, fmt.Errorf("decode tvl units: %w", err)
	}
	return units, nil
}

func (s *Service) PendingTxIngestion(ctx context.Context, projectName string) ([]schema.TxProcessingStatus, error) {
	return s.findTxUnits(ctx, bson.M{
		schema.TxStatusProjectNameKey:      projectName,
		schema.TxStatusAdapterProcessedKey: false,
	})
}

func (s *Service) PendingTxScoring(ctx context.Context, projectName string) ([]schema.TxProcessingStatus, error) {
	return s.findTxUnits(ctx, bson.M{
		schema.TxStatusProjectNameKey:      projectName,
		schema.TxStatusAdapterProcessedKey: true,
		schema.TxStatusPointProcessedKey:   false,
	})
}

func (s *Service) findTxUnits(ctx context.Context, filter bson.M) ([]schema.TxProcessingStatus, error) {
	cur, err := s.TxStatusCollection().Find(ctx, filter,
		options.Find().SetSort(bson.M{schema.TxStatusBlockNumberStartKey: 1}))
	if err != nil {
		return nil, fmt.Errorf("find tx units: %w", err)
	}
	defer cur.Close(ctx)
	var units []schema.TxProcessingStatus
	if err := cur.All(ctx, &units); err != nil {
		return nil, fmt.Errorf("decode tx units: %w", err)
	}
	return units, nil
}

func (s *Service) MarkTVLIngested(ctx context.Context, projectName string, blockNumber int64) error {
	return s.markTVL(ctx, projectName, blockNumber, schema.TVLStatusAdapterProcessedKey)
}

func (s *Service) MarkTVLScored(ctx context.Context, projectName string, blockNumber int64) error {
	return s.markTVL(ctx, projectName, blockNumber, schema.TVLStatusPointProcessedKey)
}

func (s *Service) markTVL(ctx context.Context, projectName string, blockNumber int64, flag string) error {
	if _, err := s.TVLStatusCollection().UpdateOne(ctx, bson.M{
		schema.TVLStatusProjectNameKey: projectName,
		schema.TVLStatusBlockNumberKey: blockNumber,
	}, bson.M{
		"$set": bson.M{flag: true},
	}); err != nil {
		return fmt.Errorf("mark tvl unit %s: %w", flag, err)
	}
	return nil
}

// ingestedTxFilter identifies the exact range a finished ingestion
// covered. The end is part of the filter: if the scheduler extended the
// range while the adapter ran, the mark misses and the unit stays
// pending, to be re-ingested with its new end.
func ingestedTxFilter(unit schema.TxProcessingStatus) bson.M {
	return bson.M{
		schema.TxStatusProjectNameKey:      unit.ProjectName,
		schema.TxStatusBlockNumberStartKey: unit.BlockNumberStart,
		schema.TxStatusBlockNumberEndKey:   unit.BlockNumberEnd,
	}
}

func (s *Service) MarkTxIngested(ctx context.Context, unit schema.TxProcessingStatus) error {
	if _, err := s.TxStatusCollection().UpdateOne(ctx, ingestedTxFilter(unit), bson.M{
		"$set": bson.M{schema.TxStatusAdapterProcessedKey: true},
	}); err != nil {
		return fmt.Errorf("mark tx unit %s: %w", schema.TxStatusAdapterProcessedKey, err)
	}
	return nil
}

// MarkTxScored filters on the range start only; once a range is
// ingested the scheduler can no longer touch it.
func (s *Service) MarkTxScored(ctx context.Context, projectName string, blockNumberStart int64) error {
	if _, err := s.TxStatusCollection().UpdateOne(ctx, bson.M{
		schema.TxStatusProjectNameKey:      projectName,
		schema.TxStatusBlockNumberStartKey: blockNumberStart,
	}, bson.M{
		"$set": bson.M{schema.TxStatusPointProcessedKey: true},
	}); err != nil {
		return fmt.Errorf("mark tx unit %s: %w", schema.TxStatusPointProcessedKey, err)
	}
	return nil
}

// LatestScoredBlock reports the newest TVL block that finished scoring,
// across all projects.
func (s *Service) LatestScoredBlock(ctx context.Context) (int64, error) {
	var st schema.TVLProcessingStatus
	if err := s.TVLStatusCollection().FindOne(ctx, bson.M{
		schema.TVLStatusPointProcessedKey: true,
	}, options.FindOne().SetSort(bson.M{schema.TVLStatusBlockNumberKey: -1})).Decode(&st); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, err
	}
	return st.BlockNumber, nil
}
