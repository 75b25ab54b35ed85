// Package season rolls the audit trail up into per-season leaderboard
// totals. Aggregation is a deterministic sum over an immutable window,
// so it is safe to rerun at any time.
package season

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zkLinkProtocol/nova-point-backend/config"
	"github.com/zkLinkProtocol/nova-point-backend/schema"
	"github.com/zkLinkProtocol/nova-point-backend/service/point"
	"github.com/zkLinkProtocol/nova-point-backend/service/store"
)

// Current returns the season whose [start, end) window contains now,
// or nil when no season is active.
func Current(seasons []config.SeasonConfig, now time.Time) *config.SeasonConfig {
	for i := range seasons {
		s := seasons[i]
		if !now.Before(s.StartTime) && now.Before(s.EndTime) {
			return &s
		}
	}
	return nil
}

type Service struct {
	seasons         []config.SeasonConfig
	referralBooster decimal.Decimal
	ss              *store.Service
	logger          *zap.Logger
}

func NewService(cfg config.WorkerConfig, ss *store.Service, logger *zap.Logger) *Service {
	return &Service{
		seasons:         cfg.Seasons,
		referralBooster: decimal.NewFromFloat(cfg.ReferralBooster),
		ss:              ss,
		logger:          logger,
	}
}

// Aggregate recomputes the active season's totals. No active season is
// a no-op, not an error.
func (s *Service) Aggregate(ctx context.Context, now time.Time) error {
	season := Current(s.seasons, now)
	if season == nil {
		s.logger.Info("no active season, skipping aggregation")
		return nil
	}
	return s.AggregateSeason(ctx, *season)
}

func (s *Service) AggregateSeason(ctx context.Context, season config.SeasonConfig) error {
	sums, err := s.ss.SumBlockPoints(ctx, []string{
		schema.PointTypeDirectHold,
		schema.PointTypeLPHold,
		schema.PointTypeTxNum,
		schema.PointTypeTxVol,
		schema.PointTypeBridge,
	}, season.StartTime, season.EndTime)
	if err != nil {
		return fmt.Errorf("sum block points: %w", err)
	}

	users, err := s.ss.Users(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.Address] = u.UserName
	}

	rows := make([]schema.SeasonTotalPoint, 0, len(sums))
	for _, sum := range sums {
		rows = append(rows, schema.SeasonTotalPoint{
			UserAddress: sum.Address,
			PairAddress: sum.PairAddress,
			Point:       schema.ToDecimal128(sum.Point),
			Type:        sum.Type,
			Season:      season.Season,
			UserName:    names[sum.Address],
		})
	}

	stakeByAddress, err := s.ss.StakePointsByAddress(ctx, season.StartTime, season.EndTime)
	if err != nil {
		return fmt.Errorf("sum stake points: %w", err)
	}
	for referrer, pt := range point.ReferralPoints(users, stakeByAddress, s.referralBooster) {
		rows = append(rows, schema.SeasonTotalPoint{
			UserAddress: referrer,
			PairAddress: "",
			Point:       schema.ToDecimal128(pt),
			Type:        schema.PointTypeReferral,
			Season:      season.Season,
			UserName:    names[referrer],
		})
	}

	if err := s.ss.UpsertSeasonTotalPoints(ctx, rows); err != nil {
		return fmt.Errorf("upsert season totals: %w", err)
	}
	s.logger.Info("aggregated season",
		zap.Int("season", season.Season),
		zap.Int("rows", len(rows)))
	return nil
}
