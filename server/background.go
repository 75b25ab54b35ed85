package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zkLinkProtocol/nova-point-backend/service/season"
	"github.com/zkLinkProtocol/nova-point-backend/util"
)

func (s *Server) RunBackgroundUpdater(ctx context.Context) error {
	ticker := util.NewImmediateTicker(s.cfg.CacheUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.logger.Debug("updating leaderboard cache")
			if err := s.UpdateCaches(ctx); err != nil {
				s.logger.Error("failed to update caches", zap.Error(err))
			}
		}
	}
}

func (s *Server) UpdateCaches(ctx context.Context) error {
	active := season.Current(s.cfg.Seasons, time.Now())
	if active == nil {
		s.logger.Debug("no active season, cache not updated")
		return nil
	}
	return s.UpdateLeaderBoardCache(ctx, active.Season)
}
