// Package server exposes the leaderboard API. Handlers never touch
// MongoDB directly; they serve a redis-cached snapshot that a
// background updater rebuilds from season totals.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/zkLinkProtocol/nova-point-backend/config"
	"github.com/zkLinkProtocol/nova-point-backend/schema"
	"github.com/zkLinkProtocol/nova-point-backend/service/season"
	"github.com/zkLinkProtocol/nova-point-backend/service/store"
	"github.com/zkLinkProtocol/nova-point-backend/util"
)

type Server struct {
	*echo.Echo
	cfg    config.ServerConfig
	ss     *store.Service
	rp     *redis.Pool
	logger *zap.Logger
}

func New(cfg config.ServerConfig, ss *store.Service, rp *redis.Pool, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Debug
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	s := &Server{e, cfg, ss, rp, logger}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.GET("/status", s.GetStatus)
	s.GET("/leaderboard", s.GetLeaderBoard)
	s.GET("/leaderboard/search", s.SearchAccount)
}

func (s *Server) currentSeason() int {
	if active := season.Current(s.cfg.Seasons, time.Now()); active != nil {
		return active.Season
	}
	return 0
}

func (s *Server) GetStatus(c echo.Context) error {
	block, err := s.ss.LatestScoredBlock(c.Request().Context())
	if err != nil {
		return fmt.Errorf("get latest scored block: %w", err)
	}
	return c.JSON(http.StatusOK, schema.StatusResponse{
		Season:            s.currentSeason(),
		LatestScoredBlock: block,
	})
}

func (s *Server) GetLeaderBoard(c echo.Context) error {
	var req schema.LeaderBoardRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	var resp schema.LeaderBoardResponse
	if err := RetryLoadingCache(c.Request().Context(), func(ctx context.Context) error {
		var err error
		resp, err = s.LoadLeaderBoardCache(ctx)
		return err
	}, s.cfg.CacheLoadTimeout); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return echo.NewHTTPError(http.StatusInternalServerError, "no leaderboard data found")
		}
		return fmt.Errorf("load cache: %w", err)
	}
	if req.Address != "" {
		for _, acc := range resp.Accounts {
			if acc.Address == req.Address {
				acc := acc
				resp.Me = &acc
				break
			}
		}
	}
	resp.Accounts = resp.Accounts[:util.MinInt(s.cfg.LeaderBoardSize, len(resp.Accounts))]
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) SearchAccount(c echo.Context) error {
	var req schema.SearchAccountRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query must be provided")
	}
	var lb schema.LeaderBoardResponse
	if err := RetryLoadingCache(c.Request().Context(), func(ctx context.Context) error {
		var err error
		lb, err = s.LoadLeaderBoardCache(ctx)
		return err
	}, s.cfg.CacheLoadTimeout); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return echo.NewHTTPError(http.StatusInternalServerError, "no leaderboard data found")
		}
		return fmt.Errorf("load cache: %w", err)
	}
	resp := schema.SearchAccountResponse{
		Season:    lb.Season,
		UpdatedAt: lb.UpdatedAt,
	}
	for _, acc := range lb.Accounts {
		if acc.Address == req.Query || acc.UserName == req.Query {
			acc := acc
			resp.Account = &acc
			break
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}
