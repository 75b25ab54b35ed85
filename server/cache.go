package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gomodule/redigo/redis"
	jsoniter "github.com/json-iterator/go"

	"github.com/zkLinkProtocol/nova-point-backend/schema"
	"github.com/zkLinkProtocol/nova-point-backend/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UpdateLeaderBoardCache rebuilds the ranked leaderboard from the
// season totals and saves it to redis. Per-type rows fold into one
// account entry; referral totals carry no pair address so they land on
// the same account via the empty key.
func (s *Server) UpdateLeaderBoardCache(ctx context.Context, seasonNumber int) error {
	rows, err := s.ss.SeasonTotalPoints(ctx, seasonNumber)
	if err != nil {
		return fmt.Errorf("load season totals: %w", err)
	}
	accounts := make(map[string]*schema.LeaderBoardAccount)
	var order []string
	for _, row := range rows {
		acc, ok := accounts[row.UserAddress]
		if !ok {
			acc = &schema.LeaderBoardAccount{
				UserName: row.UserName,
				Address:  row.UserAddress,
			}
			accounts[row.UserAddress] = acc
			order = append(order, row.UserAddress)
		}
		pt, _ := schema.FromDecimal128(row.Point).Float64()
		acc.TotalPoint += pt
		switch row.Type {
		case schema.PointTypeDirectHold, schema.PointTypeLPHold:
			acc.HoldPoint += pt
		case schema.PointTypeTxNum, schema.PointTypeTxVol, schema.PointTypeBridge:
			acc.TxPoint += pt
		case schema.PointTypeReferral:
			acc.ReferralPoint += pt
		}
	}
	resp := schema.LeaderBoardResponse{
		Season:   seasonNumber,
		Accounts: make([]schema.LeaderBoardAccount, 0, len(order)),
	}
	for _, addr := range order {
		resp.Accounts = append(resp.Accounts, *accounts[addr])
	}
	sort.SliceStable(resp.Accounts, func(i, j int) bool {
		return resp.Accounts[i].TotalPoint > resp.Accounts[j].TotalPoint
	})
	for i := range resp.Accounts {
		resp.Accounts[i].Ranking = i + 1
	}
	resp.UpdatedAt = time.Now()
	if err := s.SaveLeaderBoardCache(ctx, resp); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	return nil
}

func (s *Server) SaveCache(ctx context.Context, key string, v interface{}) error {
	c, err := s.rp.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("get redis conn: %w", err)
	}
	defer c.Close()
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	_, err = c.Do("SET", key, b)
	return err
}

func (s *Server) LoadCache(ctx context.Context, key string) ([]byte, error) {
	c, err := s.rp.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("get redis conn: %w", err)
	}
	defer c.Close()
	return redis.Bytes(c.Do("GET", key))
}

func (s *Server) SaveLeaderBoardCache(ctx context.Context, resp schema.LeaderBoardResponse) error {
	return s.SaveCache(ctx, s.cfg.Redis.LeaderBoardCacheKey, resp)
}

func (s *Server) LoadLeaderBoardCache(ctx context.Context) (resp schema.LeaderBoardResponse, err error) {
	b, err := s.LoadCache(ctx, s.cfg.Redis.LeaderBoardCacheKey)
	if err != nil {
		return resp, err
	}
	err = json.Unmarshal(b, &resp)
	if err != nil {
		return resp, fmt.Errorf("unmarshal response: %w", err)
	}
	return
}

// RetryLoadingCache keeps polling the cache until it appears or the
// timeout elapses, smoothing over the window before the first updater
// pass finishes.
func RetryLoadingCache(ctx context.Context, fn func(context.Context) error, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := util.NewImmediateTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				if !errors.Is(err, redis.ErrNil) {
					return err
				}
			} else {
				return nil
			}
		}
	}
}
