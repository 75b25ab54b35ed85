// Package worker runs the whole accrual machine: cron-driven unit
// scheduling and season aggregation, plus polling loops that ingest and
// score pending units per project. Projects advance independently, so
// one stuck adapter never blocks the rest.
package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zkLinkProtocol/nova-point-backend/config"
	"github.com/zkLinkProtocol/nova-point-backend/ingest"
	"github.com/zkLinkProtocol/nova-point-backend/service/point"
	"github.com/zkLinkProtocol/nova-point-backend/service/season"
	"github.com/zkLinkProtocol/nova-point-backend/service/store"
	"github.com/zkLinkProtocol/nova-point-backend/util"
)

type Worker struct {
	cfg      config.WorkerConfig
	ss       *store.Service
	pipeline *ingest.Pipeline
	engine   *point.Engine
	seasons  *season.Service
	head     HeadSource
	adapters map[string]ingest.Adapter
	logger   *zap.Logger
}

func New(cfg config.WorkerConfig, ss *store.Service, pipeline *ingest.Pipeline,
	engine *point.Engine, seasons *season.Service, head HeadSource, logger *zap.Logger) *Worker {

	adapters := make(map[string]ingest.Adapter, len(cfg.Projects))
	for _, p := range cfg.Projects {
		adapters[p.Name] = ingest.NewCommandAdapter(p.Name, p.AdapterCmd, p.AdapterArgs, cfg.AdapterTimeout, logger)
	}
	return &Worker{
		cfg:      cfg,
		ss:       ss,
		pipeline: pipeline,
		engine:   engine,
		seasons:  seasons,
		head:     head,
		adapters: adapters,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled. Scheduling and aggregation run on
// cron; ingestion and scoring poll on fixed intervals.
func (w *Worker) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(w.cfg.ScheduleCron, func() {
		if err := w.ScheduleUnits(ctx); err != nil {
			w.logger.Error("failed to schedule units", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	if _, err := c.AddFunc(w.cfg.AggregateCron, func() {
		if err := w.seasons.Aggregate(ctx, time.Now()); err != nil {
			w.logger.Error("failed to aggregate season", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	// Schedule once at startup so a fresh deployment does not idle
	// until the first cron fire.
	if err := w.ScheduleUnits(ctx); err != nil {
		w.logger.Error("failed to schedule units", zap.Error(err))
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return w.ingestLoop(ctx) })
	eg.Go(func() error { return w.scoreLoop(ctx) })
	return eg.Wait()
}

// ScheduleUnits snapshots the chain head once and creates pending units
// for every project against it.
func (w *Worker) ScheduleUnits(ctx context.Context) error {
	head, err := w.head.ChainHead(ctx)
	if err != nil {
		return err
	}
	for _, p := range w.cfg.Projects {
		if p.TVL {
			if err := w.ss.ScheduleTVL(ctx, p.Name, head); err != nil {
				w.logger.Error("failed to schedule tvl unit",
					zap.String("project", p.Name), zap.Error(err))
			}
		}
		if p.Tx {
			if err := w.ss.ScheduleTx(ctx, p.Name, p.StartBlock, head); err != nil {
				w.logger.Error("failed to schedule tx unit",
					zap.String("project", p.Name), zap.Error(err))
			}
		}
	}
	w.logger.Info("scheduled units", zap.Int64("chainHead", head))
	return nil
}

func (w *Worker) ingestLoop(ctx context.Context) error {
	ticker := util.NewImmediateTicker(w.cfg.IngestInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.fanOut(ctx, w.ingestProject)
		}
	}
}

func (w *Worker) scoreLoop(ctx context.Context) error {
	ticker := util.NewImmediateTicker(w.cfg.ScoreInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.fanOut(ctx, w.scoreProject)
		}
	}
}

// fanOut runs fn for every project concurrently. A project's failure is
// logged, not propagated; the unit stays pending for the next tick.
func (w *Worker) fanOut(ctx context.Context, fn func(context.Context, config.ProjectConfig) error) {
	eg, ctx := errgroup.WithContext(ctx)
	for _, p := range w.cfg.Projects {
		p := p
		eg.Go(func() error {
			if err := fn(ctx, p); err != nil {
				w.logger.Error("project pass failed",
					zap.String("project", p.Name), zap.Error(err))
			}
			return nil
		})
	}
	_ = eg.Wait()
}

// ingestProject drains the project's pending units in ascending block
// order, stopping at the first failure so order is preserved.
func (w *Worker) ingestProject(ctx context.Context, p config.ProjectConfig) error {
	adapter := w.adapters[p.Name]
	if p.TVL {
		units, err := w.ss.PendingTVLIngestion(ctx, p.Name)
		if err != nil {
			return err
		}
		for _, u := range units {
			if err := w.pipeline.IngestTVL(ctx, adapter, u); err != nil {
				return err
			}
		}
	}
	if p.Tx {
		units, err := w.ss.PendingTxIngestion(ctx, p.Name)
		if err != nil {
			return err
		}
		for _, u := range units {
			if err := w.pipeline.IngestTx(ctx, adapter, u); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Worker) scoreProject(ctx context.Context, p config.ProjectConfig) error {
	if p.TVL {
		units, err := w.ss.PendingTVLScoring(ctx, p.Name)
		if err != nil {
			return err
		}
		for _, u := range units {
			if err := w.engine.ScoreTVLUnit(ctx, u); err != nil {
				return err
			}
		}
	}
	if p.Tx {
		units, err := w.ss.PendingTxScoring(ctx, p.Name)
		if err != nil {
			return err
		}
		for _, u := range units {
			if err := w.engine.ScoreTxUnit(ctx, u); err != nil {
				return err
			}
		}
	}
	return nil
}
