package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zkLinkProtocol/nova-point-backend/config"
	"github.com/zkLinkProtocol/nova-point-backend/ingest"
	"github.com/zkLinkProtocol/nova-point-backend/service/booster"
	"github.com/zkLinkProtocol/nova-point-backend/service/point"
	"github.com/zkLinkProtocol/nova-point-backend/service/price"
	"github.com/zkLinkProtocol/nova-point-backend/service/season"
	"github.com/zkLinkProtocol/nova-point-backend/service/store"
	"github.com/zkLinkProtocol/nova-point-backend/worker"
)

func WorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "run accrual worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.Load("config.yml")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Worker.Validate(); err != nil {
				return fmt.Errorf("validate worker config: %w", err)
			}

			logger, err := cfg.Worker.Log.Build()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync()

			mc, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.Worker.MongoDB.URI))
			if err != nil {
				return fmt.Errorf("connect mongodb: %w", err)
			}
			defer mc.Disconnect(context.Background())

			ss := store.NewService(cfg.Worker.MongoDB, mc)
			if _, err := ss.EnsureDBIndexes(context.Background()); err != nil {
				return fmt.Errorf("ensure db indexes: %w", err)
			}

			provider := price.NewMarketChartProvider(cfg.Worker.Price)
			ps := price.NewService(cfg.Worker.Price, provider, ss, logger)
			bs := booster.New(cfg.Worker.Booster, cfg.Worker.Tokens)
			pipeline := ingest.NewPipeline(cfg.Worker, ss, logger)
			engine := point.NewEngine(cfg.Worker, ss, ps, bs, logger)
			seasons := season.NewService(cfg.Worker, ss, logger)
			head := worker.NewRPCHeadSource(cfg.Worker.ChainRPCURL)
			w := worker.New(cfg.Worker, ss, pipeline, engine, seasons, head, logger)

			logger.Info("started")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			done := make(chan error)
			go func() {
				done <- w.Run(ctx)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt)
			<-quit

			logger.Info("gracefully shutting down")
			cancel()

			if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	return cmd
}
