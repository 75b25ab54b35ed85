package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zkLinkProtocol/nova-point-backend/config"
	"github.com/zkLinkProtocol/nova-point-backend/service/season"
	"github.com/zkLinkProtocol/nova-point-backend/service/store"
)

// AggregateCmd recomputes season totals once and exits. Useful for
// backfilling a past season or forcing a refresh outside the cron
// schedule.
func AggregateCmd() *cobra.Command {
	var seasonNumber int
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "aggregate season totals once",
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
			svc := season.NewService(cfg.Worker, ss, logger)

			ctx := context.Background()
			if seasonNumber > 0 {
				for _, s := range cfg.Worker.Seasons {
					if s.Season == seasonNumber {
						return svc.AggregateSeason(ctx, s)
					}
				}
				return fmt.Errorf("season %d is not configured", seasonNumber)
			}
			return svc.Aggregate(ctx, time.Now())
		},
	}
	cmd.Flags().IntVar(&seasonNumber, "season", 0, "season number to aggregate (default: the active season)")
	return cmd
}
