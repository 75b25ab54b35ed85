package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zkLinkProtocol/nova-point-backend/config"
	"github.com/zkLinkProtocol/nova-point-backend/ingest"
	"github.com/zkLinkProtocol/nova-point-backend/schema"
	"github.com/zkLinkProtocol/nova-point-backend/service/store"
)

// ImportUsersCmd loads user display names and referral edges from a CSV
// file with rows of the form: address,userName[,referrerAddress].
func ImportUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-users [file]",
		Short: "import user metadata from a csv file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.Load("config.yml")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open csv file: %w", err)
			}
			defer f.Close()

			rd := csv.NewReader(f)
			rd.FieldsPerRecord = -1
			var users []schema.User
			for {
				row, err := rd.Read()
				if err != nil {
					if errors.Is(err, io.EOF) {
						break
					}
					return fmt.Errorf("read csv row: %w", err)
				}
				if len(row) < 2 {
					continue
				}
				u := schema.User{
					Address:  ingest.NormalizeAddress(row[0]),
					UserName: row[1],
				}
				if len(row) > 2 {
					u.Referrer = ingest.NormalizeAddress(row[2])
				}
				users = append(users, u)
			}

			mc, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.Worker.MongoDB.URI))
			if err != nil {
				return fmt.Errorf("connect mongodb: %w", err)
			}
			defer mc.Disconnect(context.Background())

			ss := store.NewService(cfg.Worker.MongoDB, mc)
			if err := ss.UpsertUsers(context.Background(), users); err != nil {
				return err
			}
			fmt.Printf("imported %d users\n", len(users))
			return nil
		},
	}
	return cmd
}
