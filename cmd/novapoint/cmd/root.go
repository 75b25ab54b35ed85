package cmd

import "github.com/spf13/cobra"

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "novapoint",
		Short: "nova point backend",
	}
	cmd.AddCommand(WorkerCmd())
	cmd.AddCommand(ServerCmd())
	cmd.AddCommand(AggregateCmd())
	cmd.AddCommand(ImportUsersCmd())
	return cmd
}
