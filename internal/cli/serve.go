package cli

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API with queue workers and the expiry scanner",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := newBuilder()
		if err != nil {
			return err
		}

		a, err := b.WithServer().WithWorkers().WithScheduler().Build()
		if err != nil {
			return err
		}
		return a.Run()
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run queue workers and the expiry scanner without the API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := newBuilder()
		if err != nil {
			return err
		}

		a, err := b.WithWorkers().WithScheduler().Build()
		if err != nil {
			return err
		}
		return a.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd)
}
