package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tech-arch1tect/cloudtoken/services/audit"
	"github.com/tech-arch1tect/cloudtoken/services/refresh"
)

var (
	refreshUser     uint
	refreshProvider string
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one coordinated refresh for a user's connection",
	RunE:  runRefresh,
}

func init() {
	refreshCmd.Flags().UintVar(&refreshUser, "user", 0, "user id")
	refreshCmd.Flags().StringVar(&refreshProvider, "provider", "", "provider name, e.g. google-drive")
	_ = refreshCmd.MarkFlagRequired("user")
	_ = refreshCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	if refreshUser == 0 {
		return errors.New("--user must be a positive id")
	}

	b, err := newBuilder()
	if err != nil {
		return err
	}

	a, err := b.Build()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = a.Stop() }()

	result := a.Coordinator().CoordinateRefresh(ctx, refresh.Request{
		UserID:   refreshUser,
		Provider: refreshProvider,
		Client:   audit.Context{UserAgent: "cloudtoken-cli/" + version, Provider: refreshProvider},
	})

	cmd.Printf("outcome=%s state=%s", result.Outcome, result.State())
	if result.Reason != refresh.ReasonNone {
		cmd.Printf(" reason=%s", result.Reason)
	}
	if result.ErrorType != "" {
		cmd.Printf(" error_type=%s", result.ErrorType)
	}
	cmd.Printf(" attempts=%d\n", result.Attempts)

	if !result.Success() {
		return fmt.Errorf("refresh failed: %s", result.Message)
	}
	return nil
}
