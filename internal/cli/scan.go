package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var scanWithin int

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Schedule proactive refreshes for tokens expiring soon",
	Long: `Runs one expiry scan and dispatches refresh jobs for tokens expiring
within the window. Jobs run in whichever process hosts the workers.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanWithin, "within", 0, "scan window in minutes (default REFRESH_SCAN_WINDOW_MINUTES)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
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

	within := scanWithin
	if within <= 0 {
		within = a.Config().Refresh.ScanWindowMinutes
	}

	result, err := a.Scheduler().ScheduleAllExpiringTokens(ctx, within)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	cmd.Printf("scheduled=%d skipped=%d failed=%d\n", result.Scheduled, result.Skipped, result.Failed)
	return nil
}
