package cli

import (
	"github.com/spf13/cobra"
	"github.com/tech-arch1tect/cloudtoken/app"
	"github.com/tech-arch1tect/cloudtoken/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "cloudtoken",
	Short:         "Coordinate OAuth token refreshes for cloud storage connections",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// loadConfig is replaced in tests.
var loadConfig = func() (*config.Config, error) {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Execute() error {
	return rootCmd.Execute()
}

// newBuilder starts an app from the loaded config. Mail and metrics are
// switched on when configured.
func newBuilder() (*app.AppBuilder, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	b := app.NewApp().WithConfig(cfg)
	if cfg.Mail.FromAddress != "" {
		b.WithMail()
	}
	if cfg.Metrics.Enabled {
		b.WithMetrics()
	}
	return b, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("cloudtoken version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
