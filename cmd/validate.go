package cmd

import (
	"log/slog"

	"github.com/matrixise/dog-tracker/internal/config"
	"github.com/matrixise/dog-tracker/internal/logger"
	"github.com/matrixise/dog-tracker/internal/scheduler"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate configuration and users files",
	Long:  `Validate the configuration file, environment overrides and the users file without calling the API.`,
	RunE:  validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	// Setup logger
	logger.Setup(logLevel)

	cfg, users, err := config.LoadWithUsers(cfgFile)
	if err != nil {
		slog.Error("Configuration validation failed", "error", err)
		return err
	}

	slog.Info("✓ Configuration valid",
		"users", len(users),
		"addresses", config.CountAddresses(users),
		"api_base_url", cfg.APIBaseURL,
		"chain", cfg.ChainShortName,
		"token", cfg.TokenContract,
		"pool_enabled", cfg.PoolEnabled(),
		"proxy", cfg.UseProxy,
		"schedule", scheduler.DescribeSchedule(cfg.Interval, cfg.GetTimezone()),
		"log_level", cfg.LogLevel,
	)

	return nil
}
