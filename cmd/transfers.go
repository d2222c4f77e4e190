package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/matrixise/dog-tracker/internal/config"
	"github.com/matrixise/dog-tracker/internal/logger"
	"github.com/matrixise/dog-tracker/internal/metrics"
	"github.com/matrixise/dog-tracker/internal/transfers"
	"github.com/spf13/cobra"
)

var transfersOutput string

var transfersCmd = &cobra.Command{
	Use:   "transfers",
	Short: "Aggregate liquidity deposits into the pool per user",
	Long: `List the pool's token transfers, keep addLiquidity calls made from tracked
addresses and write per-user totals to the transfer statistics file. A compact
copy without individual transactions is written next to it.`,
	RunE: runTransfers,
}

func init() {
	rootCmd.AddCommand(transfersCmd)

	transfersCmd.Flags().StringVarP(&transfersOutput, "output", "o", "", "output file (default: transfers_file from config)")
}

func runTransfers(cmd *cobra.Command, args []string) error {
	logger.Setup(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, users, err := config.LoadWithUsers(cfgFile)
	if err != nil {
		slog.Error("Configuration error", "error", err)
		return err
	}

	logCloser := setupLogging(cfg)
	defer logCloser.Close()

	if cfg.PoolAddress == "" {
		return errors.New("pool_address is not configured")
	}

	client, err := newOKXClient(cfg, metrics.New())
	if err != nil {
		slog.Error("Failed to create OKX client", "error", err)
		return err
	}

	stats, err := transfers.Collect(ctx, client, cfg.PoolAddress, users)
	if err != nil {
		return err
	}

	output := transfersOutput
	if output == "" {
		output = cfg.TransfersFile
	}
	if err := transfers.WriteFile(output, stats); err != nil {
		return err
	}
	if err := transfers.WriteFile(simplePath(output), stats.Simple()); err != nil {
		return err
	}

	for i, u := range stats.UserDetails {
		slog.Info("Depositor",
			"rank", i+1,
			"user", u.Nickname,
			"amount", u.TotalAmount.String(),
			"transactions", u.TransactionCount,
		)
	}
	slog.Info("Transfer statistics written",
		"output", output,
		"total", stats.Summary.TotalTransferred.String(),
		"users", stats.Summary.UsersInvolved,
		"partial", stats.Partial,
	)
	return nil
}

// simplePath derives the compact output name, stats.json -> stats-simple.json
func simplePath(output string) string {
	return strings.TrimSuffix(output, ".json") + "-simple.json"
}
