package cmd

import (
	"context"
	"io"

	"github.com/matrixise/dog-tracker/internal/blockchain"
	"github.com/matrixise/dog-tracker/internal/config"
	"github.com/matrixise/dog-tracker/internal/logger"
	"github.com/matrixise/dog-tracker/internal/metrics"
	"github.com/matrixise/dog-tracker/internal/okx"
	"github.com/matrixise/dog-tracker/internal/snapshot"
	"github.com/matrixise/dog-tracker/internal/tracker"
)

// setupLogging applies the config log level and file. An explicit
// --log-level flag takes precedence over the config value.
func setupLogging(cfg *config.Config) io.Closer {
	return logger.SetupWithFile(resolveLogLevel(cfg), logger.FileOptions{Path: cfg.LogFile})
}

func resolveLogLevel(cfg *config.Config) string {
	if rootCmd.PersistentFlags().Changed("log-level") || cfg.LogLevel == "" {
		return logLevel
	}
	return cfg.LogLevel
}

func newOKXClient(cfg *config.Config, m *metrics.Metrics) (*okx.Client, error) {
	opts := okx.Options{
		BaseURL:        cfg.APIBaseURL,
		APIKey:         cfg.APIKey,
		SecretKey:      cfg.APISecret,
		Passphrase:     cfg.APIPassphrase,
		ChainShortName: cfg.ChainShortName,
		Timeout:        cfg.RequestTimeout,
		PageSize:       cfg.PageSize,
		MaxAttempts:    cfg.MaxAttempts,
		PageDelay:      cfg.PageDelay,
		RetryDelay:     cfg.RetryDelay,
		Metrics:        m,
	}
	if cfg.UseProxy {
		opts.ProxyURL = cfg.ProxyURL
	}
	return okx.NewClient(opts)
}

// newChainClient connects to the configured RPC endpoints, nil when none
func newChainClient(ctx context.Context, cfg *config.Config) (*blockchain.Client, error) {
	if len(cfg.RPCURLs) == 0 {
		return nil, nil
	}
	return blockchain.NewClient(ctx, cfg.RPCURLs)
}

func newTracker(cfg *config.Config, client tracker.Client, chain *blockchain.Client, store *snapshot.Store, m *metrics.Metrics) *tracker.Tracker {
	opts := tracker.Options{
		Client: client,
		Store:  store,
		LoadUsers: func() ([]config.User, error) {
			return config.LoadUsers(cfg.UsersFile)
		},
		TokenContract:    cfg.TokenContract,
		IncludeTransfers: cfg.IncludeTransfers,
		AddressDelay:     cfg.AddressDelay,
		UserDelay:        cfg.UserDelay,
		Metrics:          m,
	}
	if cfg.PoolEnabled() {
		opts.PoolAddress = cfg.PoolAddress
		opts.LPToken = cfg.LPTokenAddress
	}
	if chain != nil {
		opts.PoolSource = blockchain.NewPoolSource(chain, cfg.TokenContract)
	}
	return tracker.New(opts)
}
