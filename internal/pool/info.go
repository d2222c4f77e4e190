package pool

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/matrixise/dog-tracker/internal/okx"
)

// Source is the subset of the OKX client needed to resolve pool state
type Source interface {
	FetchAddressBalances(ctx context.Context, address string) ([]okx.TokenBalance, error)
	LookupToken(ctx context.Context, contract string) (okx.TokenInfo, error)
}

// Info is the pool state shared by every user of a run
type Info struct {
	Address       string
	LPToken       string
	LPTotalSupply decimal.Decimal
	LPSymbol      string
	LPDecimals    int
	Reserve       decimal.Decimal // tracked token held by the pool
	Err           error
}

// Holdings returns the reserve share backing userLP. Unresolved pool state
// yields zero.
func (i Info) Holdings(userLP decimal.Decimal) decimal.Decimal {
	if i.Err != nil {
		return decimal.Zero
	}
	return ComputeShare(userLP, i.LPTotalSupply, i.Reserve)
}

// Resolve reads the LP token supply and the pool reserve of tokenContract.
// Failures are recorded in Info.Err rather than returned.
func Resolve(ctx context.Context, src Source, poolAddress, lpToken, tokenContract string) Info {
	info := Info{
		Address:       poolAddress,
		LPToken:       lpToken,
		LPTotalSupply: decimal.Zero,
		LPSymbol:      "LP",
		LPDecimals:    18,
		Reserve:       decimal.Zero,
	}

	token, err := src.LookupToken(ctx, lpToken)
	if err != nil {
		info.Err = fmt.Errorf("lp token lookup: %w", err)
		slog.Error("Failed to resolve LP token", "lp_token", lpToken, "error", err)
		return info
	}
	info.LPTotalSupply = token.TotalSupply
	info.LPSymbol = token.Symbol
	info.LPDecimals = token.Decimals

	balances, err := src.FetchAddressBalances(ctx, poolAddress)
	if err != nil {
		info.Err = fmt.Errorf("pool reserve: %w", err)
		slog.Error("Failed to resolve pool reserve", "pool", poolAddress, "error", err)
		return info
	}
	info.Reserve = okx.FindToken(balances, tokenContract).Amount

	slog.Info("Pool resolved",
		"pool", poolAddress,
		"lp_symbol", info.LPSymbol,
		"lp_total_supply", info.LPTotalSupply.String(),
		"reserve", info.Reserve.String(),
	)
	return info
}
