package blockchain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/matrixise/dog-tracker/internal/okx"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"}
]`

const fallbackDecimals uint8 = 18

// TokenMetadata reads symbol, decimals and total supply of token. Symbol and
// decimals fall back to defaults; a failed totalSupply is an error.
func (c *Client) TokenMetadata(ctx context.Context, token string) (okx.TokenInfo, error) {
	addr := common.HexToAddress(token)
	info := okx.TokenInfo{ContractAddress: addr.Hex(), Symbol: "LP", Decimals: int(fallbackDecimals)}

	decimals := c.decimals(ctx, addr)
	info.Decimals = int(decimals)

	if out, err := c.call(ctx, addr, "symbol"); err == nil {
		if s, ok := out[0].(string); ok && s != "" {
			info.Symbol = s
		}
	} else {
		slog.Warn("Token symbol unavailable", "token", info.ContractAddress, "error", err)
	}

	out, err := c.call(ctx, addr, "totalSupply")
	if err != nil {
		return info, fmt.Errorf("totalSupply: %w", err)
	}
	supply, ok := out[0].(*big.Int)
	if !ok {
		return info, fmt.Errorf("totalSupply: unexpected type %T", out[0])
	}
	info.TotalSupply = ToDecimal(supply, decimals)
	return info, nil
}

// BalanceOf returns the balance of holder in token
func (c *Client) BalanceOf(ctx context.Context, token, holder string) (okx.TokenBalance, error) {
	addr := common.HexToAddress(token)
	balance := okx.TokenBalance{ContractAddress: addr.Hex(), Symbol: "UNKNOWN", RawAmount: "0"}

	out, err := c.call(ctx, addr, "balanceOf", common.HexToAddress(holder))
	if err != nil {
		return balance, fmt.Errorf("balanceOf: %w", err)
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return balance, fmt.Errorf("balanceOf: unexpected type %T", out[0])
	}

	decimals := c.decimals(ctx, addr)
	if sym, err := c.call(ctx, addr, "symbol"); err == nil {
		if s, ok := sym[0].(string); ok && s != "" {
			balance.Symbol = s
		}
	}

	balance.Amount = ToDecimal(raw, decimals)
	balance.RawAmount = raw.String()
	return balance, nil
}

func (c *Client) decimals(ctx context.Context, token common.Address) uint8 {
	out, err := c.call(ctx, token, "decimals")
	if err != nil {
		slog.Warn("Token decimals unavailable, using fallback", "token", token.Hex(), "fallback", fallbackDecimals, "error", err)
		return fallbackDecimals
	}
	if d, ok := out[0].(uint8); ok {
		return d
	}
	return fallbackDecimals
}
