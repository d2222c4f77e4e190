// Package blockchain reads ERC-20 and pool state straight from X Layer RPC
// endpoints, failing over between them.
package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

const (
	rpcTimeout    = 10 * time.Second
	maxAttempts   = 3
	retryInterval = 500 * time.Millisecond
)

// Client performs read-only contract calls with failover
type Client struct {
	failover *Failover
	erc20    abi.ABI
}

// NewClient connects to rpcURLs
func NewClient(ctx context.Context, rpcURLs []string) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	failover, err := NewFailover(ctx, rpcURLs)
	if err != nil {
		return nil, err
	}

	return &Client{failover: failover, erc20: parsed}, nil
}

// Close closes all RPC client connections
func (c *Client) Close() {
	c.failover.Close()
}

// EndpointsHealth reports each RPC endpoint as healthy or not
func (c *Client) EndpointsHealth() map[string]bool {
	return c.failover.Health()
}

// call runs an eth_call of method on contract, retrying with exponential
// backoff and moving to another endpoint after each failure
func (c *Client) call(ctx context.Context, contract common.Address, method string, args ...any) ([]any, error) {
	input, err := c.erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	var output []byte
	attempt := 0
	backoff := retry.WithMaxRetries(maxAttempts-1, retry.NewExponential(retryInterval))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		client, url, err := c.failover.Client(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}

		callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
		defer cancel()

		output, err = client.CallContract(callCtx, ethereum.CallMsg{To: &contract, Data: input}, nil)
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			// The node answered, the call itself failed
			return err
		}
		if err != nil {
			slog.Warn("Contract call failed", "method", method, "contract", contract.Hex(), "url", url, "attempt", attempt, "error", err)
			c.failover.MarkUnhealthy(url, err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed after %d attempts: %w", method, attempt, err)
	}

	values, err := c.erc20.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return values, nil
}

// ToDecimal scales a raw token amount by decimals
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil || raw.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}
