package blockchain

import (
	"context"

	"github.com/matrixise/dog-tracker/internal/okx"
)

// PoolSource resolves pool state on chain. It satisfies pool.Source so it
// can replace the explorer for the LP supply and reserve lookups.
type PoolSource struct {
	client *Client
	tokens []string
}

// NewPoolSource reads balances of tokens held by the pool
func NewPoolSource(client *Client, tokens ...string) *PoolSource {
	return &PoolSource{client: client, tokens: tokens}
}

// LookupToken reads LP token metadata and total supply
func (s *PoolSource) LookupToken(ctx context.Context, contract string) (okx.TokenInfo, error) {
	return s.client.TokenMetadata(ctx, contract)
}

// FetchAddressBalances returns the balance of each configured token held by
// address
func (s *PoolSource) FetchAddressBalances(ctx context.Context, address string) ([]okx.TokenBalance, error) {
	balances := make([]okx.TokenBalance, 0, len(s.tokens))
	for _, token := range s.tokens {
		b, err := s.client.BalanceOf(ctx, token, address)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, nil
}
