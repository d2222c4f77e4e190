package okx

import (
	"context"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

const tokenListPath = "/api/v5/xlayer/token/token-list"

// TokenInfo is token metadata from the token list endpoint
type TokenInfo struct {
	ContractAddress string
	Symbol          string
	Decimals        int
	TotalSupply     decimal.Decimal
}

type tokenListPage struct {
	TokenList []struct {
		Token                string `json:"token"`
		TokenContractAddress string `json:"tokenContractAddress"`
		Precision            string `json:"precision"`
		TotalSupply          string `json:"totalSupply"`
	} `json:"tokenList"`
}

// LookupToken reads total supply, symbol and decimals for contract. An empty
// response is not an error: it yields a zero supply with default metadata.
func (c *Client) LookupToken(ctx context.Context, contract string) (TokenInfo, error) {
	info := TokenInfo{ContractAddress: contract, Symbol: "LP", Decimals: 18, TotalSupply: decimal.Zero}

	err := c.withRetry(ctx, "Token lookup", []any{"contract", contract}, func(ctx context.Context) error {
		query := url.Values{}
		query.Set("chainShortName", c.chain)
		query.Set("tokenContractAddress", contract)

		var data []tokenListPage
		if err := c.get(ctx, "token-list", tokenListPath, query, &data); err != nil {
			return err
		}
		if len(data) == 0 || len(data[0].TokenList) == 0 {
			return nil
		}

		entry := data[0].TokenList[0]
		if entry.Token != "" {
			info.Symbol = entry.Token
		}
		if n, err := strconv.Atoi(entry.Precision); err == nil {
			info.Decimals = n
		}
		info.TotalSupply = ParseAmount(entry.TotalSupply)
		return nil
	})
	if err != nil {
		return info, err
	}
	return info, nil
}
