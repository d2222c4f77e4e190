package okx

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

const tokenBalancePath = "/api/v5/xlayer/address/token-balance"

// TokenBalance is one token held by an address
type TokenBalance struct {
	ContractAddress string          `json:"contractAddress"`
	Symbol          string          `json:"symbol"`
	Amount          decimal.Decimal `json:"amount"`
	RawAmount       string          `json:"rawAmount"` // holding amount as returned by the API
}

type tokenBalancePage struct {
	Page      string          `json:"page"`
	Limit     string          `json:"limit"`
	TotalPage string          `json:"totalPage"`
	TokenList []apiTokenEntry `json:"tokenList"`
}

type apiTokenEntry struct {
	Symbol               string `json:"symbol"`
	TokenContractAddress string `json:"tokenContractAddress"`
	HoldingAmount        string `json:"holdingAmount"`
}

// FetchAddressBalances returns every token held by address, walking all
// result pages. The whole walk is retried on failure; once attempts are
// exhausted the error wraps ErrFetchFailed. An address with no tokens yields
// an empty, non-nil slice and a nil error.
func (c *Client) FetchAddressBalances(ctx context.Context, address string) ([]TokenBalance, error) {
	var balances []TokenBalance

	err := c.withRetry(ctx, "Address balance fetch", []any{"address", address}, func(ctx context.Context) error {
		var err error
		balances, err = c.fetchAllPages(ctx, address)
		return err
	})
	if err != nil {
		c.metrics.ObserveAddressFetch(false)
		return nil, err
	}

	c.metrics.ObserveAddressFetch(true)
	slog.Debug("Address balances retrieved", "address", address, "tokens", len(balances))
	return balances, nil
}

func (c *Client) fetchAllPages(ctx context.Context, address string) ([]TokenBalance, error) {
	balances := []TokenBalance{}

	for page := 1; ; {
		query := url.Values{}
		query.Set("chainShortName", c.chain)
		query.Set("address", address)
		query.Set("protocolType", "token_20")
		query.Set("limit", strconv.Itoa(c.pageSize))
		query.Set("page", strconv.Itoa(page))

		var data []tokenBalancePage
		if err := c.get(ctx, "token-balance", tokenBalancePath, query, &data); err != nil {
			return nil, err
		}

		if len(data) == 0 {
			slog.Debug("Empty balance page", "address", address, "page", page)
			return balances, nil
		}

		for _, entry := range data[0].TokenList {
			balances = append(balances, entry.toBalance())
		}

		total := parsePageNumber(data[0].TotalPage, 1)
		slog.Debug("Balance page retrieved",
			"address", address,
			"page", page,
			"reported_page", data[0].Page,
			"total_pages", total,
			"tokens", len(data[0].TokenList),
		)

		// advance from the requested page, the echoed one may repeat
		if page >= total {
			return balances, nil
		}
		page++

		if err := Pause(ctx, c.pageDelay); err != nil {
			return nil, err
		}
	}
}

func (e apiTokenEntry) toBalance() TokenBalance {
	raw := e.HoldingAmount
	if raw == "" {
		raw = "0"
	}
	symbol := e.Symbol
	if symbol == "" {
		symbol = unknownSymbol
	}
	return TokenBalance{
		ContractAddress: e.TokenContractAddress,
		Symbol:          symbol,
		Amount:          ParseAmount(raw),
		RawAmount:       raw,
	}
}

// ParseAmount parses a decimal string, treating malformed input as zero
func ParseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parsePageNumber(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
