package okx

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/sethvargo/go-retry"
)

const transactionListPath = "/api/v5/xlayer/address/transaction-list"

// Transaction is one ERC-20 transfer from the transaction list
type Transaction struct {
	TxID                 string `json:"txId"`
	MethodID             string `json:"methodId"`
	From                 string `json:"from"`
	To                   string `json:"to"`
	Amount               string `json:"amount"`
	Value                string `json:"value,omitempty"`
	Symbol               string `json:"transactionSymbol"`
	TokenContractAddress string `json:"tokenContractAddress"`
	TransactionTime      string `json:"transactionTime"`
	State                string `json:"state"`
}

type transactionPage struct {
	Page             string        `json:"page"`
	TotalPage        string        `json:"totalPage"`
	TransactionLists []Transaction `json:"transactionLists"`
}

// FetchTransactions walks the token transfer list of address. Each page is
// retried with exponential delay; when a page exhausts its attempts the
// transactions collected so far are returned with an error wrapping
// ErrFetchFailed.
func (c *Client) FetchTransactions(ctx context.Context, address string) ([]Transaction, error) {
	var all []Transaction

	for page := 1; ; {
		var data []transactionPage
		attempt := 0

		backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.retryDelay))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			attempt++
			query := url.Values{}
			query.Set("chainShortName", c.chain)
			query.Set("address", address)
			query.Set("protocolType", "token_20")
			query.Set("limit", strconv.Itoa(c.pageSize))
			query.Set("page", strconv.Itoa(page))

			data = nil
			if err := c.get(ctx, "transaction-list", transactionListPath, query, &data); err != nil {
				slog.Warn("Transaction page fetch failed",
					"address", address, "page", page, "attempt", attempt, "error", err)
				c.metrics.ObserveRetry("Transaction page fetch")
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			return all, fmt.Errorf("%w: transaction page %d after %d attempts: %w", ErrFetchFailed, page, attempt, err)
		}

		if len(data) == 0 || len(data[0].TransactionLists) == 0 {
			return all, nil
		}

		txs := data[0].TransactionLists
		all = append(all, txs...)
		slog.Debug("Transaction page retrieved", "address", address, "page", page, "transactions", len(txs))

		if len(txs) < c.pageSize {
			return all, nil
		}
		if page >= parsePageNumber(data[0].TotalPage, 1) {
			return all, nil
		}
		page++

		if err := Pause(ctx, c.pageDelay); err != nil {
			return all, err
		}
	}
}
