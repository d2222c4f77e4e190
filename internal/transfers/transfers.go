// Package transfers aggregates addLiquidity deposits into the pool per
// tracked user.
package transfers

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/shopspring/decimal"

	"github.com/matrixise/dog-tracker/internal/config"
	"github.com/matrixise/dog-tracker/internal/okx"
)

// AddLiquidityMethodID is the selector of the router addLiquidity call
const AddLiquidityMethodID = "0xe8e33700"

// Fetcher lists the token transfers of an address
type Fetcher interface {
	FetchTransactions(ctx context.Context, address string) ([]okx.Transaction, error)
}

// Summary totals the deposits of every matched user
type Summary struct {
	TotalTransferred  decimal.Decimal `json:"totalTransferred"`
	TotalTransactions int             `json:"totalTransactions"`
	UsersInvolved     int             `json:"usersInvolved"`
	PoolTotalRecords  int             `json:"poolTotalRecords"`
	PoolAddress       string          `json:"poolAddress"`
}

// UserStats are the deposits attributed to one user
type UserStats struct {
	Nickname         string            `json:"nickname"`
	TotalAmount      decimal.Decimal   `json:"totalAmount"`
	TransactionCount int               `json:"transactionCount"`
	Transactions     []okx.Transaction `json:"transactions,omitempty"`
}

// Stats is the transfer statistics document
type Stats struct {
	Summary       Summary           `json:"summary"`
	UserDetails   []UserStats       `json:"userDetails"`
	PoolTransfers []okx.Transaction `json:"poolTransfers,omitempty"`
	QueryTime     time.Time         `json:"queryTime"`
	Partial       bool              `json:"partial,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// Collect lists the pool transactions and aggregates them per user. A page
// failure keeps what was fetched before it and marks the result partial.
func Collect(ctx context.Context, f Fetcher, poolAddress string, users []config.User) (*Stats, error) {
	txs, err := f.FetchTransactions(ctx, poolAddress)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("transfer collection canceled: %w", ctx.Err())
		}
		slog.Warn("Pool transaction list incomplete", "pool", poolAddress, "collected", len(txs), "error", err)
	}

	stats := Aggregate(poolAddress, txs, users, time.Now().UTC())
	if err != nil {
		stats.Partial = true
		stats.Error = err.Error()
	}

	slog.Info("Pool transfers aggregated",
		"pool", poolAddress,
		"records", stats.Summary.PoolTotalRecords,
		"users", stats.Summary.UsersInvolved,
		"total", stats.Summary.TotalTransferred.String(),
	)
	return stats, nil
}

// Aggregate keeps addLiquidity transactions, attributes them to users by
// sender address and sorts users by deposited amount, largest first
func Aggregate(poolAddress string, txs []okx.Transaction, users []config.User, now time.Time) *Stats {
	owner := make(map[string]string)
	for _, u := range users {
		for _, addr := range u.Addresses {
			owner[strings.ToLower(addr)] = u.Nickname
		}
	}

	deposits := make([]okx.Transaction, 0, len(txs))
	for _, tx := range txs {
		if strings.EqualFold(tx.MethodID, AddLiquidityMethodID) {
			deposits = append(deposits, tx)
		}
	}

	byUser := make(map[string]*UserStats)
	for _, tx := range deposits {
		nickname, ok := owner[strings.ToLower(tx.From)]
		if !ok {
			continue
		}

		raw := tx.Amount
		if raw == "" {
			raw = tx.Value
		}
		if raw == "" {
			slog.Debug("Transaction without amount", "tx", tx.TxID)
			continue
		}

		s, ok := byUser[nickname]
		if !ok {
			s = &UserStats{Nickname: nickname, TotalAmount: decimal.Zero}
			byUser[nickname] = s
		}
		s.TotalAmount = s.TotalAmount.Add(okx.ParseAmount(raw))
		s.TransactionCount++
		s.Transactions = append(s.Transactions, tx)
	}

	details := make([]UserStats, 0, len(byUser))
	for _, s := range byUser {
		details = append(details, *s)
	}
	slices.SortFunc(details, func(a, b UserStats) int {
		if c := b.TotalAmount.Cmp(a.TotalAmount); c != 0 {
			return c
		}
		return cmp.Compare(a.Nickname, b.Nickname)
	})

	summary := Summary{
		TotalTransferred: decimal.Zero,
		UsersInvolved:    len(details),
		PoolTotalRecords: len(deposits),
		PoolAddress:      poolAddress,
	}
	for _, s := range details {
		summary.TotalTransferred = summary.TotalTransferred.Add(s.TotalAmount)
		summary.TotalTransactions += s.TransactionCount
	}

	return &Stats{
		Summary:       summary,
		UserDetails:   details,
		PoolTransfers: deposits,
		QueryTime:     now,
	}
}

// Simple returns a copy without individual transactions
func (s *Stats) Simple() *Stats {
	out := *s
	out.PoolTransfers = nil
	out.UserDetails = make([]UserStats, len(s.UserDetails))
	for i, u := range s.UserDetails {
		u.Transactions = nil
		out.UserDetails[i] = u
	}
	return &out
}

// WriteFile atomically replaces path with the indented stats document
func WriteFile(path string, s *Stats) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transfer stats: %w", err)
	}
	if err := atomic.WriteFile(path, strings.NewReader(string(data)+"\n")); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
