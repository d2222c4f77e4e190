// Package tracker runs one poll: it fetches every user's balances, derives
// pool holdings, aggregates totals and writes the snapshot.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matrixise/dog-tracker/internal/config"
	"github.com/matrixise/dog-tracker/internal/metrics"
	"github.com/matrixise/dog-tracker/internal/okx"
	"github.com/matrixise/dog-tracker/internal/pool"
	"github.com/matrixise/dog-tracker/internal/snapshot"
	"github.com/matrixise/dog-tracker/internal/transfers"
)

var hundred = decimal.NewFromInt(100)

// Client is the upstream API used by a poll
type Client interface {
	pool.Source
	transfers.Fetcher
}

// Options configures a Tracker
type Options struct {
	Client           Client
	PoolSource       pool.Source // defaults to Client
	Store            *snapshot.Store
	LoadUsers        func() ([]config.User, error) // called at the start of every run
	TokenContract    string
	PoolAddress      string // empty disables pool holdings
	LPToken          string
	IncludeTransfers bool
	AddressDelay     time.Duration
	UserDelay        time.Duration
	Metrics          *metrics.Metrics
	Sleep            func(ctx context.Context, d time.Duration) error
	Now              func() time.Time
}

// Tracker polls balances for the configured users
type Tracker struct {
	opts Options
}

// New creates a tracker
func New(opts Options) *Tracker {
	if opts.Sleep == nil {
		opts.Sleep = okx.Pause
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PoolSource == nil && opts.Client != nil {
		opts.PoolSource = opts.Client
	}
	return &Tracker{opts: opts}
}

// Run performs a full poll and writes the snapshot. Degraded addresses do
// not fail the run; only a config, cancellation or write error does.
func (t *Tracker) Run(ctx context.Context) (err error) {
	start := t.opts.Now()
	runID := uuid.NewString()
	log := slog.With("run_id", runID)

	var data *snapshot.Data
	defer func() {
		var degraded int
		var totalBalance, totalPool float64
		if data != nil {
			degraded = data.DegradedUsers
			totalBalance = data.TotalBalance.InexactFloat64()
			totalPool = data.TotalPoolHoldings.InexactFloat64()
		}
		t.opts.Metrics.ObservePoll(time.Since(start), degraded, totalBalance, totalPool, err)
	}()

	users, err := t.opts.LoadUsers()
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	log.Info("Starting poll", "users", len(users), "addresses", config.CountAddresses(users))

	data, err = t.Collect(ctx, users)
	if err != nil {
		return err
	}
	data.RunID = runID

	if t.opts.IncludeTransfers && t.opts.PoolAddress != "" {
		stats, err := transfers.Collect(ctx, t.opts.Client, t.opts.PoolAddress, users)
		if err != nil {
			return err
		}
		data.Transfers = stats.Simple()
	}

	data.LastUpdate = t.opts.Now().UTC()
	data.DurationMs = data.LastUpdate.Sub(start).Milliseconds()

	if err := t.opts.Store.Write(&snapshot.Snapshot{Success: true, Data: *data}); err != nil {
		return err
	}

	log.Info("Poll completed",
		"users", data.TotalUsers,
		"addresses", data.TotalAddresses,
		"degraded_users", data.DegradedUsers,
		"total_balance", data.TotalBalance.String(),
		"total_pool_holdings", data.TotalPoolHoldings.String(),
		"duration", time.Duration(data.DurationMs)*time.Millisecond,
	)
	return nil
}

// Collect computes the report for users without persisting it. Pool state
// is resolved once and shared by every user.
func (t *Tracker) Collect(ctx context.Context, users []config.User) (*snapshot.Data, error) {
	data := &snapshot.Data{
		TotalUsers:        len(users),
		TotalAddresses:    config.CountAddresses(users),
		TotalBalance:      decimal.Zero,
		TotalPoolHoldings: decimal.Zero,
		Users:             make([]snapshot.UserReport, 0, len(users)),
	}

	var info *pool.Info
	if t.opts.PoolAddress != "" {
		resolved := pool.Resolve(ctx, t.opts.PoolSource, t.opts.PoolAddress, t.opts.LPToken, t.opts.TokenContract)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info = &resolved
		data.Pool = poolStats(resolved)
	}

	for i, u := range users {
		report, err := t.collectUser(ctx, u, info)
		if err != nil {
			return nil, err
		}

		data.Users = append(data.Users, report)
		data.TotalBalance = data.TotalBalance.Add(report.TotalBalance)
		data.TotalPoolHoldings = data.TotalPoolHoldings.Add(report.TotalPoolHoldings)
		if report.Degraded {
			data.DegradedUsers++
		}

		if i < len(users)-1 {
			if err := t.opts.Sleep(ctx, t.opts.UserDelay); err != nil {
				return nil, err
			}
		}
	}

	data.TotalHoldings = data.TotalBalance.Add(data.TotalPoolHoldings)
	return data, nil
}

func (t *Tracker) collectUser(ctx context.Context, u config.User, info *pool.Info) (snapshot.UserReport, error) {
	report := snapshot.UserReport{
		Nickname:            u.Nickname,
		Addresses:           u.Addresses,
		InitialBalanceTotal: u.InitialBalanceTotal,
		CurrentBalances:     make([]snapshot.AddressBalance, 0, len(u.Addresses)),
		LPBalances:          []snapshot.AddressBalance{},
		PoolHoldings:        []snapshot.PoolHolding{},
		TotalBalance:        decimal.Zero,
		TotalPoolHoldings:   decimal.Zero,
	}
	if info != nil && info.Err != nil {
		report.Errors = append(report.Errors, "pool unavailable: "+info.Err.Error())
	}

	for i, addr := range u.Addresses {
		balances, err := t.opts.Client.FetchAddressBalances(ctx, addr)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			slog.Error("Address degraded", "user", u.Nickname, "address", addr, "error", err)
			report.Degraded = true
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", addr, err))
			t.appendDegraded(&report, addr, err, info)
		} else {
			t.appendBalances(&report, addr, balances, info)
		}

		if i < len(u.Addresses)-1 {
			if err := t.opts.Sleep(ctx, t.opts.AddressDelay); err != nil {
				return report, err
			}
		}
	}

	for _, b := range report.CurrentBalances {
		report.TotalBalance = report.TotalBalance.Add(b.Balance)
	}
	for _, h := range report.PoolHoldings {
		report.TotalPoolHoldings = report.TotalPoolHoldings.Add(h.Holdings)
	}
	report.TotalHoldings = report.TotalBalance.Add(report.TotalPoolHoldings)
	report.Percentage = Percentage(report.TotalHoldings, u.InitialBalanceTotal)

	slog.Info("User processed",
		"user", u.Nickname,
		"addresses", len(u.Addresses),
		"total_balance", report.TotalBalance.String(),
		"total_pool_holdings", report.TotalPoolHoldings.String(),
		"percentage", report.Percentage.StringFixed(2),
		"degraded", report.Degraded,
	)
	return report, nil
}

func (t *Tracker) appendBalances(report *snapshot.UserReport, addr string, balances []okx.TokenBalance, info *pool.Info) {
	token := okx.FindToken(balances, t.opts.TokenContract)
	report.CurrentBalances = append(report.CurrentBalances, snapshot.AddressBalance{
		Address:    addr,
		Symbol:     token.Symbol,
		Balance:    token.Amount,
		RawBalance: token.RawAmount,
	})

	if info == nil {
		return
	}

	lp := okx.FindToken(balances, t.opts.LPToken)
	report.LPBalances = append(report.LPBalances, snapshot.AddressBalance{
		Address:    addr,
		Symbol:     lp.Symbol,
		Balance:    lp.Amount,
		RawBalance: lp.RawAmount,
	})

	holding := snapshot.PoolHolding{
		Address:   addr,
		LPBalance: lp.Amount,
		Share:     pool.Fraction(lp.Amount, info.LPTotalSupply),
		Holdings:  info.Holdings(lp.Amount),
	}
	if info.Err != nil {
		holding.Share = decimal.Zero
		holding.Error = "pool unavailable"
	}
	report.PoolHoldings = append(report.PoolHoldings, holding)
}

func (t *Tracker) appendDegraded(report *snapshot.UserReport, addr string, err error, info *pool.Info) {
	msg := err.Error()
	report.CurrentBalances = append(report.CurrentBalances, snapshot.AddressBalance{
		Address:    addr,
		Symbol:     "UNKNOWN",
		Balance:    decimal.Zero,
		RawBalance: "0",
		Error:      msg,
	})

	if info == nil {
		return
	}

	report.LPBalances = append(report.LPBalances, snapshot.AddressBalance{
		Address:    addr,
		Symbol:     info.LPSymbol,
		Balance:    decimal.Zero,
		RawBalance: "0",
		Error:      msg,
	})
	report.PoolHoldings = append(report.PoolHoldings, snapshot.PoolHolding{
		Address:   addr,
		LPBalance: decimal.Zero,
		Share:     decimal.Zero,
		Holdings:  decimal.Zero,
		Error:     msg,
	})
}

// Percentage returns the change of current against baseline in percent,
// zero when the baseline is not positive
func Percentage(current, baseline decimal.Decimal) decimal.Decimal {
	if baseline.Sign() <= 0 {
		return decimal.Zero
	}
	return current.Sub(baseline).Mul(hundred).Div(baseline)
}

func poolStats(info pool.Info) *snapshot.PoolStats {
	stats := &snapshot.PoolStats{
		Address:       info.Address,
		LPToken:       info.LPToken,
		LPTotalSupply: info.LPTotalSupply,
		LPSymbol:      info.LPSymbol,
		LPDecimals:    info.LPDecimals,
		PoolReserve:   info.Reserve,
	}
	if info.Err != nil {
		stats.Error = info.Err.Error()
	}
	return stats
}

