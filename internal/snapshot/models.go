package snapshot

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/matrixise/dog-tracker/internal/transfers"
)

// Snapshot is the report document written after every poll
type Snapshot struct {
	Success bool `json:"success"`
	Data    Data `json:"data"`
}

// Data holds the totals and per-user reports of one run
type Data struct {
	LastUpdate        time.Time        `json:"lastUpdate"`
	RunID             string           `json:"runId"`
	DurationMs        int64            `json:"durationMs"`
	TotalUsers        int              `json:"totalUsers"`
	TotalAddresses    int              `json:"totalAddresses"`
	DegradedUsers     int              `json:"degradedUsers"`
	TotalBalance      decimal.Decimal  `json:"totalBalance"`
	TotalPoolHoldings decimal.Decimal  `json:"totalPoolHoldings"`
	TotalHoldings     decimal.Decimal  `json:"totalHoldings"`
	Pool              *PoolStats       `json:"pool,omitempty"`
	Users             []UserReport     `json:"users"`
	Transfers         *transfers.Stats `json:"transfers,omitempty"`
}

// PoolStats describes the pool state used for every user of the run
type PoolStats struct {
	Address       string          `json:"address"`
	LPToken       string          `json:"lpToken"`
	LPTotalSupply decimal.Decimal `json:"lpTotalSupply"`
	LPSymbol      string          `json:"lpSymbol"`
	LPDecimals    int             `json:"lpDecimals"`
	PoolReserve   decimal.Decimal `json:"poolReserve"`
	Error         string          `json:"error,omitempty"`
}

// UserReport is the computed state of one user
type UserReport struct {
	Nickname            string           `json:"nickname"`
	Addresses           []string         `json:"addresses"`
	InitialBalanceTotal decimal.Decimal  `json:"initialBalanceTotal"`
	CurrentBalances     []AddressBalance `json:"currentBalances"`
	LPBalances          []AddressBalance `json:"lpBalances"`
	PoolHoldings        []PoolHolding    `json:"poolHoldings"`
	TotalBalance        decimal.Decimal  `json:"totalBalance"`
	TotalPoolHoldings   decimal.Decimal  `json:"totalPoolHoldings"`
	TotalHoldings       decimal.Decimal  `json:"totalHoldings"`
	Percentage          decimal.Decimal  `json:"percentage"`
	Degraded            bool             `json:"degraded"`
	Errors              []string         `json:"errors,omitempty"`
}

// AddressBalance is one token balance of one address
type AddressBalance struct {
	Address    string          `json:"address"`
	Symbol     string          `json:"symbol"`
	Balance    decimal.Decimal `json:"balance"`
	RawBalance string          `json:"rawBalance"`
	Error      string          `json:"error,omitempty"`
}

// PoolHolding is the share of the pool reserve backing one address' LP tokens
type PoolHolding struct {
	Address   string          `json:"address"`
	LPBalance decimal.Decimal `json:"lpBalance"`
	Share     decimal.Decimal `json:"share"`
	Holdings  decimal.Decimal `json:"holdings"`
	Error     string          `json:"error,omitempty"`
}
