package okx

import (
	"strings"

	"github.com/shopspring/decimal"
)

const unknownSymbol = "UNKNOWN"

// FindToken returns the balance for contract from balances, comparing
// addresses case-insensitively. A missing token yields a zero balance that
// carries the requested contract address.
func FindToken(balances []TokenBalance, contract string) TokenBalance {
	for _, b := range balances {
		if b.ContractAddress != "" && strings.EqualFold(b.ContractAddress, contract) {
			return b
		}
	}
	return TokenBalance{
		ContractAddress: contract,
		Symbol:          unknownSymbol,
		Amount:          decimal.Zero,
		RawAmount:       "0",
	}
}
