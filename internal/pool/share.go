// Package pool derives each user's share of the liquidity pool reserve from
// their LP token balance.
package pool

import "github.com/shopspring/decimal"

// ComputeShare returns the amount of the pool reserve owned by userLP out of
// totalSupply LP tokens. The product is taken before the quotient. A
// non-positive supply or user balance yields zero.
func ComputeShare(userLP, totalSupply, reserve decimal.Decimal) decimal.Decimal {
	if totalSupply.Sign() <= 0 || userLP.Sign() <= 0 {
		return decimal.Zero
	}
	return userLP.Mul(reserve).Div(totalSupply)
}

// Fraction returns userLP as a fraction of totalSupply, zero when the supply
// is not positive.
func Fraction(userLP, totalSupply decimal.Decimal) decimal.Decimal {
	if totalSupply.Sign() <= 0 || userLP.Sign() <= 0 {
		return decimal.Zero
	}
	return userLP.Div(totalSupply)
}
