// Package payout computes claimable winnings from integer stake amounts.
package payout

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Calculate returns the claimable amount for a winning voter. The fee is
// applied to the user's stake first, then the remainder is scaled by the
// pool ratio, with floor division at each step in that order:
//
//	payout = ((userStake * (100 - feePercent)) / 100) * totalPool / winningTotal
//
// Intermediate products run through big.Int so large pools cannot overflow.
// The result is clamped so a payout never exceeds the total pool.
func Calculate(userStake, winningTotal, totalPool int64, feePercent int64) (int64, error) {
	if winningTotal == 0 {
		return 0, domain.ErrNothingToClaim
	}
	if userStake < 0 || winningTotal < 0 || totalPool < 0 {
		return 0, fmt.Errorf("payout: negative input: %w", domain.ErrInvalidState)
	}
	if feePercent < 0 || feePercent > 100 {
		return 0, fmt.Errorf("payout: fee percent %d outside 0-100: %w", feePercent, domain.ErrInvalidState)
	}

	afterFee := new(big.Int).Mul(big.NewInt(userStake), big.NewInt(100-feePercent))
	afterFee.Quo(afterFee, big.NewInt(100))

	amount := new(big.Int).Mul(afterFee, big.NewInt(totalPool))
	amount.Quo(amount, big.NewInt(winningTotal))

	if !amount.IsInt64() {
		return 0, fmt.Errorf("payout: %w", domain.ErrArithmetic)
	}
	result := amount.Int64()
	if result > totalPool {
		result = totalPool
	}
	return result, nil
}

// Fee returns the admin fee carved out of the total pool.
func Fee(totalPool, feePercent int64) int64 {
	if totalPool <= 0 || feePercent <= 0 {
		return 0
	}
	return totalPool * feePercent / 100
}
