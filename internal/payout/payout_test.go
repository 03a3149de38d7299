package payout

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name         string
		userStake    int64
		winningTotal int64
		totalPool    int64
		feePercent   int64
		want         int64
		wantErr      error
	}{
		{
			name:         "reference case",
			userStake:    10_000_000,
			winningTotal: 50_000_000,
			totalPool:    100_000_000,
			feePercent:   2,
			want:         19_600_000,
		},
		{
			name:         "sole winner takes the pool minus fee",
			userStake:    1_000,
			winningTotal: 1_000,
			totalPool:    5_000,
			feePercent:   0,
			want:         5_000,
		},
		{
			name:         "floor division applies per step",
			userStake:    99,
			winningTotal: 100,
			totalPool:    100,
			feePercent:   3,
			// 99*97/100 = 96 (floored), 96*100/100 = 96
			want: 96,
		},
		{
			name:         "zero winning pool",
			userStake:    100,
			winningTotal: 0,
			totalPool:    100,
			feePercent:   2,
			wantErr:      domain.ErrNothingToClaim,
		},
		{
			name:         "zero stake",
			userStake:    0,
			winningTotal: 100,
			totalPool:    100,
			feePercent:   2,
			want:         0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(tt.userStake, tt.winningTotal, tt.totalPool, tt.feePercent)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Calculate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Calculate() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Calculate() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCalculate_MonotonicInStake(t *testing.T) {
	const (
		winningTotal = 50_000_000
		totalPool    = 100_000_000
		feePercent   = 2
	)

	var prev int64 = -1
	for stake := int64(0); stake <= winningTotal; stake += 1_000_000 {
		got, err := Calculate(stake, winningTotal, totalPool, feePercent)
		if err != nil {
			t.Fatalf("Calculate(%d) error: %v", stake, err)
		}
		if got < prev {
			t.Fatalf("payout decreased: stake %d paid %d after %d", stake, got, prev)
		}
		prev = got
	}
}

func TestCalculate_NeverExceedsPool(t *testing.T) {
	// Stake above the winning pool (corrupted input) still clamps.
	got, err := Calculate(2_000, 1_000, 5_000, 0)
	if err != nil {
		t.Fatalf("Calculate() error: %v", err)
	}
	if got > 5_000 {
		t.Errorf("payout %d exceeds total pool", got)
	}
}

func TestCalculate_LargePoolsNoOverflow(t *testing.T) {
	// userStake * totalPool would overflow int64 without big.Int.
	got, err := Calculate(4_000_000_000_000_000_000, 4_000_000_000_000_000_000, 4_000_000_000_000_000_000, 0)
	if err != nil {
		t.Fatalf("Calculate() error: %v", err)
	}
	if got != 4_000_000_000_000_000_000 {
		t.Errorf("Calculate() = %d, want full pool", got)
	}
}

func TestCalculate_BadInputs(t *testing.T) {
	if _, err := Calculate(-1, 100, 100, 2); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("negative stake error = %v, want ErrInvalidState", err)
	}
	if _, err := Calculate(100, 100, 100, 101); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("fee above 100 error = %v, want ErrInvalidState", err)
	}
}

func TestFee(t *testing.T) {
	if got := Fee(100_000_000, 2); got != 2_000_000 {
		t.Errorf("Fee() = %d, want 2000000", got)
	}
	if got := Fee(0, 2); got != 0 {
		t.Errorf("Fee() on empty pool = %d, want 0", got)
	}
}
