package oracle

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name      string
		price     int64
		threshold int64
		op        domain.ComparisonOp
		want      bool
		wantErr   error
	}{
		{"gt true", 101, 100, domain.CompareGT, true, nil},
		{"gt false at equal", 100, 100, domain.CompareGT, false, nil},
		{"lt true", 99, 100, domain.CompareLT, true, nil},
		{"lt false at equal", 100, 100, domain.CompareLT, false, nil},
		{"eq true", 100, 100, domain.CompareEQ, true, nil},
		{"eq false", 101, 100, domain.CompareEQ, false, nil},
		{"unknown op", 1, 1, domain.ComparisonOp("ge"), false, domain.ErrInvalidComparison},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.price, tt.threshold, tt.op)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Compare() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Compare() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Compare(%d, %d, %s) = %v, want %v", tt.price, tt.threshold, tt.op, got, tt.want)
			}
		})
	}
}

func TestDetermineOutcome(t *testing.T) {
	outcomes := []string{"yes", "no"}

	got, err := DetermineOutcome(150, 100, domain.CompareGT, outcomes)
	if err != nil {
		t.Fatalf("DetermineOutcome() error: %v", err)
	}
	if got != "yes" {
		t.Errorf("true comparison = %q, want %q", got, "yes")
	}

	got, err = DetermineOutcome(50, 100, domain.CompareGT, outcomes)
	if err != nil {
		t.Fatalf("DetermineOutcome() error: %v", err)
	}
	if got != "no" {
		t.Errorf("false comparison = %q, want %q", got, "no")
	}
}

func TestDetermineOutcome_NAry(t *testing.T) {
	// With more than two outcomes the comparison still binds to the first
	// two labels only.
	outcomes := []string{"up", "down", "flat"}

	got, err := DetermineOutcome(99, 100, domain.CompareLT, outcomes)
	if err != nil {
		t.Fatalf("DetermineOutcome() error: %v", err)
	}
	if got != "up" {
		t.Errorf("got %q, want %q", got, "up")
	}
}

func TestDetermineOutcome_TooFewOutcomes(t *testing.T) {
	if _, err := DetermineOutcome(1, 1, domain.CompareEQ, []string{"only"}); !errors.Is(err, domain.ErrInvalidOutcomes) {
		t.Fatalf("error = %v, want ErrInvalidOutcomes", err)
	}
}

func TestDetermineOutcome_BadOperator(t *testing.T) {
	if _, err := DetermineOutcome(1, 1, domain.ComparisonOp("neq"), []string{"a", "b"}); !errors.Is(err, domain.ErrInvalidComparison) {
		t.Fatalf("error = %v, want ErrInvalidComparison", err)
	}
}

func TestValidatePrice(t *testing.T) {
	tests := []struct {
		name  string
		price int64
		ok    bool
	}{
		{"typical price", 65_000_00000000, true},
		{"minimum valid", 1, true},
		{"zero", 0, false},
		{"negative", -5, false},
		{"above sane bound", maxSanePrice + 1, false},
		{"at sane bound", maxSanePrice, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePrice(tt.price)
			if tt.ok && err != nil {
				t.Errorf("ValidatePrice(%d) = %v, want nil", tt.price, err)
			}
			if !tt.ok && !errors.Is(err, domain.ErrOraclePriceOutOfRange) {
				t.Errorf("ValidatePrice(%d) = %v, want ErrOraclePriceOutOfRange", tt.price, err)
			}
		})
	}
}

func TestNewFeed_ReservedProviders(t *testing.T) {
	for _, p := range []domain.OracleProvider{domain.ProviderPyth, domain.ProviderBand, domain.OracleProvider("tellor")} {
		if _, err := NewFeed(p, Config{RPCURL: "http://localhost:8545"}, domain.SystemClock{}); !errors.Is(err, domain.ErrOracleInvalidConfig) {
			t.Errorf("NewFeed(%s) error = %v, want ErrOracleInvalidConfig", p, err)
		}
	}
}

func TestDecodeInt256(t *testing.T) {
	pos := make([]byte, 32)
	pos[31] = 0x2a
	if got := decodeInt256(pos); got.Int64() != 42 {
		t.Errorf("positive word = %d, want 42", got.Int64())
	}

	neg := make([]byte, 32)
	for i := range neg {
		neg[i] = 0xff
	}
	if got := decodeInt256(neg); got.Int64() != -1 {
		t.Errorf("negative word = %d, want -1", got.Int64())
	}
}
