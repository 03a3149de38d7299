package oracle

import (
	"fmt"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Compare applies op between price and threshold.
func Compare(price, threshold int64, op domain.ComparisonOp) (bool, error) {
	switch op {
	case domain.CompareGT:
		return price > threshold, nil
	case domain.CompareLT:
		return price < threshold, nil
	case domain.CompareEQ:
		return price == threshold, nil
	default:
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidComparison, op)
	}
}

// DetermineOutcome maps the boolean comparison to an outcome label. A true
// comparison selects the first declared outcome, false the second. Threshold
// comparisons are inherently binary, so for markets declaring more than two
// outcomes the oracle still only ever selects between the first two labels;
// the remaining labels can win solely through community consensus.
func DetermineOutcome(price, threshold int64, op domain.ComparisonOp, outcomes []string) (string, error) {
	if len(outcomes) < 2 {
		return "", fmt.Errorf("%w: need at least 2 outcomes", domain.ErrInvalidOutcomes)
	}
	ok, err := Compare(price, threshold, op)
	if err != nil {
		return "", err
	}
	if ok {
		return outcomes[0], nil
	}
	return outcomes[1], nil
}
