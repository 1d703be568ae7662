package portfolio

import (
	"fmt"

	"forex-trading-engine/internal/strategy"
)

// DefaultRules returns the standard scoring chain, in evaluation order:
// portfolio P&L sign, losing-position count, same-symbol concentration and
// total exposure tier. Each rule is independently testable.
func DefaultRules() []ScoringRule {
	return []ScoringRule{
		PnLSignRule(),
		LosingPositionsRule(),
		ConcentrationRule(),
		ExposureTierRule(),
	}
}

// PnLSignRule dampens candidates while the portfolio is losing money and
// mildly boosts them while it is winning.
func PnLSignRule() ScoringRule {
	return ScoringRule{
		Name: "pnl_sign",
		Apply: func(sig *strategy.Signal, snap *Snapshot) (float64, string) {
			switch {
			case snap.TotalProfit < 0:
				return 0.80, fmt.Sprintf("portfolio P&L %.2f", snap.TotalProfit)
			case snap.TotalProfit > 0:
				return 1.10, fmt.Sprintf("portfolio P&L %.2f", snap.TotalProfit)
			default:
				return 1, ""
			}
		},
	}
}

// LosingPositionsRule cuts confidence as the count of losing positions grows.
func LosingPositionsRule() ScoringRule {
	return ScoringRule{
		Name: "losing_positions",
		Apply: func(sig *strategy.Signal, snap *Snapshot) (float64, string) {
			switch {
			case snap.Losers >= 3:
				return 0.70, fmt.Sprintf("%d losing positions", snap.Losers)
			case snap.Losers >= 1:
				return 0.90, fmt.Sprintf("%d losing positions", snap.Losers)
			default:
				return 1, ""
			}
		},
	}
}

// ConcentrationRule penalizes adding to a symbol that already carries
// exposure.
func ConcentrationRule() ScoringRule {
	return ScoringRule{
		Name: "concentration",
		Apply: func(sig *strategy.Signal, snap *Snapshot) (float64, string) {
			exposure := snap.Exposure[sig.Symbol]
			switch {
			case exposure >= 0.5:
				return 0.70, fmt.Sprintf("%.2f lots already on %s", exposure, sig.Symbol)
			case exposure > 0:
				return 0.85, fmt.Sprintf("%.2f lots already on %s", exposure, sig.Symbol)
			default:
				return 1, ""
			}
		},
	}
}

// ExposureTierRule penalizes candidates as total open volume climbs.
func ExposureTierRule() ScoringRule {
	return ScoringRule{
		Name: "exposure_tier",
		Apply: func(sig *strategy.Signal, snap *Snapshot) (float64, string) {
			switch {
			case snap.TotalExposure >= 2.0:
				return 0.75, fmt.Sprintf("total exposure %.2f lots", snap.TotalExposure)
			case snap.TotalExposure >= 1.0:
				return 0.90, fmt.Sprintf("total exposure %.2f lots", snap.TotalExposure)
			default:
				return 1, ""
			}
		},
	}
}

// ExternalConfidenceRule folds an externally supplied confidence input
// (sentiment feeds, model scores) into the chain as a plain multiplier.
func ExternalConfidenceRule(name string, multiplier func(sig *strategy.Signal) float64) ScoringRule {
	return ScoringRule{
		Name: name,
		Apply: func(sig *strategy.Signal, snap *Snapshot) (float64, string) {
			m := multiplier(sig)
			if m == 1 || m <= 0 {
				return 1, ""
			}
			return m, "external input"
		},
	}
}
