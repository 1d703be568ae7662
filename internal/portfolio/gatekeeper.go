package portfolio

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"forex-trading-engine/internal/broker"
	"forex-trading-engine/internal/strategy"
)

// Decision actions returned by the gatekeeper.
type Action string

const (
	Approve Action = "APPROVE"
	Defer   Action = "DEFER"
	Reject  Action = "REJECT"
)

// Decision is the gatekeeper's verdict on a candidate signal.
type Decision struct {
	Action     Action
	Confidence float64
	Rationale  string
	// ClosedTickets lists positions the gatekeeper closed while deciding.
	ClosedTickets []int64
}

// Snapshot is a transient portfolio-wide view, recomputed per decision.
type Snapshot struct {
	OpenPositions int
	Winners       int
	Losers        int
	TotalProfit   float64
	// Exposure is total open volume per symbol.
	Exposure      map[string]float64
	TotalExposure float64
}

// Config holds the gatekeeper decision thresholds.
type Config struct {
	CloseThreshold   float64 // close a position at or above this confidence
	ApproveThreshold float64 // approve a candidate at or above this
	DeferThreshold   float64 // defer between this and ApproveThreshold
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{CloseThreshold: 0.65, ApproveThreshold: 0.65, DeferThreshold: 0.45}
}

// ScoringRule adjusts a candidate's confidence multiplicatively. Apply
// returns the multiplier and a reason; a multiplier of 1 with an empty reason
// means the rule did not fire. Rules are evaluated in order and folded.
type ScoringRule struct {
	Name  string
	Apply func(sig *strategy.Signal, snap *Snapshot) (float64, string)
}

// Gatekeeper scores candidate signals and scans open positions using
// portfolio-wide state.
type Gatekeeper struct {
	broker broker.Broker
	config Config
	rules  []ScoringRule
	logger zerolog.Logger
}

// New creates a gatekeeper with the default rule chain.
func New(b broker.Broker, config Config, logger zerolog.Logger) *Gatekeeper {
	return &Gatekeeper{
		broker: b,
		config: config,
		rules:  DefaultRules(),
		logger: logger.With().Str("component", "gatekeeper").Logger(),
	}
}

// SetRules replaces the scoring rule chain. Intended for tests and for
// feeding external confidence inputs as extra rules.
func (g *Gatekeeper) SetRules(rules []ScoringRule) {
	g.rules = rules
}

// AppendRule adds a rule to the end of the chain.
func (g *Gatekeeper) AppendRule(rule ScoringRule) {
	g.rules = append(g.rules, rule)
}

// TakeSnapshot computes the current portfolio state from the broker's open
// position listing.
func (g *Gatekeeper) TakeSnapshot(ctx context.Context) (*Snapshot, error) {
	positions, err := g.broker.ListOpenPositions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	return BuildSnapshot(positions), nil
}

// BuildSnapshot aggregates a position listing into a Snapshot.
func BuildSnapshot(positions []broker.Position) *Snapshot {
	snap := &Snapshot{Exposure: make(map[string]float64)}
	for _, pos := range positions {
		snap.OpenPositions++
		snap.TotalProfit += pos.Profit
		if pos.Profit >= 0 {
			snap.Winners++
		} else {
			snap.Losers++
		}
		snap.Exposure[pos.Symbol] += pos.Volume
		snap.TotalExposure += pos.Volume
	}
	return snap
}

// ShouldClose returns a close recommendation with tiered confidence from the
// loss magnitude, amplified when the whole portfolio is in drawdown. A close
// fires at confidence >= CloseThreshold.
func (g *Gatekeeper) ShouldClose(pos *broker.Position, snap *Snapshot) (bool, float64, string) {
	loss := -pos.Profit
	var confidence float64
	switch {
	case loss >= 50:
		confidence = 0.95
	case loss >= 30:
		confidence = 0.80
	case loss >= 15:
		confidence = 0.65
	case loss >= 5:
		confidence = 0.45
	default:
		return false, 0, "position within tolerance"
	}

	reason := fmt.Sprintf("loss %.2f on ticket %d", loss, pos.Ticket)
	if snap.TotalProfit < 0 {
		confidence *= 1.15
		if confidence > 1 {
			confidence = 1
		}
		reason += fmt.Sprintf(", portfolio drawdown %.2f", snap.TotalProfit)
	}
	return confidence >= g.config.CloseThreshold, confidence, reason
}

// ShouldOpen starts from the signal's own confidence and folds the rule chain
// over it, returning the decision tier plus the accumulated rationale.
func (g *Gatekeeper) ShouldOpen(sig *strategy.Signal, snap *Snapshot) (Action, float64, string) {
	confidence := sig.Confidence
	reasons := make([]string, 0, len(g.rules)+1)
	reasons = append(reasons, fmt.Sprintf("signal confidence %.2f", sig.Confidence))

	for _, rule := range g.rules {
		mult, reason := rule.Apply(sig, snap)
		if reason == "" {
			continue
		}
		confidence *= mult
		reasons = append(reasons, fmt.Sprintf("%s: x%.2f (%s)", rule.Name, mult, reason))
	}
	if confidence > 1 {
		confidence = 1
	}

	var action Action
	switch {
	case confidence >= g.config.ApproveThreshold:
		action = Approve
	case confidence >= g.config.DeferThreshold:
		action = Defer
	default:
		action = Reject
	}
	return action, confidence, strings.Join(reasons, "; ")
}

// Decide scans all open positions, closes any the portfolio rules flag, then
// scores the candidate signal. This is the composition the orchestrator calls
// before letting an instrument trader execute.
func (g *Gatekeeper) Decide(ctx context.Context, sig *strategy.Signal) (*Decision, error) {
	closed, err := g.ScanAndClose(ctx)
	if err != nil {
		return nil, err
	}

	snap, err := g.TakeSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	action, confidence, rationale := g.ShouldOpen(sig, snap)
	g.logger.Info().
		Str("symbol", sig.Symbol).
		Str("action", string(action)).
		Float64("confidence", confidence).
		Msg("gatekeeper decision")

	return &Decision{
		Action:        action,
		Confidence:    confidence,
		Rationale:     rationale,
		ClosedTickets: closed,
	}, nil
}

// ScanAndClose evaluates every open live position (managed or not) and closes
// those flagged by ShouldClose. Broker failures on a single position are
// logged and do not stop the scan.
func (g *Gatekeeper) ScanAndClose(ctx context.Context) ([]int64, error) {
	positions, err := g.broker.ListOpenPositions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	snap := BuildSnapshot(positions)

	var closed []int64
	for i := range positions {
		pos := &positions[i]
		shouldClose, confidence, reason := g.ShouldClose(pos, snap)
		if !shouldClose {
			continue
		}
		res, err := g.broker.ClosePosition(ctx, pos.Ticket, 0)
		if err != nil {
			g.logger.Warn().Err(err).Int64("ticket", pos.Ticket).Msg("gatekeeper close failed")
			continue
		}
		if !res.Success {
			g.logger.Warn().Str("error", res.ErrorMsg).Int64("ticket", pos.Ticket).Msg("gatekeeper close rejected")
			continue
		}
		g.logger.Info().
			Int64("ticket", pos.Ticket).
			Float64("confidence", confidence).
			Str("reason", reason).
			Msg("position closed by gatekeeper")
		closed = append(closed, pos.Ticket)
	}
	return closed, nil
}
