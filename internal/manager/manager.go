package manager

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-engine/internal/broker"
)

// RuleConfig holds the protective-level rules applied to live positions. All
// distances are in pips; percentages are 0-100.
type RuleConfig struct {
	BreakevenEnabled    bool
	BreakevenTriggerPips float64
	BreakevenOffsetPips  float64

	TrailingEnabled        bool
	TrailingActivationPips float64
	TrailingDistancePips   float64

	PartialCloseEnabled     bool
	PartialCloseTriggerPips float64
	PartialClosePercent     float64

	TPExtensionEnabled        bool
	TPExtensionTriggerPercent float64
	TPExtensionPips           float64
}

// ManagementState is the per-ticket record the manager keeps while a position
// remains open. HighestProfitPips is monotonically non-decreasing.
type ManagementState struct {
	Ticket            int64     `json:"ticket"`
	Symbol            string    `json:"symbol"`
	RegisteredAt      time.Time `json:"registered_at"`
	BreakevenApplied  bool      `json:"breakeven_applied"`
	PartialCloseDone  bool      `json:"partial_close_done"`
	TrailingActive    bool      `json:"trailing_active"`
	HighestProfitPips float64   `json:"highest_profit_pips"`
}

// StateSink receives management state snapshots after each pass. Implemented
// by the Redis state cache; a nil sink disables publishing.
type StateSink interface {
	SaveManagementState(ctx context.Context, state *ManagementState) error
	DeleteManagementState(ctx context.Context, ticket int64) error
}

// Manager applies automated protective-level rules to every open live
// position: breakeven, trailing stop, partial close and take-profit
// extension, in that fixed order. State is keyed by broker ticket and purged
// when the ticket disappears from the broker's listing.
type Manager struct {
	broker broker.Broker
	config RuleConfig
	sink   StateSink
	logger zerolog.Logger
	states map[int64]*ManagementState
}

// New creates a position manager. sink may be nil.
func New(b broker.Broker, config RuleConfig, sink StateSink, logger zerolog.Logger) *Manager {
	return &Manager{
		broker: b,
		config: config,
		sink:   sink,
		logger: logger.With().Str("component", "manager").Logger(),
		states: make(map[int64]*ManagementState),
	}
}

// State returns a copy of the management state for ticket, if tracked.
func (m *Manager) State(ticket int64) (ManagementState, bool) {
	s, ok := m.states[ticket]
	if !ok {
		return ManagementState{}, false
	}
	return *s, true
}

// TrackedTickets returns the tickets currently under management.
func (m *Manager) TrackedTickets() []int64 {
	out := make([]int64, 0, len(m.states))
	for t := range m.states {
		out = append(out, t)
	}
	return out
}

// ProcessAll runs one management pass over every open live position. Broker
// failures on individual positions are logged and do not stop the pass.
func (m *Manager) ProcessAll(ctx context.Context) error {
	positions, err := m.broker.ListOpenPositions(ctx, "")
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}

	seen := make(map[int64]bool, len(positions))
	for i := range positions {
		pos := &positions[i]
		seen[pos.Ticket] = true
		if err := m.processPosition(ctx, pos); err != nil {
			m.logger.Warn().Err(err).Int64("ticket", pos.Ticket).Str("symbol", pos.Symbol).Msg("position pass failed")
		}
	}

	// Purge state for tickets no longer open at the broker.
	for ticket := range m.states {
		if !seen[ticket] {
			delete(m.states, ticket)
			if m.sink != nil {
				if err := m.sink.DeleteManagementState(ctx, ticket); err != nil {
					m.logger.Debug().Err(err).Int64("ticket", ticket).Msg("state sink delete failed")
				}
			}
			m.logger.Info().Int64("ticket", ticket).Msg("ticket closed, state purged")
		}
	}
	return nil
}

func (m *Manager) processPosition(ctx context.Context, pos *broker.Position) error {
	constraints, err := m.broker.GetSymbolConstraints(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("constraints for %s: %w", pos.Symbol, err)
	}
	pip := constraints.PipSize
	if pip <= 0 {
		pip = broker.PipSizeFromSymbol(pos.Symbol)
	}

	state, ok := m.states[pos.Ticket]
	if !ok {
		state = &ManagementState{
			Ticket:       pos.Ticket,
			Symbol:       pos.Symbol,
			RegisteredAt: time.Now(),
		}
		m.states[pos.Ticket] = state
		m.logger.Info().Int64("ticket", pos.Ticket).Str("symbol", pos.Symbol).Msg("position registered")
	}

	profitPips := (pos.CurrentPrice - pos.OpenPrice) / pip * pos.Side.Sign()
	if profitPips > state.HighestProfitPips {
		state.HighestProfitPips = profitPips
	}

	m.applyBreakeven(ctx, pos, state, pip, profitPips)
	m.applyTrailing(ctx, pos, state, pip, profitPips)
	m.applyPartialClose(ctx, pos, state, constraints, profitPips)
	m.applyTPExtension(ctx, pos, pip)

	if m.sink != nil {
		if err := m.sink.SaveManagementState(ctx, state); err != nil {
			m.logger.Debug().Err(err).Int64("ticket", pos.Ticket).Msg("state sink save failed")
		}
	}
	return nil
}

// applyBreakeven moves the stop to entry plus a favorable offset once profit
// reaches the trigger. Fires at most once per ticket and never moves the stop
// unfavorably.
func (m *Manager) applyBreakeven(ctx context.Context, pos *broker.Position, state *ManagementState, pip, profitPips float64) {
	if !m.config.BreakevenEnabled || state.BreakevenApplied {
		return
	}
	if profitPips < m.config.BreakevenTriggerPips {
		return
	}

	newSL := pos.OpenPrice + m.config.BreakevenOffsetPips*pip*pos.Side.Sign()
	if !improvesStop(pos, newSL) {
		state.BreakevenApplied = true // existing stop already at or past breakeven
		return
	}

	res, err := m.broker.ModifyPosition(ctx, pos.Ticket, newSL, 0)
	if err != nil {
		m.logger.Warn().Err(err).Int64("ticket", pos.Ticket).Msg("breakeven modify failed")
		return
	}
	if !res.Success {
		m.logger.Warn().Str("error", res.ErrorMsg).Int64("ticket", pos.Ticket).Msg("breakeven rejected")
		return
	}
	state.BreakevenApplied = true
	pos.StopLoss = newSL
	m.logger.Info().Int64("ticket", pos.Ticket).Float64("sl", newSL).Float64("profit_pips", profitPips).Msg("breakeven applied")
}

// applyTrailing activates once profit reaches the activation threshold, then
// keeps the stop a fixed pip distance behind the current price. A trailing
// stop only ever moves in the favorable direction.
func (m *Manager) applyTrailing(ctx context.Context, pos *broker.Position, state *ManagementState, pip, profitPips float64) {
	if !m.config.TrailingEnabled {
		return
	}
	if !state.TrailingActive {
		if profitPips < m.config.TrailingActivationPips {
			return
		}
		state.TrailingActive = true
		m.logger.Info().Int64("ticket", pos.Ticket).Float64("profit_pips", profitPips).Msg("trailing activated")
	}

	candidate := pos.CurrentPrice - m.config.TrailingDistancePips*pip*pos.Side.Sign()
	if !improvesStop(pos, candidate) {
		return
	}

	res, err := m.broker.ModifyPosition(ctx, pos.Ticket, candidate, 0)
	if err != nil {
		m.logger.Warn().Err(err).Int64("ticket", pos.Ticket).Msg("trailing modify failed")
		return
	}
	if !res.Success {
		m.logger.Warn().Str("error", res.ErrorMsg).Int64("ticket", pos.Ticket).Msg("trailing rejected")
		return
	}
	pos.StopLoss = candidate
	m.logger.Debug().Int64("ticket", pos.Ticket).Float64("sl", candidate).Msg("trailing stop moved")
}

// applyPartialClose closes a configured percentage of the volume once per
// ticket, rounded down to the symbol's volume step. If the rounded volume
// falls below the symbol minimum no close call is issued at all.
func (m *Manager) applyPartialClose(ctx context.Context, pos *broker.Position, state *ManagementState, constraints *broker.SymbolConstraints, profitPips float64) {
	if !m.config.PartialCloseEnabled || state.PartialCloseDone {
		return
	}
	if profitPips < m.config.PartialCloseTriggerPips {
		return
	}

	volume := pos.Volume * m.config.PartialClosePercent / 100
	if constraints.VolumeStep > 0 {
		volume = math.Floor(volume/constraints.VolumeStep) * constraints.VolumeStep
	}
	if volume < constraints.MinVolume {
		m.logger.Debug().Int64("ticket", pos.Ticket).Float64("volume", volume).Msg("partial close below minimum, skipped")
		return
	}

	res, err := m.broker.ClosePosition(ctx, pos.Ticket, volume)
	if err != nil {
		m.logger.Warn().Err(err).Int64("ticket", pos.Ticket).Msg("partial close failed")
		return
	}
	if !res.Success {
		m.logger.Warn().Str("error", res.ErrorMsg).Int64("ticket", pos.Ticket).Msg("partial close rejected")
		return
	}
	state.PartialCloseDone = true
	m.logger.Info().Int64("ticket", pos.Ticket).Float64("volume", volume).Msg("partial close executed")
}

// applyTPExtension pushes the take-profit further out once price progress
// toward it exceeds the trigger percentage.
func (m *Manager) applyTPExtension(ctx context.Context, pos *broker.Position, pip float64) {
	if !m.config.TPExtensionEnabled || pos.TakeProfit <= 0 {
		return
	}

	target := (pos.TakeProfit - pos.OpenPrice) * pos.Side.Sign()
	if target <= 0 {
		return
	}
	progress := (pos.CurrentPrice - pos.OpenPrice) * pos.Side.Sign() / target * 100
	if progress < m.config.TPExtensionTriggerPercent {
		return
	}

	newTP := pos.TakeProfit + m.config.TPExtensionPips*pip*pos.Side.Sign()
	res, err := m.broker.ModifyPosition(ctx, pos.Ticket, 0, newTP)
	if err != nil {
		m.logger.Warn().Err(err).Int64("ticket", pos.Ticket).Msg("tp extension failed")
		return
	}
	if !res.Success {
		m.logger.Warn().Str("error", res.ErrorMsg).Int64("ticket", pos.Ticket).Msg("tp extension rejected")
		return
	}
	pos.TakeProfit = newTP
	m.logger.Info().Int64("ticket", pos.Ticket).Float64("tp", newTP).Float64("progress_pct", progress).Msg("take profit extended")
}

// improvesStop reports whether candidate is a strictly better stop than the
// position's current one, in the position's favorable direction.
func improvesStop(pos *broker.Position, candidate float64) bool {
	if pos.Side == broker.SideBuy {
		return pos.StopLoss == 0 || candidate > pos.StopLoss
	}
	return pos.StopLoss == 0 || candidate < pos.StopLoss
}
