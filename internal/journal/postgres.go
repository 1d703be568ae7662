package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Postgres stores journal records in PostgreSQL via a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgres connects to databaseURL and ensures the journal tables exist.
func NewPostgres(ctx context.Context, databaseURL string, logger zerolog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to journal database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}

	p := &Postgres{pool: pool, logger: logger.With().Str("component", "journal").Logger()}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

var _ Store = (*Postgres)(nil)

func (p *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS executions (
			id BIGSERIAL PRIMARY KEY,
			cycle_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			direction TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			volume DOUBLE PRECISION NOT NULL,
			ticket BIGINT NOT NULL,
			stacked BOOLEAN NOT NULL DEFAULT FALSE,
			reason TEXT,
			executed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cycles (
			id BIGSERIAL PRIMARY KEY,
			cycle_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL,
			instruments INT NOT NULL,
			executed INT NOT NULL,
			errors INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS backtests (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			strategy TEXT NOT NULL,
			total_trades INT NOT NULL,
			win_rate DOUBLE PRECISION NOT NULL,
			net_profit DOUBLE PRECISION NOT NULL,
			profit_factor DOUBLE PRECISION NOT NULL,
			max_drawdown DOUBLE PRECISION NOT NULL,
			rating DOUBLE PRECISION NOT NULL,
			ran_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_symbol ON executions(symbol)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("journal migration: %w", err)
		}
	}
	return nil
}

func (p *Postgres) SaveExecution(ctx context.Context, rec ExecutionRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO executions (cycle_id, symbol, direction, price, volume, ticket, stacked, reason, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.CycleID, rec.Symbol, rec.Direction, rec.Price, rec.Volume, rec.Ticket, rec.Stacked, rec.Reason, rec.At)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (p *Postgres) SaveCycle(ctx context.Context, rec CycleRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO cycles (cycle_id, started_at, duration_ms, instruments, executed, errors)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.CycleID, rec.StartedAt, rec.DurationMs, rec.Instruments, rec.Executed, rec.Errors)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

func (p *Postgres) SaveBacktest(ctx context.Context, rec BacktestRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO backtests (symbol, timeframe, strategy, total_trades, win_rate, net_profit, profit_factor, max_drawdown, rating, ran_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.Symbol, rec.Timeframe, rec.Strategy, rec.TotalTrades, rec.WinRate, rec.NetProfit, rec.ProfitFactor, rec.MaxDrawdown, rec.Rating, rec.RanAt)
	if err != nil {
		return fmt.Errorf("insert backtest: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
