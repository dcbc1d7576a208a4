package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/hakimelghazi/quoter/internal/engine"
)

//go:embed schema.sql
var schema string

const insertTrade = `
INSERT INTO trades (id, symbol, volume_requested, volume_executed, vwap, executed_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`

const insertFill = `
INSERT INTO trade_fills (trade_id, seq, quote_id, price, volume)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (trade_id, seq) DO NOTHING`

const listTradesBySymbol = `
SELECT id, symbol, volume_requested, volume_executed, vwap, executed_at
FROM trades
WHERE symbol = $1
ORDER BY executed_at DESC
LIMIT $2`

// Conn is the subset of *pgxpool.Pool the ledger needs.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TradeLedger records executed trades in Postgres. It consumes journal
// batches and ignores every event that is not a trade.
type TradeLedger struct {
	conn Conn
}

func NewTradeLedger(conn Conn) *TradeLedger {
	return &TradeLedger{conn: conn}
}

func (l *TradeLedger) Name() string { return "postgres" }

// EnsureSchema creates the ledger tables if they do not exist.
func (l *TradeLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Write persists every trade of the batch in one transaction.
func (l *TradeLedger) Write(ctx context.Context, events []engine.Event) error {
	trades := make([]*engine.TradeResult, 0, len(events))
	for _, ev := range events {
		if ev.Type == engine.EventTradeExecuted && ev.Trade != nil {
			trades = append(trades, ev.Trade)
		}
	}
	if len(trades) == 0 {
		return nil
	}

	tx, err := l.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := persistTrades(ctx, tx, trades); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func persistTrades(ctx context.Context, tx pgx.Tx, trades []*engine.TradeResult) error {
	for _, tr := range trades {
		_, err := tx.Exec(ctx, insertTrade,
			pgUUID(tr.ID),
			tr.Symbol,
			int64(tr.VolumeRequested),
			int64(tr.VolumeExecuted),
			numericFromDecimal(tr.VolumeWeightedAveragePrice),
			tr.ExecutedAt,
		)
		if err != nil {
			return fmt.Errorf("insert trade %s: %w", tr.ID, err)
		}
		for i, f := range tr.Fills {
			_, err := tx.Exec(ctx, insertFill,
				pgUUID(tr.ID),
				i,
				pgUUID(f.QuoteID),
				numericFromDecimal(f.Price),
				int64(f.Volume),
			)
			if err != nil {
				return fmt.Errorf("insert fill %d of trade %s: %w", i, tr.ID, err)
			}
		}
	}
	return nil
}

// TradeRow is a stored trade without its fills.
type TradeRow struct {
	ID                         uuid.UUID       `json:"id"`
	Symbol                     string          `json:"symbol"`
	VolumeRequested            uint64          `json:"volume_requested"`
	VolumeExecuted             uint64          `json:"volume_executed"`
	VolumeWeightedAveragePrice decimal.Decimal `json:"volume_weighted_average_price"`
	ExecutedAt                 time.Time       `json:"executed_at"`
}

// ListTrades returns the most recent trades of symbol, newest first.
func (l *TradeLedger) ListTrades(ctx context.Context, symbol string, limit int) ([]TradeRow, error) {
	rows, err := l.conn.Query(ctx, listTradesBySymbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	out := make([]TradeRow, 0)
	for rows.Next() {
		var (
			id                  pgtype.UUID
			row                 TradeRow
			requested, executed int64
			vwap                pgtype.Numeric
		)
		if err := rows.Scan(&id, &row.Symbol, &requested, &executed, &vwap, &row.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		row.ID = uuid.UUID(id.Bytes)
		row.VolumeRequested = uint64(requested)
		row.VolumeExecuted = uint64(executed)
		row.VolumeWeightedAveragePrice = decimal.NewFromBigInt(vwap.Int, vwap.Exp)
		out = append(out, row)
	}
	return out, rows.Err()
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func numericFromDecimal(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{
		Int:   d.Coefficient(),
		Exp:   d.Exponent(),
		Valid: true,
	}
}
