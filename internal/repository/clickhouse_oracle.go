package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"FinSynth/internal/domain/models"
	applogger "FinSynth/pkg/logger"
)

// ClickHouseOracle reads prices from a ticks table (ts, symbol, price) that
// an ingestion pipeline fills. PriceAt returns the latest tick at or before
// ts, no older than maxStaleness.
type ClickHouseOracle struct {
	db           *sql.DB
	table        string
	symbols      map[string]string
	maxStaleness time.Duration
	l            *applogger.Logger
}

// NewClickHouseOracle maps assets to table symbols via symbols; assets
// without an entry are queried by their own name.
func NewClickHouseOracle(db *sql.DB, table string, symbols map[string]string, maxStaleness time.Duration, l *applogger.Logger) *ClickHouseOracle {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseOracle{db: db, table: table, symbols: symbols, maxStaleness: maxStaleness, l: l}
}

func (o *ClickHouseOracle) symbol(asset string) string {
	if s, ok := o.symbols[asset]; ok && s != "" {
		return s
	}
	return asset
}

func (o *ClickHouseOracle) PriceAt(ctx context.Context, asset string, ts time.Time) (float64, error) {
	q := fmt.Sprintf("SELECT price FROM %s WHERE symbol = ? AND ts <= ? AND ts >= ? ORDER BY ts DESC LIMIT 1", o.table)
	sym := o.symbol(asset)
	ts = ts.UTC()

	var price float64
	err := o.db.QueryRowContext(ctx, q, sym, ts, ts.Add(-o.maxStaleness)).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: no %s tick within %s of %s", models.ErrDataUnavailable, sym, o.maxStaleness, ts.Format(time.RFC3339))
		}
		o.l.Error("clickhouse price query error",
			applogger.String("table", o.table),
			applogger.String("symbol", sym),
			applogger.Error(err),
		)
		return 0, fmt.Errorf("%w: price query: %w", models.ErrDataUnavailable, err)
	}
	return price, nil
}
