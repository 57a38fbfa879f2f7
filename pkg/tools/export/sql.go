package export

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/peter-kozarec/tessera/pkg/common"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// FillTable stores fills of many runs in one SQL table, keyed by run id and
// fill id. It works against PostgreSQL and DuckDB alike.
type FillTable struct {
	db    *sql.DB
	table string
}

func NewFillTable(db *sql.DB, table string) (*FillTable, error) {
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q: %w", table, common.ErrConfiguration)
	}
	return &FillTable{db: db, table: table}, nil
}

func (t *FillTable) Create(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id          VARCHAR NOT NULL,
		fill_id         BIGINT NOT NULL,
		order_id        BIGINT NOT NULL,
		symbol          VARCHAR NOT NULL,
		side            VARCHAR NOT NULL,
		price           DECIMAL(18, 8) NOT NULL,
		quantity        DECIMAL(18, 8) NOT NULL,
		fee             DECIMAL(18, 8) NOT NULL,
		slippage        DECIMAL(18, 8) NOT NULL,
		realized_pnl    DECIMAL(18, 8) NOT NULL,
		closed_quantity DECIMAL(18, 8) NOT NULL,
		ts              TIMESTAMP NOT NULL,
		PRIMARY KEY (run_id, fill_id)
	)`, t.table)
	if _, err := t.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("unable to create %s: %w", t.table, err)
	}
	return nil
}

// InsertFill is idempotent: a fill already stored for the run is ignored.
func (t *FillTable) InsertFill(ctx context.Context, runId string, fill common.Fill) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (
		run_id, fill_id, order_id, symbol, side, price, quantity, fee, slippage, realized_pnl, closed_quantity, ts
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (run_id, fill_id) DO NOTHING`, t.table)

	_, err := t.db.ExecContext(ctx, stmt,
		runId,
		int64(fill.Id),
		int64(fill.OrderId),
		fill.Symbol,
		fill.Side.String(),
		fill.Price.String(),
		fill.Quantity.String(),
		fill.Fee.String(),
		fill.Slippage.String(),
		fill.RealizedPnL.String(),
		fill.ClosedQuantity.String(),
		fill.TimeStamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("unable to insert fill %d of run %s: %w", fill.Id, runId, err)
	}
	return nil
}

// Count returns how many fills are stored for runId.
func (t *FillTable) Count(ctx context.Context, runId string) (int, error) {
	var n int
	stmt := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE run_id = $1`, t.table)
	if err := t.db.QueryRowContext(ctx, stmt, runId).Scan(&n); err != nil {
		return 0, fmt.Errorf("unable to count fills of run %s: %w", runId, err)
	}
	return n, nil
}
