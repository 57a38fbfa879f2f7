package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/datasource"
)

const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"

	componentName = "datasource.sqlsource"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Open connects to a DuckDB file (empty dsn for in-memory) or a PostgreSQL
// server and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverDuckDB, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q: %w", driver, common.ErrConfiguration)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to reach %s database: %w", driver, err)
	}
	return db, nil
}

func PostgresDSN(host, port, user, pass, db string) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", host, port, user, pass, db)
}

// Query selects the bars of one symbol within [From, To) out of Table,
// which needs the columns symbol, ts, open, high, low, close and volume.
// Prices are read as text so exact decimals survive either driver.
type Query struct {
	Table  string
	Symbol string
	Period time.Duration
	From   time.Time
	To     time.Time
}

func (q Query) statement() (string, []any, error) {
	if !identifier.MatchString(q.Table) {
		return "", nil, fmt.Errorf("invalid table name %q: %w", q.Table, common.ErrConfiguration)
	}

	stmt := fmt.Sprintf(`SELECT ts,
		CAST(open AS VARCHAR), CAST(high AS VARCHAR), CAST(low AS VARCHAR),
		CAST(close AS VARCHAR), CAST(volume AS VARCHAR)
		FROM %s WHERE symbol = $1`, q.Table)
	args := []any{q.Symbol}
	if !q.From.IsZero() {
		args = append(args, q.From.UTC())
		stmt += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if !q.To.IsZero() {
		args = append(args, q.To.UTC())
		stmt += fmt.Sprintf(" AND ts < $%d", len(args))
	}
	stmt += " ORDER BY ts"
	return stmt, args, nil
}

// BarFeed streams query results row by row.
type BarFeed struct {
	rows   *sql.Rows
	symbol string
	period time.Duration
}

func NewBarFeed(ctx context.Context, db *sql.DB, q Query) (*BarFeed, error) {
	stmt, args, err := q.statement()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying %s: %w", q.Table, err)
	}

	return &BarFeed{rows: rows, symbol: q.Symbol, period: q.Period}, nil
}

func (f *BarFeed) Next() (common.Event, error) {
	if !f.rows.Next() {
		if err := f.rows.Err(); err != nil {
			return nil, fmt.Errorf("error scanning rows: %w", err)
		}
		return nil, datasource.ErrEof
	}

	bar := common.Bar{
		EventHeader: common.EventHeader{Source: componentName, Symbol: f.symbol},
		Period:      f.period,
	}
	var ts time.Time
	if err := f.rows.Scan(&ts, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
		return nil, fmt.Errorf("error scanning row: %w", err)
	}
	bar.TimeStamp = ts.UTC()
	return bar, nil
}

func (f *BarFeed) Close() error {
	return f.rows.Close()
}

// CreateBarTable creates table with the layout expected by BarFeed.
func CreateBarTable(ctx context.Context, db *sql.DB, table string) error {
	if !identifier.MatchString(table) {
		return fmt.Errorf("invalid table name %q: %w", table, common.ErrConfiguration)
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		symbol VARCHAR NOT NULL,
		ts     TIMESTAMP NOT NULL,
		open   DECIMAL(18, 8) NOT NULL,
		high   DECIMAL(18, 8) NOT NULL,
		low    DECIMAL(18, 8) NOT NULL,
		close  DECIMAL(18, 8) NOT NULL,
		volume DECIMAL(18, 8) NOT NULL
	)`, table)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("unable to create %s: %w", table, err)
	}
	return nil
}

// InsertBars writes bars into table inside a single transaction.
func InsertBars(ctx context.Context, db *sql.DB, table string, bars ...common.Bar) error {
	if !identifier.MatchString(table) {
		return fmt.Errorf("invalid table name %q: %w", table, common.ErrConfiguration)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := fmt.Sprintf(`INSERT INTO %s (symbol, ts, open, high, low, close, volume) VALUES ($1, $2, $3, $4, $5, $6, $7)`, table)
	for i, bar := range bars {
		if _, err := tx.ExecContext(ctx, stmt,
			bar.Symbol, bar.TimeStamp.UTC(),
			bar.Open.String(), bar.High.String(), bar.Low.String(), bar.Close.String(), bar.Volume.String(),
		); err != nil {
			return fmt.Errorf("unable to insert bar %d: %w", i, err)
		}
	}
	return tx.Commit()
}
