// Package gateway executes compiled SQL against a remote database and
// decodes the result into one of the shapes the diff engine needs: a
// single integer, a list of one-column scalars, or a list of row
// tuples (spec.md §4.3).
package gateway

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rowdelta/rowdelta/sqlast"
	"github.com/rowdelta/rowdelta/sqlcompile"
	"github.com/rowdelta/rowdelta/sqldialect"
)

// ResultShape tells a Gateway how to decode the rows a query returns.
type ResultShape int

const (
	// ShapeInt expects a single row with a single column and returns
	// the integer, or 0 if the cell is null.
	ShapeInt ResultShape = iota
	// ShapeScalarList expects one-column rows and returns the column
	// values in order.
	ShapeScalarList
	// ShapeTupleList expects arbitrary rows and returns each one as a
	// []any preserving column order.
	ShapeTupleList
)

// ConnectError indicates a Gateway could not establish a session.
type ConnectError struct{ cause error }

func (e *ConnectError) Error() string { return "gateway: connect failed: " + e.cause.Error() }
func (e *ConnectError) Unwrap() error { return e.cause }

// QueryError indicates a database rejected compiled SQL or returned an
// unexpected result shape. It carries the offending SQL for diagnosis.
type QueryError struct {
	SQL   string
	cause error
}

func (e *QueryError) Error() string {
	return "gateway: query failed: " + e.cause.Error() + " (sql: " + e.SQL + ")"
}
func (e *QueryError) Unwrap() error { return e.cause }

// Gateway is the single logical operation the diff engine needs from a
// database connection: compile and run an AST, decode the result.
// Implementations must be safe for concurrent use by multiple goroutines.
type Gateway interface {
	Dialect() sqldialect.Dialect
	Query(ctx context.Context, ast sqlast.Node, shape ResultShape) (any, error)
}

// SQLGateway implements Gateway over database/sql, serializing access
// through a bounded worker pool — the default pool size of 1 matches
// spec.md §5's "caller-supplied, default 1 for source parity" note for
// drivers whose connections are not inherently safe to multiplex.
type SQLGateway struct {
	db      *sql.DB
	dialect sqldialect.Dialect
	log     *logrus.Entry
	sem     chan struct{}
}

// Open establishes a session via database/sql.Open and wraps it as a
// Gateway. driverName/dsn follow database/sql conventions (e.g.
// "postgres", "mysql", "sqlserver"/"mssql" once the matching driver
// package has been blank-imported by the caller).
func Open(driverName, dsn string, dialect sqldialect.Dialect, poolSize int, log *logrus.Entry) (*SQLGateway, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, &ConnectError{cause: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &ConnectError{cause: err}
	}
	if poolSize <= 0 {
		poolSize = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SQLGateway{db: db, dialect: dialect, log: log, sem: make(chan struct{}, poolSize)}, nil
}

// NewSQLGateway wraps an already-open *sql.DB, for callers that manage
// connection lifecycle themselves (tests, pooled setups).
func NewSQLGateway(db *sql.DB, dialect sqldialect.Dialect, poolSize int, log *logrus.Entry) *SQLGateway {
	if poolSize <= 0 {
		poolSize = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SQLGateway{db: db, dialect: dialect, log: log, sem: make(chan struct{}, poolSize)}
}

func (g *SQLGateway) Dialect() sqldialect.Dialect { return g.dialect }

// Close releases the underlying *sql.DB.
func (g *SQLGateway) Close() error { return g.db.Close() }

func (g *SQLGateway) acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *SQLGateway) release() { <-g.sem }

// Query validates ast against sqlcompile.Validate, compiles it with a
// sqlcompile.Compiler bound to this gateway's dialect, runs it, and
// decodes according to shape. Validate rejects non-numeric Values used
// as range-predicate operands before they ever reach a driver.
func (g *SQLGateway) Query(ctx context.Context, ast sqlast.Node, shape ResultShape) (any, error) {
	if err := sqlcompile.Validate(ast); err != nil {
		return nil, errors.Wrap(err, "gateway: rejected unsafe query")
	}

	sqlText := sqlcompile.New(g.dialect).Compile(ast)

	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	g.log.WithField("sql", sqlText).Debug("gateway: executing query")

	rows, err := g.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, &QueryError{SQL: sqlText, cause: err}
	}
	defer rows.Close()

	result, err := decode(rows, shape)
	if err != nil {
		return nil, &QueryError{SQL: sqlText, cause: err}
	}
	return result, nil
}

func decode(rows *sql.Rows, shape ResultShape) (any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "reading columns")
	}

	switch shape {
	case ShapeInt:
		return decodeInt(rows, len(cols))
	case ShapeScalarList:
		return decodeScalarList(rows, len(cols))
	case ShapeTupleList:
		return decodeTupleList(rows, len(cols))
	default:
		return nil, errors.Errorf("unknown result shape %d", shape)
	}
}

func decodeInt(rows *sql.Rows, numCols int) (int64, error) {
	if numCols != 1 {
		return 0, errors.Errorf("expected 1 column for ShapeInt, got %d", numCols)
	}
	if !rows.Next() {
		return 0, errors.New("expected 1 row for ShapeInt, got 0")
	}
	var v sql.NullInt64
	if err := rows.Scan(&v); err != nil {
		return 0, errors.Wrap(err, "scanning int result")
	}
	if rows.Next() {
		return 0, errors.New("expected 1 row for ShapeInt, got more than 1")
	}
	if !v.Valid {
		return 0, nil
	}
	return v.Int64, rows.Err()
}

func decodeScalarList(rows *sql.Rows, numCols int) ([]any, error) {
	if numCols != 1 {
		return nil, errors.Errorf("expected 1 column for ShapeScalarList, got %d", numCols)
	}
	var out []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scanning scalar result")
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func decodeTupleList(rows *sql.Rows, numCols int) ([][]any, error) {
	var out [][]any
	for rows.Next() {
		dest := make([]any, numCols)
		ptrs := make([]any, numCols)
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scanning row tuple")
		}
		out = append(out, dest)
	}
	return out, rows.Err()
}
