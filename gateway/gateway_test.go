package gateway_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowdelta/rowdelta/gateway"
	"github.com/rowdelta/rowdelta/sqlast"
	"github.com/rowdelta/rowdelta/sqldialect"
)

// fakeDriver is a minimal database/sql/driver implementation that
// answers every query with the same canned columns and rows (or
// failErr), whatever SQL text it receives, so gateway.Query can be
// exercised without a real database connection.
type fakeDriver struct {
	mu      sync.Mutex
	columns []string
	rows    [][]driver.Value
	failErr error
}

func (d *fakeDriver) Open(name string) (driver.Conn, error) { return &fakeConn{d: d}, nil }

type fakeConn struct{ d *fakeDriver }

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) { return &fakeStmt{c: c}, nil }
func (c *fakeConn) Close() error                              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)                 { return nil, fmt.Errorf("not supported") }
func (c *fakeConn) Ping(ctx context.Context) error            { return nil }

type fakeStmt struct{ c *fakeConn }

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }
func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, fmt.Errorf("not supported")
}
func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.c.d.mu.Lock()
	defer s.c.d.mu.Unlock()
	if s.c.d.failErr != nil {
		return nil, s.c.d.failErr
	}
	return &fakeRows{columns: s.c.d.columns, rows: s.c.d.rows}, nil
}

type fakeRows struct {
	columns []string
	rows    [][]driver.Value
	pos     int
}

func (r *fakeRows) Columns() []string { return r.columns }
func (r *fakeRows) Close() error      { return nil }
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

var registerOnce sync.Once
var registeredDriver *fakeDriver

func openFakeGateway(t *testing.T, columns []string, rows [][]driver.Value) *gateway.SQLGateway {
	t.Helper()
	registerOnce.Do(func() {
		registeredDriver = &fakeDriver{}
		sql.Register("rowdelta-fake", registeredDriver)
	})
	registeredDriver.mu.Lock()
	registeredDriver.columns = columns
	registeredDriver.rows = rows
	registeredDriver.failErr = nil
	registeredDriver.mu.Unlock()

	db, err := sql.Open("rowdelta-fake", "")
	require.NoError(t, err)
	return gateway.NewSQLGateway(db, sqldialect.Postgres{}, 1, nil)
}

func TestQueryShapeInt(t *testing.T) {
	gw := openFakeGateway(t, []string{"count"}, [][]driver.Value{{int64(42)}})
	res, err := gw.Query(context.Background(), sqlast.Count{}, gateway.ShapeInt)
	require.NoError(t, err)
	assert.EqualValues(t, 42, res)
}

func TestQueryShapeIntNullBecomesZero(t *testing.T) {
	gw := openFakeGateway(t, []string{"sum"}, [][]driver.Value{{nil}})
	res, err := gw.Query(context.Background(), sqlast.Count{}, gateway.ShapeInt)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res)
}

func TestQueryShapeScalarList(t *testing.T) {
	gw := openFakeGateway(t, []string{"id"}, [][]driver.Value{{int64(1)}, {int64(2)}, {int64(3)}})
	res, err := gw.Query(context.Background(), sqlast.Ident("id"), gateway.ShapeScalarList)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, res)
}

func TestQueryShapeTupleList(t *testing.T) {
	gw := openFakeGateway(t, []string{"id", "name"}, [][]driver.Value{{int64(1), "alice"}, {int64(2), "bob"}})
	res, err := gw.Query(context.Background(), sqlast.Ident("*"), gateway.ShapeTupleList)
	require.NoError(t, err)
	tuples := res.([][]any)
	require.Len(t, tuples, 2)
	assert.Equal(t, []any{int64(1), "alice"}, tuples[0])
}

func TestQueryWrapsDriverErrorAsQueryError(t *testing.T) {
	gw := openFakeGateway(t, nil, nil)
	registeredDriver.mu.Lock()
	registeredDriver.failErr = fmt.Errorf("connection reset")
	registeredDriver.mu.Unlock()

	_, err := gw.Query(context.Background(), sqlast.Count{}, gateway.ShapeInt)
	require.Error(t, err)
	var qerr *gateway.QueryError
	require.ErrorAs(t, err, &qerr)
}

func TestOpenWrapsConnectErrorOnBadDriver(t *testing.T) {
	_, err := gateway.Open("no-such-driver-registered", "dsn", sqldialect.Postgres{}, 1, nil)
	require.Error(t, err)
	var cerr *gateway.ConnectError
	require.ErrorAs(t, err, &cerr)
}
