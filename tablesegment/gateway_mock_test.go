package tablesegment_test

import (
	"context"

	"github.com/rowdelta/rowdelta/gateway"
	"github.com/rowdelta/rowdelta/sqlast"
	"github.com/rowdelta/rowdelta/sqldialect"
)

// mockGateway answers every Query call with the next entry in results,
// in call order, recording the shapes it was asked for. It exists to
// test TableSegment's SQL construction and caching behavior without a
// real database.
type mockGateway struct {
	results []any
	calls   int
	shapes  []gateway.ResultShape
}

func (m *mockGateway) Dialect() sqldialect.Dialect { return sqldialect.Postgres{} }

func (m *mockGateway) Query(ctx context.Context, ast sqlast.Node, shape gateway.ResultShape) (any, error) {
	m.shapes = append(m.shapes, shape)
	if m.calls >= len(m.results) {
		panic("mockGateway: ran out of canned results")
	}
	res := m.results[m.calls]
	m.calls++
	if err, ok := res.(error); ok {
		return nil, err
	}
	return res, nil
}
