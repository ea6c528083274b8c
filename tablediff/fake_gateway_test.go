package tablediff_test

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/rowdelta/rowdelta/gateway"
	"github.com/rowdelta/rowdelta/sqlast"
	"github.com/rowdelta/rowdelta/sqldialect"
)

// fakeRow is one row of a fakeTable: an integer key and a single extra
// column, "val".
type fakeRow struct {
	key int64
	val string
}

// fakeTable is a minimal in-process interpreter of the sqlast queries
// TableSegment issues — count, checksum, checkpoint enumeration,
// checkpoint membership, and full row fetch — over a fixed, sorted
// slice of rows. It exists purely to drive TableDiffer's bisection
// logic in tests without a real database connection.
type fakeTable struct {
	rows []fakeRow // must be sorted ascending by key
}

func (f *fakeTable) Dialect() sqldialect.Dialect { return sqldialect.Postgres{} }

func (f *fakeTable) Query(ctx context.Context, ast sqlast.Node, shape gateway.ResultShape) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sel, ok := ast.(sqlast.Select)
	if !ok {
		return nil, fmt.Errorf("fakeTable: unexpected top-level node %T", ast)
	}
	start, hasStart, end, hasEnd := extractRange(sel.Where)

	switch shape {
	case gateway.ShapeInt:
		rows := f.filter(start, hasStart, end, hasEnd)
		switch sel.Columns[0].(type) {
		case sqlast.Count:
			return int64(len(rows)), nil
		case sqlast.Checksum:
			return checksum(rows), nil
		default:
			return nil, fmt.Errorf("fakeTable: unexpected ShapeInt column %T", sel.Columns[0])
		}

	case gateway.ShapeScalarList:
		if ratio, ok := extractRatio(sel.Where); ok {
			var out []any
			for idx, r := range f.rows {
				if (idx+1)%ratio != 0 {
					continue
				}
				if !inRange(r.key, start, hasStart, end, hasEnd) {
					continue
				}
				out = append(out, r.key)
			}
			return out, nil
		}
		if list, ok := extractInList(sel.Where); ok {
			set := make(map[int64]bool, len(list))
			for _, v := range list {
				set[v] = true
			}
			var out []any
			for _, r := range f.filter(start, hasStart, end, hasEnd) {
				if set[r.key] {
					out = append(out, r.key)
				}
			}
			return out, nil
		}
		return nil, fmt.Errorf("fakeTable: ShapeScalarList query matched neither enum nor IN pattern")

	case gateway.ShapeTupleList:
		rows := f.filter(start, hasStart, end, hasEnd)
		out := make([][]any, len(rows))
		for i, r := range rows {
			out[i] = []any{r.key, r.val}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("fakeTable: unknown shape %d", shape)
	}
}

func (f *fakeTable) filter(start int64, hasStart bool, end int64, hasEnd bool) []fakeRow {
	var out []fakeRow
	for _, r := range f.rows {
		if inRange(r.key, start, hasStart, end, hasEnd) {
			out = append(out, r)
		}
	}
	return out
}

func inRange(key, start int64, hasStart bool, end int64, hasEnd bool) bool {
	if hasStart && key < start {
		return false
	}
	if hasEnd && key >= end {
		return false
	}
	return true
}

func extractRange(where []sqlast.Node) (start int64, hasStart bool, end int64, hasEnd bool) {
	for _, w := range where {
		cmp, ok := w.(sqlast.Compare)
		if !ok {
			continue
		}
		switch cmp.Op {
		case "<=":
			if v, ok := cmp.A.(sqlast.Value); ok {
				start, _ = strconv.ParseInt(v.Raw, 10, 64)
				hasStart = true
			}
		case "<":
			if v, ok := cmp.B.(sqlast.Value); ok {
				end, _ = strconv.ParseInt(v.Raw, 10, 64)
				hasEnd = true
			}
		}
	}
	return
}

func extractRatio(where []sqlast.Node) (int, bool) {
	for _, w := range where {
		raw, ok := w.(sqlast.Raw)
		if !ok || !strings.HasPrefix(raw.SQL, "mod(idx,") {
			continue
		}
		var ratio int
		if _, err := fmt.Sscanf(raw.SQL, "mod(idx, %d) = 0", &ratio); err == nil {
			return ratio, true
		}
	}
	return 0, false
}

func extractInList(where []sqlast.Node) ([]int64, bool) {
	for _, w := range where {
		in, ok := w.(sqlast.In)
		if !ok {
			continue
		}
		out := make([]int64, 0, len(in.List))
		for _, item := range in.List {
			if v, ok := item.(sqlast.Value); ok {
				n, _ := strconv.ParseInt(v.Raw, 10, 64)
				out = append(out, n)
			}
		}
		return out, true
	}
	return nil, false
}

func checksum(rows []fakeRow) int64 {
	var sum uint64
	for _, r := range rows {
		h := fnv.New64a()
		fmt.Fprintf(h, "%d|%s", r.key, r.val)
		sum += h.Sum64() & sqldialect.CHECKSUMMask
	}
	return int64(sum & sqldialect.CHECKSUMMask)
}
