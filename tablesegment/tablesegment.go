// Package tablesegment implements the half-open key-range abstraction
// the bisecting diff algorithm recurses over: a TableSegment knows how
// to count itself, checksum itself, fetch its rows, and split itself at
// a set of checkpoints, all via the gateway.Gateway it was built with
// (spec.md §4.4).
package tablesegment

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/rowdelta/rowdelta/gateway"
	"github.com/rowdelta/rowdelta/sqlast"
)

// TableSegment is a half-open key range [Start, End) on a table,
// reachable through Database. Start == nil means unbounded below; End
// == nil means unbounded above. Count and checksum are cached once
// computed and are never mutated after that — replacing any defining
// field means constructing a new segment with New, never mutating one
// in place (spec.md §3's invariant and §4.7's state machine).
type TableSegment struct {
	Database      gateway.Gateway
	TablePath     sqlast.Path
	KeyColumn     string
	ExtraColumns  []string
	Start, End    Key
	Codec         Codec

	countCache    *onceValue[int64]
	checksumCache *onceValue[int64]
}

// New constructs a root TableSegment. count/checksum caches start
// empty.
func New(db gateway.Gateway, table sqlast.Path, keyColumn string, extraColumns []string, codec Codec) *TableSegment {
	return &TableSegment{
		Database:      db,
		TablePath:     table,
		KeyColumn:     keyColumn,
		ExtraColumns:  append([]string(nil), extraColumns...),
		Codec:         codec,
		countCache:    &onceValue[int64]{},
		checksumCache: &onceValue[int64]{},
	}
}

// RelevantColumns returns the key column followed by the extra columns,
// in order — this order determines checksum concatenation order
// (spec.md §3).
func (t *TableSegment) RelevantColumns() []string {
	return append([]string{t.KeyColumn}, t.ExtraColumns...)
}

// new returns a structural copy of t with Start/End replaced by the
// given bounds and both caches forcibly cleared — the only mutation
// bisection ever performs is producing a sibling segment this way
// (spec.md §4.4, §4.7, §9's "copy-on-write via replace()").
func (t *TableSegment) new(start, end Key) *TableSegment {
	return &TableSegment{
		Database:      t.Database,
		TablePath:     t.TablePath,
		KeyColumn:     t.KeyColumn,
		ExtraColumns:  t.ExtraColumns,
		Codec:         t.Codec,
		Start:         start,
		End:           end,
		countCache:    &onceValue[int64]{},
		checksumCache: &onceValue[int64]{},
	}
}

func (t *TableSegment) rangePredicate() []sqlast.Node {
	var where []sqlast.Node
	if t.Start != nil {
		where = append(where, sqlast.Compare{Op: "<=", A: t.Start.Literal(), B: sqlast.Ident(t.KeyColumn)})
	}
	if t.End != nil {
		where = append(where, sqlast.Compare{Op: "<", A: sqlast.Ident(t.KeyColumn), B: t.End.Literal()})
	}
	return where
}

func (t *TableSegment) makeSelect(columns []sqlast.Node, extraWhere sqlast.Node, groupBy, orderBy []sqlast.Node) sqlast.Select {
	where := t.rangePredicate()
	if extraWhere != nil {
		where = append(where, extraWhere)
	}
	return sqlast.Select{
		Columns: columns,
		Table:   sqlast.TableName{Path: t.TablePath},
		Where:   where,
		GroupBy: groupBy,
		OrderBy: orderBy,
	}
}

func identColumns(names []string) []sqlast.Node {
	out := make([]sqlast.Node, len(names))
	for i, n := range names {
		out[i] = sqlast.Ident(n)
	}
	return out
}

// Count returns the number of rows in the segment, memoized.
func (t *TableSegment) Count(ctx context.Context) (int64, error) {
	return t.countCache.get(func() (int64, error) {
		sel := t.makeSelect([]sqlast.Node{sqlast.Count{}}, nil, nil, nil)
		res, err := t.Database.Query(ctx, sel, gateway.ShapeInt)
		if err != nil {
			return 0, errors.Wrap(err, "tablesegment: count")
		}
		return res.(int64), nil
	})
}

// Checksum returns the segment's row checksum, memoized. A null sum
// (no rows) decodes to 0 — gateway.decode already maps SQL NULL to 0
// for ShapeInt, matching spec.md §3's "a null sum is normalized to 0".
func (t *TableSegment) Checksum(ctx context.Context) (int64, error) {
	return t.checksumCache.get(func() (int64, error) {
		cols := identColumns(t.RelevantColumns())
		sel := t.makeSelect([]sqlast.Node{sqlast.Checksum{Exprs: cols}}, nil, nil, nil)
		res, err := t.Database.Query(ctx, sel, gateway.ShapeInt)
		if err != nil {
			return 0, errors.Wrap(err, "tablesegment: checksum")
		}
		return res.(int64), nil
	})
}

// GetValues downloads every relevant-column row in the segment. Called
// only once bisection has reached its threshold (spec.md §4.4).
func (t *TableSegment) GetValues(ctx context.Context) ([][]any, error) {
	cols := identColumns(t.RelevantColumns())
	sel := t.makeSelect(cols, nil, nil, nil)
	res, err := t.Database.Query(ctx, sel, gateway.ShapeTupleList)
	if err != nil {
		return nil, errors.Wrap(err, "tablesegment: get values")
	}
	return res.([][]any), nil
}

// ChooseCheckpoints suggests n roughly evenly-spaced key values drawn
// from this segment's own rows, in enumeration order. Requires
// ratio = floor(count/n) > 1; the caller (TableDiffer) is responsible
// for guaranteeing the segment has enough rows (spec.md §4.4).
func (t *TableSegment) ChooseCheckpoints(ctx context.Context, n int) ([]Key, error) {
	count, err := t.Count(ctx)
	if err != nil {
		return nil, err
	}
	ratio := int(count) / n
	if ratio <= 1 {
		return nil, errors.Errorf("tablesegment: choose_checkpoints requires ratio > 1, got %d (count=%d, n=%d)", ratio, count, n)
	}

	enumTable := sqlast.Enum{Table: t.TablePath, OrderBy: sqlast.Ident(t.KeyColumn)}
	skip := sqlast.Raw{SQL: fmt.Sprintf("mod(idx, %d) = 0", ratio)}
	sel := sqlast.Select{
		Columns: []sqlast.Node{sqlast.Ident(t.KeyColumn)},
		Table:   enumTable,
		Where:   append(t.rangePredicate(), skip),
	}
	res, err := t.Database.Query(ctx, sel, gateway.ShapeScalarList)
	if err != nil {
		return nil, errors.Wrap(err, "tablesegment: choose checkpoints")
	}
	return t.decodeKeys(res.([]any))
}

// FindCheckpoints returns the subset of candidates that exist as keys
// inside this segment.
func (t *TableSegment) FindCheckpoints(ctx context.Context, candidates []Key) ([]Key, error) {
	literals := make([]sqlast.Node, len(candidates))
	for i, c := range candidates {
		literals[i] = c.Literal()
	}
	where := sqlast.In{Expr: sqlast.Ident(t.KeyColumn), List: literals}
	sel := t.makeSelect([]sqlast.Node{sqlast.Ident(t.KeyColumn)}, where, nil, nil)
	res, err := t.Database.Query(ctx, sel, gateway.ShapeScalarList)
	if err != nil {
		return nil, errors.Wrap(err, "tablesegment: find checkpoints")
	}
	return t.decodeKeys(res.([]any))
}

func (t *TableSegment) decodeKeys(raw []any) ([]Key, error) {
	keys := make([]Key, len(raw))
	for i, v := range raw {
		k, err := t.Codec.Decode(v)
		if err != nil {
			return nil, errors.Wrap(err, "tablesegment: decoding key")
		}
		keys[i] = k
	}
	return keys, nil
}

// SegmentByCheckpoints splits t into len(checkpoints)+1 child segments
// at the given checkpoints, which must lie strictly inside (Start, End)
// when both bounds are set. The first child inherits t.Start, the last
// inherits t.End.
func (t *TableSegment) SegmentByCheckpoints(checkpoints []Key) []*TableSegment {
	sorted := append([]Key(nil), checkpoints...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	positions := make([]Key, 0, len(sorted)+2)
	positions = append(positions, t.Start)
	positions = append(positions, sorted...)
	positions = append(positions, t.End)

	children := make([]*TableSegment, 0, len(positions)-1)
	for i := 0; i+1 < len(positions); i++ {
		children = append(children, t.new(positions[i], positions[i+1]))
	}
	return children
}
