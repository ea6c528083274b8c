// Package sqlcompile lowers a sqlast.Node tree to a SQL string for a
// given sqldialect.Dialect. The compiler is a stateful visitor with a
// single scalar flag, inSelect, used only to decide whether a nested
// Select gets wrapped in parentheses — the parent's flag value decides
// wrapping, matching spec.md §4.1 exactly.
package sqlcompile

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/rowdelta/rowdelta/sqlast"
	"github.com/rowdelta/rowdelta/sqldialect"
)

// Compiler compiles sqlast.Node trees to SQL text for one Dialect.
type Compiler struct {
	dialect  sqldialect.Dialect
	inSelect bool
}

// New returns a root Compiler (inSelect = false) for the given dialect.
func New(d sqldialect.Dialect) *Compiler {
	return &Compiler{dialect: d}
}

// child returns a Compiler bound to the same dialect with inSelect set,
// used for compiling the contents of a Select.
func (c *Compiler) child(inSelect bool) *Compiler {
	return &Compiler{dialect: c.dialect, inSelect: inSelect}
}

// Compile lowers a node to SQL text. It never returns an error itself —
// an unrecognized Node variant is a programming error, not a runtime
// one, and panics the way an exhaustive switch over a closed sum type
// should.
func (c *Compiler) Compile(n sqlast.Node) string {
	switch v := n.(type) {
	case sqlast.Raw:
		return v.SQL
	case sqlast.Value:
		return c.compileValue(v)
	case sqlast.TableName:
		return c.dialect.Quote(strings.Join(v.Path, "."))
	case sqlast.Select:
		return c.compileSelect(v)
	case sqlast.Enum:
		return c.compileEnum(v)
	case sqlast.Checksum:
		return c.compileChecksum(v)
	case sqlast.Compare:
		return fmt.Sprintf("(%s %s %s)", c.Compile(v.A), v.Op, c.Compile(v.B))
	case sqlast.In:
		elems := c.compileList(v.List)
		return fmt.Sprintf("(%s IN (%s))", c.Compile(v.Expr), elems)
	case sqlast.Count:
		if v.Column == "" {
			return "count(*)"
		}
		return fmt.Sprintf("count(%s)", v.Column)
	default:
		panic(fmt.Sprintf("sqlcompile: unrecognized node %T", n))
	}
}

func (c *Compiler) compileValue(v sqlast.Value) string {
	switch v.Kind {
	case sqlast.ValueNumeric:
		return v.Raw
	case sqlast.ValueString:
		return fmt.Sprintf("'%s'", v.Raw)
	case sqlast.ValueBytes:
		return fmt.Sprintf("b'%s'", v.Raw)
	default:
		panic(fmt.Sprintf("sqlcompile: unrecognized value kind %d", v.Kind))
	}
}

func (c *Compiler) compileList(nodes []sqlast.Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = c.Compile(n)
	}
	return strings.Join(parts, ", ")
}

func (c *Compiler) compileSelect(s sqlast.Select) string {
	inner := c.child(true)

	columns := inner.compileList(s.Columns)
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s", columns)

	if s.Table != nil {
		fmt.Fprintf(&b, " FROM %s", inner.Compile(s.Table))
	}
	if len(s.Where) > 0 {
		parts := make([]string, len(s.Where))
		for i, w := range s.Where {
			parts[i] = inner.Compile(w)
		}
		fmt.Fprintf(&b, " WHERE %s", strings.Join(parts, " AND "))
	}
	if len(s.GroupBy) > 0 {
		fmt.Fprintf(&b, " GROUP BY %s", inner.compileList(s.GroupBy))
	}
	if len(s.OrderBy) > 0 {
		fmt.Fprintf(&b, " ORDER BY %s", inner.compileList(s.OrderBy))
	}

	out := b.String()
	if c.inSelect {
		out = "(" + out + ")"
	}
	return out
}

func (c *Compiler) compileEnum(e sqlast.Enum) string {
	table := c.dialect.Quote(strings.Join(e.Table, "."))
	order := c.Compile(e.OrderBy)
	return fmt.Sprintf(
		"(SELECT *, (row_number() over (ORDER BY %s)) as idx FROM %s ORDER BY %s) tmp",
		order, table, order,
	)
}

func (c *Compiler) compileChecksum(ch sqlast.Checksum) string {
	parts := make([]string, len(ch.Exprs))
	for i, e := range ch.Exprs {
		parts[i] = c.dialect.ToString(c.Compile(e))
	}
	concat := fmt.Sprintf("concat(%s)", strings.Join(parts, ", "))
	return fmt.Sprintf("sum(%s)", c.dialect.MD5ToInt(concat))
}

// ErrUnsafeValue is returned by Validate when a Value node cannot be
// proven safe to embed in a range predicate.
var ErrUnsafeValue = errors.New("sqlcompile: non-numeric Value outside an approved context")

// Validate walks a node tree and rejects string/byte Value nodes that
// appear directly as Compare or In operands — spec.md §9 calls this
// out explicitly ("the safe path is to forbid it in the range
// predicate and assert key types are numeric"). Numeric Values, Raw,
// and string/byte Values nested inside a Checksum (column references,
// not key predicates) are unaffected.
func Validate(n sqlast.Node) error {
	switch v := n.(type) {
	case sqlast.Compare:
		if err := validateKeyOperand(v.A); err != nil {
			return err
		}
		if err := validateKeyOperand(v.B); err != nil {
			return err
		}
	case sqlast.In:
		for _, item := range v.List {
			if err := validateKeyOperand(item); err != nil {
				return err
			}
		}
	case sqlast.Select:
		for _, w := range v.Where {
			if err := Validate(w); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateKeyOperand(n sqlast.Node) error {
	if v, ok := n.(sqlast.Value); ok && v.Kind != sqlast.ValueNumeric {
		return errors.Wrapf(ErrUnsafeValue, "value %q", v.Raw)
	}
	return nil
}
