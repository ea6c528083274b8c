// Package sqlast defines the dialect-agnostic relational expression tree
// that rowdelta compiles to SQL. It models exactly the operations the
// bisecting diff engine needs (projection, range predicates, row
// checksums, counting, and ordered row enumeration) rather than a
// general-purpose SQL grammar.
package sqlast

// Path is an ordered sequence of identifier components, e.g.
// ["myschema", "mytable"]. A Path is rendered by joining its parts with
// "." and quoting the whole joined string once, never per component —
// that is a property callers of sqlcompile rely on for Dialects whose
// quoting rules are not a simple per-identifier wrap (e.g. Snowflake's
// unquoted passthrough).
type Path []string

// Node is the marker interface for every AST variant. Node is a closed
// set: TableName, Value, Select, Enum, Checksum, Compare, In, Count, and
// Raw are the only implementations, matched exhaustively by
// sqlcompile.Compiler.Compile.
type Node interface {
	node()
}

// TableName renders as the dialect-quoted, dot-joined Path.
type TableName struct {
	Path Path
}

func (TableName) node() {}

// ValueKind distinguishes how a Value's payload should be rendered.
// spec.md leaves string/byte Values as an open question ("a limitation
// of the source: no internal escaping"); ValueKind lets callers that
// build Values from fully-trusted material (segment boundary keys,
// checkpoint candidates) say explicitly what they're providing instead
// of sqlast guessing from a Go type switch.
type ValueKind int

const (
	// ValueNumeric renders the payload verbatim as a decimal literal.
	ValueNumeric ValueKind = iota
	// ValueString renders the payload single-quoted, unescaped — matches
	// the original implementation's documented limitation.
	ValueString
	// ValueBytes renders the payload as a b'...' byte-string literal.
	ValueBytes
)

// Value is a scalar literal embedded directly in the compiled SQL.
type Value struct {
	Kind ValueKind
	// Raw holds the literal's textual form: decimal digits for
	// ValueNumeric, the unescaped string body for ValueString, the
	// already-decoded byte sequence rendered as hex for ValueBytes.
	Raw string
}

func (Value) node() {}

// NumericValue is a convenience constructor for the overwhelmingly
// common case (primary-key literals).
func NumericValue(decimal string) Value { return Value{Kind: ValueNumeric, Raw: decimal} }

// Select is SELECT <columns> [FROM <table>] [WHERE <where...>]
// [GROUP BY <group-by>] [ORDER BY <order-by>], joined with AND between
// WHERE clauses.
type Select struct {
	Columns []Node
	Table   Node // TableName, Enum, or nil
	Where   []Node
	GroupBy []Node
	OrderBy []Node
}

func (Select) node() {}

// Enum wraps a table in a derived table that assigns each row a 1-based
// sequential index under the given ordering:
//
//	(SELECT *, (row_number() over (ORDER BY <order>)) as idx FROM <table> ORDER BY <order>) tmp
type Enum struct {
	Table   Path
	OrderBy Node
}

func (Enum) node() {}

// Checksum is sum(md5_to_int(concat(to_string(expr)...))) over Exprs in
// order; order is load-bearing because it determines concatenation
// order inside the checksum (spec.md §3).
type Checksum struct {
	Exprs []Node
}

func (Checksum) node() {}

// Compare is a parenthesized binary comparison: (A op B).
type Compare struct {
	Op string
	A  Node
	B  Node
}

func (Compare) node() {}

// In is (Expr IN (List...)).
type In struct {
	Expr Node
	List []Node
}

func (In) node() {}

// Count is count(Column) if Column is non-empty, else count(*).
type Count struct {
	Column string
}

func (Count) node() {}

// Raw is a splice-escape: it compiles to its own text, verbatim.
// Callers must only build Raw from known-safe material — a column name
// already validated against the segment's schema, or a decimal literal
// produced by this package. Raw is never a safe place to put
// user-controlled string content.
type Raw struct {
	SQL string
}

func (Raw) node() {}

// Ident renders a bare identifier through Raw. It exists so callers
// constructing expressions (column references inside a Checksum, a
// Compare operand) don't need to know Raw is the escape hatch — same
// shape as the original implementation using the column name string
// directly wherever a SqlOrStr was accepted.
func Ident(name string) Node { return Raw{SQL: name} }
