package tablesegment

import (
	"fmt"
	"strconv"

	"github.com/rowdelta/rowdelta/sqlast"
)

// Key is a primary-key scalar: totally ordered and comparable across
// both databases in a diff. spec.md §9 leaves "non-integer keys" as an
// open question rather than guessing how to render them in a predicate
// ("the source renders keys as str(self.start) ... fine for ints,
// questionable for strings/bytes"); Key resolves it explicitly by
// making every key responsible for its own predicate rendering instead
// of TableSegment doing string conversion.
type Key interface {
	// Literal renders the key as the sqlast.Node to embed in a
	// predicate or IN-list.
	Literal() sqlast.Node
	// Less reports whether this key sorts strictly before other. Both
	// keys must be of the same concrete type; comparing across types
	// panics, since a diff only ever compares keys drawn from one
	// logical key domain.
	Less(other Key) bool
	// Equal reports key equality.
	Equal(other Key) bool
	String() string
}

// IntKey is the canonical, and by far most common, Key: a signed
// 64-bit integer primary key.
type IntKey int64

func (k IntKey) Literal() sqlast.Node { return sqlast.NumericValue(strconv.FormatInt(int64(k), 10)) }
func (k IntKey) Less(other Key) bool  { return k < other.(IntKey) }
func (k IntKey) Equal(other Key) bool { return k == other.(IntKey) }
func (k IntKey) String() string       { return strconv.FormatInt(int64(k), 10) }

// StringKey is a totally-ordered string primary key, comparable with
// <= and < literally in SQL (e.g. a UUID stored as text, a zero-padded
// identifier). spec.md permits this "if comparable with <= and <
// literally in SQL on both sides" — it is the caller's responsibility
// to pick a collation that makes that true on both databases.
// Its Literal is a ValueString, which sqlcompile.Validate rejects as a
// Compare or In operand, so gateway.SQLGateway refuses the range-bounded
// and checkpoint-lookup queries of a StringKey segment.
type StringKey string

func (k StringKey) Literal() sqlast.Node { return sqlast.Value{Kind: sqlast.ValueString, Raw: string(k)} }
func (k StringKey) Less(other Key) bool  { return k < other.(StringKey) }
func (k StringKey) Equal(other Key) bool { return k == other.(StringKey) }
func (k StringKey) String() string       { return string(k) }

// Codec turns a raw value decoded off the wire (an int64, string, or
// []byte from database/sql) back into a Key of the segment's key
// domain. TableSegment needs this for choose_checkpoints and
// find_checkpoints, which round-trip key values through the database.
type Codec interface {
	Decode(v any) (Key, error)
}

// IntCodec decodes IntKey values.
type IntCodec struct{}

func (IntCodec) Decode(v any) (Key, error) {
	switch n := v.(type) {
	case int64:
		return IntKey(n), nil
	case int:
		return IntKey(n), nil
	case []byte:
		i, err := strconv.ParseInt(string(n), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tablesegment: decoding int key from %q: %w", n, err)
		}
		return IntKey(i), nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tablesegment: decoding int key from %q: %w", n, err)
		}
		return IntKey(i), nil
	default:
		return nil, fmt.Errorf("tablesegment: cannot decode %T as IntKey", v)
	}
}

// StringCodec decodes StringKey values.
type StringCodec struct{}

func (StringCodec) Decode(v any) (Key, error) {
	switch s := v.(type) {
	case string:
		return StringKey(s), nil
	case []byte:
		return StringKey(string(s)), nil
	default:
		return nil, fmt.Errorf("tablesegment: cannot decode %T as StringKey", v)
	}
}
