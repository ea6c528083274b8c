// Package sqldialect provides the per-database hooks the SQL compiler
// and table segments consult: identifier quoting, MD5-to-integer
// folding, and text casting. Every Dialect must be bit-stable with
// every other Dialect — two dialects applied to logically identical
// row values must produce identical integer checksums, or cross-database
// bisection silently miscompares (spec.md §4.2).
package sqldialect

import "fmt"

// CHECKSUMHexDigits is the number of trailing MD5 hex digits folded
// into each row's checksum integer; 15 digits keep every row's value
// below 2^60.
const CHECKSUMHexDigits = 15

// MD5HexDigits is the full width of an MD5 hex digest.
const MD5HexDigits = 32

// CHECKSUMBitSize is CHECKSUMHexDigits hex digits, in bits.
const CHECKSUMBitSize = CHECKSUMHexDigits << 2 // 60

// CHECKSUMMask is 2^CHECKSUMBitSize - 1.
const CHECKSUMMask uint64 = (1 << CHECKSUMBitSize) - 1

// Dialect is the per-database hook set described in spec.md §4.2.
type Dialect interface {
	// Name identifies the dialect for logging and driver selection.
	Name() string
	// Quote renders an already dot-joined identifier string as a
	// dialect-quoted identifier. It must not be called per path
	// component — sqlast.Path is joined once before quoting.
	Quote(identifier string) string
	// MD5ToInt wraps a SQL expression so the result is a non-negative
	// integer derived from the last CHECKSUMHexDigits hex digits of
	// md5(expr).
	MD5ToInt(expr string) string
	// ToString casts a SQL expression to the dialect's text type.
	ToString(expr string) string
}

// Postgres is the PostgreSQL dialect.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Quote(s string) string { return fmt.Sprintf(`"%s"`, s) }

func (Postgres) MD5ToInt(expr string) string {
	offset := 1 + MD5HexDigits - CHECKSUMHexDigits
	return fmt.Sprintf("('x' || substring(md5(%s), %d))::bit(%d)::bigint", expr, offset, CHECKSUMBitSize)
}

func (Postgres) ToString(expr string) string { return fmt.Sprintf("%s::varchar", expr) }

// MySQL is the MySQL/MariaDB dialect.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Quote(s string) string { return fmt.Sprintf("`%s`", s) }

func (MySQL) MD5ToInt(expr string) string {
	offset := 1 + MD5HexDigits - CHECKSUMHexDigits
	return fmt.Sprintf("cast(conv(substring(md5(%s), %d), 16, 10) as unsigned)", expr, offset)
}

func (MySQL) ToString(expr string) string { return fmt.Sprintf("cast(%s as char)", expr) }

// Redshift reuses Postgres's quoting but folds checksums with strtol,
// matching Redshift's lack of a native bit(N) cast chain.
type Redshift struct {
	Postgres
}

func (Redshift) Name() string { return "redshift" }

func (Redshift) MD5ToInt(expr string) string {
	offset := 1 + MD5HexDigits - CHECKSUMHexDigits
	return fmt.Sprintf("strtol(substring(md5(%s), %d), 16)::decimal(38)", expr, offset)
}

// MsSQL is the Microsoft SQL Server dialect.
type MsSQL struct{}

func (MsSQL) Name() string { return "mssql" }

func (MsSQL) Quote(s string) string { return fmt.Sprintf("[%s]", s) }

func (MsSQL) MD5ToInt(expr string) string {
	// The last 8 digest bytes as a bigint, masked to the low
	// CHECKSUMBitSize bits (the last CHECKSUMHexDigits hex digits).
	return fmt.Sprintf("CONVERT(decimal(38,0), CONVERT(bigint, SUBSTRING(HashBytes('MD5', %s), 9, 8)) & %d)", expr, CHECKSUMMask)
}

func (MsSQL) ToString(expr string) string { return fmt.Sprintf("CONVERT(varchar, %s)", expr) }

// BigQuery is Google BigQuery's dialect.
type BigQuery struct{}

func (BigQuery) Name() string { return "bigquery" }

func (BigQuery) Quote(s string) string { return fmt.Sprintf("`%s`", s) }

func (BigQuery) MD5ToInt(expr string) string {
	// TO_HEX(md5(...)) returns 32 hex chars; offset 18 keeps the last 15.
	offset := 1 + MD5HexDigits - CHECKSUMHexDigits
	return fmt.Sprintf("cast(cast( ('0x' || substr(TO_HEX(md5(%s)), %d)) as int64) as numeric)", expr, offset)
}

func (BigQuery) ToString(expr string) string { return fmt.Sprintf("CAST(%s AS STRING)", expr) }

// Snowflake identifiers are case-insensitive by default and are left
// unquoted; Snowflake folds checksums with its native BITAND/numeric
// md5 functions rather than a hex substring.
type Snowflake struct{}

func (Snowflake) Name() string { return "snowflake" }

func (Snowflake) Quote(s string) string { return s }

func (Snowflake) MD5ToInt(expr string) string {
	return fmt.Sprintf("BITAND(md5_number_lower64(%s), %d)", expr, CHECKSUMMask)
}

func (Snowflake) ToString(expr string) string { return fmt.Sprintf("CAST(%s AS VARCHAR)", expr) }

var (
	_ Dialect = Postgres{}
	_ Dialect = MySQL{}
	_ Dialect = Redshift{}
	_ Dialect = MsSQL{}
	_ Dialect = BigQuery{}
	_ Dialect = Snowflake{}
)
