// Package config holds the concrete structures behind the "external
// interfaces" spec.md §6 describes: connection descriptors, per-side
// table descriptors, and the diff's tunable parameters. Connection
// pooling, cloud-API wizards, and dbt project integration stay out of
// scope (spec.md §1); this package only loads the handful of fields
// the diff engine itself needs.
package config

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Connection describes one side's database connection. DriverName and
// DSN follow database/sql.Open conventions; Dialect names one of
// sqldialect's concrete dialects ("postgres", "mysql", "mssql",
// "redshift", "snowflake", "bigquery").
type Connection struct {
	DriverName string `toml:"driver"`
	DSN        string `toml:"dsn"`
	Dialect    string `toml:"dialect"`
}

// TableSpec names a table, its key column, and the extra columns to
// include in the checksum, on one side of the diff (spec.md §6).
type TableSpec struct {
	Schema       string   `toml:"schema"`
	Table        string   `toml:"table"`
	KeyColumn    string   `toml:"key_column"`
	KeyType      string   `toml:"key_type"`
	ExtraColumns []string `toml:"extra_columns"`
}

// Path returns the table's dotted path, schema-qualified when present.
func (t TableSpec) Path() []string {
	if t.Schema == "" {
		return []string{t.Table}
	}
	return []string{t.Schema, t.Table}
}

// Options is the full set of parameters spec.md §6 lists as consumed
// from the CLI/config layer.
type Options struct {
	Side1 Connection `toml:"side1"`
	Side2 Connection `toml:"side2"`

	Table1 TableSpec `toml:"table1"`
	Table2 TableSpec `toml:"table2"`

	BisectionFactor    int  `toml:"bisection_factor"`
	BisectionThreshold int  `toml:"bisection_threshold"`
	Limit              int  `toml:"limit"`
	Stats              bool `toml:"stats"`
	Debug              bool `toml:"debug"`
	Verbose            bool `toml:"verbose"`
	PoolSize           int  `toml:"pool_size"`
}

// ConfigError wraps an invalid configuration (spec.md §7).
type ConfigError struct{ msg string }

func (e *ConfigError) Error() string { return "config: " + e.msg }

// Validate enforces the parameter combinations spec.md §7 names as
// fatal ConfigErrors: factor < 2, factor >= threshold, and limit
// combined with stats (a byte-for-byte row limit makes no sense when
// only a summary is requested).
func (o *Options) Validate() error {
	if o.BisectionFactor < 2 {
		return &ConfigError{msg: "bisection_factor must be at least 2"}
	}
	if o.BisectionThreshold <= 0 {
		return &ConfigError{msg: "bisection_threshold must be positive"}
	}
	if o.BisectionFactor >= o.BisectionThreshold {
		return &ConfigError{msg: "bisection_factor must be less than bisection_threshold"}
	}
	if o.Limit > 0 && o.Stats {
		return &ConfigError{msg: "limit and stats are mutually exclusive"}
	}
	if o.Table1.KeyColumn == "" || o.Table2.KeyColumn == "" {
		return &ConfigError{msg: "both tables require a key_column"}
	}
	return nil
}

// Defaults fills in spec.md §4.5's default tunables where the caller
// left them at their zero value.
func (o *Options) Defaults() {
	if o.BisectionFactor == 0 {
		o.BisectionFactor = 32
	}
	if o.BisectionThreshold == 0 {
		o.BisectionThreshold = 1024 * 1024
	}
	if o.PoolSize == 0 {
		o.PoolSize = 1
	}
}

// LoadTOML reads an Options struct from a TOML file. It is
// deliberately minimal — no environment variable interpolation, no
// secrets resolution, no dbt project discovery — those remain named
// Non-goals (spec.md §1).
func LoadTOML(path string) (*Options, error) {
	var o Options
	if _, err := toml.DecodeFile(path, &o); err != nil {
		return nil, errors.Wrapf(err, "config: loading %s", path)
	}
	o.Defaults()
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &o, nil
}
