package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowdelta/rowdelta/config"
)

const sampleTOML = `
bisection_factor = 16
bisection_threshold = 2048
limit = 0
stats = true

[side1]
driver = "postgres"
dsn = "postgres://localhost/db1"
dialect = "postgres"

[side2]
driver = "sqlserver"
dsn = "sqlserver://localhost/db2"
dialect = "mssql"

[table1]
schema = "public"
table = "orders"
key_column = "id"
extra_columns = ["total", "status"]

[table2]
table = "orders"
key_column = "id"
extra_columns = ["total", "status"]
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rowdelta.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadTOMLParsesAllFields(t *testing.T) {
	path := writeTemp(t, sampleTOML)

	opts, err := config.LoadTOML(path)
	require.NoError(t, err)

	assert.Equal(t, 16, opts.BisectionFactor)
	assert.Equal(t, 2048, opts.BisectionThreshold)
	assert.True(t, opts.Stats)
	assert.Equal(t, "postgres", opts.Side1.Dialect)
	assert.Equal(t, "mssql", opts.Side2.Dialect)
	assert.Equal(t, []string{"public", "orders"}, opts.Table1.Path())
	assert.Equal(t, []string{"orders"}, opts.Table2.Path())
	assert.Equal(t, []string{"total", "status"}, opts.Table1.ExtraColumns)
}

func TestLoadTOMLAppliesDefaultsWhenOmitted(t *testing.T) {
	path := writeTemp(t, `
[side1]
driver = "postgres"
dsn = "x"
dialect = "postgres"
[side2]
driver = "postgres"
dsn = "x"
dialect = "postgres"
[table1]
table = "t"
key_column = "id"
[table2]
table = "t"
key_column = "id"
`)

	opts, err := config.LoadTOML(path)
	require.NoError(t, err)
	assert.Equal(t, 32, opts.BisectionFactor)
	assert.Equal(t, 1024*1024, opts.BisectionThreshold)
	assert.Equal(t, 1, opts.PoolSize)
}

func TestLoadTOMLRejectsMissingKeyColumn(t *testing.T) {
	path := writeTemp(t, `
[side1]
driver = "postgres"
dsn = "x"
dialect = "postgres"
[side2]
driver = "postgres"
dsn = "x"
dialect = "postgres"
[table1]
table = "t"
[table2]
table = "t"
key_column = "id"
`)

	_, err := config.LoadTOML(path)
	require.Error(t, err)
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadTOMLRejectsLimitAndStatsTogether(t *testing.T) {
	path := writeTemp(t, `
limit = 10
stats = true
[side1]
driver = "postgres"
dsn = "x"
dialect = "postgres"
[side2]
driver = "postgres"
dsn = "x"
dialect = "postgres"
[table1]
table = "t"
key_column = "id"
[table2]
table = "t"
key_column = "id"
`)

	_, err := config.LoadTOML(path)
	require.Error(t, err)
}

func TestValidateRejectsFactorAboveThreshold(t *testing.T) {
	opts := &config.Options{
		BisectionFactor:    100,
		BisectionThreshold: 50,
		Table1:             config.TableSpec{KeyColumn: "id"},
		Table2:             config.TableSpec{KeyColumn: "id"},
	}
	err := opts.Validate()
	require.Error(t, err)
}

func TestLoadTOMLMissingFile(t *testing.T) {
	_, err := config.LoadTOML(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	assert.Error(t, err)
}
