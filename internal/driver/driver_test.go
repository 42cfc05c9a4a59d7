package driver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryreg/engine/internal/dialect"
	"github.com/queryreg/engine/internal/driver"
)

func TestNameFor(t *testing.T) {
	cases := []struct {
		dialect dialect.Name
		want    string
	}{
		{dialect.Postgres, "postgres"},
		{dialect.MySQL, "mysql"},
		{dialect.MariaDB, "mysql"},
		{dialect.Oracle11g, "godror"},
		{dialect.Oracle12c, "godror"},
		{dialect.SQLServer, "sqlserver"},
		{dialect.H2, "sqlite3"},
		{dialect.HSQLDB, "sqlite3"},
	}
	for _, c := range cases {
		t.Run(string(c.dialect), func(t *testing.T) {
			got, err := driver.NameFor(c.dialect)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestNameFor_UnrecognizedDialect(t *testing.T) {
	_, err := driver.NameFor(dialect.Name("NOT_A_DIALECT"))
	require.Error(t, err)
}
