// Package dialect captures the per-database SQL differences the
// assembler needs: bind placeholder syntax and pagination wrapping.
package dialect

import "fmt"

// Name is one of the recognized databaseDialect configuration values.
type Name string

const (
	Oracle11g Name = "ORACLE_11G"
	Oracle12c Name = "ORACLE_12C+"
	Postgres  Name = "POSTGRESQL"
	MySQL     Name = "MYSQL"
	MariaDB   Name = "MARIADB"
	SQLServer Name = "SQLSERVER"
	H2        Name = "H2"
	HSQLDB    Name = "HSQLDB"
)

// PaginationStrategy selects which of the three supported pagination
// constructs a dialect emits.
type PaginationStrategy int

const (
	// StrategyRowNumWrap is the Oracle 11g ROWNUM double-wrap.
	StrategyRowNumWrap PaginationStrategy = iota
	// StrategyOffsetFetch is the ANSI SQL:2008 OFFSET/FETCH construct
	// (Oracle 12c+, PostgreSQL, SQL Server 2012+, and HSQLDB which
	// implements the same standard clause).
	StrategyOffsetFetch
	// StrategyLimitOffset is MySQL/MariaDB/H2's LIMIT/OFFSET.
	StrategyLimitOffset
)

// Dialect is the minimal per-database surface the SQL assembler needs.
type Dialect interface {
	Name() Name
	// Placeholder returns the positional bind marker for the given
	// 1-based index, used only at final translation time when handing
	// SQL to database/sql (the template itself always uses :name binds).
	Placeholder(index int) string
	PaginationStrategy() PaginationStrategy
}

type base struct {
	name     Name
	strategy PaginationStrategy
}

func (b base) Name() Name                            { return b.name }
func (b base) PaginationStrategy() PaginationStrategy { return b.strategy }

type dollarDialect struct{ base }

func (dollarDialect) Placeholder(index int) string { return fmt.Sprintf("$%d", index) }

type questionDialect struct{ base }

func (questionDialect) Placeholder(int) string { return "?" }

type oracleDialect struct{ base }

func (oracleDialect) Placeholder(index int) string { return fmt.Sprintf(":%d", index) }

type sqlServerDialect struct{ base }

func (sqlServerDialect) Placeholder(index int) string { return fmt.Sprintf("@p%d", index) }

// New returns the Dialect for a recognized databaseDialect name.
func New(name Name) (Dialect, error) {
	switch name {
	case Oracle11g:
		return oracleDialect{base{name, StrategyRowNumWrap}}, nil
	case Oracle12c:
		return oracleDialect{base{name, StrategyOffsetFetch}}, nil
	case Postgres:
		return dollarDialect{base{name, StrategyOffsetFetch}}, nil
	case SQLServer:
		return sqlServerDialect{base{name, StrategyOffsetFetch}}, nil
	case MySQL, MariaDB, H2:
		return questionDialect{base{name, StrategyLimitOffset}}, nil
	case HSQLDB:
		return questionDialect{base{name, StrategyOffsetFetch}}, nil
	default:
		return nil, fmt.Errorf("dialect: unrecognized databaseDialect %q", name)
	}
}
