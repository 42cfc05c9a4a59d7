// Package driver registers the database/sql drivers this engine can open
// a connection pool against, maps a configured dialect to the driver name
// sql.Open expects, and opens the pool itself. The blank driver imports
// live here rather than in main so cmd/ stays thin.
package driver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // sqlserver
	_ "github.com/go-sql-driver/mysql"   // mysql / mariadb
	_ "github.com/godror/godror"         // oracle (godror)
	_ "github.com/lib/pq"                // postgres
	_ "github.com/mattn/go-sqlite3"      // sqlite / h2-like embedded fallback / hsqldb-like embedded fallback

	"github.com/queryreg/engine/internal/dialect"
)

// Pool sizing and ping-on-startup timeout. A query engine has no
// business serving requests against a pool that never proved it could
// reach the database.
const (
	MaxOpenConns    = 25
	MaxIdleConns    = 5
	ConnMaxLifetime = 5 * time.Minute
	PingTimeout     = 5 * time.Second
)

// NameFor returns the database/sql driver name registered for d.
func NameFor(d dialect.Name) (string, error) {
	switch d {
	case dialect.Postgres:
		return "postgres", nil
	case dialect.MySQL, dialect.MariaDB:
		return "mysql", nil
	case dialect.Oracle11g, dialect.Oracle12c:
		return "godror", nil
	case dialect.SQLServer:
		return "sqlserver", nil
	case dialect.H2, dialect.HSQLDB:
		// Neither H2 nor HSQLDB ships a pure-Go database/sql driver in
		// this pack; sqlite3 is the closest embedded, file-based
		// fallback for local development and tests.
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("driver: no database/sql driver mapped for dialect %q", d)
	}
}

// Open resolves d's driver name, opens a pool against dsn, sizes it per
// the pool constants above, and pings it within PingTimeout before
// returning — so a misconfigured DSN fails at startup rather than on the
// first request.
func Open(ctx context.Context, d dialect.Name, dsn string) (*sql.DB, error) {
	name, err := NameFor(d)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("driver: opening %s connection: %w", name, err)
	}

	db.SetMaxOpenConns(MaxOpenConns)
	db.SetMaxIdleConns(MaxIdleConns)
	db.SetConnMaxLifetime(ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("driver: pinging %s connection: %w", name, err)
	}

	return db, nil
}
