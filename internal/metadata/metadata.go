// Package metadata builds a query's ahead-of-time column metadata:
// column names, positions and advertised SQL types discovered from the
// SQL template without ever fetching a row of real data, so the engine
// can report attribute metadata before the first execution. Metadata
// comes from database/sql's own *sql.Rows.ColumnTypes rather than a
// driver-specific catalog query.
package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/queryreg/engine/internal/dialect"
	"github.com/queryreg/engine/internal/query"
	"github.com/queryreg/engine/internal/queryerr"
	"github.com/queryreg/engine/internal/sqlassembler"
	"github.com/queryreg/engine/internal/types"
)

// Build resolves def's column metadata against db and publishes it onto
// def via PublishMetadata. The probe is always wrapped in a `WHERE 1=0`
// guard so the database reports the statement's columns without ever
// fetching a row of real data. A declared non-virtual attribute whose
// alias resolves to no column is a logged warning, never a failure.
// logger may be nil.
func Build(ctx context.Context, db *sql.DB, def *query.QueryDefinition, d dialect.Dialect, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	rows, err := describe(ctx, db, def, d)
	if err != nil {
		return queryerr.Wrap(queryerr.CodeExecutionErr, "building metadata cache", err).WithQuery(def.Name)
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return queryerr.Wrap(queryerr.CodeExecutionErr, "reading column types", err).WithQuery(def.Name)
	}

	cache := &query.MetadataCache{
		ColumnIndex:      make(map[string]int, len(cols)),
		ColumnNames:      make([]string, len(cols)),
		ColumnLabels:     make([]string, len(cols)),
		SQLType:          make(map[string]string, len(cols)),
		Kind:             make(map[string]types.Kind, len(cols)),
		AttributeIndex:   make(map[string]int, len(def.Attributes)),
		AttributeSQLType: make(map[string]string, len(def.Attributes)),
		ColumnCount:      len(cols),
	}
	for i, col := range cols {
		upper := strings.ToUpper(col.Name())
		cache.ColumnIndex[upper] = i
		cache.ColumnNames[i] = upper
		cache.ColumnLabels[i] = col.Name()
		cache.SQLType[upper] = col.DatabaseTypeName()
		cache.Kind[upper] = types.KindFromSQLType(col.DatabaseTypeName())
	}

	for _, name := range def.AttributeOrder {
		attr := def.Attributes[name]
		if attr == nil || attr.Virtual {
			continue
		}
		key := attr.Alias
		if key == "" {
			key = attr.Name
		}
		key = strings.ToUpper(key)
		idx, ok := cache.ColumnIndex[key]
		if !ok {
			logger.Warn("attribute resolves to no result-set column",
				zap.String("query", def.Name), zap.String("attribute", name), zap.String("column", key))
			continue
		}
		cache.AttributeIndex[name] = idx
		cache.AttributeSQLType[name] = cache.SQLType[key]
	}

	def.PublishMetadata(cache)
	return nil
}

// describe obtains result-set metadata for def without fetching a row
// of real data. The assembled SQL (criteria resolved, binds filled from
// declared defaults, or nil where a default is absent) is wrapped in a
// `WHERE 1=0` guard so the database plans the statement and reports its
// columns but never returns rows. If the assembled probe fails — a
// driver that chokes on nil dummy binds, say — the raw template is
// probed with the same zero-row guard.
func describe(ctx context.Context, db *sql.DB, def *query.QueryDefinition, d dialect.Dialect) (*sql.Rows, error) {
	emptyCtx := query.NewContext(def)
	for name, p := range def.Params {
		if p.DefaultValue != nil {
			emptyCtx.Params[name] = p.DefaultValue
		} else {
			emptyCtx.Params[name] = nil
		}
	}

	assembled, err := sqlassembler.Assemble(def, emptyCtx, d)
	if err == nil {
		probe := fmt.Sprintf("SELECT * FROM (\n%s\n) qre_describe WHERE 1=0", assembled.SQL)
		if rows, probeErr := db.QueryContext(ctx, probe, assembled.Args...); probeErr == nil {
			return rows, nil
		}
	}

	wrapped := fmt.Sprintf("SELECT * FROM (\n%s\n) qre_describe WHERE 1=0", def.SQL)
	return db.QueryContext(ctx, wrapped)
}

// RegisterDynamic registers def with reg, first merging any undeclared
// SQL columns in as additional attributes when def.DynamicAttributesEnabled
// is set (skipping any name already statically defined), then builds
// def's metadata cache. Registration, and therefore publication to
// concurrent readers, only happens once both steps succeed, preserving
// Registry.Register's publish-once, no-partial-definition guarantee.
func RegisterDynamic(ctx context.Context, reg *query.Registry, db *sql.DB, d dialect.Dialect, def *query.QueryDefinition, logger *zap.Logger) error {
	if def.DynamicAttributesEnabled {
		if err := mergeDynamicAttributes(ctx, db, def, d); err != nil {
			return err
		}
	}
	if err := reg.Register(def); err != nil {
		return err
	}
	return Build(ctx, db, def, d, logger)
}

// mergeDynamicAttributes discovers def's result-set columns and adds one
// non-virtual, filterable, sortable AttributeDef per column that is not
// already backed by a statically declared attribute's Name or Alias
// (case-insensitive), named via def.DynamicNaming (or DefaultDynamicNaming
// if unset) and typed via types.KindFromSQLType. It mutates def directly;
// callers must only do so before def is published to a Registry.
func mergeDynamicAttributes(ctx context.Context, db *sql.DB, def *query.QueryDefinition, d dialect.Dialect) error {
	rows, err := describe(ctx, db, def, d)
	if err != nil {
		return queryerr.Wrap(queryerr.CodeExecutionErr, "discovering dynamic attributes", err).WithQuery(def.Name)
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return queryerr.Wrap(queryerr.CodeExecutionErr, "reading column types", err).WithQuery(def.Name)
	}

	strategy := def.DynamicNaming
	if strategy == nil {
		strategy = query.DefaultDynamicNaming
	}

	known := make(map[string]bool, len(def.Attributes))
	for _, a := range def.Attributes {
		if a.Alias != "" {
			known[strings.ToUpper(a.Alias)] = true
		}
		known[strings.ToUpper(a.Name)] = true
	}

	for _, col := range cols {
		upper := strings.ToUpper(col.Name())
		if known[upper] {
			continue
		}
		name := strategy(upper)
		if _, exists := def.Attributes[name]; exists || name == "" {
			continue
		}
		def.Attributes[name] = &query.AttributeDef{
			Name:       name,
			Alias:      upper,
			Type:       types.KindFromSQLType(col.DatabaseTypeName()),
			Filterable: true,
			Sortable:   true,
		}
		def.AttributeOrder = append(def.AttributeOrder, name)
		known[upper] = true
	}
	return nil
}

// PreWarm builds metadata for every query in reg concurrently. When
// failOnStartup is true, the first error aborts the remaining fan-out and
// is returned; otherwise each failure is logged by the caller via the
// returned per-query error map and startup continues.
func PreWarm(ctx context.Context, db *sql.DB, reg *query.Registry, d dialect.Dialect, failOnStartup bool, logger *zap.Logger) (map[string]error, error) {
	names := reg.Names()
	failures := make(map[string]error)

	if failOnStartup {
		g, gctx := errgroup.WithContext(ctx)
		for _, name := range names {
			name := name
			g.Go(func() error {
				def, err := reg.Get(name)
				if err != nil {
					return err
				}
				return Build(gctx, db, def, d, logger)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return failures, nil
	}

	var g errgroup.Group
	var mu sync.Mutex
	for _, name := range names {
		name := name
		g.Go(func() error {
			def, err := reg.Get(name)
			if err == nil {
				err = Build(ctx, db, def, d, logger)
			}
			if err != nil {
				mu.Lock()
				failures[name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures, nil
}
