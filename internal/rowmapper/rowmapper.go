// Package rowmapper turns *sql.Rows into query.Row values: raw
// upper-cased columns, attribute-keyed projection, virtual/calculator
// attributes, row processors, and formatters, batching the fetch so a
// large page is materialized incrementally rather than all at once.
package rowmapper

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/queryreg/engine/internal/query"
	"github.com/queryreg/engine/internal/queryerr"
)

// defaultBatchSize is the row-batch threshold used when a definition
// does not set its own FetchSize.
const defaultBatchSize = 1000

// batchSize returns the row count at which Map hands completed batches
// to onBatch rather than holding the whole page in memory, honoring the
// definition's FetchSize when set.
func batchSize(def *query.QueryDefinition) int {
	if def.FetchSize > 0 {
		return def.FetchSize
	}
	return defaultBatchSize
}

// Map scans rows into query.Rows in fixed stages: per-row projection and
// virtual calculators first, then aggregate calculators over the full
// page, then the definition's row processors, then attribute formatters
// (always last per row), then post-processors. onBatch, if non-nil, is
// invoked with each completed FetchSize-row batch; when the definition
// has no aggregate calculators or post-processors the batches are
// dropped after hand-off and the returned slice is empty — the batches
// are the result. A definition that does carry page-level hooks is
// buffered so those hooks see the full page, and onBatch receives the
// finished rows afterward.
func Map(rows *sql.Rows, ctx *query.QueryContext, onBatch func([]*query.Row) error) ([]*query.Row, error) {
	def := ctx.Definition

	columns, err := rows.Columns()
	if err != nil {
		return nil, queryerr.Wrap(queryerr.CodeExecutionErr, "reading result columns", err).WithQuery(def.Name)
	}
	upperColumns := make([]string, len(columns))
	for i, c := range columns {
		upperColumns[i] = strings.ToUpper(c)
	}

	scanTargets := make([]interface{}, len(columns))
	scanValues := make([]interface{}, len(columns))
	for i := range scanTargets {
		scanTargets[i] = &scanValues[i]
	}

	// A streaming caller whose definition has no page-level hooks can be
	// served batch by batch without ever holding the full result set.
	stream := onBatch != nil && len(def.PostProcessors) == 0 && !hasAggregates(def)
	threshold := batchSize(def)

	var all []*query.Row
	var batch []*query.Row

	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, queryerr.Wrap(queryerr.CodeExecutionErr, "scanning row", err).WithQuery(def.Name)
		}

		row := query.NewRow()
		for i, col := range upperColumns {
			row.SetRaw(col, normalizeDriverValue(scanValues[i]))
		}

		if err := project(def, ctx, row); err != nil {
			return nil, err
		}

		if !stream {
			all = append(all, row)
			continue
		}
		batch = append(batch, row)
		if len(batch) >= threshold {
			if err := finishRows(def, ctx, batch); err != nil {
				return nil, err
			}
			if err := onBatch(batch); err != nil {
				return nil, err
			}
			batch = nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, queryerr.Wrap(queryerr.CodeExecutionErr, "iterating result set", err).WithQuery(def.Name)
	}

	if stream {
		if len(batch) > 0 {
			if err := finishRows(def, ctx, batch); err != nil {
				return nil, err
			}
			if err := onBatch(batch); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	if err := applyAggregateCalculators(def, ctx, all); err != nil {
		return nil, err
	}
	if err := finishRows(def, ctx, all); err != nil {
		return nil, err
	}

	result := all
	for _, pp := range def.PostProcessors {
		result, err = pp(result, ctx)
		if err != nil {
			return nil, queryerr.Wrap(queryerr.CodeExecutionErr, "post-processor", err).WithQuery(def.Name)
		}
	}

	if onBatch != nil {
		for start := 0; start < len(result); start += threshold {
			end := start + threshold
			if end > len(result) {
				end = len(result)
			}
			if err := onBatch(result[start:end]); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

func hasAggregates(def *query.QueryDefinition) bool {
	for _, name := range def.AttributeOrder {
		if attr := def.Attributes[name]; attr != nil && attr.Aggregate != nil {
			return true
		}
	}
	return false
}

// project copies each declared non-virtual attribute's value from the
// row's raw columns and runs virtual per-row calculators. Values stay in
// their coerced types here; formatters run later, after row processors.
// Aggregate calculators (which need the full page) run afterward in
// applyAggregateCalculators.
func project(def *query.QueryDefinition, ctx *query.QueryContext, row *query.Row) error {
	for _, name := range def.AttributeOrder {
		attr := def.Attributes[name]
		if attr == nil || attr.Aggregate != nil {
			continue
		}

		var value interface{}
		switch {
		case attr.Calculator != nil:
			v, err := attr.Calculator(row, ctx)
			if err != nil {
				// A calculator error degrades only this attribute's value
				// to nil, it never aborts the page.
				ctx.Log().Warn("virtual attribute calculator failed",
					zap.String("query", def.Name), zap.String("attribute", name), zap.Error(err))
				value = nil
			} else {
				value = v
			}
		default:
			column := attr.Alias
			if column == "" {
				column = strings.ToUpper(attr.Name)
			} else {
				column = strings.ToUpper(column)
			}
			raw, _ := row.GetRaw(column)
			value = raw
		}
		row.Set(name, value)
	}
	return nil
}

// applyAggregateCalculators runs every attribute whose calculator needs
// visibility into the whole fetched page, writing each result back into
// its row. Formatters are deliberately not applied here; row processors
// still get the typed values first.
func applyAggregateCalculators(def *query.QueryDefinition, ctx *query.QueryContext, rows []*query.Row) error {
	for _, name := range def.AttributeOrder {
		attr := def.Attributes[name]
		if attr == nil || attr.Aggregate == nil {
			continue
		}
		values, err := attr.Aggregate(rows, ctx)
		if err != nil {
			return queryerr.Wrap(queryerr.CodeExecutionErr,
				fmt.Sprintf("aggregate calculator for %q", name), err).WithQuery(def.Name)
		}
		if len(values) != len(rows) {
			return queryerr.Newf(queryerr.CodeExecutionErr,
				"aggregate calculator for %q returned %d values for %d rows", name, len(values), len(rows)).WithQuery(def.Name)
		}
		for i, v := range values {
			rows[i].Set(name, v)
		}
	}
	return nil
}

// finishRows runs the definition's row processors over rows — logging
// and degrading a single row on error, or aborting per
// def.StrictRowProcessors — then applies attribute formatters, which
// always run last per row and overwrite the attribute value.
func finishRows(def *query.QueryDefinition, ctx *query.QueryContext, rows []*query.Row) error {
	for _, row := range rows {
		for _, rp := range def.RowProcessors {
			if err := rp(row, ctx); err != nil {
				if def.StrictRowProcessors {
					return queryerr.Wrap(queryerr.CodeExecutionErr, "row processor", err).WithQuery(def.Name)
				}
				ctx.Log().Warn("row processor failed, degrading row",
					zap.String("query", def.Name), zap.Error(err))
				degradeRow(row, err)
			}
		}
		applyFormatters(def, row)
	}
	return nil
}

// applyFormatters overwrites each formatted attribute's value with its
// rendered string form. Nil values stay nil.
func applyFormatters(def *query.QueryDefinition, row *query.Row) {
	for _, name := range def.AttributeOrder {
		attr := def.Attributes[name]
		if attr == nil || attr.Formatter == nil {
			continue
		}
		if v, ok := row.Get(name); ok && v != nil {
			row.Set(name, attr.Formatter(v))
		}
	}
}

// degradeRow nils every projected attribute value on a row whose
// processor failed, rather than failing the whole page (the default
// StrictRowProcessors=false policy).
func degradeRow(row *query.Row, _ error) {
	for _, key := range row.Keys() {
		row.Set(key, nil)
	}
}

// normalizeDriverValue converts driver-native scan results ([]byte for
// TEXT/VARCHAR on some drivers) into the plain Go values the response
// envelope should carry.
func normalizeDriverValue(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t
	default:
		return t
	}
}
