// Package pipeline orchestrates one query execution end to end: timing,
// default injection, pre-processors, SQL assembly, the optional parity
// count, the fetch itself, row mapping/virtualization, and row and post
// processors.
package pipeline

import (
	"context"
	"database/sql"
	"time"

	"github.com/queryreg/engine/internal/dialect"
	"github.com/queryreg/engine/internal/query"
	"github.com/queryreg/engine/internal/queryerr"
	"github.com/queryreg/engine/internal/rowmapper"
	"github.com/queryreg/engine/internal/sqlassembler"
)

// Result is the outcome of one execution: the mapped rows plus the
// QueryContext, whose Pagination.Total, AppliedCriteria and
// ExecutionTimeMS fields the HTTP layer reads to build the response
// envelope.
type Result struct {
	Rows []*query.Row
	Ctx  *query.QueryContext
}

// Execute runs def's full pipeline against db using ctx as the
// already-populated request context (params, filters, sorts, pagination
// bound by the caller).
func Execute(execCtx context.Context, db *sql.DB, def *query.QueryDefinition, ctx *query.QueryContext, d dialect.Dialect) (*Result, error) {
	ctx.StartedAt = time.Now()
	defer func() {
		ctx.ExecutionTimeMS = time.Since(ctx.StartedAt).Milliseconds()
	}()

	if err := injectDefaults(def, ctx); err != nil {
		return nil, err
	}

	for _, pp := range def.PreProcessors {
		if err := pp(ctx); err != nil {
			return nil, queryerr.Wrap(queryerr.CodeExecutionErr, "pre-processor", err).WithQuery(def.Name)
		}
	}

	assembled, err := sqlassembler.Assemble(def, ctx, d)
	if err != nil {
		return nil, err
	}

	timeoutCtx := execCtx
	var cancel context.CancelFunc
	if def.QueryTimeout > 0 {
		timeoutCtx, cancel = context.WithTimeout(execCtx, def.QueryTimeout)
		defer cancel()
	}

	if def.PaginationEnabled && ctx.Pagination != nil && assembled.CountSQL != "" {
		// A failing count query degrades to total=0 rather than failing
		// the request: the page itself may still be useful even when the
		// parity count could not be obtained.
		total, err := fetchCount(timeoutCtx, db, def, assembled)
		if err != nil {
			ctx.Pagination.Total = 0
			ctx.CountError = err
		} else {
			ctx.Pagination.Total = total
		}
	}

	rows, err := fetchRows(timeoutCtx, db, def, assembled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mapped, err := rowmapper.Map(rows, ctx, nil)
	if err != nil {
		return nil, err
	}

	mapped = applyProjection(ctx, mapped)

	return &Result{Rows: mapped, Ctx: ctx}, nil
}

// ExecuteStream runs def's pipeline like Execute but hands mapped rows
// to onBatch in fixed-size batches instead of returning the accumulated
// page — for callers that stream the result out (CSV export). The count
// query is skipped: streaming callers ignore pagination, so there is no
// parity total to report. A definition with no aggregate calculators or
// post-processors streams incrementally with bounded memory; one that
// has them is buffered so those hooks see the full page, and onBatch
// receives the finished rows afterward.
func ExecuteStream(execCtx context.Context, db *sql.DB, def *query.QueryDefinition, ctx *query.QueryContext, d dialect.Dialect, onBatch func([]*query.Row) error) error {
	ctx.StartedAt = time.Now()
	defer func() {
		ctx.ExecutionTimeMS = time.Since(ctx.StartedAt).Milliseconds()
	}()

	if err := injectDefaults(def, ctx); err != nil {
		return err
	}
	for _, pp := range def.PreProcessors {
		if err := pp(ctx); err != nil {
			return queryerr.Wrap(queryerr.CodeExecutionErr, "pre-processor", err).WithQuery(def.Name)
		}
	}

	assembled, err := sqlassembler.Assemble(def, ctx, d)
	if err != nil {
		return err
	}

	timeoutCtx := execCtx
	var cancel context.CancelFunc
	if def.QueryTimeout > 0 {
		timeoutCtx, cancel = context.WithTimeout(execCtx, def.QueryTimeout)
		defer cancel()
	}

	rows, err := fetchRows(timeoutCtx, db, def, assembled)
	if err != nil {
		return err
	}
	defer rows.Close()

	_, err = rowmapper.Map(rows, ctx, onBatch)
	return err
}

// injectDefaults fills in any declared parameter's default value for
// params the request did not bind, so downstream assembly and processors
// always see a complete parameter set.
func injectDefaults(def *query.QueryDefinition, ctx *query.QueryContext) error {
	for name, pd := range def.Params {
		v, bound := ctx.Params[name]
		if !bound || v == nil {
			if pd.DefaultValue != nil {
				ctx.Params[name] = pd.DefaultValue
			} else if pd.Required {
				return queryerr.Newf(queryerr.CodeValidationErr,
					"required parameter %q was not supplied", name).WithQuery(def.Name)
			}
			continue
		}
		if pd.Validator != nil {
			if err := pd.Validator(v); err != nil {
				return queryerr.Wrap(queryerr.CodeValidationErr,
					"parameter "+name, err).WithQuery(def.Name)
			}
		}
		if pd.Processor != nil {
			processed, err := pd.Processor(v, ctx)
			if err != nil {
				return queryerr.Wrap(queryerr.CodeValidationErr,
					"processing parameter "+name, err).WithQuery(def.Name)
			}
			ctx.Params[name] = processed
		}
	}
	return nil
}

func fetchCount(ctx context.Context, db *sql.DB, def *query.QueryDefinition, assembled *sqlassembler.Assembled) (int, error) {
	row := db.QueryRowContext(ctx, assembled.CountSQL, assembled.CountArgs...)
	var total int
	if err := row.Scan(&total); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return 0, queryerr.Wrap(queryerr.CodeTimeoutErr, "count query timed out", err).WithQuery(def.Name)
		}
		return 0, queryerr.Wrap(queryerr.CodeExecutionErr, "executing count query", err).WithQuery(def.Name)
	}
	return total, nil
}

func fetchRows(ctx context.Context, db *sql.DB, def *query.QueryDefinition, assembled *sqlassembler.Assembled) (*sql.Rows, error) {
	rows, err := db.QueryContext(ctx, assembled.SQL, assembled.Args...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, queryerr.Wrap(queryerr.CodeTimeoutErr, "fetch query timed out", err).WithQuery(def.Name)
		}
		return nil, queryerr.Wrap(queryerr.CodeExecutionErr, "executing fetch query", err).WithQuery(def.Name)
	}
	return rows, nil
}

// applyProjection strips attributes the request's _select did not ask
// for, after virtualization so a calculator can still depend on an
// attribute the caller chose not to see in the final payload.
func applyProjection(ctx *query.QueryContext, rows []*query.Row) []*query.Row {
	if ctx.SelectedAttributes == nil {
		return rows
	}
	out := make([]*query.Row, len(rows))
	for i, row := range rows {
		out[i] = row.Project(ctx.SelectedAttributes)
	}
	return out
}
