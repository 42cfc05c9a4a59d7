// Package query holds the declarative data model a query is defined
// with: attributes, parameters, criteria, the definition itself, plus
// the thread-safe Registry queries are published into and the Validator
// definitions must pass before publication.
package query

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/queryreg/engine/internal/dialect"
	"github.com/queryreg/engine/internal/types"
)

// RowCalculator computes a virtual attribute's value from a single row
// already populated with its declared (non-virtual) attributes.
type RowCalculator func(row *Row, ctx *QueryContext) (interface{}, error)

// AggregateCalculator computes a virtual attribute's value with visibility
// into the full fetched page, for calculators that need cross-row context
// (running totals, rank-within-page) rather than only their own row.
type AggregateCalculator func(rows []*Row, ctx *QueryContext) ([]interface{}, error)

// Formatter renders an already-coerced attribute value for output.
type Formatter func(value interface{}) string

// ParamProcessor transforms a bound parameter value before it is used to
// assemble or execute SQL.
type ParamProcessor func(value interface{}, ctx *QueryContext) (interface{}, error)

// ParamValidator rejects an invalid bound parameter value.
type ParamValidator func(value interface{}) error

// CriteriaCondition decides whether a named criterion is included in the
// assembled SQL. A nil CriteriaCondition falls back to the default rule:
// include the criterion iff every bind parameter it references is bound
// and non-nil in the QueryContext.
type CriteriaCondition func(ctx *QueryContext) bool

// PreProcessor runs once before SQL assembly, with the chance to inject
// defaults, derive parameters, or reject the request outright.
type PreProcessor func(ctx *QueryContext) error

// RowProcessor runs once per mapped row. Whether an error it returns
// fails the whole execution or degrades the single row is governed by
// QueryDefinition.StrictRowProcessors.
type RowProcessor func(row *Row, ctx *QueryContext) error

// PostProcessor runs once over the full mapped page, after virtualization
// and row processors, and may reorder, filter, or replace rows.
type PostProcessor func(rows []*Row, ctx *QueryContext) ([]*Row, error)

// NamingStrategy derives a dynamic attribute name from a raw (upper-cased)
// SQL column name, used only when DynamicAttributesEnabled is set.
type NamingStrategy func(columnName string) string

// DefaultDynamicNaming is the NamingStrategy a Builder falls back to when
// DynamicAttributes is enabled without an explicit one: a discovered
// column EMP_NAME becomes attribute empName.
func DefaultDynamicNaming(columnName string) string {
	parts := strings.Split(strings.ToLower(columnName), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// AttributeDef declares one column (or virtual, calculator-derived
// value) of a query's output row.
type AttributeDef struct {
	Name         string
	Alias        string // source column / expression alias, upper-cased for raw lookup
	Type         types.Kind
	PrimaryKey   bool
	Filterable   bool
	Sortable     bool
	SortProperty string // required when Sortable && Virtual

	Virtual     bool
	Calculator  RowCalculator
	Aggregate   AggregateCalculator // mutually exclusive with Calculator
	Formatter   Formatter
	UIHints     map[string]interface{}
}

// ParamDef declares one named bind parameter a query's SQL template may
// reference via :name.
type ParamDef struct {
	Name         string
	Type         types.Kind
	Required     bool
	DefaultValue interface{}
	Processor    ParamProcessor
	Validator    ParamValidator
}

// CriteriaDef declares one `--name` line-comment placeholder the SQL
// assembler may splice a SQL fragment into.
type CriteriaDef struct {
	Name      string
	SQL       string
	Condition CriteriaCondition
	// References lists the bind parameter names this fragment's SQL
	// uses, for the default CriteriaCondition and for the bind-closure
	// validator.
	References []string
}

// MetadataCache is the ahead-of-time column metadata a definition
// publishes once it has been resolved against a live connection. It is
// part of QueryDefinition's lifecycle, not a separate registry entry,
// so it lives alongside the definition it describes and is read-only
// after PublishMetadata.
type MetadataCache struct {
	// ColumnIndex maps the upper-cased column name to its 0-based
	// position in the result set.
	ColumnIndex map[string]int
	// ColumnNames and ColumnLabels are in result-set order. Most drivers
	// report the same string for both; they diverge when a driver
	// distinguishes the underlying column from its SELECT alias.
	ColumnNames  []string
	ColumnLabels []string
	// SQLType maps the upper-cased column name to the driver-advertised
	// database type name; Kind is the engine-side type derived from it.
	SQLType map[string]string
	Kind    map[string]types.Kind
	// AttributeIndex and AttributeSQLType map declared attribute names
	// (resolved via their Alias, falling back to Name) onto the column
	// positions and types above. Attributes whose alias never appeared in
	// the result set are simply absent.
	AttributeIndex   map[string]int
	AttributeSQLType map[string]string
	ColumnCount      int
	BuiltAt          time.Time
}

// QueryDefinition is the immutable, published shape of one named query.
// Once placed in a Registry it is read-only; callers needing a
// different shape register a new name rather than mutate in place.
type QueryDefinition struct {
	Name    string
	SQL     string
	Dialect dialect.Name

	Attributes     map[string]*AttributeDef
	AttributeOrder []string // declaration order, for default projection

	Params   map[string]*ParamDef
	Criteria map[string]*CriteriaDef

	PreProcessors  []PreProcessor
	RowProcessors  []RowProcessor
	PostProcessors []PostProcessor

	PaginationEnabled bool
	// FetchSize is the row-batch size the row mapper materializes at a
	// time; zero falls back to the mapper's default.
	FetchSize    int
	QueryTimeout time.Duration

	DynamicAttributesEnabled bool
	DynamicNaming            NamingStrategy

	// StrictRowProcessors controls the degrade-vs-fail policy for a row
	// processor error: false (default) logs and sets every attribute
	// value on that row to nil; true aborts the whole execution.
	StrictRowProcessors bool

	metadataCache atomic.Pointer[MetadataCache]
}

// Metadata returns the published MetadataCache, or nil if the cache has
// not been built yet (it is built lazily or via pre-warm).
func (d *QueryDefinition) Metadata() *MetadataCache {
	return d.metadataCache.Load()
}

// PublishMetadata installs cache, replacing any previously published
// value. Safe for concurrent callers; the first successful build wins
// the race only in the sense that later callers overwrite it with an
// equivalent cache, never a partial one.
func (d *QueryDefinition) PublishMetadata(cache *MetadataCache) {
	d.metadataCache.Store(cache)
}

// FilterableAttributes returns the names of attributes marked Filterable.
func (d *QueryDefinition) FilterableAttributes() []string {
	var out []string
	for _, name := range d.AttributeOrder {
		if a := d.Attributes[name]; a != nil && a.Filterable {
			out = append(out, name)
		}
	}
	return out
}

// DefaultProjection returns every declared attribute name, in
// declaration order, for requests that omit _select.
func (d *QueryDefinition) DefaultProjection() []string {
	return append([]string(nil), d.AttributeOrder...)
}
