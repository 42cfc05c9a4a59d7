package query

import (
	"time"

	"go.uber.org/zap"
)

// Filter is one request-supplied predicate against a filterable
// attribute.
type Filter struct {
	Attribute string         `json:"attribute"`
	Operator  FilterOperator `json:"operator"`
	Value     interface{}    `json:"value,omitempty"`  // EQUALS/NOT_EQUALS/GT/GTE/LT/LTE/LIKE/NOT_LIKE/CONTAINS/STARTS_WITH/ENDS_WITH
	Value2    interface{}    `json:"value2,omitempty"` // BETWEEN's upper bound
	Values    []interface{}  `json:"values,omitempty"` // IN / NOT_IN
}

// SortSpec is one request-supplied ordering clause; list order is
// priority order.
type SortSpec struct {
	Attribute string        `json:"attribute"`
	Direction SortDirection `json:"direction"`
}

// Pagination is the request-supplied window (End exclusive) plus, once
// executed, the total row count behind it.
type Pagination struct {
	Start int
	End   int
	Total int
}

// Size returns the requested page size (End - Start), clamped to zero.
func (p *Pagination) Size() int {
	if p == nil || p.End <= p.Start {
		return 0
	}
	return p.End - p.Start
}

// AppliedCriterion records one named criterion that was included in the
// assembled SQL, together with the bind values its fragment referenced,
// for echoing back in the response envelope.
type AppliedCriterion struct {
	Name  string                 `json:"name"`
	SQL   string                 `json:"sql"`
	Binds map[string]interface{} `json:"binds,omitempty"`
}

// QueryContext is the per-execution, single-goroutine-owned state that
// flows through the pipeline: never shared across concurrent
// executions, so it needs no locking of its own.
type QueryContext struct {
	Definition *QueryDefinition
	RequestID  string

	Params  map[string]interface{}
	Filters []Filter
	Sorts   []SortSpec

	Pagination *Pagination

	SelectedAttributes []string // nil means "all declared attributes"
	IncludeMetadata    bool

	AppliedCriteria []AppliedCriterion
	AssembledSQL    string
	CountSQL        string

	// CountError records a degraded (non-fatal) count-query failure:
	// the page still executes, but Pagination.Total falls back to zero
	// and this field carries the reason for logging.
	CountError error

	StartedAt       time.Time
	ExecutionTimeMS int64

	// Extra carries pipeline-local data (e.g. pre-processor scratch
	// state) that does not belong in the response envelope.
	Extra map[string]interface{}

	// Logger is the structured logger row/calculator degradation and
	// other non-fatal per-row problems are reported through. Nil is
	// valid and falls back to a no-op logger (Log()).
	Logger *zap.Logger
}

// NewContext builds a zeroed QueryContext bound to def.
func NewContext(def *QueryDefinition) *QueryContext {
	return &QueryContext{
		Definition: def,
		Params:     make(map[string]interface{}),
		Extra:      make(map[string]interface{}),
	}
}

// Log returns c.Logger, or a no-op logger if none was set.
func (c *QueryContext) Log() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

// ParamOrDefault returns the bound parameter value for name, falling
// back to the ParamDef's declared default when absent.
func (c *QueryContext) ParamOrDefault(name string) (interface{}, bool) {
	if v, ok := c.Params[name]; ok {
		return v, true
	}
	if c.Definition == nil {
		return nil, false
	}
	if pd, ok := c.Definition.Params[name]; ok && pd.DefaultValue != nil {
		return pd.DefaultValue, true
	}
	return nil, false
}

// SelectsAttribute reports whether attr should be projected into the
// output row, honoring an explicit _select projection list.
func (c *QueryContext) SelectsAttribute(attr string) bool {
	if c.SelectedAttributes == nil {
		return true
	}
	for _, a := range c.SelectedAttributes {
		if a == attr {
			return true
		}
	}
	return false
}
