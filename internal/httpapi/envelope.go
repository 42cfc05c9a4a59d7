package httpapi

import (
	"strings"

	"github.com/queryreg/engine/internal/query"
	"github.com/queryreg/engine/internal/queryerr"
)

// MetaVerbosity is the `_meta` request knob: how much of the metadata
// block the response envelope carries.
type MetaVerbosity string

const (
	MetaNone    MetaVerbosity = "none"
	MetaMinimal MetaVerbosity = "minimal"
	MetaFull    MetaVerbosity = "full"
)

// Envelope is the JSON response shape for a list execution: the rows,
// an optional metadata block, the row count, and a success marker.
type Envelope struct {
	Data     []*query.Row      `json:"data"`
	Metadata *EnvelopeMetadata `json:"metadata,omitempty"`
	// Count reflects the total row count behind pagination when
	// pagination metadata exists, or simply len(Data) otherwise.
	Count   int  `json:"count"`
	Success bool `json:"success"`
}

// EnvelopeMetadata is the response metadata block: pagination, what the
// server actually applied (so a client can distinguish "no results" from
// "criterion not applied"), the resolved parameters, the attribute
// descriptors, and performance metrics.
type EnvelopeMetadata struct {
	Pagination      *PaginationInfo              `json:"pagination,omitempty"`
	AppliedCriteria []query.AppliedCriterion     `json:"appliedCriteria,omitempty"`
	AppliedFilters  []query.Filter               `json:"appliedFilters,omitempty"`
	AppliedSort     []query.SortSpec             `json:"appliedSort,omitempty"`
	Parameters      map[string]interface{}       `json:"parameters,omitempty"`
	Attributes      map[string]AttributeMetadata `json:"attributes,omitempty"`
	Performance     Metrics                      `json:"performance"`
}

// PaginationInfo mirrors query.Pagination in the response shape.
type PaginationInfo struct {
	Start   int  `json:"start"`
	End     int  `json:"end"`
	Total   int  `json:"total"`
	HasNext bool `json:"hasNext"`
}

// Metrics is the performance data reported alongside the page.
type Metrics struct {
	ExecutionTimeMS int64 `json:"executionTimeMs"`
}

// MetadataInfo is the /metadata endpoint's descriptor payload.
type MetadataInfo struct {
	Attributes map[string]AttributeMetadata `json:"attributes"`
}

// AttributeMetadata describes one attribute for the metadata block and
// the dedicated /metadata endpoint.
type AttributeMetadata struct {
	Type       string                 `json:"type"`
	Filterable bool                   `json:"filterable"`
	Sortable   bool                   `json:"sortable"`
	Virtual    bool                   `json:"virtual"`
	SQLType    string                 `json:"sqlType,omitempty"`
	UIHints    map[string]interface{} `json:"uiHints,omitempty"`
}

// BuildEnvelope assembles the list response from a pipeline result's
// QueryContext. meta controls the metadata block: none omits it
// entirely, minimal carries pagination and performance, full adds the
// applied criteria/filters/sort, resolved parameters, and attribute
// descriptors.
func BuildEnvelope(def *query.QueryDefinition, rows []*query.Row, ctx *query.QueryContext, meta MetaVerbosity) *Envelope {
	env := &Envelope{
		Data:    rows,
		Count:   len(rows),
		Success: true,
	}

	var pagination *PaginationInfo
	if ctx.Pagination != nil {
		p := ctx.Pagination
		pagination = &PaginationInfo{
			Start: p.Start,
			End:   p.End,
			Total: p.Total,
		}
		env.Count = p.Total
		if ctx.CountError != nil {
			// The count query degraded: Total fell back to zero, so
			// hasNext is derived from the page actually returned instead.
			pagination.HasNext = len(rows) >= p.Size() && p.Size() > 0
		} else {
			pagination.HasNext = p.End < p.Total
		}
	}

	if meta == MetaNone {
		return env
	}
	env.Metadata = &EnvelopeMetadata{
		Pagination:  pagination,
		Performance: Metrics{ExecutionTimeMS: ctx.ExecutionTimeMS},
	}
	if meta == MetaFull {
		env.Metadata.AppliedCriteria = ctx.AppliedCriteria
		env.Metadata.AppliedFilters = ctx.Filters
		env.Metadata.AppliedSort = ctx.Sorts
		env.Metadata.Parameters = ctx.Params
		env.Metadata.Attributes = BuildMetadataInfo(def).Attributes
	}
	return env
}

// FirstRecord reduces a page to its single-record form: the first row
// alone, with no count, or a not-found error when the page is empty.
func FirstRecord(def *query.QueryDefinition, rows []*query.Row) (*query.Row, error) {
	if len(rows) == 0 {
		return nil, queryerr.Newf(queryerr.CodeQueryNotFound, "no record matched").WithQuery(def.Name)
	}
	return rows[0], nil
}

// BuildMetadataInfo renders def's declared attributes (and, once
// published, their resolved SQL types) for the metadata endpoint and the
// full metadata block.
func BuildMetadataInfo(def *query.QueryDefinition) *MetadataInfo {
	info := &MetadataInfo{Attributes: make(map[string]AttributeMetadata, len(def.AttributeOrder))}
	cache := def.Metadata()
	for _, name := range def.AttributeOrder {
		attr := def.Attributes[name]
		if attr == nil {
			continue
		}
		am := AttributeMetadata{
			Type:       string(attr.Type),
			Filterable: attr.Filterable,
			Sortable:   attr.Sortable,
			Virtual:    attr.Virtual,
			UIHints:    attr.UIHints,
		}
		if cache != nil {
			if sqlType, ok := cache.AttributeSQLType[name]; ok {
				am.SQLType = sqlType
			} else {
				key := attr.Alias
				if key == "" {
					key = attr.Name
				}
				if sqlType, ok := cache.SQLType[strings.ToUpper(key)]; ok {
					am.SQLType = sqlType
				}
			}
		}
		info.Attributes[name] = am
	}
	return info
}
