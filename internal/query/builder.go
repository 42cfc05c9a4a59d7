package query

import (
	"time"

	"github.com/queryreg/engine/internal/dialect"
)

// Builder assembles a QueryDefinition through a staged, fluent API,
// then validates the whole shape in one pass at Build().
type Builder struct {
	def *QueryDefinition
	err error
}

// NewBuilder starts a definition named name against sqlTemplate.
func NewBuilder(name, sqlTemplate string, dialectName dialect.Name) *Builder {
	return &Builder{
		def: &QueryDefinition{
			Name:         name,
			SQL:          sqlTemplate,
			Dialect:      dialectName,
			Attributes:   make(map[string]*AttributeDef),
			Params:       make(map[string]*ParamDef),
			Criteria:     make(map[string]*CriteriaDef),
			FetchSize:    100,
			QueryTimeout: 30 * time.Second,
		},
	}
}

// Attribute registers a named attribute, in declaration order.
func (b *Builder) Attribute(attr AttributeDef) *Builder {
	if b.err != nil {
		return b
	}
	cp := attr
	b.def.Attributes[attr.Name] = &cp
	b.def.AttributeOrder = append(b.def.AttributeOrder, attr.Name)
	return b
}

// Param registers a named bind parameter.
func (b *Builder) Param(param ParamDef) *Builder {
	if b.err != nil {
		return b
	}
	cp := param
	b.def.Params[param.Name] = &cp
	return b
}

// Criteria registers a named `--name` criteria fragment.
func (b *Builder) Criteria(crit CriteriaDef) *Builder {
	if b.err != nil {
		return b
	}
	cp := crit
	b.def.Criteria[crit.Name] = &cp
	return b
}

// PreProcessor appends a pre-processor to run before assembly.
func (b *Builder) PreProcessor(p PreProcessor) *Builder {
	b.def.PreProcessors = append(b.def.PreProcessors, p)
	return b
}

// RowProcessor appends a processor to run once per mapped row.
func (b *Builder) RowProcessor(p RowProcessor) *Builder {
	b.def.RowProcessors = append(b.def.RowProcessors, p)
	return b
}

// PostProcessor appends a processor to run once over the full page.
func (b *Builder) PostProcessor(p PostProcessor) *Builder {
	b.def.PostProcessors = append(b.def.PostProcessors, p)
	return b
}

// Paginated enables offset/limit pagination for this query.
func (b *Builder) Paginated(enabled bool) *Builder {
	b.def.PaginationEnabled = enabled
	return b
}

// FetchSize sets the row-batch size the row mapper materializes at a
// time when scanning this query's results.
func (b *Builder) FetchSize(n int) *Builder {
	b.def.FetchSize = n
	return b
}

// QueryTimeout overrides the default statement timeout.
func (b *Builder) QueryTimeout(d time.Duration) *Builder {
	b.def.QueryTimeout = d
	return b
}

// DynamicAttributes enables attribute discovery for SQL columns not
// explicitly declared, naming them via strategy.
func (b *Builder) DynamicAttributes(strategy NamingStrategy) *Builder {
	b.def.DynamicAttributesEnabled = true
	if strategy == nil {
		strategy = DefaultDynamicNaming
	}
	b.def.DynamicNaming = strategy
	return b
}

// StrictRowProcessors makes a row processor error abort the whole
// execution instead of degrading just that row.
func (b *Builder) StrictRowProcessors(strict bool) *Builder {
	b.def.StrictRowProcessors = strict
	return b
}

// Build validates the accumulated definition and returns it, or the
// first structural error encountered while staging it.
func (b *Builder) Build() (*QueryDefinition, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := Validate(b.def); err != nil {
		return nil, err
	}
	return b.def, nil
}
