package query

import (
	"fmt"
	"strings"

	"github.com/queryreg/engine/internal/queryerr"
)

// Validate checks a definition's structural invariants before it may be
// published into a Registry: namespace uniqueness across attributes/
// params/criteria, virtual-attribute shape rules, and bind-parameter
// closure (every :name the SQL or a criteria fragment references is
// either a declared ParamDef, a declared criterion's own reference, or
// a recognized system bind).
func Validate(def *QueryDefinition) error {
	if def.Name == "" {
		return queryerr.New(queryerr.CodeDefinitionErr, "query definition has no name")
	}
	if def.SQL == "" {
		return queryerr.New(queryerr.CodeDefinitionErr, "query definition has no SQL template").WithQuery(def.Name)
	}

	names := make(map[string]string) // name -> namespace, for cross-namespace collision detection
	aliases := make(map[string]bool)

	for _, attrName := range def.AttributeOrder {
		attr := def.Attributes[attrName]
		if attr == nil {
			continue
		}
		if err := claim(names, attrName, "attribute", queryerr.ErrDuplicateAttribute); err != nil {
			return wrapDef(def.Name, err)
		}
		if attr.Alias != "" && !attr.Virtual {
			// Alias uniqueness is case-insensitive: the driver hands columns
			// back uppercase, so FIRST_NAME and first_name would collide in
			// the raw column map.
			upper := strings.ToUpper(attr.Alias)
			if aliases[upper] {
				return wrapDef(def.Name, fmt.Errorf("%w: %s", queryerr.ErrDuplicateAlias, attr.Alias))
			}
			aliases[upper] = true
		}
		if err := validateAttribute(attr); err != nil {
			return wrapDef(def.Name, fmt.Errorf("attribute %s: %w", attrName, err))
		}
	}

	for paramName := range def.Params {
		if err := claim(names, paramName, "param", queryerr.ErrDuplicateParam); err != nil {
			return wrapDef(def.Name, err)
		}
	}

	for critName, crit := range def.Criteria {
		if err := claim(names, critName, "criteria", queryerr.ErrDuplicateCriteria); err != nil {
			return wrapDef(def.Name, err)
		}
		for _, ref := range crit.References {
			if _, ok := def.Params[ref]; !ok {
				return wrapDef(def.Name, fmt.Errorf("criteria %s references undeclared param %q: %w",
					critName, ref, queryerr.ErrUnboundParam))
			}
		}
	}

	if err := validateBindClosure(def); err != nil {
		return wrapDef(def.Name, err)
	}

	return nil
}

func claim(names map[string]string, name, namespace string, dupErr error) error {
	if existing, ok := names[name]; ok {
		if existing == namespace {
			return fmt.Errorf("%s %q: %w", namespace, name, dupErr)
		}
		return fmt.Errorf("%s %q collides with existing %s: %w", namespace, name, existing, queryerr.ErrNamespaceCollision)
	}
	names[name] = namespace
	return nil
}

func validateAttribute(attr *AttributeDef) error {
	if !attr.Virtual {
		return nil
	}
	if attr.Calculator == nil && attr.Aggregate == nil {
		return queryerr.ErrVirtualNoCalc
	}
	if attr.Filterable {
		return queryerr.ErrVirtualFilterable
	}
	if attr.Sortable && attr.SortProperty == "" {
		return queryerr.ErrVirtualSortNoProp
	}
	return nil
}

// validateBindClosure ensures every :name bind referenced anywhere in the
// assembled SQL surface (main template plus every criteria fragment,
// regardless of whether that criterion is currently gated on) resolves
// to a declared ParamDef or is a system bind per isSystemBind.
func validateBindClosure(def *QueryDefinition) error {
	referenced := make(map[string]bool)
	for _, name := range FindBindNames(def.SQL) {
		referenced[name] = true
	}
	for _, crit := range def.Criteria {
		for _, name := range FindBindNames(crit.SQL) {
			referenced[name] = true
		}
	}

	for name := range referenced {
		if !isSystemBind(def, name) {
			if _, ok := def.Params[name]; !ok {
				return fmt.Errorf("bind parameter :%s has no ParamDef: %w", name, queryerr.ErrUnboundParam)
			}
		}
	}
	return nil
}

// filterBindOpSuffixes mirrors the operator suffixes sqlassembler derives
// filter bind names with (attrName, attrName_<op>, attrName_between_1/_2
// for BETWEEN, attrName_in_<n>/attrName_notin_<n> for IN/NOT_IN lists);
// a bare attrName_<n> is accepted as well. A criteria fragment that
// references one of those names against a declared attribute validates
// without needing its own ParamDef.
var filterBindOpSuffixes = map[string]bool{
	"ne": true, "gt": true, "gte": true, "lt": true, "lte": true,
	"like": true, "notlike": true, "contains": true, "startswith": true,
	"endswith": true, "between": true, "in": true, "notin": true,
	"null": true, "notnull": true,
}

// isSystemBind reports whether name is one of the bind names the
// assembler injects itself (pagination bounds, filter-generated binds)
// rather than a query-declared parameter.
func isSystemBind(def *QueryDefinition, name string) bool {
	switch name {
	case "offset", "limit", "startRow", "endRow", "_start", "_end":
		return true
	}
	if _, ok := def.Attributes[name]; ok {
		return true
	}
	i := strings.LastIndexByte(name, '_')
	if i <= 0 {
		return false
	}
	base, suffix := name[:i], name[i+1:]
	if isDigits(suffix) {
		// attrName_<op>_<n>: BETWEEN bounds and IN/NOT_IN list elements.
		if j := strings.LastIndexByte(base, '_'); j > 0 && filterBindOpSuffixes[base[j+1:]] {
			if _, ok := def.Attributes[base[:j]]; ok {
				return true
			}
		}
	}
	if _, ok := def.Attributes[base]; !ok {
		return false
	}
	if isDigits(suffix) || filterBindOpSuffixes[suffix] {
		return true
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func wrapDef(queryName string, err error) error {
	if err == nil {
		return nil
	}
	if qe, ok := err.(*queryerr.Error); ok {
		return qe.WithQuery(queryName)
	}
	return queryerr.Wrap(queryerr.CodeDefinitionErr, err.Error(), err).WithQuery(queryName)
}
