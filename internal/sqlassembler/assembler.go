// Package sqlassembler turns a QueryDefinition plus a QueryContext into
// executable SQL: splicing `--name` criteria fragments, generating filter
// predicates, projecting sort clauses, wrapping the result for
// dialect-specific pagination, deriving a parity COUNT query, and finally
// translating named :binds into the positional placeholders database/sql
// drivers expect.
package sqlassembler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/queryreg/engine/internal/dialect"
	"github.com/queryreg/engine/internal/query"
	"github.com/queryreg/engine/internal/queryerr"
	"github.com/queryreg/engine/internal/types"
)

// Assembled is the SQL produced for one execution: the fetch statement,
// its positional bind values in order, and — when pagination is enabled —
// a parity COUNT statement and its own bind values.
type Assembled struct {
	SQL       string
	Args      []interface{}
	CountSQL  string
	CountArgs []interface{}
}

var criteriaLinePattern = regexp.MustCompile(`(?m)^[ \t]*--([A-Za-z_][A-Za-z0-9_]*)[ \t]*$`)

// whereAnchorPattern locates the `WHERE 1=1` anchor every query template
// declares, the splice point filter predicates are appended after
// rather than wrapping the template in a subselect.
var whereAnchorPattern = regexp.MustCompile(`(?i)\bWHERE\s+1\s*=\s*1\b`)

// Assemble produces the fetch (and, if pagination is enabled, count) SQL
// for ctx against def, recording which criteria fired in
// ctx.AppliedCriteria as a side effect.
func Assemble(def *query.QueryDefinition, ctx *query.QueryContext, d dialect.Dialect) (*Assembled, error) {
	withCriteria, err := spliceCriteria(def, ctx)
	if err != nil {
		return nil, err
	}

	withFilters, filterBinds, err := appendFilters(def, ctx, withCriteria)
	if err != nil {
		return nil, err
	}

	withSort, err := appendSort(def, ctx, withFilters)
	if err != nil {
		return nil, err
	}

	countSQL := buildCountQuery(withSort)

	fetchSQL := withSort
	fetchBinds := filterBinds
	if def.PaginationEnabled && ctx.Pagination != nil {
		var paginationBinds []filterBind
		fetchSQL, paginationBinds, err = paginate(withSort, ctx.Pagination, d)
		if err != nil {
			return nil, err
		}
		fetchBinds = append(append([]filterBind(nil), filterBinds...), paginationBinds...)
	}

	finalSQL, args, err := finalize(fetchSQL, def, ctx, fetchBinds, d)
	if err != nil {
		return nil, err
	}

	result := &Assembled{SQL: finalSQL, Args: args}
	if def.PaginationEnabled && ctx.Pagination != nil {
		finalCount, countArgs, err := finalize(countSQL, def, ctx, filterBinds, d)
		if err != nil {
			return nil, err
		}
		result.CountSQL = finalCount
		result.CountArgs = countArgs
	}

	ctx.AssembledSQL = result.SQL
	ctx.CountSQL = result.CountSQL
	return result, nil
}

// spliceCriteria replaces every `--name` placeholder line with its
// criterion's SQL fragment when the criterion's condition (explicit or
// the default bind-presence rule) says to include it, or with nothing
// when it does not.
func spliceCriteria(def *query.QueryDefinition, ctx *query.QueryContext) (string, error) {
	lines := strings.Split(def.SQL, "\n")
	var out []string
	for _, line := range lines {
		m := criteriaLinePattern.FindStringSubmatch(line)
		if m == nil {
			out = append(out, line)
			continue
		}
		name := m[1]
		crit, ok := def.Criteria[name]
		if !ok {
			return "", queryerr.Newf(queryerr.CodeDefinitionErr,
				"SQL references undeclared criteria placeholder --%s", name).WithQuery(def.Name)
		}
		if includeCriterion(crit, ctx) {
			out = append(out, crit.SQL)
			applied := query.AppliedCriterion{Name: name, SQL: crit.SQL}
			for _, ref := range crit.References {
				if v, ok := ctx.ParamOrDefault(ref); ok {
					if applied.Binds == nil {
						applied.Binds = make(map[string]interface{}, len(crit.References))
					}
					applied.Binds[ref] = v
				}
			}
			ctx.AppliedCriteria = append(ctx.AppliedCriteria, applied)
		}
	}
	return strings.Join(out, "\n"), nil
}

func includeCriterion(crit *query.CriteriaDef, ctx *query.QueryContext) bool {
	if crit.Condition != nil {
		return crit.Condition(ctx)
	}
	if len(crit.References) == 0 {
		return true
	}
	for _, ref := range crit.References {
		v, ok := ctx.ParamOrDefault(ref)
		if !ok || v == nil {
			return false
		}
	}
	return true
}

// filterBind pairs a generated bind name with its value(s), so finalize
// can resolve that name when it meets it in the SQL; args follow the
// order the :name tokens appear in, not a params-first order.
type filterBind struct {
	name  string
	value interface{}
}

// appendFilters generates a predicate for every request filter against a
// filterable attribute and splices it into the template's existing
// `WHERE 1=1` anchor with AND, rather than wrapping the base query in a
// subselect — so a template's own ORDER BY / GROUP BY keeps working
// unmodified, and bind names stay attribute-derived (:salary_gte, not an
// opaque :f0) for the bind-closure validation to recognize.
func appendFilters(def *query.QueryDefinition, ctx *query.QueryContext, sql string) (string, []filterBind, error) {
	if len(ctx.Filters) == 0 {
		return sql, nil, nil
	}

	var predicates []string
	var binds []filterBind
	used := make(map[string]int)
	for _, f := range ctx.Filters {
		attr, ok := def.Attributes[f.Attribute]
		if !ok || !attr.Filterable {
			return "", nil, queryerr.Newf(queryerr.CodeValidationErr,
				"attribute %q is not filterable", f.Attribute).WithQuery(def.Name)
		}
		column := attr.Alias
		if column == "" {
			column = attr.Name
		}

		base := bindBaseName(f.Attribute, f.Operator)
		used[base]++
		if n := used[base]; n > 1 {
			base = fmt.Sprintf("%s_%d", base, n)
		}

		isText := attr.Type == types.KindString
		predicate, pBinds, err := renderPredicate(column, f, base, isText)
		if err != nil {
			return "", nil, queryerr.Wrap(queryerr.CodeValidationErr,
				fmt.Sprintf("filter on %q", f.Attribute), err).WithQuery(def.Name)
		}
		predicates = append(predicates, predicate)
		binds = append(binds, pBinds...)
	}

	loc := whereAnchorPattern.FindStringIndex(sql)
	if loc == nil {
		return "", nil, queryerr.Newf(queryerr.CodeDefinitionErr,
			"query has no WHERE 1=1 anchor to splice filter predicates into").WithQuery(def.Name)
	}
	spliced := sql[:loc[1]] + " AND " + strings.Join(predicates, " AND ") + sql[loc[1]:]
	return spliced, binds, nil
}

// bindBaseName derives the attribute-rooted bind name a filter predicate
// binds under: the bare attribute name for EQUALS, or attrName_<op> for
// every other operator (salary -> :salary_gte). renderPredicate appends
// its own _1/_2/_N suffixes on top of this for BETWEEN and IN/NOT_IN.
func bindBaseName(attrName string, op query.FilterOperator) string {
	suffix := bindOpSuffix(op)
	if suffix == "" {
		return attrName
	}
	return attrName + "_" + suffix
}

func bindOpSuffix(op query.FilterOperator) string {
	switch op {
	case query.OpEquals:
		return ""
	case query.OpNotEquals:
		return "ne"
	case query.OpGT:
		return "gt"
	case query.OpGTE:
		return "gte"
	case query.OpLT:
		return "lt"
	case query.OpLTE:
		return "lte"
	case query.OpLike:
		return "like"
	case query.OpNotLike:
		return "notlike"
	case query.OpContains:
		return "contains"
	case query.OpStartsWith:
		return "startswith"
	case query.OpEndsWith:
		return "endswith"
	case query.OpBetween:
		return "between"
	case query.OpIn:
		return "in"
	case query.OpNotIn:
		return "notin"
	case query.OpIsNull:
		return "null"
	case query.OpIsNotNull:
		return "notnull"
	default:
		return strings.ToLower(string(op))
	}
}

// renderPredicate renders one filter as SQL, binding under bindPrefix
// (an attribute-derived base name from bindBaseName) directly for
// single-value operators, or bindPrefix_1/_2/_N for BETWEEN and
// IN/NOT_IN. When isText is set, EQUALS/NOT_EQUALS/LIKE/NOT_LIKE and
// CONTAINS/STARTS_WITH/ENDS_WITH compare via UPPER(col) and UPPER(:bind)
// for case-insensitive matching.
func renderPredicate(column string, f query.Filter, bindPrefix string, isText bool) (string, []filterBind, error) {
	arity, ok := query.ArityOf(f.Operator)
	if !ok {
		return "", nil, fmt.Errorf("unknown filter operator %q", f.Operator)
	}

	cmpColumn := column
	if isText {
		cmpColumn = fmt.Sprintf("UPPER(%s)", column)
	}

	switch arity {
	case query.ArityZero:
		switch f.Operator {
		case query.OpIsNull:
			return fmt.Sprintf("%s IS NULL", column), nil, nil
		case query.OpIsNotNull:
			return fmt.Sprintf("%s IS NOT NULL", column), nil, nil
		}
	case query.ArityOne:
		bindName := bindPrefix
		switch f.Operator {
		case query.OpEquals:
			return fmt.Sprintf("%s = %s", cmpColumn, textBind(isText, bindName)), []filterBind{{bindName, f.Value}}, nil
		case query.OpNotEquals:
			return fmt.Sprintf("%s <> %s", cmpColumn, textBind(isText, bindName)), []filterBind{{bindName, f.Value}}, nil
		case query.OpGT:
			return fmt.Sprintf("%s > :%s", column, bindName), []filterBind{{bindName, f.Value}}, nil
		case query.OpGTE:
			return fmt.Sprintf("%s >= :%s", column, bindName), []filterBind{{bindName, f.Value}}, nil
		case query.OpLT:
			return fmt.Sprintf("%s < :%s", column, bindName), []filterBind{{bindName, f.Value}}, nil
		case query.OpLTE:
			return fmt.Sprintf("%s <= :%s", column, bindName), []filterBind{{bindName, f.Value}}, nil
		case query.OpLike:
			return fmt.Sprintf("%s LIKE %s", cmpColumn, textBind(isText, bindName)), []filterBind{{bindName, f.Value}}, nil
		case query.OpNotLike:
			return fmt.Sprintf("%s NOT LIKE %s", cmpColumn, textBind(isText, bindName)), []filterBind{{bindName, f.Value}}, nil
		case query.OpContains:
			return fmt.Sprintf("%s LIKE %s", cmpColumn, textBind(isText, bindName)), []filterBind{{bindName, wrapLike(f.Value, true, true)}}, nil
		case query.OpStartsWith:
			return fmt.Sprintf("%s LIKE %s", cmpColumn, textBind(isText, bindName)), []filterBind{{bindName, wrapLike(f.Value, false, true)}}, nil
		case query.OpEndsWith:
			return fmt.Sprintf("%s LIKE %s", cmpColumn, textBind(isText, bindName)), []filterBind{{bindName, wrapLike(f.Value, true, false)}}, nil
		}
	case query.ArityTwo:
		loName, hiName := bindPrefix+"_1", bindPrefix+"_2"
		return fmt.Sprintf("%s BETWEEN :%s AND :%s", column, loName, hiName),
			[]filterBind{{loName, f.Value}, {hiName, f.Value2}}, nil
	case query.ArityMany:
		op := "IN"
		if f.Operator == query.OpNotIn {
			op = "NOT IN"
		}
		if len(f.Values) == 0 {
			// An empty IN/NOT_IN list must never be emitted as `IN ()`,
			// which most dialects reject as invalid syntax.
			if f.Operator == query.OpNotIn {
				return "1=1", nil, nil
			}
			return "1=0", nil, nil
		}
		var placeholders []string
		var binds []filterBind
		for i, v := range f.Values {
			name := fmt.Sprintf("%s_%d", bindPrefix, i+1)
			placeholders = append(placeholders, ":"+name)
			binds = append(binds, filterBind{name, v})
		}
		return fmt.Sprintf("%s %s (%s)", column, op, strings.Join(placeholders, ", ")), binds, nil
	}
	return "", nil, fmt.Errorf("operator %s is not implemented", f.Operator)
}

// textBind wraps a bind placeholder in UPPER(...) to match a UPPER(col)
// comparison column, or leaves it bare when isText is false.
func textBind(isText bool, bindName string) string {
	if isText {
		return fmt.Sprintf("UPPER(:%s)", bindName)
	}
	return ":" + bindName
}

// wrapLike auto-wraps a value with SQL LIKE wildcards — only ever invoked
// for the opt-in CONTAINS/STARTS_WITH/ENDS_WITH operators, never for
// plain LIKE/EQUALS, so a caller who wants literal-wildcard matching via
// LIKE keeps full control of the pattern.
func wrapLike(value interface{}, leading, trailing bool) string {
	s := fmt.Sprintf("%v", value)
	if leading {
		s = "%" + s
	}
	if trailing {
		s = s + "%"
	}
	return s
}

// appendSort projects request sort specs into an ORDER BY clause,
// forwarding a virtual attribute's SortProperty as the actual ORDER BY
// expression.
func appendSort(def *query.QueryDefinition, ctx *query.QueryContext, sql string) (string, error) {
	if len(ctx.Sorts) == 0 {
		return sql, nil
	}
	var clauses []string
	for _, s := range ctx.Sorts {
		attr, ok := def.Attributes[s.Attribute]
		if !ok || !attr.Sortable {
			return "", queryerr.Newf(queryerr.CodeValidationErr,
				"attribute %q is not sortable", s.Attribute).WithQuery(def.Name)
		}
		column := attr.SortProperty
		if column == "" {
			column = attr.Alias
		}
		if column == "" {
			column = attr.Name
		}
		dir := "ASC"
		if s.Direction == query.DirDesc {
			dir = "DESC"
		}
		clauses = append(clauses, fmt.Sprintf("%s %s", column, dir))
	}
	return fmt.Sprintf("SELECT * FROM (\n%s\n) qre_sorted ORDER BY %s", sql, strings.Join(clauses, ", ")), nil
}

// buildCountQuery derives a row-count statement from the fully filtered
// (but not yet paginated) SQL, giving parity with the fetch query's
// WHERE clause.
func buildCountQuery(filteredSQL string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM (\n%s\n) qre_count", filteredSQL)
}

var bindTokenPattern = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// finalize resolves every :name token to its value (declared param,
// default, or filter-generated bind) and rewrites the SQL left to right
// into d's positional placeholder syntax, emitting a fresh positional arg
// for every occurrence — including repeats of the same name — so no
// placeholder-style driver is left with an unfilled slot.
func finalize(sql string, def *query.QueryDefinition, ctx *query.QueryContext, filterBinds []filterBind, d dialect.Dialect) (string, []interface{}, error) {
	values := make(map[string]interface{}, len(filterBinds))
	for _, fb := range filterBinds {
		values[fb.name] = fb.value
	}

	var args []interface{}
	var firstErr error
	index := 0

	out := bindTokenPattern.ReplaceAllStringFunc(sql, func(token string) string {
		if firstErr != nil {
			return token
		}
		name := token[1:]
		v, ok := values[name]
		if !ok {
			v, ok = ctx.ParamOrDefault(name)
			if !ok {
				firstErr = queryerr.Newf(queryerr.CodeValidationErr,
					"missing value for bind parameter :%s", name).WithQuery(def.Name)
				return token
			}
		}
		index++
		args = append(args, v)
		return d.Placeholder(index)
	})

	if firstErr != nil {
		return "", nil, firstErr
	}
	return out, args, nil
}
