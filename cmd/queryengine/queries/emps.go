// Package queries registers the built-in sample query definitions this
// binary ships with. A real deployment would load definitions from its
// own source rather than compiling them in, but one concrete, fully
// wired definition is kept here to exercise every stage of the engine
// end to end.
package queries

import (
	"strings"
	"time"

	"github.com/queryreg/engine/internal/dialect"
	"github.com/queryreg/engine/internal/query"
	"github.com/queryreg/engine/internal/types"
)

// RegisterAll builds and registers every built-in query definition
// against d's dialect, with the configured fetch size and statement
// timeout applied to each.
func RegisterAll(reg *query.Registry, d dialect.Name, fetchSize int, queryTimeout time.Duration) error {
	emps, err := buildEmployees(d, fetchSize, queryTimeout)
	if err != nil {
		return err
	}
	return reg.Register(emps)
}

// buildEmployees reproduces the canonical employees-by-department query:
// a department criterion that only applies when dept is supplied, a
// status criterion whose empStatus parameter defaults to ACTIVE (so it
// applies on every request), a filterable/sortable salary
// attribute, and a virtual fullName attribute computed from two raw
// columns.
func buildEmployees(d dialect.Name, fetchSize int, queryTimeout time.Duration) (*query.QueryDefinition, error) {
	sql := `SELECT
  e.id          AS id,
  e.first_name  AS first_name,
  e.last_name   AS last_name,
  e.department  AS department,
  e.status      AS status,
  e.salary      AS salary,
  e.hired_on    AS hired_on
FROM employees e
WHERE 1=1
--deptCriteria
--statusCriteria
`

	return query.NewBuilder("emps", sql, d).
		Attribute(query.AttributeDef{Name: "id", Alias: "ID", Type: types.KindLong, PrimaryKey: true, Sortable: true}).
		Attribute(query.AttributeDef{Name: "firstName", Alias: "FIRST_NAME", Type: types.KindString, Filterable: true, Sortable: true}).
		Attribute(query.AttributeDef{Name: "lastName", Alias: "LAST_NAME", Type: types.KindString, Filterable: true, Sortable: true}).
		Attribute(query.AttributeDef{Name: "department", Alias: "DEPARTMENT", Type: types.KindString, Filterable: true, Sortable: true}).
		Attribute(query.AttributeDef{Name: "status", Alias: "STATUS", Type: types.KindString, Filterable: true, Sortable: true}).
		Attribute(query.AttributeDef{Name: "salary", Alias: "SALARY", Type: types.KindDecimal, Filterable: true, Sortable: true}).
		Attribute(query.AttributeDef{Name: "hiredOn", Alias: "HIRED_ON", Type: types.KindLocalDate, Filterable: true, Sortable: true}).
		Attribute(query.AttributeDef{
			Name:         "fullName",
			Type:         types.KindString,
			Virtual:      true,
			Sortable:     true,
			SortProperty: "LAST_NAME",
			Calculator: func(row *query.Row, _ *query.QueryContext) (interface{}, error) {
				first, _ := row.GetRaw("FIRST_NAME")
				last, _ := row.GetRaw("LAST_NAME")
				return strings.TrimSpace(toStr(first) + " " + toStr(last)), nil
			},
		}).
		Param(query.ParamDef{Name: "dept", Type: types.KindString}).
		Param(query.ParamDef{Name: "empStatus", Type: types.KindString, DefaultValue: "ACTIVE"}).
		Criteria(query.CriteriaDef{
			Name:       "deptCriteria",
			SQL:        "AND e.department = :dept",
			References: []string{"dept"},
		}).
		Criteria(query.CriteriaDef{
			Name:       "statusCriteria",
			SQL:        "AND e.status = :empStatus",
			References: []string{"empStatus"},
		}).
		Paginated(true).
		FetchSize(fetchSize).
		QueryTimeout(queryTimeout).
		Build()
}

func toStr(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
