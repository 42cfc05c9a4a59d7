package sqlassembler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryreg/engine/internal/dialect"
	"github.com/queryreg/engine/internal/query"
	"github.com/queryreg/engine/internal/sqlassembler"
	"github.com/queryreg/engine/internal/types"
)

func empsDef(t *testing.T, d dialect.Name) *query.QueryDefinition {
	t.Helper()
	sql := `SELECT
  e.id AS id,
  e.first_name AS first_name,
  e.last_name AS last_name,
  e.salary AS salary,
  e.status AS status
FROM employees e
WHERE 1=1
--deptCriterion
--statusCriterion
`
	def, err := query.NewBuilder("emps", sql, d).
		Attribute(query.AttributeDef{Name: "id", Alias: "ID", Type: types.KindLong, Sortable: true, PrimaryKey: true}).
		Attribute(query.AttributeDef{Name: "firstName", Alias: "FIRST_NAME", Type: types.KindString, Filterable: true, Sortable: true}).
		Attribute(query.AttributeDef{Name: "lastName", Alias: "LAST_NAME", Type: types.KindString, Filterable: true, Sortable: true}).
		Attribute(query.AttributeDef{Name: "salary", Alias: "SALARY", Type: types.KindDecimal, Filterable: true, Sortable: true}).
		Attribute(query.AttributeDef{Name: "status", Alias: "STATUS", Type: types.KindString, Filterable: true, Sortable: true}).
		Attribute(query.AttributeDef{
			Name: "fullName", Type: types.KindString, Virtual: true, Sortable: true, SortProperty: "LAST_NAME",
			Calculator: func(r *query.Row, c *query.QueryContext) (interface{}, error) { return nil, nil },
		}).
		Param(query.ParamDef{Name: "dept", Type: types.KindInteger, DefaultValue: 10}).
		Param(query.ParamDef{Name: "empStatus", Type: types.KindString}).
		Criteria(query.CriteriaDef{Name: "deptCriterion", SQL: "AND dept_id = :dept", References: []string{"dept"}}).
		Criteria(query.CriteriaDef{Name: "statusCriterion", SQL: "AND status = :empStatus", References: []string{"empStatus"}}).
		Paginated(true).
		Build()
	require.NoError(t, err)
	return def
}

func mustDialect(t *testing.T, name dialect.Name) dialect.Dialect {
	t.Helper()
	d, err := dialect.New(name)
	require.NoError(t, err)
	return d
}

func TestAssemble_CriteriaGatedByBoundAndDefaultParams(t *testing.T) {
	def := empsDef(t, dialect.Postgres)
	d := mustDialect(t, dialect.Postgres)
	ctx := query.NewContext(def)
	ctx.Params["dept"] = 10

	result, err := sqlassembler.Assemble(def, ctx, d)
	require.NoError(t, err)

	assert.Contains(t, result.SQL, "dept_id = $1")
	assert.NotContains(t, result.SQL, "statusCriterion")
	assert.NotContains(t, result.SQL, "status =")
	assert.Equal(t, []interface{}{10}, result.Args)

	require.Len(t, ctx.AppliedCriteria, 1)
	assert.Equal(t, "deptCriterion", ctx.AppliedCriteria[0].Name)
}

func TestAssemble_FilterSortPaginationOracle12c(t *testing.T) {
	def := empsDef(t, dialect.Oracle12c)
	d := mustDialect(t, dialect.Oracle12c)
	ctx := query.NewContext(def)
	ctx.Filters = []query.Filter{{Attribute: "salary", Operator: query.OpGTE, Value: 50000.0}}
	ctx.Sorts = []query.SortSpec{{Attribute: "salary", Direction: query.DirDesc}}
	ctx.Pagination = &query.Pagination{Start: 20, End: 40}

	result, err := sqlassembler.Assemble(def, ctx, d)
	require.NoError(t, err)

	assert.Contains(t, result.SQL, "SALARY >= :1")
	assert.Contains(t, result.SQL, "ORDER BY SALARY DESC")
	// The filter predicate splices into the WHERE 1=1 anchor ahead of
	// deptCriterion's own AND clause, so its bind claims placeholder :1;
	// deptCriterion fires too ("dept" falls back to its declared default
	// of 10, unoverridden here) ahead of the pagination bounds.
	assert.Contains(t, result.SQL, "OFFSET :3 ROWS FETCH NEXT :4 ROWS ONLY")
	assert.Equal(t, []interface{}{50000.0, 10, 20, 20}, result.Args)
}

func TestAssemble_Oracle11gPaginationWrap(t *testing.T) {
	def := empsDef(t, dialect.Oracle11g)
	d := mustDialect(t, dialect.Oracle11g)
	ctx := query.NewContext(def)
	ctx.Pagination = &query.Pagination{Start: 20, End: 40}

	result, err := sqlassembler.Assemble(def, ctx, d)
	require.NoError(t, err)

	assert.Contains(t, result.SQL, "ROWNUM <= :")
	assert.Contains(t, result.SQL, "rnum > :")
}

func TestAssemble_VirtualSortForwardsToSortProperty(t *testing.T) {
	def := empsDef(t, dialect.Postgres)
	d := mustDialect(t, dialect.Postgres)
	ctx := query.NewContext(def)
	ctx.Sorts = []query.SortSpec{{Attribute: "fullName", Direction: query.DirAsc}}

	result, err := sqlassembler.Assemble(def, ctx, d)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "ORDER BY LAST_NAME ASC")
}

func TestCountQueryParity(t *testing.T) {
	def := empsDef(t, dialect.Postgres)
	d := mustDialect(t, dialect.Postgres)
	ctx := query.NewContext(def)
	ctx.Filters = []query.Filter{{Attribute: "status", Operator: query.OpEquals, Value: "ACTIVE"}}
	ctx.Pagination = &query.Pagination{Start: 0, End: 10}

	result, err := sqlassembler.Assemble(def, ctx, d)
	require.NoError(t, err)
	require.NotEmpty(t, result.CountSQL)
	assert.Contains(t, result.CountSQL, "SELECT COUNT(*) FROM")
	assert.NotContains(t, result.CountSQL, "OFFSET")
	assert.NotContains(t, result.CountSQL, "LIMIT")
}

func TestFilterable_RejectsNonFilterableAttribute(t *testing.T) {
	def := empsDef(t, dialect.Postgres)
	d := mustDialect(t, dialect.Postgres)
	ctx := query.NewContext(def)
	ctx.Filters = []query.Filter{{Attribute: "id", Operator: query.OpEquals, Value: 1}}

	_, err := sqlassembler.Assemble(def, ctx, d)
	require.Error(t, err)
}

func TestSortable_RejectsNonSortableAttribute(t *testing.T) {
	def := empsDef(t, dialect.Postgres)
	d := mustDialect(t, dialect.Postgres)
	ctx := query.NewContext(def)
	ctx.Sorts = []query.SortSpec{{Attribute: "id", Direction: query.DirAsc}}
	ctx.Definition.Attributes["id"].Sortable = false

	_, err := sqlassembler.Assemble(def, ctx, d)
	require.Error(t, err)
}

func TestEmptyInList_EmitsFalseNotEmptyParens(t *testing.T) {
	def := empsDef(t, dialect.Postgres)
	d := mustDialect(t, dialect.Postgres)

	t.Run("in_with_no_values", func(t *testing.T) {
		ctx := query.NewContext(def)
		ctx.Filters = []query.Filter{{Attribute: "status", Operator: query.OpIn, Values: nil}}
		result, err := sqlassembler.Assemble(def, ctx, d)
		require.NoError(t, err)
		assert.Contains(t, result.SQL, "1=0")
		assert.NotContains(t, result.SQL, "IN ()")
	})

	t.Run("not_in_with_no_values", func(t *testing.T) {
		ctx := query.NewContext(def)
		ctx.Filters = []query.Filter{{Attribute: "status", Operator: query.OpNotIn, Values: nil}}
		result, err := sqlassembler.Assemble(def, ctx, d)
		require.NoError(t, err)
		assert.Contains(t, result.SQL, "1=1")
		assert.NotContains(t, result.SQL, "NOT IN ()")
	})
}

func TestEqualsOnTextAttribute_IsCaseInsensitive(t *testing.T) {
	def := empsDef(t, dialect.Postgres)
	d := mustDialect(t, dialect.Postgres)
	ctx := query.NewContext(def)
	ctx.Filters = []query.Filter{{Attribute: "status", Operator: query.OpEquals, Value: "active"}}

	result, err := sqlassembler.Assemble(def, ctx, d)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "UPPER(STATUS) = UPPER($1)")
}

func TestContainsOperator_WrapsWithWildcards(t *testing.T) {
	def := empsDef(t, dialect.Postgres)
	d := mustDialect(t, dialect.Postgres)
	ctx := query.NewContext(def)
	ctx.Filters = []query.Filter{{Attribute: "lastName", Operator: query.OpContains, Value: "ada"}}

	result, err := sqlassembler.Assemble(def, ctx, d)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "UPPER(LAST_NAME) LIKE UPPER($1)")
	// The filter splices in ahead of deptCriterion's AND clause (its
	// "dept" param falls back to its declared default), so the filter
	// bind is the first argument.
	require.Len(t, result.Args, 2)
	assert.Equal(t, "%ada%", result.Args[0])
	assert.Equal(t, 10, result.Args[1])
}

func TestAssembleIsDeterministic(t *testing.T) {
	def := empsDef(t, dialect.Postgres)
	d := mustDialect(t, dialect.Postgres)

	buildOnce := func() (*sqlassembler.Assembled, error) {
		ctx := query.NewContext(def)
		ctx.Params["dept"] = 10
		ctx.Filters = []query.Filter{{Attribute: "salary", Operator: query.OpGTE, Value: 1000.0}}
		ctx.Sorts = []query.SortSpec{{Attribute: "salary", Direction: query.DirDesc}}
		ctx.Pagination = &query.Pagination{Start: 0, End: 10}
		return sqlassembler.Assemble(def, ctx, d)
	}

	first, err := buildOnce()
	require.NoError(t, err)
	second, err := buildOnce()
	require.NoError(t, err)

	assert.Equal(t, first.SQL, second.SQL)
	assert.Equal(t, first.Args, second.Args)
}
