package rowmapper_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryreg/engine/internal/dialect"
	"github.com/queryreg/engine/internal/query"
	"github.com/queryreg/engine/internal/rowmapper"
	"github.com/queryreg/engine/internal/types"
)

func empsDef(t *testing.T) *query.QueryDefinition {
	t.Helper()
	def, err := query.NewBuilder("emps", "SELECT * FROM employees", dialect.Postgres).
		Attribute(query.AttributeDef{Name: "id", Alias: "ID", Type: types.KindLong, PrimaryKey: true}).
		Attribute(query.AttributeDef{Name: "firstName", Alias: "FIRST_NAME", Type: types.KindString}).
		Attribute(query.AttributeDef{Name: "lastName", Alias: "LAST_NAME", Type: types.KindString}).
		Attribute(query.AttributeDef{
			Name: "fullName", Type: types.KindString, Virtual: true,
			Calculator: func(r *query.Row, c *query.QueryContext) (interface{}, error) {
				first, _ := r.GetRaw("FIRST_NAME")
				last, _ := r.GetRaw("LAST_NAME")
				return first.(string) + " " + last.(string), nil
			},
		}).
		Build()
	require.NoError(t, err)
	return def
}

func TestMap_ProjectsAttributesAndVirtualCalculator(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id", "first_name", "last_name"}).
			AddRow(int64(1), "Ada", "Lovelace"),
	)

	rows, err := db.Query("SELECT * FROM employees")
	require.NoError(t, err)
	defer rows.Close()

	def := empsDef(t)
	ctx := query.NewContext(def)

	mapped, err := rowmapper.Map(rows, ctx, nil)
	require.NoError(t, err)
	require.Len(t, mapped, 1)

	v, ok := mapped[0].Get("fullName")
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", v)

	v, ok = mapped[0].Get("firstName")
	require.True(t, ok)
	assert.Equal(t, "Ada", v)
}

func TestMap_RawColumnBytesNormalizedToString(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id", "first_name", "last_name"}).
			AddRow([]byte("2"), []byte("Grace"), []byte("Hopper")),
	)
	rows, err := db.Query("SELECT * FROM employees")
	require.NoError(t, err)
	defer rows.Close()

	def := empsDef(t)
	ctx := query.NewContext(def)

	mapped, err := rowmapper.Map(rows, ctx, nil)
	require.NoError(t, err)
	require.Len(t, mapped, 1)

	v, _ := mapped[0].Get("firstName")
	assert.Equal(t, "Grace", v)
}

func TestMap_AggregateCalculatorSeesFullPage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id", "first_name", "last_name"}).
			AddRow(int64(1), "Ada", "Lovelace").
			AddRow(int64(2), "Grace", "Hopper"),
	)
	rows, err := db.Query("SELECT * FROM employees")
	require.NoError(t, err)
	defer rows.Close()

	def, err := query.NewBuilder("emps", "SELECT * FROM employees", dialect.Postgres).
		Attribute(query.AttributeDef{Name: "id", Alias: "ID", Type: types.KindLong, PrimaryKey: true}).
		Attribute(query.AttributeDef{
			Name: "rank", Type: types.KindInteger, Virtual: true,
			Aggregate: func(rows []*query.Row, c *query.QueryContext) ([]interface{}, error) {
				out := make([]interface{}, len(rows))
				for i := range rows {
					out[i] = i + 1
				}
				return out, nil
			},
		}).
		Build()
	require.NoError(t, err)
	ctx := query.NewContext(def)

	mapped, err := rowmapper.Map(rows, ctx, nil)
	require.NoError(t, err)
	require.Len(t, mapped, 2)

	v0, _ := mapped[0].Get("rank")
	v1, _ := mapped[1].Get("rank")
	assert.Equal(t, 1, v0)
	assert.Equal(t, 2, v1)
}

func TestMap_RowProcessorDegradesRowByDefault(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id", "first_name", "last_name"}).
			AddRow(int64(1), "Ada", "Lovelace"),
	)
	rows, err := db.Query("SELECT * FROM employees")
	require.NoError(t, err)
	defer rows.Close()

	def := empsDef(t)
	def.RowProcessors = append(def.RowProcessors, func(r *query.Row, c *query.QueryContext) error {
		return errors.New("boom")
	})
	ctx := query.NewContext(def)

	mapped, err := rowmapper.Map(rows, ctx, nil)
	require.NoError(t, err)
	require.Len(t, mapped, 1)

	v, _ := mapped[0].Get("firstName")
	assert.Nil(t, v)
}

func TestMap_RowProcessorAbortsWhenStrict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id", "first_name", "last_name"}).
			AddRow(int64(1), "Ada", "Lovelace"),
	)
	rows, err := db.Query("SELECT * FROM employees")
	require.NoError(t, err)
	defer rows.Close()

	def := empsDef(t)
	def.StrictRowProcessors = true
	def.RowProcessors = append(def.RowProcessors, func(r *query.Row, c *query.QueryContext) error {
		return errors.New("boom")
	})
	ctx := query.NewContext(def)

	_, err = rowmapper.Map(rows, ctx, nil)
	require.Error(t, err)
}

func TestMap_BatchThresholdFollowsFetchSize(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	builder := sqlmock.NewRows([]string{"id", "first_name", "last_name"})
	for i := 0; i < 1500; i++ {
		builder.AddRow(int64(i), "First", "Last")
	}
	mock.ExpectQuery("SELECT").WillReturnRows(builder)

	rows, err := db.Query("SELECT * FROM employees")
	require.NoError(t, err)
	defer rows.Close()

	def := empsDef(t)
	def.FetchSize = 600
	ctx := query.NewContext(def)

	var batchSizes []int
	mapped, err := rowmapper.Map(rows, ctx, func(batch []*query.Row) error {
		batchSizes = append(batchSizes, len(batch))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{600, 600, 300}, batchSizes)
	assert.Empty(t, mapped, "a streaming caller with no page-level hooks owns the rows via its batches")
}

func TestMap_RowProcessorSeesTypedValueBeforeFormatter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id", "salary"}).
			AddRow(int64(1), 100.0),
	)
	rows, err := db.Query("SELECT * FROM employees")
	require.NoError(t, err)
	defer rows.Close()

	def, err := query.NewBuilder("emps", "SELECT * FROM employees", dialect.Postgres).
		Attribute(query.AttributeDef{Name: "id", Alias: "ID", Type: types.KindLong, PrimaryKey: true}).
		Attribute(query.AttributeDef{
			Name: "salary", Alias: "SALARY", Type: types.KindDecimal,
			Formatter: func(v interface{}) string { return fmt.Sprintf("%.0f", v) },
		}).
		Build()
	require.NoError(t, err)

	var seen interface{}
	def.RowProcessors = append(def.RowProcessors, func(r *query.Row, c *query.QueryContext) error {
		seen, _ = r.Get("salary")
		r.Set("salary", 200.0)
		return nil
	})
	ctx := query.NewContext(def)

	mapped, err := rowmapper.Map(rows, ctx, nil)
	require.NoError(t, err)
	require.Len(t, mapped, 1)

	assert.Equal(t, 100.0, seen, "processor gets the typed value, not the formatted string")
	v, _ := mapped[0].Get("salary")
	assert.Equal(t, "200", v, "formatter runs last, over the processor's mutation")
}

func TestMap_RowProcessorSeesAggregateValues(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).
			AddRow(int64(1)).
			AddRow(int64(2)),
	)
	rows, err := db.Query("SELECT * FROM employees")
	require.NoError(t, err)
	defer rows.Close()

	def, err := query.NewBuilder("emps", "SELECT * FROM employees", dialect.Postgres).
		Attribute(query.AttributeDef{Name: "id", Alias: "ID", Type: types.KindLong, PrimaryKey: true}).
		Attribute(query.AttributeDef{
			Name: "rank", Type: types.KindInteger, Virtual: true,
			Aggregate: func(rows []*query.Row, c *query.QueryContext) ([]interface{}, error) {
				out := make([]interface{}, len(rows))
				for i := range rows {
					out[i] = i + 1
				}
				return out, nil
			},
		}).
		Build()
	require.NoError(t, err)

	var seen []interface{}
	def.RowProcessors = append(def.RowProcessors, func(r *query.Row, c *query.QueryContext) error {
		v, _ := r.Get("rank")
		seen = append(seen, v)
		return nil
	})
	ctx := query.NewContext(def)

	_, err = rowmapper.Map(rows, ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 2}, seen, "aggregates are applied before row processors run")
}

func TestMap_BatchingStillAccumulatesWhenPageHooksExist(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id", "first_name", "last_name"}).
			AddRow(int64(1), "Ada", "Lovelace").
			AddRow(int64(2), "Grace", "Hopper"),
	)
	rows, err := db.Query("SELECT * FROM employees")
	require.NoError(t, err)
	defer rows.Close()

	def := empsDef(t)
	def.PostProcessors = append(def.PostProcessors, func(rs []*query.Row, c *query.QueryContext) ([]*query.Row, error) {
		return rs[:1], nil
	})
	ctx := query.NewContext(def)

	mapped, err := rowmapper.Map(rows, ctx, func([]*query.Row) error { return nil })
	require.NoError(t, err)
	assert.Len(t, mapped, 1, "post-processors still see and shape the full page")
}
