package httpapi_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryreg/engine/internal/httpapi"
	"github.com/queryreg/engine/internal/query"
	"github.com/queryreg/engine/internal/queryerr"
)

func pageOf(values ...string) []*query.Row {
	rows := make([]*query.Row, len(values))
	for i, v := range values {
		r := query.NewRow()
		r.Set("firstName", v)
		rows[i] = r
	}
	return rows
}

func TestBuildEnvelope_NoneOmitsMetadata(t *testing.T) {
	def := empsDef(t)
	ctx := query.NewContext(def)

	env := httpapi.BuildEnvelope(def, pageOf("Ada", "Grace"), ctx, httpapi.MetaNone)
	assert.Nil(t, env.Metadata)
	assert.Equal(t, 2, env.Count)
	assert.True(t, env.Success)
}

func TestBuildEnvelope_CountReflectsPaginationTotal(t *testing.T) {
	def := empsDef(t)
	ctx := query.NewContext(def)
	ctx.Pagination = &query.Pagination{Start: 0, End: 2, Total: 42}

	env := httpapi.BuildEnvelope(def, pageOf("Ada", "Grace"), ctx, httpapi.MetaMinimal)
	assert.Equal(t, 42, env.Count)
	require.NotNil(t, env.Metadata)
	require.NotNil(t, env.Metadata.Pagination)
	assert.Equal(t, 42, env.Metadata.Pagination.Total)
	assert.True(t, env.Metadata.Pagination.HasNext)
	assert.Nil(t, env.Metadata.Attributes, "minimal metadata carries no attribute descriptors")
}

func TestBuildEnvelope_FullCarriesAppliedAndAttributes(t *testing.T) {
	def := empsDef(t)
	ctx := query.NewContext(def)
	ctx.Params["dept"] = 10
	ctx.Filters = []query.Filter{{Attribute: "salary", Operator: query.OpGTE, Value: 50000.0}}
	ctx.Sorts = []query.SortSpec{{Attribute: "salary", Direction: query.DirDesc}}
	ctx.AppliedCriteria = []query.AppliedCriterion{{Name: "deptCriterion", SQL: "AND dept_id = :dept", Binds: map[string]interface{}{"dept": 10}}}

	env := httpapi.BuildEnvelope(def, pageOf("Ada"), ctx, httpapi.MetaFull)
	require.NotNil(t, env.Metadata)
	assert.Equal(t, ctx.AppliedCriteria, env.Metadata.AppliedCriteria)
	assert.Equal(t, ctx.Filters, env.Metadata.AppliedFilters)
	assert.Equal(t, ctx.Sorts, env.Metadata.AppliedSort)
	assert.Equal(t, ctx.Params, env.Metadata.Parameters)
	require.Contains(t, env.Metadata.Attributes, "salary")
	assert.True(t, env.Metadata.Attributes["salary"].Filterable)
}

func TestBuildEnvelope_DegradedCountDerivesHasNextFromPage(t *testing.T) {
	def := empsDef(t)
	ctx := query.NewContext(def)
	ctx.Pagination = &query.Pagination{Start: 0, End: 2}
	ctx.CountError = errors.New("count exploded")

	full := httpapi.BuildEnvelope(def, pageOf("Ada", "Grace"), ctx, httpapi.MetaMinimal)
	assert.True(t, full.Metadata.Pagination.HasNext, "a full page implies more may follow")

	short := httpapi.BuildEnvelope(def, pageOf("Ada"), ctx, httpapi.MetaMinimal)
	assert.False(t, short.Metadata.Pagination.HasNext, "a short page is the last one")
}

func TestFirstRecord(t *testing.T) {
	def := empsDef(t)

	row, err := httpapi.FirstRecord(def, pageOf("Ada", "Grace"))
	require.NoError(t, err)
	v, _ := row.Get("firstName")
	assert.Equal(t, "Ada", v)

	_, err = httpapi.FirstRecord(def, nil)
	require.Error(t, err)
	assert.Equal(t, queryerr.CodeQueryNotFound, queryerr.CodeOf(err))
}
