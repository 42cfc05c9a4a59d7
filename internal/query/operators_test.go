package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/queryreg/engine/internal/query"
)

func TestArityOf(t *testing.T) {
	cases := []struct {
		op    query.FilterOperator
		arity query.Arity
	}{
		{query.OpEquals, query.ArityOne},
		{query.OpNotEquals, query.ArityOne},
		{query.OpGT, query.ArityOne},
		{query.OpLike, query.ArityOne},
		{query.OpContains, query.ArityOne},
		{query.OpStartsWith, query.ArityOne},
		{query.OpEndsWith, query.ArityOne},
		{query.OpIn, query.ArityMany},
		{query.OpNotIn, query.ArityMany},
		{query.OpBetween, query.ArityTwo},
		{query.OpIsNull, query.ArityZero},
		{query.OpIsNotNull, query.ArityZero},
	}
	for _, c := range cases {
		t.Run(string(c.op), func(t *testing.T) {
			arity, ok := query.ArityOf(c.op)
			assert.True(t, ok)
			assert.Equal(t, c.arity, arity)
		})
	}

	t.Run("unknown_operator", func(t *testing.T) {
		_, ok := query.ArityOf("NOT_A_REAL_OP")
		assert.False(t, ok)
	})
}
