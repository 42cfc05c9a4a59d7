package query_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryreg/engine/internal/dialect"
	"github.com/queryreg/engine/internal/query"
	"github.com/queryreg/engine/internal/queryerr"
	"github.com/queryreg/engine/internal/types"
)

func simpleDef(t *testing.T, name string) *query.QueryDefinition {
	t.Helper()
	def, err := query.NewBuilder(name, "SELECT id FROM t WHERE 1=1", dialect.Postgres).
		Attribute(query.AttributeDef{Name: "id", Alias: "ID", Type: types.KindLong}).
		Build()
	require.NoError(t, err)
	return def
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := query.NewRegistry()
	def := simpleDef(t, "emps")

	require.NoError(t, reg.Register(def))

	got, err := reg.Get("emps")
	require.NoError(t, err)
	assert.Same(t, def, got)
}

func TestRegistry_DuplicateNameFails(t *testing.T) {
	reg := query.NewRegistry()
	require.NoError(t, reg.Register(simpleDef(t, "emps")))

	err := reg.Register(simpleDef(t, "emps"))
	require.Error(t, err)
	assert.Equal(t, queryerr.CodeDefinitionErr, queryerr.CodeOf(err))
}

func TestRegistry_GetUnknownFails(t *testing.T) {
	reg := query.NewRegistry()
	_, err := reg.Get("missing")
	require.Error(t, err)
	assert.Equal(t, queryerr.CodeQueryNotFound, queryerr.CodeOf(err))
}

func TestRegistry_ClearAllowsReregistration(t *testing.T) {
	reg := query.NewRegistry()
	require.NoError(t, reg.Register(simpleDef(t, "emps")))
	reg.Clear()
	assert.False(t, reg.Exists("emps"))
	require.NoError(t, reg.Register(simpleDef(t, "emps")))
}

func TestRegistry_ConcurrentRegisterAndRead(t *testing.T) {
	reg := query.NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = reg.Register(simpleDef(t, "q"+string(rune('a'+i%26))+string(rune('0'+i/26))))
		}()
		go func() {
			defer wg.Done()
			_ = reg.Size()
			_ = reg.Names()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, reg.Size(), 50)
}
