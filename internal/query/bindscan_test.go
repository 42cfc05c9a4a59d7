package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindBindNames(t *testing.T) {
	t.Run("ignores_binds_inside_string_literals", func(t *testing.T) {
		names := FindBindNames(`SELECT * FROM t WHERE label = ':not_a_bind' AND id = :id`)
		assert.Equal(t, []string{"id"}, names)
	})

	t.Run("ignores_binds_inside_block_comments", func(t *testing.T) {
		names := FindBindNames("SELECT * FROM t /* :ignored */ WHERE id = :id")
		assert.Equal(t, []string{"id"}, names)
	})

	t.Run("dedupes_repeated_binds", func(t *testing.T) {
		names := FindBindNames(`SELECT * FROM t WHERE a = :id OR b = :id`)
		assert.Equal(t, []string{"id"}, names)
	})

	t.Run("ignores_binds_inside_line_comments", func(t *testing.T) {
		names := FindBindNames("SELECT * FROM t WHERE id = :id -- also matches :ignored here\nAND x = 1")
		assert.Equal(t, []string{"id"}, names)
	})
}

func TestFindCriteriaPlaceholders(t *testing.T) {
	names := FindCriteriaPlaceholders("SELECT 1\n--deptCriteria\n--statusCriteria\n")
	assert.Equal(t, []string{"deptCriteria", "statusCriteria"}, names)
}
