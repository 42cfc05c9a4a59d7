package queryerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/queryreg/engine/internal/queryerr"
)

func TestCodeOf_ExtractsEngineCode(t *testing.T) {
	err := queryerr.New(queryerr.CodeValidationErr, "bad input")
	assert.Equal(t, queryerr.CodeValidationErr, queryerr.CodeOf(err))
}

func TestCodeOf_DefaultsForUnclassifiedError(t *testing.T) {
	assert.Equal(t, queryerr.CodeExecutionErr, queryerr.CodeOf(errors.New("raw driver error")))
}

func TestWrap_PreservesCauseViaUnwrap(t *testing.T) {
	cause := errors.New("underlying failure")
	err := queryerr.Wrap(queryerr.CodeExecutionErr, "executing fetch query", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestWithQuery_AnnotatesWithoutMutatingOriginal(t *testing.T) {
	base := queryerr.New(queryerr.CodeQueryNotFound, "no such query")
	annotated := base.WithQuery("emps")

	assert.Empty(t, base.QueryName)
	assert.Equal(t, "emps", annotated.QueryName)
	assert.Contains(t, annotated.Error(), "query=emps")
}

func TestError_FormatsCodeMessageAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := queryerr.Wrap(queryerr.CodeExecutionErr, "opening connection", cause).WithQuery("emps")
	msg := err.Error()
	assert.Contains(t, msg, "EXECUTION_ERROR")
	assert.Contains(t, msg, "opening connection")
	assert.Contains(t, msg, "query=emps")
	assert.Contains(t, msg, "connection refused")
}
