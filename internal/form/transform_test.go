package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprTransform(t *testing.T) {
	tr, err := ExprTransform(`value == nil ? "" : upper(value)`)
	require.NoError(t, err)

	out, err := tr("wo-12")
	require.NoError(t, err)
	assert.Equal(t, "WO-12", out)

	_, err = ExprTransform("upper(")
	assert.Error(t, err)
	_, err = ExprTransform("  ")
	assert.Error(t, err)
}

func TestExprEvaluatorCachesPrograms(t *testing.T) {
	e := NewExprEvaluator()
	_, err := e.Transform("value * 2")
	require.NoError(t, err)
	_, err = e.Transform("value * 2")
	require.NoError(t, err)
	assert.Len(t, e.cache, 1)

	double, err := e.Transform("value * 2")
	require.NoError(t, err)
	out, err := double(21)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestUpper(t *testing.T) {
	out, err := Upper("  ab-1 ")
	require.NoError(t, err)
	assert.Equal(t, "AB-1", out)

	out, err = Upper(7)
	require.NoError(t, err)
	assert.Equal(t, 7, out)
}
