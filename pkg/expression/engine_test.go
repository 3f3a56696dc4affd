package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_EvaluateBool(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name string
		expr string
		env  map[string]interface{}
		want bool
	}{
		{"int equals float", "lhs == rhs", map[string]interface{}{"lhs": 5, "rhs": 5.0}, true},
		{"greater than", "lhs > rhs", map[string]interface{}{"lhs": 7500.0, "rhs": 5000}, true},
		{"less than", "lhs < rhs", map[string]interface{}{"lhs": 2, "rhs": 1}, false},
		{"string contains", "lhs contains rhs", map[string]interface{}{"lhs": "acute ward", "rhs": "ward"}, true},
		{"list membership", "rhs in lhs", map[string]interface{}{"lhs": []interface{}{"a", "b"}, "rhs": "b"}, true},
		{"not equals", "lhs != rhs", map[string]interface{}{"lhs": "draft", "rhs": "final"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.EvaluateBool(tc.expr, tc.env)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEngine_TypeMismatchIsError(t *testing.T) {
	e := NewEngine()

	_, err := e.EvaluateBool("lhs > rhs", map[string]interface{}{"lhs": "abc", "rhs": 3})
	assert.Error(t, err)
}

func TestEngine_CachesPrograms(t *testing.T) {
	e := NewEngine()

	_, err := e.Evaluate("lhs == rhs", map[string]interface{}{"lhs": 1, "rhs": 1})
	require.NoError(t, err)
	_, err = e.Evaluate("lhs == rhs", map[string]interface{}{"lhs": "x", "rhs": "y"})
	require.NoError(t, err)

	assert.Equal(t, 1, e.CacheSize())
}

func TestEngine_ValidateSyntax(t *testing.T) {
	e := NewEngine()

	assert.NoError(t, e.Validate("lhs == rhs"))
	assert.Error(t, e.Validate("lhs == == rhs"))
}
