package services

import (
	"testing"

	"github.com/careflow/approvals/internal/domain/models"
	"github.com/stretchr/testify/assert"
)

func TestConditionEvaluator_Operators(t *testing.T) {
	ev := NewConditionEvaluator(nil)
	doc := map[string]interface{}{
		"amount":   7500.0,
		"severity": "high",
		"patient": map[string]interface{}{
			"ward": "acute-medical",
			"age":  82,
		},
		"tags": []interface{}{"falls", "medication"},
	}

	tests := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"equals string", models.Condition{Field: "severity", Operator: models.OpEquals, Value: "high"}, true},
		{"not equals", models.Condition{Field: "severity", Operator: models.OpNotEquals, Value: "low"}, true},
		{"greater than number", models.Condition{Field: "amount", Operator: models.OpGreaterThan, Value: 5000}, true},
		{"greater than numeric string", models.Condition{Field: "amount", Operator: models.OpGreaterThan, Value: "10000"}, false},
		{"less than nested", models.Condition{Field: "patient.age", Operator: models.OpLessThan, Value: 65}, false},
		{"contains substring", models.Condition{Field: "patient.ward", Operator: models.OpContains, Value: "acute"}, true},
		{"not contains substring", models.Condition{Field: "patient.ward", Operator: models.OpNotContains, Value: "surgical"}, true},
		{"contains list member", models.Condition{Field: "tags", Operator: models.OpContains, Value: "falls"}, true},
		{"not contains list member", models.Condition{Field: "tags", Operator: models.OpNotContains, Value: "falls"}, false},
		{"missing field", models.Condition{Field: "patient.room", Operator: models.OpEquals, Value: "4"}, false},
		{"type mismatch", models.Condition{Field: "severity", Operator: models.OpGreaterThan, Value: 3}, false},
		{"unknown operator", models.Condition{Field: "severity", Operator: "matches", Value: "h.*"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ev.Evaluate([]models.Condition{tc.cond}, doc))
		})
	}
}

func TestConditionEvaluator_LeftToRightFold(t *testing.T) {
	ev := NewConditionEvaluator(nil)
	doc := map[string]interface{}{"a": 1, "b": 2, "c": 3}

	isTrue := func(field string, op models.LogicalOperator) models.Condition {
		return models.Condition{Field: field, Operator: models.OpGreaterThan, Value: 0, LogicalOperator: op}
	}
	isFalse := func(field string, op models.LogicalOperator) models.Condition {
		return models.Condition{Field: field, Operator: models.OpLessThan, Value: 0, LogicalOperator: op}
	}

	assert.True(t, ev.Evaluate(nil, doc), "empty list passes")

	// (true OR false) AND false = false; precedence-aware evaluation would give true OR (false AND false) = true
	assert.False(t, ev.Evaluate([]models.Condition{
		isTrue("a", models.LogicalOr),
		isFalse("b", models.LogicalAnd),
		isFalse("c", ""),
	}, doc))

	// (false AND true) OR true = true
	assert.True(t, ev.Evaluate([]models.Condition{
		isFalse("a", models.LogicalAnd),
		isTrue("b", models.LogicalOr),
		isTrue("c", ""),
	}, doc))

	// missing logical operator defaults to AND
	assert.False(t, ev.Evaluate([]models.Condition{isTrue("a", ""), isFalse("b", "")}, doc))
}

func TestLookupField(t *testing.T) {
	doc := map[string]interface{}{"patient": map[string]interface{}{"clinician": "u-9"}}

	v, ok := LookupField(doc, "patient.clinician")
	assert.True(t, ok)
	assert.Equal(t, "u-9", v)

	_, ok = LookupField(doc, "patient.clinician.name")
	assert.False(t, ok)

	_, ok = LookupField(nil, "patient")
	assert.False(t, ok)
}
