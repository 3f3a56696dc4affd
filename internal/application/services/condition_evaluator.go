package services

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/pkg/expression"
)

// operatorExpressions maps each operator to the expression run for scalar and list left-hand sides.
var operatorExpressions = map[models.Operator]struct{ scalar, list string }{
	models.OpEquals:      {"lhs == rhs", "lhs == rhs"},
	models.OpNotEquals:   {"lhs != rhs", "lhs != rhs"},
	models.OpGreaterThan: {"lhs > rhs", "lhs > rhs"},
	models.OpLessThan:    {"lhs < rhs", "lhs < rhs"},
	models.OpContains:    {"lhs contains rhs", "rhs in lhs"},
	models.OpNotContains: {"!(lhs contains rhs)", "rhs not in lhs"},
}

// ConditionEvaluator evaluates step and trigger conditions against a document context.
//
// A list is folded strictly left to right with no operator precedence: the
// logical operator stored on condition i joins the running result with
// condition i+1. An empty list passes. A condition whose field is missing or
// whose operands cannot be compared is false.
type ConditionEvaluator struct {
	engine *expression.Engine
}

// NewConditionEvaluator creates a ConditionEvaluator backed by the expression engine
func NewConditionEvaluator(engine *expression.Engine) *ConditionEvaluator {
	if engine == nil {
		engine = expression.NewEngine()
	}
	return &ConditionEvaluator{engine: engine}
}

// Evaluate reports whether the condition list passes for doc.
func (e *ConditionEvaluator) Evaluate(conditions []models.Condition, doc map[string]interface{}) bool {
	if len(conditions) == 0 {
		return true
	}

	result := e.evaluateOne(conditions[0], doc)
	for i := 1; i < len(conditions); i++ {
		next := e.evaluateOne(conditions[i], doc)
		if conditions[i-1].LogicalOperator == models.LogicalOr {
			result = result || next
		} else {
			result = result && next
		}
	}
	return result
}

func (e *ConditionEvaluator) evaluateOne(c models.Condition, doc map[string]interface{}) bool {
	exprs, ok := operatorExpressions[c.Operator]
	if !ok {
		return false
	}

	lhs, found := LookupField(doc, c.Field)
	if !found {
		return false
	}
	lhs, rhs := normalizeOperands(lhs, c.Value)

	source := exprs.scalar
	if isList(lhs) {
		source = exprs.list
	}

	result, err := e.engine.EvaluateBool(source, map[string]interface{}{"lhs": lhs, "rhs": rhs})
	if err != nil {
		return false
	}
	return result
}

// LookupField resolves a dot-path such as "patient.ward" inside a nested document.
func LookupField(doc map[string]interface{}, path string) (interface{}, bool) {
	if doc == nil || path == "" {
		return nil, false
	}

	var current interface{} = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// normalizeOperands brings numeric strings to float64 when the other side is numeric,
// so a condition value typed as "5000" compares with an amount of 7500.
func normalizeOperands(lhs, rhs interface{}) (interface{}, interface{}) {
	lf, lNum := toFloat(lhs)
	rf, rNum := toFloat(rhs)

	switch {
	case lNum && rNum:
		return lf, rf
	case lNum:
		if s, ok := rhs.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return lf, f
			}
		}
	case rNum:
		if s, ok := lhs.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f, rf
			}
		}
	}
	return lhs, rhs
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func isList(v interface{}) bool {
	if v == nil {
		return false
	}
	kind := reflect.TypeOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}
