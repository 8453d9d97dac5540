package monitor

import (
	"github.com/t77yq/careops-alerts/internal/model"
)

// Evaluate reports whether current satisfies the condition. Ordering
// operators need numeric operands on both sides; equality on non-numeric
// operands is strict. Anything undefined evaluates to false.
func Evaluate(current any, cond model.Condition) bool {
	a, aNumeric := toFloat(current)
	b, bNumeric := toFloat(cond.Value)
	if aNumeric && bNumeric {
		switch cond.Operator {
		case model.OperatorGreaterThan:
			return a > b
		case model.OperatorLessThan:
			return a < b
		case model.OperatorGreaterOrEqual:
			return a >= b
		case model.OperatorLessOrEqual:
			return a <= b
		case model.OperatorEqual:
			return a == b
		case model.OperatorNotEqual:
			return a != b
		default:
			return false
		}
	}

	switch cond.Operator {
	case model.OperatorEqual:
		eq, ok := primitiveEqual(current, cond.Value)
		return ok && eq
	case model.OperatorNotEqual:
		eq, ok := primitiveEqual(current, cond.Value)
		return ok && !eq
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	default:
		return 0, false
	}
}

// primitiveEqual compares bools, strings and nil. ok is false when either
// side is some other type, so maps and slices never reach ==.
func primitiveEqual(a, b any) (eq bool, ok bool) {
	if !isPrimitive(a) || !isPrimitive(b) {
		return false, false
	}
	return a == b, true
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case nil, bool, string:
		return true
	}
	_, numeric := toFloat(v)
	return numeric
}
