package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/t77yq/careops-alerts/internal/model"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		current  any
		operator model.Operator
		value    any
		want     bool
	}{
		{"gt true", 95.0, model.OperatorGreaterThan, 90, true},
		{"gt boundary", 90, model.OperatorGreaterThan, 90.0, false},
		{"gte boundary", 60, model.OperatorGreaterOrEqual, 60, true},
		{"lt true", 1, model.OperatorLessThan, 2.0, true},
		{"lte boundary", int64(2), model.OperatorLessOrEqual, 2, true},
		{"eq numeric across kinds", uint8(3), model.OperatorEqual, 3.0, true},
		{"ne numeric", 3, model.OperatorNotEqual, 4, true},
		{"eq bool", true, model.OperatorEqual, true, true},
		{"ne bool", false, model.OperatorNotEqual, true, true},
		{"eq string", "green", model.OperatorEqual, "green", true},
		{"eq string and number is strict", "5", model.OperatorEqual, 5, false},
		{"ne string and number", "5", model.OperatorNotEqual, 5, true},
		{"gt on strings is undefined", "b", model.OperatorGreaterThan, "a", false},
		{"gt on bool is undefined", true, model.OperatorGreaterThan, 0, false},
		{"nil metric", nil, model.OperatorGreaterThan, 1, false},
		{"eq nil", nil, model.OperatorEqual, nil, true},
		{"unknown operator", 5, model.Operator("between"), 1, false},
		{"eq on map is undefined", map[string]any{"a": 1}, model.OperatorEqual, "a", false},
		{"ne on slice is undefined", []int{1}, model.OperatorNotEqual, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := model.Condition{MetricID: "m", Operator: tt.operator, Value: tt.value}
			assert.Equal(t, tt.want, Evaluate(tt.current, cond))
		})
	}
}
