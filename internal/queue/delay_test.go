package queue

import (
	"testing"

	"durableagent/internal/session"
)

func TestCalculateDelay(t *testing.T) {
	cases := []struct {
		name string
		in   DelayInputs
		want int64
	}{
		{"high base", DelayInputs{Priority: session.PriorityHigh}, 200},
		{"normal base", DelayInputs{Priority: session.PriorityNormal}, 1000},
		{"low base", DelayInputs{Priority: session.PriorityLow}, 5000},
		{"normal with tool calls", DelayInputs{Priority: session.PriorityNormal, HasToolCalls: true}, 2000},
		{"normal with errors step 3", DelayInputs{Priority: session.PriorityNormal, HasErrors: true, StepIndex: 3}, 4000},
		{"normal with errors step 20 capped", DelayInputs{Priority: session.PriorityNormal, HasErrors: true, StepIndex: 20}, 11000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateDelay(tc.in)
			if got != tc.want {
				t.Errorf("CalculateDelay(%+v) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}
