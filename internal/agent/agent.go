// Package agent builds ADK llm agents on one shared model and runs them with
// request-wide bookkeeping: turn limits, failure propagation from nested
// agent tools, input guardrails, usage and metrics.
package agent

import (
	"encoding/json"
	"fmt"
)

// ToolCallRecord describes one executed tool call.
type ToolCallRecord struct {
	Agent  string
	Tool   string
	Output string
}

// Usage counts tokens spent by every model call of a request, agent tools included.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Result is the terminal state of a run.
type Result struct {
	FinalOutput string
	LastAgent   string
	// Turns counts model calls made in the run's own session, handoffs included.
	Turns     int
	ToolCalls []ToolCallRecord
	Usage     Usage
}

// DecodeOutput unmarshals the structured final output of res.
func DecodeOutput[T any](res *Result) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(res.FinalOutput), &out); err != nil {
		return out, fmt.Errorf("agent %q returned malformed structured output: %w", res.LastAgent, err)
	}
	return out, nil
}
