package agent

import (
	"context"
	"fmt"

	adkagent "google.golang.org/adk/agent"
	"google.golang.org/genai"

	"github.com/hal9000y/sdr/internal/llm"
	"github.com/hal9000y/sdr/internal/logger"
	"github.com/hal9000y/sdr/internal/metrics"
)

// GuardrailOutput is the verdict of one guardrail evaluation.
type GuardrailOutput struct {
	TripwireTriggered bool
	Info              any
}

// Guardrail inspects the input of a run before the agent starts.
type Guardrail interface {
	Name() string
	Check(ctx context.Context, input string) (GuardrailOutput, error)
}

// TripwireError is returned when an input guardrail blocks a run.
type TripwireError struct {
	Guardrail string
	Output    GuardrailOutput
}

func (e *TripwireError) Error() string {
	return fmt.Sprintf("input guardrail %q tripwire triggered", e.Guardrail)
}

// InputGuardrail turns g into a before-agent callback. A tripped guardrail
// ends the invocation before the agent makes any model call and Runtime.Run
// returns *TripwireError.
func InputGuardrail(g Guardrail) adkagent.BeforeAgentCallback {
	return func(ctx adkagent.CallbackContext) (*genai.Content, error) {
		out, err := g.Check(ctx, llm.Text(ctx.UserContent()))
		if err != nil {
			return nil, fmt.Errorf("guardrail %q failed: %w", g.Name(), err)
		}
		if !out.TripwireTriggered {
			return nil, nil
		}

		trace := TraceFrom(ctx)
		metrics.GuardrailBlocks.WithLabelValues(g.Name()).Inc()
		logger.Get().Infow("input guardrail tripped", "guardrail", g.Name(), "agent", ctx.AgentName(), "trace_id", trace.ID)

		stateFrom(ctx).trip(&TripwireError{Guardrail: g.Name(), Output: out})
		return genai.NewContentFromText(fmt.Sprintf("Blocked by %s.", g.Name()), genai.RoleModel), nil
	}
}
