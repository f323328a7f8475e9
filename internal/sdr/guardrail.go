package sdr

import (
	"context"
	"fmt"

	adkagent "google.golang.org/adk/agent"
	"google.golang.org/genai"

	"github.com/hal9000y/sdr/internal/agent"
	"github.com/hal9000y/sdr/internal/config"
	"github.com/hal9000y/sdr/internal/persona"
)

// NameCheckOutput is the structured answer of the name check agent.
type NameCheckOutput struct {
	IsNameInMessage bool   `json:"is_name_in_message"`
	Name            string `json:"name"`
}

var nameCheckSchema = &genai.Schema{
	Title: "NameCheckOutput",
	Type:  genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"is_name_in_message": {Type: genai.TypeBoolean},
		"name":               {Type: genai.TypeString},
	},
	Required: []string{"is_name_in_message", "name"},
}

// nameGuardrail trips when the request mentions a personal name.
type nameGuardrail struct {
	runtime agentRuntime
	agent   adkagent.Agent
}

func newNameGuardrail(cfg config.AgentConfig, runtime agentRuntime) (*nameGuardrail, error) {
	c := persona.NameCheck.Render(cfg).Config()
	c.OutputSchema = nameCheckSchema

	a, err := runtime.NewAgent(c)
	if err != nil {
		return nil, err
	}
	return &nameGuardrail{runtime: runtime, agent: a}, nil
}

func (g *nameGuardrail) Name() string { return "guardrail_against_name" }

func (g *nameGuardrail) Check(ctx context.Context, input string) (agent.GuardrailOutput, error) {
	res, err := g.runtime.Run(ctx, g.agent, input)
	if err != nil {
		return agent.GuardrailOutput{}, fmt.Errorf("runtime.Run failed: %w", err)
	}

	out, err := agent.DecodeOutput[NameCheckOutput](res)
	if err != nil {
		return agent.GuardrailOutput{}, err
	}

	return agent.GuardrailOutput{TripwireTriggered: out.IsNameInMessage, Info: out}, nil
}
