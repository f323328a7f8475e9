package agent_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	adkagent "google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/agenttool"
	"google.golang.org/adk/tool/functiontool"
	"google.golang.org/genai"

	"github.com/hal9000y/sdr/internal/agent"
	"github.com/hal9000y/sdr/internal/llm"
)

type modelMock struct {
	mu           sync.Mutex
	requests     []*model.LLMRequest
	GenerateFunc func(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error)
}

func (m *modelMock) Name() string { return "mock" }

func (m *modelMock) GenerateContent(ctx context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return func(yield func(*model.LLMResponse, error) bool) {
		yield(m.GenerateFunc(ctx, req))
	}
}

func (m *modelMock) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func text(s string) *model.LLMResponse {
	return &model.LLMResponse{
		Content:       genai.NewContentFromText(s, genai.RoleModel),
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 1, CandidatesTokenCount: 1},
	}
}

func call(id, name string, args map[string]any) *model.LLMResponse {
	return &model.LLMResponse{Content: &genai.Content{
		Role:  genai.RoleModel,
		Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{ID: id, Name: name, Args: args}}},
	}}
}

func system(req *model.LLMRequest) string {
	if req.Config == nil || req.Config.SystemInstruction == nil || len(req.Config.SystemInstruction.Parts) == 0 {
		return ""
	}
	return req.Config.SystemInstruction.Parts[0].Text
}

// lastResponse returns the newest function response in req, or nil.
func lastResponse(req *model.LLMRequest) *genai.FunctionResponse {
	last := req.Contents[len(req.Contents)-1]
	for _, p := range last.Parts {
		if p.FunctionResponse != nil {
			return p.FunctionResponse
		}
	}
	return nil
}

func toolNames(req *model.LLMRequest) []string {
	var names []string
	if req.Config == nil {
		return names
	}
	for _, t := range req.Config.Tools {
		for _, d := range t.FunctionDeclarations {
			names = append(names, d.Name)
		}
	}
	return names
}

type guardrailMock struct {
	name      string
	CheckFunc func(ctx context.Context, input string) (agent.GuardrailOutput, error)
}

func (g *guardrailMock) Name() string { return g.name }

func (g *guardrailMock) Check(ctx context.Context, input string) (agent.GuardrailOutput, error) {
	return g.CheckFunc(ctx, input)
}

type upperArgs struct {
	Text string `json:"text"`
}

type upperResult struct {
	Upper string `json:"upper"`
}

func newAgent(t *testing.T, rt *agent.Runtime, cfg llmagent.Config) adkagent.Agent {
	t.Helper()
	a, err := rt.NewAgent(cfg)
	require.NoError(t, err)
	return a
}

func TestRunPlainAnswer(t *testing.T) {
	m := &modelMock{GenerateFunc: func(_ context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
		return text("echo: " + llm.Text(req.Contents[len(req.Contents)-1])), nil
	}}
	rt := agent.NewRuntime(m)
	echo := newAgent(t, rt, llmagent.Config{Name: "echo", Instruction: "echo"})

	res, err := rt.Run(context.Background(), echo, "hi")
	require.NoError(t, err)

	assert.Equal(t, "echo: hi", res.FinalOutput)
	assert.Equal(t, "echo", res.LastAgent)
	assert.Equal(t, 1, res.Turns)
	assert.Equal(t, agent.Usage{InputTokens: 1, OutputTokens: 1}, res.Usage)
	require.Len(t, m.requests, 1)
	assert.Equal(t, "echo", system(m.requests[0]))
	assert.Empty(t, toolNames(m.requests[0]))
}

func TestRunToolLoop(t *testing.T) {
	var got string
	upper, err := functiontool.New[upperArgs, upperResult](functiontool.Config{Name: "upper", Description: "Uppercase text"}, func(_ tool.Context, in upperArgs) (upperResult, error) {
		got = in.Text
		return upperResult{Upper: strings.ToUpper(in.Text)}, nil
	})
	require.NoError(t, err)

	m := &modelMock{GenerateFunc: func(_ context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
		if fr := lastResponse(req); fr != nil {
			assert.Equal(t, "c1", fr.ID)
			return text("tool said " + llm.FunctionResponseText(fr.Response)), nil
		}
		return call("c1", "upper", map[string]any{"text": "hello"}), nil
	}}
	rt := agent.NewRuntime(m)
	caller := newAgent(t, rt, llmagent.Config{Name: "caller", Instruction: "use tools", Tools: []tool.Tool{upper}})

	res, err := rt.Run(context.Background(), caller, "go")
	require.NoError(t, err)

	assert.Equal(t, "hello", got)
	assert.Equal(t, `tool said {"upper":"HELLO"}`, res.FinalOutput)
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, []agent.ToolCallRecord{{Agent: "caller", Tool: "upper", Output: `{"upper":"HELLO"}`}}, res.ToolCalls)
	assert.Equal(t, []string{"upper"}, toolNames(m.requests[0]))
}

func TestRunGuardrail(t *testing.T) {
	t.Run("tripwire_blocks_before_model", func(t *testing.T) {
		m := &modelMock{GenerateFunc: func(context.Context, *model.LLMRequest) (*model.LLMResponse, error) {
			return nil, errors.New("model must not be called")
		}}
		g := &guardrailMock{name: "name_check", CheckFunc: func(_ context.Context, input string) (agent.GuardrailOutput, error) {
			return agent.GuardrailOutput{TripwireTriggered: true, Info: "Alice"}, nil
		}}
		rt := agent.NewRuntime(m)
		a := newAgent(t, rt, llmagent.Config{Name: "manager", BeforeAgentCallbacks: []adkagent.BeforeAgentCallback{agent.InputGuardrail(g)}})

		_, err := rt.Run(context.Background(), a, "to Alice")
		var trip *agent.TripwireError
		require.True(t, errors.As(err, &trip))
		assert.Equal(t, "name_check", trip.Guardrail)
		assert.Equal(t, "Alice", trip.Output.Info)
		assert.Equal(t, 0, m.calls())
	})

	t.Run("pass", func(t *testing.T) {
		var checked string
		m := &modelMock{GenerateFunc: func(context.Context, *model.LLMRequest) (*model.LLMResponse, error) { return text("ok"), nil }}
		g := &guardrailMock{name: "name_check", CheckFunc: func(_ context.Context, input string) (agent.GuardrailOutput, error) {
			checked = input
			return agent.GuardrailOutput{}, nil
		}}
		rt := agent.NewRuntime(m)
		a := newAgent(t, rt, llmagent.Config{Name: "manager", BeforeAgentCallbacks: []adkagent.BeforeAgentCallback{agent.InputGuardrail(g)}})

		res, err := rt.Run(context.Background(), a, "to the VP")
		require.NoError(t, err)
		assert.Equal(t, "ok", res.FinalOutput)
		assert.Equal(t, "to the VP", checked)
	})

	t.Run("error_propagates", func(t *testing.T) {
		boom := errors.New("boom")
		m := &modelMock{GenerateFunc: func(context.Context, *model.LLMRequest) (*model.LLMResponse, error) { return text("ok"), nil }}
		g := &guardrailMock{name: "name_check", CheckFunc: func(context.Context, string) (agent.GuardrailOutput, error) {
			return agent.GuardrailOutput{}, boom
		}}
		rt := agent.NewRuntime(m)
		a := newAgent(t, rt, llmagent.Config{Name: "manager", BeforeAgentCallbacks: []adkagent.BeforeAgentCallback{agent.InputGuardrail(g)}})

		_, err := rt.Run(context.Background(), a, "x")
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 0, m.calls())
	})
}

func TestRunAgentTool(t *testing.T) {
	m := &modelMock{GenerateFunc: func(_ context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
		switch system(req) {
		case "drafter":
			return text("draft for " + llm.Text(req.Contents[0])), nil
		case "boss":
			if fr := lastResponse(req); fr != nil {
				return text("picked: " + llm.FunctionResponseText(fr.Response)), nil
			}
			return call("c1", "sales_agent1", map[string]any{"request": "ACME"}), nil
		}
		return nil, fmt.Errorf("unexpected agent %q", system(req))
	}}
	rt := agent.NewRuntime(m)

	drafter := newAgent(t, rt, llmagent.Config{Name: "sales_agent1", Description: "Write a cold sales email", Instruction: "drafter"})
	drafterTool := agenttool.New(drafter, nil)
	assert.Equal(t, "sales_agent1", drafterTool.Name())
	assert.Equal(t, "Write a cold sales email", drafterTool.Description())

	boss := newAgent(t, rt, llmagent.Config{Name: "boss", Instruction: "boss", Tools: []tool.Tool{drafterTool}})
	res, err := rt.Run(context.Background(), boss, "go")
	require.NoError(t, err)
	assert.Equal(t, "picked: draft for ACME", res.FinalOutput)
	assert.Equal(t, 2, res.Turns, "agent tool turns are counted in their own session")
	assert.Equal(t, agent.Usage{InputTokens: 2, OutputTokens: 2}, res.Usage, "usage covers agent tools")
}

func TestRunNestedModelErrorAbortsParent(t *testing.T) {
	boom := errors.New("quota exceeded")
	m := &modelMock{GenerateFunc: func(_ context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
		if system(req) == "drafter" {
			return nil, boom
		}
		return call("c1", "sales_agent1", map[string]any{"request": "ACME"}), nil
	}}
	rt := agent.NewRuntime(m)
	drafter := newAgent(t, rt, llmagent.Config{Name: "sales_agent1", Instruction: "drafter"})
	boss := newAgent(t, rt, llmagent.Config{Name: "boss", Instruction: "boss", Tools: []tool.Tool{agenttool.New(drafter, nil)}})

	_, err := rt.Run(context.Background(), boss, "go")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, m.calls(), "boss stops after the failed agent tool")
}

func TestFailAbortsRun(t *testing.T) {
	provider := errors.New("provider said no")
	send, err := functiontool.New[upperArgs, upperResult](functiontool.Config{Name: "send", Description: "Send"}, func(tctx tool.Context, _ upperArgs) (upperResult, error) {
		agent.Fail(tctx, provider)
		return upperResult{}, provider
	})
	require.NoError(t, err)

	m := &modelMock{GenerateFunc: func(context.Context, *model.LLMRequest) (*model.LLMResponse, error) {
		return call("c1", "send", map[string]any{"text": "x"}), nil
	}}
	rt := agent.NewRuntime(m)
	a := newAgent(t, rt, llmagent.Config{Name: "manager", Tools: []tool.Tool{send}})

	_, err = rt.Run(context.Background(), a, "go")
	require.ErrorIs(t, err, provider)
	assert.Equal(t, 1, m.calls())
}

func TestRunMaxTurns(t *testing.T) {
	loop, err := functiontool.New[upperArgs, upperResult](functiontool.Config{Name: "loop", Description: "Loop"}, func(tool.Context, upperArgs) (upperResult, error) {
		return upperResult{Upper: "AGAIN"}, nil
	})
	require.NoError(t, err)

	m := &modelMock{GenerateFunc: func(context.Context, *model.LLMRequest) (*model.LLMResponse, error) {
		return call("c", "loop", map[string]any{"text": ""}), nil
	}}
	rt := agent.NewRuntime(m, agent.WithMaxTurns(3))
	a := newAgent(t, rt, llmagent.Config{Name: "looper", Tools: []tool.Tool{loop}})

	_, err = rt.Run(context.Background(), a, "go")
	require.ErrorIs(t, err, agent.ErrMaxTurnsExceeded)
	assert.Equal(t, 3, m.calls())
}

func TestRunModelError(t *testing.T) {
	boom := errors.New("rate limited")
	m := &modelMock{GenerateFunc: func(context.Context, *model.LLMRequest) (*model.LLMResponse, error) { return nil, boom }}
	rt := agent.NewRuntime(m)
	a := newAgent(t, rt, llmagent.Config{Name: "manager"})

	_, err := rt.Run(context.Background(), a, "go")
	require.ErrorIs(t, err, boom)
}

func TestDecodeOutput(t *testing.T) {
	type out struct {
		OK   bool   `json:"ok"`
		Name string `json:"name"`
	}

	got, err := agent.DecodeOutput[out](&agent.Result{FinalOutput: `{"ok":true,"name":"Alice"}`})
	require.NoError(t, err)
	assert.Equal(t, out{OK: true, Name: "Alice"}, got)

	_, err = agent.DecodeOutput[out](&agent.Result{FinalOutput: "Sure! Here you go", LastAgent: "name_check"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed structured output")
}

func TestTrace(t *testing.T) {
	assert.Equal(t, agent.Trace{}, agent.TraceFrom(context.Background()))

	ctx, tr := agent.WithTrace(context.Background(), "Automated SDR")
	assert.Equal(t, "Automated SDR", tr.Name)
	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, tr, agent.TraceFrom(ctx))
}
