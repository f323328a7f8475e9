package agent

import (
	"context"
	"errors"
	"fmt"

	adkagent "google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/hal9000y/sdr/internal/llm"
	"github.com/hal9000y/sdr/internal/logger"
	"github.com/hal9000y/sdr/internal/metrics"
)

// DefaultMaxTurns bounds model calls per session, handoffs included.
const DefaultMaxTurns = 10

const (
	appName = "sdr"
	userID  = "sdr"
)

// ErrMaxTurnsExceeded is returned when an agent keeps calling tools past the turn limit.
var ErrMaxTurnsExceeded = errors.New("max turns exceeded")

// Runtime creates agents on one model and runs them.
type Runtime struct {
	model    model.LLM
	maxTurns int
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithMaxTurns overrides DefaultMaxTurns. Non-positive values are ignored.
func WithMaxTurns(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.maxTurns = n
		}
	}
}

// NewRuntime creates a Runtime.
func NewRuntime(m model.LLM, opts ...Option) *Runtime {
	r := &Runtime{model: m, maxTurns: DefaultMaxTurns}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewAgent creates an llm agent on the runtime's model. The runtime's model
// callbacks run before the ones set in cfg.
func (r *Runtime) NewAgent(cfg llmagent.Config) (adkagent.Agent, error) {
	cfg.Model = r.model
	cfg.BeforeModelCallbacks = append([]llmagent.BeforeModelCallback{r.beforeModel}, cfg.BeforeModelCallbacks...)
	cfg.AfterModelCallbacks = append([]llmagent.AfterModelCallback{r.afterModel}, cfg.AfterModelCallbacks...)

	a, err := llmagent.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("llmagent.New %q failed: %w", cfg.Name, err)
	}
	return a, nil
}

// beforeModel halts the agent once the request has failed or the session ran out of turns.
func (r *Runtime) beforeModel(ctx adkagent.CallbackContext, _ *model.LLMRequest) (*model.LLMResponse, error) {
	st := stateFrom(ctx)
	if err := st.err(); err != nil {
		return nil, err
	}
	if st.turn(sessionKey(ctx)) > r.maxTurns {
		err := fmt.Errorf("agent %q: %w (%d)", ctx.AgentName(), ErrMaxTurnsExceeded, r.maxTurns)
		st.fail(err)
		return nil, err
	}
	return nil, nil
}

// afterModel accounts usage and records model errors so that agents waiting
// on a failed agent tool stop as well.
func (r *Runtime) afterModel(ctx adkagent.CallbackContext, resp *model.LLMResponse, llmErr error) (*model.LLMResponse, error) {
	st := stateFrom(ctx)
	if llmErr != nil {
		st.fail(fmt.Errorf("agent %q: model call failed: %w", ctx.AgentName(), llmErr))
		return nil, nil
	}

	if resp != nil && resp.UsageMetadata != nil {
		in := int64(resp.UsageMetadata.PromptTokenCount)
		out := int64(resp.UsageMetadata.CandidatesTokenCount)
		st.addUsage(in, out)
		metrics.AgentTokens.WithLabelValues(ctx.AgentName(), "input").Add(float64(in))
		metrics.AgentTokens.WithLabelValues(ctx.AgentName(), "output").Add(float64(out))
	}
	return nil, nil
}

// Run executes a with input in a fresh session until it gives a final answer.
//
// Runs started from inside another run, such as guardrail checks, share the
// request state carried by ctx. A tripped input guardrail returns
// *TripwireError. A failure recorded with Fail, a model error or a turn limit
// hit anywhere in the request aborts the run with that error.
func (r *Runtime) Run(ctx context.Context, a adkagent.Agent, input string) (*Result, error) {
	ctx, st := withState(ctx)
	trace := TraceFrom(ctx)
	log := logger.Get().With("agent", a.Name(), "trace_id", trace.ID, "trace", trace.Name)

	sessions := session.InMemoryService()
	rn, err := runner.New(runner.Config{AppName: appName, Agent: a, SessionService: sessions})
	if err != nil {
		return nil, fmt.Errorf("runner.New failed: %w", err)
	}
	created, err := sessions.Create(ctx, &session.CreateRequest{AppName: appName, UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("sessions.Create failed: %w", err)
	}
	sessionID := created.Session.ID()

	res := &Result{LastAgent: a.Name()}
	msg := genai.NewContentFromText(input, genai.RoleUser)
	for ev, err := range rn.Run(ctx, userID, sessionID, msg, adkagent.RunConfig{StreamingMode: adkagent.StreamingModeNone}) {
		if err != nil {
			if failure := st.err(); failure != nil {
				err = failure
			}
			metrics.AgentRuns.WithLabelValues(a.Name(), "error").Inc()
			log.Debugw("agent failed", "error", err)
			return nil, fmt.Errorf("agent %q: %w", a.Name(), err)
		}
		res.collect(ev)
	}

	if trip := st.tripped(); trip != nil {
		metrics.AgentRuns.WithLabelValues(a.Name(), "blocked").Inc()
		return nil, trip
	}

	res.Turns = st.turnsIn(appName + "/" + sessionID)
	res.Usage = st.totalUsage()
	metrics.AgentRuns.WithLabelValues(a.Name(), "success").Inc()
	log.Debugw("agent finished", "last_agent", res.LastAgent, "turns", res.Turns)
	return res, nil
}

func (res *Result) collect(ev *session.Event) {
	if ev == nil || ev.Content == nil {
		return
	}

	for _, p := range ev.Content.Parts {
		if p == nil || p.FunctionResponse == nil {
			continue
		}
		fr := p.FunctionResponse
		status := "success"
		if _, failed := fr.Response["error"]; failed {
			status = "error"
		}
		metrics.ToolCalls.WithLabelValues(fr.Name, status).Inc()
		res.ToolCalls = append(res.ToolCalls, ToolCallRecord{Agent: ev.Author, Tool: fr.Name, Output: llm.FunctionResponseText(fr.Response)})
	}

	if ev.IsFinalResponse() {
		res.FinalOutput = llm.Text(ev.Content)
		res.LastAgent = ev.Author
	}
}
