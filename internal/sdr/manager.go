// Package sdr orchestrates the sales agents: drafting, selection, guardrail and delivery.
package sdr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	adkagent "google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"

	"github.com/hal9000y/sdr/internal/agent"
	"github.com/hal9000y/sdr/internal/config"
	"github.com/hal9000y/sdr/internal/logger"
	"github.com/hal9000y/sdr/internal/mailer"
	"github.com/hal9000y/sdr/internal/persona"
	"github.com/hal9000y/sdr/internal/tool"
)

const (
	DefaultTraceName    = "Automated SDR"
	DefaultDraftMessage = "Write a cold sales email"

	// sendLimit is the number of emails one SendSalesEmail call may transmit.
	sendLimit = 1
)

// ErrNoDrafts is returned by PickBest for an empty draft list.
var ErrNoDrafts = errors.New("no drafts to pick from")

// Outcome is the terminal state of a send request.
type Outcome string

const (
	OutcomeDelivered  Outcome = "delivered"
	OutcomeBlocked    Outcome = "blocked"
	OutcomeNoDelivery Outcome = "no_delivery"
)

// SendOptions selects the send path. The zero value takes the handoff path.
type SendOptions struct {
	// NoHandoff makes the sales manager send the plain-text winner itself
	// instead of handing it to the Email Manager.
	NoHandoff bool
	TraceName string
}

func DefaultSendOptions() SendOptions {
	return SendOptions{TraceName: DefaultTraceName}
}

// SendResult describes how a send request ended.
type SendResult struct {
	Outcome     Outcome
	FinalOutput string
	LastAgent   string
	NameCheck   *NameCheckOutput
	Delivery    *mailer.DeliveryResult
	TraceID     string
	TraceName   string
}

type agentRuntime interface {
	NewAgent(cfg llmagent.Config) (adkagent.Agent, error)
	Run(ctx context.Context, a adkagent.Agent, input string) (*agent.Result, error)
}

// Manager holds the agent graph. It is safe for concurrent use.
type Manager struct {
	runtime agentRuntime
	tools   *tool.Factory

	salesManager       adkagent.Agent
	salesManagerDirect adkagent.Agent
	picker             adkagent.Agent
}

// New builds both send graphs from cfg and tools.
//
// Handoff graph: sales_manager drafts through the sales agent tools and
// transfers to its only sub-agent, email_manager, which writes a subject,
// converts the draft to HTML and sends it. Direct graph: sales_manager drafts
// and calls send_email itself. Both roots run the name check first.
func New(cfg config.AgentConfig, runtime agentRuntime, tools *tool.Factory) (*Manager, error) {
	guardrail, err := newNameGuardrail(cfg, runtime)
	if err != nil {
		return nil, err
	}
	guard := []adkagent.BeforeAgentCallback{agent.InputGuardrail(guardrail)}

	c := persona.Delegate.Render(cfg).Config()
	c.Tools = append(tools.EmailFormattingTools(), tools.SendHTMLEmailTool())
	c.DisallowTransferToParent = true
	c.DisallowTransferToPeers = true
	c.IncludeContents = llmagent.IncludeContentsNone
	c.BeforeModelCallbacks = []llmagent.BeforeModelCallback{handoffInput}
	emailManager, err := runtime.NewAgent(c)
	if err != nil {
		return nil, err
	}

	c = persona.SalesManager.Render(cfg).Config()
	c.Tools = tools.SalesAgentTools()
	c.SubAgents = []adkagent.Agent{emailManager}
	c.BeforeAgentCallbacks = guard
	c.BeforeModelCallbacks = []llmagent.BeforeModelCallback{requireHandoffBody}
	c.BeforeToolCallbacks = []llmagent.BeforeToolCallback{captureHandoffBody}
	salesManager, err := runtime.NewAgent(c)
	if err != nil {
		return nil, err
	}

	c = persona.SalesManagerDirect.Render(cfg).Config()
	c.Tools = append(tools.SalesAgentTools(), tools.SendEmailTool())
	c.BeforeAgentCallbacks = guard
	direct, err := runtime.NewAgent(c)
	if err != nil {
		return nil, err
	}

	picker, err := runtime.NewAgent(persona.Picker.Render(cfg).Config())
	if err != nil {
		return nil, err
	}

	return &Manager{
		runtime:            runtime,
		tools:              tools,
		salesManager:       salesManager,
		salesManagerDirect: direct,
		picker:             picker,
	}, nil
}

// SendSalesEmail drafts, selects and sends one cold email for message.
//
// A request naming a person ends with OutcomeBlocked and a nil error; nothing is drafted or sent.
// Model, tool and delivery errors are returned wrapped.
func (m *Manager) SendSalesEmail(ctx context.Context, message string, opts SendOptions) (*SendResult, error) {
	if opts.TraceName == "" {
		opts.TraceName = DefaultTraceName
	}

	ctx, trace := agent.WithTrace(ctx, opts.TraceName)
	ctx, budget := tool.WithSendBudget(ctx, sendLimit)
	log := logger.Get().With("trace_id", trace.ID, "trace", trace.Name, "handoff", !opts.NoHandoff)

	root := m.salesManager
	if opts.NoHandoff {
		root = m.salesManagerDirect
	}

	result := &SendResult{TraceID: trace.ID, TraceName: trace.Name}

	log.Infow("send sales email started")
	res, err := m.runtime.Run(ctx, root, message)

	var trip *agent.TripwireError
	if errors.As(err, &trip) {
		result.Outcome = OutcomeBlocked
		if nc, ok := trip.Output.Info.(NameCheckOutput); ok {
			result.NameCheck = &nc
		}
		log.Infow("send sales email blocked", "guardrail", trip.Guardrail)
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runtime.Run failed: %w", err)
	}

	result.FinalOutput = res.FinalOutput
	result.LastAgent = res.LastAgent
	result.Outcome = OutcomeNoDelivery
	if d, ok := budget.Delivery(); ok {
		result.Outcome = OutcomeDelivered
		result.Delivery = &d
	}
	if n := budget.Refused(); n > 0 {
		log.Warnw("extra sends refused", "count", n)
	}

	log.Infow("send sales email finished", "outcome", result.Outcome, "last_agent", result.LastAgent, "turns", res.Turns)
	return result, nil
}

// GenerateDrafts runs the three drafting personas concurrently.
// Drafts are returned in persona order: professional, engaging, busy.
func (m *Manager) GenerateDrafts(ctx context.Context, message string) ([]string, error) {
	if message == "" {
		message = DefaultDraftMessage
	}

	drafters := m.tools.SalesAgents()
	drafts := make([]string, len(drafters))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range drafters {
		g.Go(func() error {
			res, err := m.runtime.Run(gctx, d, message)
			if err != nil {
				return err
			}
			drafts[i] = res.FinalOutput
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("generate drafts failed: %w", err)
	}

	return drafts, nil
}

// PickBest asks the picker persona for the draft it would most likely answer.
func (m *Manager) PickBest(ctx context.Context, drafts []string) (string, error) {
	if len(drafts) == 0 {
		return "", ErrNoDrafts
	}

	res, err := m.runtime.Run(ctx, m.picker, PickerPrompt(drafts))
	if err != nil {
		return "", fmt.Errorf("runtime.Run failed: %w", err)
	}

	return res.FinalOutput, nil
}

// PickerPrompt lists drafts the way the picker expects them.
func PickerPrompt(drafts []string) string {
	return "Cold sales emails:\n\n" + strings.Join(drafts, "\n\nEmail:\n\n")
}
