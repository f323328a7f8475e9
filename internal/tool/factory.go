// Package tool builds the tools the SDR agents call and serves them over MCP.
package tool

import (
	"context"
	"fmt"

	adkagent "google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	adktool "google.golang.org/adk/tool"
	"google.golang.org/adk/tool/agenttool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/hal9000y/sdr/internal/agent"
	"github.com/hal9000y/sdr/internal/config"
	"github.com/hal9000y/sdr/internal/format"
	"github.com/hal9000y/sdr/internal/logger"
	"github.com/hal9000y/sdr/internal/mailer"
	"github.com/hal9000y/sdr/internal/persona"
)

const (
	NameSendEmail     = "send_email"
	NameSendHTMLEmail = "send_html_email"

	descSendEmail     = "Send out an email with the given body to all sales prospects."
	descSendHTMLEmail = "Send out an email with the given subject and HTML body to all sales prospects."

	StatusRefused = "refused"

	refusalMessage = "An email has already been sent for this request. Only one email may be sent; do not send again."
)

type emailSender interface {
	SendPlainText(ctx context.Context, body, subject string) (mailer.DeliveryResult, error)
	SendHTML(ctx context.Context, subject, htmlBody string) (mailer.DeliveryResult, error)
}

type htmlCleaner interface {
	Normalize(body string) (string, error)
}

type agentRuntime interface {
	NewAgent(cfg llmagent.Config) (adkagent.Agent, error)
	Run(ctx context.Context, a adkagent.Agent, input string) (*agent.Result, error)
}

type SendEmailRequest struct {
	Body string `json:"body" jsonschema:"the plain text email body"`
}

type SendHTMLEmailRequest struct {
	Subject  string `json:"subject" jsonschema:"the email subject"`
	HTMLBody string `json:"html_body" jsonschema:"the HTML email body"`
}

type SendResponse struct {
	Status     string `json:"status" jsonschema:"success or refused"`
	StatusCode int    `json:"status_code,omitempty" jsonschema:"provider status code"`
	Message    string `json:"message,omitempty" jsonschema:"reason the email was not sent"`
}

// Factory owns one instance of every SDR tool. Tools hold no per-request state.
type Factory struct {
	runtime agentRuntime
	sender  emailSender
	cleaner htmlCleaner

	salesAgents   []adkagent.Agent
	subjectWriter adkagent.Agent
	htmlConverter adkagent.Agent

	salesAgentTools []adktool.Tool
	formattingTools []adktool.Tool
	sendEmail       adktool.Tool
	sendHTMLEmail   adktool.Tool
}

// NewFactory renders the personas for cfg and wires them to runtime and sender.
// A nil cleaner defaults to format.Cleaner.
func NewFactory(cfg config.AgentConfig, runtime agentRuntime, sender emailSender, cleaner htmlCleaner) (*Factory, error) {
	if cleaner == nil {
		cleaner = format.Cleaner{}
	}
	f := &Factory{runtime: runtime, sender: sender, cleaner: cleaner}

	newAgent := func(k persona.Kind) (adkagent.Agent, error) {
		return runtime.NewAgent(k.Render(cfg).Config())
	}

	for _, k := range persona.Drafters {
		a, err := newAgent(k)
		if err != nil {
			return nil, err
		}
		f.salesAgents = append(f.salesAgents, a)
		f.salesAgentTools = append(f.salesAgentTools, agenttool.New(a, nil))
	}

	var err error
	if f.subjectWriter, err = newAgent(persona.SubjectWriter); err != nil {
		return nil, err
	}
	if f.htmlConverter, err = newAgent(persona.HTMLConverter); err != nil {
		return nil, err
	}
	f.formattingTools = []adktool.Tool{agenttool.New(f.subjectWriter, nil), agenttool.New(f.htmlConverter, nil)}

	f.sendEmail, err = functiontool.New[SendEmailRequest, SendResponse](functiontool.Config{
		Name:        NameSendEmail,
		Description: descSendEmail,
	}, func(tctx adktool.Context, req SendEmailRequest) (SendResponse, error) {
		resp, err := f.SendEmail(tctx, req)
		if err != nil {
			// delivery errors end the request; the model must not retry the send
			agent.Fail(tctx, err)
		}
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("functiontool.New %s failed: %w", NameSendEmail, err)
	}

	f.sendHTMLEmail, err = functiontool.New[SendHTMLEmailRequest, SendResponse](functiontool.Config{
		Name:        NameSendHTMLEmail,
		Description: descSendHTMLEmail,
	}, func(tctx adktool.Context, req SendHTMLEmailRequest) (SendResponse, error) {
		resp, err := f.SendHTMLEmail(tctx, req)
		if err != nil {
			agent.Fail(tctx, err)
		}
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("functiontool.New %s failed: %w", NameSendHTMLEmail, err)
	}

	return f, nil
}

// SalesAgents returns the drafting agents in persona order.
func (f *Factory) SalesAgents() []adkagent.Agent {
	return append([]adkagent.Agent(nil), f.salesAgents...)
}

// SalesAgentTools returns sales_agent1, sales_agent2 and sales_agent3.
func (f *Factory) SalesAgentTools() []adktool.Tool {
	return append([]adktool.Tool(nil), f.salesAgentTools...)
}

// EmailFormattingTools returns subject_writer and html_converter.
func (f *Factory) EmailFormattingTools() []adktool.Tool {
	return append([]adktool.Tool(nil), f.formattingTools...)
}

func (f *Factory) SendEmailTool() adktool.Tool     { return f.sendEmail }
func (f *Factory) SendHTMLEmailTool() adktool.Tool { return f.sendHTMLEmail }

// agents returns every agent exposed as a tool, in tool order.
func (f *Factory) agents() []adkagent.Agent {
	return append(f.SalesAgents(), f.subjectWriter, f.htmlConverter)
}

// SendEmail sends req.Body as plain text with the default subject.
func (f *Factory) SendEmail(ctx context.Context, req SendEmailRequest) (SendResponse, error) {
	budget := budgetFrom(ctx)
	if !budget.take() {
		logger.Get().Warnw("send refused, budget spent", "tool", NameSendEmail, "trace_id", agent.TraceFrom(ctx).ID)
		return SendResponse{Status: StatusRefused, Message: refusalMessage}, nil
	}

	res, err := f.sender.SendPlainText(ctx, req.Body, "")
	if err != nil {
		return SendResponse{}, fmt.Errorf("sender.SendPlainText failed: %w", err)
	}
	budget.record(res)

	return SendResponse{Status: mailer.StatusSuccess, StatusCode: res.StatusCode}, nil
}

// SendHTMLEmail normalizes req.HTMLBody and sends it as HTML.
func (f *Factory) SendHTMLEmail(ctx context.Context, req SendHTMLEmailRequest) (SendResponse, error) {
	budget := budgetFrom(ctx)
	if !budget.take() {
		logger.Get().Warnw("send refused, budget spent", "tool", NameSendHTMLEmail, "trace_id", agent.TraceFrom(ctx).ID)
		return SendResponse{Status: StatusRefused, Message: refusalMessage}, nil
	}

	body, err := f.cleaner.Normalize(req.HTMLBody)
	if err != nil {
		return SendResponse{}, fmt.Errorf("cleaner.Normalize failed: %w", err)
	}

	subject := req.Subject
	if subject == "" {
		subject = mailer.DefaultSubject
	}

	res, err := f.sender.SendHTML(ctx, subject, body)
	if err != nil {
		return SendResponse{}, fmt.Errorf("sender.SendHTML failed: %w", err)
	}
	budget.record(res)

	return SendResponse{Status: mailer.StatusSuccess, StatusCode: res.StatusCode}, nil
}
