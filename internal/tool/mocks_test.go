package tool_test

import (
	"context"
	"fmt"
	"iter"
	"sync"

	adkagent "google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	adktool "google.golang.org/adk/tool"
	"google.golang.org/genai"

	"github.com/hal9000y/sdr/internal/agent"
	"github.com/hal9000y/sdr/internal/config"
	"github.com/hal9000y/sdr/internal/llm"
	"github.com/hal9000y/sdr/internal/mailer"
	"github.com/hal9000y/sdr/internal/persona"
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

type runtimeMock struct {
	RunFunc func(ctx context.Context, a adkagent.Agent, input string) (*agent.Result, error)
}

func (m *runtimeMock) NewAgent(cfg llmagent.Config) (adkagent.Agent, error) {
	return llmagent.New(cfg)
}

func (m *runtimeMock) Run(ctx context.Context, a adkagent.Agent, input string) (*agent.Result, error) {
	return m.RunFunc(ctx, a, input)
}

type senderMock struct {
	SendPlainTextFunc func(ctx context.Context, body, subject string) (mailer.DeliveryResult, error)
	SendHTMLFunc      func(ctx context.Context, subject, htmlBody string) (mailer.DeliveryResult, error)
}

func (m *senderMock) SendPlainText(ctx context.Context, body, subject string) (mailer.DeliveryResult, error) {
	return m.SendPlainTextFunc(ctx, body, subject)
}

func (m *senderMock) SendHTML(ctx context.Context, subject, htmlBody string) (mailer.DeliveryResult, error) {
	return m.SendHTMLFunc(ctx, subject, htmlBody)
}

func echoRuntime() *runtimeMock {
	return &runtimeMock{RunFunc: func(_ context.Context, a adkagent.Agent, input string) (*agent.Result, error) {
		return &agent.Result{FinalOutput: a.Name() + ": " + input, LastAgent: a.Name()}, nil
	}}
}

type sentEmail struct {
	Subject string
	Body    string
	HTML    bool
}

func recordingSender(sent *[]sentEmail) *senderMock {
	return &senderMock{
		SendPlainTextFunc: func(_ context.Context, body, subject string) (mailer.DeliveryResult, error) {
			*sent = append(*sent, sentEmail{Subject: subject, Body: body})
			return mailer.DeliveryResult{Status: mailer.StatusSuccess, StatusCode: 202}, nil
		},
		SendHTMLFunc: func(_ context.Context, subject, htmlBody string) (mailer.DeliveryResult, error) {
			*sent = append(*sent, sentEmail{Subject: subject, Body: htmlBody, HTML: true})
			return mailer.DeliveryResult{Status: mailer.StatusSuccess, StatusCode: 202}, nil
		},
	}
}

func text(s string) *model.LLMResponse {
	return &model.LLMResponse{Content: genai.NewContentFromText(s, genai.RoleModel)}
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

func lastResponse(req *model.LLMRequest) *genai.FunctionResponse {
	last := req.Contents[len(req.Contents)-1]
	for _, p := range last.Parts {
		if p.FunctionResponse != nil {
			return p.FunctionResponse
		}
	}
	return nil
}

const callerInstruction = "call the tool"

// toolModel plays two parts. As the caller agent it calls the tool name with
// args once and then answers with the tool result. As a persona it answers
// with its title and input.
func toolModel(cfg config.AgentConfig, name string, args map[string]any) *modelMock {
	titles := map[string]string{}
	for k := persona.Professional; k <= persona.SalesManagerDirect; k++ {
		d := k.Render(cfg)
		titles[d.Instructions] = d.Title
	}

	return &modelMock{GenerateFunc: func(_ context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
		sys := system(req)
		if sys == callerInstruction {
			if fr := lastResponse(req); fr != nil {
				return text(llm.FunctionResponseText(fr.Response)), nil
			}
			return call("c1", name, args), nil
		}

		title, ok := titles[sys]
		if !ok {
			return nil, fmt.Errorf("unexpected agent %q", sys)
		}
		return text(title + ": " + llm.Text(req.Contents[0])), nil
	}}
}

// callTool runs a caller agent holding tl on rt.
func callTool(ctx context.Context, rt *agent.Runtime, tl adktool.Tool) (*agent.Result, error) {
	caller, err := rt.NewAgent(llmagent.Config{Name: "caller", Instruction: callerInstruction, Tools: []adktool.Tool{tl}})
	if err != nil {
		return nil, err
	}
	return rt.Run(ctx, caller, "go")
}
