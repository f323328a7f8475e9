package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"sort"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/hal9000y/sdr/internal/logger"
)

// OpenAI implements model.LLM with the official OpenAI Go SDK.
type OpenAI struct {
	client openai.Client
	model  string
}

// OpenAIOptions configures the OpenAI backend.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// NewOpenAI creates an OpenAI backend. SDK retries are disabled; callers own retry policy.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &OpenAI{client: openai.NewClient(reqOpts...), model: opts.Model}
}

// Name returns the chat model name.
func (o *OpenAI) Name() string {
	return o.model
}

// GenerateContent sends one chat completion request. Streaming is not used by
// the backend: stream callers get the complete response as a single chunk.
func (o *OpenAI) GenerateContent(ctx context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		params, err := o.chatParams(req)
		if err != nil {
			yield(nil, err)
			return
		}

		logger.Get().Debugw("calling chat model", "model", params.Model, "messages", len(params.Messages), "tools", len(params.Tools))

		completion, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			yield(nil, fmt.Errorf("chat.Completions.New failed: %w", err))
			return
		}

		resp, err := toLLMResponse(completion)
		if err != nil {
			yield(nil, err)
			return
		}
		yield(resp, nil)
	}
}

func (o *OpenAI) chatParams(req *model.LLMRequest) (openai.ChatCompletionNewParams, error) {
	name := o.model
	if req.Model != "" {
		name = req.Model
	}
	params := openai.ChatCompletionNewParams{Model: openai.ChatModel(name)}

	cfg := req.Config
	if cfg != nil && cfg.SystemInstruction != nil {
		if s := joinText(cfg.SystemInstruction, "\n\n"); s != "" {
			params.Messages = append(params.Messages, openai.SystemMessage(s))
		}
	}

	ids := &callIDs{}
	for _, c := range req.Contents {
		msgs, err := toMessages(c, ids)
		if err != nil {
			return params, err
		}
		params.Messages = append(params.Messages, msgs...)
	}

	if cfg == nil {
		return params, nil
	}

	for _, t := range cfg.Tools {
		if t == nil {
			continue
		}
		for _, d := range t.FunctionDeclarations {
			p, err := parameters(d)
			if err != nil {
				return params, err
			}
			params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  p,
			}))
		}
	}

	if cfg.ResponseSchema != nil {
		name := cfg.ResponseSchema.Title
		if name == "" {
			name = "output"
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: schemaMap(cfg.ResponseSchema, true),
					Strict: openai.Bool(true),
				},
			},
		}
	}

	return params, nil
}

// callIDs pairs function calls and responses that arrive without provider ids.
type callIDs struct {
	n       int
	pending []string
}

func (c *callIDs) call(id string) string {
	if id != "" {
		return id
	}
	c.n++
	id = fmt.Sprintf("call_%d", c.n)
	c.pending = append(c.pending, id)
	return id
}

func (c *callIDs) response(id string) string {
	if id != "" || len(c.pending) == 0 {
		return id
	}
	id = c.pending[0]
	c.pending = c.pending[1:]
	return id
}

func toMessages(c *genai.Content, ids *callIDs) ([]openai.ChatCompletionMessageParamUnion, error) {
	if c == nil {
		return nil, nil
	}

	if c.Role == genai.RoleModel {
		assistant := openai.ChatCompletionAssistantMessageParam{}
		if text := joinText(c, ""); text != "" {
			assistant.Content.OfString = openai.String(text)
		}
		for _, p := range c.Parts {
			if p == nil || p.FunctionCall == nil {
				continue
			}
			args := p.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			raw, err := json.Marshal(args)
			if err != nil {
				return nil, fmt.Errorf("function call %q arguments: %w", p.FunctionCall.Name, err)
			}
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: ids.call(p.FunctionCall.ID),
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      p.FunctionCall.Name,
						Arguments: string(raw),
					},
				},
			})
		}
		if assistant.Content.OfString.Value == "" && len(assistant.ToolCalls) == 0 {
			return nil, nil
		}
		return []openai.ChatCompletionMessageParamUnion{{OfAssistant: &assistant}}, nil
	}

	var msgs []openai.ChatCompletionMessageParamUnion
	for _, p := range c.Parts {
		if p == nil || p.FunctionResponse == nil {
			continue
		}
		fr := p.FunctionResponse
		msgs = append(msgs, openai.ToolMessage(FunctionResponseText(fr.Response), ids.response(fr.ID)))
	}
	if text := joinText(c, "\n"); text != "" {
		msgs = append(msgs, openai.UserMessage(text))
	}
	return msgs, nil
}

func parameters(d *genai.FunctionDeclaration) (openai.FunctionParameters, error) {
	switch {
	case d.ParametersJsonSchema != nil:
		raw, err := json.Marshal(d.ParametersJsonSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %q parameters: %w", d.Name, err)
		}
		var p openai.FunctionParameters
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("tool %q parameters: %w", d.Name, err)
		}
		return p, nil
	case d.Parameters != nil:
		return schemaMap(d.Parameters, false), nil
	default:
		return openai.FunctionParameters{"type": "object", "properties": map[string]any{}}, nil
	}
}

// schemaMap converts a genai schema into JSON Schema. Strict mode requires
// every property and forbids extra ones, as OpenAI structured outputs demand.
func schemaMap(s *genai.Schema, strict bool) map[string]any {
	m := map[string]any{}
	if s.Type != "" {
		m["type"] = strings.ToLower(string(s.Type))
	}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}
	if s.Items != nil {
		m["items"] = schemaMap(s.Items, strict)
	}

	if len(s.Properties) == 0 && !strings.EqualFold(string(s.Type), string(genai.TypeObject)) {
		return m
	}

	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	props := make(map[string]any, len(names))
	for _, name := range names {
		props[name] = schemaMap(s.Properties[name], strict)
	}
	m["properties"] = props

	required := s.Required
	if strict {
		required = names
		m["additionalProperties"] = false
	}
	if len(required) > 0 {
		m["required"] = required
	}
	return m
}

func toLLMResponse(completion *openai.ChatCompletion) (*model.LLMResponse, error) {
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("chat completion %s returned no choices", completion.ID)
	}
	choice := completion.Choices[0]

	content := &genai.Content{Role: genai.RoleModel}
	if choice.Message.Content != "" {
		content.Parts = append(content.Parts, &genai.Part{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("tool call %q has malformed arguments: %w", tc.Function.Name, err)
			}
		}
		content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		}})
	}

	return &model.LLMResponse{
		Content:      content,
		FinishReason: finishReason(choice.FinishReason),
		TurnComplete: true,
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     int32(completion.Usage.PromptTokens),
			CandidatesTokenCount: int32(completion.Usage.CompletionTokens),
			TotalTokenCount:      int32(completion.Usage.TotalTokens),
		},
	}, nil
}

func finishReason(reason string) genai.FinishReason {
	switch reason {
	case "length":
		return genai.FinishReasonMaxTokens
	case "content_filter":
		return genai.FinishReasonSafety
	default:
		return genai.FinishReasonStop
	}
}

func joinText(c *genai.Content, sep string) string {
	var parts []string
	for _, p := range c.Parts {
		if p == nil || p.Thought || p.Text == "" {
			continue
		}
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, sep)
}

var _ model.LLM = (*OpenAI)(nil)
