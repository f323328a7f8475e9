package sdr

import (
	"errors"
	"fmt"
	"strings"

	adkagent "google.golang.org/adk/agent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	adktool "google.golang.org/adk/tool"
	"google.golang.org/genai"
)

// The sales manager hands off with ADK's transfer_to_agent tool. The tool
// only carries the target name, so the winning draft rides along as an extra
// argument, is parked in temp session state, and becomes the delegate's only
// input in place of the sales manager's conversation.
const (
	transferToolName = "transfer_to_agent"
	handoffBodyArg   = "email_body"
	handoffBodyKey   = session.KeyPrefixTemp + "handoff_email_body"
)

// requireHandoffBody adds the email body argument to the transfer tool declaration.
func requireHandoffBody(_ adkagent.CallbackContext, req *model.LLMRequest) (*model.LLMResponse, error) {
	if req.Config == nil {
		return nil, nil
	}
	for _, t := range req.Config.Tools {
		if t == nil {
			continue
		}
		for _, d := range t.FunctionDeclarations {
			if d.Name != transferToolName || d.Parameters == nil {
				continue
			}
			if d.Parameters.Properties == nil {
				d.Parameters.Properties = map[string]*genai.Schema{}
			}
			d.Parameters.Properties[handoffBodyArg] = &genai.Schema{
				Type:        genai.TypeString,
				Description: "The complete winning email draft, exactly as written.",
			}
			d.Parameters.Required = append(d.Parameters.Required, handoffBodyArg)
		}
	}
	return nil, nil
}

// captureHandoffBody stores the draft passed to transfer_to_agent. A transfer
// without a draft fails and the model is told why.
func captureHandoffBody(ctx adktool.Context, t adktool.Tool, args map[string]any) (map[string]any, error) {
	if t.Name() != transferToolName {
		return nil, nil
	}

	body, _ := args[handoffBodyArg].(string)
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%s needs %s with the winning email draft", transferToolName, handoffBodyArg)
	}
	if err := ctx.State().Set(handoffBodyKey, body); err != nil {
		return nil, fmt.Errorf("state.Set failed: %w", err)
	}
	return nil, nil
}

// handoffInput replaces what the delegate would see of the sales manager's
// conversation with the handed off draft. The delegate's own tool calls stay.
func handoffInput(ctx adkagent.CallbackContext, req *model.LLMRequest) (*model.LLMResponse, error) {
	v, err := ctx.ReadonlyState().Get(handoffBodyKey)
	if errors.Is(err, session.ErrStateKeyNotExist) {
		return nil, errors.New("email manager started without a handed off draft")
	}
	if err != nil {
		return nil, fmt.Errorf("state.Get failed: %w", err)
	}
	body, _ := v.(string)

	i := 0
	for i < len(req.Contents) && req.Contents[i].Role != genai.RoleModel {
		i++
	}
	req.Contents = append([]*genai.Content{genai.NewContentFromText(body, genai.RoleUser)}, req.Contents[i:]...)
	return nil, nil
}
