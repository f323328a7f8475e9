package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	adkagent "google.golang.org/adk/agent"
)

type TextRequest struct {
	Input string `json:"input" jsonschema:"the text given to the agent"`
}

type TextResponse struct {
	Output string `json:"output" jsonschema:"the agent's final answer"`
}

// NewServer creates an MCP server exposing the SDR tools of f.
// Every call is its own request, so sends are not budgeted.
func NewServer(f *Factory) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "sdr", Version: "v1.0.0"}, nil)

	for _, a := range f.agents() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        a.Name(),
			Description: a.Description(),
		}, f.runAgent(a))
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        NameSendEmail,
		Description: descSendEmail,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input SendEmailRequest) (*mcp.CallToolResult, SendResponse, error) {
		resp, err := f.SendEmail(ctx, input)
		return nil, resp, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        NameSendHTMLEmail,
		Description: descSendHTMLEmail,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input SendHTMLEmailRequest) (*mcp.CallToolResult, SendResponse, error) {
		resp, err := f.SendHTMLEmail(ctx, input)
		return nil, resp, err
	})

	return server
}

func (f *Factory) runAgent(a adkagent.Agent) mcp.ToolHandlerFor[TextRequest, TextResponse] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TextRequest) (*mcp.CallToolResult, TextResponse, error) {
		res, err := f.runtime.Run(ctx, a, input.Input)
		if err != nil {
			return nil, TextResponse{}, fmt.Errorf("%s failed: %w", a.Name(), err)
		}
		return nil, TextResponse{Output: res.FinalOutput}, nil
	}
}
