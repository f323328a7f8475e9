// Package llm adapts chat completion providers to the ADK model interface.
package llm

import (
	"encoding/json"

	"google.golang.org/genai"
)

// Text joins the non-thought text parts of c.
func Text(c *genai.Content) string {
	if c == nil {
		return ""
	}
	return joinText(c, "")
}

// FunctionResponseText renders a tool result the way the model reads it.
// A bare {"result": "..."} map, as returned by agent tools, becomes its string;
// anything else is JSON with error values flattened to their messages.
func FunctionResponseText(resp map[string]any) string {
	if len(resp) == 1 {
		if s, ok := resp["result"].(string); ok {
			return s
		}
	}

	plain := make(map[string]any, len(resp))
	for k, v := range resp {
		if err, ok := v.(error); ok {
			plain[k] = err.Error()
			continue
		}
		plain[k] = v
	}

	raw, err := json.Marshal(plain)
	if err != nil {
		return `{"error":"unencodable tool result"}`
	}
	return string(raw)
}
