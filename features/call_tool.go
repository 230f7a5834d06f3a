package features

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *ServerFeatures) CallTool(ctx context.Context, tool, data string) error {
	params := map[string]any{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &params); err != nil {
			return fmt.Errorf("unmarshal tool arguments: %w", err)
		}
	}
	return s.CallTool1(ctx, tool, params)
}

func (s *ServerFeatures) CallTool1(ctx context.Context, tool string, params map[string]any) error {
	if s.Session == nil {
		return ErrNoSession
	}
	result, err := s.Session.CallTool(ctx, &mcp.CallToolParams{
		Meta:      s.meta(),
		Name:      tool,
		Arguments: params,
	})
	if err != nil {
		return fmt.Errorf("call tool: %w", err)
	}

	for _, c := range result.Content {
		out, _ := c.MarshalJSON()
		fmt.Fprintln(cmp.Or(s.Out, os.Stdout), string(out))
	}
	return nil
}

// CallTool2 calls a tool with raw JSON arguments and returns the content
// for further processing (used by the LLM tool-call loop).
func (s *ServerFeatures) CallTool2(ctx context.Context, tool string, arguments string) ([]mcp.Content, error) {
	if s.Session == nil {
		return nil, ErrNoSession
	}
	params := map[string]any{}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &params); err != nil {
			return nil, fmt.Errorf("unmarshal tool arguments: %w", err)
		}
	}
	result, err := s.Session.CallTool(ctx, &mcp.CallToolParams{
		Meta:      s.meta(),
		Name:      tool,
		Arguments: params,
	})
	if err != nil {
		return nil, fmt.Errorf("call tool: %w", err)
	}
	return result.Content, nil
}
