package kit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DecodeFunc extracts the typed request from MCP tool arguments.
type DecodeFunc func(*mcp.CallToolRequest) (any, error)

// RegisterMCPTool exposes endpoint as an MCP tool. Decode and endpoint
// errors become tool errors; the response is returned as JSON text.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode DecodeFunc) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}

		ctx = WithTransport(ctx, "mcp")
		resp, err := endpoint(ctx, decoded)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// DecodeJSON returns a DecodeFunc unmarshalling arguments into a new T.
// Empty arguments decode to the zero value.
func DecodeJSON[T any]() DecodeFunc {
	return func(req *mcp.CallToolRequest) (any, error) {
		var v T
		if len(req.Params.Arguments) == 0 {
			return &v, nil
		}
		if err := json.Unmarshal(req.Params.Arguments, &v); err != nil {
			return nil, err
		}
		return &v, nil
	}
}

// InputSchema builds an object schema for tool arguments.
func InputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
