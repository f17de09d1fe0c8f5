package portalheal

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/kit"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/catalog"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/probe"
)

// RegisterMCP registers the engine tools on an MCP server.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	e.registerSelectorTool(srv)
	e.registerFlagTool(srv)
	e.registerContextTool(srv)
	e.registerRevalidateTool(srv)
	e.registerReapplyTool(srv)
	e.registerStatusTool(srv)
}

func (e *Engine) tool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode kit.DecodeFunc) {
	kit.RegisterMCPTool(srv, tool, kit.Logging(e.logger, tool.Name)(endpoint), decode)
}

func noArgs(*mcp.CallToolRequest) (any, error) { return nil, nil }

// --- get_selector ---

type selectorReq struct {
	Role string `json:"role"`
}

func (e *Engine) registerSelectorTool(srv *mcp.Server) {
	roles := make([]string, 0, len(catalog.Roles()))
	for _, r := range catalog.Roles() {
		roles = append(roles, string(r))
	}
	tool := &mcp.Tool{
		Name:        "portalheal_get_selector",
		Description: "Return the CSS selector resolved for a semantic role of the portal layout.",
		InputSchema: kit.InputSchema(map[string]any{
			"role": map[string]any{"type": "string", "enum": roles, "description": "Semantic role"},
		}, []string{"role"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*selectorReq)
		role, ok := catalog.ParseRole(r.Role)
		if !ok {
			return nil, fmt.Errorf("unknown role %q", r.Role)
		}
		if !e.Ready() {
			return nil, ErrNotReady
		}
		sel, found := e.Selector(role)
		return map[string]any{"role": role, "selector": sel, "found": found}, nil
	}
	e.tool(srv, tool, endpoint, kit.DecodeJSON[selectorReq]())
}

// --- get_layout_flag ---

type flagReq struct {
	Name string `json:"name"`
}

func probeNames() []string {
	out := make([]string, 0, len(probe.Names()))
	for _, n := range probe.Names() {
		out = append(out, string(n))
	}
	return out
}

func (e *Engine) registerFlagTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "portalheal_get_layout_flag",
		Description: "Return the latest value of a layout probe without re-measuring.",
		InputSchema: kit.InputSchema(map[string]any{
			"name": map[string]any{"type": "string", "enum": probeNames(), "description": "Probe name"},
		}, []string{"name"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		name, err := probe.ParseName(req.(*flagReq).Name)
		if err != nil {
			return nil, err
		}
		v, ok := e.LayoutFlag(name)
		if !ok {
			return map[string]any{"name": name, "value": nil}, nil
		}
		return map[string]any{"name": name, "value": v}, nil
	}
	e.tool(srv, tool, endpoint, kit.DecodeJSON[flagReq]())
}

// --- context_info ---

func (e *Engine) registerContextTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "portalheal_context_info",
		Description: "Return the portal fingerprint, resolved role selectors, layout flags and readiness.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	endpoint := func(context.Context, any) (any, error) {
		return e.ContextInfo(), nil
	}
	e.tool(srv, tool, endpoint, noArgs)
}

// --- revalidate_probe ---

func (e *Engine) registerRevalidateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "portalheal_revalidate_probe",
		Description: "Re-measure one layout probe against the live page and return the fresh value.",
		InputSchema: kit.InputSchema(map[string]any{
			"name": map[string]any{"type": "string", "enum": probeNames(), "description": "Probe name"},
		}, []string{"name"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		name, err := probe.ParseName(req.(*flagReq).Name)
		if err != nil {
			return nil, err
		}
		if !e.Ready() {
			return nil, ErrNotReady
		}
		return map[string]any{"name": name, "value": e.RevalidateValue(name)}, nil
	}
	e.tool(srv, tool, endpoint, kit.DecodeJSON[flagReq]())
}

// --- force_reapply ---

func (e *Engine) registerReapplyTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "portalheal_force_reapply",
		Description: "Discard the current navigation correction and restart the strategy cascade.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	endpoint := func(context.Context, any) (any, error) {
		if !e.Ready() {
			return nil, ErrNotReady
		}
		e.ForceReapply()
		return e.Status(), nil
	}
	e.tool(srv, tool, endpoint, noArgs)
}

// --- status ---

func (e *Engine) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "portalheal_status",
		Description: "Return the correction state, applied method, retry count and key element presence.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	endpoint := func(context.Context, any) (any, error) {
		return e.Status(), nil
	}
	e.tool(srv, tool, endpoint, noArgs)
}
