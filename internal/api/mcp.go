package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/sitecraft/internal/chat"
	"github.com/kalambet/sitecraft/internal/files"
	"github.com/kalambet/sitecraft/internal/site"
)

// NewMCPServer creates an MCP server exposing site planning, generation and
// editing as tools.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"sitecraft",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sitecraft generates small business websites section by section and edits them from plain-language instructions."),
		server.WithRecovery(),
	)

	requestArgs := []mcp.ToolOption{
		mcp.WithString("business_description", mcp.Description("What the business does")),
		mcp.WithString("website_type", mcp.Description("Kind of website, e.g. restaurant or portfolio")),
		mcp.WithArray("selected_features", mcp.Description("Optional features: about, services, contact, gallery, testimonials, pricing")),
		mcp.WithString("color_scheme", mcp.Description("light or dark"), mcp.Enum("light", "dark")),
		mcp.WithString("user_email", mcp.Description("Contact email shown on the site")),
	}

	s.AddTool(
		mcp.NewTool("plan_site", append([]mcp.ToolOption{
			mcp.WithDescription("Decide which sections a website needs, without generating anything."),
		}, requestArgs...)...),
		mcpPlanSite(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_site", append([]mcp.ToolOption{
			mcp.WithDescription("Plan a website and queue generation of its sections. Returns the session id to poll with list_components."),
		}, requestArgs...)...),
		mcpGenerateSite(deps),
	)

	s.AddTool(
		mcp.NewTool("list_components",
			mcp.WithDescription("List the sections generated so far for a session."),
			mcp.WithString("session_id", mcp.Description("Session id returned by generate_site"), mcp.Required()),
			mcp.WithBoolean("include_code", mcp.Description("Include each section's HTML, CSS and JavaScript")),
		),
		mcpListComponents(deps),
	)

	s.AddTool(
		mcp.NewTool("edit_component",
			mcp.WithDescription("Change one section of a generated site from a plain-language instruction."),
			mcp.WithString("session_id", mcp.Description("Session id returned by generate_site"), mcp.Required()),
			mcp.WithString("message", mcp.Description("What to change, e.g. \"make the header blue\""), mcp.Required()),
		),
		mcpEditComponent(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"sitecraft://sessions",
			"Recent Sessions",
			mcp.WithResourceDescription("The 10 most recent generation sessions"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSessions(deps),
	)

	return s
}

func requestFromArgs(req mcp.CallToolRequest) site.GenerationRequest {
	return site.GenerationRequest{
		BusinessDescription: req.GetString("business_description", ""),
		WebsiteType:         req.GetString("website_type", ""),
		SelectedFeatures:    req.GetStringSlice("selected_features", nil),
		ColorScheme:         site.ColorScheme(req.GetString("color_scheme", "")),
		UserEmail:           req.GetString("user_email", ""),
	}
}

func mcpPlanSite(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		gr := requestFromArgs(req)
		if err := gr.Validate(); err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(deps.Planner.Plan(ctx, gr))
	}
}

func mcpGenerateSite(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		gr := requestFromArgs(req)
		if err := gr.Validate(); err != nil {
			return mcpError(err.Error()), nil
		}
		gen, err := startGeneration(ctx, deps, gr)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to start generation: %v", err)), nil
		}
		return mcpJSON(gen)
	}
}

func mcpListComponents(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		if !files.ValidSessionID(id) {
			return mcpError("invalid session_id"), nil
		}

		s, err := deps.Files.ReadAll(id)
		if err != nil {
			return mcpError(fmt.Sprintf("reading components: %v", err)), nil
		}

		type component struct {
			ID          string            `json:"id"`
			Description string            `json:"description,omitempty"`
			Files       map[string]string `json:"files,omitempty"`
		}
		out := struct {
			SessionID     string      `json:"session_id"`
			Status        string      `json:"status,omitempty"`
			ExpectedCount int         `json:"expected_count,omitempty"`
			Components    []component `json:"components"`
		}{SessionID: id, Components: []component{}}

		sess, found, err := findSession(ctx, deps, id)
		if err != nil {
			slog.Error("list_components: loading session", "session_id", id, "error", err)
			return mcpError(err.Error()), nil
		}
		if found {
			out.Status = sess.Status
			out.ExpectedCount = sess.ExpectedCount
		}
		withCode := req.GetBool("include_code", false)
		for _, cid := range s.IDs() {
			c := component{ID: cid, Description: s[cid].Description}
			if withCode {
				c.Files = s[cid].Files(cid)
			}
			out.Components = append(out.Components, c)
		}
		return mcpJSON(out)
	}
}

func mcpEditComponent(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		if !files.ValidSessionID(id) || !deps.Files.Exists(id) {
			return mcpError(fmt.Sprintf("session %s not found", id)), nil
		}

		pr := chat.PatchRequest{Message: message, SessionID: id}
		sess, found, err := findSession(ctx, deps, id)
		if err != nil {
			slog.Error("edit_component: loading session", "session_id", id, "error", err)
			return mcpError(err.Error()), nil
		}
		if found {
			if err := json.Unmarshal([]byte(sess.RequestJSON), &pr.Request); err != nil {
				slog.Warn("edit_component: decoding stored request", "session_id", id, "error", err)
			}
		}
		reply := deps.Patcher.Patch(ctx, pr)
		recordEdit(ctx, deps, id, reply)

		if reply.UpdatedCode == nil {
			return mcpText(reply.Content), nil
		}
		return mcpJSON(reply)
	}
}

func mcpResourceSessions(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sessions, err := deps.Store.ListSessions(ctx, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}

		items := make([]sessionListItem, 0, len(sessions))
		for _, s := range sessions {
			items = append(items, sessionListItem{ID: s.ID, Status: s.Status, ExpectedCount: s.ExpectedCount, CreatedAt: s.CreatedAt})
		}
		b, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sessions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
