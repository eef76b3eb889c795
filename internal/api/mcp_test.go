package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/sitecraft/internal/site"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_PlanSite(t *testing.T) {
	env := newTestEnv(t)

	result, err := mcpPlanSite(env.deps)(context.Background(), makeCallToolRequest("plan_site", map[string]any{
		"business_description": "Family pizza place",
		"website_type":         "restaurant",
		"selected_features":    []any{"gallery"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var plan struct {
		Components []string `json:"components"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &plan); err != nil {
		t.Fatal(err)
	}
	if len(plan.Components) != 5 || plan.Components[0] != site.Header || plan.Components[4] != site.Gallery {
		t.Errorf("components = %v", plan.Components)
	}
}

func TestMCPTool_PlanSite_EmptyRequest(t *testing.T) {
	env := newTestEnv(t)
	result, err := mcpPlanSite(env.deps)(context.Background(), makeCallToolRequest("plan_site", map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected tool error for empty request")
	}
}

func TestMCPTool_GenerateAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := mcpGenerateSite(env.deps)(ctx, makeCallToolRequest("generate_site", map[string]any{
		"business_description": "Plumbing service",
		"website_type":         "business",
	}))
	if err != nil || result.IsError {
		t.Fatalf("generate_site = %v, %v", result, err)
	}
	var gen generation
	if err := json.Unmarshal([]byte(toolText(t, result)), &gen); err != nil {
		t.Fatal(err)
	}
	if gen.UserID == "" {
		t.Fatal("no session id")
	}

	if err := env.deps.Files.Write(gen.UserID, site.Hero, site.Artifact{Markup: "<section>Hi</section>", Description: "Greeting"}); err != nil {
		t.Fatal(err)
	}

	result, err = mcpListComponents(env.deps)(ctx, makeCallToolRequest("list_components", map[string]any{
		"session_id":   gen.UserID,
		"include_code": true,
	}))
	if err != nil || result.IsError {
		t.Fatalf("list_components = %v, %v", result, err)
	}
	text := toolText(t, result)
	for _, want := range []string{`"status":"queued"`, `"id":"hero"`, `"hero.html"`, "Greeting"} {
		if !strings.Contains(text, want) {
			t.Errorf("list_components output missing %s: %s", want, text)
		}
	}
}

func TestMCPTool_ListComponents_InvalidSession(t *testing.T) {
	env := newTestEnv(t)
	result, err := mcpListComponents(env.deps)(context.Background(), makeCallToolRequest("list_components", map[string]any{
		"session_id": "../../etc",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected tool error")
	}
}

func TestMCPTool_EditComponent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.deps.Files.Write("u1", site.Header, site.Artifact{Markup: "<header>Acme</header>"}); err != nil {
		t.Fatal(err)
	}

	result, err := mcpEditComponent(env.deps)(ctx, makeCallToolRequest("edit_component", map[string]any{
		"session_id": "u1",
		"message":    "make the header blue",
	}))
	if err != nil || result.IsError {
		t.Fatalf("edit_component = %v, %v", result, err)
	}
	if !strings.Contains(toolText(t, result), `"componentTarget":"header"`) {
		t.Errorf("output = %s", toolText(t, result))
	}
	got, _, err := env.deps.Files.Read("u1", site.Header)
	if err != nil {
		t.Fatal(err)
	}
	if got.Markup != env.caller.art.Markup {
		t.Errorf("stored markup = %q", got.Markup)
	}
}

func TestMCPTool_EditComponent_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	result, err := mcpEditComponent(env.deps)(context.Background(), makeCallToolRequest("edit_component", map[string]any{
		"session_id": "ghost",
		"message":    "make the header blue",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected tool error")
	}
}

func TestMCPResource_Sessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := startGeneration(ctx, env.deps, restaurant); err != nil {
		t.Fatal(err)
	}

	contents, err := mcpResourceSessions(env.deps)(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "sitecraft://sessions"},
	})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("contents = %T", contents[0])
	}
	var items []sessionListItem
	if err := json.Unmarshal([]byte(tc.Text), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ExpectedCount != 4 {
		t.Errorf("items = %+v", items)
	}
}

func TestNewMCPServer_RegistersTools(t *testing.T) {
	env := newTestEnv(t)
	s := NewMCPServer(env.deps, "test")
	tools := s.ListTools()
	for _, name := range []string{"plan_site", "generate_site", "list_components", "edit_component"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestMCPTool_ListComponents_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	if err := env.deps.Files.Write("u1", site.Hero, site.Artifact{Markup: "<section>Hi</section>"}); err != nil {
		t.Fatal(err)
	}
	env.deps.Store.Close()

	result, err := mcpListComponents(env.deps)(context.Background(), makeCallToolRequest("list_components", map[string]any{
		"session_id": "u1",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Errorf("expected tool error when the session store fails, got %s", toolText(t, result))
	}
}

func TestMCPTool_ListComponents_FilesOnlySession(t *testing.T) {
	env := newTestEnv(t)
	if err := env.deps.Files.Write("u1", site.Hero, site.Artifact{Markup: "<section>Hi</section>"}); err != nil {
		t.Fatal(err)
	}
	result, err := mcpListComponents(env.deps)(context.Background(), makeCallToolRequest("list_components", map[string]any{
		"session_id": "u1",
	}))
	if err != nil || result.IsError {
		t.Fatalf("list_components = %v, %v", result, err)
	}
	if text := toolText(t, result); strings.Contains(text, `"status"`) || !strings.Contains(text, `"id":"hero"`) {
		t.Errorf("output = %s", text)
	}
}
