package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gramvani/kisan/internal/directory"
	"github.com/gramvani/kisan/internal/dispatch"
	"github.com/gramvani/kisan/internal/locale"
	"github.com/gramvani/kisan/internal/profile"
	"github.com/gramvani/kisan/internal/storage"
)

// MCPPendingLister abstracts the pending-queue read for the MCP layer.
type MCPPendingLister interface {
	GetPending() ([]storage.Query, error)
}

// MCPDeps holds dependencies for the MCP server. Profile and Directory are
// shared with the HTTP layer.
type MCPDeps struct {
	Dispatcher *dispatch.Dispatcher
	Pending    MCPPendingLister
	Profile    *profile.Manager
	Directory  *directory.Directory
}

// NewMCPServer creates an MCP server with all kisan tools and resources
// registered. It runs over stdio next to the HTTP server.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"kisan",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("kisan — offline-first agricultural advisory queue. Questions asked while offline are queued and answered when connectivity returns."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_advisor",
			mcp.WithDescription("Ask the agricultural advisor a question. Answers inline when online; queues the question otherwise."),
			mcp.WithString("prompt", mcp.Description("The farming question to ask"), mcp.Required()),
			mcp.WithString("language", mcp.Description("Language code for the answer (e.g. en, hi, kn)")),
		),
		mcpAskAdvisor(deps),
	)

	s.AddTool(
		mcp.NewTool("pending_queries",
			mcp.WithDescription("List questions still waiting for an answer, oldest first."),
		),
		mcpPendingQueries(deps),
	)

	s.AddTool(
		mcp.NewTool("update_profile",
			mcp.WithDescription("Update a farmer profile field. The profile is injected into advisory prompts."),
			mcp.WithString("key", mcp.Description("Profile field key (e.g. state, crops, soil_type)"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Value to set"), mcp.Required()),
		),
		mcpUpdateProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("find_experts",
			mcp.WithDescription("Look up agricultural expert helplines, optionally filtered by state."),
			mcp.WithString("state", mcp.Description("State name to filter by (e.g. Karnataka)")),
		),
		mcpFindExperts(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"farmer://profile",
			"Farmer Profile",
			mcp.WithResourceDescription("Current farmer profile as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"advisory://schemes",
			"Government Schemes",
			mcp.WithResourceDescription("Government support schemes for farmers"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSchemes(deps),
	)

	return s
}

func mcpAskAdvisor(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcpError("prompt is required"), nil
		}
		language := locale.Normalize(req.GetString("language", ""))

		sub, err := deps.Dispatcher.Submit(ctx, prompt, storage.KindText, language)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to submit question: %v", err)), nil
		}

		if sub.Answered {
			return mcpText(sub.Text), nil
		}
		return mcpText(fmt.Sprintf("Queued as query %d. %s", sub.QueryID, sub.Notice)), nil
	}
}

func mcpPendingQueries(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pending, err := deps.Pending.GetPending()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list pending queries: %v", err)), nil
		}

		if len(pending) == 0 {
			return mcpText("[]"), nil
		}

		type pendingEntry struct {
			ID        string `json:"id"`
			Prompt    string `json:"prompt"`
			CreatedAt string `json:"created_at"`
		}

		entries := make([]pendingEntry, len(pending))
		for i, q := range pending {
			prompt := q.Prompt
			if utf8.RuneCountInString(prompt) > 200 {
				runes := []rune(prompt)
				prompt = string(runes[:200]) + "..."
			}
			entries[i] = pendingEntry{
				ID:        fmt.Sprintf("%d", q.ID),
				Prompt:    prompt,
				CreatedAt: q.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal pending queries: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpUpdateProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		if err := deps.Profile.SetField(key, value); err != nil {
			return mcpError(fmt.Sprintf("failed to set profile field: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Set %s = %s", key, value)), nil
	}
}

func mcpFindExperts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		state := req.GetString("state", "")

		experts := deps.Directory.Experts(state)
		if len(experts) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(experts)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal experts: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := deps.Profile.Get()
		if err != nil {
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}

		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
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

func mcpResourceSchemes(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		schemes := deps.Directory.Schemes("")

		b, err := json.Marshal(schemes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schemes: %w", err)
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
