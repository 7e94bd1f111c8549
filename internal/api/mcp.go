package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/rsslabel/internal/labeling"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Session *labeling.Session
	Version string
}

// NewMCPServer creates an MCP server exposing the labeling session as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"rsslabel",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("rsslabel: label RSS articles as advertisement or news, one at a time."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("current_article",
			mcp.WithDescription("Return the article awaiting a label with its position and progress."),
		),
		mcpCurrentArticle(deps),
	)

	s.AddTool(
		mcp.NewTool("label_article",
			mcp.WithDescription("Label the current article and advance to the next one."),
			mcp.WithString("label",
				mcp.Description("Classification for the current article"),
				mcp.Enum(string(labeling.Advertisement), string(labeling.News)),
				mcp.Required(),
			),
		),
		mcpLabelArticle(deps),
	)

	s.AddTool(
		mcp.NewTool("skip_article",
			mcp.WithDescription("Skip the current article without labeling it."),
		),
		mcpSkipArticle(deps),
	)

	s.AddTool(
		mcp.NewTool("labeling_stats",
			mcp.WithDescription("Return labeling progress counts."),
		),
		mcpStats(deps),
	)

	s.AddTool(
		mcp.NewTool("complete_session",
			mcp.WithDescription("Save a final checkpoint and return the completion summary."),
		),
		mcpCompleteSession(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"labels://stats",
			"Labeling Stats",
			mcp.WithResourceDescription("Current labeling progress as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpCurrentArticle(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := mcpInit(deps.Session); res != nil {
			return res, nil
		}

		view, err := deps.Session.Current()
		if errors.Is(err, labeling.ErrComplete) {
			return mcpText("All articles have been labeled. Call complete_session for the summary."), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get current article: %v", err)), nil
		}
		return mcpJSON(view)
	}
}

func mcpLabelArticle(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := mcpInit(deps.Session); res != nil {
			return res, nil
		}

		value, err := req.RequireString("label")
		if err != nil {
			return mcpError("label is required"), nil
		}

		res, err := deps.Session.RecordLabel(value)
		if errors.Is(err, labeling.ErrInvalidLabel) || errors.Is(err, labeling.ErrComplete) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("label recorded but checkpoint failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpSkipArticle(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := mcpInit(deps.Session); res != nil {
			return res, nil
		}

		res, err := deps.Session.Skip()
		if errors.Is(err, labeling.ErrComplete) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("skip recorded but checkpoint failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := mcpInit(deps.Session); res != nil {
			return res, nil
		}
		return mcpJSON(deps.Session.Stats())
	}
}

func mcpCompleteSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := mcpInit(deps.Session); res != nil {
			return res, nil
		}

		sum, err := deps.Session.CompletionSummary()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save labels: %v", err)), nil
		}
		return mcpJSON(sum)
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if err := deps.Session.Initialize(); err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}

		b, err := json.Marshal(deps.Session.Stats())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
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

// mcpInit returns an error result when the session cannot be loaded.
func mcpInit(s *labeling.Session) *mcp.CallToolResult {
	err := s.Initialize()
	if err == nil {
		return nil
	}
	if errors.Is(err, labeling.ErrNoArticles) {
		return mcpError(NoArticlesMessage)
	}
	return mcpError(fmt.Sprintf("failed to load session: %v", err))
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
