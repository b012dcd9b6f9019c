package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/X0IVY/prompt-injection-detector/internal/analyzer"
	"github.com/X0IVY/prompt-injection-detector/internal/detector"
	"github.com/X0IVY/prompt-injection-detector/internal/digest"
)

// MCPDeps holds the dependencies for the MCP tool handlers.
type MCPDeps struct {
	Detector *detector.Detector
	Sessions *analyzer.Registry
}

// NewMCPServer creates an MCP server exposing the detector and the session
// analyzers as tools.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"prompt-injection-detector",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("Score prompts for injection risk and track conversation health per session. "+
			"Call analyze_prompt before forwarding untrusted text to a model. "+
			"Call record_turn after each exchange and get_snapshot to inspect drift, confidence and stress."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("analyze_prompt",
			mcp.WithDescription("Score a prompt for injection risk and record it in the pattern store."),
			mcp.WithString("text", mcp.Description("The prompt text"), mcp.Required()),
			mcp.WithString("domain", mcp.Description("Optional domain label for the prompt")),
		),
		analyzePromptHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("record_turn",
			mcp.WithDescription("Record one user/assistant exchange for a session and return its updated summary."),
			mcp.WithString("session_id", mcp.Description("Session identifier"), mcp.Required()),
			mcp.WithString("user_text", mcp.Description("What the user said")),
			mcp.WithString("assistant_text", mcp.Description("What the assistant replied")),
		),
		recordTurnHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("get_snapshot",
			mcp.WithDescription("Return the latest conversation metrics for a session."),
			mcp.WithString("session_id", mcp.Description("Session identifier"), mcp.Required()),
			mcp.WithString("view", mcp.Description("summary (default) or full")),
		),
		getSnapshotHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("pattern_stats",
			mcp.WithDescription("Return counts and time bounds of the stored prompt records."),
		),
		patternStatsHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("query_patterns",
			mcp.WithDescription("List stored prompt records, newest last. Filter by domain or by suspicion."),
			mcp.WithString("domain", mcp.Description("Only records with this domain")),
			mcp.WithBoolean("suspicious", mcp.Description("Only records at or above the suspicion threshold")),
			mcp.WithNumber("threshold", mcp.Description("Suspicion threshold (default 0.5)")),
			mcp.WithNumber("limit", mcp.Description("Maximum records to return, most recent first kept (default 20)")),
		),
		queryPatternsHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("pattern_digest",
			mcp.WithDescription("Group suspicious records by matched keyword."),
			mcp.WithNumber("threshold", mcp.Description("Suspicion threshold (default 0.5)")),
		),
		patternDigestHandler(deps),
	)

	return s
}

func analyzePromptHandler(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		domain := req.GetString("domain", "")

		res, err := deps.Detector.AnalyzePrompt(ctx, text, domain)
		if err != nil {
			return mcpError(fmt.Sprintf("analyze failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func recordTurnHandler(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil || id == "" {
			return mcpError("session_id is required"), nil
		}

		a := deps.Sessions.Get(id)
		a.RecordTurn(req.GetString("user_text", ""), req.GetString("assistant_text", ""))
		return mcpJSON(a.Snapshot().Summary())
	}
}

func getSnapshotHandler(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil || id == "" {
			return mcpError("session_id is required"), nil
		}

		a, ok := deps.Sessions.Lookup(id)
		if !ok {
			return mcpError(fmt.Sprintf("session %s not found", id)), nil
		}

		snap := a.Snapshot()
		if req.GetString("view", "summary") == "full" {
			return mcpJSON(snap)
		}
		return mcpJSON(snap.Summary())
	}
}

func patternStatsHandler(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(deps.Detector.Store().Stats())
	}
}

func queryPatternsHandler(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		store := deps.Detector.Store()
		domain := req.GetString("domain", "")
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}

		q := patternQuery{domain: domain}
		if req.GetBool("suspicious", false) {
			q.suspicious = true
			q.threshold = req.GetFloat("threshold", deps.Detector.Threshold())
		}

		recs := q.run(store)
		if len(recs) > limit {
			recs = recs[len(recs)-limit:]
		}
		return mcpJSON(recs)
	}
}

func patternDigestHandler(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		threshold := req.GetFloat("threshold", deps.Detector.Threshold())
		return mcpJSON(digest.Build(deps.Detector.Store().Export(), threshold))
	}
}

// mcpJSON encodes v as indented JSON text content.
func mcpJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcpError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcpText(string(data)), nil
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
