package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/vnhook/internal/settings"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service SettingsService
	History History // optional; if nil, the daemon://events resource is not registered
	Version string
}

// NewMCPServer creates an MCP server exposing the settings controller.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"vnhook",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("vnhook: read and change Vietnamese input method settings and manage the keyboard hook daemon."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("get_status",
			mcp.WithDescription("Report the hook daemon state and whether a save or restart is pending."),
		),
		mcpGetStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("set_setting",
			mcp.WithDescription("Change one input method setting. Values are given as text, e.g. \"vni\", \"true\", \"ctrl+shift+z\"."),
			mcp.WithString("key", mcp.Description("Settings key as in settings.json (e.g. inputMethod, switchKey)"), mcp.Required()),
			mcp.WithString("value", mcp.Description("New value"), mcp.Required()),
		),
		mcpSetSetting(deps),
	)

	s.AddTool(
		mcp.NewTool("restart_daemon",
			mcp.WithDescription("Restart the hook daemon so it reloads the runtime configuration."),
		),
		mcpRestartDaemon(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"settings://current",
			"Current Settings",
			mcp.WithResourceDescription("Persisted input method settings as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSettings(deps),
	)

	if deps.History != nil {
		s.AddResource(
			mcp.NewResource(
				"daemon://events",
				"Daemon Events",
				mcp.WithResourceDescription("Last 20 daemon lifecycle operations"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceEvents(deps),
		)
	}

	return s
}

func mcpGetStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := deps.Service.Status(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get status: %v", err)), nil
		}
		b, err := json.Marshal(st)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetSetting(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		if err := deps.Service.Set(ctx, key, settings.ValueText(value)); err != nil {
			return mcpError(fmt.Sprintf("failed to set %s: %v", key, err)), nil
		}

		return mcpText(fmt.Sprintf("Set %s = %s", key, value)), nil
	}
}

func mcpRestartDaemon(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := deps.Service.RestartDaemon(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("restart failed: %v", err)), nil
		}
		if !res.OK {
			return mcpError(res.Message), nil
		}
		return mcpText(res.Message), nil
	}
}

func mcpResourceSettings(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		s, err := deps.Service.Settings(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get settings: %w", err)
		}

		b, err := json.Marshal(SettingsView(s))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal settings: %w", err)
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

func mcpResourceEvents(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		events, err := deps.History.RecentDaemonEvents(20)
		if err != nil {
			return nil, fmt.Errorf("failed to get daemon events: %w", err)
		}

		b, err := json.Marshal(events)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal daemon events: %w", err)
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
