package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ping",
		Description: "Test tool - responds with pong or echoes input",
	}, NewPingHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_page",
		Description: "Analyze a web page (html, markdown or url) and make it the current page of the session",
	}, NewAnalyzePageHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "process_message",
		Description: "Record a chat message about the current page and update conversation memory",
	}, NewProcessMessageHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_context",
		Description: "Assemble a token-bounded prompt from the current page, related pages, conversations and memory",
	}, NewBuildContextHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_research",
		Description: "Start a research session seeded with the current page",
	}, NewStartResearchHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_finding",
		Description: "Add a finding from the current page to the active research session",
	}, NewAddFindingHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "end_research",
		Description: "Complete the active research session",
	}, NewEndResearchHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_metrics",
		Description: "Session statistics: context builds, memory queries, cross-page links and timings",
	}, NewGetMetricsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_context",
		Description: "Export the whole session as JSON, or store it as a named snapshot",
	}, NewExportContextHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "import_context",
		Description: "Replace the session with an export document or a stored snapshot",
	}, NewImportContextHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_context",
		Description: "Drop all pages, conversations, memory and research sessions",
	}, NewClearContextHandler(deps))
}
