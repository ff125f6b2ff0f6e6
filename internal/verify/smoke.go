package verify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mcpguard/mcpverify/internal/config"
	"github.com/mcpguard/mcpverify/internal/httpkit"
	"github.com/mcpguard/mcpverify/internal/mcp"
)

// SmokeTest opens an MCP session against the target, lists its tools and
// calls ToolName with {"query": Query}.
type SmokeTest struct {
	// HTTPClient carries the SSE session. Defaults to an httpkit client
	// with no overall timeout.
	HTTPClient *http.Client
	ToolName   string
	Query      string
	Out        io.Writer
	Redactor   Redactor
	Logger     *slog.Logger
}

// Run reports success only if the tool was found and invoked cleanly.
// The session is closed on every path out of Run.
func (s *SmokeTest) Run(ctx context.Context, target config.Target) Result {
	out := orDiscard(s.Out)
	logger := orDefault(s.Logger)

	if target.Host == "" {
		return s.fault(out, fmt.Errorf("host must not be empty"))
	}

	url := target.SSEURL()
	fmt.Fprintf(out, "🔍 Testing deployment at: %s\n", url)

	client := s.HTTPClient
	if client == nil {
		client = httpkit.NewClient(httpkit.WithTimeout(0))
	}

	fmt.Fprintln(out, "📡 Connecting to MCP server...")
	sess, err := mcp.Dial(ctx, url, mcp.DialOptions{HTTPClient: client, Logger: logger})
	if err != nil {
		return s.fault(out, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("failed to close MCP session", "error", err)
		}
	}()

	info := sess.Server()
	fmt.Fprintf(out, "🔧 Session initialized: %s %s (protocol %s)\n", info.Name, info.Version, info.ProtocolVersion)

	fmt.Fprintln(out, "🔨 Listing available tools...")
	tools, err := sess.ListTools(ctx)
	if err != nil {
		return s.fault(out, err)
	}
	fmt.Fprintf(out, "✅ Found %d tools:\n", len(tools))
	for _, t := range tools {
		fmt.Fprintf(out, "   - %s: %s\n", t.Name, t.Description)
	}

	name := s.toolName()
	if _, err := mcp.FindTool(tools, name); err != nil {
		fmt.Fprintf(out, "❌ %s tool not found!\n", name)
		return fail(err.Error())
	}

	fmt.Fprintf(out, "\n🔍 Testing %s tool...\n", name)
	res, err := sess.CallTool(ctx, name, map[string]any{"query": s.Query})
	if err != nil {
		return s.fault(out, err)
	}

	text, err := res.FirstText()
	if err != nil {
		return s.fault(out, err)
	}
	logger.Log(ctx, config.LevelTrace, "tool result", "tool", name, "text", text)

	if res.IsError {
		fmt.Fprintf(out, "❌ %s returned an error: %s\n", name, s.preview(logger, name, text))
		return fail(fmt.Sprintf("%s returned a tool error", name))
	}

	fmt.Fprintf(out, "✅ %s call successful!\n", name)
	fmt.Fprintf(out, "📝 Query: %s\n", s.Query)
	fmt.Fprintln(out, "📄 Results preview:")
	fmt.Fprintln(out, s.preview(logger, name, text))

	return pass(fmt.Sprintf("%s returned %d content blocks", name, len(res.Content)))
}

func (s *SmokeTest) toolName() string {
	if s.ToolName == "" {
		return config.DefaultTool
	}
	return s.ToolName
}

// preview truncates the raw text first and then masks secrets in the kept
// prefix, so redaction never changes where the cut falls.
func (s *SmokeTest) preview(logger *slog.Logger, name, text string) string {
	cut := previewCut(text)
	kept := redact(s.Redactor, logger, name, text, cut)
	if cut < len(text) {
		return kept + TruncationMarker
	}
	return kept
}

func (s *SmokeTest) fault(out io.Writer, err error) Result {
	fmt.Fprintf(out, "❌ Error during testing: %v\n", err)
	return fail(err.Error())
}
