package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mcpguard/mcpverify/internal/buildinfo"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	// ErrToolNotFound is returned by FindTool when no tool has the requested name.
	ErrToolNotFound = errors.New("tool not found")

	// ErrSessionClosed is returned by every Session method after Close.
	ErrSessionClosed = errors.New("session closed")
)

// DialOptions configures Dial.
type DialOptions struct {
	// HTTPClient carries the SSE stream and the POSTed messages. It must not
	// impose an overall request timeout or the stream is cut mid-session.
	HTTPClient *http.Client

	// Logger is the structured logger for session diagnostics.
	Logger *slog.Logger
}

// ServerInfo describes the remote end as reported during initialization.
type ServerInfo struct {
	Name            string
	Version         string
	ProtocolVersion string
}

// Session is a single-use MCP client session over the SSE transport.
// Acquire it with Dial and release it with Close; a closed Session cannot
// be reopened.
type Session struct {
	endpoint string
	cs       *sdk.ClientSession
	info     ServerInfo
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Dial opens the SSE stream at endpoint and performs the initialize
// handshake. The stream stays bound to ctx for the life of the session.
func Dial(ctx context.Context, endpoint string, opts DialOptions) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("endpoint", endpoint)

	client := sdk.NewClient(&sdk.Implementation{
		Name:    "mcpverify",
		Version: buildinfo.Version,
	}, &sdk.ClientOptions{})

	transport := &sdk.SSEClientTransport{
		Endpoint:   endpoint,
		HTTPClient: opts.HTTPClient,
	}

	logger.Debug("connecting to MCP server")
	cs, err := client.Connect(ctx, transport, &sdk.ClientSessionOptions{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}

	s := &Session{
		endpoint: endpoint,
		cs:       cs,
		logger:   logger,
	}
	if res := cs.InitializeResult(); res != nil {
		s.info.ProtocolVersion = res.ProtocolVersion
		if res.ServerInfo != nil {
			s.info.Name = res.ServerInfo.Name
			s.info.Version = res.ServerInfo.Version
		}
	}

	logger.Info("MCP session initialized",
		"server_name", s.info.Name,
		"server_version", s.info.Version,
		"protocol_version", s.info.ProtocolVersion,
	)
	return s, nil
}

// Server returns what the remote reported about itself during the handshake.
func (s *Session) Server() ServerInfo {
	return s.info
}

// ListTools returns every tool the server advertises, following
// pagination cursors until the list is exhausted.
func (s *Session) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	var tools []ToolDescriptor
	params := &sdk.ListToolsParams{}
	for {
		res, err := s.cs.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}
		for _, t := range res.Tools {
			if t == nil {
				continue
			}
			tools = append(tools, ToolDescriptor{Name: t.Name, Description: t.Description})
		}
		if res.NextCursor == "" {
			break
		}
		params = &sdk.ListToolsParams{Cursor: res.NextCursor}
	}

	s.logger.Info("discovered MCP tools", "count", len(tools))
	return tools, nil
}

// CallTool invokes the named tool with args.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	res, err := s.cs.CallTool(ctx, &sdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, err)
	}

	result := &ToolResult{
		Content: make([]ContentBlock, 0, len(res.Content)),
		IsError: res.IsError,
	}
	for _, c := range res.Content {
		result.Content = append(result.Content, convertContent(c))
	}

	s.logger.Debug("tool call returned",
		"tool", name,
		"blocks", len(result.Content),
		"is_error", result.IsError,
	)
	return result, nil
}

// Close ends the session and its SSE stream. Calling Close more than once
// is harmless.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Debug("closing MCP session")
	if err := s.cs.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func convertContent(c sdk.Content) ContentBlock {
	switch v := c.(type) {
	case *sdk.TextContent:
		return ContentBlock{Type: "text", Text: v.Text}
	case *sdk.ImageContent:
		return ContentBlock{Type: "image"}
	case *sdk.EmbeddedResource:
		return ContentBlock{Type: "resource"}
	default:
		return ContentBlock{Type: fmt.Sprintf("%T", c)}
	}
}
