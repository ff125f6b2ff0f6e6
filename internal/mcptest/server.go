// Package mcptest runs an in-process MCP server speaking the legacy SSE
// transport, plus a /health endpoint, for exercising the verifier end to end.
//
// A client opens GET /sse and receives an "endpoint" event naming
// /message?sessionId=<id>. JSON-RPC requests are POSTed there, answered with
// 202 Accepted, and the response is delivered as a "message" event on the
// open stream.
package mcptest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcpguard/mcpverify/internal/jsonrpc"
)

// Tool is a tool advertised by the fake server.
type Tool struct {
	Name        string
	Description string

	// Text is returned as a single text content block.
	Text string
	// Content, if non-nil, replaces Text with raw content blocks.
	Content []map[string]any
	// IsError marks the tool result as a tool-level error.
	IsError bool
	// Fail answers tools/call with a JSON-RPC error instead of a result.
	Fail *jsonrpc.Error
}

// Options configures a Server.
type Options struct {
	// HealthStatus is the status /health answers with. Defaults to 200.
	HealthStatus int
	// HealthBody defaults to "OK".
	HealthBody string
	// TLS serves over https with the httptest certificate.
	TLS   bool
	Tools []Tool
}

// Call is a recorded tools/call request.
type Call struct {
	Name      string
	Arguments map[string]any
}

// Server is a running fake MCP deployment.
type Server struct {
	*httptest.Server

	opts     Options
	sessions sync.Map
	shutdown chan struct{}
	stopOnce sync.Once

	healthHits atomic.Int32
	sseHits    atomic.Int32

	mu    sync.Mutex
	calls []Call
}

// session is one open SSE stream.
type session struct {
	events chan []byte
	done   chan struct{}
}

// NewServer starts a fake deployment and registers its shutdown with t.
func NewServer(t testing.TB, opts Options) *Server {
	t.Helper()

	if opts.HealthStatus == 0 {
		opts.HealthStatus = http.StatusOK
	}
	if opts.HealthBody == "" {
		opts.HealthBody = "OK"
	}

	s := &Server{
		opts:     opts,
		shutdown: make(chan struct{}),
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/sse", s.handleSSE).Methods(http.MethodGet)
	router.HandleFunc("/message", s.handleMessage).Methods(http.MethodPost)

	if opts.TLS {
		s.Server = httptest.NewTLSServer(router)
	} else {
		s.Server = httptest.NewServer(router)
	}
	t.Cleanup(s.Close)
	return s
}

// Close ends every open stream and stops the server. It is safe to call
// more than once.
func (s *Server) Close() {
	s.stopOnce.Do(func() {
		close(s.shutdown)
		s.Server.CloseClientConnections()
		s.Server.Close()
	})
}

// Host returns the host:port the server listens on.
func (s *Server) Host() string {
	return strings.TrimPrefix(strings.TrimPrefix(s.URL, "https://"), "http://")
}

// HealthHits is the number of /health requests served.
func (s *Server) HealthHits() int { return int(s.healthHits.Load()) }

// SSEHits is the number of /sse streams opened.
func (s *Server) SSEHits() int { return int(s.sseHits.Load()) }

// Calls returns the tools/call requests received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// OpenSessions counts SSE streams that have not yet been torn down.
func (s *Server) OpenSessions() int {
	n := 0
	s.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.healthHits.Add(1)
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(s.opts.HealthStatus)
	io.WriteString(w, s.opts.HealthBody)
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	s.sseHits.Add(1)

	sessionID := uuid.NewString()
	sess := &session{
		events: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	s.sessions.Store(sessionID, sess)
	defer s.sessions.Delete(sessionID)
	defer close(sess.done)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: endpoint\ndata: /message?sessionId=%s\n\n", sessionID)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.shutdown:
			return
		case msg := <-sess.events:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "Missing sessionId parameter", http.StatusBadRequest)
		return
	}

	v, ok := s.sessions.Load(sessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	sess := v.(*session)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusInternalServerError)
		return
	}

	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Error unmarshalling request body", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	if req.IsNotification() {
		return
	}

	b, err := json.Marshal(s.dispatch(&req))
	if err != nil {
		b, _ = json.Marshal(jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, err.Error()))
	}

	select {
	case sess.events <- b:
	case <-sess.done:
	case <-s.shutdown:
	}
}

func (s *Server) dispatch(req *jsonrpc.Request) *jsonrpc.Response {
	switch req.Method {
	case "initialize":
		var params struct {
			ProtocolVersion string `json:"protocolVersion"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewError(req.ID, jsonrpc.CodeInvalidParams, err.Error())
		}
		return jsonrpc.NewResult(req.ID, map[string]any{
			"protocolVersion": params.ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "mcptest", "version": "1.0.0"},
		})

	case "ping":
		return jsonrpc.NewResult(req.ID, map[string]any{})

	case "tools/list":
		tools := make([]map[string]any, 0, len(s.opts.Tools))
		for _, tool := range s.opts.Tools {
			tools = append(tools, map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"inputSchema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{"type": "string"},
					},
				},
			})
		}
		return jsonrpc.NewResult(req.ID, map[string]any{"tools": tools})

	case "tools/call":
		return s.callTool(req)

	default:
		return jsonrpc.NewError(req.ID, jsonrpc.CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) callTool(req *jsonrpc.Request) *jsonrpc.Response {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInvalidParams, err.Error())
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Name: params.Name, Arguments: params.Arguments})
	s.mu.Unlock()

	for _, tool := range s.opts.Tools {
		if tool.Name != params.Name {
			continue
		}
		if tool.Fail != nil {
			return &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: req.ID, Error: tool.Fail}
		}
		content := tool.Content
		if content == nil {
			content = []map[string]any{{"type": "text", "text": tool.Text}}
		}
		return jsonrpc.NewResult(req.ID, map[string]any{
			"content": content,
			"isError": tool.IsError,
		})
	}
	return jsonrpc.NewError(req.ID, jsonrpc.CodeInvalidParams, "unknown tool: "+params.Name)
}
