// Package mcp wraps the MCP Go SDK client in a small, single-use session
// type for smoke-testing a deployed server over the SSE transport.
//
// A Session is acquired with Dial, which connects and performs the
// initialize handshake, and must be released with Close. Only tools/list
// and tools/call are exposed.
package mcp
