package mcp

import (
	"encoding/json"
	"strings"
)

const (
	jsonRPCVersion  = "2.0"
	protocolVersion = "2024-11-05"

	methodInitialize  = "initialize"
	methodInitialized = "notifications/initialized"
	methodListTools   = "tools/list"
	methodCallTool    = "tools/call"
)

// request is a JSON-RPC request envelope. Notifications leave ID at zero so
// omitempty drops it from the wire.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// response is a JSON-RPC response envelope.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *responseError  `json:"error,omitempty"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type peerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      peerInfo       `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string   `json:"protocolVersion"`
	ServerInfo      peerInfo `json:"serverInfo"`
}

type listToolsResult struct {
	Tools []Tool `json:"tools"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Tool describes one remote operation declared by the provider. The input
// schema is opaque to the session; it is carried for providers and callers
// that want to validate arguments.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Content is a single chunk of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolResult is the decoded payload of a tools/call response.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text concatenates the text chunks of the result in order. Chunks of other
// kinds are skipped.
func (r *ToolResult) Text() string {
	var b strings.Builder
	for _, chunk := range r.Content {
		if chunk.Type != "text" {
			continue
		}
		b.WriteString(chunk.Text)
	}

	return b.String()
}
