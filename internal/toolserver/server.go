// Package toolserver implements the provider side of the tool protocol on
// a stdio-style stream, exposing resume extraction backed by a generative
// model.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spigell/cv-scout/internal/mcp"
	"go.uber.org/zap"
)

const (
	serverName      = "cv-scout-tools"
	serverVersion   = "1.0"
	protocolVersion = "2024-11-05"
)

// request is the inbound envelope. Params stay raw until the method is
// known.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// tool couples a wire descriptor with its argument schema and handler.
type tool struct {
	descriptor mcp.Tool
	schema     *jsonschema.Schema
	handle     func(ctx context.Context, args map[string]any) mcp.ToolResult
}

func (t *tool) validate(args map[string]any) error {
	if t.schema == nil {
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}

	return t.schema.Validate(args)
}

type Server struct {
	logger *zap.Logger
	tools  []tool
}

func New(logger *zap.Logger, generator contentGenerator) (*Server, error) {
	extract, err := newExtractTool(logger, generator)
	if err != nil {
		return nil, err
	}

	return &Server{logger: logger, tools: []tool{extract}}, nil
}

// Serve answers protocol requests from r on w until the stream ends or the
// context is canceled between requests.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	s.logger.Info("tool server listening", zap.Int("tools", len(s.tools)))

	for {
		if ctx.Err() != nil {
			return nil
		}

		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				s.logger.Info("client went away")
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}

		var err error
		switch req.Method {
		case "initialize":
			s.logger.Info("client connected")
			err = s.reply(enc, req.ID, map[string]any{
				"protocolVersion": protocolVersion,
				"capabilities":    map[string]any{"tools": map[string]any{}},
				"serverInfo":      map[string]any{"name": serverName, "version": serverVersion},
			})
		case "notifications/initialized":
			// A notification; nothing goes back.
		case "tools/list":
			descriptors := make([]mcp.Tool, 0, len(s.tools))
			for _, t := range s.tools {
				descriptors = append(descriptors, t.descriptor)
			}
			err = s.reply(enc, req.ID, map[string]any{"tools": descriptors})
		case "tools/call":
			err = s.handleCall(ctx, enc, &req)
		default:
			err = s.replyError(enc, req.ID, -32601, fmt.Sprintf("method %q not found", req.Method))
		}

		if err != nil {
			return err
		}
	}
}

func (s *Server) handleCall(ctx context.Context, enc *json.Encoder, req *request) error {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.replyError(enc, req.ID, -32602, fmt.Sprintf("malformed call params: %v", err))
	}

	for i := range s.tools {
		t := &s.tools[i]
		if t.descriptor.Name != params.Name {
			continue
		}

		if err := t.validate(params.Arguments); err != nil {
			s.logger.Warn("rejecting tool arguments",
				zap.String("tool", params.Name),
				zap.Error(err),
			)
			return s.reply(enc, req.ID, errorResult(fmt.Sprintf("invalid arguments: %v", err)))
		}

		started := time.Now()
		result := t.handle(ctx, params.Arguments)

		s.logger.Debug("tool call served",
			zap.String("tool", params.Name),
			zap.Bool("is_error", result.IsError),
			zap.Duration("took", time.Since(started)),
		)

		return s.reply(enc, req.ID, result)
	}

	return s.replyError(enc, req.ID, -32602, fmt.Sprintf("unknown tool %q", params.Name))
}

func (s *Server) reply(enc *json.Encoder, id int64, result any) error {
	return enc.Encode(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func (s *Server) replyError(enc *json.Encoder, id int64, code int, message string) error {
	s.logger.Warn("rejecting request", zap.Int64("id", id), zap.String("reason", message))

	return enc.Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]any{"code": code, "message": message},
	})
}

func errorResult(message string) mcp.ToolResult {
	return mcp.ToolResult{
		Content: []mcp.Content{{Type: "text", Text: message}},
		IsError: true,
	}
}
