package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
)

var testTools = []Tool{
	{
		Name:        "extract_profile",
		Description: "Extract a structured profile from resume text",
		InputSchema: map[string]any{"type": "object"},
	},
	{Name: "ping"},
}

// providerMsg is how the fake provider sees client traffic. The id is a
// pointer so notifications are told apart from requests.
type providerMsg struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      *int64         `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

// fakeProvider speaks the provider half of the protocol over an in-memory
// pipe. Its helpers return errors instead of failing the test because each
// script runs on its own goroutine.
type fakeProvider struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

func newFakeProvider(conn net.Conn) *fakeProvider {
	return &fakeProvider{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}
}

func (p *fakeProvider) next() (providerMsg, error) {
	var msg providerMsg
	if err := p.dec.Decode(&msg); err != nil {
		return providerMsg{}, fmt.Errorf("reading client message: %w", err)
	}

	return msg, nil
}

func (p *fakeProvider) reply(id int64, result any) error {
	return p.enc.Encode(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func (p *fakeProvider) replyError(id int64, code int, message string) error {
	return p.enc.Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]any{"code": code, "message": message},
	})
}

// serveHandshake walks the whole startup exchange and checks its order:
// initialize, the initialized notification, then tools/list.
func (p *fakeProvider) serveHandshake() error {
	msg, err := p.next()
	if err != nil {
		return err
	}
	if msg.Method != "initialize" {
		return fmt.Errorf("expected initialize first, got %q", msg.Method)
	}
	if msg.ID == nil {
		return errors.New("initialize carries no id")
	}
	if v, _ := msg.Params["protocolVersion"].(string); v != "2024-11-05" {
		return fmt.Errorf("unexpected protocol version %v", msg.Params["protocolVersion"])
	}
	if err := p.reply(*msg.ID, map[string]any{
		"protocolVersion": "2024-11-05",
		"serverInfo":      map[string]any{"name": "fake-provider", "version": "0.1"},
	}); err != nil {
		return err
	}

	msg, err = p.next()
	if err != nil {
		return err
	}
	if msg.Method != "notifications/initialized" {
		return fmt.Errorf("expected initialized notification, got %q", msg.Method)
	}
	if msg.ID != nil {
		return errors.New("notification carries an id")
	}

	msg, err = p.next()
	if err != nil {
		return err
	}
	if msg.Method != "tools/list" {
		return fmt.Errorf("expected tools/list, got %q", msg.Method)
	}
	if msg.ID == nil {
		return errors.New("tools/list carries no id")
	}

	return p.reply(*msg.ID, map[string]any{"tools": testTools})
}

func textResult(text string) map[string]any {
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	}
}

// startSession wires a session to a scripted fake provider. The script's
// error, if any, fails the test during cleanup.
func startSession(t *testing.T, script func(*fakeProvider) error) *Session {
	t.Helper()

	client, server := net.Pipe()
	provider := newFakeProvider(server)

	done := make(chan error, 1)
	go func() { done <- script(provider) }()

	s := NewSession(client, zap.NewNop())

	t.Cleanup(func() {
		client.Close()
		server.Close()
		if err := <-done; err != nil {
			t.Errorf("fake provider: %v", err)
		}
	})

	return s
}

func mustInitialize(t *testing.T, s *Session) {
	t.Helper()

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
}

func TestInitializeHandshakeAndListTools(t *testing.T) {
	t.Parallel()

	s := startSession(t, func(p *fakeProvider) error {
		return p.serveHandshake()
	})

	mustInitialize(t, s)

	if got := s.State(); got != StateReady {
		t.Fatalf("expected state ready, got %s", got)
	}

	tools, err := s.ListTools()
	if err != nil {
		t.Fatalf("listing tools: %v", err)
	}

	if len(tools) != 2 || tools[0].Name != "extract_profile" || tools[1].Name != "ping" {
		t.Fatalf("unexpected tool listing: %+v", tools)
	}

	// The listing is served from the cache; mutating it must not leak back.
	tools[0].Name = "mutated"

	again, err := s.ListTools()
	if err != nil {
		t.Fatalf("listing tools again: %v", err)
	}

	if again[0].Name != "extract_profile" {
		t.Fatalf("cached listing was mutated: %+v", again)
	}
}

func TestCallToolReturnsProviderText(t *testing.T) {
	t.Parallel()

	s := startSession(t, func(p *fakeProvider) error {
		if err := p.serveHandshake(); err != nil {
			return err
		}

		msg, err := p.next()
		if err != nil {
			return err
		}
		if msg.Method != "tools/call" {
			return fmt.Errorf("expected tools/call, got %q", msg.Method)
		}
		if name, _ := msg.Params["name"].(string); name != "extract_profile" {
			return fmt.Errorf("unexpected tool name %v", msg.Params["name"])
		}
		args, _ := msg.Params["arguments"].(map[string]any)
		if args["cvText"] != "ten years of Go" {
			return fmt.Errorf("unexpected arguments %v", msg.Params["arguments"])
		}

		return p.reply(*msg.ID, textResult(`{"skills": ["go"]}`))
	})

	mustInitialize(t, s)

	res, err := s.CallTool(context.Background(), "extract_profile", map[string]any{"cvText": "ten years of Go"})
	if err != nil {
		t.Fatalf("calling tool: %v", err)
	}

	if res.IsError {
		t.Fatal("expected a regular result, got an error result")
	}

	if got := res.Text(); got != `{"skills": ["go"]}` {
		t.Fatalf("unexpected result text %q", got)
	}
}

// Responses are matched by id, not by arrival order: an answer to an id the
// session never issued must be dropped without disturbing the real call.
func TestCallToolMatchesResponsesByID(t *testing.T) {
	t.Parallel()

	s := startSession(t, func(p *fakeProvider) error {
		if err := p.serveHandshake(); err != nil {
			return err
		}

		msg, err := p.next()
		if err != nil {
			return err
		}

		if err := p.reply(9999, textResult("stray")); err != nil {
			return err
		}

		return p.reply(*msg.ID, textResult("matched"))
	})

	mustInitialize(t, s)

	res, err := s.CallTool(context.Background(), "extract_profile", nil)
	if err != nil {
		t.Fatalf("calling tool: %v", err)
	}

	if got := res.Text(); got != "matched" {
		t.Fatalf("expected the response matching the request id, got %q", got)
	}
}

func TestCallsBeforeInitialize(t *testing.T) {
	t.Parallel()

	s := startSession(t, func(p *fakeProvider) error { return nil })

	if _, err := s.CallTool(context.Background(), "extract_profile", nil); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}

	if _, err := s.ListTools(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady from ListTools, got %v", err)
	}
}

func TestCallsAfterClose(t *testing.T) {
	t.Parallel()

	s := startSession(t, func(p *fakeProvider) error {
		return p.serveHandshake()
	})

	mustInitialize(t, s)

	if err := s.Close(); err != nil {
		t.Fatalf("closing session: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close is not idempotent: %v", err)
	}

	if got := s.State(); got != StateClosed {
		t.Fatalf("expected state closed, got %s", got)
	}

	if _, err := s.CallTool(context.Background(), "extract_profile", nil); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}

	if _, err := s.ListTools(); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed from ListTools, got %v", err)
	}

	if err := s.Initialize(context.Background()); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed from Initialize, got %v", err)
	}
}

func TestCallToolUnknownTool(t *testing.T) {
	t.Parallel()

	s := startSession(t, func(p *fakeProvider) error {
		return p.serveHandshake()
	})

	mustInitialize(t, s)

	_, err := s.CallTool(context.Background(), "summarize", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}

	if got := s.State(); got != StateReady {
		t.Fatalf("expected state ready, got %s", got)
	}
}

// A timed-out call fails alone: the session stays ready, and the provider's
// late answer is dropped instead of being delivered to the next call.
func TestCallToolTimeoutLeavesSessionUsable(t *testing.T) {
	t.Parallel()

	s := startSession(t, func(p *fakeProvider) error {
		if err := p.serveHandshake(); err != nil {
			return err
		}

		first, err := p.next()
		if err != nil {
			return err
		}

		second, err := p.next()
		if err != nil {
			return err
		}

		if err := p.reply(*first.ID, textResult("stale")); err != nil {
			return err
		}

		return p.reply(*second.ID, textResult("fresh"))
	})

	s.CallTimeout = 75 * time.Millisecond

	mustInitialize(t, s)

	_, err := s.CallTool(context.Background(), "extract_profile", nil)
	if !errors.Is(err, ErrToolTimeout) {
		t.Fatalf("expected ErrToolTimeout, got %v", err)
	}

	if got := s.State(); got != StateReady {
		t.Fatalf("expected state ready after a timeout, got %s", got)
	}

	res, err := s.CallTool(context.Background(), "extract_profile", nil)
	if err != nil {
		t.Fatalf("calling tool after a timeout: %v", err)
	}

	if got := res.Text(); got != "fresh" {
		t.Fatalf("expected the fresh result, got %q", got)
	}
}

// A provider that hangs up right after answering the handshake must leave
// the session closed, even when the read loop notices the exit while
// Initialize is still finishing.
func TestProviderExitAfterHandshakeClosesSession(t *testing.T) {
	t.Parallel()

	s := startSession(t, func(p *fakeProvider) error {
		if err := p.serveHandshake(); err != nil {
			return err
		}

		return p.conn.Close()
	})

	mustInitialize(t, s)

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateClosed {
		if time.Now().After(deadline) {
			t.Fatalf("expected state closed after the provider exit, got %s", s.State())
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := s.CallTool(context.Background(), "extract_profile", nil); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
}

func TestTransportDeathDuringCall(t *testing.T) {
	t.Parallel()

	s := startSession(t, func(p *fakeProvider) error {
		if err := p.serveHandshake(); err != nil {
			return err
		}

		if _, err := p.next(); err != nil {
			return err
		}

		return p.conn.Close()
	})

	mustInitialize(t, s)

	_, err := s.CallTool(context.Background(), "extract_profile", nil)
	if !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}

	if got := s.State(); got != StateClosed {
		t.Fatalf("expected state closed, got %s", got)
	}

	if _, err := s.CallTool(context.Background(), "extract_profile", nil); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed on later calls, got %v", err)
	}
}

func TestInitializeRejectsMalformedHandshake(t *testing.T) {
	t.Parallel()

	s := startSession(t, func(p *fakeProvider) error {
		msg, err := p.next()
		if err != nil {
			return err
		}

		return p.reply(*msg.ID, map[string]any{})
	})

	err := s.Initialize(context.Background())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}

	if got := s.State(); got != StateDisconnected {
		t.Fatalf("expected state disconnected after a failed handshake, got %s", got)
	}
}

func TestInitializeProviderError(t *testing.T) {
	t.Parallel()

	s := startSession(t, func(p *fakeProvider) error {
		msg, err := p.next()
		if err != nil {
			return err
		}

		return p.replyError(*msg.ID, -32600, "unsupported client")
	})

	err := s.Initialize(context.Background())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}

	if got := s.State(); got != StateDisconnected {
		t.Fatalf("expected state disconnected, got %s", got)
	}
}
