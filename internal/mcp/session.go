package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	clientName    = "cv-scout"
	clientVersion = "1.0"

	defaultInitTimeout = 15 * time.Second
	defaultCallTimeout = 60 * time.Second
)

// State is the session lifecycle phase.
type State int

const (
	StateDisconnected State = iota
	StateInitializing
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}

	return fmt.Sprintf("state(%d)", int(s))
}

// Transport moves raw envelope bytes between the session and a provider.
type Transport interface {
	io.Reader
	io.Writer
	Close() error
}

// Session drives the tool protocol over one transport. At most one call is
// in flight at a time; responses are still matched by correlation id rather
// than arrival order.
type Session struct {
	// InitTimeout bounds the handshake plus the tool listing.
	InitTimeout time.Duration
	// CallTimeout bounds each tool call unless the caller's context is
	// already stricter.
	CallTimeout time.Duration

	logger *zap.Logger
	tr     Transport

	mu    sync.Mutex
	state State
	tools []Tool

	// callMu serializes whole calls so only one is outstanding.
	callMu sync.Mutex

	writeMu sync.Mutex
	enc     *json.Encoder

	pendingMu sync.Mutex
	pending   map[int64]chan *response
	readErr   error

	nextID     atomic.Int64
	readerOnce sync.Once
}

// NewSession wraps a transport. The caller still has to Initialize it.
func NewSession(tr Transport, logger *zap.Logger) *Session {
	return &Session{
		InitTimeout: defaultInitTimeout,
		CallTimeout: defaultCallTimeout,
		logger:      logger,
		tr:          tr,
		enc:         json.NewEncoder(tr),
		pending:     make(map[int64]chan *response),
	}
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Initialize performs the handshake and caches the provider's tool listing.
// Valid only while disconnected. On failure the session returns to the
// disconnected state, unless the transport died, which closes it for good.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		st := s.state
		s.mu.Unlock()
		if st == StateClosed {
			return ErrTransportClosed
		}
		return fmt.Errorf("initialize in state %s: %w", st, ErrNotReady)
	}
	s.state = StateInitializing
	s.mu.Unlock()

	s.readerOnce.Do(func() { go s.readLoop() })

	if s.InitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.InitTimeout)
		defer cancel()
	}

	if err := s.handshake(ctx); err != nil {
		if !errors.Is(err, ErrTransportClosed) {
			s.transition(StateInitializing, StateDisconnected)
		}
		return err
	}

	s.transition(StateInitializing, StateReady)
	return nil
}

func (s *Session) handshake(ctx context.Context) error {
	raw, err := s.roundTrip(ctx, methodInitialize, initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      peerInfo{Name: clientName, Version: clientVersion},
	})
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	var ack initializeResult
	if err := json.Unmarshal(raw, &ack); err != nil {
		return fmt.Errorf("%w: malformed handshake ack: %v", ErrProtocol, err)
	}

	if ack.ProtocolVersion == "" {
		return fmt.Errorf("%w: handshake ack carries no protocol version", ErrProtocol)
	}

	s.logger.Debug("handshake complete",
		zap.String("server", ack.ServerInfo.Name),
		zap.String("protocol_version", ack.ProtocolVersion),
	)

	if err := s.notify(methodInitialized, nil); err != nil {
		return fmt.Errorf("confirm handshake: %w", err)
	}

	raw, err = s.roundTrip(ctx, methodListTools, nil)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}

	var listed listToolsResult
	if err := json.Unmarshal(raw, &listed); err != nil {
		return fmt.Errorf("%w: malformed tool listing: %v", ErrProtocol, err)
	}

	s.mu.Lock()
	s.tools = listed.Tools
	s.mu.Unlock()

	names := make([]string, 0, len(listed.Tools))
	for _, tool := range listed.Tools {
		names = append(names, tool.Name)
	}
	s.logger.Info("provider tools discovered", zap.Strings("tools", names))

	return nil
}

// ListTools returns the cached descriptors in provider-declared order.
func (s *Session) ListTools() ([]Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateReady:
	case StateClosed:
		return nil, ErrTransportClosed
	default:
		return nil, fmt.Errorf("list tools in state %s: %w", s.state, ErrNotReady)
	}

	tools := make([]Tool, len(s.tools))
	copy(tools, s.tools)

	return tools, nil
}

// CallTool invokes a declared tool and waits for the matching response. A
// deadline expiry fails the call with ErrToolTimeout but leaves the session
// ready; a transport death closes the session.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	s.mu.Lock()
	switch s.state {
	case StateReady:
	case StateClosed:
		s.mu.Unlock()
		return nil, ErrTransportClosed
	default:
		st := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("call %q in state %s: %w", name, st, ErrNotReady)
	}
	known := false
	for _, tool := range s.tools {
		if tool.Name == name {
			known = true
			break
		}
	}
	s.mu.Unlock()

	if !known {
		return nil, fmt.Errorf("tool %q: %w", name, ErrToolNotFound)
	}

	s.callMu.Lock()
	defer s.callMu.Unlock()

	if s.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.CallTimeout)
		defer cancel()
	}

	started := time.Now()

	raw, err := s.roundTrip(ctx, methodCallTool, callParams{Name: name, Arguments: args})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("tool call timed out",
				zap.String("tool", name),
				zap.Duration("after", time.Since(started)),
			)
			return nil, fmt.Errorf("tool %q: %w", name, ErrToolTimeout)
		}
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}

	var result ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed result for tool %q: %v", ErrProtocol, name, err)
	}

	s.logger.Debug("tool call finished",
		zap.String("tool", name),
		zap.Bool("is_error", result.IsError),
		zap.Duration("took", time.Since(started)),
	)

	return &result, nil
}

// Close releases the transport. Valid from any state and idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.mu.Unlock()

	err := s.tr.Close()

	s.releasePending(ErrTransportClosed)
	s.logger.Debug("session closed")

	return err
}

// roundTrip sends one request and waits for the response with the same id.
func (s *Session) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := s.nextID.Add(1)
	ch := make(chan *response, 1)

	s.pendingMu.Lock()
	if s.readErr != nil {
		s.pendingMu.Unlock()
		return nil, ErrTransportClosed
	}
	s.pending[id] = ch
	s.pendingMu.Unlock()
	defer s.forget(id)

	if err := s.send(&request{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrTransportClosed
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: provider answered %s with %d: %s", ErrProtocol, method, resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
}

func (s *Session) send(req *request) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.enc.Encode(req); err != nil {
		s.fail(fmt.Errorf("write %s: %w", req.Method, err))
		return ErrTransportClosed
	}

	return nil
}

func (s *Session) notify(method string, params any) error {
	return s.send(&request{JSONRPC: jsonRPCVersion, Method: method, Params: params})
}

func (s *Session) forget(id int64) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

// readLoop exclusively owns the transport's read end and routes response
// envelopes to their waiting callers.
func (s *Session) readLoop() {
	dec := json.NewDecoder(s.tr)
	for {
		var resp response
		if err := dec.Decode(&resp); err != nil {
			s.fail(err)
			return
		}
		s.dispatch(&resp)
	}
}

func (s *Session) dispatch(resp *response) {
	s.pendingMu.Lock()
	ch, ok := s.pending[resp.ID]
	if ok {
		delete(s.pending, resp.ID)
	}
	s.pendingMu.Unlock()

	if !ok {
		// Late answer to a timed-out call, or an id we never issued.
		s.logger.Debug("dropping response nobody waits for", zap.Int64("id", resp.ID))
		return
	}

	ch <- resp
}

// fail closes the session after a transport breakdown and releases every
// waiting caller.
func (s *Session) fail(cause error) {
	s.mu.Lock()
	unexpected := s.state != StateClosed
	s.state = StateClosed
	s.mu.Unlock()

	s.releasePending(cause)

	if unexpected {
		s.logger.Warn("provider transport died", zap.Error(cause))
		s.tr.Close()
	}
}

func (s *Session) releasePending(cause error) {
	s.pendingMu.Lock()
	if s.readErr == nil {
		s.readErr = cause
	}
	for id, ch := range s.pending {
		delete(s.pending, id)
		close(ch)
	}
	s.pendingMu.Unlock()
}

// transition flips the state only while it still matches from. A session the
// read loop moved to Closed in the meantime stays closed.
func (s *Session) transition(from, to State) {
	s.mu.Lock()
	if s.state == from {
		s.state = to
	}
	s.mu.Unlock()
}
