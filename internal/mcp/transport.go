package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// interpreters maps provider script extensions to the binary that runs them.
var interpreters = map[string]string{
	".py": "python",
	".js": "node",
}

// closeGrace is how long a provider gets to exit after its stdin closes
// before it is killed.
const closeGrace = 3 * time.Second

// ProcessTransport owns a provider child process and exposes its stdio
// streams as the session's byte channel.
type ProcessTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewProcessTransport resolves the interpreter for the script, starts the
// provider process and wires up its pipes. Unknown extensions fail before
// any process exists.
func NewProcessTransport(ctx context.Context, logger *zap.Logger, script string) (*ProcessTransport, error) {
	interpreter, err := interpreterFor(script)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, interpreter, script)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s %s: %w", interpreter, script, err)
	}

	t := &ProcessTransport{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		logger: logger,
	}

	go t.relayStderr(stderr)

	logger.Debug("provider process started",
		zap.String("interpreter", interpreter),
		zap.String("script", script),
		zap.Int("pid", cmd.Process.Pid),
	)

	return t, nil
}

func interpreterFor(script string) (string, error) {
	ext := strings.ToLower(filepath.Ext(script))

	interpreter, ok := interpreters[ext]
	if !ok {
		return "", fmt.Errorf("script %q: %w", script, ErrUnsupportedScript)
	}

	return interpreter, nil
}

func (t *ProcessTransport) Read(p []byte) (int, error) { return t.stdout.Read(p) }

func (t *ProcessTransport) Write(p []byte) (int, error) { return t.stdin.Write(p) }

// Close shuts the provider down. Closing stdin asks it to exit; the grace
// timer covers providers that ignore EOF. Safe to call more than once.
func (t *ProcessTransport) Close() error {
	t.closeOnce.Do(func() {
		t.stdin.Close()

		done := make(chan error, 1)
		go func() { done <- t.cmd.Wait() }()

		select {
		case err := <-done:
			if err != nil {
				t.logger.Debug("provider exited", zap.Error(err))
			}
		case <-time.After(closeGrace):
			t.logger.Warn("provider ignored stdin close, killing it", zap.Int("pid", t.cmd.Process.Pid))
			if err := t.cmd.Process.Kill(); err != nil {
				t.closeErr = fmt.Errorf("kill provider: %w", err)
			}
			<-done
		}
	})

	return t.closeErr
}

// relayStderr forwards the provider's stderr lines into the log so provider
// tracebacks are not lost.
func (t *ProcessTransport) relayStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		t.logger.Debug("provider stderr", zap.String("line", line))
	}
}
