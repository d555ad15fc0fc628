package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// StdioTransport runs an MCP server as a subprocess and exchanges
// newline-delimited JSON-RPC messages over its stdin/stdout.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu     sync.Mutex // serializes request/response exchanges
	closed bool
}

// NewStdioTransport starts the server subprocess. Extra environment
// variables ("KEY=VALUE" entries) are appended to the current process
// environment.
func NewStdioTransport(command string, args []string, env []string) (*StdioTransport, error) {
	cmd := exec.Command(command, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	return &StdioTransport{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 1<<20),
	}, nil
}

// Send writes a request line and blocks until the matching response
// line arrives. Notifications interleaved by the server are skipped.
func (t *StdioTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, fmt.Errorf("transport closed")
	}

	if err := t.writeLine(req); err != nil {
		return nil, err
	}

	// Read in a goroutine so context cancellation can interrupt a
	// server that never answers.
	type readResult struct {
		resp *Response
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		for {
			line, err := t.stdout.ReadBytes('\n')
			if err != nil {
				ch <- readResult{nil, fmt.Errorf("read response: %w", err)}
				return
			}
			var resp Response
			if err := json.Unmarshal(line, &resp); err != nil {
				ch <- readResult{nil, fmt.Errorf("decode response: %w", err)}
				return
			}
			// Server-initiated notifications have no ID; skip until
			// we see the reply to our request.
			if resp.ID != req.ID && resp.Result == nil && resp.Error == nil {
				continue
			}
			ch <- readResult{&resp, nil}
			return
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.resp, r.err
	}
}

// Notify writes a notification line. No response is read.
func (t *StdioTransport) Notify(ctx context.Context, notif *Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport closed")
	}
	return t.writeLine(notif)
}

func (t *StdioTransport) writeLine(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')
	if _, err := t.stdin.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close terminates the subprocess.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	t.stdin.Close()
	if t.cmd.Process != nil {
		t.cmd.Process.Kill()
	}
	t.cmd.Wait()
	return nil
}
