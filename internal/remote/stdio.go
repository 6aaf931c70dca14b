package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// StdioClient talks to a remote agent subprocess over stdin/stdout.
type StdioClient struct {
	name      string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	stderr    io.ReadCloser
	responses chan []byte
	readErr   error
	done      chan struct{}
	reqID     int
	logger    *slog.Logger
	mu        sync.Mutex
	closed    bool
}

// NewStdioClient starts command with args and connects to its pipes.
func NewStdioClient(name, command string, args []string, logger *slog.Logger) (*StdioClient, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	cmd := exec.Command(command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("failed to start remote agent process: %w", err)
	}

	client := &StdioClient{
		name:      name,
		cmd:       cmd,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		responses: make(chan []byte),
		done:      make(chan struct{}),
		logger:    logger,
	}

	go client.readResponses()
	go client.logStderr()

	logger.Info("started remote agent process", "name", name, "command", command)
	return client, nil
}

// Name returns the client identifier
func (c *StdioClient) Name() string {
	return c.name
}

// Call sends one request line and waits for the matching response line or
// for ctx to end. Responses to abandoned calls are skipped.
func (c *StdioClient) Call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("client is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.reqID++
	request, err := newRequest(c.reqID, method, params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	requestJSON, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := c.stdin.Write(append(requestJSON, '\n')); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}

	for {
		var line []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-c.responses:
			if !ok {
				if c.readErr != nil {
					return fmt.Errorf("failed to read response: %w", c.readErr)
				}
				return errors.New("EOF from remote agent")
			}
			line = l
		}

		var response JSONRPCResponse
		if err := json.Unmarshal(line, &response); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if response.ID > 0 && response.ID < request.ID {
			c.logger.Debug("skipping late response", "name", c.name, "id", response.ID)
			continue
		}
		return decodeResponse(response, request.ID, result)
	}
}

// readResponses hands stdout lines to Call until the subprocess exits or the
// client is closed.
func (c *StdioClient) readResponses() {
	defer close(c.responses)
	scanner := bufio.NewScanner(c.stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case c.responses <- line:
		case <-c.done:
			return
		}
	}
	c.readErr = scanner.Err()
}

// Close stops the subprocess.
func (c *StdioClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	c.stdin.Close()
	if c.cmd.Process != nil {
		if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			c.logger.Warn("failed to kill remote agent process", "error", err)
		}
		_ = c.cmd.Wait()
	}

	c.logger.Info("closed remote agent process", "name", c.name)
	return nil
}

// logStderr forwards the subprocess stderr to the log.
func (c *StdioClient) logStderr() {
	scanner := bufio.NewScanner(c.stderr)
	for scanner.Scan() {
		c.logger.Warn("remote agent stderr", "name", c.name, "message", scanner.Text())
	}
}
