package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

const defaultMaxPayloadBytes = 4 * 1024

// Collector receives hotkey commands as JSON datagrams on a unix socket
// and hands valid ones to the consumer through Commands.
type Collector struct {
	path     string
	commands chan Command
	logger   *zap.SugaredLogger

	MaxPayloadBytes int

	mu     sync.Mutex
	conn   *net.UnixConn
	closed bool
	done   chan struct{}
}

func NewCollector(socketPath string, logger *zap.SugaredLogger) *Collector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Collector{
		path:            socketPath,
		commands:        make(chan Command, 16),
		logger:          logger.Named("collector"),
		MaxPayloadBytes: defaultMaxPayloadBytes,
	}
}

func (c *Collector) SocketPath() string {
	return c.path
}

// Commands delivers validated commands. It is closed once the collector
// stops.
func (c *Collector) Commands() <-chan Command {
	return c.commands
}

func (c *Collector) Start(ctx context.Context) error {
	if c.path == "" {
		return fmt.Errorf("socket path is required")
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = defaultMaxPayloadBytes
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := os.Chmod(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("chmod socket dir: %w", err)
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	addr, err := net.ResolveUnixAddr("unixgram", c.path)
	if err != nil {
		return fmt.Errorf("resolve unix addr: %w", err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return fmt.Errorf("listen unixgram: %w", err)
	}
	if err := os.Chmod(c.path, 0o600); err != nil {
		_ = conn.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.closed = false
	c.done = make(chan struct{})
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.close()
	}()

	go c.readLoop(ctx, conn)

	return nil
}

// Wait blocks until the read loop has exited.
func (c *Collector) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Collector) readLoop(ctx context.Context, conn *net.UnixConn) {
	defer close(c.done)
	defer close(c.commands)

	buf := make([]byte, c.MaxPayloadBytes)
	for {
		n, _, err := conn.ReadFromUnix(buf)
		if err != nil {
			if c.isClosed() {
				return
			}
			continue
		}

		if n <= 0 || n >= c.MaxPayloadBytes {
			c.logger.Debugw("dropping datagram", "bytes", n)
			continue
		}

		var cmd Command
		if err := json.Unmarshal(buf[:n], &cmd); err != nil {
			c.logger.Debugw("dropping malformed command", "error", err)
			continue
		}
		if err := cmd.Validate(); err != nil {
			c.logger.Debugw("dropping invalid command", "error", err)
			continue
		}
		select {
		case c.commands <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Collector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Collector) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	_ = os.Remove(c.path)
}

// Send writes one command to the socket at path.
func Send(socketPath string, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	addr, err := net.ResolveUnixAddr("unixgram", socketPath)
	if err != nil {
		return fmt.Errorf("resolve unix addr: %w", err)
	}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", socketPath, err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}
