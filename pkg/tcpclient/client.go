// Package tcpclient provides a small pooled TCP client used to talk to the
// local CLAP inference runtime.
package tcpclient

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrTimeout          = errors.New("operation timed out")
)

type Client struct {
	address     string
	timeout     time.Duration
	maxRetries  int
	connections chan net.Conn
	logger      *zap.Logger
	mu          sync.Mutex
	closed      bool
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(address string, timeout time.Duration, poolSize int, opts ...Option) (*Client, error) {
	client := &Client{
		address:     address,
		timeout:     timeout,
		maxRetries:  3,
		connections: make(chan net.Conn, poolSize),
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	for i := 0; i < poolSize; i++ {
		conn, err := client.dial()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize connection pool: %w", err)
		}
		client.connections <- conn
	}

	return client, nil
}

func (c *Client) dial() (net.Conn, error) {
	dialer := &net.Dialer{Timeout: c.timeout}
	return dialer.Dial("tcp", c.address)
}

func (c *Client) getConnection() (net.Conn, error) {
	select {
	case conn, ok := <-c.connections:
		if !ok {
			return nil, ErrConnectionClosed
		}
		return conn, nil
	case <-time.After(c.timeout):
		return nil, ErrTimeout
	}
}

// releaseConnection returns the connection to the pool, or closes it when
// the client was closed while the connection was in flight.
func (c *Client) releaseConnection(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		conn.Close()
		return
	}

	c.connections <- conn
}

// Send writes data followed by a newline, retrying on failure.
func (c *Client) Send(ctx context.Context, data string) error {
	var err error
	for i := 0; i < c.maxRetries; i++ {
		if err = c.send(ctx, data); err == nil {
			return nil
		}
		c.logger.Warn("Failed to send data, retrying", zap.Error(err), zap.Int("attempt", i+1))
	}
	return fmt.Errorf("failed to send data after %d attempts: %w", c.maxRetries, err)
}

func (c *Client) send(ctx context.Context, data string) error {
	conn, err := c.getConnection()
	if err != nil {
		return err
	}
	defer c.releaseConnection(conn)

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{})
	}

	writer := bufio.NewWriter(conn)
	if _, err := writer.WriteString(data + "\n"); err != nil {
		return fmt.Errorf("failed to send data: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush data: %w", err)
	}

	return nil
}

// SendFrame writes a 4-byte big-endian length prefix followed by the raw
// payload. Use this for binary payloads that cannot ride the newline
// framing of Send.
func (c *Client) SendFrame(ctx context.Context, payload []byte) error {
	var err error
	for i := 0; i < c.maxRetries; i++ {
		if err = c.sendFrame(ctx, payload); err == nil {
			return nil
		}
		c.logger.Warn("Failed to send frame, retrying", zap.Error(err), zap.Int("attempt", i+1))
	}
	return fmt.Errorf("failed to send frame after %d attempts: %w", c.maxRetries, err)
}

func (c *Client) sendFrame(ctx context.Context, payload []byte) error {
	conn, err := c.getConnection()
	if err != nil {
		return err
	}
	defer c.releaseConnection(conn)

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{})
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))

	writer := bufio.NewWriter(conn)
	if _, err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to send frame header: %w", err)
	}
	if _, err := writer.Write(payload); err != nil {
		return fmt.Errorf("failed to send frame payload: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush frame: %w", err)
	}

	return nil
}

// ReceiveFullBytes reads exactly n bytes from the connection.
func (c *Client) ReceiveFullBytes(ctx context.Context, n int) ([]byte, error) {
	conn, err := c.getConnection()
	if err != nil {
		return nil, err
	}
	defer c.releaseConnection(conn)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		defer conn.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("failed to receive data: %w", err)
	}

	return buf, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	close(c.connections)
	for conn := range c.connections {
		if err := conn.Close(); err != nil {
			c.logger.Error("Failed to close connection", zap.Error(err))
		}
	}

	return nil
}
