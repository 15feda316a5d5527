package quagent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MaastrichtU-BISS/grid-explorer/internal/explorer"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultWriteTimeout   = 2 * time.Second
)

// Client speaks the Quagent text protocol over a single connection. Commands
// are newline-terminated lines; events arrive the same way and are grouped
// into batches by read.
type Client struct {
	conn         net.Conn
	reader       *bufio.Reader
	writeTimeout time.Duration
	log          zerolog.Logger

	mu     sync.Mutex
	closed bool
}

var _ explorer.Actuator = (*Client)(nil)

// Dial connects to a Quagent server
func Dial(ctx context.Context, addr string, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("quagent: address required")
	}
	dialer := net.Dialer{Timeout: DefaultConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("quagent: dial %s: %w", addr, err)
	}
	return NewClient(conn, log), nil
}

// NewClient wraps an established connection
func NewClient(conn net.Conn, log zerolog.Logger) *Client {
	return &Client{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writeTimeout: DefaultWriteTimeout,
		log:          log.With().Str("component", "quagent").Logger(),
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Client) Turn(degrees int) error      { return c.send(fmt.Sprintf("do turnby %d", degrees)) }
func (c *Client) Walk(distance int) error     { return c.send(fmt.Sprintf("do walkby %d", distance)) }
func (c *Client) RequestPosition() error      { return c.send("do getwhere") }
func (c *Client) RequestRays(count int) error { return c.send(fmt.Sprintf("ask rays %d", count)) }
func (c *Client) Pickup(label string) error   { return c.send("do pickup " + label) }

func (c *Client) RequestRadiusScan(radius int) error {
	return c.send(fmt.Sprintf("ask radius %d", radius))
}

func (c *Client) send(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("send %q: %w", cmd, explorer.ErrConnectionLost)
	}
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := io.WriteString(c.conn, cmd+"\n"); err != nil {
		return fmt.Errorf("send %q: %v: %w", cmd, err, explorer.ErrConnectionLost)
	}
	c.log.Debug().Str("cmd", cmd).Msg("sent")
	return nil
}

// Events reads the connection until it fails or ctx is done and delivers
// what it reads as batches. Lines that arrive together form one batch. The
// last batch carries ErrConnectionLost; the channel is closed after it.
func (c *Client) Events(ctx context.Context) <-chan explorer.Batch {
	out := make(chan explorer.Batch)
	stopped := make(chan struct{})
	go func() {
		defer close(out)
		defer close(stopped)
		for {
			b := c.readBatch()
			if len(b.Observations) == 0 && b.Err == nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
			if errors.Is(b.Err, explorer.ErrConnectionLost) {
				return
			}
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-stopped:
		}
	}()
	return out
}

// readBatch blocks for one line, then takes every further complete line that
// is already buffered.
func (c *Client) readBatch() explorer.Batch {
	var b explorer.Batch
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			b.Err = fmt.Errorf("read: %v: %w", err, explorer.ErrConnectionLost)
			return b
		}
		line = strings.TrimSpace(line)
		c.log.Debug().Str("event", line).Msg("received")

		obs, err := Parse(line)
		if err != nil {
			b.Err = err
			c.discardBuffered()
			return b
		}
		if obs != nil {
			b.Observations = append(b.Observations, obs)
		}
		if !c.lineBuffered() {
			return b
		}
	}
}

func (c *Client) lineBuffered() bool {
	n := c.reader.Buffered()
	if n == 0 {
		return false
	}
	buf, _ := c.reader.Peek(n)
	return bytes.IndexByte(buf, '\n') >= 0
}

// discardBuffered drops the complete lines that arrived with a malformed one
func (c *Client) discardBuffered() {
	for c.lineBuffered() {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return
		}
		c.log.Debug().Str("event", strings.TrimSpace(line)).Msg("skipped")
	}
}
