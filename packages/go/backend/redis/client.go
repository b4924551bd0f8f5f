// Package redis is a small RESP client covering the key/value commands the
// upload cache needs.
package redis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultTimeout = 5 * time.Second
	scanCount      = 100
)

// ErrNil is returned by typed helpers when the server replies with a nil bulk string.
var ErrNil = errors.New("redis: nil reply")

// Client holds a single lazily dialed connection. Commands are serialized.
type Client struct {
	addr   string
	dialer net.Dialer

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

type Reply struct {
	Type  byte
	Text  string
	Array []Reply
	IsNil bool
}

// NewClient accepts either host:port or a redis:// URL.
func NewClient(addr string) (*Client, error) {
	resolved, err := resolveAddr(addr)
	if err != nil {
		return nil, err
	}
	return &Client{addr: resolved}, nil
}

// Do sends one command and reads its reply. Error replies become Go errors.
func (c *Client) Do(ctx context.Context, args ...string) (Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConn(ctx); err != nil {
		return Reply{}, err
	}

	if err := c.conn.SetDeadline(deadlineFromContext(ctx)); err != nil {
		_ = c.reset()
		return Reply{}, err
	}

	if err := writeCommand(c.writer, args); err != nil {
		_ = c.reset()
		return Reply{}, err
	}
	if err := c.writer.Flush(); err != nil {
		_ = c.reset()
		return Reply{}, fmt.Errorf("redis write: %w", err)
	}

	reply, err := readReply(c.reader)
	if err != nil {
		if shouldReset(err) {
			_ = c.reset()
		}
		return Reply{}, err
	}
	if reply.Type == '-' {
		return Reply{}, fmt.Errorf("redis error: %s", reply.Text)
	}

	_ = c.conn.SetDeadline(time.Time{})
	return reply, nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	reply, err := c.Do(ctx, "PING")
	if err != nil {
		return err
	}
	if reply.Text != "PONG" {
		return fmt.Errorf("unexpected PING reply: %q", reply.Text)
	}
	return nil
}

// Set stores value under key. A positive ttl is applied with EX, rounded up to whole seconds.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	args := []string{"SET", key, value}
	if ttl > 0 {
		seconds := int64(ttl / time.Second)
		if ttl%time.Second != 0 {
			seconds++
		}
		args = append(args, "EX", strconv.FormatInt(seconds, 10))
	}
	reply, err := c.Do(ctx, args...)
	if err != nil {
		return err
	}
	if reply.Type != '+' {
		return fmt.Errorf("unexpected SET reply: %#v", reply)
	}
	return nil
}

// Get returns ErrNil when the key does not exist.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	reply, err := c.Do(ctx, "GET", key)
	if err != nil {
		return "", err
	}
	if reply.IsNil {
		return "", ErrNil
	}
	if reply.Type != '$' {
		return "", fmt.Errorf("unexpected GET reply: %#v", reply)
	}
	return reply.Text, nil
}

// Scan walks the keyspace with SCAN and returns every key matching pattern.
// Keys added or removed during the walk may or may not be reported.
func (c *Client) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	cursor := "0"
	for {
		reply, err := c.Do(ctx, "SCAN", cursor, "MATCH", pattern, "COUNT", strconv.Itoa(scanCount))
		if err != nil {
			return nil, err
		}
		if reply.Type != '*' || len(reply.Array) != 2 || reply.Array[1].Type != '*' {
			return nil, fmt.Errorf("unexpected SCAN reply: %#v", reply)
		}
		for _, item := range reply.Array[1].Array {
			keys = append(keys, item.Text)
		}
		cursor = reply.Array[0].Text
		if cursor == "0" {
			return keys, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reset()
}

func (c *Client) ensureConn(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("redis dial: %w", err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.writer = bufio.NewWriter(conn)
	return nil
}

func (c *Client) reset() error {
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.reader = nil
		c.writer = nil
		return err
	}
	return nil
}

func deadlineFromContext(ctx context.Context) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(defaultTimeout)
}

func resolveAddr(addr string) (string, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		u, err := url.Parse(addr)
		if err != nil {
			return "", fmt.Errorf("invalid redis url: %w", err)
		}
		if u.Host == "" {
			return "", fmt.Errorf("redis url missing host")
		}
		return u.Host, nil
	}
	if addr == "" {
		return "", errors.New("redis address is required")
	}
	return addr, nil
}

func writeCommand(w *bufio.Writer, args []string) error {
	if _, err := fmt.Fprintf(w, "*%d\r\n", len(args)); err != nil {
		return fmt.Errorf("redis write: %w", err)
	}
	for _, arg := range args {
		if _, err := fmt.Fprintf(w, "$%d\r\n%s\r\n", len(arg), arg); err != nil {
			return fmt.Errorf("redis write: %w", err)
		}
	}
	return nil
}

func readReply(r *bufio.Reader) (Reply, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return Reply{}, io.EOF
		}
		return Reply{}, fmt.Errorf("redis read: %w", err)
	}

	switch prefix {
	case '+', '-', ':':
		line, err := readLine(r)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Type: prefix, Text: line}, nil
	case '$':
		line, err := readLine(r)
		if err != nil {
			return Reply{}, err
		}
		length, err := strconv.Atoi(line)
		if err != nil {
			return Reply{}, fmt.Errorf("redis bulk length: %w", err)
		}
		if length == -1 {
			return Reply{Type: '$', IsNil: true}, nil
		}
		buf := make([]byte, length+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Reply{}, fmt.Errorf("redis bulk read: %w", err)
		}
		return Reply{Type: '$', Text: string(buf[:length])}, nil
	case '*':
		line, err := readLine(r)
		if err != nil {
			return Reply{}, err
		}
		length, err := strconv.Atoi(line)
		if err != nil {
			return Reply{}, fmt.Errorf("redis array length: %w", err)
		}
		if length == -1 {
			return Reply{Type: '*', IsNil: true}, nil
		}
		values := make([]Reply, 0, length)
		for i := 0; i < length; i++ {
			value, err := readReply(r)
			if err != nil {
				return Reply{}, err
			}
			values = append(values, value)
		}
		return Reply{Type: '*', Array: values}, nil
	default:
		return Reply{}, fmt.Errorf("unexpected redis reply type: %q", prefix)
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("redis read line: %w", err)
	}
	return strings.TrimSuffix(line, "\r\n"), nil
}

func shouldReset(err error) bool {
	if err == nil {
		return false
	}
	if err == io.EOF {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
