// Package clamav speaks the clamd INSTREAM protocol:
//
//	zINSTREAM\0 <len:uint32be><chunk> ... <0:uint32be>
//
// followed by one NUL or newline terminated reply such as
// "stream: OK", "stream: Eicar-Signature FOUND" or "... ERROR".
package clamav

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"stored-file-api/config"
	domain "stored-file-api/internal/domain/stored_file"
)

const (
	cmdInstream = "zINSTREAM\x00"
	cmdPing     = "zPING\x00"

	defaultChunkSize   = 64 << 10
	defaultMaxResponse = 1 << 10
	defaultTimeout     = 30 * time.Second

	// drainTimeout bounds the read for a verdict after clamd closed the
	// stream early (it does so when StreamMaxLength is exceeded).
	drainTimeout = 2 * time.Second
)

var ErrProtocol = errors.New("clamd protocol error")

type Client struct {
	network     string
	address     string
	dialTimeout time.Duration
	ioTimeout   time.Duration
	chunkSize   int
	maxResponse int
	log         *zap.Logger
}

func New(cfg config.Scan, logger *zap.Logger) *Client {
	c := &Client{
		network:     "tcp",
		address:     cfg.Address,
		dialTimeout: cfg.DialTimeout,
		ioTimeout:   cfg.IOTimeout,
		chunkSize:   cfg.ChunkSize,
		maxResponse: cfg.MaxResponseBytes,
		log:         logger,
	}
	if rest, ok := strings.CutPrefix(cfg.Address, "unix:"); ok {
		c.network, c.address = "unix", rest
	}
	if c.dialTimeout <= 0 {
		c.dialTimeout = defaultTimeout
	}
	if c.ioTimeout <= 0 {
		c.ioTimeout = defaultTimeout
	}
	if c.chunkSize <= 0 {
		c.chunkSize = defaultChunkSize
	}
	if c.maxResponse <= 0 {
		c.maxResponse = defaultMaxResponse
	}

	return c
}

// Scan streams r to clamd. Every transport or protocol failure is returned
// as a KindInfrastructure error, never as a verdict.
func (c *Client) Scan(ctx context.Context, r io.Reader) (domain.ScanResult, error) {
	const op = "scan"

	conn, err := c.dial(ctx)
	if err != nil {
		return domain.ScanResult{}, domain.NewError(domain.KindInfrastructure, op, err)
	}
	defer conn.Close()

	if err = c.stream(conn, r); err != nil {
		// clamd may answer and hang up before the stream ends.
		if line, rerr := c.readLine(conn, drainTimeout); rerr == nil {
			if res, perr := parse(line); perr == nil && res.Verdict != domain.VerdictClean {
				return res, nil
			}
		}
		return domain.ScanResult{}, domain.NewError(domain.KindInfrastructure, op, err)
	}

	line, err := c.readLine(conn, c.ioTimeout)
	if err != nil {
		return domain.ScanResult{}, domain.NewError(domain.KindInfrastructure, op, err)
	}
	res, err := parse(line)
	if err != nil {
		return domain.ScanResult{}, domain.NewError(domain.KindInfrastructure, op, err)
	}

	if c.log != nil {
		c.log.Debug("clamd reply", zap.String("reply", line), zap.Stringer("verdict", res.Verdict))
	}

	return res, nil
}

func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err = c.write(conn, []byte(cmdPing)); err != nil {
		return err
	}
	line, err := c.readLine(conn, c.ioTimeout)
	if err != nil {
		return err
	}
	if line != "PONG" {
		return fmt.Errorf("%w: unexpected ping reply %q", ErrProtocol, line)
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, c.network, c.address)
	if err != nil {
		return nil, fmt.Errorf("clamd dial %s: %w", c.address, err)
	}
	return conn, nil
}

func (c *Client) stream(conn net.Conn, r io.Reader) error {
	if err := c.write(conn, []byte(cmdInstream)); err != nil {
		return err
	}

	buf := make([]byte, 4+c.chunkSize)
	for {
		n, rerr := r.Read(buf[4:])
		if n > 0 {
			binary.BigEndian.PutUint32(buf[:4], uint32(n))
			if err := c.write(conn, buf[:4+n]); err != nil {
				return err
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read payload: %w", rerr)
		}
	}

	var end [4]byte
	return c.write(conn, end[:])
}

func (c *Client) write(conn net.Conn, b []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(c.ioTimeout)); err != nil {
		return err
	}
	if _, err := conn.Write(b); err != nil {
		return fmt.Errorf("clamd write: %w", err)
	}
	return nil
}

// readLine reads up to maxResponse bytes until NUL or '\n'.
func (c *Client) readLine(conn net.Conn, timeout time.Duration) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}

	br := bufio.NewReader(io.LimitReader(conn, int64(c.maxResponse)+1))
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			// clamd may close the connection right after an unterminated reply
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				break
			}
			return "", fmt.Errorf("clamd read: %w", err)
		}
		if b == 0 || b == '\n' {
			break
		}
		if sb.Len() == c.maxResponse {
			return "", fmt.Errorf("%w: reply exceeds %d bytes", ErrProtocol, c.maxResponse)
		}
		sb.WriteByte(b)
	}

	return strings.TrimSpace(sb.String()), nil
}

func parse(line string) (domain.ScanResult, error) {
	switch {
	case strings.HasSuffix(line, "OK"):
		return domain.ScanResult{Verdict: domain.VerdictClean}, nil
	case strings.HasSuffix(line, "FOUND"):
		return domain.ScanResult{Verdict: domain.VerdictInfected, Detail: detail(line, "FOUND")}, nil
	case strings.HasSuffix(line, "ERROR"):
		return domain.ScanResult{Verdict: domain.VerdictError, Detail: detail(line, "ERROR")}, nil
	default:
		return domain.ScanResult{}, fmt.Errorf("%w: unexpected reply %q", ErrProtocol, line)
	}
}

// detail returns the text after the final colon without the status suffix.
func detail(line, suffix string) string {
	s := strings.TrimSpace(strings.TrimSuffix(line, suffix))
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
