package gateway

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/rs/zerolog/log"
)

// MLLP framing bytes
const (
	mllpStart = 0x0b
	mllpEnd   = 0x1c
	mllpCR    = 0x0d
)

// HL7Client sends HL7 v2 messages over MLLP/TCP or HTTP POST
type HL7Client struct {
	dialTimeout time.Duration
	readTimeout time.Duration
	httpClient  *http.Client
}

// NewHL7Client creates an HL7 client
func NewHL7Client(dialTimeout, readTimeout time.Duration) *HL7Client {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	return &HL7Client{
		dialTimeout: dialTimeout,
		readTimeout: readTimeout,
		httpClient:  &http.Client{Timeout: dialTimeout + readTimeout},
	}
}

// SendHL7 delivers message and returns the receiver's response. Unknown methods fall
// back to TCP.
func (c *HL7Client) SendHL7(ctx context.Context, message, address string, port int, method models.HL7Transport) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("hl7 message is empty")
	}
	if address == "" || port <= 0 || port > 65535 {
		return "", fmt.Errorf("invalid hl7 endpoint %s:%d", address, port)
	}

	start := time.Now()
	var (
		resp string
		err  error
	)
	switch models.HL7Transport(strings.ToUpper(string(method))) {
	case models.HL7TransportHTTP:
		resp, err = c.sendHTTP(ctx, message, address, port)
	default:
		method = models.HL7TransportTCP
		resp, err = c.sendMLLP(ctx, message, address, port)
	}

	if err != nil {
		log.Warn().Err(err).Str("address", address).Int("port", port).Str("method", string(method)).Msg("HL7 send failed")
		return "", err
	}
	log.Info().
		Str("address", address).
		Int("port", port).
		Str("method", string(method)).
		Dur("duration", time.Since(start)).
		Msg("HL7 message sent")
	return resp, nil
}

func (c *HL7Client) sendMLLP(ctx context.Context, message, address string, port int) (string, error) {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return "", fmt.Errorf("%w: failed to connect to hl7 receiver: %v", ErrTransport, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if _, err := conn.Write(FrameMLLP(message)); err != nil {
		return "", fmt.Errorf("%w: failed to write hl7 message: %v", ErrTransport, err)
	}

	resp, err := ReadMLLP(bufio.NewReader(conn))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read hl7 response: %v", ErrTransport, err)
	}
	return resp, nil
}

func (c *HL7Client) sendHTTP(ctx context.Context, message, address string, port int) (string, error) {
	url := fmt.Sprintf("http://%s/", net.JoinHostPort(address, strconv.Itoa(port)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return "", fmt.Errorf("failed to build hl7 request: %w", err)
	}
	req.Header.Set("Content-Type", "x-application/hl7-v2+er7")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: hl7 http request failed: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read hl7 http response: %v", ErrTransport, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("hl7 receiver returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

// FrameMLLP wraps an HL7 message in MLLP start and end blocks. Segment separators are
// normalized to carriage returns.
func FrameMLLP(message string) []byte {
	message = strings.ReplaceAll(message, "\r\n", "\r")
	message = strings.ReplaceAll(message, "\n", "\r")

	var buf bytes.Buffer
	buf.WriteByte(mllpStart)
	buf.WriteString(message)
	buf.WriteByte(mllpEnd)
	buf.WriteByte(mllpCR)
	return buf.Bytes()
}

// ReadMLLP reads one MLLP frame and returns its payload. The trailing CR is left unread.
func ReadMLLP(r *bufio.Reader) (string, error) {
	if _, err := r.ReadBytes(mllpStart); err != nil {
		return "", err
	}
	payload, err := r.ReadBytes(mllpEnd)
	if err != nil {
		return "", err
	}
	return string(payload[:len(payload)-1]), nil
}
