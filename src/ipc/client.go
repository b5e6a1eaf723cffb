package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ErrNoResident means no endpoint answered PING anywhere in the range.
var ErrNoResident = errors.New("ipc: no resident endpoint found")

// Client talks to one bound endpoint on the loopback interface.
type Client struct {
	port    int
	timeout time.Duration
}

// NewClient returns a client for a known port.
func NewClient(port int) *Client {
	return &Client{port: port, timeout: 5 * time.Second}
}

// Detect scans the range for an endpoint answering PING. The recording
// process binds an arbitrary free port, so its parent locates it this way.
func Detect(r PortRange, perPort time.Duration) (*Client, error) {
	for port := r.Start; port <= r.End; port++ {
		if ping(addrFor(port), perPort) {
			return NewClient(port), nil
		}
	}
	return nil, ErrNoResident
}

// DetectResident retries the scan until an endpoint appears or the overall
// deadline passes. Used right after spawning the recording process, which
// needs a moment to bind.
func DetectResident(r PortRange, overall time.Duration) (*Client, error) {
	deadline := time.Now().Add(overall)
	for {
		c, err := Detect(r, 200*time.Millisecond)
		if err == nil {
			return c, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrNoResident
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func addrFor(port int) string {
	return net.JoinHostPort(loopbackHost, strconv.Itoa(port))
}

func ping(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(pingRequest); err != nil {
		return false
	}
	if err := w.Flush(); err != nil {
		return false
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && resp == pongResponse
}

// Port reports which port the client was detected or created on.
func (c *Client) Port() int {
	return c.port
}

// Focus asks the resident UI to surface itself. A second launch calls
// this and exits.
func (c *Client) Focus() error {
	_, _, err := c.roundTrip("FOCUS\n", c.timeout)
	return err
}

// Capture asks the resident UI to run a still capture ("copy" or "save").
func (c *Client) Capture(mode string) error {
	_, _, err := c.roundTrip("CAPTURE "+mode+"\n", c.timeout)
	return err
}

// StartRecording sends the region and settings to the recording process.
func (c *Client) StartRecording(req StartRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, _, err = c.roundTrip("START "+string(payload)+"\n", c.timeout)
	return err
}

// StopRecording asks for the finished container buffer. An idle recorder
// answers FINISHED 0, so a duplicate stop is harmless.
func (c *Client) StopRecording(finalizeTimeout time.Duration) ([]byte, error) {
	status, br, err := c.roundTrip("STOP\n", finalizeTimeout)
	if err != nil {
		return nil, err
	}
	// Only FINISHED carries a payload; any other status leaves br nil.
	if br == nil {
		return nil, fmt.Errorf("ipc: unexpected STOP response %q", status)
	}
	defer br.close()
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(status, "FINISHED ")))
	if err != nil {
		return nil, fmt.Errorf("ipc: bad FINISHED header %q", status)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br.r, buf); err != nil {
		return nil, fmt.Errorf("ipc: short finished payload: %w", err)
	}
	return buf, nil
}

type bodyReader struct {
	r    *bufio.Reader
	conn net.Conn
}

func (b *bodyReader) close() {
	if b.conn != nil {
		_ = b.conn.Close()
	}
}

// roundTrip sends one request line and reads the status line. ERROR
// responses become Go errors. The connection stays open only when the
// caller receives the bodyReader for a payload.
func (c *Client) roundTrip(request string, timeout time.Duration) (string, *bodyReader, error) {
	conn, err := net.DialTimeout("tcp", addrFor(c.port), c.timeout)
	if err != nil {
		return "", nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(request); err != nil {
		conn.Close()
		return "", nil, err
	}
	if err := w.Flush(); err != nil {
		conn.Close()
		return "", nil, err
	}
	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		conn.Close()
		return "", nil, err
	}
	status = strings.TrimRight(status, "\r\n")
	if strings.HasPrefix(status, "ERROR ") {
		conn.Close()
		return "", nil, errors.New(strings.TrimPrefix(status, "ERROR "))
	}
	if strings.HasPrefix(status, "FINISHED ") {
		return status, &bodyReader{r: br, conn: conn}, nil
	}
	conn.Close()
	return status, nil, nil
}
