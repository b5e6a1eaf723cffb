package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strings"
	"time"
)

const (
	loopbackHost = "127.0.0.1"
	pingRequest  = "PING\n"
	pongResponse = "PONG\n"

	handshakeTimeout = 3 * time.Second
)

// Server owns one loopback TCP endpoint and answers the wire protocol by
// dispatching parsed requests to its Handler.
type Server struct {
	lis     net.Listener
	port    int
	handler Handler
}

// Listen binds the first available port in the range. Ports held by other
// processes are skipped; an exhausted range is an error.
func Listen(r PortRange, h Handler) (*Server, error) {
	for port := r.Start; port <= r.End; port++ {
		addr := fmt.Sprintf("%s:%d", loopbackHost, port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			continue
		}
		log.Printf("ipc: listening on %s", addr)
		return &Server{lis: lis, port: port, handler: h}, nil
	}
	return nil, fmt.Errorf("ipc: no free port in %d-%d", r.Start, r.End)
}

// Port returns the bound TCP port.
func (s *Server) Port() int { return s.port }

// Serve accepts connections until the context is cancelled or the
// listener is closed. One request per connection, handled in order.
func (s *Server) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = s.lis.Close()
	}()
	for {
		c, err := s.lis.Accept()
		if err != nil {
			return
		}
		s.handle(c)
	}
}

// Close stops accepting connections.
func (s *Server) Close() error {
	if s.lis == nil {
		return nil
	}
	return s.lis.Close()
}

func (s *Server) handle(c net.Conn) {
	defer c.Close()
	remote := c.RemoteAddr().String()
	_ = c.SetDeadline(time.Now().Add(handshakeTimeout))
	br := bufio.NewReader(c)
	line, err := br.ReadString('\n')
	if err != nil {
		return
	}
	// A request may block on real work (a recording finalize), so the
	// handshake deadline must not apply past the first line.
	_ = c.SetDeadline(time.Time{})
	bw := bufio.NewWriter(c)

	verb, rest := splitVerb(strings.TrimRight(line, "\r\n"))
	switch verb {
	case "PING":
		_, _ = bw.WriteString(pongResponse)
	case "FOCUS":
		if s.handler.OnFocus == nil {
			writeError(bw, "focus not supported")
			break
		}
		log.Printf("ipc: FOCUS from %s", remote)
		s.handler.OnFocus()
		_, _ = bw.WriteString("ACK\n")
	case "CAPTURE":
		if s.handler.OnCapture == nil {
			writeError(bw, "capture not supported")
			break
		}
		log.Printf("ipc: CAPTURE %s from %s", rest, remote)
		if err := s.handler.OnCapture(rest); err != nil {
			writeError(bw, err.Error())
			break
		}
		_, _ = bw.WriteString("ACK\n")
	case "START":
		if s.handler.OnStart == nil {
			writeError(bw, "start not supported")
			break
		}
		var req StartRequest
		if err := json.Unmarshal([]byte(rest), &req); err != nil {
			writeError(bw, "bad start request: "+err.Error())
			break
		}
		log.Printf("ipc: START from %s", remote)
		if err := s.handler.OnStart(req); err != nil {
			writeError(bw, err.Error())
			break
		}
		_, _ = bw.WriteString("ACK\n")
	case "STOP":
		if s.handler.OnStop == nil {
			writeError(bw, "stop not supported")
			break
		}
		log.Printf("ipc: STOP from %s", remote)
		buf, err := s.handler.OnStop()
		if err != nil {
			writeError(bw, err.Error())
			break
		}
		fmt.Fprintf(bw, "FINISHED %d\n", len(buf))
		_, _ = bw.Write(buf)
	default:
		writeError(bw, "unknown request "+verb)
	}
	_ = bw.Flush()
}

func splitVerb(line string) (verb, rest string) {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i], line[i+1:]
	}
	return line, ""
}

func writeError(bw *bufio.Writer, msg string) {
	// Error payloads stay on one line so the reader never has to guess
	// at framing.
	msg = strings.ReplaceAll(msg, "\n", " ")
	_, _ = bw.WriteString("ERROR " + msg + "\n")
}
