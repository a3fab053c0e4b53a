// Package ingress accepts append-only event streams from session processes
// over a local stream socket: a unix-domain socket on POSIX, a named pipe on
// Windows. Each connection carries newline-delimited JSON records; records
// are decoded and handed to the sink in arrival order.
package ingress

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/jacques-sh/jacques/internal/session"
)

// Sink receives every well-formed event, in per-connection arrival order.
// The registry's Ingest (plus telemetry fan-out) is wired here at startup.
type Sink func(ev session.Event)

// Server owns the ingress listener and its connections.
type Server struct {
	endpoint  string
	maxRecord int
	sink      Sink

	ln     net.Listener
	wg     sync.WaitGroup
	closed chan struct{}
}

// NewServer builds the server. endpoint is a socket path on POSIX or a pipe
// name on Windows; maxRecord caps one record's size in bytes.
func NewServer(endpoint string, maxRecord int, sink Sink) *Server {
	return &Server{
		endpoint:  endpoint,
		maxRecord: maxRecord,
		sink:      sink,
		closed:    make(chan struct{}),
	}
}

// Start binds the endpoint and begins accepting. Binding fails when another
// live daemon owns the endpoint; a stale leftover socket is replaced.
func (s *Server) Start() error {
	ln, err := listen(s.endpoint)
	if err != nil {
		return fmt.Errorf("ingress listen: %w", err)
	}
	s.ln = ln

	s.wg.Add(1)
	go s.acceptLoop()

	slog.Info("[ingress] listening", "endpoint", s.endpoint)
	return nil
}

// Shutdown stops accepting and waits for connection handlers to finish
// their current record. Connected peers see EOF.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.closed)
	if s.ln != nil {
		s.ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			slog.Warn("[ingress] accept error", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.serveConn(conn)
		}()
	}
}

// serveConn reads one connection's records until the peer closes. Malformed
// and oversize records are logged and skipped; the connection stays open.
func (s *Server) serveConn(conn net.Conn) {
	reader := bufio.NewReaderSize(conn, s.maxRecord+1)
	for {
		line, err := readLine(reader, s.maxRecord)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, errRecordTooLarge) {
				slog.Warn("[ingress] record exceeds size limit, skipped", "limit", s.maxRecord)
				continue
			}
			slog.Warn("[ingress] read error", "error", err)
			return
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		s.dispatch(line)
	}
}

var errRecordTooLarge = errors.New("record too large")

// readLine returns the next newline-terminated record. When a record exceeds
// max it is drained to its newline and errRecordTooLarge is returned, so the
// connection survives one oversized write.
func readLine(r *bufio.Reader, max int) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if err == nil {
		if len(line) > max {
			return nil, errRecordTooLarge
		}
		return line, nil
	}
	if errors.Is(err, bufio.ErrBufferFull) {
		// Drain the remainder of the oversized record.
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = r.ReadSlice('\n')
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, errRecordTooLarge
	}
	if errors.Is(err, io.EOF) && len(bytes.TrimSpace(line)) > 0 {
		// Final record without a trailing newline still counts.
		return line, nil
	}
	return nil, err
}

// dispatch decodes one record and hands it to the sink synchronously, so
// per-connection FIFO order is the sink's apply order.
func (s *Server) dispatch(line []byte) {
	var ev session.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		slog.Warn("[ingress] malformed record, skipped", "error", err)
		return
	}
	if ev.Kind == "" {
		slog.Warn("[ingress] record without event field, skipped")
		return
	}
	if ev.Telemetry() {
		ev.Raw = append(json.RawMessage(nil), line...)
	}
	s.sink(ev)
}
