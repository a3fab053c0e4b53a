package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// Server exposes the hub at ws://<host>:<port>/ws. The daemon binds loopback
// only; the origin check additionally rejects browser pages served from
// anywhere but this machine.
type Server struct {
	hub  *Hub
	addr string

	httpSrv *http.Server
	ln      net.Listener
}

func NewServer(hub *Hub, host string, port int) *Server {
	return &Server{
		hub:  hub,
		addr: fmt.Sprintf("%s:%d", host, port),
	}
}

// Start binds the listener and begins serving. The bind happens
// synchronously so startup can abort on a port conflict; serving continues
// in the background until Shutdown.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			slog.Error("[hub] bind failed (port in use?)", "addr", s.addr, "error", err)
		}
		return fmt.Errorf("bind %s: %w", s.addr, err)
	}
	s.ln = ln
	s.httpSrv = &http.Server{Handler: mux}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[hub] serve error", "error", err)
		}
	}()

	slog.Info("[hub] listening", "addr", s.addr)
	return nil
}

// Shutdown stops the listener and disconnects every client.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	err := s.httpSrv.Shutdown(ctx)
	s.hub.Close()
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: checkLocalOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[hub] upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.hub.AddClient(conn)
}

// checkLocalOrigin accepts non-browser clients (no Origin header) and pages
// served from this machine.
func checkLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	return strings.EqualFold(parsed.Host, r.Host)
}
