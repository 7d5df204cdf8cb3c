// Package admin implements Titan's control-plane listener: a tiny HTTP/1.1
// server on the loopback interface, single accepting goroutine, blocking I/O
// per connection (spec.md §4.5). Grounded line-for-line on
// original_source/src/core/admin_server.{hpp,cpp}.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackstrix/titan/internal/corestate"
	"github.com/hackstrix/titan/internal/logging"
	"github.com/hackstrix/titan/internal/revocation"
)

const serverHeader = "Titan-Admin/0.1.0"

// maxRequestBytes bounds the trusted-client request buffer (spec.md §4.5:
// "Requests larger than 4 KiB may be truncated; clients of admin are
// trusted.").
const maxRequestBytes = 4096

// MetricsRenderer is the external metrics-text-exposition collaborator
// (spec.md §6); it renders the published metrics source into a body and
// content type.
type MetricsRenderer interface {
	Render(source corestate.MetricsSource) (body []byte, contentType string)
}

// Config configures a Server.
type Config struct {
	Address     string // loopback only; spec.md §9 Open Question 2
	Port        uint16
	MetricsPath string // additional path alias for /metrics
	Global      *corestate.State
	Queue       *revocation.Broadcaster
	Metrics     MetricsRenderer
	Logger      zerolog.Logger
}

// Server is the admin HTTP listener.
type Server struct {
	cfg      Config
	listener net.Listener
	running  atomic.Bool
}

// New constructs a Server without binding it. Call Start to bind and Run to
// serve.
func New(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// Start binds Config.Address:Config.Port (the orchestrator passes
// 127.0.0.1) and begins listening. Go's listener sets SO_REUSEADDR; the
// listen backlog is the Go runtime's default.
func (s *Server) Start() error {
	lc := net.ListenConfig{}
	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)
	ln, err := lc.Listen(context.Background(), "tcp4", addr)
	if err != nil {
		return fmt.Errorf("admin: listen %s: %w", addr, err)
	}
	s.listener = ln
	s.running.Store(true)
	return nil
}

// Stop closes the listening socket, which wakes Run's Accept with an error
// it treats as termination.
func (s *Server) Stop() {
	s.running.Store(false)
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// Addr returns the bound address. Valid only after a successful Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run loops accepting connections and handling each one to completion
// before accepting the next (AdminServer::run — one accepting goroutine,
// blocking I/O, "not performance-critical").
func (s *Server) Run() {
	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			continue
		}
		s.handleConnection(conn)
		_ = conn.Close()
	}
}

type simpleRequest struct {
	method string
	path   string
	valid  bool
}

func (s *Server) handleConnection(conn net.Conn) {
	start := time.Now()
	correlationID := logging.GenerateCorrelationID()
	clientIP := clientIPOf(conn)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil || n <= 0 {
		return
	}
	raw := buf[:n]

	req := parseRequest(raw)
	if !req.valid {
		sendResponse(conn, 400, "text/plain", []byte("Bad Request"))
		s.logRequest(correlationID, clientIP, "", "", 400, time.Since(start))
		return
	}

	status := s.route(conn, req, raw)
	s.logRequest(correlationID, clientIP, req.method, req.path, status, time.Since(start))
}

// logRequest mirrors original_source/src/gateway/logging.hpp's LOG_REQUEST
// macro: one structured line per request carrying method, path, status,
// duration, client IP, and correlation ID.
func (s *Server) logRequest(correlationID, clientIP, method, path string, status int, dur time.Duration) {
	logging.WithCorrelationID(correlationID).Info().
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("duration", dur).
		Str("client_ip", clientIP).
		Msg("admin request")
}

func clientIPOf(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func (s *Server) route(conn net.Conn, req simpleRequest, raw []byte) int {
	if req.method == "GET" {
		if req.path == "/health" || req.path == "/_health" {
			sendResponse(conn, 200, "application/json", []byte(`{"status":"healthy","version":"0.1.0"}`))
			return 200
		}
		if req.path == "/metrics" || (s.cfg.MetricsPath != "" && req.path == s.cfg.MetricsPath) {
			return s.handleMetrics(conn)
		}
	}

	if req.method == "POST" && req.path == "/_admin/jwt/revoke" {
		return s.handleRevoke(conn, raw)
	}

	sendResponse(conn, 404, "text/plain", []byte("Not Found"))
	return 404
}

func (s *Server) handleMetrics(conn net.Conn) int {
	if s.cfg.Metrics == nil {
		sendResponse(conn, 404, "text/plain", []byte("Not Found"))
		return 404
	}
	source := s.cfg.Global.MetricsSource()
	body, contentType := s.cfg.Metrics.Render(source)
	sendResponse(conn, 200, contentType, body)
	return 200
}

type revokeRequest struct {
	JTI json.RawMessage `json:"jti"`
	Exp json.RawMessage `json:"exp"`
}

func (s *Server) handleRevoke(conn net.Conn, raw []byte) int {
	if s.cfg.Queue == nil {
		sendResponse(conn, 503, "application/json",
			[]byte(`{"error":"service_unavailable","message":"Revocation not enabled"}`))
		return 503
	}

	idx := bytes.Index(raw, []byte("\r\n\r\n"))
	if idx < 0 {
		sendResponse(conn, 400, "application/json",
			[]byte(`{"error":"bad_request","message":"Missing request body"}`))
		return 400
	}
	body := raw[idx+4:]

	var decoded revokeRequest
	if err := json.Unmarshal(body, &decoded); err != nil {
		sendResponse(conn, 400, "application/json",
			jsonError("bad_request", "Invalid JSON: "+err.Error()))
		return 400
	}

	var jti string
	if err := json.Unmarshal(decoded.JTI, &jti); err != nil || jti == "" {
		sendResponse(conn, 400, "application/json",
			jsonError("bad_request", "Missing or invalid 'jti' field"))
		return 400
	}

	exp, ok := parseUnsignedExp(decoded.Exp)
	if !ok {
		sendResponse(conn, 400, "application/json",
			jsonError("bad_request", "Missing or invalid 'exp' field (must be Unix timestamp)"))
		return 400
	}

	if err := s.cfg.Queue.Push(revocation.Entry{JTI: jti, Exp: exp}); err != nil {
		sendResponse(conn, 400, "application/json", jsonError("bad_request", err.Error()))
		return 400
	}

	sendResponse(conn, 200, "application/json",
		[]byte(`{"status":"ok","message":"Token revoked successfully"}`))
	return 200
}

func parseUnsignedExp(raw json.RawMessage) (uint64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var exp uint64
	if err := json.Unmarshal(raw, &exp); err != nil {
		return 0, false
	}
	return exp, true
}

func jsonError(kind, message string) []byte {
	b, _ := json.Marshal(map[string]string{"error": kind, "message": message})
	return b
}

// parseRequest splits the request line into method and path by the first two
// spaces, matching AdminServer::parse_request exactly: headers are never
// parsed.
func parseRequest(data []byte) simpleRequest {
	lineEnd := bytes.IndexByte(data, '\n')
	if lineEnd < 0 {
		return simpleRequest{}
	}
	line := data[:lineEnd]

	space1 := bytes.IndexByte(line, ' ')
	if space1 < 0 {
		return simpleRequest{}
	}
	rest := line[space1+1:]
	space2 := bytes.IndexByte(rest, ' ')
	if space2 < 0 {
		return simpleRequest{}
	}

	return simpleRequest{
		method: string(line[:space1]),
		path:   string(rest[:space2]),
		valid:  true,
	}
}

func sendResponse(conn net.Conn, statusCode int, contentType string, body []byte) {
	var b strings.Builder
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(statusCode))
	b.WriteByte(' ')
	b.WriteString(reasonPhrase(statusCode))
	b.WriteString("\r\n")
	b.WriteString("Content-Type: ")
	b.WriteString(contentType)
	b.WriteString("\r\n")
	b.WriteString("Content-Length: ")
	b.WriteString(strconv.Itoa(len(body)))
	b.WriteString("\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString("Server: ")
	b.WriteString(serverHeader)
	b.WriteString("\r\n\r\n")
	b.Write(body)

	_, _ = conn.Write([]byte(b.String()))
}

func reasonPhrase(statusCode int) string {
	switch statusCode {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}
