package admin

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hackstrix/titan/internal/corestate"
	"github.com/hackstrix/titan/internal/revocation"
)

type fakeRenderer struct {
	body        []byte
	contentType string
}

func (f *fakeRenderer) Render(source corestate.MetricsSource) ([]byte, string) {
	return f.body, f.contentType
}

func startTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Address = "127.0.0.1"
	s := New(cfg)
	require.NoError(t, s.Start())
	go s.Run()
	t.Cleanup(s.Stop)
	return s
}

func doRequest(t *testing.T, addr net.Addr, raw string) (status int, headers textproto.MIMEHeader, body string) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)

	var proto string
	var reason string
	_, err = fmt.Sscanf(statusLine, "%s %d %s", &proto, &status, &reason)
	require.NoError(t, err)

	tp := textproto.NewReader(reader)
	headers, err = tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		require.NoError(t, err)
	}

	rest, _ := io.ReadAll(reader)
	body = string(rest)
	return status, headers, body
}

func TestHealthEndpoint(t *testing.T) {
	s := startTestServer(t, Config{Global: corestate.New(), Logger: zerolog.Nop()})

	status, _, body := doRequest(t, s.Addr(), "GET /health HTTP/1.1\r\nHost: x\r\n\r\n")
	require.Equal(t, 200, status)
	require.Equal(t, `{"status":"healthy","version":"0.1.0"}`, body)
}

func TestUnderscoreHealthEndpoint(t *testing.T) {
	s := startTestServer(t, Config{Global: corestate.New(), Logger: zerolog.Nop()})

	status, _, body := doRequest(t, s.Addr(), "GET /_health HTTP/1.1\r\n\r\n")
	require.Equal(t, 200, status)
	require.Equal(t, `{"status":"healthy","version":"0.1.0"}`, body)
}

func TestRevokeSuccess(t *testing.T) {
	broadcaster := revocation.NewBroadcaster()
	q := broadcaster.Register()
	s := startTestServer(t, Config{Global: corestate.New(), Logger: zerolog.Nop(), Queue: broadcaster})

	req := "POST /_admin/jwt/revoke HTTP/1.1\r\nContent-Length: 30\r\n\r\n" + `{"jti":"abc","exp":2000000000}`
	status, _, body := doRequest(t, s.Addr(), req)
	require.Equal(t, 200, status)
	require.Equal(t, `{"status":"ok","message":"Token revoked successfully"}`, body)

	require.True(t, q.HasPending())
	entries := q.Drain()
	require.Len(t, entries, 1)
	require.Equal(t, "abc", entries[0].JTI)
	require.Equal(t, uint64(2000000000), entries[0].Exp)
}

func TestRevokeMissingExpReturns400(t *testing.T) {
	broadcaster := revocation.NewBroadcaster()
	broadcaster.Register()
	s := startTestServer(t, Config{Global: corestate.New(), Logger: zerolog.Nop(), Queue: broadcaster})

	req := "POST /_admin/jwt/revoke HTTP/1.1\r\nContent-Length: 13\r\n\r\n" + `{"jti":"abc"}`
	status, _, body := doRequest(t, s.Addr(), req)
	require.Equal(t, 400, status)
	require.Contains(t, body, "exp")
}

func TestRevokeWithoutQueueReturns503(t *testing.T) {
	s := startTestServer(t, Config{Global: corestate.New(), Logger: zerolog.Nop()})

	req := "POST /_admin/jwt/revoke HTTP/1.1\r\n\r\n" + `{"jti":"abc","exp":1}`
	status, _, body := doRequest(t, s.Addr(), req)
	require.Equal(t, 503, status)
	require.Contains(t, body, "service_unavailable")
}

func TestRevokeInvalidJSONReturns400(t *testing.T) {
	broadcaster := revocation.NewBroadcaster()
	broadcaster.Register()
	s := startTestServer(t, Config{Global: corestate.New(), Logger: zerolog.Nop(), Queue: broadcaster})

	req := "POST /_admin/jwt/revoke HTTP/1.1\r\n\r\n" + `not json`
	status, _, _ := doRequest(t, s.Addr(), req)
	require.Equal(t, 400, status)
}

func TestUnknownRouteReturns404(t *testing.T) {
	s := startTestServer(t, Config{Global: corestate.New(), Logger: zerolog.Nop()})

	status, _, body := doRequest(t, s.Addr(), "GET /nope HTTP/1.1\r\n\r\n")
	require.Equal(t, 404, status)
	require.Equal(t, "Not Found", body)
}

func TestMetricsEndpointRendersPublishedSource(t *testing.T) {
	global := corestate.New()
	renderer := &fakeRenderer{body: []byte("titan_up 1\n"), contentType: "text/plain; version=0.0.4"}
	s := startTestServer(t, Config{Global: global, Logger: zerolog.Nop(), Metrics: renderer})

	status, headers, body := doRequest(t, s.Addr(), "GET /metrics HTTP/1.1\r\n\r\n")
	require.Equal(t, 200, status)
	require.Equal(t, "text/plain; version=0.0.4", headers.Get("Content-Type"))
	require.Equal(t, "titan_up 1\n", body)
}

func TestMetricsAliasPathServesSameEndpoint(t *testing.T) {
	global := corestate.New()
	renderer := &fakeRenderer{body: []byte("titan_up 1\n"), contentType: "text/plain; version=0.0.4"}
	s := startTestServer(t, Config{Global: global, Logger: zerolog.Nop(), Metrics: renderer, MetricsPath: "/internal/metrics"})

	status, _, _ := doRequest(t, s.Addr(), "GET /internal/metrics HTTP/1.1\r\n\r\n")
	require.Equal(t, 200, status)
}

func TestResponseHeadersMatchContract(t *testing.T) {
	s := startTestServer(t, Config{Global: corestate.New(), Logger: zerolog.Nop()})

	_, headers, _ := doRequest(t, s.Addr(), "GET /health HTTP/1.1\r\n\r\n")
	require.Equal(t, "Titan-Admin/0.1.0", headers.Get("Server"))
	require.Equal(t, "close", headers.Get("Connection"))
	require.Equal(t, strconv.Itoa(len(`{"status":"healthy","version":"0.1.0"}`)), headers.Get("Content-Length"))
}
