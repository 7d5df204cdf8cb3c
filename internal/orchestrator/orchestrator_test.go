//go:build linux || darwin

package orchestrator

import (
	"bufio"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hackstrix/titan/internal/config"
	"github.com/hackstrix/titan/internal/pipeline"
	"github.com/hackstrix/titan/internal/revocation"
)

func echoFactory(_ int, listenFD int, list *revocation.List, queue *revocation.Queue) pipeline.Pipeline {
	return pipeline.NewEchoPipeline(listenFD, list, queue)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.WorkerThreads = 1
	cfg.Server.ListenAddress = "127.0.0.1"
	cfg.Server.ListenPort = 0
	cfg.Server.ReusePort = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 0
	cfg.Shutdown.GracefulTimeoutMS = 1000
	return cfg
}

func doRequest(t *testing.T, addr string, raw string) (status int, body string) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)

	var proto string
	var reason string
	_, err = fmt.Sscanf(statusLine, "%s %d %s", &proto, &status, &reason)
	require.NoError(t, err)

	tp := textproto.NewReader(reader)
	_, err = tp.ReadMIMEHeader()
	require.NoError(t, err)

	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return status, sb.String()
}

func TestRunMultiWorkerServesAdminHealthEndpoint(t *testing.T) {
	cfg := testConfig(t)
	o := New(cfg, echoFactory)

	done := make(chan error, 1)
	go func() { done <- o.RunMultiWorker() }()

	var adminAddr string
	require.Eventually(t, func() bool {
		addr := o.AdminAddr()
		if addr == "" {
			return false
		}
		adminAddr = addr
		return true
	}, 2*time.Second, 10*time.Millisecond)

	status, body := doRequest(t, adminAddr, "GET /health HTTP/1.1\r\nHost: x\r\n\r\n")
	require.Equal(t, 200, status)
	require.Contains(t, body, "healthy")

	o.Global().RequestShutdown()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunMultiWorker did not return after shutdown")
	}
}

func TestRunMultiWorkerWithoutAdminHonorsShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	o := New(cfg, echoFactory)

	done := make(chan error, 1)
	go func() { done <- o.RunMultiWorker() }()

	time.Sleep(100 * time.Millisecond)

	o.Global().RequestShutdown()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunMultiWorker did not return after shutdown")
	}
}

func TestRunSingleHonorsShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	o := New(cfg, echoFactory)

	done := make(chan error, 1)
	go func() { done <- o.RunSingle() }()

	time.Sleep(50 * time.Millisecond)
	o.Global().RequestShutdown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunSingle did not return after shutdown")
	}
}
