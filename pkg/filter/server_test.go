package filter

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create temporary Unix socket path
func getTempSocketPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("test-socket-%d.sock", time.Now().UnixNano()))
}

func newTestServer(t *testing.T, extract bool, keys ...string) (*Server, string) {
	t.Helper()
	server := NewServer(newTestFilter(extract, keys...))
	server.logger = zerolog.Nop()

	socketPath := getTempSocketPath()
	t.Cleanup(func() { os.Remove(socketPath) })

	require.NoError(t, server.AddUnixSocketListener(context.Background(), socketPath))
	return server, socketPath
}

func TestNewServer(t *testing.T) {
	server := NewServer(newTestFilter(false, "method"))

	assert.NotNil(t, server)
	assert.NotNil(t, server.filter)
	assert.Empty(t, server.listeners)
	assert.False(t, server.listening)
}

func TestAddUnixSocketListener(t *testing.T) {
	server, _ := newTestServer(t, false, "method")
	assert.Len(t, server.listeners, 1)
	server.Shutdown()
}

func TestListen(t *testing.T) {
	server, _ := newTestServer(t, false, "method")

	err := server.Listen()
	assert.NoError(t, err)
	assert.True(t, server.listening)

	server.Shutdown()
	assert.False(t, server.listening)
}

func TestListenWithoutListeners(t *testing.T) {
	server := NewServer(newTestFilter(false, "method"))
	assert.Error(t, server.Listen())
}

// Integration test that streams JSON-RPC traffic through the socket and reads
// back the matching messages.
func TestIntegrationFilterServer(t *testing.T) {
	server, socketPath := newTestServer(t, true, "method")
	require.NoError(t, server.Listen())
	defer server.Shutdown()

	client, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer client.Close()

	input := `{"jsonrpc": "2.0", "method": "eth_blockNumber", "id": 1}` + "\n" +
		`{"jsonrpc": "2.0", "result": "0x10", "id": 1}` + "\n" +
		`{"jsonrpc": "2.0", "method-name": "eth_getLogs", "method": "eth_call", "id": 2}` + "\n"

	_, err = client.Write([]byte(input))
	require.NoError(t, err)
	require.NoError(t, client.(*net.UnixConn).CloseWrite())

	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	response, err := io.ReadAll(client)
	require.NoError(t, err)

	assert.Equal(t, "\"eth_blockNumber\"\n\"eth_call\"\n", string(response))
	assert.Equal(t, Stats{Objects: 3, Matched: 2}, server.filter.Totals())
}

func TestShutdownClosesConnections(t *testing.T) {
	server, socketPath := newTestServer(t, false, "method")
	require.NoError(t, server.Listen())

	client, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer client.Close()

	// Leave a value open so the connection stays busy.
	_, err = client.Write([]byte(`{"method": "eth_`))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&server.activeConnectionsCount) == 1
	}, 5*time.Second, 10*time.Millisecond)

	server.DumpDebugInfo()

	done := make(chan struct{})
	go func() {
		server.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return")
	}
	assert.Equal(t, int64(0), atomic.LoadInt64(&server.activeConnectionsCount))
}

func TestShutdownWhileAccepting(t *testing.T) {
	server, socketPath := newTestServer(t, false, "method")
	require.NoError(t, server.Listen())

	// Keep clients connecting while the server shuts down
	stop := make(chan struct{})
	var clients sync.WaitGroup
	for i := 0; i < 8; i++ {
		clients.Add(1)
		go func() {
			defer clients.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				conn, err := net.Dial("unix", socketPath)
				if err != nil {
					continue
				}
				conn.Write([]byte(`{"method": "eth_`))
				conn.Close()
			}
		}()
	}

	assert.Eventually(t, func() bool {
		return server.nextID.Load() > 0
	}, 5*time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		server.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return")
	}
	close(stop)
	clients.Wait()

	assert.Equal(t, int64(0), atomic.LoadInt64(&server.activeConnectionsCount))
}
