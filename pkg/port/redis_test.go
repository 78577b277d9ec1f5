package port

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nobletooth/evicache/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWriter records every redisWriter call as a readable line.
type recordingWriter struct {
	calls []string
}

var _ redisWriter = (*recordingWriter)(nil)

func (w *recordingWriter) WriteError(msg string)       { w.calls = append(w.calls, "error:"+msg) }
func (w *recordingWriter) WriteString(str string)      { w.calls = append(w.calls, "string:"+str) }
func (w *recordingWriter) WriteBulkString(bulk string) { w.calls = append(w.calls, "bulk:"+bulk) }
func (w *recordingWriter) WriteInt(num int)            { w.calls = append(w.calls, fmt.Sprintf("int:%d", num)) }
func (w *recordingWriter) WriteArray(count int)        { w.calls = append(w.calls, fmt.Sprintf("array:%d", count)) }
func (w *recordingWriter) WriteNull()                  { w.calls = append(w.calls, "null") }

func newTestHandler(t *testing.T) *redisHandler {
	t.Helper()
	backend, _ := newTestBackend(t)
	handler, err := newRedisHandler(backend)
	require.NoError(t, err)
	return handler
}

// run handles the given command line and returns what was written to the client.
func run(handler *redisHandler, line string) []string {
	fields := strings.Fields(line)
	writer := &recordingWriter{}
	handler.handle(redisCommand{command: fields[0], args: fields[1:]}).write(writer)
	return writer.calls
}

func TestNewRedisHandler_NilBackend(t *testing.T) {
	_, err := newRedisHandler(nil)
	assert.Error(t, err)
}

func TestRedisHandler(t *testing.T) {
	config.SetTestFlag(t, "cache_policy", "lru")
	config.SetTestFlag(t, "cache_capacity", "2")
	handler := newTestHandler(t)

	for _, step := range []struct {
		line string
		want []string
	}{
		{line: "PING", want: []string{"string:PONG"}},
		{line: "ping hello", want: []string{"bulk:hello"}},
		{line: "SET k1 v1", want: []string{"string:OK"}},
		{line: "set k2 v2", want: []string{"string:OK"}},
		{line: "GET k1", want: []string{"bulk:v1"}},
		{line: "SET k3 v3", want: []string{"string:OK"}}, // Evicts k2, the least recently used.
		{line: "GET k2", want: []string{"null"}},
		{line: "EXISTS k1 k2 k3", want: []string{"int:2"}},
		{line: "KEYS *", want: []string{"array:2", "bulk:k1", "bulk:k3"}},
		{line: "KEYS k3", want: []string{"array:1", "bulk:k3"}},
		{line: "DBSIZE", want: []string{"int:2"}},
		{line: "DEL k1 k2", want: []string{"int:1"}},
		{line: "FLUSHALL", want: []string{"string:OK"}},
		{line: "DBSIZE", want: []string{"int:0"}},
		{line: "KEYS *", want: []string{"array:0"}},
		{line: "SET k1", want: []string{"error:ERR wrong number of arguments for 'set' command"}},
		{line: "GET", want: []string{"error:ERR wrong number of arguments for 'get' command"}},
		{line: "DEL", want: []string{"error:ERR wrong number of arguments for 'del' command"}},
		{line: "NOPE", want: []string{"error:ERR unknown command 'NOPE'"}},
		{line: "PAGE 1 10", want: []string{"error:ERR " + errNoDataset.Error()}},
		{line: "PAGE one 10", want: []string{"error:ERR value is not an integer or out of range"}},
	} {
		t.Run(step.line, func(t *testing.T) {
			assert.Equal(t, step.want, run(handler, step.line))
		})
	}
}

func TestRedisHandler_KeysWithSlashes(t *testing.T) {
	config.SetTestFlag(t, "cache_capacity", "10")
	handler := newTestHandler(t)
	run(handler, "SET user/1 a")
	run(handler, "SET user:2 b")

	assert.Equal(t, []string{"array:2", "bulk:user/1", "bulk:user:2"}, run(handler, "KEYS *"))
	assert.Equal(t, []string{"array:1", "bulk:user/1"}, run(handler, "KEYS user/*"))
	assert.Equal(t, []string{"array:1", "bulk:user/1"}, run(handler, "KEYS user/1"))
	assert.Equal(t, []string{"array:1", "bulk:user:2"}, run(handler, "KEYS user:[0-9]"))
}

func TestRedisHandler_Quit(t *testing.T) {
	handler := newTestHandler(t)
	output := handler.handle(redisCommand{command: "QUIT"})
	assert.True(t, output.closeConnection)
	assert.Equal(t, RedisOk, output.writeString)
}

func TestRedisHandler_Info(t *testing.T) {
	config.SetTestFlag(t, "cache_policy", "mru")
	config.SetTestFlag(t, "cache_capacity", "1")
	handler := newTestHandler(t)
	run(handler, "SET a 1")
	run(handler, "SET b 2")

	calls := run(handler, "INFO")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "policy:mru\r\n")
	assert.Contains(t, calls[0], "capacity:1\r\n")
	assert.Contains(t, calls[0], "keys:1\r\n")
	assert.Contains(t, calls[0], "discarded_keys:1\r\n")
}

func TestRedisHandler_Page(t *testing.T) {
	config.SetTestFlag(t, "dataset_file", writeNamesDataset(t))
	handler := newTestHandler(t)

	assert.Equal(t, []string{"array:1", "array:2", "bulk:2016", "bulk:Mia"}, run(handler, "PAGE 2 2"))
	assert.Equal(t, []string{"array:0"}, run(handler, "PAGE 5 2"))
	calls := run(handler, "PAGE 0 2")
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0], "error:ERR "))
}

func TestRedisHandler_Hyper(t *testing.T) {
	config.SetTestFlag(t, "dataset_file", writeNamesDataset(t))
	handler := newTestHandler(t)

	assert.Equal(t, []string{
		"array:12",
		"bulk:page_size", "int:2",
		"bulk:page", "int:1",
		"bulk:data", "array:2", "array:2", "bulk:2016", "bulk:Ava", "array:2", "bulk:2016", "bulk:Noah",
		"bulk:next_page", "int:2",
		"bulk:prev_page", "null",
		"bulk:total_pages", "int:2",
	}, run(handler, "HYPER 1 2"))
	assert.Equal(t, []string{"error:ERR wrong number of arguments for 'hyper' command"}, run(handler, "HYPER 1"))
}

func TestRedisHandler_HyperIndexAfterDelete(t *testing.T) {
	config.SetTestFlag(t, "dataset_file", writeNamesDataset(t))
	handler := newTestHandler(t)

	assert.Equal(t, []string{
		"array:8",
		"bulk:index", "int:0",
		"bulk:next_index", "int:2",
		"bulk:page_size", "int:2",
		"bulk:data", "array:2", "array:2", "bulk:2016", "bulk:Ava", "array:2", "bulk:2016", "bulk:Noah",
	}, run(handler, "HYPERINDEX 0 2"))

	assert.Equal(t, []string{"string:OK"}, run(handler, "DELROW 1"))
	assert.Equal(t, []string{
		"array:8",
		"bulk:index", "int:0",
		"bulk:next_index", "null",
		"bulk:page_size", "int:2",
		"bulk:data", "array:2", "array:2", "bulk:2016", "bulk:Ava", "array:2", "bulk:2016", "bulk:Mia",
	}, run(handler, "HYPERINDEX 0 2"))

	calls := run(handler, "DELROW 1")
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0], "error:ERR "), "A deleted row cannot be deleted twice")
	calls = run(handler, "HYPERINDEX 3 2")
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0], "error:ERR "))
}

// startRedisServer runs the Redis server on a random local port until the test ends; it returns the bound address
// and the channel receiving the server result.
func startRedisServer(t *testing.T, ctx context.Context) (net.Addr, <-chan error) {
	t.Helper()
	config.SetTestFlag(t, "address", "127.0.0.1:0")
	backend, _ := newTestBackend(t)
	listening := make(chan net.Addr, 1)
	serverErr := make(chan error, 1)
	go func() { serverErr <- runRedisServer(ctx, backend, listening) }()
	select {
	case addr := <-listening:
		return addr, serverErr
	case err := <-serverErr:
		t.Fatalf("Redis server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Redis server did not start listening")
	}
	return nil, nil
}

// awaitServer waits for the server result.
func awaitServer(t *testing.T, serverErr <-chan error) error {
	t.Helper()
	select {
	case err := <-serverErr:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Redis server did not stop after cancellation")
		return nil
	}
}

func TestRunRedisServer_ServesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	addr, serverErr := startRedisServer(t, ctx)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for _, exchange := range []struct {
		request  string
		response string
	}{
		{request: "PING\r\n", response: "+PONG\r\n"},
		{request: "SET user/1 a\r\n", response: "+OK\r\n"},
		{request: "DBSIZE\r\n", response: ":1\r\n"},
	} {
		_, err := conn.Write([]byte(exchange.request))
		require.NoError(t, err)
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, exchange.response, line)
	}

	cancel()
	assert.NoError(t, awaitServer(t, serverErr))
}

func TestRunRedisServer_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	config.SetTestFlag(t, "address", "127.0.0.1:0")
	backend, _ := newTestBackend(t)
	serverErr := make(chan error, 1)
	go func() { serverErr <- RunRedisServer(ctx, backend) }()
	assert.NoError(t, awaitServer(t, serverErr), "A cancelled server must close its listener instead of failing")
}

func TestRunRedisServer_ListenFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, serverErr := startRedisServer(t, ctx)

	config.SetTestFlag(t, "address", addr.String())
	backend, _ := newTestBackend(t)
	assert.Error(t, RunRedisServer(context.Background(), backend), "The address is already in use")

	cancel()
	assert.NoError(t, awaitServer(t, serverErr))
}

func TestRunRedisServer_EmptyAddress(t *testing.T) {
	config.SetTestFlag(t, "address", "")
	backend, _ := newTestBackend(t)
	assert.Error(t, RunRedisServer(context.Background(), backend))
}
