package port

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/nobletooth/evicache/pkg/utils"
	"github.com/tidwall/redcon"
)

const RedisOk = "OK"

var address = flag.String("address", ":6380", "The ip:port to listen on for Redis protocol.")

// redisCommand represents a Redis command with its arguments.
type redisCommand struct {
	command string
	args    []string
}

// redisOutput conforms to a real Redis server output on non pub / sub commands.
type redisOutput struct {
	closeConnection bool         // Closes the connection if true.
	writeNil        bool         // Writes a nil value if true.
	err             *string      // Error to return if set.
	writeInt        *int         // Writes an integer value if set.
	writeBulk       *string      // Writes a bulk string if set.
	writeArray      []string     // Writes an array of bulk strings if non-nil.
	writeRows       [][]string   // Writes an array of arrays of bulk strings if non-nil.
	writeFields     []redisField // Writes a flat name / value array if non-nil.
	writeString     string       // Writes a simple string value otherwise.
}

// redisField is one named value of a flat name / value reply, like HGETALL replies.
type redisField struct {
	name  string
	value redisOutput
}

// redisWriter is the subset of redcon.Conn used to write command outputs.
type redisWriter interface {
	WriteError(msg string)
	WriteString(str string)
	WriteBulkString(bulk string)
	WriteInt(num int)
	WriteArray(count int)
	WriteNull()
}

var _ redisWriter = (redcon.Conn)(nil)

func closeRedisConnection(msg string) redisOutput {
	return redisOutput{writeString: msg, closeConnection: true}
}

func writeRedisNil() redisOutput {
	return redisOutput{writeNil: true}
}

func writeRedisInt(i int) redisOutput {
	return redisOutput{writeInt: &i}
}

func writeRedisString(s string) redisOutput {
	return redisOutput{writeString: s}
}

func writeRedisBulk(s string) redisOutput {
	return redisOutput{writeBulk: &s}
}

func writeRedisArray(values []string) redisOutput {
	if values == nil {
		values = []string{}
	}
	return redisOutput{writeArray: values}
}

func writeRedisRows(rows [][]string) redisOutput {
	if rows == nil {
		rows = [][]string{}
	}
	return redisOutput{writeRows: rows}
}

func writeRedisFields(fields ...redisField) redisOutput {
	if fields == nil {
		fields = []redisField{}
	}
	return redisOutput{writeFields: fields}
}

// writeRedisOptionalInt writes `i`, or nil if it is unset.
func writeRedisOptionalInt(i *int) redisOutput {
	if i == nil {
		return writeRedisNil()
	}
	return writeRedisInt(*i)
}

func writeRedisError(err error) redisOutput {
	msg := "ERR " + err.Error()
	return redisOutput{err: &msg}
}

func wrongArgumentCount(command string) redisOutput {
	return writeRedisError(fmt.Errorf("wrong number of arguments for '%s' command", strings.ToLower(command)))
}

// write sends the output to the client.
func (o redisOutput) write(w redisWriter) {
	switch {
	case o.err != nil:
		w.WriteError(*o.err)
	case o.writeNil:
		w.WriteNull()
	case o.writeInt != nil:
		w.WriteInt(*o.writeInt)
	case o.writeBulk != nil:
		w.WriteBulkString(*o.writeBulk)
	case o.writeArray != nil:
		w.WriteArray(len(o.writeArray))
		for _, value := range o.writeArray {
			w.WriteBulkString(value)
		}
	case o.writeRows != nil:
		w.WriteArray(len(o.writeRows))
		for _, row := range o.writeRows {
			w.WriteArray(len(row))
			for _, value := range row {
				w.WriteBulkString(value)
			}
		}
	case o.writeFields != nil:
		w.WriteArray(2 * len(o.writeFields))
		for _, field := range o.writeFields {
			w.WriteBulkString(field.name)
			field.value.write(w)
		}
	default:
		w.WriteString(o.writeString)
	}
}

// parseIntegers converts every argument to an int.
func parseIntegers(args []string) ([]int, error) {
	numbers := make([]int, len(args))
	for i, arg := range args {
		number, err := strconv.Atoi(arg)
		if err != nil {
			return nil, errors.New("value is not an integer or out of range")
		}
		numbers[i] = number
	}
	return numbers, nil
}

type redisHandler struct {
	backend *CacheBackend
}

// newRedisHandler creates a new redisHandler.
func newRedisHandler(backend *CacheBackend) (*redisHandler, error) {
	if backend == nil {
		return nil, errors.New("expected a non-nil cache backend")
	}
	return &redisHandler{backend: backend}, nil
}

// info renders the INFO command output.
func (rh *redisHandler) info() string {
	lines := []string{
		"# Server",
		"evicache_version:" + utils.Version,
		"evicache_commit:" + utils.Commit,
		"uptime_in_seconds:" + strconv.FormatInt(int64(utils.Uptime().Seconds()), 10),
		"# Cache",
		"policy:" + string(rh.backend.policy),
		"capacity:" + strconv.Itoa(rh.backend.capacity),
		"keys:" + strconv.Itoa(rh.backend.Len()),
		"discarded_keys:" + strconv.FormatInt(rh.backend.Discarded(), 10),
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

func (rh *redisHandler) handle(cmd redisCommand) redisOutput {
	command := strings.ToUpper(cmd.command)
	switch command {
	case "PING":
		if len(cmd.args) == 1 {
			return writeRedisBulk(cmd.args[0])
		}
		return writeRedisString("PONG")
	case "QUIT":
		return closeRedisConnection(RedisOk)
	case "SET":
		if len(cmd.args) != 2 {
			return wrongArgumentCount(command)
		}
		rh.backend.Set(cmd.args[0], cmd.args[1])
		return writeRedisString(RedisOk)
	case "GET":
		if len(cmd.args) != 1 {
			return wrongArgumentCount(command)
		}
		if value, found := rh.backend.Get(cmd.args[0]); found {
			return writeRedisBulk(value)
		}
		return writeRedisNil()
	case "DEL":
		if len(cmd.args) < 1 {
			return wrongArgumentCount(command)
		}
		return writeRedisInt(rh.backend.Delete(cmd.args...))
	case "EXISTS":
		if len(cmd.args) < 1 {
			return wrongArgumentCount(command)
		}
		return writeRedisInt(rh.backend.Exists(cmd.args...))
	case "KEYS":
		if len(cmd.args) != 1 {
			return wrongArgumentCount(command)
		}
		return writeRedisArray(rh.backend.Keys(cmd.args[0]))
	case "DBSIZE":
		return writeRedisInt(rh.backend.Len())
	case "FLUSHALL", "FLUSHDB":
		rh.backend.Flush()
		return writeRedisString(RedisOk)
	case "INFO":
		return writeRedisBulk(rh.info())
	case "PAGE":
		if len(cmd.args) != 2 {
			return wrongArgumentCount(command)
		}
		numbers, err := parseIntegers(cmd.args)
		if err != nil {
			return writeRedisError(err)
		}
		rows, err := rh.backend.Page(numbers[0], numbers[1])
		if err != nil {
			return writeRedisError(err)
		}
		return writeRedisRows(rows)
	case "HYPER":
		if len(cmd.args) != 2 {
			return wrongArgumentCount(command)
		}
		numbers, err := parseIntegers(cmd.args)
		if err != nil {
			return writeRedisError(err)
		}
		hyper, err := rh.backend.Hyper(numbers[0], numbers[1])
		if err != nil {
			return writeRedisError(err)
		}
		return writeRedisFields(
			redisField{name: "page_size", value: writeRedisInt(hyper.PageSize)},
			redisField{name: "page", value: writeRedisInt(hyper.Page)},
			redisField{name: "data", value: writeRedisRows(hyper.Data)},
			redisField{name: "next_page", value: writeRedisOptionalInt(hyper.NextPage)},
			redisField{name: "prev_page", value: writeRedisOptionalInt(hyper.PrevPage)},
			redisField{name: "total_pages", value: writeRedisInt(hyper.TotalPages)})
	case "HYPERINDEX":
		if len(cmd.args) != 2 {
			return wrongArgumentCount(command)
		}
		numbers, err := parseIntegers(cmd.args)
		if err != nil {
			return writeRedisError(err)
		}
		hyperIndex, err := rh.backend.HyperIndex(numbers[0], numbers[1])
		if err != nil {
			return writeRedisError(err)
		}
		return writeRedisFields(
			redisField{name: "index", value: writeRedisInt(hyperIndex.Index)},
			redisField{name: "next_index", value: writeRedisOptionalInt(hyperIndex.NextIndex)},
			redisField{name: "page_size", value: writeRedisInt(hyperIndex.PageSize)},
			redisField{name: "data", value: writeRedisRows(hyperIndex.Data)})
	case "DELROW":
		if len(cmd.args) != 1 {
			return wrongArgumentCount(command)
		}
		numbers, err := parseIntegers(cmd.args)
		if err != nil {
			return writeRedisError(err)
		}
		if err := rh.backend.DeleteRow(numbers[0]); err != nil {
			return writeRedisError(err)
		}
		return writeRedisString(RedisOk)
	default:
		return writeRedisError(fmt.Errorf("unknown command '%s'", cmd.command))
	}
}

// RunRedisServer starts a Redis protocol server that serves the provided cache backend until `ctx` is cancelled.
func RunRedisServer(ctx context.Context, backend *CacheBackend) error {
	return runRedisServer(ctx, backend, nil)
}

// runRedisServer is RunRedisServer reporting the bound address to `listening` once the listener is up; `listening`
// may be nil.
func runRedisServer(ctx context.Context, backend *CacheBackend, listening chan<- net.Addr) error {
	if *address == "" {
		return errors.New("expected a non-empty --address flag")
	}

	redisHandler, err := newRedisHandler(backend)
	if err != nil {
		return fmt.Errorf("failed to create a new redis handler: %w", err)
	}

	redisServer := redcon.NewServerNetwork("tcp" /*net*/, *address,
		/*handler*/ func(conn redcon.Conn, cmd redcon.Command) {
			// Convert redcon.Command to redisCommand.
			command := redisCommand{command: string(cmd.Args[0]), args: make([]string, len(cmd.Args)-1)}
			for i := 1; i < len(cmd.Args); i++ {
				command.args[i-1] = string(cmd.Args[i])
			}
			output := redisHandler.handle(command)
			output.write(conn)
			if output.closeConnection {
				if err := conn.Close(); err != nil {
					slog.Error("Failed to close connection.", "error", err)
				}
			}
		},
		/*accept*/ func(conn redcon.Conn) bool {
			slog.Debug("Accepted connection.", "remote", conn.RemoteAddr())
			return true
		},
		/*close*/ func(conn redcon.Conn, err error) {
			if err != nil {
				slog.Debug("Connection closed with error.", "remote", conn.RemoteAddr(), "error", err)
			}
		})

	// The listener must be up before the server can be closed, so wait for it even if `ctx` is already done.
	listenSignal := make(chan error, 1)
	serverErrSignal := make(chan error, 1)
	go func() { serverErrSignal <- redisServer.ListenServeAndSignal(listenSignal) }()
	if err := <-listenSignal; err != nil {
		return fmt.Errorf("failed to listen on %s: %w", *address, err)
	}
	slog.Info("Serving Redis protocol.", "address", redisServer.Addr().String())
	if listening != nil {
		listening <- redisServer.Addr()
	}

	select {
	case <-ctx.Done():
		if err := redisServer.Close(); err != nil {
			return fmt.Errorf("failed to close evicache: %w", err)
		}
		return <-serverErrSignal
	case err := <-serverErrSignal:
		return fmt.Errorf("redis server stopped unexpectedly: %w", err)
	}
}
