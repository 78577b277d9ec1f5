// Spins up the evicache server: bounded in-memory caches behind the Redis protocol, plus a Prometheus endpoint.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nobletooth/evicache/pkg/config"
	"github.com/nobletooth/evicache/pkg/port"
	"github.com/nobletooth/evicache/pkg/utils"
)

var printVersion = flag.Bool("print_version", false, "Print the version and exit.")

func main() {
	config.InitFlags()
	utils.InitLogging()

	if *printVersion {
		fmt.Printf("evicache %s (commit %s, built %s)\n", utils.Version, utils.Commit, utils.BuildTime)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	backend, err := port.NewCacheBackend()
	if err != nil {
		slog.Error("Failed to create the cache backend.", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := port.RunMetricsServer(ctx); err != nil {
			slog.Error("Metrics server stopped.", "error", err)
		}
	}()

	exitCode := 0
	if err := port.RunRedisServer(ctx, backend); err != nil {
		slog.Error("Evicache server stopped.", "error", err)
		exitCode = 1
	}
	cancel()
	wg.Wait()
	os.Exit(exitCode)
}
