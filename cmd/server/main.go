// Command server runs the line-oriented TCP front-end over an engine
// instance, for integration testing.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/emberkv/emberkv/engine"
	"github.com/emberkv/emberkv/server"
	"github.com/rs/zerolog"
)

func main() {
	var (
		basePath           = flag.String("base-path", "./data", "root directory for engine state")
		addr               = flag.String("addr", ":4040", "TCP address to listen on")
		memtableLimitBytes = flag.Int("memtable-limit-bytes", 4<<20, "memtable byte threshold that triggers a flush")
		sstableLevelLimit  = flag.Int("sstable-level-limit", 4, "per-level table count that triggers compaction")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	eng, err := engine.Open(*basePath,
		engine.WithMemtableLimitBytes(*memtableLimitBytes),
		engine.WithSstableLevelLimit(*sstableLevelLimit),
		engine.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open engine")
	}
	defer eng.Close()

	srv, err := server.New(*addr, eng, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("addr", srv.Addr().String()).Msg("listening")
	if err := srv.Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
	}
}
