// Package main starts the reference relay daemon.
//
// The daemon is a thin shell around relay.Sequencer: it opens the SQLite
// log, binds the gRPC feed service, and hands lifecycle to the OS. All
// admission and ordering behavior lives in the relay package.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"humanity.network/core/relay"
	"humanity.network/core/storage/sqlitestore"
)

// config is read from the environment first; flags override per invocation.
type config struct {
	Listen      string `env:"HUMANITY_RELAY_LISTEN"        envDefault:"127.0.0.1:7411"`
	StorePath   string `env:"HUMANITY_RELAY_STORE"         envDefault:"relay.db"`
	LogLevel    string `env:"HUMANITY_RELAY_LOG_LEVEL"     envDefault:"info"`
	MaxMsgBytes int    `env:"HUMANITY_RELAY_MAX_MSG_BYTES" envDefault:"8388608"`
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("relay daemon failed")
		os.Exit(1)
	}
}

func parseConfig(args []string) (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("humanity-relayd", flag.ContinueOnError)
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "listen address")
	fs.StringVar(&cfg.StorePath, "store", cfg.StorePath, "SQLite database path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (trace, debug, info, warn, error)")
	fs.IntVar(&cfg.MaxMsgBytes, "max-msg-bytes", cfg.MaxMsgBytes, "gRPC message size cap in bytes")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if cfg.MaxMsgBytes <= 0 {
		return config{}, fmt.Errorf("max-msg-bytes must be positive, got %d", cfg.MaxMsgBytes)
	}
	return cfg, nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", level, err)
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl), nil
}

// run serves the feed until ctx is canceled, then drains in-flight RPCs.
func run(ctx context.Context, cfg config, log zerolog.Logger) error {
	st, err := sqlitestore.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	seq, err := relay.NewSequencer(relay.SequencerOptions{
		Store:  st,
		Logger: log,
	})
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	defer lis.Close()

	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.MaxMsgBytes),
		grpc.MaxSendMsgSize(cfg.MaxMsgBytes),
	)
	relay.RegisterFeedServer(srv, &relay.Server{Feed: seq})

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		srv.GracefulStop()
	}()

	log.Info().
		Str("listen", lis.Addr().String()).
		Str("store", cfg.StorePath).
		Msg("relay listening")
	if err := srv.Serve(lis); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
