// Command run executes a guest wasm module against real network transports.
//
// The guest talks to the outside world exclusively through the bridge import
// surface; this runner wires that surface to TCP ("tcp://host:port") and
// encrypted TCP ("tcps://host:port") dialers, hands control to the guest and
// then drives event delivery until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/portway-io/wasm-bridge/engine"
	"github.com/portway-io/wasm-bridge/transport"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to guest wasm module")
		configFile  = flag.String("config", "", "Path to YAML config file")
		logLevel    = flag.String("log-level", "", "Host log level: debug, info, warn, error")
		guestLevel  = flag.Uint("guest-log-level", 0, "Guest log level cap (1-5)")
		interactive = flag.Bool("i", false, "Interactive mode with live connection view")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *wasmFile != "" {
		cfg.Wasm = *wasmFile
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *guestLevel != 0 {
		cfg.GuestLogLevel = uint32(*guestLevel)
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.Wasm == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-config run.yaml] [-i]")
		os.Exit(1)
	}

	if *interactive {
		if err := runInteractive(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// newDialer builds the scheme router every guest connection goes through.
func newDialer(cfg *config) (transport.Dialer, error) {
	timeout, err := cfg.dialTimeout()
	if err != nil {
		return nil, err
	}
	mux := transport.NewMux()
	mux.Register("tcp", &transport.TCPDialer{
		DialTimeout:   timeout,
		InitialWindow: cfg.InitialWindow,
	})
	mux.Register("tcps", &transport.SecureDialer{
		DialTimeout:   timeout,
		InitialWindow: cfg.InitialWindow,
	})
	return mux, nil
}

func run(cfg *config) error {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()
	engine.SetLogger(log)

	wasmBytes, err := os.ReadFile(cfg.Wasm)
	if err != nil {
		return fmt.Errorf("read module: %w", err)
	}

	dialer, err := newDialer(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := engine.New(ctx, &engine.RuntimeConfig{MemoryLimitPages: cfg.MemoryLimitPages})
	if err != nil {
		return err
	}
	defer e.Close(context.Background())

	inst, err := e.Instantiate(ctx, wasmBytes, &engine.Config{
		Name:   "guest",
		Dialer: dialer,
		Logger: log,
	})
	if err != nil {
		return err
	}
	defer inst.Close(context.Background())

	log.Info("guest starting",
		zap.String("module", cfg.Wasm),
		zap.Uint32("guest_log_level", cfg.GuestLogLevel))

	if err := inst.Init(ctx, cfg.GuestLogLevel); err != nil {
		return err
	}

	if err := inst.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("guest stopped")
	return nil
}
