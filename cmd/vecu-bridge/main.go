// vecu-bridge simulates a virtual ECU: it samples the lamp model on a
// fixed cadence, packs light control frames, and transmits them to the
// zone gateway. It keeps running locally when the gateway is unreachable.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c360/canbridge/bridge"
	"github.com/c360/canbridge/config"
	"github.com/c360/canbridge/sim"
	"github.com/c360/canbridge/transport"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to JSON config file")
		gatewayAddr = flag.String("gateway", "", "gateway address, overrides config")
		debug       = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	addr := cfg.Gateway.ListenAddr
	if *gatewayAddr != "" {
		addr = *gatewayAddr
	}

	client, err := transport.NewClient(transport.ClientDeps{Addr: addr, Logger: logger})
	if err != nil {
		logger.Error("client setup failed", "error", err)
		os.Exit(1)
	}

	ecu := bridge.NewECU(bridge.ECUDeps{
		Client: client,
		Source: sim.NewLampSource(cfg.Sim.Step, cfg.Sim.LampThreshold),
		Tick:   cfg.Sim.TickInterval(),
		Logger: logger,
	})

	if err := ecu.Initialize(); err != nil {
		logger.Error("initialize failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ecu.Start(ctx); err != nil {
		logger.Error("start failed", "error", err)
		os.Exit(1)
	}
	logger.Info("vecu-bridge running", "gateway", addr)

	<-ctx.Done()
	logger.Info("shutting down",
		"frames_sent", ecu.FramesSent(), "frames_local", ecu.FramesLocal())
	if err := ecu.Stop(10 * time.Second); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		os.Exit(1)
	}
}
