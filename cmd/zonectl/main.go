// zonectl runs the zone gateway: it accepts frames from virtual ECUs,
// validates and fans them out over NATS, decodes them against the signal
// table, maps signals to VSS paths, and persists everything to SQLite.
// Optional sinks: a SocketCAN interface and a Prometheus endpoint.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/canbridge/bridge"
	"github.com/c360/canbridge/canbus"
	"github.com/c360/canbridge/config"
	"github.com/c360/canbridge/fanout"
	"github.com/c360/canbridge/metric"
	"github.com/c360/canbridge/natsclient"
	"github.com/c360/canbridge/sigtable"
	"github.com/c360/canbridge/store"
	"github.com/c360/canbridge/validate"
	"github.com/c360/canbridge/vssmap"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to JSON config file")
		listenAddr = flag.String("listen", "", "listen address, overrides config")
		debug      = flag.Bool("debug", false, "enable debug logging")
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
	if *listenAddr != "" {
		cfg.Gateway.ListenAddr = *listenAddr
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewRegistry()

	var metricServer *metric.Server
	if cfg.Metrics.Enabled {
		metricServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		if err := metricServer.Start(); err != nil {
			return err
		}
		defer metricServer.Stop(5 * time.Second)
	}

	// Broadcast over NATS when a server is reachable; otherwise fall back
	// to in-process delivery so local consumers still work.
	var publisher fanout.Publisher
	nc, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithLogger(logger))
	if err != nil {
		return err
	}
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := nc.Connect(connectCtx); err != nil {
		logger.Warn("NATS unavailable, broadcasting in-process only", "error", err)
		publisher = fanout.NewMemoryPublisher()
	} else {
		publisher = fanout.NewNATSPublisher(nc)
		defer nc.Close(context.Background())

		// With debug logging on, tap the broadcast subject through the
		// broker so delivery can be confirmed end to end.
		if logger.Enabled(ctx, slog.LevelDebug) {
			if _, err := nc.Subscribe(cfg.NATS.Subject, func(msg *nats.Msg) {
				logger.Debug("broadcast delivered", "subject", msg.Subject, "bytes", len(msg.Data))
			}); err != nil {
				logger.Warn("broadcast tap unavailable", "error", err)
			}
		}
	}
	cancel()

	distributor, err := fanout.NewDistributor(fanout.DistributorDeps{
		Publisher: publisher,
		Subject:   cfg.NATS.Subject,
		Capacity:  cfg.Gateway.BackupCapacity,
		Logger:    logger,
		Metrics:   registry,
	})
	if err != nil {
		return err
	}

	table, err := sigtable.NewTable(sigtable.TableDeps{
		ResourcePath: cfg.Signals.LayoutPath,
		Logger:       logger,
		Metrics:      registry,
	})
	if err != nil {
		return err
	}

	mapper, err := vssmap.NewMapper(vssmap.MapperDeps{
		ResourcePath: cfg.Signals.MappingPath,
		Logger:       logger,
		Metrics:      registry,
	})
	if err != nil {
		return err
	}

	var db *store.Store
	if cfg.Store.Enabled {
		db, err = store.Open(store.StoreDeps{Path: cfg.Store.Path, Logger: logger, Metrics: registry})
		if err != nil {
			return err
		}
		defer db.Close()
	}

	var busWriter canbus.Writer
	if cfg.CANBus.Enabled {
		w, err := canbus.Dial(ctx, cfg.CANBus.Interface, logger)
		if err != nil {
			logger.Warn("CAN interface unavailable, continuing without bus output",
				"iface", cfg.CANBus.Interface, "error", err)
		} else {
			busWriter = w
		}
	}

	gateway := bridge.NewGateway(bridge.GatewayDeps{
		ListenAddr:  cfg.Gateway.ListenAddr,
		Validator:   validate.NewValidator(validate.ValidatorDeps{Logger: logger, Metrics: registry}),
		Distributor: distributor,
		Table:       table,
		Mapper:      mapper,
		Store:       db,
		BusWriter:   busWriter,
		Logger:      logger,
		Metrics:     registry,
	})

	if err := gateway.Initialize(); err != nil {
		return err
	}
	if err := gateway.Start(ctx); err != nil {
		return err
	}
	logger.Info("zonectl running", "listen", gateway.Addr())

	<-ctx.Done()
	logger.Info("shutting down")
	return gateway.Stop(10 * time.Second)
}
