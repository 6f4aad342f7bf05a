package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"esplink/internal/app"
	"esplink/internal/bus"
	"esplink/internal/config"
	"esplink/internal/device"
	"esplink/internal/discovery"
	"esplink/internal/httpapi"
	"esplink/internal/logging"
	"esplink/internal/notify"
	"esplink/internal/persistence"
	"esplink/internal/telemetry"
	"esplink/internal/transport"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run esplink", "error", err)
		os.Exit(1)
	}
}

func run() error {
	connector := flag.String("connector", "", "connector type (tcp, serial)")
	host := flag.String("host", "", "device ip/hostname (disables discovery when set)")
	port := flag.Int("port", 0, "device tcp port")
	serialPort := flag.String("serial-port", "", "serial port path")
	listen := flag.String("listen", "", "http api listen address")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(app.Name, app.BuildVersionWithDate())

		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, err := app.ResolvePaths()
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(&cfg, *connector, *host, *port, *serialPort, *listen)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() {
		if closeErr := logMgr.Close(); closeErr != nil {
			slog.Warn("close log manager", "error", closeErr)
		}
	}()
	logger := logMgr.Logger("main")
	logger.Info("starting esplink", "version", app.BuildVersion(), "connector", cfg.Connection.Connector)

	db, err := persistence.Open(ctx, paths.DBFile)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warn("close sqlite", "error", closeErr)
		}
	}()
	endpointRepo := persistence.NewEndpointRepo(db)

	b := bus.New(logMgr.Logger("bus"))
	defer b.Close()

	statusStore := device.NewStatusStore()
	telemetryStore := telemetry.NewStore()

	tr, err := buildTransport(cfg)
	if err != nil {
		return err
	}

	svc := device.NewService(
		logMgr.Logger("device"),
		b,
		tr,
		statusStore,
		telemetryStore,
		device.Config{
			RetryInterval: time.Duration(cfg.Device.RetryIntervalS) * time.Second,
			AutoStart:     cfg.Device.AutoStart,
		},
	)

	switch cfg.Connection.Connector {
	case config.ConnectorTCP:
		svc.SetEndpointSaver(endpointRepo)
		if host := strings.TrimSpace(cfg.Connection.Host); host != "" {
			svc.SetTarget(discovery.Endpoint{IP: host, Port: cfg.Connection.Port})
		} else if cfg.Discovery.Enabled {
			scanner := discovery.NewScanner(
				logMgr.Logger("discovery"),
				cfg.Connection.Port,
				time.Duration(cfg.Discovery.ProbeTimeoutMS)*time.Millisecond,
				cfg.Discovery.Workers,
				device.HelloSignature,
			)
			if cached, ok, err := endpointRepo.LastEndpoint(ctx); err != nil {
				logger.Warn("load cached endpoint", "error", err)
			} else if ok {
				scanner.SetHints([]discovery.Endpoint{cached})
				logger.Info("cached endpoint registered as probe hint", "endpoint", cached.String())
			}
			svc.SetScanner(scanner)
		}
	case config.ConnectorSerial:
		svc.SetTarget(discovery.Endpoint{IP: cfg.Connection.SerialPort})
	}

	notifySvc := notify.NewService(
		b,
		func() config.AppConfig { return cfg },
		notify.NewBeeepSender(logMgr.Logger("notify")),
		logMgr.Logger("notify"),
	)
	notifySvc.Start(ctx)

	svc.Start(ctx)

	api := httpapi.NewServer(logMgr.Logger("http"), statusStore, telemetryStore, svc)
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- api.Start(cfg.HTTP.Listen)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")

		return nil
	case err := <-httpErr:
		return fmt.Errorf("http api: %w", err)
	}
}

func applyFlagOverrides(cfg *config.AppConfig, connector, host string, port int, serialPort, listen string) {
	if c := strings.TrimSpace(connector); c != "" {
		cfg.Connection.Connector = config.ConnectorType(c)
	}
	if h := strings.TrimSpace(host); h != "" {
		cfg.Connection.Host = h
	}
	if port > 0 {
		cfg.Connection.Port = port
	}
	if sp := strings.TrimSpace(serialPort); sp != "" {
		cfg.Connection.SerialPort = sp
	}
	if l := strings.TrimSpace(listen); l != "" {
		cfg.HTTP.Listen = l
	}
	cfg.FillMissingDefaults()
}

func buildTransport(cfg config.AppConfig) (transport.Transport, error) {
	switch cfg.Connection.Connector {
	case config.ConnectorTCP:
		return transport.NewTCPTransport(cfg.Connection.Host, cfg.Connection.Port), nil
	case config.ConnectorSerial:
		return transport.NewSerialTransport(cfg.Connection.SerialPort, cfg.Connection.SerialBaud), nil
	default:
		return nil, fmt.Errorf("unknown connector: %s", cfg.Connection.Connector)
	}
}
