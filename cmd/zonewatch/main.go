// Command zonewatch is an interactive client for a smart heating hub's
// realtime zone state.
//
// It maintains a WebSocket connection to the hub with automatic
// reconnection and a polling fallback, mirrors the zone collection
// locally, and exposes connection health metrics and a lifecycle
// journal.
//
// Usage:
//
//	zonewatch [flags]
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-server string     Hub base URL (e.g. http://hub.local:8123)
//	-token string      Access token for authentication
//	-discover          Find the hub via mDNS when no server is given
//	-log-level string  Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Connect to a known hub
//	zonewatch -server http://hub.local:8123 -token abc123
//
//	# Discover the hub on the local network
//	zonewatch -discover -token abc123
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheFlexican/smart-heating-sub000/internal/config"
	"github.com/TheFlexican/smart-heating-sub000/pkg/api"
	"github.com/TheFlexican/smart-heating-sub000/pkg/connlog"
	"github.com/TheFlexican/smart-heating-sub000/pkg/discovery"
	"github.com/TheFlexican/smart-heating-sub000/pkg/metrics"
	"github.com/TheFlexican/smart-heating-sub000/pkg/platform"
	"github.com/TheFlexican/smart-heating-sub000/pkg/supervisor"
	"github.com/TheFlexican/smart-heating-sub000/pkg/token"
	"github.com/TheFlexican/smart-heating-sub000/pkg/transport"
)

const discoveryTimeout = 10 * time.Second

func main() {
	var (
		configPath string
		serverURL  string
		authToken  string
		discover   bool
		logLevel   string
	)
	flag.StringVar(&configPath, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&serverURL, "server", "", "Hub base URL (e.g. http://hub.local:8123)")
	flag.StringVar(&authToken, "token", "", "Access token for authentication")
	flag.BoolVar(&discover, "discover", false, "Find the hub via mDNS when no server is given")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags override the file.
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if authToken != "" {
		cfg.Auth.Token = authToken
	}
	if discover {
		cfg.Server.Discover = true
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("zonewatch failed")
	}
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	var cfg config.Config
	config.ApplyDefaults(&cfg)
	return cfg, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(lvl).
		With().Timestamp().Logger()
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	baseURL := cfg.Server.URL
	wsURL := cfg.Server.WebSocketURL()

	if baseURL == "" {
		log.Info().Msg("discovering heating hub via mDNS")
		hub, err := discovery.NewBrowser(discovery.Config{}).Find(ctx, discoveryTimeout)
		if err != nil {
			return fmt.Errorf("hub discovery failed: %w", err)
		}
		baseURL = hub.BaseURL()
		wsURL = hub.WebSocketURL()
		log.Info().Str("hub", hub.InstanceName).Str("url", baseURL).Msg("hub discovered")
	}

	resolver := token.NewResolver(log,
		token.StaticSource(cfg.Auth.Token),
		token.URLSource{RawURL: cfg.Auth.LaunchURL},
		token.FileSource{Path: cfg.Auth.TokenFile},
	)

	profile := platform.Host(cfg.Transport.Embedded)
	log.Info().
		Str("platform", profile.OS).
		Dur("ping_interval", profile.PingInterval).
		Msg("platform profile detected")

	store := metrics.NewStore(cfg.Storage.MetricsPath, metrics.DeviceInfo{
		Platform: profile.OS,
		Browser:  profile.Browser,
		Mobile:   profile.Mobile,
		Embedded: profile.Embedded,
	}, log)
	if err := store.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load persisted metrics, starting fresh")
	}

	journal, err := connlog.NewWriter(cfg.Storage.JournalPath)
	if err != nil {
		log.Warn().Err(err).Msg("could not open connection journal")
	}
	defer journal.Close()

	telemetry := transport.NewTelemetryBus()
	telemetry.Subscribe(func(ev transport.TelemetryEvent) {
		log.Info().Str("event", ev.Event).RawJSON("data", orNull(ev.Data)).Msg("telemetry")
	})

	// An auth token is needed up front only for the polling fallback;
	// the primary transport resolves per connection attempt.
	fallbackToken, _ := resolver.Resolve()

	console := newConsole(cfg.Storage.JournalPath)

	sup := supervisor.New(supervisor.Config{
		WebSocket: transport.WebSocketConfig{
			URL:       wsURL,
			Resolver:  resolver,
			Profile:   profile,
			Metrics:   store,
			Telemetry: telemetry,
			Logger:    log,
		},
		Polling: transport.PollingConfig{
			API:      api.NewClient(baseURL, fallbackToken, log),
			Path:     cfg.Transport.PollPath,
			Interval: cfg.Transport.PollInterval(),
			Logger:   log,
		},
		FailureThreshold: cfg.Transport.FailureThreshold,
		ProbeInterval:    cfg.Transport.ProbeInterval(),
		Journal:          journal,
		Logger:           log,
	}, console.callbacks(log))

	console.attach(sup, store)

	if err := sup.Start(ctx); err != nil {
		// Initial dial failures are retried by the supervisor; log and
		// keep the console up.
		log.Warn().Err(err).Msg("initial connection failed, retrying in background")
	}
	defer sup.Stop()

	// The console runs in the foreground; signals cancel it from the
	// side.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
	}()

	return console.run(ctx, cancel)
}

func orNull(data []byte) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}
