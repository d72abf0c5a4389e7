package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-relay/internal/api"
	"github.com/nerrad567/gray-logic-relay/internal/bridge"
	"github.com/nerrad567/gray-logic-relay/internal/health"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/credentials"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/websocket"
	"github.com/nerrad567/gray-logic-relay/internal/journal"
	"github.com/nerrad567/gray-logic-relay/internal/link"
	"github.com/nerrad567/gray-logic-relay/internal/queue"
	"github.com/nerrad567/gray-logic-relay/migrations"
)

// run is the relay's lifecycle, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or the first startup failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Best effort on exit
	log.Info("configuration loaded",
		"path", configPath,
		"gateway", cfg.Gateway.ID,
		"sockets", len(cfg.Sockets),
	)

	events := bridge.NewDispatcher(bridge.EventBufferSize(cfg), log)
	events.Subscribe(bridge.EventLogger{Logger: log})
	inbox := bridge.NewQueue("inbox", cfg.Queue.InboxCapacity, cfg.Queue.TTL, events)
	retry := retryConfig(cfg.Reconnect)

	broker, err := mqtt.New(mqtt.Options{
		Config:       cfg.MQTT,
		Retry:        retry,
		CloseTimeout: cfg.Gateway.CloseTimeout,
		Outbound:     bridge.NewQueue(cfg.BrokerName(), cfg.Queue.Capacity, cfg.Queue.TTL, events),
		Inbox:        inbox,
		Emitter:      events,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("creating broker link: %w", err)
	}

	sockets, err := newSocketLinks(cfg, retry, inbox, events, log)
	if err != nil {
		return err
	}

	prom := metrics.New()
	events.Subscribe(prom)
	prom.Watch(broker)
	for _, s := range sockets {
		prom.Watch(s)
	}

	influx, err := connectInflux(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influx != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	jrnl, closeJournal, err := openJournal(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeJournal()
	if jrnl != nil {
		events.Subscribe(jrnl)
	}

	links := make([]bridge.Link, 0, len(sockets))
	for _, s := range sockets {
		links = append(links, s)
	}
	opts := bridge.Options{
		Config:   cfg,
		Broker:   broker,
		Sockets:  links,
		Inbox:    inbox,
		Events:   events,
		Counters: prom,
		Logger:   log,
	}
	if influx != nil {
		opts.Sensors = influx
	}
	br, err := bridge.New(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	sources := []health.Source{broker}
	for _, s := range sockets {
		sources = append(sources, s)
	}
	monitor := health.NewMonitor(health.Config{
		GatewayID:      cfg.Gateway.ID,
		Version:        version,
		Interval:       cfg.Health.Interval,
		UnhealthyAfter: cfg.Health.UnhealthyAfter,
		Topic:          cfg.Health.Topic,
		QoS:            byte(cfg.MQTT.QoS), //nolint:gosec // Validated to 0-2
	}, sources, broker, log)
	events.Subscribe(monitor)
	monitor.Observe(func(s health.Snapshot) { prom.SetHealth(s.Status.Level()) })
	if influx != nil {
		monitor.Observe(func(s health.Snapshot) {
			for _, l := range s.Links {
				influx.WriteLinkState(l.Name, l.State, l.State == link.StateConnected.String(), s.Timestamp)
			}
		})
	}

	if cfg.API.Enabled {
		srv, srvErr := startAPI(ctx, cfg, log, monitor, br, broker, sockets, jrnl, prom)
		if srvErr != nil {
			return srvErr
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	// The journal outlives the bridge so the links' final state changes,
	// delivered while the dispatcher drains, are still written.
	journalCtx, stopJournal := context.WithCancel(context.Background())
	journalDone := make(chan struct{})
	go func() {
		defer close(journalDone)
		if jrnl != nil {
			jrnl.Run(journalCtx) //nolint:errcheck // Journal.Run only returns nil
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return br.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })

	log.Info("initialisation complete, waiting for shutdown signal")
	runErr := g.Wait()

	stopJournal()
	<-journalDone

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	log.Info("Gray Logic Relay stopped")
	return nil
}

// retryConfig converts the shared reconnect policy.
func retryConfig(rc config.ReconnectConfig) link.RetryConfig {
	return link.RetryConfig{
		InitialDelay: rc.InitialDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.Multiplier,
		Jitter:       rc.Jitter,
		StableAfter:  rc.StableAfter,
	}
}

// newSocketLinks creates one SocketLink per configured socket, each with its
// own PendingQueue.
func newSocketLinks(cfg *config.Config, retry link.RetryConfig, inbox *queue.Queue, events *bridge.Dispatcher, log *logging.Logger) ([]*websocket.SocketLink, error) {
	provider, err := credentials.New(cfg.Credentials, log)
	if err != nil {
		return nil, fmt.Errorf("creating credentials provider: %w", err)
	}

	sockets := make([]*websocket.SocketLink, 0, len(cfg.Sockets))
	for _, sc := range cfg.Sockets {
		sl, err := websocket.New(websocket.Options{
			Config:      sc,
			Retry:       retry,
			Outbound:    bridge.NewQueue(sc.Name, sc.QueueCapacity, cfg.Queue.TTL, events),
			Inbox:       inbox,
			Credentials: provider,
			Emitter:     events,
			Logger:      log,
		})
		if err != nil {
			return nil, fmt.Errorf("creating socket link %q: %w", sc.Name, err)
		}
		sockets = append(sockets, sl)
	}
	return sockets, nil
}

// connectInflux connects the optional sensor and link-state sink. A nil
// client means InfluxDB is disabled.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // Disabled is not an error
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Gateway.ID)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// openJournal opens and migrates the event journal database. The returned
// close function is always safe to call.
func openJournal(ctx context.Context, cfg *config.Config, log *logging.Logger) (*journal.Journal, func(), error) {
	if !cfg.Journal.Enabled {
		log.Info("event journal disabled")
		return nil, func() {}, nil
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Journal.Path,
		WALMode:     cfg.Journal.WALMode,
		BusyTimeout: cfg.Journal.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening journal database: %w", err)
	}
	closeDB := func() {
		log.Info("closing journal database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing journal database", "error", closeErr)
		}
	}

	applied, err := db.Migrate(ctx, migrations.FS, ".")
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("event journal ready", "path", cfg.Journal.Path, "migrations_applied", applied)

	j := journal.New(journal.NewSQLiteRepository(db.DB), journal.Options{
		Retention:     cfg.Journal.Retention,
		PruneInterval: cfg.Journal.PruneInterval,
		Logger:        log,
	})
	return j, closeDB, nil
}

// startAPI mounts the server-role sockets and the API routes on one
// listener.
func startAPI(
	ctx context.Context,
	cfg *config.Config,
	log *logging.Logger,
	monitor *health.Monitor,
	br *bridge.Bridge,
	broker *mqtt.BrokerLink,
	sockets []*websocket.SocketLink,
	jrnl *journal.Journal,
	prom *metrics.Metrics,
) (*api.Server, error) {
	deps := api.Deps{
		Config:     cfg.API,
		Logger:     log,
		Version:    version,
		Health:     monitor,
		Bridge:     br,
		Links:      []api.LinkSource{broker},
		Prometheus: prom.Handler(),
	}
	for _, s := range sockets {
		deps.Links = append(deps.Links, s)
		if s.Role() == config.RoleServer {
			deps.Sockets = append(deps.Sockets, s)
		}
	}
	if jrnl != nil {
		deps.Journal = jrnl
	}

	srv, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Start(startCtx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	return srv, nil
}
