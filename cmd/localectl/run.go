package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-locales/internal/api"
	"github.com/nerrad567/gray-logic-locales/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-locales/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-locales/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-locales/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-locales/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-locales/internal/locale"
	"github.com/nerrad567/gray-logic-locales/internal/protocol"
	"github.com/nerrad567/gray-logic-locales/internal/relay"
	"github.com/nerrad567/gray-logic-locales/internal/scheduler"
	"github.com/nerrad567/gray-logic-locales/internal/transport"
	"github.com/nerrad567/gray-logic-locales/migrations"
)

const (
	// pruneInterval is how often expired locale history is deleted.
	pruneInterval = time.Hour

	// healthCheckTimeout bounds the startup health check.
	healthCheckTimeout = 10 * time.Second
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		Long: `Run loads the locale cache, starts periodic synchronisation with the
controller and serves the HTTP/WebSocket API until interrupted.

MQTT, InfluxDB and the history database are started when enabled in the
configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Use default logger until config is loaded
			log := logging.Default()
			log.Info("starting localectl",
				"version", version,
				"commit", commit,
				"build_date", date,
			)

			cfg, path, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log.Info("configuration loaded", "path", path)

			log = logging.New(cfg.Logging, version)
			log.Info("logger initialised",
				"level", cfg.Logging.Level,
				"format", cfg.Logging.Format,
			)

			return runDaemon(cmd.Context(), cfg, log)
		},
	}
}

// runDaemon wires every component and blocks until ctx is cancelled.
// Deferred Close() calls run in reverse start order.
func runDaemon(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	// Locale cache
	store := locale.NewStore(locale.NewFileStorage(cfg.Cache.Path))
	store.SetLogger(log.Component("locale"))
	if err := store.Load(ctx); err != nil {
		return err
	}
	log.Info("locale cache loaded", "path", cfg.Cache.Path, "locales", store.Len())

	// History database (optional)
	var db *database.DB
	var history *locale.SQLiteHistory
	if cfg.Database.Enabled {
		var err error
		db, err = database.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		history = locale.NewSQLiteHistory(db.DB)
	} else {
		log.Info("locale history disabled")
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		var err error
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		var err error
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Foreground controller connection, shared by the API and MQTT commands.
	dest, err := transport.ResolveDestination(cfg.Controller.Address)
	if err != nil {
		return fmt.Errorf("resolving controller address: %w", err)
	}
	conn, err := transport.Listen(cfg.Controller.LocalAddress)
	if err != nil {
		return fmt.Errorf("opening controller connection: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			log.Error("error closing controller connection", "error", closeErr)
		}
	}()
	conn.SetTimeout(cfg.GetControllerTimeout())
	conn.SetLogger(log.Component("transport"))

	client := protocol.NewClient(store)
	client.SetLogger(log.Component("protocol"))
	session := protocol.NewSession(client, conn, dest)
	log.Info("controller configured",
		"destination", dest.String(),
		"local_address", conn.LocalAddr().String(),
		"timeout", cfg.GetControllerTimeout(),
	)

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	// Relay. Nil pointers must not reach the interface fields.
	relayDeps := relay.Deps{
		Store:       store,
		Broadcaster: hub,
		Logger:      log.Component("relay"),
	}
	if mqttClient != nil {
		relayDeps.Publisher = mqttClient
		relayDeps.Commands = session
	}
	if influxClient != nil {
		relayDeps.Metrics = influxClient
	}
	if history != nil {
		relayDeps.History = history
	}
	rl, err := relay.New(relayDeps)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	client.SetObserver(rl)

	// Scheduler
	sched := scheduler.New(ctx, client, scheduler.Options{
		LocalAddress: cfg.Sync.LocalAddress,
		Timeout:      cfg.GetControllerTimeout(),
	})
	sched.SetLogger(log.Component("scheduler"))
	sched.AddObserver(rl)
	defer sched.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if history != nil && cfg.Database.HistoryRetention > 0 {
		g.Go(func() error {
			pruneHistory(gctx, history, cfg.GetHistoryRetention(), log)
			return nil
		})
	}

	if err := rl.Start(gctx); err != nil {
		return fmt.Errorf("starting relay: %w", err)
	}
	defer rl.Close()

	if cfg.Sync.Enabled {
		if err := sched.Configure(cfg.Sync.Interval, cfg.Controller.Address); err != nil {
			return fmt.Errorf("starting sync: %w", err)
		}
	} else {
		log.Info("periodic sync disabled")
	}

	// API server (optional)
	if cfg.API.Enabled {
		apiDeps := api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Logger:     log.Component("api"),
			Store:      store,
			Controller: session,
			Sync:       sched,
			Hub:        hub,
			Stats: api.StatsSources{
				Transport: conn,
				Relay:     rl,
			},
			Version: version,
		}
		if history != nil {
			apiDeps.History = history
			apiDeps.Stats.Database = db.DB
		}
		if mqttClient != nil {
			apiDeps.Stats.MQTT = mqttClient
		}
		server, err := api.New(apiDeps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))
	} else {
		log.Info("API server disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-gctx.Done()

	log.Info("shutdown signal received, cleaning up")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("background task failed", "error", err)
	}
	log.Info("relay stopped", "processed", rl.Processed(), "dropped", rl.Dropped())
	log.Info("localectl stopped")
	return nil
}

// pruneHistory deletes expired locale history once at startup and then
// every pruneInterval until ctx is cancelled.
func pruneHistory(ctx context.Context, history *locale.SQLiteHistory, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := history.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("pruning locale history", "error", err)
		case n > 0:
			log.Info("pruned locale history", "deleted", n, "retention", retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// healthCheck verifies the enabled infrastructure connections.
// Any of the clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
