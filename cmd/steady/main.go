// steady: balance-training client.
// Streams force-platform telemetry, runs timed training sessions and serves
// the local dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-steady/internal/config"
	"github.com/teslashibe/go-steady/internal/httpc"
	"github.com/teslashibe/go-steady/internal/log"
	"github.com/teslashibe/go-steady/pkg/backend"
	"github.com/teslashibe/go-steady/pkg/dashboard"
	"github.com/teslashibe/go-steady/pkg/events"
	"github.com/teslashibe/go-steady/pkg/session"
	"github.com/teslashibe/go-steady/pkg/stability"
	"github.com/teslashibe/go-steady/pkg/telemetry"
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "Path to a YAML config file (default: STEADY_CONFIG or ./steady.yaml)")
	port       = flag.Int("port", 0, "Dashboard port (overrides config)")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "steady: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Dashboard.Port = *port
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	log.Init(cfg.Log.Level)
	logger := log.L()
	logger.Info("starting", "version", version,
		"telemetry", cfg.Telemetry.URL,
		"backend", cfg.Backend.URL,
		"port", cfg.Dashboard.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	classifier, err := stability.New(stability.Thresholds{
		MinLoadKg:    cfg.Stability.MinLoadKg,
		GreenRadius:  cfg.Stability.GreenRadius,
		YellowRadius: cfg.Stability.YellowRadius,
	})
	if err != nil {
		return err
	}

	api, err := backend.NewClient(
		backend.WithBaseURL(cfg.Backend.URL),
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithHTTPClient(httpc.NewClient(cfg.Backend.Timeout)),
		backend.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	channel, err := telemetry.NewChannel(
		telemetry.WithURL(cfg.Telemetry.URL),
		telemetry.WithReconnectDelay(cfg.Telemetry.ReconnectDelay),
		telemetry.WithReadTimeout(cfg.Telemetry.ReadTimeout),
		telemetry.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer channel.Close()

	// The dashboard needs the manager and the manager publishes to the
	// dashboard, so the dashboard side of the publisher is bound late.
	var dash *dashboard.Server
	publishers := events.Multi{
		events.PublisherFunc(func(ctx context.Context, e *events.Event) error {
			if dash == nil {
				return nil
			}
			return dash.Publish(ctx, e)
		}),
	}

	if cfg.MQTT.Enabled() {
		mq, err := events.DialMQTT(events.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         events.DefaultMQTTQoS,
			Logger:      logger,
		})
		if err != nil {
			logger.Warn("mqtt disabled", "error", err)
		} else {
			defer mq.Close()
			publishers = append(publishers, mq)
		}
	}

	manager := session.NewManager(channel, session.ManagerConfig{
		Session: []session.Option{
			session.WithCalibrationSeconds(cfg.Session.CalibrationSeconds),
			session.WithMinScoringWeight(cfg.Session.MinScoringWeightKg),
			session.WithMaxDuration(cfg.Session.MaxDurationSeconds),
			session.WithClassifier(classifier),
			session.WithCalibrator(api),
			session.WithLogger(logger),
		},
		Recorder:  api,
		Publisher: publishers,
		Logger:    logger,
	})
	defer manager.Close()

	dash, err = dashboard.NewServer(dashboard.Config{
		Port:       cfg.Dashboard.Port,
		Telemetry:  channel,
		Sessions:   manager,
		Reports:    api,
		Classifier: classifier,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	channel.OnFrame(dash.PublishFrame)
	// Connection changes fire on the telemetry goroutine, which must not wait
	// on the broker.
	connEvents := events.NewQueue(publishers, events.DefaultQueueSize, events.DefaultPublishTimeout, logger)
	defer connEvents.Close()

	channel.OnStateChange(func(st telemetry.ConnectionState) {
		e, err := events.New(events.TypeTelemetryConnection, "", events.TelemetryConnection{State: st.String()})
		if err != nil {
			return
		}
		if err := connEvents.Publish(context.Background(), e); err != nil {
			logger.Debug("connection event not queued", "error", err)
		}
	})

	if err := channel.Start(ctx); err != nil {
		return err
	}

	err = dash.Run(ctx)
	logger.Info("shutting down", "backend", api.Stats(), "telemetry", channel.Stats())
	return err
}

func loadConfig() (config.Config, error) {
	if *configPath != "" {
		return config.LoadFile(*configPath)
	}
	return config.Load()
}
