// platform-sim: stand-in for the force-platform sensor service.
// Streams simulated telemetry on /ws and serves calibration, session history
// and report endpoints, so the client can run without hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-steady/internal/log"
	"github.com/teslashibe/go-steady/pkg/platform"
)

var (
	port     = flag.Int("port", 8000, "HTTP server port")
	seed     = flag.Int64("seed", 0, "Sway model seed (0: time-based)")
	occupied = flag.Bool("occupied", true, "Start with someone on the platform")
	weight   = flag.Float64("weight", platform.DefaultBodyWeightKg, "Simulated body weight in kg")
	level    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	log.Init(*level)
	logger := log.L()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	sensor := platform.NewSwaySensor(*seed, *occupied)
	sensor.SetWeight(*weight)

	p, err := platform.New(sensor, platform.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "platform-sim: %v\n", err)
		os.Exit(1)
	}
	srv := platform.NewServer(p)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("simulator starting",
		"port", *port,
		"seed", *seed,
		"occupied", *occupied,
		"weight_kg", *weight,
	)

	if err := srv.Run(ctx, fmt.Sprintf(":%d", *port)); err != nil {
		logger.Error("simulator stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("simulator stopped", "stats", srv.Stats())
}
