// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/sensor_logger/internal/app"
	"github.com/relabs-tech/sensor_logger/internal/config"
	"github.com/relabs-tech/sensor_logger/internal/streams"
)

// The mock console runs the logger with every stream fed by the mock source and prints
// the samples, for benches without sensors attached.
func main() {
	logDir := flag.String("logdir", "./BaroGps-mock", "directory for the mock logs")
	port := flag.Int("port", 0, "web server port, 0 disables it")
	flag.Parse()

	log.Println("starting sensor logger (mock console)")

	cfg := config.Default()
	cfg.LogDir = *logDir
	cfg.WebServerPort = *port
	cfg.BarometerSource = config.SourceMock
	cfg.LocationSource = config.SourceMock
	cfg.LightSource = config.SourceMock
	cfg.ActivitySource = config.SourceMock
	cfg.AutostartStreams = streams.All

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunLogger(ctx, cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
