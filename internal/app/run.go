// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/relabs-tech/sensor_logger/internal/config"
	"github.com/relabs-tech/sensor_logger/internal/sampling"
)

// RunLogger logs the configured streams until ctx is done. Samples are echoed to the
// console and, when enabled, to the OLED panels and the web live feed.
func RunLogger(ctx context.Context, cfg *config.Config) error {
	hub := NewHub()
	observers := []sampling.Observer{NewConsole(os.Stdout), hub}

	var display *Display
	if cfg.DisplayEnabled {
		display = NewDisplay()
		observers = append(observers, display)
	}

	logger, err := NewLogger(cfg, LoggerOptions{Observers: observers})
	if err != nil {
		return err
	}
	defer func() {
		if err := logger.Close(); err != nil {
			log.Printf("logger: close: %v", err)
		}
	}()

	if display != nil {
		go func() {
			if err := RunDisplay(ctx, cfg, display); err != nil {
				log.Printf("display: %v", err)
			}
		}()
	}

	// A stream that fails to start is reported and can be started again from the web UI.
	if err := logger.Autostart(); err != nil {
		log.Printf("logger: autostart: %v", err)
	}

	if cfg.WebServerPort == 0 {
		<-ctx.Done()
		log.Println("logger: shutting down")
		return nil
	}
	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	if err := ServeWeb(ctx, addr, NewRouter(logger, hub)); err != nil {
		return fmt.Errorf("web server: %w", err)
	}
	log.Println("logger: shutting down")
	return nil
}
