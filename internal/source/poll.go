// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package source delivers raw readings to sampling pipelines: from MQTT, a serial NMEA
// receiver, a BMP barometer on SPI, or a synthetic generator.
package source

import (
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/sensor_logger/internal/sampling"
)

// readFunc produces one reading per tick. ok=false skips the tick.
type readFunc func(now time.Time) (r sampling.Reading, ok bool, err error)

// poller calls read on a ticker until unsubscribed.
type poller struct {
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func startPoller(name string, interval time.Duration, read readFunc, fn func(sampling.Reading)) *poller {
	p := &poller{stopCh: make(chan struct{})}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case t := <-ticker.C:
				r, ok, err := read(t)
				if err != nil {
					log.Printf("%s: read error: %v", name, err)
					continue
				}
				if ok {
					fn(r)
				}
			}
		}
	}()
	return p
}

// Unsubscribe stops the ticker and waits for an in-flight callback to return.
func (p *poller) Unsubscribe() error {
	p.once.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	return nil
}
