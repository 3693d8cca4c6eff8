// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package source

import (
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/sensor_logger/internal/derive"
	"github.com/relabs-tech/sensor_logger/internal/env"
	"github.com/relabs-tech/sensor_logger/internal/sampling"
	"github.com/relabs-tech/sensor_logger/internal/streams"
)

// BMP polls a BMP280/BME280 over SPI. The poll interval is normally shorter than the
// barometer sampling period; the pipeline drops the extra readings.
type BMP struct {
	spiDevice string
	interval  time.Duration

	mu   sync.Mutex
	bus  spi.PortCloser
	dev  *bmxx80.Dev
	poll *poller
}

// NewBMP returns a barometer source on spiDevice (e.g. "/dev/spidev0.0").
func NewBMP(spiDevice string, interval time.Duration) *BMP {
	return &BMP{spiDevice: spiDevice, interval: interval}
}

// init opens the sensor once; a failed attempt is retried on the next Subscribe.
func (b *BMP) init() error {
	if b.dev != nil {
		return nil
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}
	bus, err := spireg.Open(b.spiDevice)
	if err != nil {
		return fmt.Errorf("BMP SPI open %s: %w", b.spiDevice, err)
	}
	dev, err := bmxx80.NewSPI(bus, &bmxx80.DefaultOpts)
	if err != nil {
		bus.Close()
		return fmt.Errorf("BMP init: %w", err)
	}
	b.bus = bus
	b.dev = dev
	log.Printf("bmp: sensor initialized on %s", b.spiDevice)
	return nil
}

func (b *BMP) Subscribe(stream string, fn func(sampling.Reading)) (sampling.Subscription, error) {
	if stream != streams.Barometer {
		return nil, fmt.Errorf("bmp: cannot provide stream %q", stream)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.poll != nil {
		return nil, fmt.Errorf("bmp: already subscribed")
	}
	if err := b.init(); err != nil {
		return nil, err
	}

	dev := b.dev
	p := startPoller("bmp", b.interval, func(t time.Time) (sampling.Reading, bool, error) {
		var e physic.Env
		if err := dev.Sense(&e); err != nil {
			return sampling.Reading{}, false, fmt.Errorf("BMP sense: %w", err)
		}
		pressurePa := float64(e.Pressure) / float64(physic.Pascal)
		return sampling.Reading{
			Stream:    streams.Barometer,
			Source:    "pressure",
			Timestamp: t.UnixMilli(),
			Payload: env.Sample{
				Sensor:       "bmp280",
				PressureMbar: derive.PascalToMbar(pressurePa),
				Temperature:  e.Temperature.Celsius(),
				HasTemp:      true,
			},
		}, true, nil
	}, fn)
	b.poll = p

	return sampling.UnsubscribeFunc(func() error {
		err := p.Unsubscribe()
		b.mu.Lock()
		if b.poll == p {
			b.poll = nil
		}
		b.mu.Unlock()
		return err
	}), nil
}

// Close releases the SPI bus.
func (b *BMP) Close() error {
	b.mu.Lock()
	p := b.poll
	b.mu.Unlock()
	if p != nil {
		p.Unsubscribe()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.poll = nil
	b.dev = nil
	if b.bus == nil {
		return nil
	}
	err := b.bus.Close()
	b.bus = nil
	return err
}
