// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/sensor_logger/internal/config"
	"github.com/relabs-tech/sensor_logger/internal/env"
	"github.com/relabs-tech/sensor_logger/internal/gps"
	"github.com/relabs-tech/sensor_logger/internal/sampling"
	"github.com/relabs-tech/sensor_logger/internal/streams"
)

// panel is what one OLED shows for a stream.
type panel struct {
	active bool
	rec    sampling.Record
	have   bool
	// errors counts failures since the last recorded sample.
	errors int
}

// Display keeps the latest barometer and location samples for the two OLED panels.
// It is a sampling.Observer; rendering happens on the RunDisplay goroutine.
type Display struct {
	mu   sync.RWMutex
	baro panel
	loc  panel
}

// NewDisplay returns a display observer with nothing to show yet.
func NewDisplay() *Display {
	return &Display{}
}

func (d *Display) OnSampleRecorded(rec sampling.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p := d.panelFor(rec.Stream); p != nil {
		p.rec, p.have, p.errors = rec, true, 0
	}
}

// OnError counts err against its stream's panel. Errors without a stream go to the
// barometer panel, the only one with room for them.
func (d *Display) OnError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.panelFor(sampling.StreamOf(err))
	if p == nil {
		p = &d.baro
	}
	p.errors++
}

func (d *Display) OnStateChanged(st sampling.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p := d.panelFor(st.Stream); p != nil {
		p.active = st.Active
	}
}

func (d *Display) panelFor(stream string) *panel {
	switch stream {
	case streams.Barometer:
		return &d.baro
	case streams.Location:
		return &d.loc
	}
	return nil
}

func (d *Display) snapshot() (baro, loc panel) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.baro, d.loc
}

// addrBus sends every transaction to one I2C address, so that a panel strapped to
// 0x3D can be driven through the fixed address used by ssd1306.NewI2C.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b addrBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

// RunDisplay drives the left (barometer) and right (location) panels until ctx is done.
func RunDisplay(ctx context.Context, cfg *config.Config, d *Display) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	left, err := ssd1306.NewI2C(addrBus{bus, cfg.DisplayLeftI2CAddr}, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize left display: %w", err)
	}
	log.Printf("display: left display initialized at 0x%02X", cfg.DisplayLeftI2CAddr)

	right, err := ssd1306.NewI2C(addrBus{bus, cfg.DisplayRightI2CAddr}, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize right display: %w", err)
	}
	log.Printf("display: right display initialized at 0x%02X", cfg.DisplayRightI2CAddr)

	if err := left.Draw(left.Bounds(), splash("Sensor Logger", "Barometer"), image.Point{}); err != nil {
		log.Printf("display: error showing left splash: %v", err)
	}
	if err := right.Draw(right.Bounds(), splash("Sensor Logger", "Location"), image.Point{}); err != nil {
		log.Printf("display: error showing right splash: %v", err)
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()
	log.Println("display: starting update loop")

	for {
		select {
		case <-ctx.Done():
			left.Halt()
			right.Halt()
			return nil
		case <-ticker.C:
		}

		baro, loc := d.snapshot()
		if err := left.Draw(left.Bounds(), renderBarometer(baro, baro.errors+loc.errors), image.Point{}); err != nil {
			log.Printf("display: error updating left display: %v", err)
		}
		if err := right.Draw(right.Bounds(), renderLocation(loc), image.Point{}); err != nil {
			log.Printf("display: error updating right display: %v", err)
		}
	}
}

// canvas is a blank 128x64 frame with a drawer for 7x13 text.
type canvas struct {
	img    *image1bit.VerticalLSB
	drawer *font.Drawer
}

func newCanvas() *canvas {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	return &canvas{
		img: img,
		drawer: &font.Drawer{
			Dst:  img,
			Src:  &image.Uniform{image1bit.On},
			Face: basicfont.Face7x13,
		},
	}
}

// line draws s with its baseline at y.
func (c *canvas) line(x, y int, s string) {
	c.drawer.Dot = fixed.P(x, y)
	c.drawer.DrawString(s)
}

func splash(title, subtitle string) *image1bit.VerticalLSB {
	c := newCanvas()
	c.line(10, 26, title)
	c.line(25, 43, subtitle)
	return c.img
}

func renderBarometer(p panel, errs int) *image1bit.VerticalLSB {
	c := newCanvas()
	if !p.have {
		c.line(0, 26, "Barometer")
		if p.active {
			c.line(0, 39, "Waiting...")
		} else {
			c.line(0, 39, "Stopped")
		}
		return c.img
	}

	alt := "?"
	if len(p.rec.Columns) > 1 {
		alt = p.rec.Columns[1]
		if len(alt) > 7 {
			alt = alt[:7]
		}
	}
	if s, ok := p.rec.Payload.(env.Sample); ok {
		c.line(0, 13, fmt.Sprintf("%.2f mbar", s.PressureMbar))
	}
	c.line(0, 26, "Alt: "+alt+"m")
	c.line(0, 39, fmt.Sprintf("#%d dt %dms", p.rec.Seq, p.rec.Delta))
	switch {
	case errs > 0:
		c.line(0, 52, fmt.Sprintf("ERR x%d", errs))
	case !p.active:
		c.line(0, 52, "Stopped")
	}
	return c.img
}

func renderLocation(p panel) *image1bit.VerticalLSB {
	c := newCanvas()
	fix, ok := p.rec.Payload.(gps.Fix)
	if !p.have || !ok {
		c.line(0, 26, "GPS Position")
		if p.active {
			c.line(0, 39, "Waiting...")
		} else {
			c.line(0, 39, "Stopped")
		}
		return c.img
	}

	latDir, lat := "N", fix.Latitude
	if lat < 0 {
		latDir, lat = "S", -lat
	}
	lonDir, lon := "E", fix.Longitude
	if lon < 0 {
		lonDir, lon = "W", -lon
	}
	c.line(0, 13, fmt.Sprintf("%.5f%s", lat, latDir))
	c.line(0, 26, fmt.Sprintf("%.5f%s", lon, lonDir))
	if fix.HasAltitude {
		c.line(0, 39, fmt.Sprintf("Alt: %.0fm", fix.Altitude))
	}
	c.line(0, 52, fmt.Sprintf("%s +-%.0fm", fix.Provider, fix.Accuracy))
	return c.img
}
