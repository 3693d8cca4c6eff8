// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package source

import (
	"fmt"
	"math"
	"time"

	"github.com/relabs-tech/sensor_logger/internal/derive"
	"github.com/relabs-tech/sensor_logger/internal/env"
	"github.com/relabs-tech/sensor_logger/internal/gps"
	"github.com/relabs-tech/sensor_logger/internal/sampling"
	"github.com/relabs-tech/sensor_logger/internal/streams"
)

// Mock generates smoothly changing readings for every stream, for benches without
// sensors attached.
type Mock struct {
	start    time.Time
	interval time.Duration
}

// NewMock creates a mock source ticking every interval.
func NewMock(interval time.Duration) *Mock {
	return &Mock{start: time.Now(), interval: interval}
}

func (m *Mock) Subscribe(stream string, fn func(sampling.Reading)) (sampling.Subscription, error) {
	switch stream {
	case streams.Barometer, streams.Location, streams.Light, streams.Activity:
	default:
		return nil, fmt.Errorf("mock: unknown stream %q", stream)
	}
	var tick int
	return startPoller("mock "+stream, m.interval, func(t time.Time) (sampling.Reading, bool, error) {
		tick++
		r, ok := m.reading(stream, t, tick)
		return r, ok, nil
	}, fn), nil
}

// reading builds the synthetic reading of stream at t.
func (m *Mock) reading(stream string, t time.Time, tick int) (sampling.Reading, bool) {
	elapsed := t.Sub(m.start).Seconds()
	r := sampling.Reading{Stream: stream, Timestamp: t.UnixMilli()}

	switch stream {
	case streams.Barometer:
		r.Source = "pressure"
		r.Payload = env.Sample{
			Sensor:       "mock",
			PressureMbar: derive.StandardAtmosphereMbar - 12 + 0.4*math.Sin(elapsed/30),
		}
	case streams.Location:
		// Walk a 50 m circle; every fourth fix comes from the network provider,
		// which reports neither altitude, bearing nor speed.
		angle := elapsed / 60 * 2 * math.Pi
		fix := gps.Fix{
			Provider:  "gps",
			Latitude:  1.2966 + 0.00045*math.Sin(angle),
			Longitude: 103.7764 + 0.00045*math.Cos(angle),
			Accuracy:  5 + 2*math.Abs(math.Sin(elapsed)),
			TimeMs:    t.UnixMilli(),
		}
		if tick%4 == 0 {
			fix.Provider = "network"
			fix.Accuracy = 25
		} else {
			fix.Altitude, fix.HasAltitude = 15+math.Sin(elapsed/10), true
			fix.Bearing, fix.HasBearing = math.Mod(angle*180/math.Pi+90, 360), true
			fix.Speed, fix.HasSpeed = 2*math.Pi*50/60, true
		}
		r.Source = fix.Provider
		r.Payload = fix
	case streams.Light:
		r.Source = "light"
		r.Payload = streams.LightSample{Lux: 300 + 250*math.Sin(elapsed/20)}
	case streams.Activity:
		// A label every 50 ticks, cycling through the known activities.
		if tick%50 != 1 {
			return sampling.Reading{}, false
		}
		r.Source = "mock"
		idx := (tick / 50) % len(streams.Activities)
		r.Payload = streams.Label{Activity: streams.Activities[idx]}
	}
	return r, true
}
