// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package source

import (
	"testing"
	"time"

	"github.com/relabs-tech/sensor_logger/internal/env"
	"github.com/relabs-tech/sensor_logger/internal/gps"
	"github.com/relabs-tech/sensor_logger/internal/sampling"
	"github.com/relabs-tech/sensor_logger/internal/streams"
)

func TestMockReadingsMatchLayouts(t *testing.T) {
	m := NewMock(time.Millisecond)
	at := m.start.Add(90 * time.Second)
	layouts := []sampling.Layout{
		streams.BarometerLayout{ReferenceMbar: 1013.25},
		streams.LocationLayout{},
		streams.LightLayout{},
		streams.ActivityLayout{},
	}
	for _, l := range layouts {
		r, ok := m.reading(l.Stream(), at, 1)
		if !ok {
			t.Fatalf("%s: no reading", l.Stream())
		}
		if r.Stream != l.Stream() || r.Timestamp != at.UnixMilli() {
			t.Errorf("%s: reading %+v", l.Stream(), r)
		}
		if _, err := l.Columns(r); err != nil {
			t.Errorf("%s: columns: %v", l.Stream(), err)
		}
	}
}

func TestMockLocationAlternatesProviders(t *testing.T) {
	m := NewMock(time.Millisecond)
	r, _ := m.reading(streams.Location, m.start, 4)
	fix := r.Payload.(gps.Fix)
	if fix.Provider != "network" || fix.HasAltitude || fix.HasSpeed || fix.HasBearing {
		t.Errorf("network fix %+v", fix)
	}
	r, _ = m.reading(streams.Location, m.start, 5)
	if fix := r.Payload.(gps.Fix); fix.Provider != "gps" || !fix.HasAltitude {
		t.Errorf("gps fix %+v", fix)
	}
}

func TestMockActivityIsSparse(t *testing.T) {
	m := NewMock(time.Millisecond)
	labels := 0
	for tick := 1; tick <= 200; tick++ {
		if _, ok := m.reading(streams.Activity, m.start, tick); ok {
			labels++
		}
	}
	if labels != 4 {
		t.Errorf("got %d labels in 200 ticks, want 4", labels)
	}
}

func TestMockSubscribeDelivers(t *testing.T) {
	m := NewMock(5 * time.Millisecond)
	if _, err := m.Subscribe("sonar", func(sampling.Reading) {}); err == nil {
		t.Fatal("unknown stream accepted")
	}

	got := make(chan sampling.Reading, 16)
	sub, err := m.Subscribe(streams.Barometer, func(r sampling.Reading) {
		select {
		case got <- r:
		default:
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	select {
	case r := <-got:
		s := r.Payload.(env.Sample)
		if s.PressureMbar < 1000 || s.PressureMbar > 1002 {
			t.Errorf("pressure %v", s.PressureMbar)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reading delivered")
	}
}

func TestPollerStopsOnUnsubscribe(t *testing.T) {
	calls := make(chan struct{}, 1000)
	p := startPoller("test", time.Millisecond, func(now time.Time) (sampling.Reading, bool, error) {
		return sampling.Reading{Timestamp: now.UnixMilli()}, true, nil
	}, func(sampling.Reading) { calls <- struct{}{} })

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("poller never fired")
	}
	p.Unsubscribe()
	p.Unsubscribe()

	n := len(calls)
	time.Sleep(20 * time.Millisecond)
	if len(calls) != n {
		t.Errorf("callbacks after unsubscribe: %d -> %d", n, len(calls))
	}
}
