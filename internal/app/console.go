// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/relabs-tech/sensor_logger/internal/env"
	"github.com/relabs-tech/sensor_logger/internal/gps"
	"github.com/relabs-tech/sensor_logger/internal/sampling"
	"github.com/relabs-tech/sensor_logger/internal/streams"
)

// Console prints one line per recorded sample, state change and error.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a console observer writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *Console) OnSampleRecorded(rec sampling.Record) {
	switch p := rec.Payload.(type) {
	case env.Sample:
		alt := "?"
		if len(rec.Columns) > 1 {
			alt = rec.Columns[1]
		}
		c.printf("[BARO] #%-5d %s  p=%8.2f mbar  alt=%sm  dt=%dms\n",
			rec.Seq, rec.HumanTime, p.PressureMbar, alt, rec.Delta)
	case gps.Fix:
		c.printf("[GPS ] #%-5d %s  %-7s lat=%.6f lon=%.6f acc=%.1fm  dt=%dms\n",
			rec.Seq, rec.HumanTime, p.Provider, p.Latitude, p.Longitude, p.Accuracy, rec.Delta)
	case streams.LightSample:
		c.printf("[LUX ] #%-5d %s  %.1f lx  dt=%dms\n", rec.Seq, rec.HumanTime, p.Lux, rec.Delta)
	case streams.Label:
		c.printf("[ACT ] #%-5d %s  %s\n", rec.Seq, rec.HumanTime, p.Activity)
	default:
		c.printf("[%-4s] #%-5d %s  %s\n", rec.Stream, rec.Seq, rec.HumanTime, strings.Join(rec.Columns, " "))
	}
}

func (c *Console) OnError(err error) {
	c.printf("[ERR ] %v\n", err)
}

func (c *Console) OnStateChanged(st sampling.Status) {
	if st.Active {
		c.printf("[%-4s] started, session %s\n", st.Stream, st.Session)
		return
	}
	c.printf("[%-4s] stopped after %d samples\n", st.Stream, st.Samples)
}
