// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/sensor_logger/internal/derive"
	"github.com/relabs-tech/sensor_logger/internal/gps"
	"github.com/relabs-tech/sensor_logger/internal/sampling"
	"github.com/relabs-tech/sensor_logger/internal/streams"
)

// pmtkColdStart asks an MTK receiver to restart without its aiding data.
const pmtkColdStart = "$PMTK103*30\r\n"

// ggaMaxAge bounds how long GGA altitude and HDOP are attached to later RMC fixes.
const ggaMaxAge = 3 * time.Second

// NMEA reads a GPS receiver on a serial port and emits one location reading per
// valid RMC sentence.
type NMEA struct {
	name string
	open func() (io.ReadWriteCloser, error)
	now  func() time.Time

	mu     sync.Mutex
	active bool
	port   io.ReadWriteCloser
}

// NewNMEA returns a location source reading the receiver on port at baud.
func NewNMEA(port string, baud int) *NMEA {
	return NewNMEAReader(port, func() (io.ReadWriteCloser, error) {
		return serial.Open(serial.OpenOptions{
			PortName:              port,
			BaudRate:              uint(baud),
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       1,
			ParityMode:            serial.PARITY_NONE,
			InterCharacterTimeout: 0,
		})
	})
}

// NewNMEAReader returns a location source that reads sentences from whatever open
// returns. The port is closed on Unsubscribe.
func NewNMEAReader(name string, open func() (io.ReadWriteCloser, error)) *NMEA {
	return &NMEA{name: name, open: open, now: time.Now}
}

func (n *NMEA) Subscribe(stream string, fn func(sampling.Reading)) (sampling.Subscription, error) {
	if stream != streams.Location {
		return nil, fmt.Errorf("nmea: cannot provide stream %q", stream)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.active {
		return nil, fmt.Errorf("nmea: already subscribed")
	}
	port, err := n.open()
	if err != nil {
		return nil, fmt.Errorf("GPS serial open %s: %w", n.name, err)
	}
	n.active, n.port = true, port
	log.Printf("nmea: reading GPS sentences from %s", n.name)

	var (
		wg       sync.WaitGroup
		once     sync.Once
		stopping = make(chan struct{})
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		var asm fixAssembler
		reader := bufio.NewReader(port)
		for {
			line, err := reader.ReadString('\n')
			if r, ok := asm.feed(line, n.now()); ok {
				fn(r)
			}
			if err != nil {
				select {
				case <-stopping:
				default:
					if !errors.Is(err, io.EOF) {
						log.Printf("nmea: read error: %v", err)
					} else {
						log.Printf("nmea: %s closed", n.name)
					}
				}
				return
			}
		}
	}()

	return sampling.UnsubscribeFunc(func() error {
		var err error
		once.Do(func() {
			n.mu.Lock()
			n.port = nil
			n.mu.Unlock()
			close(stopping)
			err = port.Close()
			wg.Wait()
			n.mu.Lock()
			n.active = false
			n.mu.Unlock()
		})
		return err
	}), nil
}

// ColdStart makes the receiver discard its aiding data so that the time to the next
// fix is measured from scratch. The port is opened just for the command when the
// source is not subscribed.
func (n *NMEA) ColdStart() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	port := n.port
	if port == nil {
		p, err := n.open()
		if err != nil {
			return fmt.Errorf("GPS serial open %s: %w", n.name, err)
		}
		defer p.Close()
		port = p
	}
	if _, err := io.WriteString(port, pmtkColdStart); err != nil {
		return fmt.Errorf("GPS cold start %s: %w", n.name, err)
	}
	log.Printf("nmea: cold start sent to %s", n.name)
	return nil
}

// fixAssembler combines GGA and RMC sentences into fixes. GGA contributes altitude
// and HDOP for ggaMaxAge; every valid RMC produces a fix.
type fixAssembler struct {
	hdop        float64
	altitude    float64
	hasAltitude bool
	ggaAt       time.Time
}

// feed parses one line. Garbage, checksum failures and other sentence types are
// skipped.
func (a *fixAssembler) feed(line string, now time.Time) (sampling.Reading, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return sampling.Reading{}, false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return sampling.Reading{}, false
	}

	switch m := sentence.(type) {
	case nmea.GGA:
		if m.FixQuality == nmea.Invalid {
			a.hdop = 0
			a.hasAltitude = false
			return sampling.Reading{}, false
		}
		a.hdop = m.HDOP
		a.altitude, a.hasAltitude = m.Altitude, true
		a.ggaAt = now
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			return sampling.Reading{}, false
		}
		if now.Sub(a.ggaAt) > ggaMaxAge {
			a.hdop = 0
			a.hasAltitude = false
		}
		fix := gps.Fix{
			Provider:    "gps",
			Latitude:    m.Latitude,
			Longitude:   m.Longitude,
			Accuracy:    derive.HDOPToAccuracy(a.hdop),
			Altitude:    a.altitude,
			HasAltitude: a.hasAltitude,
			TimeMs:      fixTime(m.Date, m.Time, now).UnixMilli(),
		}
		if math.IsNaN(fix.Accuracy) { // no GGA yet
			fix.Accuracy = -1
		}
		if speed := derive.KnotsToMetresPerSecond(m.Speed); !math.IsNaN(speed) {
			fix.Speed, fix.HasSpeed = speed, true
			// Course over ground is meaningless when stationary.
			if speed > 0 {
				fix.Bearing, fix.HasBearing = m.Course, true
			}
		}
		return sampling.Reading{
			Stream:    streams.Location,
			Source:    fix.Provider,
			Timestamp: fix.TimeMs,
			Payload:   fix,
		}, true
	}
	return sampling.Reading{}, false
}

// fixTime converts the RMC date and time to UTC, falling back to now.
func fixTime(d nmea.Date, t nmea.Time, now time.Time) time.Time {
	if !d.Valid || !t.Valid {
		return now
	}
	return time.Date(2000+d.YY, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
