// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package streams

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/relabs-tech/sensor_logger/internal/env"
	"github.com/relabs-tech/sensor_logger/internal/gps"
	"github.com/relabs-tech/sensor_logger/internal/sampling"
)

// wireReading is the JSON form of a raw reading published on MQTT.
type wireReading struct {
	Stream      string          `json:"stream,omitempty"`
	Source      string          `json:"source,omitempty"`
	TimestampMs int64           `json:"timestamp_ms,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// Encode marshals a raw reading for publishing.
func Encode(r sampling.Reading) ([]byte, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", r.Stream, err)
	}
	return json.Marshal(wireReading{
		Stream:      r.Stream,
		Source:      r.Source,
		TimestampMs: r.Timestamp,
		Payload:     payload,
	})
}

// Decode unmarshals a raw reading received for stream. Readings without a timestamp
// are stamped with arrival, except location fixes that carry their own fix time.
// A reading naming another stream is returned as such; the pipeline drops it.
func Decode(stream string, data []byte, arrival time.Time) (sampling.Reading, error) {
	var w wireReading
	if err := json.Unmarshal(data, &w); err != nil {
		return sampling.Reading{}, sampling.NewError(sampling.KindProtocolViolation, stream, "decode", err)
	}
	if w.Stream == "" {
		w.Stream = stream
	}

	r := sampling.Reading{
		Stream:    w.Stream,
		Source:    w.Source,
		Timestamp: w.TimestampMs,
	}

	var err error
	switch w.Stream {
	case Barometer:
		var s env.Sample
		err = json.Unmarshal(w.Payload, &s)
		if r.Source == "" {
			r.Source = s.Sensor
		}
		r.Payload = s
	case Location:
		var f gps.Fix
		err = json.Unmarshal(w.Payload, &f)
		if r.Source == "" {
			r.Source = f.Provider
		}
		if r.Timestamp == 0 {
			r.Timestamp = f.TimeMs
		}
		r.Payload = f
	case Light:
		var s LightSample
		err = json.Unmarshal(w.Payload, &s)
		r.Payload = s
	case Activity:
		var l Label
		err = json.Unmarshal(w.Payload, &l)
		r.Payload = l
	default:
		err = fmt.Errorf("unknown stream %q", w.Stream)
	}
	if err != nil {
		return sampling.Reading{}, sampling.NewError(sampling.KindProtocolViolation, stream, "decode", err)
	}
	if r.Timestamp == 0 {
		r.Timestamp = arrival.UnixMilli()
	}
	return r, nil
}
