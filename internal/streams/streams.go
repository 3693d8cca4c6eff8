// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package streams defines the log row layout of every stream the logger knows about.
package streams

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/relabs-tech/sensor_logger/internal/derive"
	"github.com/relabs-tech/sensor_logger/internal/env"
	"github.com/relabs-tech/sensor_logger/internal/gps"
	"github.com/relabs-tech/sensor_logger/internal/sampling"
)

// Stream ids.
const (
	Barometer = "barometer"
	Location  = "location"
	Light     = "light"
	Activity  = "activity"
)

// All lists the known streams in display order.
var All = []string{Barometer, Location, Light, Activity}

// ErrMalformed is returned for payloads a layout cannot log.
var ErrMalformed = errors.New("malformed payload")

func malformed(stream, format string, args ...any) error {
	return sampling.NewError(sampling.KindProtocolViolation, stream, "validate",
		fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...)))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// BarometerLayout logs millibar and the derived altitude.
type BarometerLayout struct {
	// ReferenceMbar is the sea level pressure used for the altitude.
	ReferenceMbar float64
}

func (BarometerLayout) Stream() string { return Barometer }

func (BarometerLayout) Header() []string {
	return sampling.CommonHeader("millibar", "altitudeMetres")
}

func (l BarometerLayout) Columns(r sampling.Reading) ([]string, error) {
	s, ok := r.Payload.(env.Sample)
	if !ok {
		return nil, malformed(Barometer, "payload %T", r.Payload)
	}
	if !finite(s.PressureMbar) || s.PressureMbar <= 0 {
		return nil, malformed(Barometer, "pressure %v", s.PressureMbar)
	}
	ref := l.ReferenceMbar
	if ref <= 0 {
		ref = derive.StandardAtmosphereMbar
	}
	alt := derive.PressureToAltitude(s.PressureMbar, ref)
	return []string{sampling.FormatFloat(s.PressureMbar), sampling.FormatFloat(alt)}, nil
}

// LocationLayout logs a location fix; missing altitude, bearing and speed are -1.
type LocationLayout struct{}

func (LocationLayout) Stream() string { return Location }

func (LocationLayout) Header() []string {
	return sampling.CommonHeader("provider", "latitudeDeg", "longitudeDeg", "accuracyM",
		"altitudeM", "bearingDeg", "speedMps")
}

func (LocationLayout) Columns(r sampling.Reading) ([]string, error) {
	f, ok := r.Payload.(gps.Fix)
	if !ok {
		return nil, malformed(Location, "payload %T", r.Payload)
	}
	provider := f.Provider
	if provider == "" {
		provider = r.Source
	}
	if provider == "" || strings.ContainsAny(provider, ",\n") {
		return nil, malformed(Location, "provider %q", provider)
	}
	if !finite(f.Latitude) || f.Latitude < -90 || f.Latitude > 90 {
		return nil, malformed(Location, "latitude %v", f.Latitude)
	}
	if !finite(f.Longitude) || f.Longitude < -180 || f.Longitude > 180 {
		return nil, malformed(Location, "longitude %v", f.Longitude)
	}
	if !finite(f.Accuracy) {
		return nil, malformed(Location, "accuracy %v", f.Accuracy)
	}
	return []string{
		provider,
		sampling.FormatFloat(f.Latitude),
		sampling.FormatFloat(f.Longitude),
		sampling.FormatFloat(f.Accuracy),
		sampling.FormatOptional(f.Altitude, f.HasAltitude && finite(f.Altitude)),
		sampling.FormatOptional(f.Bearing, f.HasBearing && finite(f.Bearing)),
		sampling.FormatOptional(f.Speed, f.HasSpeed && finite(f.Speed)),
	}, nil
}

// LightSample is an ambient light level reading.
type LightSample struct {
	Lux float64 `json:"lux"`
}

// LightLayout logs the light level in lux.
type LightLayout struct{}

func (LightLayout) Stream() string { return Light }

func (LightLayout) Header() []string { return sampling.CommonHeader("lux") }

func (LightLayout) Columns(r sampling.Reading) ([]string, error) {
	s, ok := r.Payload.(LightSample)
	if !ok {
		return nil, malformed(Light, "payload %T", r.Payload)
	}
	if !finite(s.Lux) || s.Lux < 0 {
		return nil, malformed(Light, "lux %v", s.Lux)
	}
	return []string{sampling.FormatFloat(s.Lux)}, nil
}

// ActivityLayout logs user activity labels used to annotate the sensor logs.
type ActivityLayout struct{}

func (ActivityLayout) Stream() string { return Activity }

func (ActivityLayout) Header() []string { return sampling.CommonHeader("activity") }

func (ActivityLayout) Columns(r sampling.Reading) ([]string, error) {
	l, ok := r.Payload.(Label)
	if !ok {
		return nil, malformed(Activity, "payload %T", r.Payload)
	}
	if !l.Activity.Valid() {
		return nil, malformed(Activity, "activity %q", l.Activity)
	}
	return []string{string(l.Activity)}, nil
}
