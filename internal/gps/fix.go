// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

// Fix is a single location reading. Altitude, bearing and speed are only meaningful
// when the matching Has flag is set; not every provider reports them.
type Fix struct {
	Provider  string  `json:"provider"`   // "gps", "network", ...
	Latitude  float64 `json:"lat"`        // decimal degrees
	Longitude float64 `json:"lon"`        // decimal degrees
	Accuracy  float64 `json:"accuracy_m"` // horizontal, metres

	Altitude    float64 `json:"altitude_m,omitempty"`
	HasAltitude bool    `json:"has_altitude,omitempty"`
	Bearing     float64 `json:"bearing_deg,omitempty"` // course over ground
	HasBearing  bool    `json:"has_bearing,omitempty"`
	Speed       float64 `json:"speed_mps,omitempty"` // speed over ground
	HasSpeed    bool    `json:"has_speed,omitempty"`

	TimeMs int64 `json:"time_ms,omitempty"` // fix time reported by the receiver, unix ms
}
