// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package env

// Sample is a single barometer measurement.
type Sample struct {
	Sensor string `json:"sensor"` // "pressure", "bmp280", ...

	PressureMbar float64 `json:"pressure_mbar"`    // millibar == hPa
	Temperature  float64 `json:"temp_c,omitempty"` // °C, only when HasTemp
	HasTemp      bool    `json:"has_temp,omitempty"`
}
