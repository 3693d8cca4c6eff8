// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package derive converts raw sensor units into derived physical quantities.
// All functions are pure and return NaN instead of failing on invalid input.
package derive

import "math"

// StandardAtmosphereMbar is the sea level pressure of the standard atmosphere.
const StandardAtmosphereMbar = 1013.25

// uereMetres is the nominal user equivalent range error used to turn HDOP into metres.
const uereMetres = 5.0

const metresPerSecondPerKnot = 1852.0 / 3600.0

// PressureToAltitude returns the altitude in metres for pressureMbar, using the
// international barometric formula with referenceMbar as sea level pressure:
//
//	h = 44330 * (1 - (p/p0)^(1/5.255))
func PressureToAltitude(pressureMbar, referenceMbar float64) float64 {
	if !(pressureMbar > 0) || !(referenceMbar > 0) {
		return math.NaN()
	}
	return 44330.0 * (1.0 - math.Pow(pressureMbar/referenceMbar, 1.0/5.255))
}

// PascalToMbar converts pascal to millibar (hPa).
func PascalToMbar(pa float64) float64 {
	return pa / 100.0
}

// KnotsToMetresPerSecond converts a speed over ground in knots.
func KnotsToMetresPerSecond(knots float64) float64 {
	if math.IsNaN(knots) || knots < 0 {
		return math.NaN()
	}
	return knots * metresPerSecondPerKnot
}

// HDOPToAccuracy estimates the horizontal accuracy in metres from the horizontal
// dilution of precision.
func HDOPToAccuracy(hdop float64) float64 {
	if !(hdop > 0) {
		return math.NaN()
	}
	return hdop * uereMetres
}
