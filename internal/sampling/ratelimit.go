// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sampling

// ShouldAccept decides whether a reading arriving at arrival (unix ms) becomes a sample.
//
// previous is the timestamp of the last accepted reading on the stream, valid only when
// hasPrevious is true. The bound is inclusive: a reading exactly minPeriod after the
// previous sample is accepted. minPeriod <= 0 accepts everything.
//
// Sensors often deliver faster than requested, so this keeps the logged cadence at or
// below the configured target.
func ShouldAccept(previous int64, hasPrevious bool, arrival, minPeriod int64) bool {
	if minPeriod <= 0 || !hasPrevious {
		return true
	}
	return arrival-previous >= minPeriod
}
