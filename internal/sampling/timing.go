// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sampling

// Unavailable is written in place of values a stream cannot provide, and as the
// delta of the first sample after activation.
const Unavailable int64 = -1

// TimingTracker holds the per-stream timing state of one activation.
// It is not safe for concurrent use; Pipeline serializes access to it.
type TimingTracker struct {
	count      int64
	previous   int64
	hasPrev    bool
	firstDelay int64
	hasFirst   bool
	reference  int64
}

// OnActivate resets all counters and records now (unix ms) as the activation time.
func (t *TimingTracker) OnActivate(now int64) {
	*t = TimingTracker{reference: now}
}

// OnAccepted registers an accepted reading and returns its sequence number, the delta
// to the previous accepted reading (Unavailable for the first one) and the delay
// between activation and the first accepted reading.
//
// Timestamps are expected to be non-decreasing; a negative delta is returned as-is.
func (t *TimingTracker) OnAccepted(ts int64) (seq, delta, firstDelay int64) {
	t.count++
	if !t.hasFirst {
		t.firstDelay = ts - t.reference
		t.hasFirst = true
	}
	delta = Unavailable
	if t.hasPrev {
		delta = ts - t.previous
	}
	t.previous = ts
	t.hasPrev = true
	return t.count, delta, t.firstDelay
}

// Previous returns the timestamp of the last accepted reading, if any.
func (t *TimingTracker) Previous() (int64, bool) {
	return t.previous, t.hasPrev
}

// Count is the number of readings accepted since activation.
func (t *TimingTracker) Count() int64 { return t.count }

// FirstDelay returns the first-reading delay, if a reading was accepted yet.
func (t *TimingTracker) FirstDelay() (int64, bool) {
	return t.firstDelay, t.hasFirst
}

// Reference is the activation time.
func (t *TimingTracker) Reference() int64 { return t.reference }
