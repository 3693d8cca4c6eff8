// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sampling

import (
	"strconv"
	"time"
)

// HumanTimeLayout renders timestamps as e.g. "2016-01-17-3-04-05PM".
const HumanTimeLayout = "2006-01-02-3-04-05PM"

// Reading is one raw event delivered by a source. It is passed by value and never
// modified after construction.
type Reading struct {
	Stream    string // stream the reading belongs to, e.g. "barometer"
	Source    string // provider or sensor label, e.g. "gps", "pressure"
	Timestamp int64  // arrival wall-clock time, unix ms
	Payload   any    // stream-specific values, see internal/env, internal/gps, internal/streams
}

// Record is the sample produced for an accepted reading.
type Record struct {
	Stream     string   `json:"stream"`
	Session    string   `json:"session"`
	Seq        int64    `json:"seq"`
	Timestamp  int64    `json:"timestamp_ms"`
	HumanTime  string   `json:"human_time"`
	Source     string   `json:"source"`
	Columns    []string `json:"columns"` // payload and derived values, already formatted
	Delta      int64    `json:"delta_ms"`
	FirstDelay int64    `json:"first_delay_ms"`
	Payload    any      `json:"payload,omitempty"`
}

// Row returns the CSV fields of the record in log order.
func (r Record) Row() []string {
	row := make([]string, 0, len(r.Columns)+5)
	row = append(row,
		strconv.FormatInt(r.Seq, 10),
		strconv.FormatInt(r.Timestamp, 10),
		r.HumanTime,
	)
	row = append(row, r.Columns...)
	row = append(row,
		strconv.FormatInt(r.Delta, 10),
		strconv.FormatInt(r.FirstDelay, 10),
	)
	return row
}

// Layout describes the stream-specific part of a log row.
type Layout interface {
	// Stream is the stream id the layout formats.
	Stream() string
	// Header names all columns of the row, including the common ones.
	Header() []string
	// Columns validates the reading payload and returns the payload and derived columns
	// placed between the human readable time and the delta.
	Columns(r Reading) ([]string, error)
}

// CommonHeader wraps stream-specific column names with the columns every log shares.
func CommonHeader(columns ...string) []string {
	h := []string{"sequenceNumber", "unixTimestampMs", "humanReadableTime"}
	h = append(h, columns...)
	return append(h, "deltaFromPreviousMs", "firstReadingDelayMs")
}

// FormatHumanTime renders a unix ms timestamp with HumanTimeLayout in loc.
func FormatHumanTime(ts int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ts).In(loc).Format(HumanTimeLayout)
}

// FormatFloat renders v with the shortest representation that round-trips.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatOptional renders v, or the Unavailable sentinel when ok is false.
func FormatOptional(v float64, ok bool) string {
	if !ok {
		return strconv.FormatInt(Unavailable, 10)
	}
	return FormatFloat(v)
}
