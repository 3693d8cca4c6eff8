// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sampling

// Subscription is returned by Source.Subscribe.
type Subscription interface {
	// Unsubscribe stops delivery. When it returns no further callbacks are made.
	Unsubscribe() error
}

// Source delivers raw readings for a stream. Callbacks may arrive on any goroutine,
// concurrently with each other.
type Source interface {
	Subscribe(stream string, fn func(Reading)) (Subscription, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(stream string, fn func(Reading)) (Subscription, error)

func (f SourceFunc) Subscribe(stream string, fn func(Reading)) (Subscription, error) {
	return f(stream, fn)
}

// UnsubscribeFunc adapts a function to the Subscription interface.
type UnsubscribeFunc func() error

func (f UnsubscribeFunc) Unsubscribe() error { return f() }

// RowWriter is the append-only log a pipeline writes to.
type RowWriter interface {
	WriteRow(fields []string) error
	Close() error
}

// Status is a snapshot of a pipeline.
type Status struct {
	Stream        string `json:"stream"`
	Active        bool   `json:"active"`
	Session       string `json:"session,omitempty"`
	Samples       int64  `json:"samples"`
	FirstDelay    int64  `json:"first_delay_ms"`
	LastTimestamp int64  `json:"last_timestamp_ms"`
	MinPeriodMs   int64  `json:"min_period_ms"`
}

// Observer is notified about pipeline activity. Calls for one stream are serialized and
// run on the goroutine that delivered the reading; implementations must not call back
// into the pipeline and should hand work off to their own goroutine if it is slow.
type Observer interface {
	OnSampleRecorded(rec Record)
	OnError(err error)
	OnStateChanged(st Status)
}

// ObserverFuncs implements Observer with optional callbacks.
type ObserverFuncs struct {
	Sample func(Record)
	Error  func(error)
	State  func(Status)
}

func (o ObserverFuncs) OnSampleRecorded(rec Record) {
	if o.Sample != nil {
		o.Sample(rec)
	}
}

func (o ObserverFuncs) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

func (o ObserverFuncs) OnStateChanged(st Status) {
	if o.State != nil {
		o.State(st)
	}
}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (obs Observers) OnSampleRecorded(rec Record) {
	for _, o := range obs {
		o.OnSampleRecorded(rec)
	}
}

func (obs Observers) OnError(err error) {
	for _, o := range obs {
		o.OnError(err)
	}
}

func (obs Observers) OnStateChanged(st Status) {
	for _, o := range obs {
		o.OnStateChanged(st)
	}
}

// Metrics receives pipeline counters. See internal/metrics for the Prometheus version.
type Metrics interface {
	Accepted(stream string, delta int64)
	RateLimited(stream string)
	Ignored(stream string)
	WriteFailed(stream string)
	SetActive(stream string, active bool)
}

type nopMetrics struct{}

func (nopMetrics) Accepted(string, int64) {}
func (nopMetrics) RateLimited(string)     {}
func (nopMetrics) Ignored(string)         {}
func (nopMetrics) WriteFailed(string)     {}
func (nopMetrics) SetActive(string, bool) {}
