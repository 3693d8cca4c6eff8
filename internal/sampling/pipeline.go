// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sampling

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Options configures a Pipeline.
type Options struct {
	Layout Layout
	// MinPeriod is the target sampling period; zero accepts every reading.
	MinPeriod time.Duration
	Source    Source
	// Open opens the stream's log. It is called on the first Start only; the writer is
	// kept append-open across Stop/Start and released by Close.
	Open     func() (RowWriter, error)
	Observer Observer
	Metrics  Metrics
	// Now defaults to time.Now. Tests inject a fake clock here.
	Now func() time.Time
	// Location is used for the human readable time column; defaults to time.Local.
	Location *time.Location
}

// Pipeline samples one stream into one log.
//
// Start and Stop are serialized with each other; OnReading may be called from any
// goroutine at any time and is ignored while the pipeline is inactive.
type Pipeline struct {
	stream    string
	layout    Layout
	minPeriod int64
	source    Source
	open      func() (RowWriter, error)
	observer  Observer
	metrics   Metrics
	now       func() time.Time
	loc       *time.Location

	ctrl sync.Mutex // Start/Stop/Close

	mu      sync.Mutex // everything below
	active  bool
	session string
	tracker TimingTracker
	writer  RowWriter
	sub     Subscription
	errLog  *rate.Limiter
}

// NewPipeline validates opts and returns an inactive pipeline.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Layout == nil {
		return nil, errors.New("sampling: layout is required")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("sampling: %s: source is required", opts.Layout.Stream())
	}
	if opts.Open == nil {
		return nil, fmt.Errorf("sampling: %s: log opener is required", opts.Layout.Stream())
	}
	p := &Pipeline{
		stream:    opts.Layout.Stream(),
		layout:    opts.Layout,
		minPeriod: opts.MinPeriod.Milliseconds(),
		source:    opts.Source,
		open:      opts.Open,
		observer:  opts.Observer,
		metrics:   opts.Metrics,
		now:       opts.Now,
		loc:       opts.Location,
		errLog:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
	if p.observer == nil {
		p.observer = ObserverFuncs{}
	}
	if p.metrics == nil {
		p.metrics = nopMetrics{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.loc == nil {
		p.loc = time.Local
	}
	return p, nil
}

// Stream returns the stream id.
func (p *Pipeline) Stream() string { return p.stream }

// Start activates sampling. It is a no-op when already active.
//
// A log that cannot be opened yields a KindStorageUnavailable error and a source that
// cannot be subscribed a KindConfiguration error; in both cases the pipeline stays inactive.
func (p *Pipeline) Start() error {
	p.ctrl.Lock()
	defer p.ctrl.Unlock()

	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return nil
	}
	if p.writer == nil {
		w, err := p.open()
		if err != nil {
			p.mu.Unlock()
			err = tag(KindStorageUnavailable, p.stream, "open log", err)
			p.observer.OnError(err)
			return err
		}
		p.writer = w
	}
	p.mu.Unlock()

	// The source may deliver synchronously from Subscribe, so no lock is held here.
	// Such readings arrive while the pipeline is still inactive and are dropped.
	sub, err := p.source.Subscribe(p.stream, p.OnReading)
	if err != nil {
		err = NewError(KindConfiguration, p.stream, "subscribe", err)
		p.observer.OnError(err)
		return err
	}

	p.mu.Lock()
	p.tracker.OnActivate(p.now().UnixMilli())
	p.session = uuid.NewString()
	p.active = true
	p.sub = sub
	st := p.statusLocked()
	p.mu.Unlock()

	p.metrics.SetActive(p.stream, true)
	log.Printf("%s: sampling started (session %s)", p.stream, st.Session)
	p.observer.OnStateChanged(st)
	return nil
}

// Stop deactivates sampling. It is a no-op when inactive. The log stays open.
func (p *Pipeline) Stop() error {
	p.ctrl.Lock()
	defer p.ctrl.Unlock()
	return p.stopLocked()
}

func (p *Pipeline) stopLocked() error {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return nil
	}
	p.active = false
	sub := p.sub
	p.sub = nil
	st := p.statusLocked()
	p.mu.Unlock()

	// Unsubscribe waits for the source goroutine, which may be blocked in OnReading.
	var err error
	if sub != nil {
		if uerr := sub.Unsubscribe(); uerr != nil {
			err = fmt.Errorf("%s: unsubscribe: %w", p.stream, uerr)
			log.Printf("%v", err)
		}
	}

	p.metrics.SetActive(p.stream, false)
	log.Printf("%s: sampling stopped after %d samples", p.stream, st.Samples)
	p.observer.OnStateChanged(st)
	return err
}

// Close stops sampling and releases the log. Close is safe to call more than once.
func (p *Pipeline) Close() error {
	p.ctrl.Lock()
	defer p.ctrl.Unlock()

	err := p.stopLocked()

	p.mu.Lock()
	w := p.writer
	p.writer = nil
	p.mu.Unlock()

	if w != nil {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = NewError(KindIO, p.stream, "close log", cerr)
		}
	}
	return err
}

// OnReading processes one raw reading. Rejected and foreign readings leave no trace
// besides the metrics counters.
func (p *Pipeline) OnReading(r Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return
	}
	if r.Stream != p.stream {
		p.metrics.Ignored(p.stream)
		return
	}
	prev, ok := p.tracker.Previous()
	if !ShouldAccept(prev, ok, r.Timestamp, p.minPeriod) {
		p.metrics.RateLimited(p.stream)
		return
	}
	cols, err := p.layout.Columns(r)
	if err != nil {
		p.metrics.Ignored(p.stream)
		return
	}

	seq, delta, firstDelay := p.tracker.OnAccepted(r.Timestamp)
	rec := Record{
		Stream:     p.stream,
		Session:    p.session,
		Seq:        seq,
		Timestamp:  r.Timestamp,
		HumanTime:  FormatHumanTime(r.Timestamp, p.loc),
		Source:     r.Source,
		Columns:    cols,
		Delta:      delta,
		FirstDelay: firstDelay,
		Payload:    r.Payload,
	}
	p.metrics.Accepted(p.stream, delta)

	if err := p.writer.WriteRow(rec.Row()); err != nil {
		// The sample is counted either way; only persistence failed.
		err = tag(KindIO, p.stream, "write row", err)
		p.metrics.WriteFailed(p.stream)
		if p.errLog.Allow() {
			log.Printf("%s: sample %d not logged: %v", p.stream, seq, err)
		}
		p.observer.OnError(err)
		return
	}
	p.observer.OnSampleRecorded(rec)
}

// Active reports whether the pipeline is sampling.
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Status returns a snapshot of the pipeline state.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Pipeline) statusLocked() Status {
	st := Status{
		Stream:        p.stream,
		Active:        p.active,
		Session:       p.session,
		Samples:       p.tracker.Count(),
		FirstDelay:    Unavailable,
		LastTimestamp: Unavailable,
		MinPeriodMs:   p.minPeriod,
	}
	if d, ok := p.tracker.FirstDelay(); ok {
		st.FirstDelay = d
	}
	if ts, ok := p.tracker.Previous(); ok {
		st.LastTimestamp = ts
	}
	return st
}
