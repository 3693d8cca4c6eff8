// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/relabs-tech/sensor_logger/internal/config"
	"github.com/relabs-tech/sensor_logger/internal/env"
	"github.com/relabs-tech/sensor_logger/internal/gps"
	"github.com/relabs-tech/sensor_logger/internal/sampling"
	"github.com/relabs-tech/sensor_logger/internal/streams"
)

// feed is a source whose readings are pushed by the test.
type feed struct {
	mu  sync.Mutex
	fns map[string]func(sampling.Reading)
}

func newFeed() *feed {
	return &feed{fns: make(map[string]func(sampling.Reading))}
}

func (f *feed) Subscribe(stream string, fn func(sampling.Reading)) (sampling.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fns[stream] = fn
	return sampling.UnsubscribeFunc(func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.fns, stream)
		return nil
	}), nil
}

func (f *feed) push(r sampling.Reading) {
	f.mu.Lock()
	fn := f.fns[r.Stream]
	f.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}

func baro(ts int64, mbar float64) sampling.Reading {
	return sampling.Reading{
		Stream:    streams.Barometer,
		Source:    "pressure",
		Timestamp: ts,
		Payload:   env.Sample{Sensor: "test", PressureMbar: mbar},
	}
}

func fixAt(ts int64) sampling.Reading {
	return sampling.Reading{
		Stream:    streams.Location,
		Source:    "gps",
		Timestamp: ts,
		Payload:   gps.Fix{Provider: "gps", Latitude: 1.5, Longitude: 103.25, Accuracy: 4, TimeMs: ts},
	}
}

type loggerFixture struct {
	cfg    *config.Config
	feed   *feed
	logger *Logger
}

func newLoggerFixture(t *testing.T, observers ...sampling.Observer) *loggerFixture {
	t.Helper()
	cfg := config.Default()
	cfg.LogDir = filepath.Join(t.TempDir(), "BaroGps")
	cfg.LogWriteHeader = true

	f := newFeed()
	l, err := NewLogger(cfg, LoggerOptions{
		Observers: observers,
		Sources:   map[string]sampling.Source{streams.Barometer: f, streams.Location: f},
		Now:       func() time.Time { return time.UnixMilli(1000) },
		Location:  time.UTC,
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return &loggerFixture{cfg: cfg, feed: f, logger: l}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestLoggerWritesBarometerLog(t *testing.T) {
	fx := newLoggerFixture(t)
	l := fx.logger

	if got := l.Streams(); len(got) != 2 || got[0] != streams.Barometer || got[1] != streams.Location {
		t.Fatalf("streams %v", got)
	}
	if err := l.StartStream(streams.Barometer); err != nil {
		t.Fatalf("start: %v", err)
	}
	fx.feed.push(baro(1000, 1013.25))
	fx.feed.push(baro(1200, 1013.25)) // inside the 1 s period
	fx.feed.push(baro(2000, 1013.25))
	fx.feed.push(fixAt(2000)) // location is not started

	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := readLines(t, filepath.Join(fx.cfg.LogDir, "Barometer.csv"))
	want := []string{
		"sequenceNumber,unixTimestampMs,humanReadableTime,millibar,altitudeMetres,deltaFromPreviousMs,firstReadingDelayMs",
		"1,1000,1970-01-01-12-00-01AM,1013.25,0,-1,0",
		"2,2000,1970-01-01-12-00-02AM,1013.25,0,1000,0",
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Fatalf("log:\n%s\nwant:\n%s", strings.Join(lines, "\n"), strings.Join(want, "\n"))
	}
	if _, err := os.Stat(filepath.Join(fx.cfg.LogDir, "GPS.csv")); !os.IsNotExist(err) {
		t.Errorf("location log created without starting the stream: %v", err)
	}

	reg := l.Registry()
	if n, _ := testutil.GatherAndCount(reg, "sensorlog_samples_accepted_total"); n != 1 {
		t.Errorf("accepted series %d", n)
	}
}

func TestLoggerStartStopStatus(t *testing.T) {
	fx := newLoggerFixture(t)
	l := fx.logger

	if err := l.StartStream(streams.Location); err != nil {
		t.Fatalf("start: %v", err)
	}
	fx.feed.push(fixAt(1500))

	st, err := l.StatusOf(streams.Location)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Active || st.Samples != 1 || st.FirstDelay != 500 || st.LastTimestamp != 1500 {
		t.Errorf("status %+v", st)
	}

	if err := l.StopStream(streams.Location); err != nil {
		t.Fatalf("stop: %v", err)
	}
	all := l.Status()
	if len(all) != 2 || all[1].Active {
		t.Errorf("statuses %+v", all)
	}

	lines := readLines(t, filepath.Join(fx.cfg.LogDir, "GPS.csv"))
	if len(lines) != 2 || lines[1] != "1,1500,1970-01-01-12-00-01AM,gps,1.5,103.25,4,-1,-1,-1,-1,500" {
		t.Errorf("location log %q", lines)
	}
}

func TestLoggerUnknownStream(t *testing.T) {
	fx := newLoggerFixture(t)
	for _, op := range []func(string) error{fx.logger.StartStream, fx.logger.StopStream} {
		if err := op(streams.Light); !errors.Is(err, ErrUnknownStream) {
			t.Errorf("light: %v, want ErrUnknownStream", err)
		}
	}
	if _, err := fx.logger.StatusOf("sonar"); !errors.Is(err, ErrUnknownStream) {
		t.Errorf("sonar: %v", err)
	}
}

func TestLoggerAutostart(t *testing.T) {
	fx := newLoggerFixture(t)
	fx.cfg.AutostartStreams = []string{streams.Location, streams.Light}

	err := fx.logger.Autostart()
	if !errors.Is(err, ErrUnknownStream) {
		t.Errorf("autostart error %v, want the light stream to be reported", err)
	}
	if st, _ := fx.logger.StatusOf(streams.Location); !st.Active {
		t.Error("location not started")
	}
}

func TestLoggerStorageUnavailable(t *testing.T) {
	fx := newLoggerFixture(t)
	// A file where the log directory should be.
	if err := os.WriteFile(fx.cfg.LogDir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := fx.logger.StartStream(streams.Barometer)
	if sampling.KindOf(err) != sampling.KindStorageUnavailable {
		t.Fatalf("start error %v, want storage unavailable", err)
	}
	if st, _ := fx.logger.StatusOf(streams.Barometer); st.Active {
		t.Error("stream active without a log")
	}
}

func TestNewLoggerWithoutSources(t *testing.T) {
	cfg := config.Default()
	cfg.LogDir = t.TempDir()
	cfg.BarometerSource = config.SourceNone
	cfg.LocationSource = config.SourceNone

	_, err := NewLogger(cfg, LoggerOptions{})
	if sampling.KindOf(err) != sampling.KindConfiguration {
		t.Fatalf("error %v, want configuration", err)
	}
}

func TestNewLoggerBuildsMockSources(t *testing.T) {
	cfg := config.Default()
	cfg.LogDir = t.TempDir()
	cfg.MockInterval = 5
	for _, s := range []*string{&cfg.BarometerSource, &cfg.LocationSource, &cfg.LightSource, &cfg.ActivitySource} {
		*s = config.SourceMock
	}

	l, err := NewLogger(cfg, LoggerOptions{})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer l.Close()
	if len(l.Streams()) != 4 {
		t.Fatalf("streams %v", l.Streams())
	}

	if err := l.StartStream(streams.Light); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if st, _ := l.StatusOf(streams.Light); st.Samples > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no light samples from the mock source")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// coldFeed is a feed whose receiver can be cold started.
type coldFeed struct {
	*feed
	starts int
	err    error
}

func (f *coldFeed) ColdStart() error {
	f.starts++
	return f.err
}

func TestLoggerColdStart(t *testing.T) {
	cfg := config.Default()
	cfg.LogDir = t.TempDir()
	gpsFeed := &coldFeed{feed: newFeed()}
	l, err := NewLogger(cfg, LoggerOptions{
		Sources: map[string]sampling.Source{streams.Barometer: newFeed(), streams.Location: gpsFeed},
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer l.Close()

	if err := l.ColdStart(streams.Location); err != nil {
		t.Fatalf("cold start: %v", err)
	}
	if gpsFeed.starts != 1 {
		t.Errorf("receiver cold started %d times", gpsFeed.starts)
	}
	if err := l.ColdStart(streams.Barometer); !errors.Is(err, ErrUnsupported) {
		t.Errorf("barometer: %v, want ErrUnsupported", err)
	}
	if err := l.ColdStart(streams.Light); !errors.Is(err, ErrUnknownStream) {
		t.Errorf("light: %v, want ErrUnknownStream", err)
	}

	gpsFeed.err = errors.New("port busy")
	if err := l.ColdStart(streams.Location); sampling.KindOf(err) != sampling.KindConfiguration {
		t.Errorf("failed cold start: %v", err)
	}
}
