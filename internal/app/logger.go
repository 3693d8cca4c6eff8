// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/relabs-tech/sensor_logger/internal/config"
	"github.com/relabs-tech/sensor_logger/internal/csvlog"
	"github.com/relabs-tech/sensor_logger/internal/metrics"
	"github.com/relabs-tech/sensor_logger/internal/sampling"
	"github.com/relabs-tech/sensor_logger/internal/source"
	"github.com/relabs-tech/sensor_logger/internal/streams"
)

var (
	// ErrUnknownStream is returned for stream ids the logger has no pipeline for.
	ErrUnknownStream = errors.New("unknown stream")
	// ErrUnsupported is returned when a stream's source cannot perform an operation.
	ErrUnsupported = errors.New("not supported by source")
)

// coldStarter is implemented by sources that can reset their receiver, see
// source.NMEA.ColdStart.
type coldStarter interface {
	ColdStart() error
}

// LoggerOptions wires a Logger. Zero values are filled from the config.
type LoggerOptions struct {
	// Observers are notified by every pipeline.
	Observers []sampling.Observer
	// Sources overrides the configured source of a stream.
	Sources map[string]sampling.Source
	// Registry receives the sampling metrics; a fresh one is created when nil.
	Registry *prometheus.Registry
	Now      func() time.Time
	Location *time.Location
}

// Logger owns one sampling pipeline per configured stream together with the
// sources feeding them.
type Logger struct {
	cfg       *config.Config
	registry  *prometheus.Registry
	order     []string
	pipelines map[string]*sampling.Pipeline
	sources   map[string]sampling.Source

	mu      sync.Mutex
	closers []io.Closer
	client  mqtt.Client
}

// NewLogger builds the pipelines for every stream whose source is not "none".
// Nothing is opened or subscribed until a stream is started.
func NewLogger(cfg *config.Config, opts LoggerOptions) (*Logger, error) {
	l := &Logger{
		cfg:       cfg,
		registry:  opts.Registry,
		pipelines: make(map[string]*sampling.Pipeline),
		sources:   make(map[string]sampling.Source),
	}
	if l.registry == nil {
		l.registry = prometheus.NewRegistry()
		l.registry.MustRegister(collectors.NewGoCollector())
	}
	prom := metrics.NewProm(l.registry)
	observer := sampling.Observers(opts.Observers)

	for _, stream := range streams.All {
		src, ok := opts.Sources[stream]
		if !ok {
			var err error
			if src, err = l.sourceFor(stream); err != nil {
				l.Close()
				return nil, err
			}
		}
		if src == nil {
			continue
		}

		path := filepath.Join(cfg.LogDir, cfg.LogFileFor(stream))
		layout := l.layoutFor(stream)
		sinkOpts := csvlog.Options{MinFreeBytes: uint64(cfg.LogMinFreeMB) << 20}
		if cfg.LogWriteHeader {
			sinkOpts.Header = layout.Header()
		}

		p, err := sampling.NewPipeline(sampling.Options{
			Layout:    layout,
			MinPeriod: time.Duration(cfg.SamplingPeriodFor(stream)) * time.Millisecond,
			Source:    src,
			Open: func() (sampling.RowWriter, error) {
				s, err := csvlog.Open(path, sinkOpts)
				if err != nil {
					return nil, err
				}
				log.Printf("logger: %s logging to %s", stream, path)
				return s, nil
			},
			Observer: observer,
			Metrics:  prom,
			Now:      opts.Now,
			Location: opts.Location,
		})
		if err != nil {
			l.Close()
			return nil, err
		}
		l.order = append(l.order, stream)
		l.pipelines[stream] = p
		l.sources[stream] = src
	}

	if len(l.order) == 0 {
		l.Close()
		return nil, sampling.NewError(sampling.KindConfiguration, "", "new logger",
			errors.New("no stream has a source configured"))
	}
	log.Printf("logger: streams %v", l.order)
	return l, nil
}

func (l *Logger) layoutFor(stream string) sampling.Layout {
	switch stream {
	case streams.Barometer:
		return streams.BarometerLayout{ReferenceMbar: l.cfg.ReferencePressureMbar}
	case streams.Location:
		return streams.LocationLayout{}
	case streams.Light:
		return streams.LightLayout{}
	default:
		return streams.ActivityLayout{}
	}
}

// sourceFor creates the configured source of stream; nil means the stream is disabled.
// Sources are created without touching hardware or the network, except the MQTT
// client, which connects once and is shared by all MQTT streams.
func (l *Logger) sourceFor(stream string) (sampling.Source, error) {
	cfg := l.cfg
	switch kind := cfg.SourceFor(stream); kind {
	case config.SourceNone:
		return nil, nil
	case config.SourceMock:
		return source.NewMock(time.Duration(cfg.MockInterval) * time.Millisecond), nil
	case config.SourceBMP:
		bmp := source.NewBMP(cfg.BMPSPIDevice, time.Duration(cfg.BMPPollInterval)*time.Millisecond)
		l.closers = append(l.closers, bmp)
		return bmp, nil
	case config.SourceNMEA:
		return source.NewNMEA(cfg.GPSSerialPort, cfg.GPSBaudRate), nil
	case config.SourceMQTT:
		if l.client == nil {
			client, err := source.Connect(cfg.MQTTBroker, cfg.MQTTClientID)
			if err != nil {
				return nil, sampling.NewError(sampling.KindConfiguration, stream, "connect", err)
			}
			l.client = client
		}
		topics := make(map[string]string, len(streams.All))
		for _, s := range streams.All {
			topics[s] = cfg.TopicFor(s)
		}
		return source.NewMQTT(l.client, topics), nil
	default:
		return nil, sampling.NewError(sampling.KindConfiguration, stream, "source",
			fmt.Errorf("unknown source %q", kind))
	}
}

// Registry returns the registry holding the sampling metrics.
func (l *Logger) Registry() *prometheus.Registry { return l.registry }

// Streams returns the configured stream ids in display order.
func (l *Logger) Streams() []string { return l.order }

func (l *Logger) pipeline(stream string) (*sampling.Pipeline, error) {
	p, ok := l.pipelines[stream]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStream, stream)
	}
	return p, nil
}

// StartStream activates sampling of stream.
func (l *Logger) StartStream(stream string) error {
	p, err := l.pipeline(stream)
	if err != nil {
		return err
	}
	return p.Start()
}

// StopStream deactivates sampling of stream.
func (l *Logger) StopStream(stream string) error {
	p, err := l.pipeline(stream)
	if err != nil {
		return err
	}
	return p.Stop()
}

// ColdStart asks the source of stream to drop its aiding data, so that the first
// reading delay of the next session covers a full acquisition.
func (l *Logger) ColdStart(stream string) error {
	if _, err := l.pipeline(stream); err != nil {
		return err
	}
	cs, ok := l.sources[stream].(coldStarter)
	if !ok {
		return fmt.Errorf("%s cold start: %w", stream, ErrUnsupported)
	}
	if err := cs.ColdStart(); err != nil {
		return sampling.NewError(sampling.KindConfiguration, stream, "cold start", err)
	}
	log.Printf("logger: %s receiver cold started", stream)
	return nil
}

// StatusOf returns the state of one stream.
func (l *Logger) StatusOf(stream string) (sampling.Status, error) {
	p, err := l.pipeline(stream)
	if err != nil {
		return sampling.Status{}, err
	}
	return p.Status(), nil
}

// Status returns the state of every stream.
func (l *Logger) Status() []sampling.Status {
	out := make([]sampling.Status, 0, len(l.order))
	for _, s := range l.order {
		out = append(out, l.pipelines[s].Status())
	}
	return out
}

// Autostart starts the streams listed in AUTOSTART_STREAMS. Every stream is tried;
// the errors are joined.
func (l *Logger) Autostart() error {
	var errs []error
	for _, s := range l.cfg.AutostartStreams {
		if err := l.StartStream(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops every stream, closes the logs and releases the sources.
func (l *Logger) Close() error {
	var errs []error
	for _, s := range l.order {
		if err := l.pipelines[s].Close(); err != nil {
			errs = append(errs, err)
		}
	}

	l.mu.Lock()
	closers, client := l.closers, l.client
	l.closers, l.client = nil, nil
	l.mu.Unlock()

	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if client != nil {
		client.Disconnect(250)
	}
	return errors.Join(errs...)
}
