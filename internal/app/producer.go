// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/time/rate"

	"github.com/relabs-tech/sensor_logger/internal/config"
	"github.com/relabs-tech/sensor_logger/internal/sampling"
	"github.com/relabs-tech/sensor_logger/internal/source"
	"github.com/relabs-tech/sensor_logger/internal/streams"
)

// Publisher forwards raw readings to MQTT, one topic per stream, for a logger running
// elsewhere. It publishes readings, never log rows.
type Publisher struct {
	client mqtt.Client
	topics map[string]string

	published atomic.Int64
	errLog    *rate.Limiter
}

// NewPublisher returns a publisher on client.
func NewPublisher(client mqtt.Client, topics map[string]string) *Publisher {
	return &Publisher{
		client: client,
		topics: topics,
		errLog: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// Publish sends r to its stream topic. Failures are logged, throttled.
func (p *Publisher) Publish(r sampling.Reading) {
	if err := p.publish(r); err != nil && p.errLog.Allow() {
		log.Printf("producer: %v", err)
	}
}

func (p *Publisher) publish(r sampling.Reading) error {
	topic, ok := p.topics[r.Stream]
	if !ok {
		return fmt.Errorf("no topic for stream %q", r.Stream)
	}
	payload, err := streams.Encode(r)
	if err != nil {
		return err
	}
	token := p.client.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.published.Add(1)
	return nil
}

// Published returns the number of readings sent.
func (p *Publisher) Published() int64 { return p.published.Load() }

// localSource returns the on-board source configured for stream.
func localSource(cfg *config.Config, stream string) (sampling.Source, io.Closer, error) {
	switch kind := cfg.SourceFor(stream); kind {
	case config.SourceMock:
		return source.NewMock(time.Duration(cfg.MockInterval) * time.Millisecond), nil, nil
	case config.SourceBMP:
		bmp := source.NewBMP(cfg.BMPSPIDevice, time.Duration(cfg.BMPPollInterval)*time.Millisecond)
		return bmp, bmp, nil
	case config.SourceNMEA:
		return source.NewNMEA(cfg.GPSSerialPort, cfg.GPSBaudRate), nil, nil
	default:
		return nil, nil, fmt.Errorf("stream %s: producer needs a local source, got %q", stream, kind)
	}
}

// RunProducer publishes the readings of every PRODUCER_STREAMS stream until ctx is done.
func RunProducer(ctx context.Context, cfg *config.Config) error {
	if len(cfg.ProducerStreams) == 0 {
		return errors.New("PRODUCER_STREAMS is empty")
	}

	client, err := source.Connect(cfg.MQTTBroker, cfg.MQTTClientID)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	topics := make(map[string]string, len(cfg.ProducerStreams))
	for _, s := range cfg.ProducerStreams {
		topics[s] = cfg.TopicFor(s)
	}
	pub := NewPublisher(client, topics)

	var (
		subs    []sampling.Subscription
		closers []io.Closer
	)
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		for _, c := range closers {
			c.Close()
		}
	}()

	for _, s := range cfg.ProducerStreams {
		src, closer, err := localSource(cfg, s)
		if err != nil {
			return err
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		sub, err := src.Subscribe(s, pub.Publish)
		if err != nil {
			return fmt.Errorf("stream %s: %w", s, err)
		}
		subs = append(subs, sub)
		log.Printf("producer: publishing %s on %s", s, topics[s])
	}

	<-ctx.Done()
	log.Printf("producer: shutting down after %d readings", pub.Published())
	return nil
}
