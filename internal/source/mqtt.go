// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package source

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/relabs-tech/sensor_logger/internal/sampling"
	"github.com/relabs-tech/sensor_logger/internal/streams"
)

// Connect opens an MQTT client on broker. An empty clientID gets a random one.
func Connect(broker, clientID string) (mqtt.Client, error) {
	if clientID == "" {
		clientID = "sensorlog-" + uuid.NewString()[:8]
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", broker, token.Error())
	}
	log.Printf("mqtt: connected to broker at %s as %s", broker, clientID)
	return client, nil
}

// MQTT receives JSON encoded readings, one topic per stream.
type MQTT struct {
	client mqtt.Client
	topics map[string]string
	qos    byte
	now    func() time.Time
}

// NewMQTT returns a source reading stream topics on client. Streams missing from
// topics cannot be subscribed.
func NewMQTT(client mqtt.Client, topics map[string]string) *MQTT {
	return &MQTT{client: client, topics: topics, now: time.Now}
}

func (m *MQTT) Subscribe(stream string, fn func(sampling.Reading)) (sampling.Subscription, error) {
	topic, ok := m.topics[stream]
	if !ok || topic == "" {
		return nil, fmt.Errorf("mqtt: no topic for stream %q", stream)
	}

	// Handlers hold mu for reading; Unsubscribe takes it for writing to wait them out.
	var (
		mu     sync.RWMutex
		closed bool
	)
	decodeLog := rate.NewLimiter(rate.Every(5*time.Second), 1)
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		mu.RLock()
		defer mu.RUnlock()
		if closed {
			return
		}
		r, err := streams.Decode(stream, msg.Payload(), m.now())
		if err != nil {
			if decodeLog.Allow() {
				log.Printf("mqtt: dropping message on %s: %v", msg.Topic(), err)
			}
			return
		}
		fn(r)
	}

	token := m.client.Subscribe(topic, m.qos, handler)
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT subscribe %s: %w", topic, err)
	}
	log.Printf("mqtt: subscribed to %s for %s", topic, stream)

	return sampling.UnsubscribeFunc(func() error {
		mu.Lock()
		already := closed
		closed = true
		mu.Unlock()
		if already {
			return nil
		}
		token := m.client.Unsubscribe(topic)
		token.Wait()
		return token.Error()
	}), nil
}
