/*
energy-audit - Energy auditing for wired and wireless loads
Copyright (C) 2026, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/TheCacophonyProject/energy-audit/internal/logging"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var log = logging.NewLogger("info")

// SetLogger replaces the package logger.
func SetLogger(l *logging.Logger) {
	if l != nil {
		log = l
	}
}

// Packets are fire and forget: QoS 0 and never retained, so a lost packet is
// just a gap in the hub's history.
const (
	qos      = 0
	retained = false
)

type LinkConfig struct {
	Broker      string
	Channel     int
	ClientID    string
	TopicPrefix string
}

func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		Broker:      "tcp://energy-hub.local:1883",
		Channel:     1,
		TopicPrefix: "energy-audit",
	}
}

// Topic is where nodeID publishes on the configured channel.
func (c LinkConfig) Topic(nodeID string) string {
	return fmt.Sprintf("%s/%d/%s", strings.TrimSuffix(c.TopicPrefix, "/"), c.Channel, nodeID)
}

func (c LinkConfig) clientOptions(clientID string) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.Broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Errorf("Link connection lost: %v", err)
	})
	return opts
}

// Publisher sends encoded packets from a field node.
type Publisher struct {
	client mqtt.Client
	topic  string
	onSent func(err error)
}

// NewPublisher creates a publisher for nodeID. onSent, if not nil, is called
// from a separate goroutine with the result of every send.
func NewPublisher(cfg LinkConfig, nodeID string, onSent func(err error)) *Publisher {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "energy-audit-" + nodeID
	}
	return newPublisher(mqtt.NewClient(cfg.clientOptions(clientID)), cfg.Topic(nodeID), onSent)
}

func newPublisher(client mqtt.Client, topic string, onSent func(err error)) *Publisher {
	return &Publisher{
		client: client,
		topic:  topic,
		onSent: onSent,
	}
}

func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to link broker: %w", token.Error())
	}
	log.Infof("Publishing on '%s'", p.topic)
	return nil
}

// Send queues the payload and returns without waiting for delivery.
func (p *Publisher) Send(payload []byte) {
	token := p.client.Publish(p.topic, qos, retained, payload)
	go func() {
		token.Wait()
		if p.onSent != nil {
			p.onSent(token.Error())
		}
	}()
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// Subscriber receives packets on the hub. The handler runs on the MQTT
// client's goroutine and must not block.
type Subscriber struct {
	client  mqtt.Client
	topic   string
	nominal Nominal
	handle  func(Packet)
}

func NewSubscriber(cfg LinkConfig, nominal Nominal, handle func(Packet)) *Subscriber {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "energy-audit-hub"
	}
	s := &Subscriber{
		topic:   cfg.Topic("+"),
		nominal: nominal,
		handle:  handle,
	}
	opts := cfg.clientOptions(clientID)
	opts.SetOnConnectHandler(s.onConnect)
	s.client = mqtt.NewClient(opts)
	return s
}

func (s *Subscriber) Connect() error {
	token := s.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to link broker: %w", token.Error())
	}
	return nil
}

// onConnect subscribes on every (re)connect as the session is not kept.
func (s *Subscriber) onConnect(client mqtt.Client) {
	token := client.Subscribe(s.topic, qos, s.onMessage)
	if token.Wait() && token.Error() != nil {
		log.Errorf("Failed to subscribe to '%s': %v", s.topic, token.Error())
		return
	}
	log.Infof("Subscribed to '%s'", s.topic)
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	p, err := Decode(msg.Payload(), s.nominal)
	if err != nil {
		log.Debugf("Dropping packet on '%s': %v", msg.Topic(), err)
		return
	}
	s.handle(p)
}

func (s *Subscriber) Close() {
	s.client.Disconnect(250)
}
