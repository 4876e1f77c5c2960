/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package display

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// MQTTSink publishes display messages to an MQTT broker.
type MQTTSink struct {
	client mqtt.Client
	logger zerolog.Logger
}

// NewMQTTSink connects to broker and returns a sink. The client reconnects on
// its own after the first successful connection.
func NewMQTTSink(broker, clientID string, logger zerolog.Logger) (*MQTTSink, error) {
	logger = logger.With().Str("component", "display_mqtt").Str("broker", broker).Logger()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(publishTimeout)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info().Msg("connected to mqtt broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", broker, err)
	}
	return &MQTTSink{client: client, logger: logger}, nil
}

// Publish sends a retained message so displays that join late see the current state.
func (s *MQTTSink) Publish(topic string, payload []byte) error {
	token := s.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
	s.logger.Info().Msg("mqtt client disconnected")
}
