/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus distributes showrunner events between instances.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/friendsincode/showrunner/internal/events"
	"github.com/google/uuid"
)

// subscribedTypes lists the event types re-subscribed after a reconnect.
var subscribedTypes = []events.EventType{
	events.EventEventCreated,
	events.EventConfigUpdated,
	events.EventProgramCreated,
	events.EventProgramUpdated,
	events.EventProgramDeleted,
	events.EventProgramStarted,
	events.EventProgramCompleted,
	events.EventProgramPostponed,
	events.EventLiveDelay,
	events.EventScheduleRecalculated,
	events.EventScheduleConflict,
}

// envelope is the wire format shared by the Redis and NATS buses.
type envelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalEnvelope(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(envelope{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalEnvelope(data []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	return &env, nil
}

// NewNodeID returns a node identifier used to drop echoed messages.
func NewNodeID(instanceID string) string {
	if instanceID != "" {
		return instanceID + "-" + uuid.NewString()[:8]
	}
	return uuid.NewString()
}
