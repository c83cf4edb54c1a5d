package call

import (
	"encoding/json"
	"fmt"
)

// Action names a command sent to a realtime backend.
type Action string

const (
	ActionAnswer   Action = "answer"
	ActionEnd      Action = "end"
	ActionTransfer Action = "transfer"
	ActionSchedule Action = "schedule"
)

// Command is the outbound envelope. Transfer carries its target in AgentID.
type Command struct {
	Action  Action `json:"action"`
	CallID  string `json:"callId"`
	AgentID string `json:"agentId,omitempty"`
	WhenISO string `json:"whenISO,omitempty"`
}

// Envelope is the inbound event envelope.
type Envelope struct {
	Event   EventKind       `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeEvent wraps evt into its wire envelope.
func EncodeEvent(evt Event) (Envelope, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", evt.Kind(), err)
	}
	return Envelope{Event: evt.Kind(), Payload: payload}, nil
}
