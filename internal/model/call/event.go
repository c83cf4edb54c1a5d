package call

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEventKind is returned when an envelope names an event this console does not handle.
var ErrUnknownEventKind = errors.New("unknown event kind")

// EventKind names a backend event on the channel and on the wire.
type EventKind string

const (
	KindRinging      EventKind = "call:ringing"
	KindAnswered     EventKind = "call:answered"
	KindEnded        EventKind = "call:ended"
	KindTranscript   EventKind = "call:transcript"
	KindTimer        EventKind = "call:timer"
	KindTransferring EventKind = "call:transferring"
	KindScheduled    EventKind = "call:scheduled"
)

// EventKinds lists every kind a backend can emit.
func EventKinds() []EventKind {
	return []EventKind{
		KindRinging,
		KindAnswered,
		KindEnded,
		KindTranscript,
		KindTimer,
		KindTransferring,
		KindScheduled,
	}
}

// Event is implemented by every backend event payload.
type Event interface {
	Kind() EventKind
	Call() string
}

// RingingEvent announces a new inbound call.
type RingingEvent struct {
	CallID string `json:"callId"`
	Caller string `json:"caller,omitempty"`
}

// AnsweredEvent reports that the call (or its transfer target) picked up.
type AnsweredEvent struct {
	CallID string `json:"callId"`
}

// EndedEvent reports call termination.
type EndedEvent struct {
	CallID string `json:"callId"`
	Reason string `json:"reason,omitempty"`
}

// TranscriptEvent carries one new transcript turn.
type TranscriptEvent struct {
	CallID string `json:"callId,omitempty"`
	Turn   Turn   `json:"turn"`
}

// TimerEvent carries the backend's view of elapsed talk time.
type TimerEvent struct {
	CallID         string `json:"callId,omitempty"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
}

// TransferringEvent reports a hand-off in progress.
type TransferringEvent struct {
	CallID   string `json:"callId"`
	TargetID string `json:"targetId,omitempty"`
}

// ScheduledEvent confirms a follow-up was booked.
type ScheduledEvent struct {
	CallID  string `json:"callId"`
	WhenISO string `json:"whenISO"`
}

func (RingingEvent) Kind() EventKind      { return KindRinging }
func (AnsweredEvent) Kind() EventKind     { return KindAnswered }
func (EndedEvent) Kind() EventKind        { return KindEnded }
func (TranscriptEvent) Kind() EventKind   { return KindTranscript }
func (TimerEvent) Kind() EventKind        { return KindTimer }
func (TransferringEvent) Kind() EventKind { return KindTransferring }
func (ScheduledEvent) Kind() EventKind    { return KindScheduled }

func (e RingingEvent) Call() string      { return e.CallID }
func (e AnsweredEvent) Call() string     { return e.CallID }
func (e EndedEvent) Call() string        { return e.CallID }
func (e TranscriptEvent) Call() string   { return e.CallID }
func (e TimerEvent) Call() string        { return e.CallID }
func (e TransferringEvent) Call() string { return e.CallID }
func (e ScheduledEvent) Call() string    { return e.CallID }

// DecodeEvent turns a wire payload into the typed event for kind.
func DecodeEvent(kind EventKind, raw json.RawMessage) (Event, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	var (
		evt Event
		err error
	)
	switch kind {
	case KindRinging:
		var e RingingEvent
		err = json.Unmarshal(raw, &e)
		evt = e
	case KindAnswered:
		var e AnsweredEvent
		err = json.Unmarshal(raw, &e)
		evt = e
	case KindEnded:
		var e EndedEvent
		err = json.Unmarshal(raw, &e)
		evt = e
	case KindTranscript:
		var e TranscriptEvent
		err = json.Unmarshal(raw, &e)
		evt = e
	case KindTimer:
		var e TimerEvent
		err = json.Unmarshal(raw, &e)
		evt = e
	case KindTransferring:
		var e TransferringEvent
		err = json.Unmarshal(raw, &e)
		evt = e
	case KindScheduled:
		var e ScheduledEvent
		err = json.Unmarshal(raw, &e)
		evt = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return evt, nil
}
