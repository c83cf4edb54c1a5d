package call

// Status is the lifecycle state of the agent's current call.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusRinging      Status = "ringing"
	StatusActive       Status = "active"
	StatusTransferring Status = "transferring"
	StatusEnded        Status = "ended"
)

// Speaker identifies who produced a transcript turn.
type Speaker string

const (
	SpeakerAssistant Speaker = "assistant"
	SpeakerCaller    Speaker = "caller"
)

// Turn is one timestamped utterance in the call transcript.
type Turn struct {
	ID       string  `json:"id"`
	AtSecond int     `json:"atSecond"`
	Speaker  Speaker `json:"speaker"`
	Text     string  `json:"text"`
}

// Session captures the single in-progress call shown to the agent.
type Session struct {
	CallID         string `json:"callId,omitempty"`
	Status         Status `json:"status"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	Transcript     []Turn `json:"transcript"`
	FollowUpAt     string `json:"followUpAt,omitempty"` // 最近一次预约回访时间 (ISO-8601)
}

// NewSession returns the idle session present before any call rings.
func NewSession() Session {
	return Session{Status: StatusIdle, Transcript: make([]Turn, 0)}
}

// Clone returns a copy whose transcript does not alias the receiver's.
func (s Session) Clone() Session {
	out := s
	out.Transcript = append(make([]Turn, 0, len(s.Transcript)), s.Transcript...)
	return out
}
