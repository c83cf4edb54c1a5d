package backend

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/hmo-callconsole/backend/internal/model/call"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/service/clock"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/service/events"
)

const defaultEndReason = "Call ended by agent"

// SimulatorConfig tunes the fabricated event cadence.
type SimulatorConfig struct {
	TickInterval    time.Duration
	TranscriptEvery int
	TransferDelay   time.Duration
	EndReason       string
	Script          []string
	Targets         call.TargetStore
}

// DefaultScript holds the canned assistant lines emitted while a simulated call is active.
func DefaultScript() []string {
	return []string{
		"I've pulled up the member's plan and confirmed their coverage is active.",
		"The outpatient claim from last week is still pending pre-authorization review.",
		"Their primary care provider is in network, so the standard copay applies.",
		"I can send the enrollee a summary of benefits by email after this call.",
	}
}

func (c SimulatorConfig) withDefaults() SimulatorConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.TranscriptEvery <= 0 {
		c.TranscriptEvery = 8
	}
	if c.TransferDelay <= 0 {
		c.TransferDelay = 900 * time.Millisecond
	}
	if c.EndReason == "" {
		c.EndReason = defaultEndReason
	}
	if len(c.Script) == 0 {
		c.Script = DefaultScript()
	}
	return c
}

// Simulator fabricates a plausible call lifecycle for environments without telephony.
type Simulator struct {
	clock  clock.Clock
	cfg    SimulatorConfig
	events *events.Channel

	mu        sync.Mutex
	callID    string
	live      bool
	ticks     int
	timer     clock.Timer
	gen       uint64
	scriptPos int
}

// NewSimulator returns a simulator driven by clk.
func NewSimulator(clk clock.Clock, cfg SimulatorConfig) *Simulator {
	return &Simulator{
		clock:  clk,
		cfg:    cfg.withDefaults(),
		events: events.NewChannel(),
	}
}

// Events returns the simulator's event channel.
func (s *Simulator) Events() *events.Channel {
	return s.events
}

// Ring starts a new inbound call, replacing whatever call was in progress.
func (s *Simulator) Ring(_ context.Context, callID string) {
	s.mu.Lock()
	s.stopTickLocked()
	s.callID = callID
	s.live = true
	s.ticks = 0
	s.mu.Unlock()

	s.events.Publish(call.RingingEvent{CallID: callID})
}

// Answer picks the call up and starts the elapsed-time tick.
func (s *Simulator) Answer(_ context.Context, callID string) {
	s.mu.Lock()
	if !s.matchLocked(callID) {
		s.mu.Unlock()
		log.Printf("[simulator] ignoring answer for unknown call %q", callID)
		return
	}
	s.stopTickLocked()
	s.startTickLocked()
	s.mu.Unlock()

	s.events.Publish(call.AnsweredEvent{CallID: callID})
}

// End stops the tick and terminates the call.
func (s *Simulator) End(_ context.Context, callID string) {
	s.mu.Lock()
	if !s.matchLocked(callID) {
		s.mu.Unlock()
		log.Printf("[simulator] ignoring end for unknown call %q", callID)
		return
	}
	s.stopTickLocked()
	s.live = false
	s.mu.Unlock()

	s.events.Publish(call.EndedEvent{CallID: callID, Reason: s.cfg.EndReason})
}

// Transfer announces a hand-off and has the target pick up after TransferDelay.
func (s *Simulator) Transfer(_ context.Context, callID, targetID string) {
	s.mu.Lock()
	if !s.matchLocked(callID) {
		s.mu.Unlock()
		log.Printf("[simulator] ignoring transfer for unknown call %q", callID)
		return
	}
	at := s.ticks
	s.mu.Unlock()

	s.events.Publish(call.TransferringEvent{CallID: callID, TargetID: targetID})
	s.events.Publish(call.TranscriptEvent{
		CallID: callID,
		Turn:   s.turn(at, fmt.Sprintf("Transferring the caller to %s.", s.targetLabel(targetID))),
	})

	s.clock.AfterFunc(s.cfg.TransferDelay, func() {
		s.mu.Lock()
		if s.callID != callID || !s.live {
			s.mu.Unlock()
			return
		}
		// 转接完成后保证计时仍在运行
		if s.timer == nil {
			s.startTickLocked()
		}
		s.mu.Unlock()

		s.events.Publish(call.AnsweredEvent{CallID: callID})
	})
}

// Schedule books a follow-up and narrates it in the transcript.
func (s *Simulator) Schedule(_ context.Context, callID, whenISO string) {
	s.mu.Lock()
	if callID == "" || s.callID != callID {
		s.mu.Unlock()
		log.Printf("[simulator] ignoring schedule for unknown call %q", callID)
		return
	}
	at := s.ticks
	s.mu.Unlock()

	s.events.Publish(call.TranscriptEvent{
		CallID: callID,
		Turn:   s.turn(at, fmt.Sprintf("Follow-up scheduled for %s.", humanTime(whenISO))),
	})
	s.events.Publish(call.ScheduledEvent{CallID: callID, WhenISO: whenISO})
}

// Close stops any running tick and drops the current call.
func (s *Simulator) Close() error {
	s.mu.Lock()
	s.stopTickLocked()
	s.live = false
	s.mu.Unlock()
	return nil
}

func (s *Simulator) matchLocked(callID string) bool {
	return callID != "" && s.live && s.callID == callID
}

func (s *Simulator) startTickLocked() {
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.cfg.TickInterval, func() { s.tick(gen) })
}

func (s *Simulator) stopTickLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Simulator) tick(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.ticks++
	elapsed := s.ticks
	callID := s.callID

	var line string
	if elapsed%s.cfg.TranscriptEvery == 0 {
		line = s.cfg.Script[s.scriptPos%len(s.cfg.Script)]
		s.scriptPos++
	}
	s.timer = s.clock.AfterFunc(s.cfg.TickInterval, func() { s.tick(gen) })
	s.mu.Unlock()

	s.events.Publish(call.TimerEvent{CallID: callID, ElapsedSeconds: elapsed})
	if line != "" {
		s.events.Publish(call.TranscriptEvent{CallID: callID, Turn: s.turn(elapsed, line)})
	}
}

func (s *Simulator) turn(at int, text string) call.Turn {
	return call.Turn{
		ID:       uuid.NewString(),
		AtSecond: at,
		Speaker:  call.SpeakerAssistant,
		Text:     text,
	}
}

func (s *Simulator) targetLabel(targetID string) string {
	if s.cfg.Targets != nil {
		if target, ok := s.cfg.Targets.FindByID(targetID); ok {
			return fmt.Sprintf("%s (%s)", target.Name, target.Role)
		}
	}
	return targetID
}

func humanTime(whenISO string) string {
	when, err := time.Parse(time.RFC3339, whenISO)
	if err != nil {
		return whenISO
	}
	return when.Format("Mon, Jan 2 2006 at 15:04 MST")
}
