package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/hmo-callconsole/backend/internal/model/call"
)

type fakeBackend struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	token    string
	auth     string
	commands []call.Command
	conn     *websocket.Conn
	ready    chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{ready: make(chan struct{})}
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	f.mu.Lock()
	f.token = r.URL.Query().Get("token")
	f.auth = r.Header.Get("Authorization")
	f.conn = conn
	f.mu.Unlock()
	close(f.ready)

	for {
		var cmd call.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		f.mu.Lock()
		f.commands = append(f.commands, cmd)
		f.mu.Unlock()
	}
}

func (f *fakeBackend) push(t *testing.T, raw string) {
	t.Helper()
	<-f.ready
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("WriteMessage err: %v", err)
	}
}

func (f *fakeBackend) received() []call.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call.Command(nil), f.commands...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRealtimeSendsCommandEnvelopes(t *testing.T) {
	fake := newFakeBackend()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	rt := NewRealtime(ctx, wsURL(srv), "secret", nil)
	defer rt.Close()

	if !rt.Connected() {
		t.Fatal("expected adapter to connect")
	}

	rt.Answer(ctx, "c1")
	rt.Transfer(ctx, "c1", "ai")
	rt.Schedule(ctx, "c1", "2026-10-20T09:30:00Z")
	rt.End(ctx, "c1")

	waitFor(t, "four commands", func() bool { return len(fake.received()) == 4 })

	got := fake.received()
	want := []call.Command{
		{Action: call.ActionAnswer, CallID: "c1"},
		{Action: call.ActionTransfer, CallID: "c1", AgentID: "ai"},
		{Action: call.ActionSchedule, CallID: "c1", WhenISO: "2026-10-20T09:30:00Z"},
		{Action: call.ActionEnd, CallID: "c1"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command %d: got %+v want %+v", i, got[i], want[i])
		}
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.token != "secret" {
		t.Fatalf("expected token query parameter, got %q", fake.token)
	}
	if fake.auth != "Bearer secret" {
		t.Fatalf("expected bearer header, got %q", fake.auth)
	}
}

func TestRealtimePublishesInboundEventsAndSkipsMalformed(t *testing.T) {
	fake := newFakeBackend()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	rt := NewRealtime(context.Background(), wsURL(srv), "secret", nil)
	defer rt.Close()

	var (
		mu  sync.Mutex
		got []call.Event
	)
	for _, kind := range call.EventKinds() {
		rt.Events().Subscribe(kind, func(evt call.Event) {
			mu.Lock()
			got = append(got, evt)
			mu.Unlock()
		})
	}

	fake.push(t, `not json`)
	fake.push(t, `{"event":"call:held","payload":{}}`)
	env, err := call.EncodeEvent(call.RingingEvent{CallID: "c7", Caller: "+2348000000000"})
	if err != nil {
		t.Fatalf("EncodeEvent err: %v", err)
	}
	raw, _ := json.Marshal(env)
	fake.push(t, string(raw))
	fake.push(t, `{"event":"call:timer","payload":{"callId":"c7","elapsedSeconds":3}}`)

	waitFor(t, "two events", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	ringing, ok := got[0].(call.RingingEvent)
	if !ok || ringing.CallID != "c7" || ringing.Caller != "+2348000000000" {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	timer, ok := got[1].(call.TimerEvent)
	if !ok || timer.ElapsedSeconds != 3 {
		t.Fatalf("unexpected second event: %+v", got[1])
	}
}

func TestRealtimeDialFailureIsSilent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rt := NewRealtime(ctx, "ws://127.0.0.1:1/ws", "secret", &RealtimeOptions{
		HandshakeTimeout: 200 * time.Millisecond,
		WriteTimeout:     time.Second,
	})

	if rt.Connected() {
		t.Fatal("expected dial to fail")
	}

	// commands on a dead adapter are dropped without panicking
	rt.Answer(ctx, "c1")
	rt.End(ctx, "c1")
	if err := rt.Close(); err != nil {
		t.Fatalf("Close err: %v", err)
	}
}

func TestNewSelectsAdapterByKind(t *testing.T) {
	ctx := context.Background()

	adapter, err := New(ctx, Config{Kind: KindSimulated})
	if err != nil {
		t.Fatalf("New simulated err: %v", err)
	}
	if _, ok := adapter.(*Simulator); !ok {
		t.Fatalf("expected *Simulator, got %T", adapter)
	}
	if _, ok := adapter.(Ringer); !ok {
		t.Fatal("simulator should implement Ringer")
	}

	if _, err := New(ctx, Config{Kind: KindRealtime, Endpoint: "ws://localhost/ws"}); err != ErrMissingToken {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, err := New(ctx, Config{Kind: KindRealtime, Token: "t"}); err != ErrMissingEndpoint {
		t.Fatalf("expected ErrMissingEndpoint, got %v", err)
	}
	if _, err := New(ctx, Config{Kind: "pbx"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}

	fake := newFakeBackend()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	adapter, err = New(ctx, Config{Kind: KindRealtime, Endpoint: wsURL(srv), Token: "t"})
	if err != nil {
		t.Fatalf("New realtime err: %v", err)
	}
	defer adapter.Close()
	if _, ok := adapter.(*Realtime); !ok {
		t.Fatalf("expected *Realtime, got %T", adapter)
	}
}

func TestRealtimeOptionsFillZeroFields(t *testing.T) {
	def := DefaultRealtimeOptions()

	got := (&RealtimeOptions{ReadTimeout: 60 * time.Second}).withDefaults()
	if got.WriteTimeout != def.WriteTimeout || got.HandshakeTimeout != def.HandshakeTimeout {
		t.Fatalf("zero timeouts not filled: %+v", got)
	}

	got = (&RealtimeOptions{ReadTimeout: 60 * time.Second, PingInterval: 90 * time.Second}).withDefaults()
	if got.PingInterval >= got.ReadTimeout {
		t.Fatalf("ping interval %v not below read timeout %v", got.PingInterval, got.ReadTimeout)
	}

	caller := &RealtimeOptions{ReadTimeout: 10 * time.Second, PingInterval: 10 * time.Second}
	caller.withDefaults()
	if caller.PingInterval != 10*time.Second || caller.WriteTimeout != 0 {
		t.Fatalf("caller options mutated: %+v", caller)
	}

	if got := (*RealtimeOptions)(nil).withDefaults(); *got != *def {
		t.Fatalf("nil options: got %+v want %+v", got, def)
	}
}

func TestRealtimeSendsWithZeroWriteTimeout(t *testing.T) {
	fake := newFakeBackend()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	rt := NewRealtime(ctx, wsURL(srv), "secret", &RealtimeOptions{HandshakeTimeout: time.Second})
	defer rt.Close()

	rt.Answer(ctx, "c1")
	waitFor(t, "answer command", func() bool { return len(fake.received()) == 1 })
}
