package events_test

import (
	"reflect"
	"testing"

	"github.com/zhouzirui/hmo-callconsole/backend/internal/model/call"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/service/events"
)

func TestPublishFansOutInRegistrationOrder(t *testing.T) {
	ch := events.NewChannel()
	var order []string

	h1 := ch.Subscribe(call.KindRinging, func(call.Event) { order = append(order, "h1") })
	ch.Subscribe(call.KindRinging, func(call.Event) { order = append(order, "h2") })

	ch.Publish(call.RingingEvent{CallID: "c1"})
	if !reflect.DeepEqual(order, []string{"h1", "h2"}) {
		t.Fatalf("unexpected order after first publish: %v", order)
	}

	ch.Unsubscribe(h1)
	order = nil
	ch.Publish(call.RingingEvent{CallID: "c1"})
	if !reflect.DeepEqual(order, []string{"h2"}) {
		t.Fatalf("unexpected order after unsubscribe: %v", order)
	}
}

func TestPublishOnlyReachesMatchingKind(t *testing.T) {
	ch := events.NewChannel()
	calls := 0
	ch.Subscribe(call.KindEnded, func(call.Event) { calls++ })

	ch.Publish(call.AnsweredEvent{CallID: "c1"})
	if calls != 0 {
		t.Fatalf("ended handler ran for answered event")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	ch := events.NewChannel()
	sub := ch.Subscribe(call.KindTimer, func(call.Event) {})

	ch.Unsubscribe(sub)
	ch.Unsubscribe(sub)
	ch.Unsubscribe(events.Subscription{})

	if n := ch.Len(call.KindTimer); n != 0 {
		t.Fatalf("expected no timer handlers, got %d", n)
	}
}

func TestUnsubscribeRemovesOnlyThatRegistration(t *testing.T) {
	ch := events.NewChannel()
	calls := 0
	handler := func(call.Event) { calls++ }

	first := ch.Subscribe(call.KindTimer, handler)
	ch.Subscribe(call.KindTimer, handler)
	ch.Unsubscribe(first)

	ch.Publish(call.TimerEvent{ElapsedSeconds: 1})
	if calls != 1 {
		t.Fatalf("expected one delivery, got %d", calls)
	}
}

func TestPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	ch := events.NewChannel()
	reached := false

	ch.Subscribe(call.KindEnded, func(call.Event) { panic("boom") })
	ch.Subscribe(call.KindEnded, func(call.Event) { reached = true })

	ch.Publish(call.EndedEvent{CallID: "c1"})
	if !reached {
		t.Fatal("second handler not invoked after panic")
	}
}

func TestOnDeliversTypedPayload(t *testing.T) {
	ch := events.NewChannel()
	var got call.TimerEvent

	sub := events.On(ch, func(e call.TimerEvent) { got = e })
	if sub.Kind() != call.KindTimer {
		t.Fatalf("unexpected subscription kind %s", sub.Kind())
	}

	ch.Publish(call.TimerEvent{CallID: "c1", ElapsedSeconds: 4})
	if got.ElapsedSeconds != 4 || got.CallID != "c1" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestHandlerMayUnsubscribeDuringPublish(t *testing.T) {
	ch := events.NewChannel()
	calls := 0
	var sub events.Subscription
	sub = ch.Subscribe(call.KindAnswered, func(call.Event) {
		calls++
		ch.Unsubscribe(sub)
	})

	ch.Publish(call.AnsweredEvent{CallID: "c1"})
	ch.Publish(call.AnsweredEvent{CallID: "c1"})
	if calls != 1 {
		t.Fatalf("expected a single delivery, got %d", calls)
	}
}
