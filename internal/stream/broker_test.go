package stream

import (
	"errors"
	"testing"

	"github.com/kailiangshang/team-work/internal/sim"
)

func TestPublishReachesOnlyMatchingRun(t *testing.T) {
	b := New(4)
	chA, cancelA := b.Subscribe("run-a")
	defer cancelA()
	chB, cancelB := b.Subscribe("run-b")
	defer cancelB()

	if err := b.Publish(sim.Event{Type: sim.EventDayStart, RunID: "run-a", Day: 1}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case ev := <-chA:
		if ev.Day != 1 {
			t.Fatalf("wrong event: %+v", ev)
		}
	default:
		t.Fatalf("run-a subscriber got nothing")
	}
	select {
	case ev := <-chB:
		t.Fatalf("run-b subscriber got foreign event: %+v", ev)
	default:
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b := New(1)
	ch, cancel := b.Subscribe("run-a")
	defer cancel()

	if err := b.Publish(sim.Event{RunID: "run-a", Day: 1}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := b.Publish(sim.Event{RunID: "run-a", Day: 2}); !errors.Is(err, ErrSubscriberFull) {
		t.Fatalf("err = %v, want ErrSubscriberFull", err)
	}
	// The dropped subscriber's channel is closed after draining.
	if ev, ok := <-ch; !ok || ev.Day != 1 {
		t.Fatalf("expected buffered day-1 event, got %+v ok=%v", ev, ok)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after drop")
	}
}

func TestCloseEndsRunStreams(t *testing.T) {
	b := New(4)
	ch, cancel := b.Subscribe("run-a")
	defer cancel()
	other, cancelOther := b.Subscribe("run-b")
	defer cancelOther()

	b.Close("run-a")
	if _, ok := <-ch; ok {
		t.Fatalf("run-a channel should be closed")
	}
	select {
	case _, ok := <-other:
		if !ok {
			t.Fatalf("run-b channel must stay open")
		}
	default:
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	b := New(4)
	_, cancel := b.Subscribe("run-a")
	cancel()
	cancel() // must not panic
	if err := b.Publish(sim.Event{RunID: "run-a"}); err != nil {
		t.Fatalf("publish to no subscribers should succeed: %v", err)
	}
}
