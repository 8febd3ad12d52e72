package hri

import (
	"testing"

	"github.com/pkg/errors"
)

func TestMemoryBusPublish(t *testing.T) {
	bus := NewMemoryBus()
	var got [][]byte
	sub, err := bus.Subscribe("/t", func(payload []byte) {
		got = append(got, payload)
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := bus.Publish("/t", []byte("x")); n != 1 {
		t.Errorf("Expected 1 handler, got %d", n)
	}
	if n := bus.Publish("/other", []byte("y")); n != 0 {
		t.Errorf("Expected 0 handlers, got %d", n)
	}
	if len(got) != 1 || string(got[0]) != "x" {
		t.Errorf("Wrong deliveries: %q", got)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatal(err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("Second unsubscribe should be no-op, got %v", err)
	}
	if bus.Publish("/t", []byte("z")) != 0 || len(got) != 1 {
		t.Error("Handler called after unsubscribe")
	}
}

func TestMemoryBusRejects(t *testing.T) {
	bus := NewMemoryBus()
	if _, err := bus.Subscribe("", func([]byte) {}); err == nil {
		t.Error("Expected empty topic to be rejected")
	}
	if _, err := bus.Subscribe("/t", nil); err == nil {
		t.Error("Expected nil handler to be rejected")
	}
	if _, err := bus.PublishMessage("/t", make(chan int)); err == nil {
		t.Error("Expected unencodable message to be rejected")
	}

	bus.Subscribe("/t", func([]byte) {})
	bus.Close()
	if bus.Subscribers("/t") != 0 {
		t.Error("Close should drop subscriptions")
	}
	if _, err := bus.Subscribe("/t", func([]byte) {}); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Expected ErrDestroyed, got %v", err)
	}
	if bus.Publish("/t", nil) != 0 {
		t.Error("Publish on closed bus should be no-op")
	}
}
