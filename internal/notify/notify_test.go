package notify

import (
	"context"
	"testing"
)

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	if err := n.Notify(context.Background(), "Wi-Fi", "Connected"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestNewFallsBack(t *testing.T) {
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path=/nonexistent/hubd-test-bus")
	n := New("hubd")
	if _, ok := n.(Nop); !ok {
		t.Errorf("expected Nop without a session bus, got %T", n)
	}
}
