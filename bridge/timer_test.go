package bridge

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/portway-io/wasm-bridge/transport"
)

func TestStartTimer_ZeroDelay(t *testing.T) {
	ctx := context.Background()
	b, guest, _ := newTestBridge(t, transport.NewHub())

	// Zero, negative and NaN delays bypass the runtime timer entirely, so
	// the firing is already queued when StartTimer returns.
	b.StartTimer(1, 0)
	b.StartTimer(2, -5)
	b.StartTimer(3, math.NaN())
	b.DispatchPending(ctx)

	want := []string{"timer id=1", "timer id=2", "timer id=3"}
	if len(guest.calls) != len(want) {
		t.Fatalf("calls = %v", guest.calls)
	}
	for i, w := range want {
		if guest.calls[i] != w {
			t.Fatalf("calls[%d] = %q, want %q", i, guest.calls[i], w)
		}
	}
}

func TestStartTimer_Delayed(t *testing.T) {
	ctx := context.Background()
	b, guest, _ := newTestBridge(t, transport.NewHub())

	b.StartTimer(7, 1)

	deadline := time.Now().Add(2 * time.Second)
	for len(guest.calls) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timer never fired")
		}
		time.Sleep(time.Millisecond)
		b.DispatchPending(ctx)
	}
	if guest.calls[0] != "timer id=7" {
		t.Fatalf("calls = %v", guest.calls)
	}
}

func TestStartTimer_OverflowClamped(t *testing.T) {
	b, guest, _ := newTestBridge(t, transport.NewHub())

	// Delays past the representable maximum are clamped down, never
	// rejected and never wrapped into the past.
	b.StartTimer(1, math.MaxFloat64)
	b.StartTimer(2, maxTimerMillis*2)

	b.DispatchPending(context.Background())
	if len(guest.calls) != 0 {
		t.Fatalf("clamped timers fired immediately: %v", guest.calls)
	}
}

func TestStartTimer_SuppressedAfterKill(t *testing.T) {
	ctx := context.Background()
	b, guest, _ := newTestBridge(t, transport.NewHub())

	b.KillAll()
	b.StartTimer(1, 0)
	b.DispatchPending(ctx)

	if len(guest.calls) != 0 {
		t.Fatalf("timer fired after kill: %v", guest.calls)
	}
}

func TestStartTimer_PendingDroppedByKill(t *testing.T) {
	ctx := context.Background()
	b, guest, _ := newTestBridge(t, transport.NewHub())

	b.StartTimer(1, 0)
	b.KillAll()
	b.DispatchPending(ctx)

	if len(guest.calls) != 0 {
		t.Fatalf("queued timer delivered after kill: %v", guest.calls)
	}
}
