package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestReactor(t *testing.T) *Reactor {
	t.Helper()
	r, err := New(zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestReactor_TimerFiresAndDisarms(t *testing.T) {
	r := newTestReactor(t)
	fired := make(chan struct{}, 1)

	r.AddTimer(EventTimerMonotonic, time.Now().Add(10*time.Millisecond), 0, PriorityNormal, func(Event) error {
		fired <- struct{}{}
		r.Exit(0)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx)

	select {
	case <-fired:
	default:
		t.Fatal("timer did not fire")
	}
}

func TestReactor_PriorityOrdersDispatch(t *testing.T) {
	r := newTestReactor(t)
	var order []string

	now := time.Now()
	r.AddTimer(EventDefer, now, 0, PriorityIdle, func(Event) error {
		order = append(order, "idle")
		return nil
	})
	r.AddTimer(EventDefer, now, 0, PriorityImportant, func(Event) error {
		order = append(order, "important")
		return nil
	})
	r.AddTimer(EventDefer, now, 0, PriorityNormal, func(Event) error {
		order = append(order, "normal")
		r.Exit(0)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx)

	require.Equal(t, []string{"important", "normal", "idle"}, order)
}

func TestReactor_RepeatingTimerReArms(t *testing.T) {
	r := newTestReactor(t)
	count := 0

	r.AddTimer(EventTimerMonotonic, time.Now(), 5*time.Millisecond, PriorityNormal, func(Event) error {
		count++
		if count >= 3 {
			r.Exit(0)
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx)

	require.GreaterOrEqual(t, count, 3)
}

func TestReactor_SetEnabledOffSuppressesDispatch(t *testing.T) {
	r := newTestReactor(t)
	calls := 0

	tok := r.AddTimer(EventDefer, time.Now(), 0, PriorityNormal, func(Event) error {
		calls++
		return nil
	})
	r.SetEnabled(tok, Off)

	done := r.AddTimer(EventDefer, time.Now().Add(5*time.Millisecond), 0, PriorityIdle, func(Event) error {
		r.Exit(0)
		return nil
	})
	_ = done

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx)

	require.Equal(t, 0, calls)
}

func TestReactor_SignalDispatchesRegisteredSource(t *testing.T) {
	r := newTestReactor(t)
	const fakeSignal = 99
	got := make(chan int, 1)

	r.AddSignal(fakeSignal, PriorityImportant, func(ev Event) error {
		got <- ev.Signal
		r.Exit(0)
		return nil
	})
	r.NotifySignal(fakeSignal)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx)

	select {
	case s := <-got:
		require.Equal(t, fakeSignal, s)
	default:
		t.Fatal("signal source did not dispatch")
	}
}
