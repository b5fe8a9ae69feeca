package transport

import (
	"testing"
	"time"
)

func TestSendTimerFiresOnExpiry(t *testing.T) {
	fired := make(chan struct{}, 1)
	st := NewSendTimer(20*time.Millisecond, func() { fired <- struct{}{} })
	defer st.Stop()

	select {
	case <-fired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected timer to fire")
	}
}

func TestSendTimerResetPostponesExpiry(t *testing.T) {
	fired := make(chan struct{}, 4)
	st := NewSendTimer(40*time.Millisecond, func() { fired <- struct{}{} })
	defer st.Stop()

	for i := 0; i < 3; i++ {
		time.Sleep(15 * time.Millisecond)
		st.Reset()
	}
	select {
	case <-fired:
		t.Fatal("did not expect the timer to fire while being reset faster than its period")
	default:
	}
}

func TestSendTimerStopSuppressesFire(t *testing.T) {
	fired := make(chan struct{}, 1)
	st := NewSendTimer(10*time.Millisecond, func() { fired <- struct{}{} })
	st.Stop()

	select {
	case <-fired:
		t.Fatal("did not expect a stopped timer to fire")
	case <-time.After(50 * time.Millisecond):
	}
}
