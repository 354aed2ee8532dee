package worker

import "testing"

func TestSignal_NotifyNeverBlocks(t *testing.T) {
	s := NewSignal()
	// No receiver; repeated notifications collapse into one pending wake-up.
	s.Notify()
	s.Notify()
	s.Notify()

	select {
	case <-s.Wait():
	default:
		t.Fatal("expected a pending wake-up")
	}
	select {
	case <-s.Wait():
		t.Fatal("coalesced notifications must deliver exactly one wake-up")
	default:
	}
}

func TestSignal_WakeAfterDrain(t *testing.T) {
	s := NewSignal()
	s.Notify()
	<-s.Wait()

	// The slot is free again after the wake-up is consumed.
	s.Notify()
	select {
	case <-s.Wait():
	default:
		t.Fatal("expected a wake-up after the slot was drained")
	}
}

func TestFanout_WakesEveryDownstream(t *testing.T) {
	a, b, c := NewSignal(), NewSignal(), NewSignal()
	NewFanout(a, b, c).Notify()

	for i, s := range []*Signal{a, b, c} {
		select {
		case <-s.Wait():
		default:
			t.Errorf("downstream %d did not receive the wake-up", i)
		}
	}
}
