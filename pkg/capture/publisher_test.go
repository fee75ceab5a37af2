package capture

import (
	"sync"
	"testing"
)

func TestPublisher(t *testing.T) {
	var p Publisher
	if _, ok := p.Current(); ok {
		t.Fatal("new publisher should have no frame")
	}

	f1 := p.Publish([]byte("a"), 10, 20)
	f2 := p.Publish([]byte("b"), 10, 20)
	if f1.Seq != 1 || f2.Seq != 2 {
		t.Errorf("seqs = %d, %d", f1.Seq, f2.Seq)
	}

	cur, ok := p.Current()
	if !ok || string(cur.Data) != "b" || cur.Width != 10 || cur.Height != 20 {
		t.Errorf("Current = %+v, %v", cur, ok)
	}

	p.Clear()
	if _, ok := p.Current(); ok {
		t.Error("Clear should drop the frame")
	}
	if p.Seq() != 2 {
		t.Errorf("Seq after Clear = %d, want 2", p.Seq())
	}
	if f := p.Publish([]byte("c"), 1, 1); f.Seq != 3 {
		t.Errorf("seq after Clear = %d, want 3", f.Seq)
	}
}

func TestPublisher_ConcurrentReaders(t *testing.T) {
	var p Publisher
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			p.Publish([]byte{byte(i), byte(i)}, i, i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if f, ok := p.Current(); ok && f.Data[0] != f.Data[1] {
				t.Errorf("torn frame %v", f.Data)
				return
			}
		}
	}()
	wg.Wait()
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateStopped:  "stopped",
		StateStarting: "starting",
		StateRunning:  "running",
		StateStopping: "stopping",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestStateTextRoundTrip(t *testing.T) {
	for _, s := range []State{StateStopped, StateStarting, StateRunning, StateStopping} {
		text, _ := s.MarshalText()
		var got State
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if got != s {
			t.Errorf("round trip %v = %v", s, got)
		}
	}
	var s State
	if err := s.UnmarshalText([]byte("paused")); err == nil {
		t.Error("expected error for unknown state")
	}
}
