package metrics

import (
	"sync"
	"testing"
)

func TestInMemory_IncrementMethods(t *testing.T) {
	c := NewInMemory("fn-a")

	c.IncrReads()
	c.IncrReplayedReads()
	c.IncrWrites()
	c.IncrWrites()
	c.IncrIdempotentWrites()
	c.IncrInvokes()
	c.IncrReplayedInvokes()
	c.IncrReplayedInvokes()
	c.IncrRowsCreated()
	c.IncrBackendErrors()

	s := c.Snapshot()

	if s.Reads != 1 {
		t.Errorf("Reads = %d, want 1", s.Reads)
	}
	if s.ReplayedReads != 1 {
		t.Errorf("ReplayedReads = %d, want 1", s.ReplayedReads)
	}
	if s.Writes != 2 {
		t.Errorf("Writes = %d, want 2", s.Writes)
	}
	if s.IdempotentWrites != 1 {
		t.Errorf("IdempotentWrites = %d, want 1", s.IdempotentWrites)
	}
	if s.Invokes != 1 {
		t.Errorf("Invokes = %d, want 1", s.Invokes)
	}
	if s.ReplayedInvokes != 2 {
		t.Errorf("ReplayedInvokes = %d, want 2", s.ReplayedInvokes)
	}
	if s.RowsCreated != 1 {
		t.Errorf("RowsCreated = %d, want 1", s.RowsCreated)
	}
	if s.BackendErrors != 1 {
		t.Errorf("BackendErrors = %d, want 1", s.BackendErrors)
	}
	if s.LambdaID != "fn-a" {
		t.Errorf("LambdaID = %q, want %q", s.LambdaID, "fn-a")
	}
}

func TestInMemory_SnapshotImmutability(t *testing.T) {
	c := NewInMemory("fn-a")
	c.IncrReads()

	s1 := c.Snapshot()
	c.IncrReads()
	c.IncrReads()

	if s1.Reads != 1 {
		t.Errorf("s1.Reads = %d, want 1 (snapshot should be frozen)", s1.Reads)
	}

	s2 := c.Snapshot()
	if s2.Reads != 3 {
		t.Errorf("s2.Reads = %d, want 3", s2.Reads)
	}
}

func TestInMemory_ConcurrentAccess(t *testing.T) {
	c := NewInMemory("fn-a")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncrReads()
				c.IncrWrites()
				c.IncrInvokes()
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.Reads != want {
		t.Errorf("Reads = %d, want %d", s.Reads, want)
	}
	if s.Writes != want {
		t.Errorf("Writes = %d, want %d", s.Writes, want)
	}
	if s.Invokes != want {
		t.Errorf("Invokes = %d, want %d", s.Invokes, want)
	}
}

func TestNoop_SatisfiesCollector(t *testing.T) {
	var c Collector = Noop{}
	c.IncrReads()
	c.IncrReplayedReads()
	c.IncrWrites()
	c.IncrIdempotentWrites()
	c.IncrInvokes()
	c.IncrReplayedInvokes()
	c.IncrRowsCreated()
	c.IncrBackendErrors()
}
