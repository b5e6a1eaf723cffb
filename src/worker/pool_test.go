package worker

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSubmitAndRun(t *testing.T) {
	p := New(2)
	defer p.Close()

	done := make(chan struct{})
	if !p.Submit(context.Background(), func(context.Context) { close(done) }) {
		t.Fatal("submit refused on empty queue")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
}

func TestBackpressureDropsWhenQueued(t *testing.T) {
	p := New(1)
	defer p.Close()

	block := make(chan struct{})
	var mu sync.Mutex
	ran := 0
	slow := func(context.Context) {
		<-block
		mu.Lock()
		ran++
		mu.Unlock()
	}
	// First job occupies the worker, second fills the 1-slot queue.
	if !p.Submit(context.Background(), slow) {
		t.Fatal("first submit refused")
	}
	// Give the worker a moment to pick up the first job.
	deadline := time.Now().Add(time.Second)
	for !p.Submit(context.Background(), slow) {
		if time.Now().After(deadline) {
			t.Fatal("second submit never accepted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Queue now holds one job; a third submit must be refused.
	if p.Submit(context.Background(), slow) {
		t.Error("third submit accepted, queue should be full")
	}
	close(block)
}

func TestCancelledContextSkipsJob(t *testing.T) {
	p := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := make(chan struct{}, 1)
	p.Submit(ctx, func(context.Context) { ran <- struct{}{} })
	p.Close()
	select {
	case <-ran:
		t.Error("job ran despite cancelled context")
	default:
	}
}
