package server

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/model"
	"NetSeismic/internal/session"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRegistry_Lifecycle(t *testing.T) {
	reg := NewRegistry(config.SessionCacheConfig{MaxSize: 2, TTL: "1h"})
	var finished []string
	reg.OnFinish(func(r *model.Report) { finished = append(finished, r.SessionID) })

	h := &session.Handle{ID: "a", Role: model.RoleReceiver, Peer: "p", ChunkSize: 1024, StartedAt: time.Now()}
	reg.Started(h)

	// 1. Live sessions are listed and can be watched.
	if reg.Live() != 1 || len(reg.List()) != 1 {
		t.Fatalf("Expected one live session")
	}
	if r, ok := reg.Get("a"); !ok || r.ChunkSize != 1024 {
		t.Fatalf("Expected a live report, got %+v %v", r, ok)
	}
	samples, cancel, ok := reg.Subscribe("a")
	if !ok {
		t.Fatalf("Subscribe to live session failed")
	}
	defer cancel()

	reg.Observe("a", model.Sample{Offset: time.Second, Received: 3})
	reg.Observe("other", model.Sample{Offset: time.Second})
	if s := <-samples; s.Received != 3 {
		t.Errorf("Unexpected sample %+v", s)
	}

	// 2. Finishing closes watchers and moves the report to the cache.
	reg.Finished(h, &model.Report{SessionID: "a", Role: model.RoleReceiver, TotalReceived: 3, Series: &model.Series{}})
	if _, open := <-samples; open {
		t.Errorf("Expected the watcher channel to be closed")
	}
	cancel()
	if reg.Live() != 0 {
		t.Errorf("Expected no live sessions")
	}
	if r, ok := reg.Get("a"); !ok || r.TotalReceived != 3 {
		t.Errorf("Expected the finished report, got %+v %v", r, ok)
	}
	if _, _, ok := reg.Subscribe("a"); ok {
		t.Errorf("Expected Subscribe to a finished session to fail")
	}
	if len(finished) != 1 || finished[0] != "a" {
		t.Errorf("Unexpected finish hooks %v", finished)
	}

	// 3. The cache is bounded.
	for _, id := range []string{"b", "c"} {
		reg.Finished(&session.Handle{ID: id}, &model.Report{SessionID: id})
	}
	if _, ok := reg.Get("a"); ok {
		t.Errorf("Expected the oldest report to be evicted")
	}
	if len(reg.List()) != 2 {
		t.Errorf("Expected 2 cached reports, got %d", len(reg.List()))
	}
}

func TestRegistry_CancelStopsDelivery(t *testing.T) {
	reg := NewRegistry(config.SessionCacheConfig{})
	h := &session.Handle{ID: "a"}
	reg.Started(h)

	samples, cancel, _ := reg.Subscribe("a")
	cancel()
	cancel()
	if _, open := <-samples; open {
		t.Errorf("Expected a closed channel after cancel")
	}
	reg.Observe("a", model.Sample{})
	reg.Finished(h, &model.Report{SessionID: "a"})
}

func TestRegistry_FinishingSessionListedOnce(t *testing.T) {
	reg := NewRegistry(config.SessionCacheConfig{MaxSize: 1024, TTL: "1h"})
	const sessions = 200

	handles := make([]*session.Handle, sessions)
	for i := range handles {
		handles[i] = &session.Handle{ID: fmt.Sprintf("s%03d", i), StartedAt: time.Now()}
		reg.Started(handles[i])
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, h := range handles {
			reg.Finished(h, &model.Report{SessionID: h.ID, Series: &model.Series{}})
		}
	}()

	// Every listing taken while sessions move from live to finished must
	// contain each session exactly once.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		list := reg.List()
		seen := make(map[string]bool, len(list))
		for _, sum := range list {
			if seen[sum.SessionID] {
				t.Fatalf("Session %s listed twice", sum.SessionID)
			}
			seen[sum.SessionID] = true
		}
		if len(list) != sessions {
			t.Fatalf("Expected %d sessions in every listing, got %d", sessions, len(list))
		}
	}
}
