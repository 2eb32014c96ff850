package server

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/model"
	"NetSeismic/internal/session"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const liveBuffer = 64

// Registry tracks live sessions and keeps finished reports for a while. It
// implements session.Tracker and api.SessionStore.
type Registry struct {
	mu       sync.RWMutex
	live     map[string]*session.Handle
	watchers map[string]map[chan model.Sample]struct{}
	finished *expirable.LRU[string, *model.Report]

	onFinish []func(*model.Report)
}

// NewRegistry creates a registry bounded by cfg.
func NewRegistry(cfg config.SessionCacheConfig) *Registry {
	size := cfg.MaxSize
	if size <= 0 {
		size = 256
	}
	ttl := config.Duration(cfg.TTL)
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Registry{
		live:     make(map[string]*session.Handle),
		watchers: make(map[string]map[chan model.Sample]struct{}),
		finished: expirable.NewLRU[string, *model.Report](size, nil, ttl),
	}
}

// OnFinish registers fn to receive every finished report. Register hooks
// before sessions start.
func (r *Registry) OnFinish(fn func(*model.Report)) {
	r.onFinish = append(r.onFinish, fn)
}

func (r *Registry) Started(h *session.Handle) {
	r.mu.Lock()
	r.live[h.ID] = h
	r.mu.Unlock()
}

// Finished moves a session from live to finished in one step, so List and Get
// never see it in both or neither.
func (r *Registry) Finished(h *session.Handle, report *model.Report) {
	r.mu.Lock()
	r.finished.Add(h.ID, report)
	delete(r.live, h.ID)
	for ch := range r.watchers[h.ID] {
		close(ch)
	}
	delete(r.watchers, h.ID)
	r.mu.Unlock()

	for _, fn := range r.onFinish {
		fn(report)
	}
}

// Observe fans a sample out to the watchers of its session. Slow watchers
// miss samples rather than stall the sampler.
func (r *Registry) Observe(sessionID string, s model.Sample) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for ch := range r.watchers[sessionID] {
		select {
		case ch <- s:
		default:
		}
	}
}

// Subscribe returns a channel of the samples of a live session.
func (r *Registry) Subscribe(id string) (<-chan model.Sample, func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[id]; !ok {
		return nil, nil, false
	}
	ch := make(chan model.Sample, liveBuffer)
	if r.watchers[id] == nil {
		r.watchers[id] = make(map[chan model.Sample]struct{})
	}
	r.watchers[id][ch] = struct{}{}

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if set, ok := r.watchers[id]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
		}
	}
	return ch, cancel, true
}

// Get returns the report of a finished session, or a report of the counts
// so far for a live one.
func (r *Registry) Get(id string) (*model.Report, bool) {
	r.mu.RLock()
	report, done := r.finished.Get(id)
	h, ok := r.live[id]
	r.mu.RUnlock()
	if done {
		return report, true
	}
	if !ok {
		return nil, false
	}
	return liveReport(h), true
}

// List summarizes live and finished sessions.
func (r *Registry) List() []model.Summary {
	r.mu.RLock()
	out := make([]model.Summary, 0, len(r.live)+r.finished.Len())
	for _, h := range r.live {
		out = append(out, liveReport(h).Summary())
	}
	finished := r.finished.Values()
	r.mu.RUnlock()
	for _, report := range finished {
		out = append(out, report.Summary())
	}
	return out
}

// Live returns the number of sessions in progress.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}

func liveReport(h *session.Handle) *model.Report {
	sent, received := h.Counts()
	return &model.Report{
		SessionID:     h.ID,
		Role:          h.Role,
		Peer:          h.Peer,
		ChunkSize:     h.ChunkSize,
		Series:        &model.Series{StartTime: h.StartedAt},
		EndTime:       time.Now(),
		TotalSent:     sent,
		TotalReceived: received,
	}
}
