// this file owns the map of live sessions
package main

import (
	"context"
	"sync"
	"time"
)

// Registry maps instance ids to live sessions. It is owned by the
// composition root and handed to the hub and the sweep timers; there is
// no ambient global session state.
type Registry struct {
	mu            sync.Mutex
	sessions      map[string]*Session
	svc           Service
	takeoverGrace time.Duration
}

func NewRegistry(svc Service, takeoverGrace time.Duration) *Registry {
	return &Registry{
		sessions:      make(map[string]*Session),
		svc:           svc,
		takeoverGrace: takeoverGrace,
	}
}

// GetOrCreate returns the session for an instance id, creating it on
// first contact. Creation tries to seed from a persisted snapshot and
// makes the requesting user the host. This never fails: a missing or
// unreachable store just means the session starts empty.
func (r *Registry) GetOrCreate(instanceID string, user User) *Session {
	r.mu.Lock()
	if s, ok := r.sessions[instanceID]; ok {
		s.claim()
		r.mu.Unlock()
		return s
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	snap, err := r.svc.LoadSnapshot(ctx, instanceID)
	cancel()
	if err != nil {
		logger.Warnf("instance %s: snapshot load failed, starting empty: %v", instanceID, err)
		snap = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[instanceID]; ok {
		// somebody else created it while we were reading the store
		s.claim()
		return s
	}
	s := NewSession(instanceID, r.svc, r.takeoverGrace, snap, user)
	r.sessions[instanceID] = s
	go s.run()
	logger.Infof("instance %s: session created, host %s", instanceID, user.ID)
	return s
}

func (r *Registry) Lookup(instanceID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[instanceID]
}

func (r *Registry) all() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// SaveAll is the periodic full sweep backing the per-mutation writes.
func (r *Registry) SaveAll(ctx context.Context) {
	for _, s := range r.all() {
		r.svc.SaveSnapshot(ctx, s.id, s.Snapshot())
	}
}

// EvictIdle drops sessions that have had zero connections for longer
// than maxIdle. Disabled when maxIdle is zero; sessions then live until
// the process restarts, which keeps rejoining cheap. The idle check and
// the unregister happen under both locks, so a client attaching at the
// same moment either keeps the session alive or finds it already gone.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-maxIdle)
	evicted := 0
	for _, s := range r.all() {
		r.mu.Lock()
		s.mu.Lock()
		idle := len(s.conns) == 0 && !s.emptySince.IsZero() && s.emptySince.Before(cutoff)
		if idle {
			delete(r.sessions, s.id)
		}
		s.mu.Unlock()
		r.mu.Unlock()
		if !idle {
			continue
		}
		s.stop()
		r.svc.SaveSnapshot(context.Background(), s.id, s.Snapshot())
		evicted++
		logger.Infof("instance %s: evicted after idling", s.id)
	}
	return evicted
}

// Sweep runs the periodic save and eviction loops until done closes.
func (r *Registry) Sweep(saveEvery, maxIdle time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(saveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			r.SaveAll(ctx)
			cancel()
			r.EvictIdle(maxIdle)
		case <-done:
			return
		}
	}
}
