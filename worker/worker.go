// Package worker tracks client identities known to the server: their
// liveness, advertised capability, and the bookkeeping the heartbeat
// tracker needs to evict stale entries.
//
// Grounded on imagvfx-coco's worker.go (WorkerManager: a map guarded by a
// single mutex, Add/Bye/FindByAddr) generalized from "a worker dials in
// once and is added" to "a worker is upserted on every heartbeat frame",
// and on the original source's models.py Worker.expired/expiry properties.
package worker

import (
	"sync"
	"time"
)

// Record is the server's view of one client identity.
type Record struct {
	Identity        string
	LastSeen        time.Time
	ExpiryDeadline  time.Time
	Version         string
	HostUptime      time.Duration
	AgentUptime     time.Duration
	Capabilities    []string // advertised verbs, from heartbeat payload
	evictedAt       time.Time
	evicted         bool
}

// Alive reports whether now is before the record's expiry deadline.
func (r *Record) Alive(now time.Time) bool {
	if r.evicted {
		return false
	}
	return now.Before(r.ExpiryDeadline)
}

// Table is the server's identity -> Record map.
//
// HEARTBEAT_INTERVAL and HEARTBEAT_LIVENESS follow spec.md §4.2 defaults
// (60s * 3); callers may override via NewTable.
type Table struct {
	mu       sync.RWMutex
	records  map[string]*Record
	interval time.Duration
	liveness int
}

// DefaultHeartbeatInterval is HEARTBEAT_INTERVAL's default.
const DefaultHeartbeatInterval = 60 * time.Second

// DefaultHeartbeatLiveness is HEARTBEAT_LIVENESS's default.
const DefaultHeartbeatLiveness = 3

// NewTable creates a Table using the given heartbeat interval and liveness
// multiplier to compute expiry deadlines.
func NewTable(interval time.Duration, liveness int) *Table {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if liveness <= 0 {
		liveness = DefaultHeartbeatLiveness
	}
	return &Table{
		records:  make(map[string]*Record),
		interval: interval,
		liveness: liveness,
	}
}

// Upsert records a heartbeat for identity, refreshing its expiry deadline.
func (t *Table) Upsert(identity, version string, hostUptime, agentUptime time.Duration, capabilities []string) *Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	r, ok := t.records[identity]
	if !ok {
		r = &Record{Identity: identity}
		t.records[identity] = r
	}
	r.LastSeen = now
	r.ExpiryDeadline = now.Add(t.interval * time.Duration(t.liveness))
	r.Version = version
	r.HostUptime = hostUptime
	r.AgentUptime = agentUptime
	r.Capabilities = capabilities
	r.evicted = false
	return r
}

// Get returns the record for identity, or nil.
func (t *Table) Get(identity string) *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[identity]
}

// Alive returns the identities currently alive.
func (t *Table) Alive() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	now := time.Now()
	out := make([]string, 0, len(t.records))
	for id, r := range t.records {
		if r.Alive(now) {
			out = append(out, id)
		}
	}
	return out
}

// All returns every known identity, alive or evicted, for display purposes
// (list-nodes shows evicted workers until purge-nodes).
func (t *Table) All() []*Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Record, 0, len(t.records))
	for _, r := range t.records {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

// Sweep evicts records whose deadline has passed. It returns the
// identities evicted in this pass. Called once per second by the
// heartbeat tracker's periodic sweep.
func (t *Table) Sweep() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	var evicted []string
	for id, r := range t.records {
		if !r.evicted && now.After(r.ExpiryDeadline) {
			r.evicted = true
			r.evictedAt = now
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Purge removes every record outright (manage --purge-nodes).
func (t *Table) Purge() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[string]*Record)
}
