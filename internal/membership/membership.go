// Package membership implements the heartbeat-driven view of the fleet and
// the stateless lowest-id leader election rule (spec.md §4.9).
package membership

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"gopkg.in/fatih/set.v0"
)

// Record is what the fleet knows about one peer, refreshed on every
// heartbeat observed on the bus.
type Record struct {
	AgentID       string
	LastSeen      time.Time
	Status        string
	Job           string
	Fuel          int
	ConfigVersion uint64
}

// Table is the agent-local membership view: one Record per peer ever seen,
// plus the self id used to break the election tie with itself included.
type Table struct {
	mu              sync.Mutex
	selfID          string
	heartbeatTimeout time.Duration
	peers           map[string]Record
}

func New(selfID string, heartbeatTimeout time.Duration) *Table {
	return &Table{selfID: selfID, heartbeatTimeout: heartbeatTimeout, peers: make(map[string]Record)}
}

// idLess orders agent ids the way spec.md §4.9's "numerically smallest id"
// election rule requires: ids that both parse cleanly as integers compare
// numerically, so "9" sorts before "10". Ids that don't parse (e.g. test
// fixtures like "agent-a") fall back to lexicographic comparison rather
// than panicking or silently tying.
func idLess(a, b string) bool {
	an, aErr := strconv.Atoi(a)
	bn, bErr := strconv.Atoi(b)
	if aErr == nil && bErr == nil {
		return an < bn
	}
	return a < b
}

// Observe records a heartbeat from a peer (or self).
func (t *Table) Observe(r Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[r.AgentID] = r
}

// Touch refreshes self's own LastSeen without going through the bus, so
// self always counts as live in the election even between heartbeats.
func (t *Table) Touch(status, job string, fuel int, configVersion uint64, now time.Time) {
	t.Observe(Record{AgentID: t.selfID, LastSeen: now, Status: status, Job: job, Fuel: fuel, ConfigVersion: configVersion})
}

// IsAlive reports whether agentID's last-seen timestamp is within the
// heartbeat timeout of now.
func (t *Table) IsAlive(agentID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.peers[agentID]
	if !ok {
		return false
	}
	return now.Sub(r.LastSeen) <= t.heartbeatTimeout
}

// LivePeers returns every peer (including self) currently considered
// live, sorted by agent id. The candidate ids are collected into a set
// first since a peer can be re-observed between the read and the election
// recompute; the set guarantees the election never double-counts one id.
func (t *Table) LivePeers(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	live := set.New()
	for id, r := range t.peers {
		if now.Sub(r.LastSeen) <= t.heartbeatTimeout {
			live.Add(id)
		}
	}
	out := make([]string, 0, live.Size())
	for _, id := range live.List() {
		out = append(out, id.(string))
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i], out[j]) })
	return out
}

// Leader returns the numerically-smallest live agent id, electing self if
// no peers are live. Election is stateless: recomputed fresh from
// whatever the current membership view says, with no voting or term
// numbers, since the rule is deterministic over a consistent view
// (spec.md §4.9).
func (t *Table) Leader(now time.Time) string {
	live := t.LivePeers(now)
	if len(live) == 0 {
		return t.selfID
	}
	return live[0]
}

// IsLeader reports whether self is currently elected leader.
func (t *Table) IsLeader(now time.Time) bool {
	return t.Leader(now) == t.selfID
}

// Record returns the last-known record for a peer.
func (t *Table) Record(agentID string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.peers[agentID]
	return r, ok
}

// AllRecords returns every known peer record, sorted by agent id,
// regardless of liveness — used for the operator status snapshot.
func (t *Table) AllRecords() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, 0, len(t.peers))
	for _, r := range t.peers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].AgentID, out[j].AgentID) })
	return out
}
