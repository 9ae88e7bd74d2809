package tunnelplan

import (
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/DannyDoesGraphics/auto-mine/internal/config"
	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
	"github.com/DannyDoesGraphics/auto-mine/internal/xlog"
	autometrics "github.com/DannyDoesGraphics/auto-mine/internal/metrics"
)

var tunnelPrefix = []byte("tunnel/")

// Plan is the shared enumeration of tunnels. Every agent keeps a replica;
// only the acting leader claims tunnels and applies peers' releases
// (spec.md §4.7), but the storage layer itself has no notion of "leader" —
// that gate lives in the worker loop, which calls ClaimFirstIdle and
// ReclaimDeadClaims, and applies job_release messages, only when it
// believes itself to be leader. Every agent also updates its own replica
// for the tunnels assigned to it (ApplyRemote and ReconcileDuplicateClaim
// on an assign, Release after each of its own tunnel steps).
type Plan struct {
	mu       sync.Mutex
	db       storage.Database
	tunnels  map[uint64]*Tunnel
	nextID   uint64
	log      xlog.Logger
}

func tunnelKey(id uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(id >> (8 * i))
	}
	return append(append([]byte(nil), tunnelPrefix...), b...)
}

// Load reads whatever tunnels are already persisted (every agent stores a
// replica locally; a non-leader's replica changes only through the assign
// messages addressed to it and its own tunnel steps).
func Load(db storage.Database) (*Plan, error) {
	p := &Plan{db: db, tunnels: make(map[uint64]*Tunnel), log: xlog.NewModuleLogger("tunnelplan")}
	it := db.NewIterator(tunnelPrefix)
	defer it.Release()
	for it.Next() {
		var t Tunnel
		if err := json.Unmarshal(it.Value(), &t); err != nil {
			return nil, errors.Wrap(err, "tunnelplan: corrupt record")
		}
		cp := t
		p.tunnels[t.ID] = &cp
		if t.ID > p.nextID {
			p.nextID = t.ID
		}
	}
	return p, nil
}

// Seed enumerates tunnels by tiling cfg's bounding box (spec.md §4.7),
// persisting them if the plan is still empty. Called once, by whichever
// agent boots a fresh quarry first.
func (p *Plan) Seed(cfg config.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.tunnels) > 0 {
		return nil
	}
	for _, origin := range cfg.TunnelOrigins() {
		p.nextID++
		t := &Tunnel{
			ID:      p.nextID,
			OriginX: origin[0],
			OriginY: origin[1],
			Length:  cfg.ChunkLength,
			State:   StateIdle,
		}
		if err := p.persistLocked(t); err != nil {
			return err
		}
		p.tunnels[t.ID] = t
	}
	return nil
}

func (p *Plan) persistLocked(t *Tunnel) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "tunnelplan: marshal tunnel")
	}
	return p.db.Put(tunnelKey(t.ID), raw)
}

// Tunnels returns a snapshot of the plan, ordered by id.
func (p *Plan) Tunnels() []Tunnel {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Tunnel, 0, len(p.tunnels))
	for _, t := range p.tunnels {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a snapshot of one tunnel.
func (p *Plan) Get(id uint64) (Tunnel, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tunnels[id]
	if !ok {
		return Tunnel{}, false
	}
	return *t, true
}

// ApplyRemote overwrites (or inserts) one tunnel record as observed via an
// assign message addressed to this agent, without the leader-only claim
// semantics below.
func (p *Plan) ApplyRemote(t Tunnel) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := t
	if err := p.persistLocked(&cp); err != nil {
		return err
	}
	p.tunnels[t.ID] = &cp
	if t.ID > p.nextID {
		p.nextID = t.ID
	}
	return nil
}

// ClaimFirstIdle scans the plan in id order and assigns the first idle
// tunnel to agentID, transitioning it to claimed. Only the leader calls
// this (spec.md §4.7 step 2).
func (p *Plan) ClaimFirstIdle(agentID string) (*Tunnel, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []uint64
	for id := range p.tunnels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		t := p.tunnels[id]
		if t.State != StateIdle {
			continue
		}
		cp := *t
		cp.State = StateClaimed
		cp.ClaimedBy = agentID
		if err := p.persistLocked(&cp); err != nil {
			return nil, false, err
		}
		p.tunnels[id] = &cp
		autometrics.TunnelsClaimed.Inc(1)
		out := cp
		return &out, true, nil
	}
	return nil, false, nil
}

// Release records a tunnel's progress and state as reported: the leader
// calls it when applying a job_release from the claiming agent (spec.md
// §4.7 step 4), and the claiming agent calls it on its own replica after
// each tunnel step.
func (p *Plan) Release(id uint64, progress int, state State) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tunnels[id]
	if !ok {
		return errors.Errorf("tunnelplan: unknown tunnel %d", id)
	}
	cp := *t
	cp.Progress = progress
	cp.State = state
	if state != StateClaimed && state != StateActive {
		cp.ClaimedBy = ""
	}
	if err := p.persistLocked(&cp); err != nil {
		return err
	}
	p.tunnels[id] = &cp
	if state == StateDone {
		autometrics.TunnelsCompleted.Inc(1)
	}
	return nil
}

// ReclaimDeadClaims returns any claimed/active tunnel whose owner is no
// longer live back to idle, per §4.7's "unclaimed assignments for dead
// peers are returned to idle upon discovery".
func (p *Plan) ReclaimDeadClaims(isAlive func(agentID string) bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, t := range p.tunnels {
		if (t.State == StateClaimed || t.State == StateActive) && t.ClaimedBy != "" && !isAlive(t.ClaimedBy) {
			cp := *t
			cp.State = StateIdle
			cp.ClaimedBy = ""
			if err := p.persistLocked(&cp); err != nil {
				return err
			}
			p.tunnels[id] = &cp
		}
	}
	return nil
}

// ReconcileDuplicateClaim resolves two leaders having independently claimed
// the same tunnel for different requesters (spec.md §4.9): the candidate
// wins only if it has progressed further, ties broken by the numerically
// lower agent id (an explicit decision — the spec leaves the tie-break
// unspecified and only requires determinism).
func (p *Plan) ReconcileDuplicateClaim(id uint64, candidateAgent string, candidateProgress int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tunnels[id]
	if !ok {
		return errors.Errorf("tunnelplan: unknown tunnel %d", id)
	}
	if candidateProgress < t.Progress {
		return nil
	}
	if candidateProgress == t.Progress {
		candidateLower := candidateAgent < t.ClaimedBy
		cn, cErr := strconv.Atoi(candidateAgent)
		hn, hErr := strconv.Atoi(t.ClaimedBy)
		if cErr == nil && hErr == nil {
			candidateLower = cn < hn
		}
		if !candidateLower {
			return nil
		}
	}
	cp := *t
	cp.ClaimedBy = candidateAgent
	cp.Progress = candidateProgress
	if err := p.persistLocked(&cp); err != nil {
		return err
	}
	p.tunnels[id] = &cp
	return nil
}
