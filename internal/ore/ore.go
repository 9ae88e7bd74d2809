// Package ore implements the shared, deduped ore registry and the bounded
// flood-fill used to mine a discovered vein (spec.md §4.8).
package ore

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/pkg/errors"

	"github.com/DannyDoesGraphics/auto-mine/internal/geometry"
	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
	"github.com/DannyDoesGraphics/auto-mine/internal/xlog"
	autometrics "github.com/DannyDoesGraphics/auto-mine/internal/metrics"
)

// Status is an Observation's lifecycle: it only ever moves queued -> mined
// (spec.md §5, "the ore registry is monotone").
type Status string

const (
	StatusQueued Status = "queued"
	StatusMined  Status = "mined"
)

// Observation is one recorded ore block, keyed by (pos, block).
type Observation struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Z      int    `json:"z"`
	Block  string `json:"block"`
	Status Status `json:"status"`
}

func key(x, y, z int, block string) []byte {
	return []byte(fmt.Sprintf("obs/%d:%d:%d:%s", x, y, z, block))
}

var neighborOffsets = [6][3]int{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

// Registry is the persisted, deduped set of ore observations. Each agent
// keeps its own replica; the bus protocol has no ore message type, so
// replicas are not exchanged between agents. A small fastcache sits in
// front of the persisted store so repeated scans of the same block don't round-trip to disk.
type Registry struct {
	mu    sync.Mutex
	db    storage.Database
	cache *fastcache.Cache
	log   xlog.Logger
}

// New opens a Registry, sizing the dedup cache in bytes.
func New(db storage.Database, cacheSizeBytes int) *Registry {
	return &Registry{
		db:    db,
		cache: fastcache.New(cacheSizeBytes),
		log:   xlog.NewModuleLogger("ore"),
	}
}

// Observe records a newly-scanned block if it matches the ore tag set and
// isn't already known. Returns true if this is a fresh queued observation
// the caller should turn into an ore_mine job.
func (r *Registry) Observe(x, y, z int, block string, isOreTag func(string) bool) (bool, error) {
	if !isOreTag(block) {
		return false, nil
	}
	k := key(x, y, z, block)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cache.Has(k) {
		return false, nil
	}
	if raw, err := r.db.Get(k); err == nil {
		var existing Observation
		if uerr := json.Unmarshal(raw, &existing); uerr == nil {
			r.cache.Set(k, nil)
			return false, nil
		}
	}

	obs := Observation{X: x, Y: y, Z: z, Block: block, Status: StatusQueued}
	if err := r.persistLocked(k, obs); err != nil {
		return false, err
	}
	r.cache.Set(k, nil)
	return true, nil
}

func (r *Registry) persistLocked(k []byte, obs Observation) error {
	raw, err := json.Marshal(obs)
	if err != nil {
		return errors.Wrap(err, "ore: marshal observation")
	}
	return r.db.Put(k, raw)
}

// Get returns the current observation at (x,y,z,block), if recorded.
func (r *Registry) Get(x, y, z int, block string) (Observation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, err := r.db.Get(key(x, y, z, block))
	if err != nil {
		return Observation{}, false, nil
	}
	var obs Observation
	if err := json.Unmarshal(raw, &obs); err != nil {
		return Observation{}, false, errors.Wrap(err, "ore: corrupt observation")
	}
	return obs, true, nil
}

// Promote transitions an observation to mined. Idempotent: promoting an
// already-mined or unknown entry is a no-op, which resolves the case where
// a peer consumed the vein first.
func (r *Registry) Promote(x, y, z int, block string) error {
	k := key(x, y, z, block)

	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := r.db.Get(k)
	if err != nil {
		return nil
	}
	var obs Observation
	if err := json.Unmarshal(raw, &obs); err != nil {
		return errors.Wrap(err, "ore: corrupt observation")
	}
	if obs.Status == StatusMined {
		return nil
	}
	obs.Status = StatusMined
	if err := r.persistLocked(k, obs); err != nil {
		return err
	}
	autometrics.OreVeinsMined.Inc(1)
	return nil
}

// All returns a snapshot of every recorded observation, for the operator
// status view and the agent snapshot.
func (r *Registry) All() ([]Observation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it := r.db.NewIterator([]byte("obs/"))
	defer it.Release()

	var out []Observation
	for it.Next() {
		var obs Observation
		if err := json.Unmarshal(it.Value(), &obs); err != nil {
			return nil, errors.Wrap(err, "ore: corrupt observation")
		}
		out = append(out, obs)
	}
	return out, nil
}

// ApplyRemote overwrites (or inserts) one observation as received from a
// peer, bypassing the fresh-discovery accounting in Observe. A queued record
// never overwrites one already recorded as mined, so the status stays
// monotone.
func (r *Registry) ApplyRemote(obs Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(obs.X, obs.Y, obs.Z, obs.Block)
	if obs.Status != StatusMined {
		if raw, err := r.db.Get(k); err == nil {
			var existing Observation
			if json.Unmarshal(raw, &existing) == nil && existing.Status == StatusMined {
				return nil
			}
		}
	}
	return r.persistLocked(k, obs)
}

// VeinMembers runs a bounded BFS over 6-neighbours starting at (x,y,z),
// following only registered queued observations of the same block name and
// staying inside bbox, stopping once the cumulative member count reaches
// cap. The caller (the worker) is responsible for actually navigating to
// and mining each member, then calling Promote.
func (r *Registry) VeinMembers(x, y, z int, block string, bbox geometry.BoundingBox, cap int) ([]Observation, error) {
	start, ok, err := r.Get(x, y, z, block)
	if err != nil {
		return nil, err
	}
	if !ok || start.Status != StatusQueued {
		return nil, nil
	}

	visited := map[[3]int]bool{{x, y, z}: true}
	queue := [][3]int{{x, y, z}}
	var members []Observation
	members = append(members, start)

	for len(queue) > 0 && len(members) < cap {
		cur := queue[0]
		queue = queue[1:]

		for _, off := range neighborOffsets {
			nx, ny, nz := cur[0]+off[0], cur[1]+off[1], cur[2]+off[2]
			if !bbox.Contains(nx, ny, nz) {
				continue
			}
			pos := [3]int{nx, ny, nz}
			if visited[pos] {
				continue
			}
			visited[pos] = true

			obs, ok, err := r.Get(nx, ny, nz, block)
			if err != nil {
				return nil, err
			}
			if !ok || obs.Status != StatusQueued {
				continue
			}
			members = append(members, obs)
			queue = append(queue, pos)
			if len(members) >= cap {
				break
			}
		}
	}
	return members, nil
}
