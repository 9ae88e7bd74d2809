// Package journal implements the "ACID-verify" durable log: every
// non-idempotent side effect is paired with a verifier that can decide,
// after a crash, whether the effect already took place.
package journal

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/DannyDoesGraphics/auto-mine/internal/errs"
	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
	"github.com/DannyDoesGraphics/auto-mine/internal/xlog"
	autometrics "github.com/DannyDoesGraphics/auto-mine/internal/metrics"
)

// Kind identifies the registered verifier a pending entry replays against.
type Kind string

const (
	MoveForward   Kind = "move_forward"
	MoveUp        Kind = "move_up"
	MoveDown      Kind = "move_down"
	TurnLeft      Kind = "turn_left"
	TurnRight     Kind = "turn_right"
	DigForward    Kind = "dig_forward"
	DigUp         Kind = "dig_up"
	DigDown       Kind = "dig_down"
	ClaimTunnel   Kind = "claim_tunnel"
	ReleaseTunnel Kind = "release_tunnel"
	Deposit       Kind = "deposit"
	Refuel        Kind = "refuel"
	Broadcast     Kind = "broadcast"
	Calibrate     Kind = "calibrate"
)

// Entry is one pending side effect awaiting verification.
type Entry struct {
	ID        uint64          `json:"id"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	StartedAt time.Time       `json:"started_at"`
}

// Verifier decides, given the entry's payload, whether the intended effect
// has already taken place (by observing world state) or re-attempts the
// action idempotently and reports the outcome.
type Verifier func(payload json.RawMessage) (bool, error)

var keyPrefix = []byte("pending/")
var quarantinePrefix = []byte("quarantine/")

// Journal is the per-agent append-only log of pending entries, backed by
// the storage layer's table-scoped KV namespace.
type Journal struct {
	mu        sync.Mutex
	db        storage.Database
	verifiers map[Kind]Verifier
	nextID    uint64
	log       xlog.Logger
}

// New opens a Journal over db (expected to already be a table-scoped view,
// e.g. storage.Table(root, "journal/")).
func New(db storage.Database) *Journal {
	return &Journal{
		db:        db,
		verifiers: make(map[Kind]Verifier),
		log:       xlog.NewModuleLogger("journal"),
	}
}

// Register binds a Verifier to a Kind. Call during component wiring, before
// Resume, so every pending entry from a prior run can be replayed.
func (j *Journal) Register(kind Kind, v Verifier) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.verifiers[kind] = v
}

func entryKey(id uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(id >> (8 * i))
	}
	return append(append([]byte(nil), keyPrefix...), b...)
}

// Begin allocates a monotonic id, persists the entry, and returns it. The
// caller then performs the native action and calls Complete on success.
func (j *Journal) Begin(kind Kind, payload interface{}) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.nextID++
	id := j.nextID

	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, errors.Wrap(err, "journal: marshal payload")
	}
	entry := Entry{ID: id, Kind: kind, Payload: raw, StartedAt: time.Now()}
	blob, err := json.Marshal(entry)
	if err != nil {
		return 0, errors.Wrap(err, "journal: marshal entry")
	}
	if err := j.db.Put(entryKey(id), blob); err != nil {
		return 0, errors.Wrap(err, "journal: persist entry")
	}
	return id, nil
}

// Complete removes a successfully-verified/completed entry.
func (j *Journal) Complete(id uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.db.Delete(entryKey(id)); err != nil {
		return errors.Wrap(err, "journal: remove entry")
	}
	return nil
}

// NextID returns the journal's current monotonic id counter.
func (j *Journal) NextID() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextID
}

// Pending lists all entries still awaiting verification/completion, in id
// order.
func (j *Journal) Pending() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.pendingLocked()
}

// pendingLocked lists every parseable pending entry. An entry that fails to
// unmarshal is quarantined — moved to a side key under quarantinePrefix and
// removed from pending/ — rather than aborting the whole scan, per spec.md
// §7's JournalCorrupt handling rule: one corrupt entry must not block every
// other pending action from being resumed and verified.
func (j *Journal) pendingLocked() ([]Entry, error) {
	it := j.db.NewIterator(keyPrefix)

	var out []Entry
	type corrupt struct {
		key []byte
		raw []byte
	}
	var quarantined []corrupt
	for it.Next() {
		var e Entry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			j.log.Error("quarantining unparsable pending entry", "key", string(it.Key()), "err", err)
			quarantined = append(quarantined, corrupt{
				key: append([]byte(nil), it.Key()...),
				raw: append([]byte(nil), it.Value()...),
			})
			continue
		}
		out = append(out, e)
		if e.ID > j.nextID {
			j.nextID = e.ID
		}
	}
	it.Release()

	for _, c := range quarantined {
		qkey := append(append([]byte(nil), quarantinePrefix...), c.key...)
		if err := j.db.Put(qkey, c.raw); err != nil {
			return nil, errs.Wrap(errs.JournalCorrupt, err, "quarantine corrupt entry")
		}
		if err := j.db.Delete(c.key); err != nil {
			return nil, errs.Wrap(errs.JournalCorrupt, err, "remove quarantined entry from pending")
		}
		autometrics.JournalQuarantined.Inc(1)
	}
	return out, nil
}

// Resume replays every pending entry against its registered verifier.
// Entries that verify true are completed; entries that verify false, or
// whose kind has no registered verifier, remain pending and are reported
// back to the caller as still-unverified so the worker can refuse to
// advance state past that step. Resume itself is idempotent: calling it
// twice in a row on the same crash-consistent state is a no-op the second
// time.
func (j *Journal) Resume() (unverified []Entry, err error) {
	pending, err := j.Pending()
	if err != nil {
		return nil, err
	}
	for _, e := range pending {
		v, ok := j.verifiers[e.Kind]
		if !ok {
			j.log.Error("no verifier registered for pending entry", "kind", e.Kind, "id", e.ID)
			unverified = append(unverified, e)
			continue
		}
		ok2, verr := v(e.Payload)
		if verr != nil {
			j.log.Error("verifier error", "kind", e.Kind, "id", e.ID, "err", verr)
			unverified = append(unverified, e)
			autometrics.JournalUnverified.Inc(1)
			continue
		}
		if !ok2 {
			unverified = append(unverified, e)
			autometrics.JournalUnverified.Inc(1)
			continue
		}
		if cerr := j.Complete(e.ID); cerr != nil {
			return nil, cerr
		}
	}
	return unverified, nil
}
