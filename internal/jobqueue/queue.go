package jobqueue

import (
	"container/heap"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
	"github.com/DannyDoesGraphics/auto-mine/internal/xlog"
	autometrics "github.com/DannyDoesGraphics/auto-mine/internal/metrics"
)

var ledgerPrefix = []byte("ledger/")

// heapSlice is a min-heap of *Job keyed by (priority, createdAt), the
// materialized live view of the persisted ledger.
type heapSlice []*Job

func (h heapSlice) Len() int { return len(h) }
func (h heapSlice) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].CreatedAt < h[j].CreatedAt
}
func (h heapSlice) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *heapSlice) Push(x interface{}) { *h = append(*h, x.(*Job)) }
func (h *heapSlice) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is the per-agent persisted job ledger plus its materialized heap.
// The ledger holds one record per job id, which every mutation overwrites
// before updating the heap, so a crash mid-mutation replays to the same
// state on Load. Earlier states of a job are not kept.
type Queue struct {
	mu     sync.Mutex
	db     storage.Database
	heap   heapSlice
	all    map[uint64]*Job // latest known state per id, including terminal ones
	nextID uint64
	seq    int64
	log    xlog.Logger
}

func New(db storage.Database) *Queue {
	return &Queue{
		db:  db,
		all: make(map[uint64]*Job),
		log: xlog.NewModuleLogger("jobqueue"),
	}
}

func jobKey(id uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(id >> (8 * i))
	}
	return append(append([]byte(nil), ledgerPrefix...), b...)
}

// Load replays every ledger record and rebuilds the live heap from
// whichever jobs are still queued. Enqueue/Claim/Complete/Fail each
// overwrite the single record stored under the job's id, so the ledger holds
// only the latest state of every job, not its history.
func (q *Queue) Load() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	it := q.db.NewIterator(ledgerPrefix)
	defer it.Release()

	latest := make(map[uint64]*Job)
	for it.Next() {
		var j Job
		if err := json.Unmarshal(it.Value(), &j); err != nil {
			return errors.Wrap(err, "jobqueue: corrupt ledger record")
		}
		cp := j
		latest[j.ID] = &cp
		if j.ID > q.nextID {
			q.nextID = j.ID
		}
		if j.CreatedAt > q.seq {
			q.seq = j.CreatedAt
		}
	}

	q.heap = q.heap[:0]
	q.all = latest
	for _, j := range latest {
		if j.Status == StatusQueued {
			heap.Push(&q.heap, j)
		}
	}
	heap.Init(&q.heap)
	return nil
}

func (q *Queue) persist(j *Job) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return errors.Wrap(err, "jobqueue: marshal job")
	}
	return q.db.Put(jobKey(j.ID), raw)
}

// hasLiveSystemJob reports whether a queued or claimed job of the given
// type already exists, for the recall/refuel idempotent-enqueue rule.
func (q *Queue) hasLiveSystemJob(t Type) bool {
	for _, j := range q.all {
		if j.Type == t && (j.Status == StatusQueued || j.Status == StatusClaimed) {
			return true
		}
	}
	return false
}

// Enqueue appends a new job. For TypeRecall and TypeRefuel, enqueue is a
// no-op if a live instance already exists (spec.md §4.6).
func (q *Queue) Enqueue(t Type, payload interface{}) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if (t == TypeRecall || t == TypeRefuel) && q.hasLiveSystemJob(t) {
		return nil, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "jobqueue: marshal payload")
	}

	q.nextID++
	q.seq++
	j := &Job{
		ID:        q.nextID,
		Type:      t,
		Priority:  t.Priority(),
		Payload:   raw,
		Status:    StatusQueued,
		CreatedAt: q.seq,
	}
	if err := q.persist(j); err != nil {
		return nil, err
	}
	q.all[j.ID] = j
	heap.Push(&q.heap, j)
	return j, nil
}

// Pop removes and returns the highest-priority queued job, marking it
// claimed. At most one job may be active at a time; callers enforce that by
// not calling Pop again until Complete/Fail resolves the current one.
func (q *Queue) Pop() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil, nil
	}
	j := heap.Pop(&q.heap).(*Job)
	cp := *j
	cp.Status = StatusClaimed
	if err := q.persist(&cp); err != nil {
		// Put it back: the claim never took durable effect.
		heap.Push(&q.heap, j)
		return nil, err
	}
	q.all[cp.ID] = &cp
	return &cp, nil
}

// UpdatePayload rewrites a claimed job's payload in place (e.g. to persist
// mid-job progress such as flood-fill members still to mine), without
// changing its status.
func (q *Queue) UpdatePayload(id uint64, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.all[id]
	if !ok {
		return errors.Errorf("jobqueue: unknown job %d", id)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "jobqueue: marshal payload")
	}
	cp := *j
	cp.Payload = raw
	if err := q.persist(&cp); err != nil {
		return err
	}
	q.all[id] = &cp
	return nil
}

// Complete marks a claimed job as completed.
func (q *Queue) Complete(id uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.all[id]
	if !ok {
		return errors.Errorf("jobqueue: unknown job %d", id)
	}
	cp := *j
	cp.Status = StatusCompleted
	if err := q.persist(&cp); err != nil {
		return err
	}
	q.all[id] = &cp
	autometrics.JobsCompleted.Inc(1)
	return nil
}

// Fail records a failed attempt. If requeue is true the job is reinserted
// at the tail of its priority band (fresh CreatedAt) unless it has now hit
// maxFailures, in which case it transitions to failed and is dropped.
func (q *Queue) Fail(id uint64, requeue bool, maxFailures int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.all[id]
	if !ok {
		return errors.Errorf("jobqueue: unknown job %d", id)
	}
	cp := *j
	cp.Attempts++

	if !requeue || cp.Attempts >= maxFailures {
		cp.Status = StatusFailed
		if err := q.persist(&cp); err != nil {
			return err
		}
		q.all[id] = &cp
		autometrics.JobsFailed.Inc(1)
		return nil
	}

	q.seq++
	cp.Status = StatusQueued
	cp.CreatedAt = q.seq
	if err := q.persist(&cp); err != nil {
		return err
	}
	q.all[id] = &cp
	heap.Push(&q.heap, &cp)
	return nil
}

// Len reports the number of currently queued (not claimed/terminal) jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Pending returns a snapshot of every currently-queued job, priority order.
func (q *Queue) Pending() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.heap))
	cp := append(heapSlice(nil), q.heap...)
	for cp.Len() > 0 {
		j := heap.Pop(&cp).(*Job)
		out = append(out, *j)
	}
	return out
}

// Active returns the single claimed job, if any.
func (q *Queue) Active() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.all {
		if j.Status == StatusClaimed {
			cp := *j
			return &cp
		}
	}
	return nil
}

// Seq returns the internal createdAt sequence counter.
func (q *Queue) Seq() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq
}
