package journal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
)

func TestResumeCompletesEntryWhenVerifierReturnsTrue(t *testing.T) {
	j := New(storage.NewMemory())
	j.Register(MoveForward, func(json.RawMessage) (bool, error) { return true, nil })

	id, err := j.Begin(MoveForward, struct{}{})
	require.NoError(t, err)

	unverified, err := j.Resume()
	require.NoError(t, err)
	assert.Empty(t, unverified)

	pending, err := j.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
	_ = id
}

func TestResumeLeavesEntryPendingWhenVerifierReturnsFalse(t *testing.T) {
	j := New(storage.NewMemory())
	j.Register(MoveForward, func(json.RawMessage) (bool, error) { return false, nil })

	id, err := j.Begin(MoveForward, struct{}{})
	require.NoError(t, err)

	unverified, err := j.Resume()
	require.NoError(t, err)
	require.Len(t, unverified, 1)
	assert.Equal(t, id, unverified[0].ID)

	pending, err := j.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestResumeReportsUnverifiedForUnregisteredKind(t *testing.T) {
	j := New(storage.NewMemory())

	_, err := j.Begin(ClaimTunnel, struct{}{})
	require.NoError(t, err)

	unverified, err := j.Resume()
	require.NoError(t, err)
	require.Len(t, unverified, 1)
	assert.Equal(t, ClaimTunnel, unverified[0].Kind)
}

func TestResumeLeavesEntryPendingWhenVerifierErrors(t *testing.T) {
	j := New(storage.NewMemory())
	j.Register(Refuel, func(json.RawMessage) (bool, error) { return false, assert.AnError })

	_, err := j.Begin(Refuel, struct{}{})
	require.NoError(t, err)

	unverified, err := j.Resume()
	require.NoError(t, err)
	require.Len(t, unverified, 1)
}

// TestResumeQuarantinesCorruptEntryAndContinues asserts the JournalCorrupt
// handling rule: one unparsable entry is moved aside rather than aborting
// Resume for every other pending entry.
func TestResumeQuarantinesCorruptEntryAndContinues(t *testing.T) {
	db := storage.NewMemory()
	j := New(db)
	j.Register(MoveForward, func(json.RawMessage) (bool, error) { return true, nil })

	goodID, err := j.Begin(MoveForward, struct{}{})
	require.NoError(t, err)

	corruptKey := entryKey(999)
	require.NoError(t, db.Put(corruptKey, []byte("not valid json")))

	unverified, err := j.Resume()
	require.NoError(t, err)
	assert.Empty(t, unverified, "the corrupt entry must not surface as unverified; it's quarantined, not pending")

	pending, err := j.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	has, err := db.Has(corruptKey)
	require.NoError(t, err)
	assert.False(t, has, "corrupt entry must be removed from pending/")

	qkey := append(append([]byte(nil), quarantinePrefix...), corruptKey...)
	quarantined, err := db.Get(qkey)
	require.NoError(t, err)
	assert.Equal(t, []byte("not valid json"), quarantined)

	_ = goodID
}

// TestResumeIsIdempotent exercises the law documented on Resume itself:
// calling it twice in a row on the same crash-consistent state is a no-op
// the second time.
func TestResumeIsIdempotent(t *testing.T) {
	j := New(storage.NewMemory())
	j.Register(MoveForward, func(json.RawMessage) (bool, error) { return true, nil })
	j.Register(Refuel, func(json.RawMessage) (bool, error) { return false, nil })

	_, err := j.Begin(MoveForward, struct{}{})
	require.NoError(t, err)
	refuelID, err := j.Begin(Refuel, struct{}{})
	require.NoError(t, err)

	first, err := j.Resume()
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, refuelID, first[0].ID)

	second, err := j.Resume()
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, refuelID, second[0].ID)
}

func TestBeginCompleteRoundTripRemovesEntry(t *testing.T) {
	j := New(storage.NewMemory())

	id, err := j.Begin(DigForward, struct{}{})
	require.NoError(t, err)

	pending, err := j.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)

	require.NoError(t, j.Complete(id))

	pending, err = j.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}
