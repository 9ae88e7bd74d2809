package jobqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
)

func TestPopOrdersByPriorityThenCreatedAt(t *testing.T) {
	q := New(storage.NewMemory())
	require.NoError(t, q.Load())

	_, err := q.Enqueue(TypeTunnelMine, map[string]int{"tunnel": 1})
	require.NoError(t, err)
	_, err = q.Enqueue(TypeOreMine, map[string]int{"vein": 1})
	require.NoError(t, err)
	_, err = q.Enqueue(TypeRecall, nil)
	require.NoError(t, err)
	_, err = q.Enqueue(TypeRefuel, nil)
	require.NoError(t, err)

	j, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, TypeRecall, j.Type)

	j, err = q.Pop()
	require.NoError(t, err)
	assert.Equal(t, TypeRefuel, j.Type)

	j, err = q.Pop()
	require.NoError(t, err)
	assert.Equal(t, TypeOreMine, j.Type)

	j, err = q.Pop()
	require.NoError(t, err)
	assert.Equal(t, TypeTunnelMine, j.Type)
}

func TestEnqueueSystemJobIsIdempotent(t *testing.T) {
	q := New(storage.NewMemory())
	require.NoError(t, q.Load())

	first, err := q.Enqueue(TypeRecall, nil)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := q.Enqueue(TypeRecall, nil)
	require.NoError(t, err)
	assert.Nil(t, second)

	assert.Equal(t, 1, q.Len())
}

func TestFailWithoutRequeueDropsJob(t *testing.T) {
	q := New(storage.NewMemory())
	require.NoError(t, q.Load())

	j, err := q.Enqueue(TypeOreMine, nil)
	require.NoError(t, err)
	claimed, err := q.Pop()
	require.NoError(t, err)
	require.Equal(t, j.ID, claimed.ID)

	require.NoError(t, q.Fail(claimed.ID, false, 5))
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, StatusFailed, q.all[claimed.ID].Status)
}

func TestFailRequeuesUntilMaxFailures(t *testing.T) {
	q := New(storage.NewMemory())
	require.NoError(t, q.Load())

	j, err := q.Enqueue(TypeOreMine, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		claimed, err := q.Pop()
		require.NoError(t, err)
		require.Equal(t, j.ID, claimed.ID)
		require.NoError(t, q.Fail(claimed.ID, true, 3))
	}

	assert.Equal(t, StatusFailed, q.all[j.ID].Status)
	assert.Equal(t, 0, q.Len())
}

func TestLoadRebuildsQueueFromLedger(t *testing.T) {
	db := storage.NewMemory()
	q := New(db)
	require.NoError(t, q.Load())
	_, err := q.Enqueue(TypeOreMine, nil)
	require.NoError(t, err)

	q2 := New(db)
	require.NoError(t, q2.Load())
	assert.Equal(t, 1, q2.Len())
}
