package tunnelplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DannyDoesGraphics/auto-mine/internal/config"
	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
)

func seeded(t *testing.T) *Plan {
	t.Helper()
	db := storage.NewMemory()
	p, err := Load(db)
	require.NoError(t, err)
	cfg := config.Default()
	require.NoError(t, p.Seed(cfg))
	return p
}

func TestSeedEnumeratesPerConfig(t *testing.T) {
	p := seeded(t)
	cfg := config.Default()
	assert.Equal(t, len(cfg.TunnelOrigins()), len(p.Tunnels()))
}

func TestClaimFirstIdleAssignsLowestID(t *testing.T) {
	p := seeded(t)

	claimed, ok, err := p.ClaimFirstIdle("agent-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), claimed.ID)
	assert.Equal(t, StateClaimed, claimed.State)

	second, ok, err := p.ClaimFirstIdle("agent-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), second.ID)
}

func TestReleaseUpdatesProgressAndState(t *testing.T) {
	p := seeded(t)
	claimed, _, err := p.ClaimFirstIdle("agent-1")
	require.NoError(t, err)

	require.NoError(t, p.Release(claimed.ID, claimed.Length, StateDone))
	got, ok := p.Get(claimed.ID)
	require.True(t, ok)
	assert.Equal(t, StateDone, got.State)
	assert.Equal(t, claimed.Length, got.Progress)
}

func TestReclaimDeadClaimsReturnsToIdle(t *testing.T) {
	p := seeded(t)
	claimed, _, err := p.ClaimFirstIdle("agent-1")
	require.NoError(t, err)

	require.NoError(t, p.ReclaimDeadClaims(func(id string) bool { return id != "agent-1" }))
	got, ok := p.Get(claimed.ID)
	require.True(t, ok)
	assert.Equal(t, StateIdle, got.State)
	assert.Equal(t, "", got.ClaimedBy)
}

func TestReconcileDuplicateClaimKeepsFurtherProgress(t *testing.T) {
	p := seeded(t)
	claimed, _, err := p.ClaimFirstIdle("agent-2")
	require.NoError(t, err)

	require.NoError(t, p.Release(claimed.ID, 2, StateActive))
	require.NoError(t, p.ReconcileDuplicateClaim(claimed.ID, "agent-1", 1))

	got, ok := p.Get(claimed.ID)
	require.True(t, ok)
	assert.Equal(t, "agent-2", got.ClaimedBy)
	assert.Equal(t, 2, got.Progress)
}
