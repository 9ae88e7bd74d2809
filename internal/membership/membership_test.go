package membership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLeaderElectsSelfWithNoPeers(t *testing.T) {
	table := New("agent-5", time.Second)
	now := time.Unix(1000, 0)
	table.Touch("idle", "", 100, 1, now)

	assert.Equal(t, "agent-5", table.Leader(now))
	assert.True(t, table.IsLeader(now))
}

func TestLeaderIsLowestLiveID(t *testing.T) {
	table := New("agent-5", time.Second)
	now := time.Unix(1000, 0)
	table.Touch("idle", "", 100, 1, now)
	table.Observe(Record{AgentID: "agent-2", LastSeen: now})
	table.Observe(Record{AgentID: "agent-9", LastSeen: now})

	assert.Equal(t, "agent-2", table.Leader(now))
	assert.False(t, table.IsLeader(now))
}

func TestLeaderElectionIsNumericNotLexicographic(t *testing.T) {
	table := New("9", time.Second)
	now := time.Unix(1000, 0)
	table.Touch("idle", "", 100, 1, now)
	table.Observe(Record{AgentID: "10", LastSeen: now})

	// Lexicographically "10" < "9", but numerically 9 < 10: the lower
	// agent id must win the election.
	assert.Equal(t, "9", table.Leader(now))
	assert.True(t, table.IsLeader(now))
}

func TestDeadPeerExcludedFromElection(t *testing.T) {
	table := New("agent-5", time.Second)
	stale := time.Unix(1000, 0)
	table.Observe(Record{AgentID: "agent-1", LastSeen: stale})

	now := stale.Add(5 * time.Second)
	table.Touch("idle", "", 100, 1, now)

	assert.Equal(t, "agent-5", table.Leader(now))
	assert.False(t, table.IsAlive("agent-1", now))
}
