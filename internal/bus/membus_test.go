package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemBusFleetBroadcastsToAllMembers(t *testing.T) {
	fleet := NewFleet()
	a := fleet.Join("agent-a")
	b := fleet.Join("agent-b")
	c := fleet.Join("agent-c")

	require.NoError(t, a.Send(Message{Sender: "agent-a", Type: TypeHeartbeat, QuarryID: "q1"}))

	_, ok, err := a.Receive(50 * time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok, "sender also receives its own broadcast, like a Kafka subscriber would")

	mb, ok, err := b.Receive(50 * time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TypeHeartbeat, mb.Type)

	mc, ok, err := c.Receive(50 * time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "agent-a", mc.Sender)
}

func TestMemBusReceiveTimesOutWhenEmpty(t *testing.T) {
	fleet := NewFleet()
	a := fleet.Join("agent-a")

	_, ok, err := a.Receive(10 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}
