package bus

import "time"

// Fleet is an in-process broadcast fabric standing in for Kafka in tests:
// every MemBus obtained from the same Fleet receives every Send from every
// other MemBus in that Fleet, the same fan-out Kafka's per-agent consumer
// groups give SaramaBus in production.
type Fleet struct {
	buses []*MemBus
}

// NewFleet returns an empty in-process bus fabric.
func NewFleet() *Fleet { return &Fleet{} }

// Join returns a new MemBus wired into the fleet.
func (f *Fleet) Join(agentID string) *MemBus {
	b := &MemBus{agentID: agentID, fleet: f, incoming: make(chan Message, 256)}
	f.buses = append(f.buses, b)
	return b
}

// MemBus is a Fleet-scoped Bus used by component and worker tests.
type MemBus struct {
	agentID  string
	fleet    *Fleet
	incoming chan Message
	closed   bool
}

func (b *MemBus) Send(m Message) error {
	for _, peer := range b.fleet.buses {
		if peer.closed {
			continue
		}
		select {
		case peer.incoming <- m:
		default:
			// A full channel means a slow/stalled test consumer; drop
			// rather than block the sender, matching the bus's at-most
			// bounded-latency contract.
		}
	}
	return nil
}

func (b *MemBus) Receive(timeout time.Duration) (Message, bool, error) {
	select {
	case m := <-b.incoming:
		return m, true, nil
	case <-time.After(timeout):
		return Message{}, false, nil
	}
}

func (b *MemBus) Close() { b.closed = true }
