package membership

import (
	"encoding/json"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/internal/bus"
	autometrics "github.com/DannyDoesGraphics/auto-mine/internal/metrics"
)

// Heartbeater decides when the next heartbeat is due and builds the
// outgoing message; the worker loop calls MaybeSend once per tick.
type Heartbeater struct {
	table    *Table
	selfID   string
	quarryID string
	interval time.Duration
	nextSeq  func() uint64
	lastSent time.Time
}

// NewHeartbeater wires a Heartbeater against nextSeq, the agent's single
// per-sender sequence source shared with every other outgoing message type
// (directed sends included) — SaramaBus's consumer dedups strictly on
// sender+seq, so two independently-counting senders of the same agent id
// would eventually collide on the same seq and silently drop one
// message's type.
func NewHeartbeater(table *Table, selfID, quarryID string, interval time.Duration, nextSeq func() uint64) *Heartbeater {
	return &Heartbeater{table: table, selfID: selfID, quarryID: quarryID, interval: interval, nextSeq: nextSeq}
}

// MaybeSend emits a heartbeat on b if the interval has elapsed, returning
// whether it did.
func (h *Heartbeater) MaybeSend(b bus.Bus, status, job string, fuel int, configVersion uint64, now time.Time) (bool, error) {
	if !h.lastSent.IsZero() && now.Sub(h.lastSent) < h.interval {
		return false, nil
	}

	payload, err := json.Marshal(bus.HeartbeatPayload{Status: status, Job: job, Fuel: fuel, ConfigVersion: configVersion})
	if err != nil {
		return false, err
	}
	msg := bus.Message{
		Sender:    h.selfID,
		Seq:       h.nextSeq(),
		Timestamp: now.Unix(),
		QuarryID:  h.quarryID,
		Type:      bus.TypeHeartbeat,
		Payload:   payload,
	}
	if err := b.Send(msg); err != nil {
		return false, err
	}
	h.lastSent = now
	h.table.Touch(status, job, fuel, configVersion, now)
	return true, nil
}

// HandleHeartbeat updates the membership table from a received heartbeat
// message and reports whether the sender's configVersion is ahead of ours,
// the trigger for a config_request (spec.md §4.9 "config version drift").
func HandleHeartbeat(table *Table, msg bus.Message, localConfigVersion uint64, now time.Time) (driftDetected bool, err error) {
	var p bus.HeartbeatPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return false, err
	}
	table.Observe(Record{
		AgentID:       msg.Sender,
		LastSeen:      now,
		Status:        p.Status,
		Job:           p.Job,
		Fuel:          p.Fuel,
		ConfigVersion: p.ConfigVersion,
	})
	return p.ConfigVersion > localConfigVersion, nil
}

// RecomputeLeaderChange returns true and increments the elections counter
// when the leader differs from previousLeader.
func RecomputeLeaderChange(table *Table, previousLeader string, now time.Time) (newLeader string, changed bool) {
	newLeader = table.Leader(now)
	if newLeader != previousLeader {
		autometrics.LeaderElections.Inc(1)
		return newLeader, true
	}
	return newLeader, false
}
