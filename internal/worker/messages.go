package worker

import (
	"encoding/json"

	"github.com/DannyDoesGraphics/auto-mine/internal/bus"
	"github.com/DannyDoesGraphics/auto-mine/internal/jobqueue"
	"github.com/DannyDoesGraphics/auto-mine/internal/journal"
	"github.com/DannyDoesGraphics/auto-mine/internal/membership"
	autometrics "github.com/DannyDoesGraphics/auto-mine/internal/metrics"
	"github.com/DannyDoesGraphics/auto-mine/internal/tunnelplan"
)

// claimTunnelPayload is what journal.ClaimTunnel journals: enough to
// re-check, after a crash, whether the requester's side of the tunnel-mutex
// handshake (spec.md §4.7 step 3) already landed in the local plan replica.
type claimTunnelPayload struct {
	TunnelID uint64 `json:"tunnelId"`
}

// releaseTunnelPayload is what journal.ReleaseTunnel journals.
type releaseTunnelPayload struct {
	JobID uint64 `json:"jobId"`
}

// registerMessageVerifiers binds the journal kinds this file journals
// directly. claim_tunnel and release_tunnel verify by observing local
// state; broadcast(seq) verifies by idempotently re-sending the exact
// message — safe because the receiver's sender+seq dedup cache collapses
// the replay with whatever already landed.
func registerMessageVerifiers(j *journal.Journal, plan *tunnelplan.Plan, jobs *jobqueue.Queue, b bus.Bus, selfID string) {
	j.Register(journal.ClaimTunnel, func(payload json.RawMessage) (bool, error) {
		var p claimTunnelPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return false, err
		}
		t, ok := plan.Get(p.TunnelID)
		return ok && t.ClaimedBy == selfID, nil
	})
	j.Register(journal.ReleaseTunnel, func(payload json.RawMessage) (bool, error) {
		var p releaseTunnelPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return false, err
		}
		active := jobs.Active()
		return active == nil || active.ID != p.JobID, nil
	})
	j.Register(journal.Broadcast, func(payload json.RawMessage) (bool, error) {
		var msg bus.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return false, err
		}
		if err := b.Send(msg); err != nil {
			return false, err
		}
		return true, nil
	})
}

// handleMessage dispatches one received bus message to the relevant
// component, per the protocol table in spec.md §6.
func (a *Agent) handleMessage(msg bus.Message) error {
	switch msg.Type {
	case bus.TypeHeartbeat:
		return a.handleHeartbeat(msg)
	case bus.TypeConfigRequest:
		return a.handleConfigRequest(msg)
	case bus.TypeConfigUpdate:
		return a.handleConfigUpdate(msg)
	case bus.TypeJobRequest:
		return a.handleJobRequest(msg)
	case bus.TypeAssign:
		return a.handleAssign(msg)
	case bus.TypeJobRelease:
		return a.handleJobRelease(msg)
	case bus.TypeRecall:
		return a.handleRecall(msg)
	default:
		// config_response and home_ack carry no mandatory side effect for
		// the worker beyond what the caller (CLI/config wizard) observes
		// directly; they're accepted but otherwise ignored here.
		return nil
	}
}

func (a *Agent) handleHeartbeat(msg bus.Message) error {
	drift, err := membership.HandleHeartbeat(a.Table, msg, a.Cfg.ConfigVersion, a.now())
	if err != nil {
		return err
	}
	if drift {
		return a.sendDirected(bus.TypeConfigRequest, nil, msg.Sender)
	}
	return nil
}

func (a *Agent) handleConfigRequest(msg bus.Message) error {
	raw, err := json.Marshal(a.Cfg)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(bus.ConfigBlobPayload{Config: raw})
	if err != nil {
		return err
	}
	return a.sendDirected(bus.TypeConfigResponse, payload, msg.Sender)
}

func (a *Agent) handleConfigUpdate(msg bus.Message) error {
	var blob bus.ConfigBlobPayload
	if err := json.Unmarshal(msg.Payload, &blob); err != nil {
		return err
	}
	var newCfg struct {
		ConfigVersion uint64 `json:"configVersion"`
	}
	if err := json.Unmarshal(blob.Config, &newCfg); err != nil {
		return err
	}
	if newCfg.ConfigVersion <= a.Cfg.ConfigVersion {
		return nil
	}
	if err := json.Unmarshal(blob.Config, &a.Cfg); err != nil {
		return err
	}
	*a.Mover.BBox = a.Cfg.BBox
	if !a.Cfg.BBox.ContainsPose(*a.Mover.Pose) {
		_, err := a.Jobs.Enqueue(jobqueue.TypeRecall, nil)
		return err
	}
	return nil
}

func (a *Agent) handleJobRequest(msg bus.Message) error {
	if !a.Table.IsLeader(a.now()) {
		return nil
	}
	t, ok, err := a.Plan.ClaimFirstIdle(msg.Sender)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	payload, err := json.Marshal(bus.AssignPayload{TunnelID: t.ID, OriginX: t.OriginX, OriginY: t.OriginY, Length: t.Length})
	if err != nil {
		return err
	}
	return a.sendDirected(bus.TypeAssign, payload, msg.Sender)
}

func (a *Agent) handleAssign(msg bus.Message) error {
	if msg.Target != a.SelfID {
		return nil
	}
	var p bus.AssignPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return err
	}
	if existing, ok := a.Plan.Get(p.TunnelID); ok && existing.ClaimedBy != "" && existing.ClaimedBy != a.SelfID {
		// Two leaders (mid leadership transition) independently assigned
		// this tunnel to different requesters. Reconcile deterministically
		// instead of letting whichever assign is processed last silently
		// win.
		if err := a.Plan.ReconcileDuplicateClaim(p.TunnelID, a.SelfID, 0); err != nil {
			return err
		}
		if reconciled, ok := a.Plan.Get(p.TunnelID); ok && reconciled.ClaimedBy != a.SelfID {
			return nil
		}
	}
	// spec.md §4.7 step 3: the requester journals the claim before starting
	// tunnel work, so a crash between accepting the assignment and
	// enqueuing the job resolves deterministically on restart instead of
	// silently losing the tunnel.
	id, err := a.J.Begin(journal.ClaimTunnel, claimTunnelPayload{TunnelID: p.TunnelID})
	if err != nil {
		return err
	}
	if err := a.Plan.ApplyRemote(tunnelplan.Tunnel{
		ID: p.TunnelID, OriginX: p.OriginX, OriginY: p.OriginY, Length: p.Length,
		State: tunnelplan.StateClaimed, ClaimedBy: a.SelfID,
	}); err != nil {
		return err
	}
	if _, err := a.Jobs.Enqueue(jobqueue.TypeTunnelMine, tunnelMinePayload{TunnelID: p.TunnelID}); err != nil {
		return err
	}
	return a.J.Complete(id)
}

func (a *Agent) handleJobRelease(msg bus.Message) error {
	if !a.Table.IsLeader(a.now()) {
		return nil
	}
	var p bus.JobReleasePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return err
	}
	return a.Plan.Release(p.TunnelID, p.Progress, tunnelplan.State(p.State))
}

func (a *Agent) handleRecall(msg bus.Message) error {
	var p bus.RecallPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return err
	}
	a.recallActive = p.Active
	autometrics.RecallsHandled.Inc(1)
	if p.Active {
		_, err := a.Jobs.Enqueue(jobqueue.TypeRecall, nil)
		return err
	}
	return nil
}

func (a *Agent) sendDirected(t bus.Type, payload interface{}, target string) error {
	raw, err := toRawMessage(payload)
	if err != nil {
		return err
	}
	msg := bus.Message{
		Sender: a.SelfID, Target: target, Seq: a.nextSeq(), Timestamp: a.now().Unix(),
		QuarryID: a.QuarryID, Type: t, Payload: raw,
	}
	// Journaled generically under broadcast(seq): a crash between
	// allocating the seq and the send landing is resolved by re-sending the
	// identical message on resume rather than by tracking each message
	// type's send path separately.
	id, err := a.J.Begin(journal.Broadcast, msg)
	if err != nil {
		return err
	}
	if err := a.Bus.Send(msg); err != nil {
		return err
	}
	return a.J.Complete(id)
}

func (a *Agent) sendJobRelease(tunnelID uint64, progress int, state string) error {
	leader := a.Table.Leader(a.now())
	payload, err := json.Marshal(bus.JobReleasePayload{TunnelID: tunnelID, Progress: progress, State: state})
	if err != nil {
		return err
	}
	return a.sendDirected(bus.TypeJobRelease, json.RawMessage(payload), leader)
}

func (a *Agent) sendJobRequest() error {
	leader := a.Table.Leader(a.now())
	return a.sendDirected(bus.TypeJobRequest, nil, leader)
}

// toRawMessage accepts either an already-marshaled payload (json.RawMessage
// or []byte, the common case since every handler below marshals its own
// payload struct first) or an arbitrary value to marshal directly.
func toRawMessage(payload interface{}) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(payload)
	}
}

func (a *Agent) releaseTunnel(t tunnelplan.Tunnel, progress int, state string, jobID uint64) error {
	id, err := a.J.Begin(journal.ReleaseTunnel, releaseTunnelPayload{JobID: jobID})
	if err != nil {
		return err
	}
	if err := a.sendJobRelease(t.ID, progress, state); err != nil {
		return err
	}
	if err := a.J.Complete(id); err != nil {
		return err
	}
	return a.Jobs.Complete(jobID)
}
