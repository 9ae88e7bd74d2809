// Package metrics registers the fleet-wide counters/meters AutoMine
// exposes, in the style of work/worker.go's timeLimitReachedCounter /
// tooLongTxCounter in the teacher.
package metrics

import "github.com/rcrowley/go-metrics"

var (
	JournalUnverified  = metrics.NewRegisteredCounter("automine/journal/unverified", nil)
	JournalQuarantined = metrics.NewRegisteredCounter("automine/journal/quarantined", nil)
	JobsFailed         = metrics.NewRegisteredCounter("automine/jobs/failed", nil)
	JobsCompleted      = metrics.NewRegisteredCounter("automine/jobs/completed", nil)
	TunnelsClaimed     = metrics.NewRegisteredCounter("automine/tunnels/claimed", nil)
	TunnelsCompleted   = metrics.NewRegisteredCounter("automine/tunnels/completed", nil)
	OreVeinsMined      = metrics.NewRegisteredCounter("automine/ore/veinsmined", nil)
	RecallsHandled     = metrics.NewRegisteredCounter("automine/recalls/handled", nil)
	TickDuration       = metrics.NewRegisteredTimer("automine/worker/tickduration", nil)
	LeaderElections    = metrics.NewRegisteredCounter("automine/membership/elections", nil)
	HeartbeatsSent     = metrics.NewRegisteredMeter("automine/bus/heartbeatssent", nil)
	MessagesReceived   = metrics.NewRegisteredMeter("automine/bus/messagesreceived", nil)
)
