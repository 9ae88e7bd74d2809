package main

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/DannyDoesGraphics/auto-mine/internal/agentstate"
	"github.com/DannyDoesGraphics/auto-mine/internal/bus"
	"github.com/DannyDoesGraphics/auto-mine/internal/geometry"
	"github.com/DannyDoesGraphics/auto-mine/internal/jobqueue"
	"github.com/DannyDoesGraphics/auto-mine/internal/membership"
	"github.com/DannyDoesGraphics/auto-mine/internal/ore"
	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
	"github.com/DannyDoesGraphics/auto-mine/internal/tunnelplan"
)

var listenFlag = cli.DurationFlag{
	Name:  "listen",
	Usage: "how long to listen for peer heartbeats before reporting",
	Value: 3 * time.Second,
}

var statusCommand = cli.Command{
	Name:      "status",
	Usage:     "inspect an agent's persisted state and the fleet's live membership",
	ArgsUsage: "<quarryId>",
	Flags:     []cli.Flag{dataDirFlag, dbTypeFlag, kafkaBrokersFlag, listenFlag},
	Action: func(ctx *cli.Context) error {
		return runStatus(ctx)
	},
}

// runStatus composes a read-only agentstate.Snapshot the way a running
// Agent's own Snapshot method would, but against a data directory that
// need not have a live Tick loop attached to it: the tunnel plan, job
// ledger, and ore registry are rebuilt straight from storage, while
// membership is populated by briefly joining the bus and collecting
// whatever heartbeats arrive in the listen window.
func runStatus(ctx *cli.Context) error {
	quarryID := ctx.Args().First()
	if quarryID == "" {
		return cli.NewExitError("automine status: <quarryId> is required", 1)
	}

	rootDB, err := storage.New(storage.DBType(ctx.String(dbTypeFlag.Name)), ctx.String(dataDirFlag.Name))
	if err != nil {
		return err
	}
	defer rootDB.Close()

	jobs := jobqueue.New(storage.Table(rootDB, "jobqueue/"))
	if err := jobs.Load(); err != nil {
		return err
	}
	plan, err := tunnelplan.Load(storage.Table(rootDB, "tunnelplan/"))
	if err != nil {
		return err
	}
	registry := ore.New(storage.Table(rootDB, "ore/"), 8<<20)
	observations, err := registry.All()
	if err != nil {
		return err
	}

	table := membership.New("operator-status", 0)
	if brokers := ctx.StringSlice(kafkaBrokersFlag.Name); len(brokers) > 0 {
		b, err := bus.NewSarama(brokers, quarryID, "operator-status")
		if err != nil {
			return err
		}
		defer b.Close()

		deadline := time.Now().Add(ctx.Duration(listenFlag.Name))
		for time.Now().Before(deadline) {
			m, ok, err := b.Receive(250 * time.Millisecond)
			if err != nil {
				return err
			}
			if !ok || m.Type != bus.TypeHeartbeat {
				continue
			}
			var hb bus.HeartbeatPayload
			if err := decodeHeartbeat(m, &hb); err != nil {
				continue
			}
			table.Observe(membership.Record{
				AgentID: m.Sender, LastSeen: time.Unix(m.Timestamp, 0),
				Status: hb.Status, Job: hb.Job, Fuel: hb.Fuel, ConfigVersion: hb.ConfigVersion,
			})
		}
	}

	snap := agentstate.Build(geometry.Pose{}, false, table.AllRecords(), plan, jobs, observations, false, 0)
	out, err := snap.MarshalIndented()
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func decodeHeartbeat(m bus.Message, hb *bus.HeartbeatPayload) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("status: empty heartbeat payload")
	}
	return json.Unmarshal(m.Payload, hb)
}
