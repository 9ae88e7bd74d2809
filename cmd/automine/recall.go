package main

import (
	"encoding/json"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	"gopkg.in/urfave/cli.v1"

	"github.com/DannyDoesGraphics/auto-mine/internal/bus"
)

var recallCommand = cli.Command{
	Name:      "recall",
	Usage:     "broadcast a fleet-wide recall for a quarry",
	ArgsUsage: "<quarryId>",
	Flags:     []cli.Flag{kafkaBrokersFlag},
	Action: func(ctx *cli.Context) error {
		return sendRecall(ctx, true)
	},
}

func sendRecall(ctx *cli.Context, active bool) error {
	quarryID := ctx.Args().First()
	if quarryID == "" {
		return cli.NewExitError("automine recall: <quarryId> is required", 1)
	}

	operatorID, err := uuid.GenerateUUID()
	if err != nil {
		return err
	}
	b, err := bus.NewSarama(ctx.StringSlice(kafkaBrokersFlag.Name), quarryID, "operator-"+operatorID)
	if err != nil {
		return err
	}
	defer b.Close()

	payload, err := json.Marshal(bus.RecallPayload{Active: active})
	if err != nil {
		return err
	}
	err = b.Send(bus.Message{
		Sender:    "operator-" + operatorID,
		Timestamp: time.Now().Unix(),
		QuarryID:  quarryID,
		Type:      bus.TypeRecall,
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	log.Info("recall broadcast sent", "quarry", quarryID, "active", active)
	return nil
}
