package main

import (
	"encoding/json"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	"gopkg.in/urfave/cli.v1"

	"github.com/DannyDoesGraphics/auto-mine/internal/bus"
	"github.com/DannyDoesGraphics/auto-mine/internal/config"
	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
)

var configVersionFlag = cli.UintFlag{
	Name:  "version",
	Usage: "config version to stamp onto this update (bump on every change)",
	Value: 1,
}

var configureCommand = cli.Command{
	Name:      "configure",
	Usage:     "interactively build and broadcast a quarry configuration",
	ArgsUsage: "<quarryId>",
	Flags:     []cli.Flag{kafkaBrokersFlag, dataDirFlag, dbTypeFlag, configVersionFlag},
	Action: func(ctx *cli.Context) error {
		return runConfigure(ctx)
	},
}

func runConfigure(ctx *cli.Context) error {
	quarryID := ctx.Args().First()
	if quarryID == "" {
		return cli.NewExitError("automine configure: <quarryId> is required", 1)
	}

	cfg := config.RunWizard(quarryID)
	cfg.ConfigVersion = uint64(ctx.Uint(configVersionFlag.Name))
	cfg.BBox.ConfigVersion = cfg.ConfigVersion

	if dir := ctx.String(dataDirFlag.Name); dir != "" {
		rootDB, err := storage.New(storage.DBType(ctx.String(dbTypeFlag.Name)), dir)
		if err != nil {
			return err
		}
		defer rootDB.Close()
		store := config.NewStore(storage.Table(rootDB, "config/"+quarryID+"/"))
		if err := store.Save(cfg); err != nil {
			return err
		}
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

	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(bus.ConfigBlobPayload{Config: raw})
	if err != nil {
		return err
	}
	err = b.Send(bus.Message{
		Sender:    "operator-" + operatorID,
		Timestamp: time.Now().Unix(),
		QuarryID:  quarryID,
		Type:      bus.TypeConfigUpdate,
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	log.Info("config_update broadcast sent", "quarry", quarryID, "version", cfg.ConfigVersion)
	return nil
}
