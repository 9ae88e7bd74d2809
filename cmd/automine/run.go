package main

import (
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/urfave/cli.v1"

	"github.com/DannyDoesGraphics/auto-mine/internal/bus"
	"github.com/DannyDoesGraphics/auto-mine/internal/config"
	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
	"github.com/DannyDoesGraphics/auto-mine/internal/turtleio"
	"github.com/DannyDoesGraphics/auto-mine/internal/worker"
)

var startCommand = cli.Command{
	Name:  "start",
	Usage: "run this process as one fleet agent",
	Flags: []cli.Flag{quarryFlag, agentIDFlag, dataDirFlag, dbTypeFlag, kafkaBrokersFlag, metricsFlag, metricsPortFlag},
	Action: func(ctx *cli.Context) error {
		return runStart(ctx)
	},
}

func runStart(ctx *cli.Context) error {
	quarryID := ctx.String(quarryFlag.Name)
	agentID := ctx.String(agentIDFlag.Name)
	if quarryID == "" || agentID == "" {
		return cli.NewExitError("automine start: --quarry and --agent-id are required", 1)
	}

	dbType := storage.DBType(ctx.String(dbTypeFlag.Name))
	rootDB, err := storage.New(dbType, ctx.String(dataDirFlag.Name))
	if err != nil {
		return err
	}
	defer rootDB.Close()

	configStore := config.NewStore(storage.Table(rootDB, "config/"+quarryID+"/"))
	cfg, found, err := configStore.Load()
	if err != nil {
		return err
	}
	if !found {
		log.Info("no config found for quarry, launching first-boot wizard", "quarry", quarryID)
		cfg = config.RunWizard(quarryID)
		if err := configStore.Save(cfg); err != nil {
			return err
		}
	}

	brokers := ctx.StringSlice(kafkaBrokersFlag.Name)
	b, err := bus.NewSarama(brokers, quarryID, agentID)
	if err != nil {
		return err
	}
	defer b.Close()

	bridge := turtleio.NewBridge(os.Stdin, os.Stdout)

	agent, err := worker.NewAgent(worker.Deps{
		SelfID: agentID, QuarryID: quarryID, Cfg: cfg,
		World: bridge, Inv: bridge, Bus: b, RootDB: rootDB,
	})
	if err != nil {
		return err
	}
	if err := agent.Start(); err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	if ctx.Bool(metricsFlag.Name) {
		go serveMetrics(ctx.Int(metricsPortFlag.Name))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			log.Info("shutting down", "quarry", quarryID, "agent", agentID)
			return nil
		default:
			if err := agent.Tick(); err != nil {
				return cli.NewExitError(err.Error(), 2)
			}
		}
	}
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := ":" + strconv.Itoa(port)
	log.Info("serving prometheus metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", "err", err)
	}
}
