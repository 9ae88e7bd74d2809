// Command automine runs one AutoMine fleet agent, or issues an
// operator command (recall, configure) against a running quarry.
package main

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/urfave/cli.v1"

	"github.com/DannyDoesGraphics/auto-mine/internal/xlog"
)

var log = xlog.NewModuleLogger("cmd")

var (
	quarryFlag = cli.StringFlag{
		Name:  "quarry",
		Usage: "quarry id shared by every agent in this fleet",
	}
	agentIDFlag = cli.StringFlag{
		Name:  "agent-id",
		Usage: "this agent's unique fleet id",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Usage: "directory for this agent's local embedded store",
		Value: "./automine-data",
	}
	dbTypeFlag = cli.StringFlag{
		Name:  "db-type",
		Usage: `embedded storage backend ("leveldb", "badger")`,
		Value: "leveldb",
	}
	kafkaBrokersFlag = cli.StringSliceFlag{
		Name:  "kafka-brokers",
		Usage: "Kafka broker addresses backing the quarry bus",
	}
	metricsFlag = cli.BoolFlag{
		Name:  "metrics",
		Usage: "expose a Prometheus /metrics endpoint",
	}
	metricsPortFlag = cli.IntFlag{
		Name:  "metrics-port",
		Usage: "port for the Prometheus exporter",
		Value: 9545,
	}
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "automine"
	app.Usage = "distributed block-mining fleet coordinator"
	app.Commands = []cli.Command{
		startCommand,
		recallCommand,
		configureCommand,
		statusCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
