package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	logger "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradeledger/src/connectors"
	"tradeledger/src/database"
	"tradeledger/src/executors"
	"tradeledger/src/gate"
	"tradeledger/src/repository"
	"tradeledger/src/server"
	"tradeledger/src/valuation"
)

var Version string

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()

	app := cli.NewApp()
	app.Name = "tradeledger"
	app.Usage = "The tradeledger command line interface"

	app.Commands = []cli.Command{
		serverCMD,
		workerCMD,
		gateCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run the API server",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Serve the order, gate and portfolio API`,
	}
	workerCMD = cli.Command{
		Name:        "worker",
		Usage:       "run the reconciliation workers",
		Action:      workerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the reconciliation loop, trade-update stream and quote refresher`,
	}
	gateCMD = cli.Command{
		Name:      "gate",
		Usage:     "inspect or flip the kill switch",
		Action:    gateAction,
		ArgsUsage: "status|activate|deactivate",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "reason", Usage: "reason recorded on the transition"},
			cli.StringFlag{Name: "by", Usage: "operator recorded on the transition", Value: "cli"},
		},
		Description: `Read or change whether order submissions are blocked`,
	}
)

func buildGateService() (*gate.Service, error) {
	apiKey, apiSecret, err := executors.VenueCredentials()
	if err != nil {
		return nil, err
	}

	return gate.NewService(
		repository.NewOrderRepository(),
		repository.NewPositionRepository(),
		repository.NewGateRepository(),
		connectors.NewClient(apiKey, apiSecret),
	), nil
}

func serverAction(_ *cli.Context) error {
	logger.Info("Starting API server")

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	gateSvc, err := buildGateService()
	if err != nil {
		logger.WithError(err).Error("Failed to build gate service")
		return err
	}

	apiKey, apiSecret, err := executors.VenueCredentials()
	if err != nil {
		return err
	}
	venue := connectors.NewClient(apiKey, apiSecret)

	positionRep := repository.NewPositionRepository()
	quotes := valuation.NewService(positionRep, venue, connectors.NewCryptoQuoteSource())

	server.StartServer(server.GetConfig().Port, server.Deps{
		Gate:      gateSvc,
		Valuation: quotes,
		Orders:    repository.NewOrderRepository(),
		GateAudit: repository.NewGateRepository(),
		Venue:     venue,
	})
	return nil
}

func workerAction(_ *cli.Context) error {
	logger.Info("Starting reconciliation workers")

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := executors.StartLoop(ctx); err != nil {
		logger.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func gateAction(c *cli.Context) error {
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	ctx := context.Background()
	gateRep := repository.NewGateRepository()

	switch c.Args().First() {
	case "status", "":
		status, err := gateRep.Get(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("active=%t reason=%q changed_at=%s\n", status.Active, status.Reason, status.ChangedAt)
		return nil
	case "activate":
		status, err := gateRep.SetActive(ctx, true, c.String("reason"), c.String("by"))
		if err != nil {
			return err
		}
		fmt.Printf("kill switch engaged, trading disabled (since %s)\n", status.ChangedAt)
		return nil
	case "deactivate":
		status, err := gateRep.SetActive(ctx, false, c.String("reason"), c.String("by"))
		if err != nil {
			return err
		}
		fmt.Printf("kill switch released, trading enabled (since %s)\n", status.ChangedAt)
		return nil
	default:
		return fmt.Errorf("unknown gate subcommand %q", c.Args().First())
	}
}
