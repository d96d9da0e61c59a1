package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/sorel-connect/cmd"
)

func main() {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			EnvVars: []string{"LOG_LEVEL"},
			Value:   "INFO",
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			EnvVars: []string{"SOREL_POLL_INTERVAL"},
		},
	}

	app := &cli.App{
		Name:   "sorel-connect",
		Usage:  "polls a SOREL Connect installation and publishes its readings",
		Action: cmd.SorelCommand,
		Flags:  flags,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "discover the installation and poll it until interrupted",
				Action: cmd.SorelCommand,
				Flags:  flags,
			},
			{
				Name:   "check",
				Usage:  "verify the configured credentials with a single login",
				Action: cmd.CheckCommand,
				Flags:  flags,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
