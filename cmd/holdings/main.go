package main

import (
	"context"
	"embed"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "holdings",
		Usage: "multi-asset holdings ledger with historical valuation",
		Commands: []*cli.Command{
			serveCommand(),
			totalCommand(),
			searchCommand(),
			prefetchCommand(),
			exportCommand(),
			importCommand(),
			dumpCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatalf("holdings: %v", err)
	}
}
