package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/holdings/internal/api"
	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/export"
	"github.com/mtlprog/holdings/internal/price"
	"github.com/mtlprog/holdings/internal/session"
	"github.com/mtlprog/holdings/internal/snapshot"
	"github.com/mtlprog/holdings/internal/worker"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and the background workers",
		Action: func(c *cli.Context) error {
			return withApp(c.Context, func(a *app) error { return serve(c.Context, a) })
		},
	}
}

func serve(ctx context.Context, a *app) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var sheetWriter export.SheetWriter
	if a.cfg.SheetsSpreadsheetID != "" && a.cfg.SheetsCredentials != "" {
		w, err := export.NewSheetsWriter(ctx, a.cfg.SheetsSpreadsheetID, a.cfg.SheetsCredentials)
		if err != nil {
			return fmt.Errorf("creating sheets writer: %w", err)
		}
		sheetWriter = w
	}
	reports := export.NewService(a.sess, sheetWriter)

	quoteWorker := worker.NewQuoteWorker(a.sess, a.cfg.QuoteWorkerInterval)
	go quoteWorker.Run(ctx)

	var snapshotSvc *snapshot.Service
	if a.pool != nil {
		snapshotSvc = snapshot.NewService(a.sess, snapshot.NewPgRepository(a.pool))

		var hook worker.AfterSnapshotHook
		if sheetWriter != nil {
			hook = reports
		}
		reportWorker := worker.NewReportWorker(snapshotSvc, a.cfg.ReportWorkerInterval, a.sess.Today, hook)
		go reportWorker.Run(ctx)
	} else {
		slog.Warn("DATABASE_URL not set, snapshots and the report worker are disabled")
	}

	if a.cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, mutating endpoints are unprotected")
	}

	srv := api.NewServer(a.cfg.HTTPPort, a.sess, snapshotSvc, reports, a.cfg.AdminAPIKey)

	go func() {
		log.Printf("HTTP server listening on :%s", a.cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

func totalCommand() *cli.Command {
	return &cli.Command{
		Name:  "total",
		Usage: "print the portfolio value on a date and its change from the day before",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Usage: "valuation date, YYYY-MM-DD (default today)"},
			&cli.StringFlag{Name: "mode", Value: string(domain.GroupByHolder), Usage: "group by source or ticker"},
		},
		Action: func(c *cli.Context) error {
			mode, err := domain.ParseGroupMode(c.String("mode"))
			if err != nil {
				return err
			}
			return withApp(c.Context, func(a *app) error {
				date, err := dateFlag(c, a.sess)
				if err != nil {
					return err
				}
				change, err := a.sess.Refresh(c.Context, date)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				for _, g := range a.sess.GroupTotals(date, mode) {
					fmt.Fprintf(tw, "%s\t%s\n", g.Key, g.Total.StringFixed(2))
				}
				fmt.Fprintf(tw, "TOTAL\t%s\n", change.Current.StringFixed(2))
				fmt.Fprintf(tw, "CHANGE\t%s\t%s%%\n", change.Change.StringFixed(2), change.Percent.StringFixed(2))
				return tw.Flush()
			})
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "search an asset by name, symbol or contract address",
		ArgsUsage: "<query>",
		Action: func(c *cli.Context) error {
			query := c.Args().First()
			return withApp(c.Context, func(a *app) error {
				var cands []domain.Candidate
				if query == "" {
					cands = a.sess.Suggestions(c.Context)
				} else {
					cands = a.sess.Search(c.Context, query)
				}

				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				for _, cand := range cands {
					p := "-"
					if cand.Price != nil {
						p = cand.Price.String()
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cand.ID, cand.Symbol, cand.Name, p)
				}
				return tw.Flush()
			})
		},
	}
}

func prefetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "prefetch",
		Usage: "backfill the daily prices of a month for every ledger asset",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "month", Usage: "month to backfill, YYYY-MM (default current month)"},
		},
		Action: func(c *cli.Context) error {
			return withApp(c.Context, func(a *app) error {
				month, err := monthFlag(c, a.sess)
				if err != nil {
					return err
				}
				outcomes, err := a.sess.PrefetchMonth(c.Context, month)
				if err != nil {
					return err
				}
				for _, o := range price.Failed(outcomes) {
					slog.Warn("backfill failed", "asset", o.AssetID, "error", o.Err)
				}
				slog.Info("month prefetched", "month", month.String(), "assets", len(outcomes))
				return nil
			})
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "write the monthly report to an XLSX file or to Google Sheets",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "month", Usage: "report month, YYYY-MM (default current month)"},
			&cli.StringFlag{Name: "xlsx", Usage: "path of the workbook to write"},
			&cli.BoolFlag{Name: "sheets", Usage: "write to the configured spreadsheet"},
		},
		Action: func(c *cli.Context) error {
			if c.String("xlsx") == "" && !c.Bool("sheets") {
				return errors.New("either --xlsx or --sheets is required")
			}
			return withApp(c.Context, func(a *app) error {
				month, err := monthFlag(c, a.sess)
				if err != nil {
					return err
				}

				var writer export.SheetWriter
				if path := c.String("xlsx"); path != "" {
					writer = export.NewXLSXWriter(path)
				} else {
					if a.cfg.SheetsSpreadsheetID == "" || a.cfg.SheetsCredentials == "" {
						return errors.New("SHEETS_SPREADSHEET_ID and SHEETS_CREDENTIALS_JSON are required")
					}
					w, err := export.NewSheetsWriter(c.Context, a.cfg.SheetsSpreadsheetID, a.cfg.SheetsCredentials)
					if err != nil {
						return err
					}
					writer = w
				}
				return export.NewService(a.sess, writer).Export(c.Context, month)
			})
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "replace the ledger and price history with an exported JSON file",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return errors.New("import file is required")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			return withApp(c.Context, func(a *app) error {
				if err := a.sess.Import(c.Context, data); err != nil {
					return err
				}
				slog.Info("import complete", "file", path, "entries", len(a.sess.Entries()))
				return nil
			})
		},
	}
}

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "print the current state as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "scope", Value: string(session.ScopeAll), Usage: "all or ledger"},
		},
		Action: func(c *cli.Context) error {
			scope, err := session.ParseScope(c.String("scope"))
			if err != nil {
				return err
			}
			return withApp(c.Context, func(a *app) error {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(a.sess.Export(scope))
			})
		},
	}
}

func dateFlag(c *cli.Context, sess *session.Session) (domain.Date, error) {
	s := c.String("date")
	if s == "" {
		return sess.Today(), nil
	}
	return domain.ParseDate(s)
}

func monthFlag(c *cli.Context, sess *session.Session) (domain.MonthKey, error) {
	s := c.String("month")
	if s == "" {
		return domain.MonthOf(sess.Today()), nil
	}
	return domain.ParseMonth(s)
}
