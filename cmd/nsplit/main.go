package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/nsplit-trading/internal/aggregate"
	"github.com/rxtech-lab/nsplit-trading/internal/api"
	"github.com/rxtech-lab/nsplit-trading/internal/config"
	"github.com/rxtech-lab/nsplit-trading/internal/engine"
	"github.com/rxtech-lab/nsplit-trading/internal/execution"
	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/internal/metrics"
	"github.com/rxtech-lab/nsplit-trading/internal/store/sqlstore"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/rxtech-lab/nsplit-trading/internal/version"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/rxtech-lab/nsplit-trading/pkg/pricefeed"
	"github.com/rxtech-lab/nsplit-trading/pkg/schema"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func loadConfig(cmd *cli.Command) (config.Config, error) {
	return config.Load(cmd.String("config"))
}

// serveAction runs the engine and the HTTP API until interrupted.
func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if addr := cmd.String("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}

	log, err := logger.NewLoggerWithOptions(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := sqlstore.Open(ctx, cfg.Store, log.Named("store"))
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	feed, err := pricefeed.NewFeed(cfg.Feed, log.Named("feed"))
	if err != nil {
		return err
	}

	executor, err := execution.NewExecutor(cfg.Executor, log.Named("executor"))
	if err != nil {
		return err
	}

	m := metrics.NewMetrics()
	eng := engine.New(cfg.Engine, feed, st, executor, m, log.Named("engine"))
	if err := eng.Load(ctx); err != nil {
		return err
	}

	server := api.NewServer(eng, m, log.Named("api"))

	log.Info("Starting nsplit",
		zap.String("version", version.Version),
		zap.String("feed", string(cfg.Feed.Provider)),
		zap.String("store", string(cfg.Store.Driver)),
		zap.String("addr", cfg.HTTP.Addr),
	)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return eng.Run(ctx) })
	group.Go(func() error { return server.ListenAndServe(ctx, cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout) })

	return group.Wait()
}

// schemaAction prints the JSON schema of the session configuration or of a feed provider.
func schemaAction(_ context.Context, cmd *cli.Command) error {
	if provider := cmd.String("provider"); provider != "" {
		out, err := pricefeed.GetConfigSchema(provider)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.Root().Writer, out)

		return nil
	}

	//nolint:exhaustruct
	out, err := schema.ToJSONSchema(types.SessionConfig{})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.Root().Writer, out)

	return nil
}

// withStore opens the configured store for an offline command.
func withStore(ctx context.Context, cmd *cli.Command, fn func(st *sqlstore.SQLStore) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := sqlstore.Open(ctx, cfg.Store, logger.NewNopLogger())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	return fn(st)
}

func listAction(ctx context.Context, cmd *cli.Command) error {
	filter := aggregate.Filter{
		Status:        optional.None[types.SessionStatus](),
		SymbolCode:    cmd.String("symbol"),
		CompletedYear: optional.None[int](),
	}

	if raw := cmd.String("status"); raw != "" {
		status, ok := types.ParseSessionStatus(raw)
		if !ok {
			return errors.Newf(errors.ErrCodeValidation, "unknown status %q", raw)
		}

		filter.Status = optional.Some(status)
	}

	if year := cmd.Int("year"); year > 0 {
		filter.CompletedYear = optional.Some(int(year))
	}

	return withStore(ctx, cmd, func(st *sqlstore.SQLStore) error {
		sessions, err := st.LoadSessions(ctx)
		if err != nil {
			return err
		}

		renderSessions(cmd.Root().Writer, aggregate.List(sessions, filter))

		return nil
	})
}

func requireID(cmd *cli.Command) (string, error) {
	id := cmd.Args().First()
	if id == "" {
		return "", errors.New(errors.ErrCodeMissingParameter, "session id is required")
	}

	return id, nil
}

func showAction(ctx context.Context, cmd *cli.Command) error {
	id, err := requireID(cmd)
	if err != nil {
		return err
	}

	return withStore(ctx, cmd, func(st *sqlstore.SQLStore) error {
		session, err := st.GetSession(ctx, id)
		if err != nil {
			return err
		}

		renderSession(cmd.Root().Writer, session)

		return nil
	})
}

func eventsAction(ctx context.Context, cmd *cli.Command) error {
	id, err := requireID(cmd)
	if err != nil {
		return err
	}

	return withStore(ctx, cmd, func(st *sqlstore.SQLStore) error {
		if _, err := st.GetSession(ctx, id); err != nil {
			return err
		}

		events, err := st.Events(ctx, id)
		if err != nil {
			return err
		}

		renderEvents(cmd.Root().Writer, events)

		return nil
	})
}

func exportAction(ctx context.Context, cmd *cli.Command) error {
	return withStore(ctx, cmd, func(st *sqlstore.SQLStore) error {
		files, err := st.ExportParquet(ctx, cmd.String("dir"))
		if err != nil {
			return err
		}

		for _, file := range files {
			fmt.Fprintln(cmd.Root().Writer, file)
		}

		return nil
	})
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "nsplit",
		Usage:   "Staged split-buy / split-sell trading engine",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Sources: cli.EnvVars("NSPLIT_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the engine and the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address, overrides http.addr",
					},
				},
				Action: serveAction,
			},
			{
				Name:  "schema",
				Usage: "Print the JSON schema of the session configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "provider",
						Usage: "Print the configuration schema of a price feed provider instead",
					},
				},
				Action: schemaAction,
			},
			{
				Name:  "providers",
				Usage: "List the supported price feed providers",
				Action: func(_ context.Context, cmd *cli.Command) error {
					return renderProviders(cmd.Root().Writer)
				},
			},
			{
				Name:  "sessions",
				Usage: "Inspect stored sessions",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List sessions, newest first",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "status", Usage: "Filter by status (ready, running, paused, completed)"},
							&cli.StringFlag{Name: "symbol", Usage: "Filter by symbol code"},
							&cli.IntFlag{Name: "year", Usage: "Only sessions completed in this year"},
						},
						Action: listAction,
					},
					{
						Name:      "show",
						Usage:     "Show one session with its stages",
						ArgsUsage: "<session-id>",
						Action:    showAction,
					},
					{
						Name:      "events",
						Usage:     "Print the event log of a session",
						ArgsUsage: "<session-id>",
						Action:    eventsAction,
					},
				},
			},
			{
				Name:  "export",
				Usage: "Export the store to parquet files (duckdb only)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Output directory",
						Value: "export",
					},
				},
				Action: exportAction,
			},
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
