// Package commands implements the dinero-cli administration commands.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"dinero/internal/buildinfo"
	"dinero/internal/config"
	"dinero/internal/ledger"
	applog "dinero/internal/log"
	"dinero/internal/services"
	"dinero/internal/storage"
)

// options are shared by every subcommand.
type options struct {
	dbPath string
	cfg    *config.Config
	logger *applog.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
// cfg supplies defaults such as the database path; logs go to logOut.
func NewRootCommand(cfg *config.Config, logOut io.Writer) *cobra.Command {
	if cfg == nil {
		cfg = config.Load()
	}
	lc := applog.DefaultConfig()
	lc.Level = applog.ParseLevel(cfg.LogLevel)
	lc.Format = cfg.LogFormat
	lc.Output = logOut
	lc.Component = applog.ComponentCLI
	opts := &options{cfg: cfg, logger: applog.New(lc).WithComponent(applog.ComponentCLI)}

	rootCmd := &cobra.Command{
		Use:     "dinero-cli",
		Short:   "Administer a dinero ledger database",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", cfg.SQLiteDBPath, "path to the SQLite ledger database")

	rootCmd.AddCommand(
		newInitDBCommand(opts),
		newSourcesCommand(opts),
		newBalanceCommand(opts),
		newSnapshotCommand(opts),
	)
	return rootCmd
}

// session is an open database plus the services built on it.
type session struct {
	repo   *storage.SQLiteRepository
	deps   services.Deps
	ledger *services.Ledger
}

// open runs migrations and wires the ledger services around the database.
func (o *options) open() (*session, error) {
	if o.dbPath == "" {
		return nil, fmt.Errorf("database path is empty; set --db or SQLITE_DB_PATH")
	}
	repo, err := storage.NewSQLiteRepository(o.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", o.dbPath, err)
	}
	deps := services.Deps{
		Store:        repo,
		Projector:    ledger.NewProjector(repo, repo, nil),
		Locker:       ledger.NewLocker(),
		StoreTimeout: o.cfg.StoreTimeout,
		Logger:       applog.NewStructuredLogger(o.logger.WithComponent(applog.ComponentLedger)),
	}
	l := services.New(deps)
	return &session{repo: repo, deps: deps, ledger: l}, nil
}

func (s *session) Close() error {
	return s.repo.Close()
}

// withSession opens the database for the duration of fn.
func (o *options) withSession(ctx context.Context, fn func(context.Context, *session) error) error {
	s, err := o.open()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}
