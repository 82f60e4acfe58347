// Command crudctl queries and bulk-imports the product catalog from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"crudkit/internal/app"
	"crudkit/internal/config"
	"crudkit/internal/infrastructure/storage/postgres"
	"crudkit/internal/infrastructure/storage/postgres/entity_repo"
	"crudkit/pkg/logger"
)

// env is built once per invocation by the root command.
type env struct {
	cfg      *config.Config
	log      *logger.Logger
	products *app.Products
	journal  *postgres.ImportJournal // nil without a database
	closers  []func()
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

var (
	configPath string
	verbose    bool
	current    = &env{}
)

var rootCmd = &cobra.Command{
	Use:           "crudctl",
	Short:         "Query and import catalog data",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return current.open(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		current.close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CRUDKIT_CONFIG"), "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(newImportCmd(), newImportsCmd(), newReadCmd(), newCountCmd(), newPagesCmd())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (e *env) open(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	e.cfg = cfg

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Development: true, OutputPaths: []string{"stderr"}})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	e.log = log
	e.closers = append(e.closers, func() { _ = log.Sync() })

	if cfg.Database.URL == "" {
		log.Warnw("no database configured, using in-memory storage")
		e.products, _ = app.NewMemoryProducts()
		return nil
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.ApplicationName = "crudctl"

	pool, err := postgres.NewPool(logger.WithLogger(ctx, log), poolCfg)
	if err != nil {
		return err
	}
	e.closers = append(e.closers, pool.Close)

	txm := postgres.NewTxManager(pool)
	if err := entity_repo.EnsureProductSchema(ctx, txm.GetQuerier(ctx)); err != nil {
		return err
	}
	if err := postgres.EnsureImportJournalSchema(ctx, txm.GetQuerier(ctx)); err != nil {
		return err
	}
	journal, err := postgres.NewImportJournal(txm)
	if err != nil {
		return err
	}
	e.journal = journal
	e.products = app.NewPostgresProducts(txm, journal)
	return nil
}

// context returns ctx carrying the command logger.
func (e *env) context(ctx context.Context) context.Context {
	return logger.WithLogger(ctx, e.log)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
