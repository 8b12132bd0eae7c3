package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nrzngr/exvoria-strat-management/internal/blob"
	"github.com/nrzngr/exvoria-strat-management/internal/config"
	"github.com/nrzngr/exvoria-strat-management/internal/core"
	"github.com/nrzngr/exvoria-strat-management/internal/logging"
	"github.com/nrzngr/exvoria-strat-management/pkg/client"
)

// app is the state shared by every subcommand after flags are parsed.
type app struct {
	configFile string
	envFile    string
	server     string

	storageDriver string
	sqlitePath    string
	blobDriver    string
	logLevel      string

	cfg       config.Config
	logger    *zap.Logger
	closeLogs func() error
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "stratbook",
		Short:         "Versioned strategy book for game maps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.closeLogs != nil {
				return a.closeLogs()
			}
			return nil
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&a.configFile, "config", "", "YAML configuration file")
	f.StringVar(&a.envFile, "env-file", ".env", "dotenv file with STRATBOOK_* overrides")
	f.StringVar(&a.server, "server", "", "talk to a running API at this base URL instead of opening the store")
	f.StringVar(&a.storageDriver, "storage", "", "storage driver: memory, sqlite, or postgres")
	f.StringVar(&a.sqlitePath, "sqlite-path", "", "sqlite database file")
	f.StringVar(&a.blobDriver, "blob", "", "blob driver: fs, s3, memory, or none")
	f.StringVar(&a.logLevel, "log-level", "", "log level")

	root.AddCommand(newServeCmd(a), newMigrateCmd(a), newMapsCmd(a), newStrategiesCmd(a))
	return root
}

// load resolves configuration; flags set on the command line win.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(config.Options{File: a.configFile, EnvFile: a.envFile})
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("storage") {
		cfg.Storage.Driver = a.storageDriver
	}
	if flags.Changed("sqlite-path") {
		cfg.Storage.SQLitePath = a.sqlitePath
	}
	if flags.Changed("blob") {
		cfg.Blob.Driver = a.blobDriver
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, closeLogs, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.closeLogs = cfg, logger, closeLogs
	return nil
}

// openService opens the configured store and blob driver.
func (a *app) openService(ctx context.Context, opts ...core.Option) (*core.Service, error) {
	store, err := core.OpenPersistentStore(ctx, a.cfg.StorageConfig())
	if err != nil {
		return nil, err
	}
	blobs, err := blob.Open(ctx, a.cfg.BlobConfig())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	base := []core.Option{
		core.WithLogger(a.logger),
		core.WithBlobStore(blobs),
		core.WithUploadConstraints(a.cfg.UploadConstraints()),
	}
	return core.NewService(store, append(base, opts...)...), nil
}

func (a *app) remote() *client.Client {
	if a.server == "" {
		return nil
	}
	return client.New(a.server)
}
