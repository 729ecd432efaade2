package cmd

import (
	"context"

	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/docspace/internal/docs/jobs"
	"github.com/Laisky/docspace/internal/docs/store"
	"github.com/Laisky/docspace/library/config"
	"github.com/Laisky/docspace/library/db/postgres"
	"github.com/Laisky/docspace/library/log"
)

var migrateCMD = &cobra.Command{
	Use:    "migrate",
	Short:  "migrate",
	Long:   `create the vector extension, tables and indexes`,
	Args:   gcmd.NoExtraArgs,
	PreRun: mustInitialize,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMigrate(cmd.Context()); err != nil {
			log.Logger.Panic("migrate", zap.Error(err))
		}
	},
}

func runMigrate(ctx context.Context) error {
	db, err := openPostgres(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Logger.Warn("close postgres", zap.Error(err))
		}
	}()

	dimensions := config.Int("settings.openai.embedding_dimensions", 0)
	if err := store.RunMigrations(ctx, db, dimensions, log.Logger.Named("migrate")); err != nil {
		return err
	}
	if err := jobs.RunMigrations(ctx, db); err != nil {
		return err
	}

	log.Logger.Info("migration finished", zap.Int("embedding_dimensions", dimensions))
	return nil
}

func init() {
	rootCMD.AddCommand(migrateCMD)
}
