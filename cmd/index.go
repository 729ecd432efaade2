package cmd

import (
	"context"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Laisky/docspace/library/log"
)

var indexCMD = &cobra.Command{
	Use:    "index",
	Short:  "index",
	Long:   `schedule indexing of one document, or index it inline with --inline`,
	Args:   gcmd.NoExtraArgs,
	PreRun: mustInitialize,
	Run: func(cmd *cobra.Command, args []string) {
		tenantID, _ := cmd.Flags().GetString("tenant")
		documentID, _ := cmd.Flags().GetString("document")
		inline, _ := cmd.Flags().GetBool("inline")
		if err := runIndex(cmd.Context(), tenantID, documentID, inline); err != nil {
			log.Logger.Panic("index", zap.Error(err))
		}
	},
}

func runIndex(ctx context.Context, tenantID, rawDocumentID string, inline bool) error {
	documentID, err := uuid.Parse(rawDocumentID)
	if err != nil {
		return errors.Wrapf(err, "parse document id %q", rawDocumentID)
	}

	a, err := newApp(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	defer a.close()

	if !inline {
		result, err := a.scheduler.Schedule(ctx, tenantID, documentID)
		if err != nil {
			return errors.WithStack(err)
		}
		return printJSON(result)
	}

	if a.processor == nil {
		return errors.New("embedding settings are required to index inline")
	}
	outcome, err := a.processor.Process(ctx, tenantID, documentID)
	if err != nil {
		return errors.WithStack(err)
	}
	return printJSON(outcome)
}

func init() {
	rootCMD.AddCommand(indexCMD)
	indexCMD.Flags().String("tenant", "", "tenant id")
	indexCMD.Flags().String("document", "", "document id")
	indexCMD.Flags().Bool("inline", false, "process now instead of enqueueing")
	_ = indexCMD.MarkFlagRequired("tenant")
	_ = indexCMD.MarkFlagRequired("document")
}
