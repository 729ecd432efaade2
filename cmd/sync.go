package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/docspace/library/log"
)

var syncCMD = &cobra.Command{
	Use:    "sync",
	Short:  "sync",
	Long:   `run one stale document sweep and print its report, or print the last saved report with --last`,
	Args:   gcmd.NoExtraArgs,
	PreRun: mustInitialize,
	Run: func(cmd *cobra.Command, args []string) {
		last, _ := cmd.Flags().GetBool("last")
		if err := runSync(cmd.Context(), last); err != nil {
			log.Logger.Panic("sync", zap.Error(err))
		}
	},
}

func runSync(ctx context.Context, last bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	defer a.close()

	if last {
		report, err := a.reports.LoadReport(ctx)
		if err != nil {
			return errors.Wrap(err, "load last sync report")
		}
		return printJSON(report)
	}

	report, err := a.reconciler.Sync(ctx)
	if err != nil {
		return errors.Wrap(err, "sync stale documents")
	}
	return printJSON(report)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal output")
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	rootCMD.AddCommand(syncCMD)
	syncCMD.Flags().Bool("last", false, "print the last saved sweep report instead of running a sweep")
}
