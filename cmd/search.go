package cmd

import (
	"context"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/docspace/internal/docs/search"
	"github.com/Laisky/docspace/library/log"
)

var searchCMD = &cobra.Command{
	Use:    "search",
	Short:  "search",
	Long:   `run a hybrid search for one tenant and print the ranked page as JSON`,
	Args:   gcmd.NoExtraArgs,
	PreRun: mustInitialize,
	Run: func(cmd *cobra.Command, args []string) {
		q := search.Query{}
		q.TenantID, _ = cmd.Flags().GetString("tenant")
		q.Text, _ = cmd.Flags().GetString("query")
		q.Limit, _ = cmd.Flags().GetInt("limit")
		q.Offset, _ = cmd.Flags().GetInt("offset")
		if err := runSearch(cmd.Context(), q); err != nil {
			log.Logger.Panic("search", zap.Error(err))
		}
	},
}

func runSearch(ctx context.Context, q search.Query) error {
	a, err := newApp(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	defer a.close()

	result, err := a.ranker.Search(ctx, q)
	if err != nil {
		return errors.WithStack(err)
	}
	return printJSON(result)
}

func init() {
	rootCMD.AddCommand(searchCMD)
	searchCMD.Flags().String("tenant", "", "tenant id")
	searchCMD.Flags().String("query", "", "free-text query")
	searchCMD.Flags().Int("limit", 0, "page size, 0 uses the configured default")
	searchCMD.Flags().Int("offset", 0, "page offset")
	_ = searchCMD.MarkFlagRequired("tenant")
	_ = searchCMD.MarkFlagRequired("query")
}
