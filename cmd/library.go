package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"library-sync/core/errs"
	"library-sync/feature/library/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	libraryFlag string
	allFlag     bool
)

// libraryCmd groups the local library commands
var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Inspect and maintain the local library",
}

// libraryStatsCmd prints library statistics
var libraryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print record counts by kind and status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		stats, err := a.store.Stats(cmd.Context(), models.Filter{LibraryID: libraryFlag})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

// libraryClearCmd deletes the records of a library
var libraryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every record of a library",
	Long:  `Deletes records in batches. With replication enabled the deletions are pushed to the remote backend. Use --all to clear every record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if libraryFlag == "" && !allFlag {
			return fmt.Errorf("either --library or --all is required")
		}

		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		if a.controller != nil && a.cfg.Sync.UserID != "" {
			if _, err := a.controller.Start(cmd.Context(), a.cfg.Sync.DefaultScope()); err != nil {
				a.logger.Warn("Replication unavailable, deletions stay local until the next sync", zap.Error(err))
			}
		}

		res, err := a.libraryService().Clear(cmd.Context(), libraryFlag)
		if err != nil && errs.KindOf(err) != errs.KindPartialBatch {
			return err
		}
		a.logger.Info("Library cleared",
			zap.String("library", libraryFlag),
			zap.Int("total", res.Total),
			zap.Int("deleted", res.Deleted),
			zap.Int("failed", res.Failed))

		if a.controller != nil {
			if perr := a.controller.ForcePushPending(cmd.Context()); perr != nil {
				a.logger.Warn("Failed to push deletions", zap.Error(perr))
			}
		}
		return err
	},
}

func init() {
	libraryCmd.PersistentFlags().StringVar(&libraryFlag, "library", "", "Library id")
	libraryClearCmd.Flags().BoolVar(&allFlag, "all", false, "Clear every record")

	libraryCmd.AddCommand(libraryStatsCmd)
	libraryCmd.AddCommand(libraryClearCmd)
	RootCmd.AddCommand(libraryCmd)
}
