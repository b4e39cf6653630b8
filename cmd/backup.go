package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"library-sync/core/errs"
	"library-sync/feature/backup"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	formatFlag    string
	outputFlag    string
	strategyFlag  string
	keepFavsFlag  bool
	dryRunFlag    bool
	backupLibFlag string
)

// backupCmd groups the export and import commands
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export and import the library",
}

// backupExportCmd writes an export file
var backupExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the library to a JSON or CSV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := backup.ParseFormat(formatFlag)
		if err != nil {
			return err
		}

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		out := outputFlag
		if out == "" {
			if err := os.MkdirAll(a.cfg.Backup.Directory, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", a.cfg.Backup.Directory, err)
			}
			out = filepath.Join(a.cfg.Backup.Directory, fmt.Sprintf("library-%s.%s", time.Now().UTC().Format("20060102T150405"), format))
		}

		n, err := a.backupService().ExportFile(cmd.Context(), backupLibFlag, format, out)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d records to %s\n", n, out)
		return nil
	},
}

// backupImportCmd merges an export file into the library
var backupImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import an export file into the library",
	Long:  `Merges a JSON or CSV export into the library. Strategies: smart (default), overwrite, skip.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		format := formatFlag
		if format == "" && strings.EqualFold(filepath.Ext(args[0]), ".csv") {
			format = string(backup.FormatCSV)
		}
		parsed, err := backup.ParseFormat(format)
		if err != nil {
			return err
		}

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		req := backup.ImportRequest{
			Format:    parsed,
			Strategy:  strategyFlag,
			LibraryID: backupLibFlag,
			DryRun:    dryRunFlag,
		}
		if cmd.Flags().Changed("keep-favorites") {
			req.KeepExistingFavorites = &keepFavsFlag
		}

		report, err := a.backupService().Import(cmd.Context(), data, req)
		if err != nil && errs.KindOf(err) != errs.KindPartialBatch {
			return err
		}
		a.logger.Info("Import finished",
			zap.Int("added", report.Added),
			zap.Int("updated", report.Updated),
			zap.Int("skipped", report.Skipped),
			zap.Int("invalid", report.Invalid),
			zap.Int("failed", report.Failed))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			return encErr
		}
		return err
	},
}

func init() {
	backupCmd.PersistentFlags().StringVar(&formatFlag, "format", "", "json or csv")
	backupCmd.PersistentFlags().StringVar(&backupLibFlag, "library", "", "Library id, all records when empty")
	backupExportCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output file (defaults to backup.directory)")
	backupImportCmd.Flags().StringVar(&strategyFlag, "strategy", "", "Merge strategy")
	backupImportCmd.Flags().BoolVar(&keepFavsFlag, "keep-favorites", true, "Keep existing favorites when overwriting")
	backupImportCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Report changes without writing")

	backupCmd.AddCommand(backupExportCmd)
	backupCmd.AddCommand(backupImportCmd)
	RootCmd.AddCommand(backupCmd)
}
