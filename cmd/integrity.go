package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	fixFlag  bool
	jsonFlag bool
)

// integrityCmd represents the integrity command
var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Check the database schema, the snapshot bucket and the remote backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()
		ctx := cmd.Context()
		logg := a.logger
		svc := a.integrityService()

		report := svc.Run(ctx)
		if jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		}

		if report.Schema != nil {
			for table, tbl := range report.Schema.Tables {
				if tbl.Status != "ok" {
					logg.Warn("Schema mismatch", zap.String("table", table),
						zap.Strings("missing", tbl.MissingColumns), zap.Strings("mismatches", tbl.TypeMismatches))
				}
			}
		}

		switch {
		case report.Storage == nil:
			logg.Info("Storage is not configured.")
		case report.Storage.Exists:
			logg.Info("Snapshot bucket is ready.", zap.String("bucket", report.Storage.Bucket), zap.Int("snapshots", report.Storage.Snapshots))
		case fixFlag:
			logg.Info("Creating missing bucket...", zap.String("bucket", report.Storage.Bucket))
			if err := svc.FixStorage(ctx); err != nil {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
			report = svc.Run(ctx)
		default:
			logg.Warn("Snapshot bucket is missing. Run with --fix to create it.", zap.String("bucket", report.Storage.Bucket))
		}

		switch report.Remote.Status {
		case "disabled":
			logg.Info("Remote backend is disabled.")
		case "ok":
			logg.Info("Remote backend is reachable.", zap.Int64("latency_ms", report.Remote.LatencyMs))
		default:
			logg.Warn("Remote backend is unreachable.", zap.String("error", report.Remote.Error))
		}

		for check, msg := range report.Errors {
			logg.Error("Check failed", zap.String("check", check), zap.String("error", msg))
		}
		if !report.Healthy {
			return fmt.Errorf("integrity checks failed")
		}
		logg.Info("All integrity checks passed.")
		return nil
	},
}

func init() {
	integrityCmd.Flags().BoolVar(&fixFlag, "fix", false, "Create the snapshot bucket when missing")
	integrityCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the full report as JSON")
	RootCmd.AddCommand(integrityCmd)
}
