package cmd

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/restoreops/rds-restore/internal/config"
	"github.com/restoreops/rds-restore/internal/rdsapi"
	"github.com/restoreops/rds-restore/internal/report"
	"github.com/restoreops/rds-restore/internal/restore"
	"github.com/restoreops/rds-restore/internal/verify"
)

var (
	runSource   string
	runSnapshot string
	runKMSKey   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the restore-and-swap sequence",
	Long: `Runs the full restore sequence against the configured instance.

This command performs the following steps:
1. Copies the snapshot under the configured KMS key (if one is set).
2. Restores the snapshot into a temporary instance.
3. Disables deletion protection on the original instance.
4. Deletes the original instance, skipping the final snapshot.
5. Renames the restored instance to the original identifier.

Every step checks current state first, so re-running after a partial
failure picks up where the previous run left off.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		// 1. Load configuration
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if runSource != "" {
			cfg.Restore.SourceDB = runSource
		}
		if runSnapshot != "" {
			cfg.Restore.SnapshotID = runSnapshot
		}
		if runKMSKey != "" {
			cfg.Restore.KMSKeyARN = runKMSKey
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Println("✓ Configuration loaded.")

		// 2. Build the RDS client
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		client := rdsapi.NewClient(awsCfg)

		// 3. Run the sequence
		fmt.Printf("Restoring %s from snapshot %s...\n", cfg.Restore.SourceDB, cfg.Restore.SnapshotID)
		orchestrator := restore.New(client, restore.Config{
			SourceInstance: cfg.Restore.SourceDB,
			SnapshotID:     cfg.Restore.SnapshotID,
			KMSKeyARN:      cfg.Restore.KMSKeyARN,
			PollInterval:   cfg.Restore.PollInterval(),
			StepTimeout:    cfg.Restore.StepTimeout(),
		})

		result, runErr := orchestrator.Run(ctx)
		for _, step := range result.Steps {
			marker := "✓"
			if step.Status == restore.StepFailed {
				marker = "✗"
			}
			fmt.Printf("  %s [%s] %s: %s\n", marker, step.Status, step.Name, step.Message)
		}

		// 4. Post-restore checks (only when the swap completed)
		var checks []verify.CheckResult
		if runErr == nil && cfg.Verification.Connect.Enabled && result.FinalInstance != nil {
			fmt.Println("Running post-restore checks...")
			checks, err = runChecks(ctx, cfg, result)
			if err != nil {
				return err
			}
			for _, c := range checks {
				marker := "✓"
				if !c.Passed {
					marker = "✗"
				}
				fmt.Printf("  %s [%s] %s: %s\n", marker, c.Level, c.Name, c.Message)
			}
		}

		// 5. Report
		if cfg.CLI.ReportDir != "" {
			rpt := report.NewBuilder().
				WithID(uuid.New().String()).
				WithProject(cfg.Project.ID, cfg.Project.Name).
				WithMachineID(cfg.CLI.MachineID).
				WithRun(result).
				WithChecks(checks).
				Build()

			if cfg.Signing.PrivateKeyPath != "" {
				privateKey, err := report.LoadPrivateKey(cfg.Signing.PrivateKeyPath)
				if err != nil {
					return fmt.Errorf("failed to load signing key: %w", err)
				}
				if err := report.Sign(rpt, privateKey); err != nil {
					return fmt.Errorf("failed to sign report: %w", err)
				}
			}

			reportPath, err := report.WriteJSON(rpt, cfg.CLI.ReportDir)
			if err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			fmt.Printf("✓ Report saved to %s\n", reportPath)

			if cfg.ReportUpload != nil && cfg.ReportUpload.S3 != nil {
				uploader, err := report.NewS3Uploader(cfg.ReportUpload.S3)
				if err != nil {
					return fmt.Errorf("failed to create report uploader: %w", err)
				}
				uri, err := uploader.Upload(ctx, rpt)
				if err != nil {
					return fmt.Errorf("failed to upload report: %w", err)
				}
				fmt.Printf("✓ Report uploaded to %s\n", uri)
			}
		}

		if runErr != nil {
			return runErr
		}
		if verify.HasCriticalFailure(checks) {
			return fmt.Errorf("post-restore checks reported critical failures")
		}

		if result.AlreadyComplete {
			fmt.Printf("\n✓ %s was already restored from %s, nothing to do.\n",
				result.SourceInstance, result.RestoreSnapshotID)
		} else {
			fmt.Printf("\n✓ Restored snapshot to new instance, deleted original, and renamed restored to %s.\n",
				result.SourceInstance)
		}
		return nil
	},
}

func runChecks(ctx context.Context, cfg *config.Config, result *restore.Result) ([]verify.CheckResult, error) {
	db, err := verify.Open(result.FinalInstance.Endpoint, result.FinalInstance.Port, cfg.Verification.Connect)
	if err != nil {
		return nil, fmt.Errorf("failed to connect for post-restore checks: %w", err)
	}
	defer db.Close()

	checkers := []verify.Checker{
		verify.NewConnectChecker(),
		verify.NewTableCountChecker(cfg.Verification.Connect.MinTables),
	}
	return verify.RunChecks(ctx, checkers, db), nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runSource, "source", "", "Source DB instance identifier (overrides config)")
	runCmd.Flags().StringVar(&runSnapshot, "snapshot", "", "Snapshot identifier or ARN (overrides config)")
	runCmd.Flags().StringVar(&runKMSKey, "kms-key", "", "KMS key ARN for the snapshot copy (overrides config)")
}
