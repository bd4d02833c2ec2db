package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/restoreops/rds-restore/internal/config"
	"github.com/restoreops/rds-restore/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Manage restore run reports",
	Long:  `List, view, and verify restore run reports.`,
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all run reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		reports, err := report.List(cfg.CLI.ReportDir)
		if err != nil {
			return fmt.Errorf("failed to list reports: %w", err)
		}

		if len(reports) == 0 {
			fmt.Println("No reports found.")
			return nil
		}

		fmt.Printf("%-36s  %-20s  %-24s  %s\n", "ID", "Timestamp", "Instance", "Status")
		fmt.Println(strings.Repeat("-", 100))

		for _, r := range reports {
			status := "✓ Success"
			if !r.Success {
				status = "✗ Failed"
			}
			fmt.Printf("%-36s  %-20s  %-24s  %s\n",
				r.ID,
				r.Timestamp.Format("2006-01-02 15:04:05"),
				r.SourceInstance,
				status,
			)
		}

		return nil
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Display a run report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reportID := args[0]

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		rpt, path, err := findReport(cfg.CLI.ReportDir, reportID)
		if err != nil {
			return err
		}

		showJSON, _ := cmd.Flags().GetBool("json")
		if showJSON {
			data, err := json.MarshalIndent(rpt, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Report: %s\n", rpt.ID)
		fmt.Printf("Path: %s\n", path)
		fmt.Printf("Timestamp: %s\n", rpt.Timestamp.Format("2006-01-02 15:04:05 UTC"))
		fmt.Printf("Project: %s (%s)\n", rpt.ProjectName, rpt.ProjectID)
		fmt.Printf("Machine: %s\n", rpt.MachineID)
		if rpt.Run != nil {
			fmt.Printf("Instance: %s\n", rpt.Run.SourceInstance)
			fmt.Printf("Snapshot: %s\n", rpt.Run.SnapshotID)
			if rpt.Run.RestoreSnapshotID != rpt.Run.SnapshotID {
				fmt.Printf("Restored From Copy: %s\n", rpt.Run.RestoreSnapshotID)
			}
		}
		fmt.Println()

		fmt.Println("Summary:")
		if rpt.Summary.Success {
			fmt.Println("  Status: ✓ Success")
		} else {
			fmt.Println("  Status: ✗ Failed")
		}
		if rpt.Summary.AlreadyComplete {
			fmt.Println("  Already complete: restore finished by an earlier run")
		}
		fmt.Printf("  Steps: %d completed, %d skipped, %d failed\n",
			rpt.Summary.CompletedSteps, rpt.Summary.SkippedSteps, rpt.Summary.FailedSteps)
		if rpt.Summary.TotalDuration != "" {
			fmt.Printf("  Total Duration: %s\n", rpt.Summary.TotalDuration)
		}
		fmt.Println()

		if rpt.Run != nil {
			fmt.Println("Steps:")
			for _, s := range rpt.Run.Steps {
				marker := "✓"
				if s.Status == "failed" {
					marker = "✗"
				}
				fmt.Printf("  %s [%s] %s: %s\n", marker, s.Status, s.Name, s.Message)
			}
			fmt.Println()
		}

		if len(rpt.Checks) > 0 {
			fmt.Println("Checks:")
			for _, c := range rpt.Checks {
				marker := "✓"
				if !c.Passed {
					marker = "✗"
				}
				fmt.Printf("  %s [%s] %s: %s\n", marker, c.Level, c.Name, c.Message)
			}
			fmt.Println()
		}

		if rpt.Signature != "" {
			fmt.Printf("Signature: %s...\n", rpt.Signature[:min(32, len(rpt.Signature))])
		} else {
			fmt.Println("Signature: (not signed)")
		}

		return nil
	},
}

var reportVerifyCmd = &cobra.Command{
	Use:   "verify <id>",
	Short: "Verify a report's signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reportID := args[0]

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		rpt, _, err := findReport(cfg.CLI.ReportDir, reportID)
		if err != nil {
			return err
		}

		pubKeyPath := strings.TrimSuffix(cfg.Signing.PrivateKeyPath, ".key") + ".pub"
		pubKey, err := report.LoadPublicKey(pubKeyPath)
		if err != nil {
			return fmt.Errorf("failed to load public key: %w", err)
		}

		valid, err := report.Verify(rpt, pubKey)
		if err != nil {
			return fmt.Errorf("signature verification failed: %w", err)
		}

		if valid {
			fmt.Println("✓ Signature is valid")
		} else {
			fmt.Println("✗ Signature is INVALID")
			os.Exit(1)
		}

		return nil
	},
}

func findReport(dir string, id string) (*report.Report, string, error) {
	reports, err := report.List(dir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list reports: %w", err)
	}

	// Try exact match first
	for _, r := range reports {
		if r.ID == id {
			rpt, err := report.Load(r.Path)
			return rpt, r.Path, err
		}
	}

	// Try prefix match
	var matches []*report.ListSummary
	for _, r := range reports {
		if strings.HasPrefix(r.ID, id) {
			matches = append(matches, r)
		}
	}

	if len(matches) == 0 {
		// Try filename match
		pattern := filepath.Join(dir, "*"+id+"*.json")
		files, _ := filepath.Glob(pattern)
		if len(files) == 1 {
			rpt, err := report.Load(files[0])
			return rpt, files[0], err
		}
		return nil, "", fmt.Errorf("report not found: %s", id)
	}

	if len(matches) > 1 {
		return nil, "", fmt.Errorf("ambiguous report ID %q matches %d reports", id, len(matches))
	}

	rpt, err := report.Load(matches[0].Path)
	return rpt, matches[0].Path, err
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportVerifyCmd)

	reportShowCmd.Flags().Bool("json", false, "Output report as JSON")
}
