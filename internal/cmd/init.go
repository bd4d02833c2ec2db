package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/restoreops/rds-restore/internal/config"
	"github.com/restoreops/rds-restore/internal/signing"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap config and keys for a new project",
	Long: `Initializes a new rds-restore project.

This command creates a '.rds-restore' directory in your home directory
containing a default 'config.yaml' and a new Ed25519 keypair for signing
run reports. It will prompt for basic project information to get you
started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Bootstrapping a new rds-restore project...")

		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home directory: %w", err)
		}
		baseDir := filepath.Join(homeDir, ".rds-restore")

		if err := os.MkdirAll(filepath.Join(baseDir, "keys"), 0755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", baseDir, err)
		}

		configPath := filepath.Join(baseDir, "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("a config file already exists at %s", configPath)
		}

		reader := bufio.NewReader(os.Stdin)

		projectName, err := promptString(reader, "Project name")
		if err != nil {
			return err
		}
		sourceDB, err := promptString(reader, "Source DB instance identifier")
		if err != nil {
			return err
		}
		snapshotID, err := promptString(reader, "Snapshot identifier or ARN")
		if err != nil {
			return err
		}
		kmsKeyARN, err := promptWithDefault(reader, "KMS key ARN for snapshot copy (empty to restore as-is)", "")
		if err != nil {
			return err
		}
		pollInterval, err := promptIntWithDefault(reader, "Poll interval in seconds", 30)
		if err != nil {
			return err
		}
		timeout, err := promptIntWithDefault(reader, "Per-step timeout in minutes", 60)
		if err != nil {
			return err
		}

		// Generate signing keys
		pubKey, privKey, err := signing.GenerateSigningKeyPair()
		if err != nil {
			return fmt.Errorf("failed to generate signing key pair: %w", err)
		}

		privKeyPath := filepath.Join(baseDir, "keys", "signing.key")
		pubKeyPath := filepath.Join(baseDir, "keys", "signing.pub")

		projectID := strings.ToLower(strings.ReplaceAll(projectName, " ", "_"))
		cfg := config.Config{
			Version: 1,
			Project: config.Project{
				ID:   projectID,
				Name: projectName,
			},
			CLI: config.CLI{
				MachineID: "db-restore-01",
				ReportDir: filepath.Join(baseDir, "reports"),
			},
			Restore: config.Restore{
				SourceDB:            sourceDB,
				SnapshotID:          snapshotID,
				KMSKeyARN:           kmsKeyARN,
				PollIntervalSeconds: pollInterval,
				TimeoutMinutes:      timeout,
			},
			Verification: config.Verification{
				Connect: config.Connect{
					Enabled:     false,
					User:        "postgres",
					PasswordEnv: "RDS_RESTORE_DB_PASSWORD",
					DBName:      "postgres",
					MinTables:   1,
				},
			},
			Signing: config.Signing{
				PrivateKeyPath: privKeyPath,
			},
		}

		yamlData, err := yaml.Marshal(&cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}

		if err := os.WriteFile(configPath, yamlData, 0644); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		fmt.Printf("✓ Wrote config to %s\n", configPath)

		if err := os.WriteFile(privKeyPath, privKey, 0600); err != nil {
			return fmt.Errorf("failed to write private key: %w", err)
		}
		if err := os.WriteFile(pubKeyPath, pubKey, 0644); err != nil {
			return fmt.Errorf("failed to write public key: %w", err)
		}
		fmt.Printf("✓ Wrote signing keys to %s and %s\n", privKeyPath, pubKeyPath)
		fmt.Println("\nProject initialized. AWS credentials are resolved from the default chain at run time.")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// promptString asks the user for input without a default value.
func promptString(reader *bufio.Reader, label string) (string, error) {
	fmt.Printf("%s: ", label)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// promptWithDefault asks the user for input, providing a default if input is empty.
func promptWithDefault(reader *bufio.Reader, label, defaultValue string) (string, error) {
	fmt.Printf("%s (%s): ", label, defaultValue)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue, nil
	}
	return input, nil
}

// promptIntWithDefault is a convenience wrapper for integer prompts.
func promptIntWithDefault(reader *bufio.Reader, label string, defaultValue int) (int, error) {
	valStr, err := promptWithDefault(reader, label, strconv.Itoa(defaultValue))
	if err != nil {
		return 0, err
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid number provided: %q", valStr)
	}
	return val, nil
}
