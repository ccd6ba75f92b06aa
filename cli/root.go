package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ViVse/ecg-v2/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ecgreview",
	Short: "Review ECG beat annotations and correct their classification",
	Long: `ecgreview renders an ECG recording with its fiducial peaks and beat
markers, shows the per-beat anomaly classification table and lets a
clinician override a beat's label. Overrides are stored locally and
replayed the next time the recording is reviewed.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ecgreview version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ecgreview %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(beatsCmd)
	rootCmd.AddCommand(tableCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command with the given build version.
func Execute(v string) {
	if v != "" {
		version = v
		rootCmd.Version = v
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadProject returns the nearest project root and its config. Outside a
// project the working directory is used with defaults and no override
// store.
func loadProject() (string, *config.Config, error) {
	projectRoot, err := config.FindProjectRoot()
	if errors.Is(err, config.ErrNotFound) {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			return "", nil, fmt.Errorf("failed to get working directory: %w", cwdErr)
		}
		cfg := config.DefaultConfig()
		cfg.Store = config.DefaultStoreForBackend("none")
		return cwd, cfg, nil
	}
	if err != nil {
		return "", nil, err
	}
	if !config.Exists(projectRoot) {
		return projectRoot, config.DefaultConfig(), nil
	}
	cfg, err := config.Load(projectRoot)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return projectRoot, cfg, nil
}
