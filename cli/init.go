package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ViVse/ecg-v2/config"
)

var (
	initBackend   string
	initDSN       string
	initNoEditing bool
	initForce     bool
	initUI        bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize ecgreview in the current directory",
	Long: `Create .ecgreview/config.yaml in the current directory.

The config selects where clinician overrides are stored (gob, postgres or
none), whether editing is enabled and the chart defaults.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initBackend, "backend", "b", "", "Override store: gob, postgres or none")
	initCmd.Flags().StringVar(&initDSN, "dsn", "", "PostgreSQL DSN (when backend=postgres)")
	initCmd.Flags().BoolVar(&initNoEditing, "no-editing", false, "Disable prediction editing")
	initCmd.Flags().BoolVarP(&initForce, "force", "F", false, "Overwrite an existing configuration")
	initCmd.Flags().BoolVar(&initUI, "ui", false, "Run interactive Bubble Tea UI wizard")
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	if config.Exists(cwd) && !initForce {
		fmt.Fprintf(cmd.OutOrStdout(), "ecgreview is already initialized in %s (use --force to overwrite)\n", cwd)
		return nil
	}

	var cfg *config.Config
	if shouldUseInitUI(isInteractiveTerminal(), initUI) {
		cfg, err = runInitWizardUI(cwd, config.DefaultConfig())
		if err != nil {
			return err
		}
	} else {
		cfg, err = buildInitConfig(initBackend, initDSN, !initNoEditing)
		if err != nil {
			return err
		}
	}

	if err := cfg.Save(cwd); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized ecgreview in %s\n", cwd)
	fmt.Fprintf(out, "Config: %s\n", config.GetConfigPath(cwd))
	fmt.Fprintf(out, "Override store: %s\n", cfg.Store.Backend)
	if cfg.Store.Backend == "gob" {
		fmt.Fprintf(out, "Overrides file: %s\n", cfg.GetOverridesPath(cwd))
	}
	return nil
}

func shouldUseInitUI(isTTY, requested bool) bool {
	return isTTY && requested
}

// buildInitConfig applies the init flags to the default config.
func buildInitConfig(backend, dsn string, editing bool) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if backend != "" {
		cfg.Store = config.DefaultStoreForBackend(backend)
		cfg.Store.Backend = backend
	}
	if dsn != "" {
		if cfg.Store.Backend != "postgres" {
			return nil, fmt.Errorf("--dsn requires --backend postgres")
		}
		cfg.Store.Postgres.DSN = dsn
	}
	cfg.Editing.Enabled = editing
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
