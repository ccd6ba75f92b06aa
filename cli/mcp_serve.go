package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ViVse/ecg-v2/config"
	"github.com/ViVse/ecg-v2/mcp"
)

var mcpServeCmd = &cobra.Command{
	Use:   "mcp-serve [project-path]",
	Short: "Start the MCP server over stdio",
	Long: `Start a Model Context Protocol server exposing the review tools:
beats, classification table, chart markers and prediction updates.

When project-path is given its .ecgreview config is used. Otherwise the
nearest project above the working directory is used, falling back to the
working directory with default settings and no override store.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMCPServe,
}

func runMCPServe(cmd *cobra.Command, args []string) error {
	explicit := ""
	if len(args) == 1 {
		explicit = args[0]
	}
	projectRoot, err := resolveMCPTarget(explicit)
	if err != nil {
		return err
	}

	srv, err := mcp.NewServer(context.Background(), projectRoot, version)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()
	return srv.Serve()
}

// resolveMCPTarget picks the project the server works in. An explicit
// path must already be initialized.
func resolveMCPTarget(explicitPath string) (string, error) {
	if explicitPath != "" {
		abs, err := filepath.Abs(explicitPath)
		if err != nil {
			return "", fmt.Errorf("invalid project path: %w", err)
		}
		if _, err := os.Stat(config.GetConfigDir(abs)); err != nil {
			return "", fmt.Errorf("no .ecgreview directory at %s (run 'ecgreview init' there)", abs)
		}
		return abs, nil
	}

	projectRoot, err := config.FindProjectRoot()
	if err == nil {
		return projectRoot, nil
	}
	if !errors.Is(err, config.ErrNotFound) {
		return "", err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return cwd, nil
}
