package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/get2b/get2b-go/internal/domain"
)

const serviceName = "scenarios"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := newRootCmd(logger).Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Project scenario workflow service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(logger),
		newMigrateCmd(logger),
		newGatingCmd(),
	)
	return root
}

func newGatingCmd() *cobra.Command {
	var stage int
	cmd := &cobra.Command{
		Use:   "gating",
		Short: "Print which workflow steps are enabled at a stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g := domain.DefaultCatalog().Gating(stage)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(gatingResponse(g)); err != nil {
				return fmt.Errorf("encode gating: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&stage, "stage", 1, "project stage")
	return cmd
}
