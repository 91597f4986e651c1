package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the quizbuster CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quizbuster",
		Short: "QuizBuster quiz game API",
		Long: `QuizBuster serves registration, login and score updates for the
quiz game. Configuration is read from environment variables.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
