package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"FinSynth/internal/di"
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the coordinator: query and score phases plus the status API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := di.InitializeCoordinator(cfg)
		if err != nil {
			return fmt.Errorf("coordinator initialization failed: %w", err)
		}

		ctx, stop := signalContext()
		defer stop()
		return app.Run(ctx)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker serving /simulate",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := di.InitializeWorker(cfg)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}

		ctx, stop := signalContext()
		defer stop()
		return app.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(coordinatorCmd, workerCmd)
}
