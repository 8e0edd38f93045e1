package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"chatd/internal/healthcheck"
)

func newHealthcheckCmd(f *serverFlags) *cobra.Command {
	var (
		url       string
		modelsDir string
		monitor   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check config, model files and a running server",
		Example: "  chatd healthcheck --url http://localhost:8080\n" +
			"  chatd healthcheck --monitor 10s",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := healthcheck.Options{BaseURL: url, ConfigPath: f.configPath, ModelsDir: modelsDir}
			if monitor > 0 {
				return healthcheck.Monitor(cmd.Context(), opts, monitor, cmd.OutOrStdout())
			}
			rep := healthcheck.Run(cmd.Context(), opts)
			rep.Write(cmd.OutOrStdout())
			if !rep.OK() {
				return errors.New("health check failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:8080", "Base URL of the running server")
	cmd.Flags().StringVar(&modelsDir, "models-dir", "", "Models directory (default from config)")
	cmd.Flags().DurationVar(&monitor, "monitor", 0, "Poll continuously at this interval instead of a one-shot report")
	return cmd
}
