package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"chatd/internal/config"
)

// serverFlags are the command-line overrides shared by serve and healthcheck.
type serverFlags struct {
	configPath     string
	addr           string
	modelsDir      string
	modelFile      string
	backend        string
	maxConcurrent  int
	logLevel       string
	logFile        string
	journalPath    string
	llamaServerURL string
	swagger        bool
}

func newRootCmd() *cobra.Command {
	f := &serverFlags{}
	root := &cobra.Command{
		Use:           "chatd",
		Short:         "Chat completion service with bounded concurrency over a local llama.cpp model",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.Flags(), f)
		},
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "Config file (.yaml, .json or .toml)")
	addServeFlags(root.Flags(), f)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Load the model and serve the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.Flags(), f)
		},
	}
	addServeFlags(serve.Flags(), f)

	root.AddCommand(serve, newHealthcheckCmd(f), newHistoryCmd(f))
	return root
}

func addServeFlags(fs *pflag.FlagSet, f *serverFlags) {
	fs.StringVar(&f.addr, "addr", "", "HTTP listen address, e.g. :8080")
	fs.StringVar(&f.modelsDir, "models-dir", "", "Directory to scan for *.gguf model files")
	fs.StringVar(&f.modelFile, "model", "", "Model file name inside models-dir (default: first *.gguf)")
	fs.StringVar(&f.backend, "backend", "", "Inference backend: llama|server|spawn")
	fs.IntVar(&f.maxConcurrent, "max-concurrent", 0, "Number of concurrent generation slots")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	fs.StringVar(&f.logFile, "log-file", "", "Log file path")
	fs.StringVar(&f.journalPath, "journal", "", "SQLite request journal path (empty disables)")
	fs.StringVar(&f.llamaServerURL, "llama-server-url", "", "Base URL of an external llama.cpp server")
	fs.BoolVar(&f.swagger, "swagger", false, "Serve API docs under /swagger/")
}

// loadConfig layers defaults, the config file, CHATD_* env and changed flags,
// then validates the result.
func loadConfig(fs *pflag.FlagSet, f *serverFlags) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("env: %w", err)
	}
	applyFlags(&cfg, fs, f)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, fs *pflag.FlagSet, f *serverFlags) {
	changed := func(name string) bool {
		fl := fs.Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("addr") {
		cfg.Addr = f.addr
	}
	if changed("models-dir") {
		cfg.ModelsDir = f.modelsDir
	}
	if changed("model") {
		cfg.ModelFile = f.modelFile
	}
	if changed("backend") {
		cfg.Backend = f.backend
	}
	if changed("max-concurrent") {
		cfg.MaxConcurrent = f.maxConcurrent
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-file") {
		cfg.LogFile = f.logFile
	}
	if changed("journal") {
		cfg.JournalPath = f.journalPath
	}
	if changed("llama-server-url") {
		cfg.LlamaServerURL = f.llamaServerURL
	}
	if changed("swagger") {
		cfg.Swagger = f.swagger
	}
}
