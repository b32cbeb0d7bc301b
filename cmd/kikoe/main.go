// Package main is the kikoe CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hyperjump/kikoe/internal/client"
	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/workspace"
	"github.com/hyperjump/kikoe/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kikoe/config.yaml"

// app holds what every command shares once the global flags are parsed.
type app struct {
	configPath string
	debug      bool
	apiURL     string

	cfg          *config.Config
	resolvedPath string
	logger       *zap.Logger
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func (a *app) init() error {
	config.LoadDotEnv()
	cfg, resolved, err := loadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.apiURL != "" {
		cfg.API.BaseURL = strings.TrimRight(a.apiURL, "/")
	}
	a.debug = a.debug || cfg.Debug
	logger, err := utils.NewLogger(a.debug, cfg.Log.File)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg, a.resolvedPath, a.logger = cfg, resolved, logger
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.String("api_url", cfg.API.BaseURL),
		zap.Bool("debug", a.debug))
	return nil
}

func (a *app) client() *client.Client {
	return client.New(a.cfg.API, a.logger.Named("client"))
}

func (a *app) workspace() *workspace.Workspace {
	return workspace.New(a.client(), *a.cfg, a.logger)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "kikoe",
		Short: "kikoe - search and synthesize focus group research",
		Long: `kikoe searches a qualitative-research corpus of focus group transcripts and
campaign strategy memos, groups the results by race and generates summaries,
deep analyses and cross-race syntheses.

The research backend is set with --api-url, the KIKOE_API_URL environment
variable or api.base_url in the config file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "research backend URL (overrides config and environment)")

	root.AddCommand(
		newSearchCmd(a),
		newReportCmd(a),
		newCorpusCmd(a),
		newServeCmd(a),
		newInitCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kikoe version %s\n", version)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
