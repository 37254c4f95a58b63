package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Jawbreaker1/pwnpilot/internal/config"
	"github.com/Jawbreaker1/pwnpilot/internal/gateway"
	"github.com/Jawbreaker1/pwnpilot/internal/logging"
	"github.com/Jawbreaker1/pwnpilot/internal/prompts"
	"github.com/Jawbreaker1/pwnpilot/internal/provider"
	"github.com/Jawbreaker1/pwnpilot/internal/repl"
	"github.com/Jawbreaker1/pwnpilot/internal/session"
	"github.com/Jawbreaker1/pwnpilot/internal/toolcache"
)

// rootFlags are the command-line overrides applied on top of the config file
// and environment variables.
type rootFlags struct {
	configPath  string
	envFile     string
	providerSrc string
	modelID     string
	resumeID    string
	target      string
	guided      bool
	listModels  bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "pwnpilot",
		Short: "Interactive AI assistant for authorized penetration testing",
		Long: "pwnpilot drives security tooling through an AI model under operator control.\n" +
			"Every tool execution is approved interactively or gated by safety\n" +
			"classification in autonomous mode, and everything is logged for audit.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd.Context(), flags)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "pwnpilot.yaml", "Path to config file")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Path to env file with API keys")
	cmd.Flags().StringVar(&flags.providerSrc, "provider", "", "AI provider (anthropic or ollama)")
	cmd.Flags().StringVar(&flags.modelID, "model", "", "Model id to use")
	cmd.Flags().StringVar(&flags.resumeID, "resume", "", "Resume a saved session by id")
	cmd.Flags().StringVar(&flags.target, "target", "", "Engagement target")
	cmd.Flags().BoolVar(&flags.guided, "guided", false, "Start in guided mode (you run commands yourself)")
	cmd.Flags().BoolVar(&flags.listModels, "list-models", false, "List available models for the provider and exit")

	cmd.AddCommand(newSessionsCmd(flags))
	cmd.AddCommand(newAuditCmd(flags))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// loadConfig resolves env file, config file, and environment into the
// effective configuration. A missing env file is fine.
func loadConfig(flags *rootFlags) (config.Config, error) {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !os.IsNotExist(err) {
			return config.Config{}, fmt.Errorf("load env file %s: %w", flags.envFile, err)
		}
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if flags.providerSrc != "" {
		cfg.Provider.Source = flags.providerSrc
	}
	if flags.modelID != "" {
		cfg.Provider.ModelID = flags.modelID
	}
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return cfg, nil
}

func buildProvider(cfg config.Config) (provider.Provider, error) {
	switch strings.ToLower(cfg.Provider.Source) {
	case "anthropic", "":
		if cfg.Provider.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key (ANTHROPIC_API_KEY or provider.api_key)")
		}
		return provider.NewAnthropic(cfg.Provider.APIKey, cfg.Provider.ModelID), nil
	case "ollama":
		return provider.NewOllama(cfg.Provider.OllamaURL, cfg.Provider.ModelID), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want anthropic or ollama)", cfg.Provider.Source)
	}
}

func listModels(ctx context.Context, cfg config.Config) error {
	var (
		models []provider.ModelInfo
		err    error
	)
	switch strings.ToLower(cfg.Provider.Source) {
	case "anthropic", "":
		models, err = provider.ListAnthropicModels(ctx, cfg.Provider.APIKey)
	case "ollama":
		models, err = provider.ListOllamaModels(ctx, cfg.Provider.OllamaURL)
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider.Source)
	}
	if err != nil {
		return err
	}
	for _, model := range models {
		if model.Name != "" && model.Name != model.ID {
			fmt.Printf("%s\t%s\n", model.ID, model.Name)
		} else {
			fmt.Println(model.ID)
		}
	}
	return nil
}

func runRoot(ctx context.Context, flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if flags.listModels {
		return listModels(ctx, cfg)
	}

	prov, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	cache := toolcache.New[gateway.Result](cfg.Cache.TTL, cfg.Cache.Enabled)
	gw := gateway.New(cfg.Executor.URL, cache, cfg.Executor.MaxTools, cfg.Executor.Timeout, logger)

	// Guided mode runs without an executor: the operator executes commands
	// by hand, so an unreachable tool server only costs the tool offer list.
	var defs []gateway.ToolDef
	status, err := gw.Health(ctx)
	switch {
	case err != nil && !flags.guided:
		return fmt.Errorf("tool server check failed: %w", err)
	case err != nil:
		logger.Warn("tool server unreachable, continuing in guided mode", zap.Error(err))
	default:
		available := 0
		for _, ok := range status {
			if ok {
				available++
			}
		}
		logger.Info("tool server healthy",
			zap.String("url", gw.BaseURL()),
			zap.Int("tools_available", available))
		defs, err = gw.FetchTools(ctx)
		if err != nil {
			return fmt.Errorf("fetch tools: %w", err)
		}
	}

	sess, err := openSession(cfg, flags, logger)
	if err != nil {
		return err
	}
	if err := sess.SetModelSource(prov.Name()); err != nil {
		return err
	}
	if err := sess.SetModel(prov.ModelID()); err != nil {
		return err
	}
	if flags.target != "" {
		if err := sess.SetTarget(flags.target); err != nil {
			return err
		}
	}

	r, err := repl.New(repl.Options{
		Config:   cfg,
		Session:  sess,
		Provider: prov,
		Gateway:  gw,
		Loader:   prompts.NewLoader(cfg.Prompt.Dir, logger),
		Tools:    repl.ToolSpecs(defs),
		Guided:   flags.guided,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	return r.Run(ctx)
}

func openSession(cfg config.Config, flags *rootFlags, logger *zap.Logger) (*session.Manager, error) {
	if flags.resumeID != "" {
		sess, err := session.Restore(cfg.Session.Dir, flags.resumeID, logger)
		if err != nil {
			return nil, fmt.Errorf("resume session %s: %w", flags.resumeID, err)
		}
		logger.Info("session resumed",
			zap.String("session_id", sess.ID()),
			zap.Int("messages", len(sess.Messages())))
		return sess, nil
	}
	return session.New(cfg.Session.Dir, "", logger)
}
