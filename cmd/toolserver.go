package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spigell/cv-scout/internal/ai/gemini"
	"github.com/spigell/cv-scout/internal/logger"
	"github.com/spigell/cv-scout/internal/secrets"
	"github.com/spigell/cv-scout/internal/toolserver"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var toolServerCmd = &cobra.Command{
	Use:   "tool-server",
	Short: "Serve the bundled extraction tool over stdio",
	Long: "tool-server speaks the provider protocol on stdin/stdout so it can be\n" +
		"pointed at by provider.script (through a wrapper) or by any other client.\n" +
		"Logs go to stderr only.",
	Run: func(_ *cobra.Command, _ []string) {
		runToolServer()
	},
}

func init() {
	rootCmd.AddCommand(toolServerCmd)
}

func runToolServer() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// stdout is the protocol channel here.
	logger, err := logger.NewWithOutput(viper.GetBool("json"), viper.GetBool("debug"), "stderr")
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	generator, err := newGenerator(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the generator",
			zap.Error(err),
			zap.String("hint", "set ai.gemini.api-key, ai.gemini.api-key-file, or GEMINI_API_KEY"),
		)
	}

	srv, err := toolserver.New(logger, generator)
	if err != nil {
		logger.Fatal("building the tool server", zap.Error(err))
	}

	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Fatal("tool server failed", zap.Error(err))
	}
}

func newGenerator(ctx context.Context, config *Config, log *zap.Logger) (*gemini.Generator, error) {
	var aiCfg *AIConfig
	if config != nil {
		aiCfg = config.AI
	}

	var geminiCfg *GeminiConfig

	if aiCfg != nil {
		provider := strings.TrimSpace(strings.ToLower(aiCfg.Provider))
		if provider != "" && provider != "gemini" {
			return nil, fmt.Errorf("unsupported ai provider: %s", aiCfg.Provider)
		}

		geminiCfg = aiCfg.Gemini
	}

	var model string
	var maxRetries int

	if geminiCfg != nil {
		model = geminiCfg.Model
		maxRetries = geminiCfg.MaxRetries
	}

	apiKey, err := resolveGeminiKey(geminiCfg)
	if err != nil {
		return nil, err
	}

	genLogger := logger.WithCommonFields(log, "gemini", model)

	return gemini.NewGenerator(ctx, genLogger, apiKey, model, maxRetries)
}

func resolveGeminiKey(config *GeminiConfig) (string, error) {
	src := secrets.Source{Name: "gemini api key"}

	if config != nil {
		src.Value = config.APIKey
		src.File = config.APIKeyFile
	}

	if src.Value == "" && src.File == "" {
		src.Value = viper.GetString("ai.gemini.api-key")
	}

	return secrets.Load(src)
}
