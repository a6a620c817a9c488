package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spigell/cv-scout/internal/jobsearch"
	"github.com/spigell/cv-scout/internal/logger"
	"github.com/spigell/cv-scout/internal/mcp"
	"github.com/spigell/cv-scout/internal/pipeline"
	"github.com/spigell/cv-scout/internal/secrets"
	"github.com/spigell/cv-scout/internal/server"
	"github.com/spigell/cv-scout/internal/textract"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultListen = ":8080"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the resume upload API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "listen address (default "+defaultListen+")")

	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

// serve is the long-running web mode: one provider session shared by all
// uploads for the lifetime of the process.
func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the cv-scout server", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	withJobs := config != nil && config.Jobs != nil && config.Jobs.Enabled

	pipe, closeSession, err := buildPipeline(ctx, config, logger, withJobs)
	if err != nil {
		logger.Fatal("wiring the pipeline",
			zap.Error(err),
			zap.String("hint", "set provider.script in the configuration file"),
		)
	}
	defer closeSession()

	listen := defaultListen
	if config != nil && config.Server != nil && config.Server.Listen != "" {
		listen = config.Server.Listen
	}

	srv := server.New(server.Config{Listen: listen}, pipe, logger)

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildPipeline spawns the provider script, initializes a session against
// it, and wires the pipeline around it. The returned closer shuts the
// session and the child process down.
func buildPipeline(ctx context.Context, config *Config, logger *zap.Logger, withJobs bool) (*pipeline.Pipeline, func() error, error) {
	if config == nil || config.Provider == nil || strings.TrimSpace(config.Provider.Script) == "" {
		return nil, nil, errors.New("provider script is required under provider.script")
	}

	transport, err := mcp.NewProcessTransport(ctx, logger, config.Provider.Script)
	if err != nil {
		return nil, nil, fmt.Errorf("starting the provider: %w", err)
	}

	session := mcp.NewSession(transport, logger)

	if config.Provider.InitTimeout > 0 {
		session.InitTimeout = config.Provider.InitTimeout
	}

	if config.Provider.CallTimeout > 0 {
		session.CallTimeout = config.Provider.CallTimeout
	}

	if err := session.Initialize(ctx); err != nil {
		session.Close()
		return nil, nil, fmt.Errorf("initializing the provider session: %w", err)
	}

	var searcher pipeline.JobSearcher

	if withJobs {
		client, err := buildSearcher(config, logger)
		if err != nil {
			session.Close()
			return nil, nil, err
		}

		searcher = client
	}

	return pipeline.New(session, textract.New(), searcher, logger), session.Close, nil
}

func buildSearcher(config *Config, logger *zap.Logger) (*jobsearch.Client, error) {
	apiKey, err := resolveJobsKey(config)
	if err != nil {
		return nil, fmt.Errorf("%w (set jobs.api-key, jobs.api-key-file, or SCRAPINGDOG_API_KEY)", err)
	}

	client := jobsearch.New(logger, apiKey)

	if config != nil && config.UserAgent != "" {
		client.UserAgent = config.UserAgent
	}

	return client, nil
}

func resolveJobsKey(config *Config) (string, error) {
	src := secrets.Source{Name: "scrapingdog api key"}

	if config != nil && config.Jobs != nil {
		src.Value = config.Jobs.APIKey
		src.File = config.Jobs.APIKeyFile
	}

	if src.Value == "" && src.File == "" {
		src.Value = viper.GetString("jobs.api-key")
	}

	return secrets.Load(src)
}
