package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spigell/cv-scout/internal/logger"
	"github.com/spigell/cv-scout/internal/pipeline"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "Search matching jobs?",
	Items: []string{PromptYes, PromptNo},
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract a profile from a single resume file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		extract(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().BoolP("auto-approve", "y", false, "run the job search without asking for confirmation")
}

// extract is the one-shot mode: one resume through the pipeline, profile to
// stdout, job search on request.
func extract(cmd *cobra.Command, path string) {
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

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("reading the resume", zap.Error(err))
	}

	// The job search runs after the prompt, not inside the pipeline.
	pipe, closeSession, err := buildPipeline(ctx, config, logger, false)
	if err != nil {
		logger.Fatal("wiring the pipeline",
			zap.Error(err),
			zap.String("hint", "set provider.script in the configuration file"),
		)
	}
	defer closeSession()

	res, err := pipe.Run(ctx, pipeline.Document{Name: filepath.Base(path), Data: data})
	if err != nil {
		logger.Fatal("extracting the profile", zap.Error(err))
	}

	if res.Failure != nil {
		logger.Fatal("extractor output failed the profile contract", zap.String("raw", res.Failure.Raw))
	}

	printJSON(res.Profile)

	if err := searchJobs(ctx, cmd, config, logger, res); err != nil {
		if errors.Is(err, errExit) {
			return
		}
		logger.Fatal("searching jobs", zap.Error(err))
	}
}

func searchJobs(ctx context.Context, cmd *cobra.Command, config *Config, logger *zap.Logger, res *pipeline.Result) error {
	if cmd.Flag("auto-approve").Value.String() == "false" {
		_, action, err := prompt.Run()
		if err != nil {
			return err
		}

		if action == PromptNo {
			return errExit
		}
	}

	searcher, err := buildSearcher(config, logger)
	if err != nil {
		return err
	}

	listings, err := searcher.Search(ctx, pipeline.QueryFor(res.Profile))
	if err != nil {
		return err
	}

	logger.Info("found jobs", zap.Int("count", len(listings)))

	printJSON(listings)

	return nil
}

func printJSON(v any) {
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(pretty))
}
