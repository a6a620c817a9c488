package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "cv-scout"
)

type Config struct {
	Server    *ServerConfig   `mapstructure:"server"`
	Provider  *ProviderConfig `mapstructure:"provider"`
	Jobs      *JobsConfig     `mapstructure:"jobs"`
	AI        *AIConfig       `mapstructure:"ai"`
	UserAgent string          `mapstructure:"user-agent"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// ProviderConfig points at the tool provider script and bounds its phases.
// Timeouts are plain duration strings ("15s", "2m").
type ProviderConfig struct {
	Script      string        `mapstructure:"script"`
	InitTimeout time.Duration `mapstructure:"init-timeout"`
	CallTimeout time.Duration `mapstructure:"call-timeout"`
}

type JobsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-scout extracts a structured profile from a resume and finds matching job listings",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("jobs.api-key", "SCRAPINGDOG_API_KEY"); err != nil {
		log.Fatalf("binding SCRAPINGDOG_API_KEY environment variable: %v", err)
	}

	if err := viper.BindEnv("ai.gemini.api-key", "GEMINI_API_KEY"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-scout.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Only commands that wire the pipeline or the tool server need a config.
	if serveCmd.CalledAs() == "" && extractCmd.CalledAs() == "" && toolServerCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// A missing config file is fine: the environment can carry the keys.
	// A config file that fails to parse is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
