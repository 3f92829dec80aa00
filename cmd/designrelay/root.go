package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kw-96/AutoKit-sub000/internal/service_registry"
	"github.com/kw-96/AutoKit-sub000/internal/utils"
	"github.com/kw-96/AutoKit-sub000/pkg/file"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "designrelay",
	Short:         "Channel relay between design-tool plugins and command issuers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/config.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

// loadConfig reads the config file and builds the root logger from it.
func loadConfig() (*utils.Config, file.FileOperations, zerolog.Logger, error) {
	fileClient := file.NewFileService()
	config, err := utils.LoadConfig(configFile, fileClient)
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
	return config, fileClient, newLogger(config), nil
}

func newLogger(config *utils.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(config.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if config.Logging.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	logger = logger.Level(level).With().Timestamp().Logger()
	if err != nil {
		logger.Warn().Str("level", config.Logging.Level).Msg("Unknown log level, using info")
	}
	return logger
}

// runServices starts every registered service and blocks until SIGINT or
// SIGTERM.
func runServices(sr *service_registry.ServiceRegistry) error {
	if err := sr.StartServices(); err != nil {
		return err
	}
	sr.Logger.Info().Strs("services", sr.Names()).Msg("All services started successfully")

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	sr.Logger.Info().Msg("Shutting down gracefully...")
	return sr.StopServices()
}
