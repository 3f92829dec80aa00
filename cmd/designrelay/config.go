package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/kw-96/AutoKit-sub000/internal/utils"
	"github.com/kw-96/AutoKit-sub000/pkg/file"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every default filled in",
	RunE: func(cmd *cobra.Command, args []string) error {
		fileClient := file.NewFileService()
		exists, err := fileClient.IsFileExists(configFile)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%s already exists", configFile)
		}

		var config utils.Config
		config.ApplyDefaults()
		if err := fileClient.WriteYamlFile(configFile, &config); err != nil {
			return err
		}
		pterm.Success.Printf("Wrote %s\n", configFile)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, _, _, err := loadConfig()
		if err != nil {
			return err
		}
		pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
			{"Setting", "Value"},
			{"relay.port", fmt.Sprint(config.Relay.Port)},
			{"relay.probe_interval", config.Relay.ProbeInterval.String()},
			{"relay.liveness_timeout", config.Relay.LivenessTimeout.String()},
			{"client.url", config.Client.URL},
			{"client.command_timeout", config.Client.CommandTimeout.String()},
			{"client.reconnect_max_attempts", fmt.Sprint(config.Client.ReconnectMaxAttempts)},
			{"agent.channel", config.Agent.Channel},
			{"agent.chunk_size", fmt.Sprint(config.Agent.ChunkSize)},
			{"agent.chunk_delay", config.Agent.ChunkDelay.String()},
			{"mirror.enabled", fmt.Sprint(config.Mirror.Enabled)},
			{"logging.level", config.Logging.Level},
		}).Render()
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
