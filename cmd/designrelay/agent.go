package main

import (
	"github.com/spf13/cobra"

	"github.com/kw-96/AutoKit-sub000/internal/document"
	"github.com/kw-96/AutoKit-sub000/internal/registry"
	"github.com/kw-96/AutoKit-sub000/internal/service_registry"
)

var agentChannel string

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Serve an in-memory design document on a relay channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, fileClient, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if agentChannel != "" {
			config.Agent.Channel = agentChannel
		}

		commands := registry.NewCommands()
		if err := document.Register(commands, document.NewStore(config.Agent.DocumentName)); err != nil {
			return err
		}

		sr := service_registry.NewServiceRegistry(logger)
		if err := sr.RegisterAgentServices(config, commands, fileClient); err != nil {
			return err
		}
		return runServices(sr)
	},
}

func init() {
	agentCmd.Flags().StringVar(&agentChannel, "channel", "", "Channel to serve, overrides agent.channel")
	rootCmd.AddCommand(agentCmd)
}
