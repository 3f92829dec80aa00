package main

import (
	"github.com/spf13/cobra"

	"github.com/kw-96/AutoKit-sub000/internal/service_registry"
)

var relayPort int

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the websocket relay hub",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, _, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if relayPort != 0 {
			config.Relay.Port = relayPort
		}

		sr := service_registry.NewServiceRegistry(logger)
		sr.RegisterRelayServices(config)
		return runServices(sr)
	},
}

func init() {
	relayCmd.Flags().IntVarP(&relayPort, "port", "p", 0, "Port to listen on, overrides relay.port")
	rootCmd.AddCommand(relayCmd)
}
