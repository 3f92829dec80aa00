package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kw-96/AutoKit-sub000/internal/client"
	"github.com/kw-96/AutoKit-sub000/internal/models"
	"github.com/kw-96/AutoKit-sub000/internal/service_registry"
)

var (
	callChannel string
	callTimeout time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call <command> [params-json]",
	Short: "Issue one command on a channel and print its result",
	Long: `The call command joins a channel, issues a single command and waits for the
terminal reply. Progress updates of chunked commands are drawn as a progress bar.

Example:
  designrelay call --channel design delete_multiple_nodes '{"nodeIds":["1:1","1:2"]}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, _, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if callChannel == "" {
			callChannel = config.Agent.Channel
		}
		if callChannel == "" {
			return fmt.Errorf("a channel is required, pass --channel")
		}

		var params json.RawMessage
		if len(args) == 2 {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("params must be valid JSON")
			}
			params = json.RawMessage(args[1])
		}

		// Only warnings and up; the terminal belongs to pterm here.
		c := service_registry.NewClient(config, logger.Level(zerolog.WarnLevel))
		defer c.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), config.Client.LongCommandTimeout+config.Client.ProgressWindow)
		defer cancel()

		spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Joining channel %s", callChannel))
		if err := c.Connect(ctx); err != nil {
			spinner.Fail(err.Error())
			return err
		}
		if err := c.Join(ctx, callChannel); err != nil {
			spinner.Fail(err.Error())
			return err
		}
		spinner.Success(fmt.Sprintf("Joined channel %s (relay %s)", callChannel, c.RelayVersion()))

		return issue(ctx, c, args[0], params)
	},
}

func issue(ctx context.Context, c *client.Client, command string, params json.RawMessage) error {
	var bar *pterm.ProgressbarPrinter
	opts := []client.IssueOption{client.WithProgress(func(d models.ProgressData) {
		if bar == nil {
			bar, _ = pterm.DefaultProgressbar.WithTotal(100).WithTitle(command).Start()
		}
		if delta := models.NormalizeProgress(d.Progress) - bar.Current; delta > 0 {
			bar.Add(delta)
		}
		if d.Message != "" {
			bar.UpdateTitle(fmt.Sprintf("%s: %s", command, d.Message))
		}
	})}
	if callTimeout > 0 {
		opts = append(opts, client.WithTimeout(callTimeout))
	}

	start := time.Now()
	result, err := c.Issue(ctx, command, params, opts...)
	if bar != nil {
		_, _ = bar.Stop()
	}
	if err != nil {
		pterm.Error.Printf("%s failed after %s: %v\n", command, time.Since(start).Round(time.Millisecond), err)
		return err
	}

	pterm.Success.Printf("%s completed in %s\n", command, time.Since(start).Round(time.Millisecond))
	var out bytes.Buffer
	if err := json.Indent(&out, result, "", "  "); err != nil {
		pterm.Println(string(result))
		return nil
	}
	pterm.Println(out.String())
	return nil
}

func init() {
	callCmd.Flags().StringVar(&callChannel, "channel", "", "Channel to issue the command on, defaults to agent.channel")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "Override the command timeout")
	rootCmd.AddCommand(callCmd)
}
