package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"laserlink/internal/bridge"
	"laserlink/internal/simulator"
	"laserlink/internal/wire"
)

type replayView struct {
	Index  int      `json:"index"`
	Kind   string   `json:"kind"`
	Status string   `json:"status,omitempty"`
	Text   string   `json:"text"`
	Fields []string `json:"fields"`
}

func newReplayCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "replay <file|->",
		Short: "Decode a raw capture into handshake messages",
		Long: "Decode a .bin capture (or stdin with -) with the configured charset and\n" +
			"framing and print each message with its handshake role.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			settings, err := bridge.SettingsFromConfig(cfg)
			if err != nil {
				return err
			}

			var source io.Reader
			if name := strings.TrimSpace(args[0]); name == "-" {
				source = cmd.InOrStdin()
			} else {
				file, err := os.Open(name)
				if err != nil {
					return fmt.Errorf("open capture: %w", err)
				}
				defer file.Close()
				source = file
			}

			messages, replayErr := simulator.Replay(source, settings.Framing)
			views := buildReplayViews(messages)
			if jsonOut {
				if err := writeJSON(cmd, views); err != nil {
					return err
				}
				return replayErr
			}
			stdout := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(stdout, "No messages decoded")
			} else {
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{fmt.Sprintf("%d", v.Index), v.Kind, orDash(v.Status), v.Text})
				}
				fmt.Fprintln(stdout, renderTable([]string{"#", "Kind", "Status", "Text"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
			}
			if replayErr != nil {
				return fmt.Errorf("capture not fully decoded: %w", replayErr)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func buildReplayViews(messages []wire.Message) []replayView {
	views := make([]replayView, 0, len(messages))
	for i, msg := range messages {
		views = append(views, replayView{
			Index:  i + 1,
			Kind:   string(msg.Kind()),
			Status: string(wire.InferStatus(msg.Text)),
			Text:   msg.Text,
			Fields: msg.Fields,
		})
	}
	return views
}
