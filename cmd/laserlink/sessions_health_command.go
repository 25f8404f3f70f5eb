package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"laserlink/internal/ipc"
	"laserlink/internal/sessions"
)

func newSessionsHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the sessions database (schema, integrity, row count)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := loadDatabaseHealth(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database path: %s\n", resp.DBPath)
			fmt.Fprintf(out, "Database exists: %s\n", yesNo(resp.DatabaseExists))
			fmt.Fprintf(out, "Readable: %s\n", yesNo(resp.DatabaseReadable))
			fmt.Fprintf(out, "Schema version: %d\n", resp.SchemaVersion)
			fmt.Fprintf(out, "Integrity check: %s\n", yesNo(resp.IntegrityCheck))
			fmt.Fprintf(out, "Total sessions: %d\n", resp.TotalSessions)
			if resp.Error != "" {
				fmt.Fprintf(out, "Error: %s\n", resp.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func loadDatabaseHealth(cmdCtx context.Context, ctx *commandContext) (*ipc.DatabaseHealthResponse, error) {
	if client, err := ipc.Dial(ctx.socketPath()); err == nil {
		defer client.Close()
		return client.DatabaseHealth()
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := sessions.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	health, err := store.CheckHealth(cmdCtx)
	if err != nil {
		return nil, err
	}
	resp := ipc.DatabaseHealthResponse(health)
	return &resp, nil
}
