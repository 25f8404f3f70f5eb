package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"laserlink/internal/config"
	"laserlink/internal/preflight"
	"laserlink/internal/serialport"
)

type portView struct {
	Port       string `json:"port"`
	Role       string `json:"role,omitempty"`
	Accessible bool   `json:"accessible"`
	Detail     string `json:"detail"`
}

func newPortsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports and whether laserlink can open them",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := serialport.List()
			if err != nil {
				return fmt.Errorf("list serial ports: %w", err)
			}
			views := buildPortViews(names, ctx.configValue())
			if jsonOut {
				return writeJSON(cmd, views)
			}
			stdout := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(stdout, "No serial ports found")
				return nil
			}
			colorize := shouldColorize(stdout)
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				access := colorText(statusOK, "ok", colorize)
				if !v.Accessible {
					access = colorText(statusError, "no", colorize)
				}
				rows = append(rows, []string{v.Port, orDash(v.Role), access, v.Detail})
			}
			fmt.Fprintln(stdout, renderTable([]string{"Port", "Role", "Access", "Detail"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// buildPortViews lists every discovered port plus the configured ones that
// were not discovered.
func buildPortViews(names []string, cfg *config.Config) []portView {
	roles := map[string]string{}
	if cfg != nil {
		if port := strings.TrimSpace(cfg.Serial.Laser.Port); port != "" {
			roles[port] = "laser"
		}
		if port := strings.TrimSpace(cfg.Serial.SFC.Port); port != "" {
			if roles[port] != "" {
				roles[port] += ", sfc"
			} else {
				roles[port] = "sfc"
			}
		}
	}

	all := append([]string(nil), names...)
	seen := make(map[string]bool, len(all))
	for _, name := range all {
		seen[name] = true
	}
	for port := range roles {
		if !seen[port] {
			all = append(all, port)
		}
	}
	serialport.SortNames(all)

	views := make([]portView, 0, len(all))
	for _, name := range all {
		check := preflight.CheckPortAccess(name, name)
		views = append(views, portView{
			Port:       name,
			Role:       roles[name],
			Accessible: check.Passed,
			Detail:     check.Detail,
		})
	}
	return views
}
