package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"conveyor/internal/ipc"
	"conveyor/internal/preflight"
)

// newPreflightCommand checks the environment the daemon runs in. It asks a
// running daemon first so the checks reflect the daemon's host; with no
// daemon reachable it runs the checks locally.
func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check slicer, driver, and device availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			var checks []preflight.Result

			err := ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Preflight()
				if err != nil {
					return err
				}
				checks = resp.Checks
				return nil
			})
			if err != nil {
				cfg := ctx.configValue()
				if cfg == nil {
					return err
				}
				checks = preflight.RunAll(cfg)
			}

			if jsonOut {
				return writeJSON(cmd, struct {
					Checks []preflight.Result `json:"checks"`
					Passed bool               `json:"passed"`
				}{Checks: checks, Passed: preflight.Passed(checks)})
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, check := range checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			if !preflight.Passed(checks) {
				return fmt.Errorf("preflight checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
