package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"conveyor/internal/ipc"
)

// newWatchCommand streams state-change events as they happen.
func newWatchCommand(ctx *commandContext) *cobra.Command {
	var jobFilter string
	var jsonOut bool
	var fromStart bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream job state changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				var cursor int64
				if !fromStart {
					// Start at the tip: replay nothing, show only new events.
					status, err := client.EventTail(ipc.EventTailRequest{After: 0, Limit: 1})
					if err != nil {
						return err
					}
					cursor = latestCursor(client, status)
				}

				stdout := cmd.OutOrStdout()
				for {
					if err := cmd.Context().Err(); err != nil {
						return err
					}
					resp, err := client.EventTail(ipc.EventTailRequest{After: cursor, WaitMillis: 1000})
					if err != nil {
						return err
					}
					cursor = resp.Next
					for _, event := range resp.Events {
						if jobFilter != "" && event.JobID != jobFilter {
							continue
						}
						if jsonOut {
							if err := writeJSON(cmd, event); err != nil {
								return err
							}
							continue
						}
						fmt.Fprintf(stdout, "%s  %s  %s -> %s", event.At.Local().Format(time.TimeOnly), shortID(event.JobID), event.OldState, event.NewState)
						if event.Message != "" {
							fmt.Fprintf(stdout, "  (%s)", event.Message)
						}
						fmt.Fprintln(stdout)
					}
				}
			})
		},
	}

	cmd.Flags().StringVar(&jobFilter, "job", "", "Only show events for one job")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit one JSON object per event")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "Replay the full event history first")
	return cmd
}

func latestCursor(client *ipc.Client, first *ipc.EventTailResponse) int64 {
	cursor := first.Next
	for {
		resp, err := client.EventTail(ipc.EventTailRequest{After: cursor})
		if err != nil || len(resp.Events) == 0 {
			return cursor
		}
		cursor = resp.Next
	}
}
