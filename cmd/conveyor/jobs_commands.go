package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"conveyor/internal/ipc"
	"conveyor/internal/job"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var states []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Jobs(states)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(stdout, "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(resp.Jobs))
				for _, status := range resp.Jobs {
					rows = append(rows, jobRow(status))
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Job", "State", "Progress", "Device", "Model", "Queue", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&states, "state", nil, "Filter by job state (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "job JOB",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Job(args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					if showEvents {
						events, eventsErr := client.JobEvents(args[0])
						if eventsErr != nil {
							return eventsErr
						}
						return writeJSON(cmd, struct {
							Job    ipc.JobStatus `json:"job"`
							Events []ipc.Event   `json:"events"`
						}{Job: resp.Job, Events: events.Events})
					}
					return writeJSON(cmd, resp)
				}

				stdout := cmd.OutOrStdout()
				j := resp.Job.Job
				fmt.Fprintf(stdout, "Job:      %s\n", j.ID)
				fmt.Fprintf(stdout, "State:    %s\n", j.State.Display())
				fmt.Fprintf(stdout, "Progress: %s\n", formatProgress(resp.Job))
				fmt.Fprintf(stdout, "Model:    %s\n", j.ModelPath)
				fmt.Fprintf(stdout, "Slicer:   %s\n", j.SlicerProfile)
				fmt.Fprintf(stdout, "Driver:   %s\n", j.DriverProfile)
				fmt.Fprintf(stdout, "Device:   %s\n", j.DeviceID)
				if j.ToolpathPath != "" {
					fmt.Fprintf(stdout, "Toolpath: %s\n", j.ToolpathPath)
				}
				if resp.Job.QueuePosition > 0 {
					fmt.Fprintf(stdout, "Queue:    position %d\n", resp.Job.QueuePosition)
				}
				if j.ErrorDetail != "" {
					fmt.Fprintf(stdout, "Detail:   %s\n", j.ErrorDetail)
				}
				fmt.Fprintf(stdout, "Created:  %s\n", j.CreatedAt.Local().Format(time.RFC3339))
				fmt.Fprintf(stdout, "Updated:  %s\n", j.UpdatedAt.Local().Format(time.RFC3339))

				if !showEvents {
					return nil
				}
				events, err := client.JobEvents(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout)
				for _, event := range events.Events {
					fmt.Fprintf(stdout, "%s  %s -> %s", event.At.Local().Format(time.RFC3339), event.OldState, event.NewState)
					if event.Message != "" {
						fmt.Fprintf(stdout, "  (%s)", event.Message)
					}
					fmt.Fprintln(stdout)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	cmd.Flags().BoolVar(&showEvents, "events", false, "Include the job's event history")
	return cmd
}

func jobRow(status ipc.JobStatus) []string {
	j := status.Job
	queuePos := ""
	if status.QueuePosition > 0 {
		queuePos = strconv.Itoa(status.QueuePosition)
	}
	return []string{
		shortID(j.ID),
		j.State.Display(),
		formatProgress(status),
		j.DeviceID,
		filepath.Base(j.ModelPath),
		queuePos,
		j.UpdatedAt.Local().Format("15:04:05"),
	}
}

func formatProgress(status ipc.JobStatus) string {
	switch status.Job.State {
	case job.StatePrinting, job.StateCompleted:
		return fmt.Sprintf("%3.0f%%", status.Progress*100)
	default:
		return "-"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
