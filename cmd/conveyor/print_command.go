package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"conveyor/internal/config"
	"conveyor/internal/ipc"
	"conveyor/internal/job"
)

func newPrintCommand(ctx *commandContext) *cobra.Command {
	var (
		slicerFlag   string
		driverFlag   string
		deviceFlag   string
		jsonOut      bool
		follow       bool
		raft         bool
		support      bool
		infill       float64
		layerHeight  float64
		shells       int
		extruderTemp float64
		platformTemp float64
		printSpeed   float64
		travelSpeed  float64
	)

	cmd := &cobra.Command{
		Use:   "print MODEL",
		Short: "Slice a model and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			modelPath, err := resolveModelPath(args[0])
			if err != nil {
				return err
			}

			req := ipc.PrintRequest{
				ModelPath:     modelPath,
				SlicerProfile: firstNonEmpty(slicerFlag, cfg.MiracleGrue.Name),
				DriverProfile: firstNonEmpty(driverFlag, cfg.MakerBot.Name),
				DeviceID:      deviceFlag,
				Params:        slicingParams(cfg, cmd, raft, support, infill, layerHeight, shells, extruderTemp, platformTemp, printSpeed, travelSpeed),
			}
			if req.DeviceID == "" {
				if len(cfg.Devices) != 1 {
					return fmt.Errorf("multiple devices configured; pick one with --device")
				}
				req.DeviceID = cfg.Devices[0].ID
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Print(req)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Job %s submitted to %s\n", resp.JobID, req.DeviceID)
				if !follow {
					return nil
				}
				return followJob(cmd, client, resp.JobID)
			})
		},
	}

	cmd.Flags().StringVar(&slicerFlag, "slicer", "", "Slicer profile name")
	cmd.Flags().StringVar(&driverFlag, "driver", "", "Driver profile name")
	cmd.Flags().StringVarP(&deviceFlag, "device", "d", "", "Target device id")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow the job until it finishes")
	cmd.Flags().BoolVar(&raft, "raft", false, "Print with a raft")
	cmd.Flags().BoolVar(&support, "support", false, "Print with support material")
	cmd.Flags().Float64Var(&infill, "infill", 0, "Infill density in [0,1]")
	cmd.Flags().Float64Var(&layerHeight, "layer-height", 0, "Layer height in mm")
	cmd.Flags().IntVar(&shells, "shells", 0, "Number of shells")
	cmd.Flags().Float64Var(&extruderTemp, "extruder-temperature", 0, "Extruder temperature in degrees C")
	cmd.Flags().Float64Var(&platformTemp, "platform-temperature", 0, "Platform temperature in degrees C")
	cmd.Flags().Float64Var(&printSpeed, "print-speed", 0, "Print feedrate in mm/s")
	cmd.Flags().Float64Var(&travelSpeed, "travel-speed", 0, "Travel feedrate in mm/s")
	return cmd
}

// slicingParams merges configured defaults with any flags the user set
// explicitly.
func slicingParams(cfg *config.Config, cmd *cobra.Command, raft, support bool, infill, layerHeight float64, shells int, extruderTemp, platformTemp, printSpeed, travelSpeed float64) ipc.SlicingParams {
	params := ipc.SlicingParams{
		Raft:                cfg.Client.Slicing.Raft,
		Support:             cfg.Client.Slicing.Support,
		InfillDensity:       cfg.Client.Slicing.InfillDensity,
		LayerHeight:         cfg.Client.Slicing.LayerHeight,
		Shells:              cfg.Client.Slicing.Shells,
		ExtruderTemperature: cfg.Client.Slicing.ExtruderTemperature,
		PlatformTemperature: cfg.Client.Slicing.PlatformTemperature,
		PrintSpeed:          cfg.Client.Slicing.PrintSpeed,
		TravelSpeed:         cfg.Client.Slicing.TravelSpeed,
	}
	flags := cmd.Flags()
	if flags.Changed("raft") {
		params.Raft = raft
	}
	if flags.Changed("support") {
		params.Support = support
	}
	if flags.Changed("infill") {
		params.InfillDensity = infill
	}
	if flags.Changed("layer-height") {
		params.LayerHeight = layerHeight
	}
	if flags.Changed("shells") {
		params.Shells = shells
	}
	if flags.Changed("extruder-temperature") {
		params.ExtruderTemperature = extruderTemp
	}
	if flags.Changed("platform-temperature") {
		params.PlatformTemperature = platformTemp
	}
	if flags.Changed("print-speed") {
		params.PrintSpeed = printSpeed
	}
	if flags.Changed("travel-speed") {
		params.TravelSpeed = travelSpeed
	}
	return params
}

func resolveModelPath(arg string) (string, error) {
	trimmed := strings.TrimSpace(arg)
	if trimmed == "" {
		return "", fmt.Errorf("model path is required")
	}
	expanded, err := config.ExpandPath(trimmed)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve model path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("inspect model %q: %w", abs, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("model path %q is a directory", abs)
	}
	return abs, nil
}

// followJob streams state changes until the job reaches a terminal state.
func followJob(cmd *cobra.Command, client *ipc.Client, jobID string) error {
	stdout := cmd.OutOrStdout()
	var cursor int64
	lastProgress := -1.0
	for {
		resp, err := client.EventTail(ipc.EventTailRequest{After: cursor, WaitMillis: 1000})
		if err != nil {
			return err
		}
		cursor = resp.Next
		for _, event := range resp.Events {
			if event.JobID != jobID {
				continue
			}
			fmt.Fprintf(stdout, "%s  %s -> %s", event.At.Local().Format(time.TimeOnly), event.OldState, event.NewState)
			if event.Message != "" {
				fmt.Fprintf(stdout, "  (%s)", event.Message)
			}
			fmt.Fprintln(stdout)
			if event.NewState.Terminal() {
				if event.NewState != job.StateCompleted {
					return fmt.Errorf("job %s %s", jobID, event.NewState)
				}
				return nil
			}
		}

		status, err := client.Job(jobID)
		if err != nil {
			return err
		}
		if progress := status.Job.Progress; progress != lastProgress && status.Job.Job.State == job.StatePrinting {
			lastProgress = progress
			fmt.Fprintf(stdout, "%s  printing %3.0f%%\n", time.Now().Format(time.TimeOnly), progress*100)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
