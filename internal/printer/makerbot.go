package printer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"conveyor/internal/job"
	"conveyor/internal/logging"
	"conveyor/internal/profile"
	"conveyor/internal/services"
)

// Request describes one print invocation.
type Request struct {
	JobID        string
	BuildName    string
	ToolpathPath string
}

// Driver streams a toolpath to a device. Print blocks until the build
// finishes, fails, or the context is cancelled; cancellation runs the
// machine's abort sequence before returning ErrCancelled.
type Driver interface {
	Name() string
	Print(ctx context.Context, port Port, req Request, progress func(job.Progress)) error
}

// MakerBot drives MakerBot-class machines by streaming G-code lines over
// the device port.
type MakerBot struct {
	name             string
	machine          MachineProfile
	progressInterval time.Duration
	logger           *slog.Logger
}

// MakerBotOption configures the driver.
type MakerBotOption func(*MakerBot)

// WithProgressInterval overrides how often progress callbacks fire
// (primarily for tests).
func WithProgressInterval(interval time.Duration) MakerBotOption {
	return func(m *MakerBot) {
		if interval > 0 {
			m.progressInterval = interval
		}
	}
}

// NewMakerBot constructs the driver for a resolved driver profile.
func NewMakerBot(p profile.Driver, logger *slog.Logger, opts ...MakerBotOption) (*MakerBot, error) {
	machine, err := LoadMachineProfile(p.ProfileDir, p.Machine)
	if err != nil {
		return nil, err
	}
	if machine.BaudRate == 0 {
		machine.BaudRate = p.BaudRate
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	driver := &MakerBot{
		name:             string(p.Name),
		machine:          machine,
		progressInterval: 5 * time.Second,
		logger:           logging.NewComponentLogger(logger, "makerbot"),
	}
	for _, opt := range opts {
		opt(driver)
	}
	return driver, nil
}

func (m *MakerBot) Name() string {
	return m.name
}

// Machine returns the loaded machine profile.
func (m *MakerBot) Machine() MachineProfile {
	return m.machine
}

// Print streams the toolpath line by line. Progress is reported as line
// counters at most once per progress interval plus once at the end. A
// write failure is surfaced as DeviceDisconnected; the job is not retried
// because resuming a partial build is unsafe.
func (m *MakerBot) Print(ctx context.Context, port Port, req Request, progress func(job.Progress)) error {
	lines, err := readToolpathLines(req.ToolpathPath)
	if err != nil {
		return fmt.Errorf("load toolpath: %w", err)
	}
	total := len(lines)

	m.logger.Info("printing",
		logging.String(logging.FieldJobID, req.JobID),
		logging.String("build", req.BuildName),
		logging.Int("total_lines", total))

	report := func(current int) {
		if progress != nil {
			progress(job.Progress{CurrentLine: current, TotalLines: total})
		}
	}

	nextReport := time.Now().Add(m.progressInterval)
	for current, line := range lines {
		select {
		case <-ctx.Done():
			return m.abort(port, req.JobID)
		default:
		}

		if err := port.WriteLine(line); err != nil {
			return services.Wrap(services.ErrDeviceDisconnected, "makerbot", "stream toolpath",
				fmt.Sprintf("line %d of %d", current+1, total), err)
		}

		if now := time.Now(); now.After(nextReport) {
			nextReport = now.Add(m.progressInterval)
			report(current + 1)
		}
	}

	report(total)
	return nil
}

// abort writes the machine abort sequence so the device ends in a safe,
// known state, then reports cancellation. An abort that cannot reach the
// device is a disconnect.
func (m *MakerBot) abort(port Port, jobID string) error {
	m.logger.Info("aborting build", logging.String(logging.FieldJobID, jobID))
	for _, line := range m.machine.AbortSequence {
		if err := port.WriteLine(line); err != nil {
			return services.Wrap(services.ErrDeviceDisconnected, "makerbot", "abort sequence", "", err)
		}
	}
	return services.Wrap(services.ErrCancelled, "makerbot", "print", "abort sequence completed", nil)
}

func readToolpathLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, errors.New("toolpath is empty")
	}
	return lines, nil
}
