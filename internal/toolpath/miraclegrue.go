package toolpath

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"conveyor/internal/logging"
	"conveyor/internal/profile"
	"conveyor/internal/services"
)

// MiracleGrue drives the Miracle-Grue slicer executable. The start and end
// G-code sequences are handed to the tool as temporary files via -s and -e;
// Miracle-Grue splices them into its output itself.
type MiracleGrue struct {
	profile profile.Slicer
	exec    Executor
	logger  *slog.Logger
}

// MiracleGrueOption configures the client.
type MiracleGrueOption func(*MiracleGrue)

// WithMiracleGrueExecutor injects a custom executor (primarily for tests).
func WithMiracleGrueExecutor(exec Executor) MiracleGrueOption {
	return func(m *MiracleGrue) {
		if exec != nil {
			m.exec = exec
		}
	}
}

// NewMiracleGrue constructs a Miracle-Grue client for the resolved profile.
func NewMiracleGrue(p profile.Slicer, logger *slog.Logger, opts ...MiracleGrueOption) (*MiracleGrue, error) {
	if p.Backend != profile.BackendMiracleGrue {
		return nil, fmt.Errorf("profile %q is not a miraclegrue profile", p.Name)
	}
	if p.Path == "" {
		return nil, errors.New("miraclegrue executable required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	client := &MiracleGrue{
		profile: p,
		exec:    commandExecutor{},
		logger:  logging.NewComponentLogger(logger, "miraclegrue"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (m *MiracleGrue) Name() string {
	return string(m.profile.Name)
}

// Slice runs Miracle-Grue:
//
//	miracle_grue -c CONFIG -o OUTPUT -s START -e END INPUT
func (m *MiracleGrue) Slice(ctx context.Context, req Request) error {
	startPath, err := writeSequenceFile(req.StartSequence)
	if err != nil {
		return services.Wrap(services.ErrSliceFailed, "miraclegrue", "prepare start sequence", "", err)
	}
	endPath, err := writeSequenceFile(req.EndSequence)
	if err != nil {
		_ = os.Remove(startPath)
		return services.Wrap(services.ErrSliceFailed, "miraclegrue", "prepare end sequence", "", err)
	}
	defer func() {
		_ = os.Remove(startPath)
		_ = os.Remove(endPath)
	}()

	args := []string{
		"-c", m.profile.Config,
		"-o", req.OutputPath,
		"-s", startPath,
		"-e", endPath,
		req.ModelPath,
	}

	tail := &outputTail{}
	m.logger.Info("slicing",
		logging.String(logging.FieldJobID, req.JobID),
		logging.String("model", req.ModelPath))
	err = m.exec.Run(ctx, m.profile.Path, args, func(line string) {
		tail.add(line)
		m.logger.Debug("miracle-grue output",
			logging.String(logging.FieldJobID, req.JobID),
			logging.String("line", line))
	})
	if err != nil {
		return services.Wrap(services.ErrSliceFailed, "miraclegrue", "slice", tail.String(), err)
	}
	if _, statErr := os.Stat(req.OutputPath); statErr != nil {
		return services.Wrap(services.ErrSliceFailed, "miraclegrue", "slice", "no toolpath produced", statErr)
	}
	return nil
}

func writeSequenceFile(lines []string) (string, error) {
	file, err := os.CreateTemp("", "conveyor-*.gcode")
	if err != nil {
		return "", fmt.Errorf("create sequence file: %w", err)
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(file, line); err != nil {
			_ = file.Close()
			_ = os.Remove(file.Name())
			return "", fmt.Errorf("write sequence file: %w", err)
		}
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("close sequence file: %w", err)
	}
	return file.Name(), nil
}
