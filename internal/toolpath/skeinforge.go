package toolpath

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"conveyor/internal/logging"
	"conveyor/internal/profile"
	"conveyor/internal/services"
)

// Skeinforge drives the Skeinforge slicer. Skeinforge has no flags for the
// output location or start/end sequences: it writes INPUT_export.gcode next
// to a copy of the model, so the client stages the model in a scratch
// directory, collects the export, and wraps it with the machine start and
// end sequences itself.
type Skeinforge struct {
	profile profile.Slicer
	python  string
	exec    Executor
	logger  *slog.Logger
}

// SkeinforgeOption configures the client.
type SkeinforgeOption func(*Skeinforge)

// WithSkeinforgeExecutor injects a custom executor (primarily for tests).
func WithSkeinforgeExecutor(exec Executor) SkeinforgeOption {
	return func(s *Skeinforge) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// WithSkeinforgePython overrides the python interpreter used to run the
// Skeinforge entry script.
func WithSkeinforgePython(python string) SkeinforgeOption {
	return func(s *Skeinforge) {
		if python != "" {
			s.python = python
		}
	}
}

// NewSkeinforge constructs a Skeinforge client for the resolved profile.
func NewSkeinforge(p profile.Slicer, logger *slog.Logger, opts ...SkeinforgeOption) (*Skeinforge, error) {
	if p.Backend != profile.BackendSkeinforge {
		return nil, fmt.Errorf("profile %q is not a skeinforge profile", p.Name)
	}
	if p.Path == "" {
		return nil, errors.New("skeinforge entry script required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	client := &Skeinforge{
		profile: p,
		python:  "python",
		exec:    commandExecutor{},
		logger:  logging.NewComponentLogger(logger, "skeinforge"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (s *Skeinforge) Name() string {
	return string(s.profile.Name)
}

// Slice runs Skeinforge:
//
//	python skeinforge.py -p PROFILE_DIR/PROFILE MODEL
func (s *Skeinforge) Slice(ctx context.Context, req Request) error {
	scratch, err := os.MkdirTemp("", "conveyor-skeinforge-")
	if err != nil {
		return services.Wrap(services.ErrSliceFailed, "skeinforge", "create scratch dir", "", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	staged := filepath.Join(scratch, filepath.Base(req.ModelPath))
	if err := copyFile(req.ModelPath, staged); err != nil {
		return services.Wrap(services.ErrSliceFailed, "skeinforge", "stage model", "", err)
	}

	args := []string{
		s.profile.Path,
		"-p", filepath.Join(s.profile.ProfileDir, s.profile.Profile),
		staged,
	}

	tail := &outputTail{}
	s.logger.Info("slicing",
		logging.String(logging.FieldJobID, req.JobID),
		logging.String("model", req.ModelPath))
	err = s.exec.Run(ctx, s.python, args, func(line string) {
		tail.add(line)
		s.logger.Debug("skeinforge output",
			logging.String(logging.FieldJobID, req.JobID),
			logging.String("line", line))
	})
	if err != nil {
		return services.Wrap(services.ErrSliceFailed, "skeinforge", "slice", tail.String(), err)
	}

	exported := exportPath(staged)
	if _, statErr := os.Stat(exported); statErr != nil {
		return services.Wrap(services.ErrSliceFailed, "skeinforge", "slice", "no toolpath produced", statErr)
	}
	if err := wrapToolpath(exported, req.OutputPath, req.StartSequence, req.EndSequence); err != nil {
		return services.Wrap(services.ErrSliceFailed, "skeinforge", "assemble toolpath", "", err)
	}
	return nil
}

// exportPath maps model.stl to model_export.gcode, matching Skeinforge's
// output naming.
func exportPath(modelPath string) string {
	base := strings.TrimSuffix(modelPath, filepath.Ext(modelPath))
	return base + "_export.gcode"
}

// wrapToolpath writes start sequence + sliced body + end sequence to dest.
func wrapToolpath(src, dest string, start, end []string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open sliced output: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create toolpath: %w", err)
	}
	defer out.Close()

	writer := bufio.NewWriter(out)
	for _, line := range start {
		if _, err := fmt.Fprintln(writer, line); err != nil {
			return fmt.Errorf("write start sequence: %w", err)
		}
	}
	if _, err := io.Copy(writer, in); err != nil {
		return fmt.Errorf("copy sliced body: %w", err)
	}
	for _, line := range end {
		if _, err := fmt.Fprintln(writer, line); err != nil {
			return fmt.Errorf("write end sequence: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush toolpath: %w", err)
	}
	return out.Sync()
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
