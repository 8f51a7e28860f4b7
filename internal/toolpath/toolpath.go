// Package toolpath wraps the external slicing backends behind one contract:
// model file in, machine toolpath file out. Each backend translates a slice
// request into its own command line, streams diagnostic output while the
// tool runs, and surfaces failures with the tool's trailing output attached.
package toolpath

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync"

	"conveyor/internal/config"
	"conveyor/internal/services"
)

// Request describes one slicing invocation.
type Request struct {
	JobID     string
	ModelPath string
	// OutputPath receives the generated toolpath.
	OutputPath string
	// StartSequence and EndSequence are machine G-code lines wrapped around
	// the sliced body.
	StartSequence []string
	EndSequence   []string
	Params        config.Slicing
}

// Slicer converts a model into machine toolpath instructions.
type Slicer interface {
	Name() string
	// Slice blocks until the backend finishes. Cancelling the context
	// terminates the external process; the partial output file is not
	// usable afterwards.
	Slice(ctx context.Context, req Request) error
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// VerifyOutput checks that a slicing backend produced a usable toolpath
// file and returns its line count. Backends have been seen to exit zero
// with an empty file when the model is degenerate.
func VerifyOutput(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, services.Wrap(services.ErrSliceFailed, "toolpath", "verify", "toolpath output missing", err)
	}
	defer file.Close()

	lines := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			lines++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, services.Wrap(services.ErrSliceFailed, "toolpath", "verify", "toolpath output unreadable", err)
	}
	if lines == 0 {
		return 0, services.Wrap(services.ErrSliceFailed, "toolpath", "verify", "toolpath output is empty", nil)
	}
	return lines, nil
}

// diagnosticTailLimit bounds how much trailing tool output is kept for
// failure messages.
const diagnosticTailLimit = 20

// outputTail retains the trailing lines of a process's combined output.
type outputTail struct {
	mu    sync.Mutex
	lines []string
}

func (t *outputTail) add(line string) {
	line = strings.TrimRight(line, "\r\n")
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > diagnosticTailLimit {
		t.lines = t.lines[len(t.lines)-diagnosticTailLimit:]
	}
}

func (t *outputTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
