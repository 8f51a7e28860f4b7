// Package job defines the job record and its state machine. The state graph
// is Created → Slicing → Queued → Printing → Completed, with Failed and
// Cancelled reachable as terminal states from any non-terminal state. The
// queue package owns persistence and enforces transition legality through
// CanTransition; nothing else mutates job state.
package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State identifies a lifecycle stage.
type State string

const (
	StateCreated   State = "created"
	StateSlicing   State = "slicing"
	StateQueued    State = "queued"
	StatePrinting  State = "printing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateCreated, StateSlicing, StateQueued, StatePrinting,
		StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Terminal reports whether a job in this state will never transition again.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Display returns the human-facing label used by the client CLI.
func (s State) Display() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateSlicing:
		return "Slicing"
	case StateQueued:
		return "Queued"
	case StatePrinting:
		return "Printing"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// forward holds the single legal forward edge out of each non-terminal state.
var forward = map[State]State{
	StateCreated:  StateSlicing,
	StateSlicing:  StateQueued,
	StateQueued:   StatePrinting,
	StatePrinting: StateCompleted,
}

// CanTransition reports whether moving from one state to another is legal.
// Failed and Cancelled are reachable from any non-terminal state; terminal
// states have no outgoing edges.
func CanTransition(from, to State) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from.Terminal() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	return forward[from] == to
}

// Transition is one recorded state change.
type Transition struct {
	From    State     `json:"from"`
	To      State     `json:"to"`
	At      time.Time `json:"at"`
	Message string    `json:"message,omitempty"`
}

// Progress tracks how far a printing job has advanced through its toolpath.
type Progress struct {
	CurrentLine int `json:"current_line"`
	TotalLines  int `json:"total_lines"`
}

// Fraction converts line counts to a [0,1] completion fraction. A completed
// job reports 1.0 even when the driver never published line counts.
func (p Progress) Fraction(state State) float64 {
	if state == StateCompleted {
		return 1.0
	}
	if p.TotalLines <= 0 {
		return 0
	}
	fraction := float64(p.CurrentLine) / float64(p.TotalLines)
	if fraction > 1 {
		return 1
	}
	if fraction < 0 {
		return 0
	}
	return fraction
}

// Job is the authoritative record of one print request.
type Job struct {
	ID            string       `json:"id"`
	ModelPath     string       `json:"model_path"`
	ToolpathPath  string       `json:"toolpath_path,omitempty"`
	SlicerProfile string       `json:"slicer_profile"`
	DriverProfile string       `json:"driver_profile"`
	DeviceID      string       `json:"device_id"`
	State         State        `json:"state"`
	Progress      Progress     `json:"progress"`
	ErrorDetail   string       `json:"error_detail,omitempty"`
	History       []Transition `json:"history,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// New creates a job in the Created state with a fresh unique ID.
func New(modelPath, slicerProfile, driverProfile, deviceID string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:            uuid.NewString(),
		ModelPath:     modelPath,
		SlicerProfile: slicerProfile,
		DriverProfile: driverProfile,
		DeviceID:      deviceID,
		State:         StateCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Apply records a transition on the in-memory job. It does not check
// legality; callers go through the queue which does.
func (j *Job) Apply(to State, message string, at time.Time) {
	j.History = append(j.History, Transition{From: j.State, To: to, At: at, Message: message})
	j.State = to
	j.UpdatedAt = at
}

// ValidateHistory checks that the recorded history is a legal path through
// the state graph starting at Created.
func (j *Job) ValidateHistory() error {
	state := StateCreated
	for i, tr := range j.History {
		if tr.From != state {
			return fmt.Errorf("history[%d]: transition from %q but job was in %q", i, tr.From, state)
		}
		if !CanTransition(tr.From, tr.To) {
			return fmt.Errorf("history[%d]: illegal transition %q -> %q", i, tr.From, tr.To)
		}
		state = tr.To
	}
	if state != j.State {
		return fmt.Errorf("history ends in %q but job state is %q", state, j.State)
	}
	return nil
}
