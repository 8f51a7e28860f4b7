package printer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MachineProfile carries the per-machine data the driver needs: the G-code
// sequences run before, after, and on abort of a build.
type MachineProfile struct {
	Name          string   `json:"name"`
	StartSequence []string `json:"print_start_sequence"`
	EndSequence   []string `json:"print_end_sequence"`
	AbortSequence []string `json:"abort_sequence"`
	BaudRate      int      `json:"baud_rate"`
}

// defaultAbortSequence shuts heaters and motors down when a profile does
// not declare its own abort sequence.
var defaultAbortSequence = []string{"M104 S0", "M140 S0", "M18"}

// LoadMachineProfile reads PROFILE_DIR/MACHINE.json.
func LoadMachineProfile(profileDir, machine string) (MachineProfile, error) {
	path := filepath.Join(profileDir, machine+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return MachineProfile{}, fmt.Errorf("read machine profile %q: %w", path, err)
	}
	var p MachineProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return MachineProfile{}, fmt.Errorf("parse machine profile %q: %w", path, err)
	}
	if p.Name == "" {
		p.Name = machine
	}
	if len(p.AbortSequence) == 0 {
		p.AbortSequence = defaultAbortSequence
	}
	return p, nil
}
