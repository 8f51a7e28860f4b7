package ipc

import (
	"conveyor/internal/device"
	"conveyor/internal/preflight"
	"conveyor/internal/profile"
	"conveyor/internal/queue"
	"conveyor/internal/spool"
)

// JobStatus mirrors the orchestrator's job view for IPC callers.
type JobStatus = spool.JobStatus

// Event mirrors a persisted state-change event.
type Event = queue.Event

// SlicingParams carries per-job slicing overrides across the wire.
type SlicingParams struct {
	Raft                bool    `json:"raft"`
	Support             bool    `json:"support"`
	InfillDensity       float64 `json:"infill_density"`
	LayerHeight         float64 `json:"layer_height"`
	Shells              int     `json:"shells"`
	ExtruderTemperature float64 `json:"extruder_temperature"`
	PlatformTemperature float64 `json:"platform_temperature"`
	PrintSpeed          float64 `json:"print_speed"`
	TravelSpeed         float64 `json:"travel_speed"`
}

// PrintRequest submits a model for slicing and printing.
type PrintRequest struct {
	ModelPath     string        `json:"model_path"`
	SlicerProfile string        `json:"slicer_profile"`
	DriverProfile string        `json:"driver_profile"`
	DeviceID      string        `json:"device_id"`
	Params        SlicingParams `json:"params"`
}

// PrintResponse carries the identifier of the created job.
type PrintResponse struct {
	JobID string `json:"job_id"`
}

// CancelRequest asks for cancellation of one job.
type CancelRequest struct {
	JobID string `json:"job_id"`
}

// CancelResponse reports that the cancellation request was accepted.
type CancelResponse struct {
	Accepted bool `json:"accepted"`
}

// JobRequest fetches a single job by id.
type JobRequest struct {
	JobID string `json:"job_id"`
}

// JobResponse contains one job status.
type JobResponse struct {
	Job JobStatus `json:"job"`
}

// JobListRequest fetches all jobs, optionally filtered by state.
type JobListRequest struct {
	States []string `json:"states,omitempty"`
}

// JobListResponse contains job statuses, oldest first.
type JobListResponse struct {
	Jobs []JobStatus `json:"jobs"`
}

// JobEventsRequest fetches the event history of one job.
type JobEventsRequest struct {
	JobID string `json:"job_id"`
}

// JobEventsResponse contains a job's events in sequence order.
type JobEventsResponse struct {
	Events []Event `json:"events"`
}

// EventTailRequest fetches events after a sequence cursor. When WaitMillis
// is positive and no events are pending, the call blocks until an event
// arrives or the wait elapses.
type EventTailRequest struct {
	After      int64 `json:"after"`
	Limit      int   `json:"limit"`
	WaitMillis int   `json:"wait_millis"`
}

// EventTailResponse returns events and the cursor for the next call.
type EventTailResponse struct {
	Events []Event `json:"events"`
	Next   int64   `json:"next"`
}

// LogTailRequest fetches daemon log lines. A negative Offset reads the
// last Limit lines; Follow with WaitMillis blocks briefly for new lines.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the offset for the next call.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// ProfileListRequest fetches registered slicer and driver profiles.
type ProfileListRequest struct{}

// ProfileListResponse contains profiles sorted by kind then name.
type ProfileListResponse struct {
	Profiles []profile.Info `json:"profiles"`
}

// DeviceListRequest fetches configured devices.
type DeviceListRequest struct{}

// DeviceListResponse contains device statuses sorted by id.
type DeviceListResponse struct {
	Devices []device.Status `json:"devices"`
}

// PreflightRequest runs environment checks on the daemon host.
type PreflightRequest struct{}

// PreflightResponse reports individual check results.
type PreflightResponse struct {
	Checks []preflight.Result `json:"checks"`
	Passed bool               `json:"passed"`
}

// StartRequest starts the orchestrator.
type StartRequest struct{}

// StartResponse indicates whether the orchestrator was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the orchestrator.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon runtime information.
type StatusResponse struct {
	Running     bool            `json:"running"`
	PID         int             `json:"pid"`
	Address     string          `json:"address"`
	QueueDBPath string          `json:"queue_db_path"`
	LockPath    string          `json:"lock_path"`
	TotalJobs   int             `json:"total_jobs"`
	JobStates   map[string]int  `json:"job_states"`
	Devices     []device.Status `json:"devices"`
}
