package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"conveyor/internal/address"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given address string.
func Dial(addr string) (*Client, error) {
	parsed, err := address.Parse(addr)
	if err != nil {
		return nil, err
	}
	return DialAddress(parsed)
}

// DialAddress connects to the IPC server at a parsed address.
func DialAddress(addr address.Address) (*Client, error) {
	conn, err := addr.Dial()
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Print submits a model for slicing and printing.
func (c *Client) Print(req PrintRequest) (*PrintResponse, error) {
	var resp PrintResponse
	if err := c.client.Call("Conveyor.Print", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel requests cancellation of a job.
func (c *Client) Cancel(jobID string) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.client.Call("Conveyor.Cancel", CancelRequest{JobID: jobID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Job retrieves the status of one job.
func (c *Client) Job(jobID string) (*JobResponse, error) {
	var resp JobResponse
	if err := c.client.Call("Conveyor.Job", JobRequest{JobID: jobID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Jobs retrieves all jobs, optionally filtered by state.
func (c *Client) Jobs(states []string) (*JobListResponse, error) {
	var resp JobListResponse
	if err := c.client.Call("Conveyor.Jobs", JobListRequest{States: states}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobEvents retrieves the event history of one job.
func (c *Client) JobEvents(jobID string) (*JobEventsResponse, error) {
	var resp JobEventsResponse
	if err := c.client.Call("Conveyor.JobEvents", JobEventsRequest{JobID: jobID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EventTail retrieves events after a sequence cursor, optionally waiting
// for new ones.
func (c *Client) EventTail(req EventTailRequest) (*EventTailResponse, error) {
	var resp EventTailResponse
	if err := c.client.Call("Conveyor.EventTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail retrieves daemon log lines from the given offset.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Conveyor.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Profiles retrieves registered slicer and driver profiles.
func (c *Client) Profiles() (*ProfileListResponse, error) {
	var resp ProfileListResponse
	if err := c.client.Call("Conveyor.Profiles", ProfileListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Devices retrieves configured device statuses.
func (c *Client) Devices() (*DeviceListResponse, error) {
	var resp DeviceListResponse
	if err := c.client.Call("Conveyor.Devices", DeviceListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Preflight runs environment checks on the daemon host.
func (c *Client) Preflight() (*PreflightResponse, error) {
	var resp PreflightResponse
	if err := c.client.Call("Conveyor.Preflight", PreflightRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start orchestrating jobs.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Conveyor.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop orchestrating jobs.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Conveyor.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Conveyor.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
