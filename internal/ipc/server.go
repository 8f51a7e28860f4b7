package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"conveyor/internal/address"
	"conveyor/internal/config"
	"conveyor/internal/daemon"
	"conveyor/internal/job"
	"conveyor/internal/logging"
	"conveyor/internal/logs"
	"conveyor/internal/preflight"
	"conveyor/internal/spool"
)

// Server exposes daemon control via JSON-RPC on a conveyor address.
type Server struct {
	addr      address.Address
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server on the given address.
func NewServer(ctx context.Context, addr address.Address, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if addr == nil {
		return nil, errors.New("ipc server requires an address")
	}
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	listener, err := addr.Listen()
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx}
	if err := rpcServer.RegisterName("Conveyor", srv); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		addr:      addr,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("address", s.addr.String()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Addr returns the bound listener address. Useful when a TCP address was
// configured with port zero.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops the server and removes a pipe socket file if one was used.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if pipe, ok := s.addr.(address.PipeAddress); ok {
		if err := os.RemoveAll(pipe.Path); err != nil {
			s.logger.Warn("failed to remove socket",
				logging.String("socket", pipe.Path),
				logging.Error(err))
		}
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func slicingFromParams(p SlicingParams) config.Slicing {
	return config.Slicing{
		Raft:                p.Raft,
		Support:             p.Support,
		InfillDensity:       p.InfillDensity,
		LayerHeight:         p.LayerHeight,
		Shells:              p.Shells,
		ExtruderTemperature: p.ExtruderTemperature,
		PlatformTemperature: p.PlatformTemperature,
		PrintSpeed:          p.PrintSpeed,
		TravelSpeed:         p.TravelSpeed,
	}
}

func (s *service) Print(req PrintRequest, resp *PrintResponse) error {
	jobID, err := s.daemon.Submit(s.ctx, spool.SubmitRequest{
		ModelPath:     req.ModelPath,
		SlicerProfile: req.SlicerProfile,
		DriverProfile: req.DriverProfile,
		DeviceID:      req.DeviceID,
		Params:        slicingFromParams(req.Params),
	})
	if err != nil {
		return err
	}
	resp.JobID = jobID
	s.logger.Info("print submitted via IPC",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldDevice, req.DeviceID))
	return nil
}

func (s *service) Cancel(req CancelRequest, resp *CancelResponse) error {
	if err := s.daemon.Cancel(s.ctx, req.JobID); err != nil {
		return err
	}
	resp.Accepted = true
	s.logger.Info("cancel requested via IPC", logging.String(logging.FieldJobID, req.JobID))
	return nil
}

func (s *service) Job(req JobRequest, resp *JobResponse) error {
	status, err := s.daemon.Job(s.ctx, req.JobID)
	if err != nil {
		return err
	}
	resp.Job = status
	return nil
}

func (s *service) Jobs(req JobListRequest, resp *JobListResponse) error {
	statuses, err := s.daemon.Jobs(s.ctx)
	if err != nil {
		return err
	}
	if len(req.States) == 0 {
		resp.Jobs = statuses
		return nil
	}
	wanted := make(map[job.State]struct{}, len(req.States))
	for _, state := range req.States {
		wanted[job.State(state)] = struct{}{}
	}
	resp.Jobs = make([]JobStatus, 0, len(statuses))
	for _, status := range statuses {
		if _, ok := wanted[status.Job.State]; ok {
			resp.Jobs = append(resp.Jobs, status)
		}
	}
	return nil
}

func (s *service) JobEvents(req JobEventsRequest, resp *JobEventsResponse) error {
	events, err := s.daemon.JobEvents(s.ctx, req.JobID)
	if err != nil {
		return err
	}
	resp.Events = events
	return nil
}

func (s *service) EventTail(req EventTailRequest, resp *EventTailResponse) error {
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	events, next, err := s.daemon.EventTail(s.ctx, req.After, req.Limit, wait)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Next = req.After
			return nil
		}
		return err
	}
	resp.Events = events
	resp.Next = next
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) Profiles(_ ProfileListRequest, resp *ProfileListResponse) error {
	resp.Profiles = s.daemon.Profiles()
	return nil
}

func (s *service) Devices(_ DeviceListRequest, resp *DeviceListResponse) error {
	resp.Devices = s.daemon.Devices()
	return nil
}

func (s *service) Preflight(_ PreflightRequest, resp *PreflightResponse) error {
	resp.Checks = s.daemon.Preflight()
	resp.Passed = preflight.Passed(resp.Checks)
	return nil
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.Address = status.Address
	resp.QueueDBPath = status.QueueDBPath
	resp.LockPath = status.LockPath
	resp.TotalJobs = status.Queue.Total
	resp.JobStates = make(map[string]int, len(status.Queue.ByState))
	for state, count := range status.Queue.ByState {
		resp.JobStates[string(state)] = count
	}
	resp.Devices = status.Devices
	return nil
}
