package control

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"

	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/job"
	"github.com/corevisor/corevisor/internal/manager"
)

// Server accepts connections on the control socket and dispatches verb
// records to the Manager. One goroutine per connection; each connection
// handles exactly one request/response (matching the teacher's
// short-lived-request style rather than a long-lived session protocol,
// since spec.md names no session/keepalive semantics for sctl).
type Server struct {
	path string
	mgr  *manager.Manager
	log  zerolog.Logger

	listener *net.UnixListener
}

// New creates a Server bound to path (removing any stale socket file
// left behind by a previous, now-dead manager process first).
func New(path string, mgr *manager.Manager, log zerolog.Logger) (*Server, error) {
	_ = os.Remove(path)

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("control: resolve socket addr: %w", err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("control: listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o660); err != nil {
		ln.Close()
		return nil, fmt.Errorf("control: chmod socket: %w", err)
	}

	return &Server{
		path:     path,
		mgr:      mgr,
		log:      log.With().Str("subsystem", "control").Logger(),
		listener: ln,
	}, nil
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("control: accept: %w", err)
			}
		}
		go s.handle(conn)
	}
}

func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handle(conn *net.UnixConn) {
	defer conn.Close()

	cred, err := peerCredentials(conn)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read peer credentials")
	}

	r := bufio.NewReader(conn)
	req, err := ReadRequest(r)
	if err != nil {
		s.log.Debug().Err(err).Msg("failed to read request")
		return
	}

	resp := s.dispatch(req, cred)
	if err := WriteResponse(conn, resp); err != nil {
		s.log.Warn().Err(err).Str("verb", string(req.Verb)).Msg("failed to write response")
	}
}

func (s *Server) dispatch(req Request, cred PeerCredentials) Response {
	if !readOnlyVerbs[req.Verb] && cred.UID != 0 {
		return Err(13, fmt.Sprintf("verb %q requires a privileged caller", req.Verb))
	}

	unitName := ""
	if len(req.Args) > 0 {
		unitName = req.Args[0]
	}

	switch req.Verb {
	case VerbStart:
		return s.runJob(unitName, s.mgr.StartUnit)
	case VerbStop:
		return s.runJob(unitName, s.mgr.StopUnit)
	case VerbRestart:
		return s.runJob(unitName, s.mgr.RestartUnit)
	case VerbReload:
		return s.runJob(unitName, s.mgr.ReloadUnit)
	case VerbIsolate:
		return s.runJob(unitName, s.mgr.IsolateUnit)
	case VerbResetFailed:
		if err := s.mgr.ResetFailedUnit(unitName); err != nil {
			return Err(1, err.Error())
		}
		return OK("reset", nil)
	case VerbStatus:
		return s.status(unitName)
	case VerbListUnits:
		return OK("", s.listUnits())
	case VerbEnable, VerbDisable, VerbMask, VerbUnmask:
		// Presets/install-surface mutation is modeled as a decision table
		// only (SPEC_FULL.md's preset expansion note); the actual
		// enable/disable symlink mechanics are out of scope.
		return Err(95, fmt.Sprintf("verb %q is not supported by this runtime", req.Verb))
	case VerbDaemonReload:
		s.mgr.RequestState(manager.StateReload)
		return OK("reload requested", nil)
	case VerbDaemonReexec:
		s.mgr.RequestState(manager.StateReExecute)
		return OK("reexec requested", nil)
	case VerbPoweroff:
		s.mgr.RequestState(manager.StatePowerOff)
		return OK("poweroff requested", nil)
	case VerbReboot:
		s.mgr.RequestState(manager.StateReboot)
		return OK("reboot requested", nil)
	case VerbHalt:
		s.mgr.RequestState(manager.StateHalt)
		return OK("halt requested", nil)
	case VerbSuspend:
		s.mgr.RequestState(manager.StateSuspend)
		return OK("suspend requested", nil)
	case VerbKexec:
		s.mgr.RequestState(manager.StateKExec)
		return OK("kexec requested", nil)
	case VerbSwitchRoot, VerbStartTransient:
		return Err(95, fmt.Sprintf("verb %q is not supported by this runtime", req.Verb))
	default:
		return Err(22, fmt.Sprintf("unknown verb %q", req.Verb))
	}
}

func (s *Server) runJob(unitName string, op func(string) (*job.Job, error)) Response {
	if unitName == "" {
		return Err(22, "missing unit name argument")
	}
	j, err := op(unitName)
	if err != nil {
		return Err(1, err.Error())
	}
	return OK("queued", map[string]string{"job_id": j.ID})
}

func (s *Server) status(unitName string) Response {
	if unitName == "" {
		return Err(22, "missing unit name argument")
	}
	u, ok := s.mgr.Graph.Get(unitName)
	if !ok {
		return Err(2, fmt.Sprintf("unit %q not found", unitName))
	}
	return OK("", map[string]string{
		"name":         u.Name,
		"load_state":   u.LoadState().String(),
		"active_state": u.ActiveState().String(),
	})
}

func (s *Server) listUnits() []map[string]string {
	units := s.mgr.Graph.GetAll()
	out := make([]map[string]string, 0, len(units))
	for _, u := range units {
		out = append(out, map[string]string{
			"name":         u.Name,
			"load_state":   u.LoadState().String(),
			"active_state": u.ActiveState().String(),
		})
	}
	return out
}
