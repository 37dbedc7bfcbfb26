// Package socket implements the socket Unit Kind Adapter: binds/listens on
// ListenStream=/ListenDatagram= addresses ahead of the service it activates,
// grounded on original_source/coms/socket/src/socket_config.rs's listening-
// item model (Stream/Datagram/Netlink), simplified to the two transport
// kinds a net.Listener/net.PacketConn can express. State machine per
// spec.md §4.5: Dead, Listening, Running, StopPre, StopPreSigterm,
// StopPreSigkill, StopPost, FinalSigterm, FinalSigkill, Failed, Cleaning.
package socket

import (
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
	"github.com/corevisor/corevisor/internal/reactor"
	"github.com/corevisor/corevisor/internal/unit"
)

type State int

const (
	Dead State = iota
	Listening
	Running
	StopPre
	StopPreSigterm
	StopPreSigkill
	StopPost
	FinalSigterm
	FinalSigkill
	Failed
	Cleaning
)

type transport int

const (
	transportStream transport = iota
	transportDatagram
)

type listenItem struct {
	transport transport
	network   string // "tcp", "unix"
	address   string
}

type Config struct {
	Listen  []listenItem
	Service string // Service= socket-activates this unit; defaults to the same-named .service
}

func Parse(raw map[string]string) (*Config, error) {
	cfg := &Config{Service: raw["Service"]}
	if v, ok := raw["ListenStream"]; ok && v != "" {
		cfg.Listen = append(cfg.Listen, listenItem{transport: transportStream, network: networkOf(v), address: v})
	}
	if v, ok := raw["ListenDatagram"]; ok && v != "" {
		cfg.Listen = append(cfg.Listen, listenItem{transport: transportDatagram, network: networkOf(v), address: v})
	}
	if len(cfg.Listen) == 0 {
		return nil, fmt.Errorf("socket: at least one ListenStream=/ListenDatagram= is required")
	}
	return cfg, nil
}

func networkOf(address string) string {
	if len(address) > 0 && address[0] == '/' {
		return "unix"
	}
	return "tcp"
}

type Adapter struct {
	unit.Base

	cfg       *Config
	state     State
	listeners []net.Listener
	conns     []net.PacketConn
	onActivate func(targetUnit string)
}

func New(u *graph.Unit, notifier unit.Notifier, react *reactor.Reactor, log zerolog.Logger) *Adapter {
	return &Adapter{Base: unit.NewBase(u, notifier, react, log)}
}

func (a *Adapter) Parse(raw map[string]string) error {
	cfg, err := Parse(raw)
	if err != nil {
		return err
	}
	if cfg.Service == "" {
		cfg.Service = strings.TrimSuffix(a.Unit.Name, ".socket") + ".service"
	}
	a.cfg = cfg
	return nil
}

func (a *Adapter) CanStart() bool  { return a.cfg != nil }
func (a *Adapter) CanStop() bool   { return true }
func (a *Adapter) CanReload() bool { return false }
func (a *Adapter) Perpetual() bool { return false }

// DepCheck: a socket may bind itself to a service via Service=, but cannot
// depend on a device unit directly (devices aren't socket-activatable).
func (a *Adapter) DepCheck(rel graph.Relation, dest *graph.Unit) error {
	if dest.Kind == graph.KindDevice {
		return unit.ErrInval
	}
	return nil
}

// OnActivate registers the callback invoked with the activated service's
// unit name whenever a connection arrives on a listening socket.
func (a *Adapter) OnActivate(fn func(targetUnit string)) { a.onActivate = fn }

func (a *Adapter) EntryColdplug(persisted graph.ActiveState) error {
	if persisted == graph.Active {
		return a.doStart(false)
	}
	a.SetActive(graph.InActive)
	return nil
}

func (a *Adapter) Trigger(kind job.Kind, force bool) error {
	switch kind {
	case job.KindStart, job.KindRestart, job.KindTryRestart:
		return a.doStart(force)
	case job.KindStop:
		return a.doStop()
	default:
		return unit.ErrOpNotSupp
	}
}

func (a *Adapter) doStart(force bool) error {
	if a.state == Listening && !force {
		return unit.ErrAlready
	}

	for _, item := range a.cfg.Listen {
		switch item.transport {
		case transportStream:
			l, err := net.Listen(item.network, item.address)
			if err != nil {
				a.state = Failed
				a.SetActive(graph.Failed)
				return unit.ErrFailed
			}
			a.listeners = append(a.listeners, l)
			if a.React != nil {
				if fd, ok := listenerFD(l); ok {
					a.React.AddIo(fd, reactor.PriorityNormal, a.onConnectReady)
				}
			}
		case transportDatagram:
			network := "udp"
			if item.network == "unix" {
				network = "unixgram"
			}
			c, err := net.ListenPacket(network, item.address)
			if err != nil {
				a.state = Failed
				a.SetActive(graph.Failed)
				return unit.ErrFailed
			}
			a.conns = append(a.conns, c)
		}
	}

	a.state = Listening
	a.SetActive(graph.Active)
	return nil
}

func (a *Adapter) doStop() error {
	if a.state == Dead {
		return unit.ErrAlready
	}
	a.state = StopPost
	for _, l := range a.listeners {
		l.Close()
	}
	for _, c := range a.conns {
		c.Close()
	}
	a.listeners = nil
	a.conns = nil
	a.state = Dead
	a.SetActive(graph.InActive)
	return nil
}

func (a *Adapter) onConnectReady(reactor.Event) error {
	a.state = Running
	if a.onActivate != nil && a.cfg.Service != "" {
		a.onActivate(a.cfg.Service)
	}
	return nil
}
