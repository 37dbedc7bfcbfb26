// Package load wires graph.Kind values to concrete Unit Kind Adapter
// constructors. It lives outside internal/unit (which the per-kind
// subpackages import) so this factory can import all ten kind
// subpackages without an import cycle.
package load

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/reactor"
	"github.com/corevisor/corevisor/internal/unit"
	"github.com/corevisor/corevisor/internal/unit/kind/device"
	"github.com/corevisor/corevisor/internal/unit/kind/mount"
	"github.com/corevisor/corevisor/internal/unit/kind/path"
	"github.com/corevisor/corevisor/internal/unit/kind/scope"
	"github.com/corevisor/corevisor/internal/unit/kind/service"
	"github.com/corevisor/corevisor/internal/unit/kind/slice"
	"github.com/corevisor/corevisor/internal/unit/kind/socket"
	"github.com/corevisor/corevisor/internal/unit/kind/swap"
	"github.com/corevisor/corevisor/internal/unit/kind/target"
	"github.com/corevisor/corevisor/internal/unit/kind/timer"
)

// NewAdapter constructs the kind-appropriate Adapter for u, wires it as
// u.Adapter, and returns it as a unit.Kind so the caller can call Parse.
func NewAdapter(u *graph.Unit, notifier unit.Notifier, react *reactor.Reactor, log zerolog.Logger) (unit.Kind, error) {
	var k unit.Kind

	switch u.Kind {
	case graph.KindService:
		k = service.New(u, notifier, react, log, nil)
	case graph.KindSocket:
		k = socket.New(u, notifier, react, log)
	case graph.KindTarget:
		k = target.New(u, notifier, react, log)
	case graph.KindMount:
		k = mount.New(u, notifier, react, log)
	case graph.KindPath:
		k = path.New(u, notifier, react, log, nil)
	case graph.KindTimer:
		k = timer.New(u, notifier, react, log)
	case graph.KindSwap:
		k = swap.New(u, notifier, react, log)
	case graph.KindDevice:
		k = device.New(u, notifier, react, log)
	case graph.KindSlice:
		k = slice.New(u, notifier, react, log)
	case graph.KindScope:
		k = scope.New(u, notifier, react, log)
	default:
		return nil, fmt.Errorf("load: unsupported unit kind %q", u.Kind)
	}

	u.Adapter = k
	return k, nil
}
