package status

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/corevisor/corevisor/internal/events"
)

// wsWriteTimeout bounds how long a single broadcast write may block; a
// stalled client past this is dropped rather than stalling every other
// subscriber (events.Bus.Emit already runs each handler on its own
// goroutine, this is the per-connection backstop on top of that).
const wsWriteTimeout = 5 * time.Second

// wsEvent is the JSON shape broadcast to subscribers, a flattened
// projection of events.Event.
type wsEvent struct {
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func (m *Mux) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		m.log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	ch := make(chan wsEvent, 32)

	sub := m.mgr.Bus.Subscribe(events.UnitStateChanged, func(ev *events.Event) {
		select {
		case ch <- wsEvent{Type: string(ev.Type), Source: ev.Source, Timestamp: ev.Timestamp, Data: ev.Data}:
		default:
			m.log.Debug().Msg("websocket subscriber channel full, dropping event")
		}
	})
	defer m.mgr.Bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-ch:
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				m.log.Debug().Err(err).Msg("websocket write failed, closing")
				return
			}
		}
	}
}
