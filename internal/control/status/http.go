// Package status implements SPEC_FULL.md §4.6's read-only introspection
// surface: a loopback-only HTTP mux (go-chi/chi, go-chi/cors) serving
// /healthz, /units, /units/{name}, /jobs as JSON, and an optional
// websocket feed broadcasting unit ActiveState transitions. Every route
// here is read-only; all mutation still flows through the control
// socket's verb set (internal/control), per SPEC_FULL.md's expansion
// non-goal.
package status

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/manager"
)

// Mux builds the read-only status router bound to mgr.
type Mux struct {
	mgr *manager.Manager
	log zerolog.Logger
}

func NewMux(mgr *manager.Manager, log zerolog.Logger) *Mux {
	return &Mux{mgr: mgr, log: log.With().Str("subsystem", "status").Logger()}
}

// Handler returns the assembled chi.Router, ready to pass to http.Serve.
func (m *Mux) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", m.handleHealthz)
	r.Get("/units", m.handleListUnits)
	r.Get("/units/{name}", m.handleUnit)
	r.Get("/jobs", m.handleListJobs)
	r.Get("/ws", m.handleWebsocket)
	return r
}

func (m *Mux) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"restored": m.mgr.Restored(),
	})
}

func (m *Mux) handleListUnits(w http.ResponseWriter, r *http.Request) {
	units := m.mgr.Graph.GetAll()
	out := make([]unitView, 0, len(units))
	for _, u := range units {
		out = append(out, viewOf(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (m *Mux) handleUnit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	u, ok := m.mgr.Graph.Get(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unit not found"})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(u))
}

func (m *Mux) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := m.mgr.Engine.Jobs().All()
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobView{
			ID:     j.ID,
			Unit:   j.Unit,
			Kind:   j.Kind.String(),
			Stage:  j.Stage.String(),
			Result: j.Result.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type unitView struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	LoadState   string `json:"load_state"`
	ActiveState string `json:"active_state"`
}

type jobView struct {
	ID     string `json:"id"`
	Unit   string `json:"unit"`
	Kind   string `json:"kind"`
	Stage  string `json:"stage"`
	Result string `json:"result"`
}

func viewOf(u *graph.Unit) unitView {
	return unitView{
		Name:        u.Name,
		Kind:        string(u.Kind),
		LoadState:   u.LoadState().String(),
		ActiveState: u.ActiveState().String(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
