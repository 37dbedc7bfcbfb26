package job

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/corevisor/corevisor/internal/graph"
)

// fakeDriver immediately resolves every action by flipping the unit's
// ActiveState and calling back into the engine's TryFinish, mimicking a
// unit kind adapter whose underlying process starts/stops instantly.
type fakeDriver struct {
	engine *Engine
	fail   map[string]bool
	// failErr, if set for a unit, is returned as-is from that unit's next
	// action instead of resolving it, for exercising run()'s
	// driver-error-terminates-the-job path.
	failErr map[string]error
}

func (d *fakeDriver) Start(u *graph.Unit) error {
	if err := d.failErr[u.Name]; err != nil {
		return err
	}
	if d.fail[u.Name] {
		u.SetActiveState(graph.Failed)
		d.engine.TryFinish(u.Name, graph.Failed)
		return nil
	}
	u.SetActiveState(graph.Active)
	d.engine.TryFinish(u.Name, graph.Active)
	return nil
}

func (d *fakeDriver) Stop(u *graph.Unit) error {
	if err := d.failErr[u.Name]; err != nil {
		return err
	}
	u.SetActiveState(graph.InActive)
	d.engine.TryFinish(u.Name, graph.InActive)
	return nil
}

func (d *fakeDriver) Reload(u *graph.Unit) error {
	if err := d.failErr[u.Name]; err != nil {
		return err
	}
	u.SetActiveState(graph.Active)
	d.engine.TryFinish(u.Name, graph.Active)
	return nil
}

func newTestEngine(t *testing.T) (*graph.Graph, *Engine, *fakeDriver) {
	t.Helper()
	g := graph.New(nil)
	driver := &fakeDriver{fail: make(map[string]bool), failErr: make(map[string]error)}
	e := New(g, driver, nil, zerolog.Nop())
	driver.engine = e
	return g, e, driver
}

// TestEngine_StartPullsInRequiredDependency covers scenario E1's pull-in
// half: starting a unit that Requires another pulls the dependency in and
// both end up Active.
func TestEngine_StartPullsInRequiredDependency(t *testing.T) {
	g, e, _ := newTestEngine(t)
	a, _ := g.Load("a.service")
	b, _ := g.Load("b.service")
	require.NoError(t, a.SetLoadState(graph.Loaded))
	require.NoError(t, b.SetLoadState(graph.Loaded))
	require.NoError(t, g.DepInsert(a, b, graph.Requires, false, graph.MaskUserFile))

	j, err := e.Exec("a.service", KindStart, RunReplace)
	require.NoError(t, err)

	result := <-j.Wait()
	require.Equal(t, ResultDone, result)
	require.Equal(t, graph.Active, b.ActiveState())
}

// TestEngine_IsolateStopsUnitsOutsideClosure covers scenario E1 in full:
// `a.target` Wants `b.service`; `c.service` is active and unrelated.
// exec({a.target,Start}, Isolate) must produce Start jobs for a and b and
// a Stop job for c.
func TestEngine_IsolateStopsUnitsOutsideClosure(t *testing.T) {
	g, e, _ := newTestEngine(t)
	a, _ := g.Load("a.target")
	b, _ := g.Load("b.service")
	c, _ := g.Load("c.service")
	require.NoError(t, a.SetLoadState(graph.Loaded))
	require.NoError(t, b.SetLoadState(graph.Loaded))
	require.NoError(t, c.SetLoadState(graph.Loaded))
	require.NoError(t, g.DepInsert(a, b, graph.Wants, false, graph.MaskUserFile))
	c.SetActiveState(graph.Active)

	j, err := e.Exec("a.target", KindStart, RunIsolate)
	require.NoError(t, err)

	result := <-j.Wait()
	require.Equal(t, ResultDone, result)
	require.Equal(t, graph.Active, a.ActiveState())
	require.Equal(t, graph.Active, b.ActiveState())
	require.Equal(t, graph.InActive, c.ActiveState())
}

// TestEngine_IsolateSparesIgnoreOnIsolateUnits covers the IgnoreOnIsolate
// escape hatch: a unit outside the closure but marked IgnoreOnIsolate must
// never get a Stop job.
func TestEngine_IsolateSparesIgnoreOnIsolateUnits(t *testing.T) {
	g, e, _ := newTestEngine(t)
	a, _ := g.Load("a.target")
	c, _ := g.Load("c.service")
	require.NoError(t, a.SetLoadState(graph.Loaded))
	require.NoError(t, c.SetLoadState(graph.Loaded))
	c.IgnoreOnIsolate = true
	c.SetActiveState(graph.Active)

	j, err := e.Exec("a.target", KindStart, RunIsolate)
	require.NoError(t, err)

	result := <-j.Wait()
	require.Equal(t, ResultDone, result)
	require.Equal(t, graph.Active, c.ActiveState())
}

// TestEngine_StopPropagatesToDependent covers stopping a Requires target
// also stopping whatever requires it.
func TestEngine_StopPropagatesToDependent(t *testing.T) {
	g, e, _ := newTestEngine(t)
	a, _ := g.Load("a.service")
	b, _ := g.Load("b.service")
	a.SetLoadState(graph.Loaded)
	b.SetLoadState(graph.Loaded)
	require.NoError(t, g.DepInsert(a, b, graph.Requires, false, graph.MaskUserFile))
	a.SetActiveState(graph.Active)
	b.SetActiveState(graph.Active)

	j, err := e.Exec("b.service", KindStop, RunReplace)
	require.NoError(t, err)

	result := <-j.Wait()
	require.Equal(t, ResultDone, result)
	require.Equal(t, graph.InActive, a.ActiveState())
}

// TestEngine_WantsIgnoresDependencyFailure: a Wants edge pulls in the
// dependency but does not fail the requester when it fails to start.
func TestEngine_WantsIgnoresDependencyFailure(t *testing.T) {
	g, e, driver := newTestEngine(t)
	a, _ := g.Load("a.service")
	b, _ := g.Load("b.service")
	a.SetLoadState(graph.Loaded)
	b.SetLoadState(graph.Loaded)
	require.NoError(t, g.DepInsert(a, b, graph.Wants, false, graph.MaskUserFile))
	driver.fail["b.service"] = true

	j, err := e.Exec("a.service", KindStart, RunReplace)
	require.NoError(t, err)

	result := <-j.Wait()
	require.Equal(t, ResultDone, result)
	require.Equal(t, graph.Failed, b.ActiveState())
}

// TestEngine_VerifyBreaksNonAnchorCycle: a cycle entirely among pulled-in
// dependencies (not touching the anchor) is broken by dropping one of its
// edges, and the transaction still succeeds.
func TestEngine_VerifyBreaksNonAnchorCycle(t *testing.T) {
	g, e, _ := newTestEngine(t)
	a, _ := g.Load("a.service")
	b, _ := g.Load("b.service")
	c, _ := g.Load("c.service")
	a.SetLoadState(graph.Loaded)
	b.SetLoadState(graph.Loaded)
	c.SetLoadState(graph.Loaded)
	require.NoError(t, g.DepInsert(a, b, graph.Wants, false, graph.MaskUserFile))
	require.NoError(t, g.DepInsert(a, c, graph.Wants, false, graph.MaskUserFile))
	require.NoError(t, g.DepInsert(b, c, graph.After, false, graph.MaskUserFile))
	require.NoError(t, g.DepInsert(c, b, graph.After, false, graph.MaskUserFile))

	j, err := e.Exec("a.service", KindStart, RunReplace)
	require.NoError(t, err)

	result := <-j.Wait()
	require.Equal(t, ResultDone, result)
}

// TestEngine_VerifyFailsWhenCycleReachesAnchor covers scenario E2: a.After
// b, b.After c, c.After a closes a cycle through the requested unit
// itself, so Exec must fail with ErrCycle and never commit any job.
func TestEngine_VerifyFailsWhenCycleReachesAnchor(t *testing.T) {
	g, e, _ := newTestEngine(t)
	a, _ := g.Load("a.service")
	b, _ := g.Load("b.service")
	c, _ := g.Load("c.service")
	a.SetLoadState(graph.Loaded)
	b.SetLoadState(graph.Loaded)
	c.SetLoadState(graph.Loaded)
	require.NoError(t, g.DepInsert(a, b, graph.Wants, false, graph.MaskUserFile))
	require.NoError(t, g.DepInsert(b, c, graph.Wants, false, graph.MaskUserFile))
	require.NoError(t, g.DepInsert(a, b, graph.After, false, graph.MaskUserFile))
	require.NoError(t, g.DepInsert(b, c, graph.After, false, graph.MaskUserFile))
	require.NoError(t, g.DepInsert(c, a, graph.After, false, graph.MaskUserFile))

	j, err := e.Exec("a.service", KindStart, RunReplace)
	require.ErrorIs(t, err, ErrCycle)
	require.Nil(t, j)

	_, ok := e.Jobs().Trigger("a.service")
	require.False(t, ok)
}

// TestEngine_RestartStopsThenStarts covers the Restart run_kind split:
// the unit must actually go through Stop before Start runs again.
func TestEngine_RestartStopsThenStarts(t *testing.T) {
	g, e, _ := newTestEngine(t)
	a, _ := g.Load("a.service")
	a.SetLoadState(graph.Loaded)
	a.SetActiveState(graph.Active)

	j, err := e.Exec("a.service", KindRestart, RunReplace)
	require.NoError(t, err)

	result := <-j.Wait()
	require.Equal(t, ResultDone, result)
	require.Equal(t, graph.Active, a.ActiveState())
}

// TestEngine_RunTerminatesJobOnDriverError covers the fix making a
// non-EAgain driver failure actually finish the job instead of leaving it
// stuck in StageRunning forever.
func TestEngine_RunTerminatesJobOnDriverError(t *testing.T) {
	g, e, driver := newTestEngine(t)
	a, _ := g.Load("a.service")
	a.SetLoadState(graph.Loaded)
	driver.failErr["a.service"] = NewDriverError(ResultDependency, errors.New("missing dependency"))

	j, err := e.Exec("a.service", KindStart, RunReplace)
	require.NoError(t, err)

	result := <-j.Wait()
	require.Equal(t, ResultDependency, result)
}

// TestEngine_TryReloadIsNopWhenInactive covers job_merge_unit: TryReload
// against an inactive unit has nothing to reload and resolves as a Nop.
func TestEngine_TryReloadIsNopWhenInactive(t *testing.T) {
	g, e, _ := newTestEngine(t)
	a, _ := g.Load("a.service")
	a.SetLoadState(graph.Loaded)

	j, err := e.Exec("a.service", KindTryReload, RunReplace)
	require.NoError(t, err)

	result := <-j.Wait()
	require.Equal(t, ResultNoOp, result)
	require.Equal(t, graph.InActive, a.ActiveState())
}
