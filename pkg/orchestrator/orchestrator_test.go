package orchestrator

import (
	"Dumbbell/api"
	"Dumbbell/pkg"
	"Dumbbell/pkg/telemetry"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock runs virtual time scale times faster than the wall clock.
type testClock struct {
	mu    sync.Mutex
	now   time.Time
	scale float64
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), scale: 200}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return time.After(time.Duration(float64(d) / c.scale))
}

type fakeRuntime struct {
	mu     sync.Mutex
	events []string
	next   int
	done   map[string]chan struct{}

	ccErr     error
	createErr error
	startErr  map[string]error // by host
	waitErr   map[string]error // by host
	hang      map[string]bool  // by host
	silent    map[string]bool  // by host, exits without a report
	onStart   func(host string)
}

const senderOutput = `[  5]   0.00-1.00   sec  30.1 MBytes   252 Mbits/sec    0   1.41 MBytes
[  5]   1.00-2.00   sec  29.9 MBytes   251 Mbits/sec    3    912 KBytes
[  5]   0.00-2.00   sec  60.0 MBytes   251 Mbits/sec    3             sender
`

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		done:     make(map[string]chan struct{}),
		startErr: make(map[string]error),
		waitErr:  make(map[string]error),
		hang:     make(map[string]bool),
		silent:   make(map[string]bool),
	}
}

func (f *fakeRuntime) record(e string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeRuntime) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeRuntime) SetCongestionControl(algorithm string) error {
	f.record("cc " + algorithm)
	return f.ccErr
}

func (f *fakeRuntime) CreateTopology(ctx context.Context, topo api.Topology) error {
	f.record("topology")
	return f.createErr
}

func (f *fakeRuntime) StartProcess(ctx context.Context, host string, cmd []string, out io.Writer) (api.ProcessHandle, error) {
	role := "send"
	if cmd[1] == "-s" {
		role = "recv"
	}
	f.record(role + " " + host)
	if err := f.startErr[host]; err != nil {
		return api.ProcessHandle{}, err
	}
	_, _ = fmt.Fprintf(out, "%s\n", strings.Join(cmd, " "))
	if role == "send" && !f.silent[host] {
		_, _ = io.WriteString(out, senderOutput)
	}
	if f.onStart != nil {
		f.onStart(host)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	h := api.ProcessHandle{ID: fmt.Sprintf("%s-%d", host, f.next), Host: host}
	f.done[h.ID] = make(chan struct{})
	return h, nil
}

func (f *fakeRuntime) Wait(ctx context.Context, h api.ProcessHandle) error {
	f.mu.Lock()
	done := f.done[h.ID]
	hang := f.hang[h.Host]
	err := f.waitErr[h.Host]
	f.mu.Unlock()

	if !hang {
		return err
	}
	select {
	case <-done:
		return errors.New("terminated")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeRuntime) Terminate(h api.ProcessHandle) error {
	f.record("term " + h.Host)
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.done[h.ID]; ok {
		close(ch)
		delete(f.done, h.ID)
	}
	return nil
}

func (f *fakeRuntime) Teardown(ctx context.Context) error {
	f.record("teardown")
	return nil
}

func dumbbellFlows(total, stagger float64) []api.FlowSpec {
	return api.ExperimentConfig{TotalDurationSec: total, StaggerDelaySec: stagger}.Flows()
}

func newTestOrchestrator(t *testing.T, rt Runtime) *Orchestrator {
	return New(rt, Options{LogDir: t.TempDir(), Clock: newTestClock()})
}

func states(res *api.ExperimentResult) []api.State {
	var out []api.State
	for _, tr := range res.Transitions {
		out = append(out, tr.State)
	}
	return out
}

func TestRunLifecycle(t *testing.T) {
	rt := newFakeRuntime()
	o := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), pkg.BuildDumbbell(api.DelayShort), dumbbellFlows(300, 250), "bbr")
	require.NoError(t, err)

	assert.Equal(t, []api.State{
		api.StateInit,
		api.StateTopologyUp,
		api.StateReceiversReady,
		api.StateFlowsRunning,
		api.StateDraining,
		api.StateTornDown,
	}, states(res))
	assert.Equal(t, []string{
		"cc bbr", "topology",
		"recv R1", "recv R2",
		"send S1", "send S2",
		"term R1", "term R2",
		"teardown",
	}, rt.Events())

	last := res.Transitions[len(res.Transitions)-1]
	assert.LessOrEqual(t, last.At, 600*time.Second)
	assert.LessOrEqual(t, res.DrainBudget, 300*time.Second)

	s1, ok := res.Flow("s1")
	require.True(t, ok)
	s2, ok := res.Flow("s2")
	require.True(t, ok)
	assert.Equal(t, api.FlowCompleted, s1.State)
	assert.Equal(t, api.FlowCompleted, s2.State)
	assert.InDelta(t, 0, s1.ActualOffsetSec, 1e-9)
	assert.InDelta(t, 250, s2.ActualOffsetSec, 1e-9)
	assert.Equal(t, "s2.txt", filepath.Base(s2.LogFile))
}

func TestRunDrainBudget(t *testing.T) {
	rt := newFakeRuntime()
	o := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), pkg.BuildDumbbell(api.DelayShort), dumbbellFlows(300, 250), "cubic")
	require.NoError(t, err)
	// 50s left when the last sender starts
	assert.Equal(t, 60*time.Second, res.DrainBudget)
}

func TestRunSenderFails(t *testing.T) {
	rt := newFakeRuntime()
	rt.waitErr["S1"] = errors.New("exit code 1")
	o := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), pkg.BuildDumbbell(api.DelayShort), dumbbellFlows(20, 5), "reno")
	require.NoError(t, err)

	s1, _ := res.Flow("s1")
	s2, _ := res.Flow("s2")
	assert.Equal(t, api.FlowFailed, s1.State)
	assert.Contains(t, s1.Error, ErrFlowFailed.Error())
	assert.Equal(t, api.FlowCompleted, s2.State)
	assert.True(t, res.Reached(api.StateTornDown))
	assert.Contains(t, rt.Events(), "teardown")
}

func TestRunReceiverFails(t *testing.T) {
	rt := newFakeRuntime()
	rt.startErr["R2"] = errors.New("no such container")
	o := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), pkg.BuildDumbbell(api.DelayShort), dumbbellFlows(20, 5), "reno")
	require.NoError(t, err)

	s1, _ := res.Flow("s1")
	s2, _ := res.Flow("s2")
	assert.Equal(t, api.FlowCompleted, s1.State)
	assert.Equal(t, api.FlowFailed, s2.State)
	assert.NotContains(t, rt.Events(), "send S2")
	assert.Contains(t, rt.Events(), "teardown")
}

func TestRunHangingSenderIsTerminated(t *testing.T) {
	rt := newFakeRuntime()
	rt.hang["S2"] = true
	o := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), pkg.BuildDumbbell(api.DelayShort), dumbbellFlows(10, 5), "bbr")
	require.NoError(t, err)

	s1, _ := res.Flow("s1")
	s2, _ := res.Flow("s2")
	assert.Equal(t, api.FlowCompleted, s1.State)
	assert.Equal(t, api.FlowTerminated, s2.State)

	events := rt.Events()
	assert.Equal(t, []string{"term S2", "term R1", "term R2", "teardown"}, events[len(events)-4:])
}

func TestRunSetupFailureTearsDown(t *testing.T) {
	rt := newFakeRuntime()
	rt.createErr = errors.New("ovs unavailable")
	o := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), pkg.BuildDumbbell(api.DelayShort), dumbbellFlows(20, 5), "bbr")
	require.ErrorIs(t, err, ErrSetup)
	assert.Equal(t, []string{"cc bbr", "topology", "teardown"}, rt.Events())
	assert.Equal(t, []api.State{api.StateInit, api.StateTornDown}, states(res))
	for _, f := range res.Flows {
		assert.Equal(t, api.FlowPending, f.State)
	}
}

func TestRunCongestionControlFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.ccErr = errors.New("no such algorithm")
	o := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), pkg.BuildDumbbell(api.DelayShort), dumbbellFlows(20, 5), "nope")
	require.ErrorIs(t, err, ErrSetup)
	assert.Equal(t, []string{"cc nope"}, rt.Events())
	assert.True(t, res.Reached(api.StateTornDown))
}

func TestRunInvalidConfig(t *testing.T) {
	topo := pkg.BuildDumbbell(api.DelayShort)
	cases := map[string]struct {
		flows     []api.FlowSpec
		algorithm string
	}{
		"empty algorithm":   {dumbbellFlows(20, 5), ""},
		"stagger too large": {dumbbellFlows(20, 20), "bbr"},
		"no flows":          {nil, "bbr"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rt := newFakeRuntime()
			o := newTestOrchestrator(t, rt)

			res, err := o.Run(context.Background(), topo, tc.flows, tc.algorithm)
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, res)
			assert.Empty(t, rt.Events())
		})
	}
}

func TestRunCancelled(t *testing.T) {
	rt := newFakeRuntime()
	o := New(rt, Options{LogDir: t.TempDir()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := o.Run(ctx, pkg.BuildDumbbell(api.DelayShort), dumbbellFlows(20, 5), "bbr")
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Reached(api.StateTornDown))
	assert.Contains(t, rt.Events(), "teardown")
}

func TestRunSilentSenderFails(t *testing.T) {
	rt := newFakeRuntime()
	rt.silent["S1"] = true
	o := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), pkg.BuildDumbbell(api.DelayShort), dumbbellFlows(20, 5), "bbr")
	require.NoError(t, err)

	s1, _ := res.Flow("s1")
	s2, _ := res.Flow("s2")
	assert.Equal(t, api.FlowFailed, s1.State)
	assert.Contains(t, s1.Error, "no parsable samples")
	assert.Equal(t, api.FlowCompleted, s2.State)
	assert.Contains(t, rt.Events(), "teardown")
	assert.True(t, res.Reached(api.StateTornDown))

	samples, err := telemetry.ReadFile(s2.LogFile, telemetry.Parser{})
	require.NoError(t, err)
	series := telemetry.Align("s2", samples, s2.ActualOffsetSec)
	require.Len(t, series.Samples, 2)
	assert.Equal(t, 5.0, series.Samples[0].IntervalStartSec)
}

func TestRunCancelledWhileDraining(t *testing.T) {
	rt := newFakeRuntime()
	rt.hang["S1"] = true
	rt.hang["S2"] = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.onStart = func(host string) {
		if host == "S2" {
			cancel()
		}
	}
	o := newTestOrchestrator(t, rt)

	res, err := o.Run(ctx, pkg.BuildDumbbell(api.DelayShort), dumbbellFlows(20, 5), "bbr")
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Reached(api.StateDraining))
	assert.True(t, res.Reached(api.StateTornDown))
	for _, f := range res.Flows {
		assert.Equal(t, api.FlowTerminated, f.State, f.Flow.Label)
	}
	assert.Contains(t, rt.Events(), "teardown")
}
