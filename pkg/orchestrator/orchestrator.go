package orchestrator

import (
	"Dumbbell/api"
	"Dumbbell/pkg/util"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrInvalidConfig is returned before any process is started.
	ErrInvalidConfig = errors.New("invalid experiment configuration")

	// ErrSetup is returned when the emulated network cannot be brought up.
	ErrSetup = errors.New("emulation setup failed")

	// ErrFlowFailed marks a flow whose sender failed or never started.
	ErrFlowFailed = errors.New("flow failed")
)

const (
	// DefaultGraceFactor scales the remaining expected duration into the
	// drain budget. Empirical margin against scheduling jitter.
	DefaultGraceFactor = 1.2

	DefaultReceiverSettle = time.Second
	DefaultMinDrain       = 2 * time.Second
)

// Runtime is the emulation runtime the orchestrator drives.
type Runtime interface {
	SetCongestionControl(algorithm string) error
	CreateTopology(ctx context.Context, topo api.Topology) error
	StartProcess(ctx context.Context, host string, cmd []string, out io.Writer) (api.ProcessHandle, error)
	Wait(ctx context.Context, h api.ProcessHandle) error
	Terminate(h api.ProcessHandle) error
	Teardown(ctx context.Context) error
}

type Options struct {
	// LogDir receives one <label>.txt file per flow.
	LogDir string

	GraceFactor    float64
	ReceiverSettle time.Duration
	MinDrain       time.Duration

	Clock Clock
}

// Orchestrator runs experiments against a Runtime. It does not support
// concurrent runs: the runtime holds one topology at a time.
type Orchestrator struct {
	rt   Runtime
	opts Options
}

func New(rt Runtime, opts Options) *Orchestrator {
	if opts.GraceFactor <= 0 {
		opts.GraceFactor = DefaultGraceFactor
	}
	if opts.ReceiverSettle < 0 {
		opts.ReceiverSettle = 0
	}
	if opts.MinDrain <= 0 {
		opts.MinDrain = DefaultMinDrain
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.LogDir == "" {
		opts.LogDir = "."
	}
	return &Orchestrator{rt: rt, opts: opts}
}

// Run executes one experiment:
// INIT -> TOPOLOGY_UP -> RECEIVERS_READY -> FLOWS_RUNNING -> DRAINING -> TORN_DOWN.
//
// Configuration errors are returned before anything is touched. Once the
// run has started, TORN_DOWN is always reached: processes are terminated and
// the topology is torn down on every return path. Failures of single flows
// do not abort the run, they are reported in the result.
func (o *Orchestrator) Run(ctx context.Context, topo api.Topology, flows []api.FlowSpec, algorithm string) (*api.ExperimentResult, error) {
	ordered := normalizeFlows(flows)
	if algorithm == "" {
		return nil, fmt.Errorf("%w: congestion algorithm is empty", ErrInvalidConfig)
	}
	if err := ValidateFlows(topo, ordered); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := os.MkdirAll(o.opts.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	res := &api.ExperimentResult{
		Algorithm: algorithm,
		StartedAt: o.opts.Clock.Now(),
		Kernel:    kernelVersion(),
	}
	for _, f := range ordered {
		res.Flows = append(res.Flows, api.FlowResult{Flow: f, State: api.FlowPending})
	}

	s, err := newSession(o, res)
	if err != nil {
		return nil, err
	}
	defer s.close()

	// process-wide, applies to every flow of the run
	if err := o.rt.SetCongestionControl(algorithm); err != nil {
		return res, fmt.Errorf("%w: %v", ErrSetup, err)
	}

	s.topologyRequested = true
	if err := o.rt.CreateTopology(ctx, topo); err != nil {
		return res, fmt.Errorf("%w: %v", ErrSetup, err)
	}
	s.enter(api.StateTopologyUp)

	s.startReceivers(ctx)
	if err := sleep(ctx, o.opts.Clock, o.opts.ReceiverSettle); err != nil {
		return res, err
	}
	s.enter(api.StateReceiversReady)

	t0 := o.opts.Clock.Now()
	s.enter(api.StateFlowsRunning)
	for i := range res.Flows {
		f := res.Flows[i].Flow
		if err := sleep(ctx, o.opts.Clock, seconds(f.StartOffsetSec)-o.opts.Clock.Now().Sub(t0)); err != nil {
			return res, err
		}
		dst, _ := topo.Node(f.DestHost)
		s.launch(ctx, i, util.StripPrefix(dst.Interface.Ipv4), t0)
	}

	s.enter(api.StateDraining)
	if err := s.drain(ctx, o.drainBudget(ordered, o.opts.Clock.Now().Sub(t0))); err != nil {
		return res, err
	}
	return res, nil
}

// drainBudget is the grace factor times the time left until the last flow
// is expected to finish, never less than MinDrain.
func (o *Orchestrator) drainBudget(flows []api.FlowSpec, elapsed time.Duration) time.Duration {
	var end float64
	for _, f := range flows {
		end = math.Max(end, f.EndSec())
	}
	remaining := seconds(end) - elapsed
	if remaining < 0 {
		remaining = 0
	}
	budget := time.Duration(float64(remaining) * o.opts.GraceFactor)
	if budget < o.opts.MinDrain {
		budget = o.opts.MinDrain
	}
	return budget
}

func logFlow(f api.FlowSpec) *log.Entry {
	return log.WithField("flow", f.Label)
}
