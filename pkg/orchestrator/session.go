package orchestrator

import (
	"Dumbbell/api"
	"Dumbbell/pkg/telemetry"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

type outcome struct {
	idx int
	err error
}

type receiver struct {
	key    receiverKey
	handle api.ProcessHandle
}

// session owns every resource acquired during one run. close releases them
// whatever state the run stopped in.
type session struct {
	o     *Orchestrator
	res   *api.ExperimentResult
	start time.Time

	pool       *ants.Pool
	waitCtx    context.Context
	cancelWait context.CancelFunc
	outcomes   chan outcome

	topologyRequested bool

	receivers       []receiver
	failedReceivers map[receiverKey]error
	senders         map[int]api.ProcessHandle // running, by flow index
	files           []*os.File
}

func newSession(o *Orchestrator, res *api.ExperimentResult) (*session, error) {
	pool, err := ants.NewPool(len(res.Flows))
	if err != nil {
		return nil, fmt.Errorf("failed to create waiter pool: %w", err)
	}
	waitCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		o:               o,
		res:             res,
		start:           o.opts.Clock.Now(),
		pool:            pool,
		waitCtx:         waitCtx,
		cancelWait:      cancel,
		outcomes:        make(chan outcome, len(res.Flows)),
		failedReceivers: make(map[receiverKey]error),
		senders:         make(map[int]api.ProcessHandle),
	}
	s.enter(api.StateInit)
	return s, nil
}

func (s *session) enter(state api.State) {
	at := s.o.opts.Clock.Now().Sub(s.start)
	s.res.Transitions = append(s.res.Transitions, api.Transition{State: state, At: at})
	log.Infof("orchestrator: %s at +%s", state, at.Round(time.Millisecond))
}

func (s *session) create(name string) (*os.File, error) {
	path := filepath.Join(s.o.opts.LogDir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s.files = append(s.files, f)
	return f, nil
}

// startReceivers starts one receiver per distinct (host, port). A receiver
// that fails to start only fails the flows that use it.
func (s *session) startReceivers(ctx context.Context) {
	var flows []api.FlowSpec
	for _, fr := range s.res.Flows {
		flows = append(flows, fr.Flow)
	}

	for _, key := range receivers(flows) {
		out, err := s.create(fmt.Sprintf("recv-%s-%d.txt", strings.ToLower(key.host), key.port))
		if err != nil {
			s.failedReceivers[key] = err
			continue
		}
		h, err := s.o.rt.StartProcess(ctx, key.host, ReceiverCommand(key.port), out)
		if err != nil {
			log.Warnf("orchestrator: receiver %s failed to start: %v", key, err)
			s.failedReceivers[key] = err
			continue
		}
		s.receivers = append(s.receivers, receiver{key: key, handle: h})
		log.Infof("orchestrator: receiver %s listening", key)
	}
}

// launch starts the sender of flow i and hands its completion to the pool.
func (s *session) launch(ctx context.Context, i int, destIP string, t0 time.Time) {
	fr := &s.res.Flows[i]
	f := fr.Flow

	key := receiverKey{f.DestHost, f.Port}
	if err, ok := s.failedReceivers[key]; ok {
		s.fail(i, fmt.Errorf("receiver %s: %v", key, err))
		return
	}

	out, err := s.create(f.Label + ".txt")
	if err != nil {
		s.fail(i, err)
		return
	}
	fr.LogFile = out.Name()

	h, err := s.o.rt.StartProcess(ctx, f.SourceHost, SenderCommand(f, destIP), out)
	if err != nil {
		s.fail(i, err)
		return
	}
	fr.State = api.FlowRunning
	fr.ActualOffsetSec = s.o.opts.Clock.Now().Sub(t0).Seconds()
	s.senders[i] = h
	logFlow(f).Infof("orchestrator: sender %s started at +%.2fs", f, fr.ActualOffsetSec)

	wait := func() {
		s.outcomes <- outcome{idx: i, err: s.o.rt.Wait(s.waitCtx, h)}
	}
	if err := s.pool.Submit(wait); err != nil {
		go wait()
	}
}

func (s *session) fail(i int, err error) {
	fr := &s.res.Flows[i]
	fr.State = api.FlowFailed
	fr.Error = fmt.Errorf("%w: %v", ErrFlowFailed, err).Error()
	logFlow(fr.Flow).Warnf("orchestrator: %s", fr.Error)
}

// drain collects sender completions until all are done, the budget runs
// out or ctx is cancelled. Senders still running are left to close.
func (s *session) drain(ctx context.Context, budget time.Duration) error {
	s.res.DrainBudget = budget
	log.Infof("orchestrator: waiting up to %s for %d senders", budget.Round(time.Millisecond), len(s.senders))

	timeout := s.o.opts.Clock.After(budget)
	for len(s.senders) > 0 {
		select {
		case out := <-s.outcomes:
			s.finish(out)
		case <-timeout:
			log.Warnf("orchestrator: drain budget %s exceeded, %d senders still running", budget, len(s.senders))
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *session) finish(out outcome) {
	if _, ok := s.senders[out.idx]; !ok {
		return
	}
	delete(s.senders, out.idx)
	if out.err != nil {
		s.fail(out.idx, out.err)
		return
	}
	s.res.Flows[out.idx].State = api.FlowCompleted
	logFlow(s.res.Flows[out.idx].Flow).Info("orchestrator: sender completed")
}

// close terminates senders, then receivers, then tears the topology down.
// Every step is best effort.
func (s *session) close() {
	var errs []error

	running := make([]int, 0, len(s.senders))
	for i := range s.senders {
		running = append(running, i)
	}
	sort.Ints(running)
	for _, i := range running {
		fr := &s.res.Flows[i]
		if err := s.o.rt.Terminate(s.senders[i]); err != nil {
			logFlow(fr.Flow).Warnf("orchestrator: failed to terminate sender: %v", err)
			errs = append(errs, err)
		}
		fr.State = api.FlowTerminated
		delete(s.senders, i)
	}

	for _, r := range s.receivers {
		if err := s.o.rt.Terminate(r.handle); err != nil {
			log.Warnf("orchestrator: failed to terminate receiver %s: %v", r.key, err)
			errs = append(errs, err)
		}
	}
	s.receivers = nil
	s.cancelWait()

	if s.topologyRequested {
		if err := s.o.rt.Teardown(context.Background()); err != nil {
			log.Warnf("orchestrator: teardown: %v", err)
			errs = append(errs, err)
		}
	}

	for _, f := range s.files {
		_ = f.Close()
	}
	s.pool.Release()
	s.checkOutput()

	if err := errors.Join(errs...); err != nil {
		log.Errorf("orchestrator: cleanup finished with errors: %v", err)
	}
	s.enter(api.StateTornDown)
}

// checkOutput fails completed flows whose log holds no measurement. A
// sender can exit cleanly without ever reporting an interval.
func (s *session) checkOutput() {
	for i := range s.res.Flows {
		fr := &s.res.Flows[i]
		if fr.State != api.FlowCompleted {
			continue
		}
		samples, err := telemetry.ReadFile(fr.LogFile, telemetry.Parser{})
		if err != nil {
			s.fail(i, err)
			continue
		}
		if len(samples) == 0 {
			s.fail(i, errors.New("no parsable samples"))
		}
	}
}
