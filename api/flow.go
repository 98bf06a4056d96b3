package api

import (
	"fmt"
	"time"
)

// FlowSpec is one directional transfer between two hosts.
type FlowSpec struct {
	Label          string  `json:"label" toml:"label"`
	SourceHost     string  `json:"source_host" toml:"source_host"`
	DestHost       string  `json:"dest_host" toml:"dest_host"`
	Port           uint16  `json:"port" toml:"port"`
	StartOffsetSec float64 `json:"start_offset_sec" toml:"start_offset_sec"` // >= 0
	DurationSec    float64 `json:"duration_sec" toml:"duration_sec"`         // > 0
}

// EndSec is the offset at which the flow is expected to finish.
func (f FlowSpec) EndSec() float64 {
	return f.StartOffsetSec + f.DurationSec
}

func (f FlowSpec) String() string {
	return fmt.Sprintf("%s %s->%s:%d @%.2fs for %.2fs", f.Label, f.SourceHost, f.DestHost, f.Port, f.StartOffsetSec, f.DurationSec)
}

// ExperimentConfig holds every recognised knob of a run.
type ExperimentConfig struct {
	DelayClass          DelayClass `json:"delay_class" toml:"delay_class"`
	StaggerDelaySec     float64    `json:"stagger_delay_sec" toml:"stagger_delay_sec"`
	TotalDurationSec    float64    `json:"total_duration_sec" toml:"total_duration_sec"`
	CongestionAlgorithm string     `json:"congestion_algorithm" toml:"congestion_algorithm"`
	GraceFactor         float64    `json:"grace_factor" toml:"grace_factor"`
}

// Validate checks the config before anything is started.
func (c ExperimentConfig) Validate() error {
	if c.CongestionAlgorithm == "" {
		return fmt.Errorf("congestion algorithm is empty")
	}
	if c.TotalDurationSec <= 0 {
		return fmt.Errorf("total duration %.2fs must be positive", c.TotalDurationSec)
	}
	if c.StaggerDelaySec < 0 {
		return fmt.Errorf("stagger delay %.2fs must not be negative", c.StaggerDelaySec)
	}
	if c.StaggerDelaySec >= c.TotalDurationSec {
		return fmt.Errorf("stagger delay %.2fs exceeds total duration %.2fs", c.StaggerDelaySec, c.TotalDurationSec)
	}
	if c.GraceFactor < 1 {
		return fmt.Errorf("grace factor %.2f must be at least 1", c.GraceFactor)
	}
	return nil
}

// Flows returns the two competing transfers of the dumbbell experiment:
// S1->R1 for the whole run and S2->R2 joining after the stagger delay.
func (c ExperimentConfig) Flows() []FlowSpec {
	return []FlowSpec{
		{
			Label:          "s1",
			SourceHost:     "S1",
			DestHost:       "R1",
			Port:           1111,
			StartOffsetSec: 0,
			DurationSec:    c.TotalDurationSec,
		},
		{
			Label:          "s2",
			SourceHost:     "S2",
			DestHost:       "R2",
			Port:           2222,
			StartOffsetSec: c.StaggerDelaySec,
			DurationSec:    c.TotalDurationSec - c.StaggerDelaySec,
		},
	}
}

// State is the orchestrator state.
type State string

const (
	StateInit           State = "INIT"
	StateTopologyUp     State = "TOPOLOGY_UP"
	StateReceiversReady State = "RECEIVERS_READY"
	StateFlowsRunning   State = "FLOWS_RUNNING"
	StateDraining       State = "DRAINING"
	StateTornDown       State = "TORN_DOWN"
)

// FlowState is the sub-state of a single flow.
type FlowState string

const (
	FlowPending    FlowState = "pending"
	FlowRunning    FlowState = "running"
	FlowCompleted  FlowState = "completed"
	FlowFailed     FlowState = "failed"
	FlowTerminated FlowState = "terminated"
)

type Transition struct {
	State State         `json:"state"`
	At    time.Duration `json:"at"` // since INIT
}

type FlowResult struct {
	Flow  FlowSpec  `json:"flow"`
	State FlowState `json:"state"`
	// ActualOffsetSec is when the sender was launched, relative to experiment start.
	ActualOffsetSec float64 `json:"actual_offset_sec"`
	LogFile         string  `json:"log_file,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Failed reports whether the flow produced no usable output.
func (r FlowResult) Failed() bool {
	return r.State == FlowFailed || r.State == FlowPending
}

type ExperimentResult struct {
	Algorithm   string           `json:"algorithm"`
	Config      ExperimentConfig `json:"config"`
	Flows       []FlowResult     `json:"flows"`
	Transitions []Transition     `json:"transitions"`
	DrainBudget time.Duration    `json:"drain_budget"`
	Kernel      string           `json:"kernel,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
}

// Reached reports whether the run went through the given state.
func (r *ExperimentResult) Reached(s State) bool {
	for _, t := range r.Transitions {
		if t.State == s {
			return true
		}
	}
	return false
}

// Flow returns the result of the flow with the given label.
func (r *ExperimentResult) Flow(label string) (FlowResult, bool) {
	for _, f := range r.Flows {
		if f.Flow.Label == label {
			return f, true
		}
	}
	return FlowResult{}, false
}

// ProcessHandle is an opaque reference to a process started on a host.
type ProcessHandle struct {
	ID   string
	Host string
}
