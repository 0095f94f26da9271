package sim

import (
	"os"

	"gopkg.in/yaml.v3"
)

// KernelConfig groups the top-level knobs for a run: the random seed
// driving every PartitionedRNG stream, whether the kernel logs every
// delivered event, and how long (in simulated seconds) a run is allowed
// before it is considered hung.
type KernelConfig struct {
	Seed       int64   `yaml:"seed"`
	Trace      bool    `yaml:"trace"`
	MaxSimTime float64 `yaml:"max_sim_time"`
}

// LinkDiscipline names which of the four scheduling disciplines a link's
// egress scheduler uses.
type LinkDiscipline string

const (
	DisciplineFIFO LinkDiscipline = "fifo"
	DisciplineSCFQ LinkDiscipline = "scfq"
	DisciplineRate LinkDiscipline = "rate"
	DisciplineFlow LinkDiscipline = "flow"
)

// LinkSpec is one topology-file link entry: its two endpoints, physical
// characteristics, and scheduling discipline (with the parameters that
// discipline needs — only one of Weights/RatesPct is meaningful for a
// given Discipline).
type LinkSpec struct {
	Name       string         `yaml:"name"`
	End1       string         `yaml:"end1"`
	End2       string         `yaml:"end2"`
	PropDelay  float64        `yaml:"prop_delay"`
	BaudRate   float64        `yaml:"baud_rate"`
	MTU        int            `yaml:"mtu"`
	Discipline LinkDiscipline `yaml:"discipline"`
	Weights    []float64      `yaml:"weights,omitempty"`
	RatesPct   []float64      `yaml:"rates_pct,omitempty"`
}

// RouterSpec is one topology-file router entry: its name and the hosts
// directly attached to it.
type RouterSpec struct {
	Name  string   `yaml:"name"`
	Hosts []string `yaml:"hosts"`

	// Trace is the per-router "true|false" column the text topology
	// grammar carries after each router's name. BuildTopology logs once
	// that tracing is enabled for the router; the router itself produces
	// no per-event trace output, independent of KernelConfig.Trace.
	Trace bool `yaml:"trace,omitempty"`
}

// JunkSpec configures background traffic: each selected host's Output
// generates Count JUNK_PKT packets of Size bytes, InterArrival apart,
// fanned out per Pattern. Destination choice for the "one" pattern is
// drawn from a seed-derived stream (KernelConfig.Seed), so a run is
// reproducible.
type JunkSpec struct {
	// Hosts selects which hosts generate junk; empty means every host.
	Hosts        []string `yaml:"hosts,omitempty"`
	InterArrival float64  `yaml:"inter_arrival"`
	Size         int      `yaml:"size"`
	Count        int      `yaml:"count"`
	// Pattern is "all" (default: one copy to every other host) or "one"
	// (a single uniformly chosen host per packet).
	Pattern string `yaml:"pattern,omitempty"`
	Class   int    `yaml:"class,omitempty"`
}

// TopologySpec is the top-level shape of a topology file (LoadTopologySpec
// below loads one; BuildTopology in sim/topology.go validates its
// cross-references).
type TopologySpec struct {
	Kernel  KernelConfig `yaml:"kernel"`
	Routers []RouterSpec `yaml:"routers"`
	Links   []LinkSpec   `yaml:"links"`
	Junk    *JunkSpec    `yaml:"junk,omitempty"`
}

// LoadTopologySpec reads and parses a YAML topology file from path.
func LoadTopologySpec(path string) (*TopologySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec TopologySpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}
