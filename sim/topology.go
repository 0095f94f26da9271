package sim

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Topology is the set of entities built from a TopologySpec: routers,
// hosts, links and their egress schedulers, indexed by the names used in
// the topology file. Tests and drivers look entities up here rather than
// threading ids through by hand.
type Topology struct {
	Routers    map[string]int
	Hosts      map[string]int // host name -> Input entity id
	Outputs    map[string]int // host name -> Output entity id
	Links      map[string]int
	Schedulers map[string]int // link name -> scheduler entity id (the FlowLink itself, for flow-discipline links)
	Metrics    *Metrics       // aggregate counters: deliveries and probes from every host sink, drops from every router
}

// TraceRecorder receives one row per notable event at an entity that has
// tracing enabled. tracewriter.Writer satisfies it; tests substitute an
// in-memory fake.
type TraceRecorder interface {
	Record(now SimTime, columns []string, description string) error
}

// TraceFactory returns the TraceRecorder for a named entity, or nil when
// that entity should not be traced.
type TraceFactory func(entityName string) TraceRecorder

// BuildTopology registers every entity a TopologySpec describes (routers,
// per-host Input/Output port pairs and their sinks, links and their
// egress schedulers) and wires routers to their attached hosts and to
// each other, validating cross-references as it goes. It must be called
// before k.Start().
//
// An optional TraceFactory supplies a per-host TraceRecorder; each host's
// sink then records a row per delivered envelope and returned probe.
//
// When spec.Junk is set, the selected hosts' Outputs generate background
// JUNK_PKT traffic toward the other hosts; the "one" pattern's
// destination choice is drawn from a stream derived from
// spec.Kernel.Seed, so the same seed replays the same traffic.
func BuildTopology(k *Kernel, spec *TopologySpec, trace ...TraceFactory) (*Topology, error) {
	topo := &Topology{
		Routers:    make(map[string]int),
		Hosts:      make(map[string]int),
		Outputs:    make(map[string]int),
		Links:      make(map[string]int),
		Schedulers: make(map[string]int),
		Metrics:    NewMetrics(),
	}
	var traceFor TraceFactory
	if len(trace) > 0 {
		traceFor = trace[0]
	}

	hostRouter := make(map[string]string)
	var hostNames []string // registration order, for junk stream indexing
	for _, r := range spec.Routers {
		id, err := NewRouter(k, r.Name, topo.Metrics)
		if err != nil {
			return nil, fmt.Errorf("topology: router %q: %w", r.Name, err)
		}
		if r.Trace {
			logrus.Infof("topology: router %q: tracing enabled", r.Name)
		}
		topo.Routers[r.Name] = id
		for _, h := range r.Hosts {
			if prev, dup := hostRouter[h]; dup {
				return nil, fmt.Errorf("topology: host %q attached to both %q and %q", h, prev, r.Name)
			}
			hostRouter[h] = r.Name
			hostNames = append(hostNames, h)
			var rec TraceRecorder
			if traceFor != nil {
				rec = traceFor(h)
			}
			sinkID, err := newCollector(k, h+".sink", topo.Metrics, rec)
			if err != nil {
				return nil, fmt.Errorf("topology: host %q sink: %w", h, err)
			}
			inID, err := NewInput(k, h, sinkID)
			if err != nil {
				return nil, fmt.Errorf("topology: host %q: %w", h, err)
			}
			topo.Hosts[h] = inID
		}
	}

	// Outputs are created once every Input exists, so a junk generator's
	// destination set can cover all the other hosts.
	var junkRNG *PartitionedRNG
	if spec.Junk != nil {
		junkRNG = NewPartitionedRNG(spec.Kernel.Seed)
	}
	for i, h := range hostNames {
		cfg := PortConfig{}
		if spec.Junk != nil && junkSelectsHost(spec.Junk, h) {
			jc, err := junkConfigFor(spec.Junk, topo, hostNames, h, junkRNG.Stream(SimulationKey{Subsystem: "junk", Index: i}))
			if err != nil {
				return nil, err
			}
			cfg.Junk = jc
		}
		outID, err := NewOutput(k, h+".out", cfg)
		if err != nil {
			return nil, fmt.Errorf("topology: host %q output: %w", h, err)
		}
		topo.Outputs[h] = outID
	}

	// endpointPorts resolves a link-endpoint name to its input and output
	// port ids: routers use their own id for both, hosts split across
	// their Input and Output entities.
	endpointPorts := func(name string) (in, out int, ok bool) {
		if id, ok := topo.Routers[name]; ok {
			return id, id, true
		}
		if id, ok := topo.Hosts[name]; ok {
			return id, topo.Outputs[name], true
		}
		return 0, 0, false
	}

	for _, l := range spec.Links {
		e1In, e1Out, ok1 := endpointPorts(l.End1)
		e2In, e2Out, ok2 := endpointPorts(l.End2)
		if !ok1 {
			return nil, fmt.Errorf("topology: link %q: unknown endpoint %q", l.Name, l.End1)
		}
		if !ok2 {
			return nil, fmt.Errorf("topology: link %q: unknown endpoint %q", l.Name, l.End2)
		}

		if l.Discipline == DisciplineFlow {
			// A flow-discipline link has no separate packet scheduler: the
			// FlowLink entity itself serves as the router's egress handler
			// for it, so the same id is wired in as both link and scheduler.
			fc := FlowConfig{CapacityBps: l.BaudRate, PropDelay: SimTime(l.PropDelay)}
			if e1Out != e1In {
				fc.End1Out = e1Out
			}
			if e2Out != e2In {
				fc.End2Out = e2Out
			}
			flowID, err := NewFlowLink(k, l.Name, e1In, e2In, fc)
			if err != nil {
				return nil, fmt.Errorf("topology: link %q: %w", l.Name, err)
			}
			topo.Links[l.Name] = flowID
			topo.Schedulers[l.Name] = flowID
			if err := attachLinkEndpoints(k, topo, l, e1In, e2In, flowID, flowID); err != nil {
				return nil, err
			}
			bindHostOutputs(k, l, e1In, e1Out, e2In, e2Out, flowID)
			continue
		}

		lc := LinkConfig{PropDelay: SimTime(l.PropDelay), BaudRate: l.BaudRate}
		if e1Out != e1In {
			lc.End1Out = e1Out
		}
		if e2Out != e2In {
			lc.End2Out = e2Out
		}
		linkID, err := NewSimpleLink(k, l.Name, e1In, e2In, lc)
		if err != nil {
			return nil, fmt.Errorf("topology: link %q: %w", l.Name, err)
		}
		topo.Links[l.Name] = linkID

		schedName := l.Name + ".sched"
		var schedID int
		switch l.Discipline {
		case DisciplineFIFO, "":
			schedID, err = NewFIFOScheduler(k, schedName, linkID, l.BaudRate)
		case DisciplineSCFQ:
			if len(l.Weights) == 0 {
				return nil, fmt.Errorf("topology: link %q: scfq discipline requires weights", l.Name)
			}
			schedID, err = NewSCFQScheduler(k, schedName, linkID, l.BaudRate, l.Weights)
		case DisciplineRate:
			sum := 0.0
			for _, p := range l.RatesPct {
				sum += p
			}
			if sum > 100 {
				return nil, fmt.Errorf("topology: link %q: rate percentages sum to %.2f, exceeds 100", l.Name, sum)
			}
			schedID, err = NewRateScheduler(k, schedName, linkID, l.BaudRate, l.RatesPct)
		default:
			return nil, fmt.Errorf("topology: link %q: unknown discipline %q", l.Name, l.Discipline)
		}
		if err != nil {
			return nil, fmt.Errorf("topology: link %q scheduler: %w", l.Name, err)
		}
		topo.Schedulers[l.Name] = schedID

		if err := attachLinkEndpoints(k, topo, l, e1In, e2In, linkID, schedID); err != nil {
			return nil, err
		}
		bindHostOutputs(k, l, e1In, e1Out, e2In, e2Out, linkID)
	}

	return topo, nil
}

// junkSelectsHost reports whether h generates background traffic under
// js: an empty host list selects every host.
func junkSelectsHost(js *JunkSpec, h string) bool {
	if len(js.Hosts) == 0 {
		return true
	}
	for _, name := range js.Hosts {
		if name == h {
			return true
		}
	}
	return false
}

// junkConfigFor builds the JunkConfig for host h: a generator yielding
// js's tuple once, targeting every other host's Input.
func junkConfigFor(js *JunkSpec, topo *Topology, hostNames []string, h string, rng *rand.Rand) (JunkConfig, error) {
	pattern := SendAll
	switch js.Pattern {
	case "", "all":
	case "one":
		pattern = SendOneOnly
	default:
		return JunkConfig{}, fmt.Errorf("topology: junk pattern %q: want \"all\" or \"one\"", js.Pattern)
	}
	var dests []int
	for _, other := range hostNames {
		if other != h {
			dests = append(dests, topo.Hosts[other])
		}
	}
	tuple := JunkTuple{
		InterArrival: SimTime(js.InterArrival),
		Size:         js.Size,
		Count:        js.Count,
		Pattern:      pattern,
		ServiceClass: js.Class,
	}
	served := false
	return JunkConfig{
		Gen: func() (JunkTuple, bool) {
			if served {
				return JunkTuple{}, false
			}
			served = true
			return tuple, true
		},
		Destinations: dests,
		RNG:          rng,
	}, nil
}

// bindHostOutputs schedules the REGISTER_LINK binding for whichever of a
// link's sides is a host (its output port id differs from its input), so
// the host's Output fragments to the link's MTU and hands fragments to
// linkID.
func bindHostOutputs(k *Kernel, l LinkSpec, e1In, e1Out, e2In, e2Out, linkID int) {
	if e1Out != e1In {
		AttachOutput(k, e1Out, linkID, l.MTU, l.BaudRate)
	}
	if e2Out != e2In {
		AttachOutput(k, e2Out, linkID, l.MTU, l.BaudRate)
	}
}

// attachLinkEndpoints wires l's two endpoints into the router graph: two
// routers become neighbors over linkID/schedID, a router-and-host pair
// attaches the host as a directly-reachable resource. Used for both
// ordinary scheduled links and flow-discipline links (where linkID and
// schedID are the same FlowLink entity).
func attachLinkEndpoints(k *Kernel, topo *Topology, l LinkSpec, e1, e2, linkID, schedID int) error {
	router1, isRouter1 := topo.Routers[l.End1]
	router2, isRouter2 := topo.Routers[l.End2]
	switch {
	case isRouter1 && isRouter2:
		AttachRouter(k, router1, router2, linkID, schedID, l.BaudRate, l.MTU)
		AttachRouter(k, router2, router1, linkID, schedID, l.BaudRate, l.MTU)
	case isRouter1:
		AttachHost(k, router1, e2, linkID, schedID, l.BaudRate, l.MTU, false)
	case isRouter2:
		AttachHost(k, router2, e1, linkID, schedID, l.BaudRate, l.MTU, false)
	default:
		return fmt.Errorf("topology: link %q: neither endpoint is a router", l.Name)
	}
	return nil
}

// newCollector registers a trivial sink entity that absorbs
// INFOPKT_SUBMIT/INFOPKT_RETURN deliveries and tallies them into metrics;
// it exists so NewInput always has somewhere to forward reassembled
// envelopes without every topology needing a bespoke application-layer
// entity. rec, when non-nil, receives one row per delivery.
func newCollector(k *Kernel, name string, metrics *Metrics, rec TraceRecorder) (int, error) {
	record := func(ctx *Context, columns []string, description string) {
		if rec == nil {
			return
		}
		if err := rec.Record(ctx.Kernel().Clock(), columns, description); err != nil {
			logrus.Warnf("sim: collector %s: trace write failed: %v", ctx.Name(), err)
		}
	}
	return k.AddEntity(name, func(ctx *Context) {
		for {
			ev := ctx.GetNextMatching(func(ev *Event) bool {
				switch ev.Tag {
				case TagInfopktSubmit, TagInfopktReturn, TagEndOfSimulation:
					return true
				}
				return false
			})
			switch ev.Tag {
			case TagEndOfSimulation:
				ctx.Terminate()
				return
			case TagInfopktSubmit:
				if env, ok := ev.Payload.(DataEnvelope); ok {
					metrics.RecordDelivery(env.ByteSize)
					record(ctx, []string{"delivered", strconv.Itoa(env.ByteSize)}, "envelope delivered")
				}
			case TagInfopktReturn:
				metrics.RecordProbe()
				if probe, ok := ev.Payload.(*ProbePacket); ok {
					record(ctx, []string{"probe", strconv.Itoa(len(probe.Hops))}, "probe returned")
				}
			}
		}
	})
}
