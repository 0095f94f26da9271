package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/krfmo/gridsim/policy"
	"github.com/krfmo/gridsim/sim"
	"github.com/krfmo/gridsim/tracewriter"
	"github.com/krfmo/gridsim/workload"
)

var (
	topologyPath   string
	topologyFormat string
	disciplineOpt  string
	weightsOpt     string
	ratesPctOpt    string
	workloadPath   string
	hostName       string
	remoteName     string
	horizonOpt     float64
	seedOpt        int64
	peRating       float64
	serviceClass   int
	maxInFlight    int
	flowBytes      int
	traceDir       string
	traceSep       string
	junkInterval   float64
	junkSize       int
	junkCount      int
	junkPattern    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a topology, optionally replaying a workload trace through one of its hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := loadTopologySpec(topologyPath, topologyFormat, disciplineOpt, weightsOpt, ratesPctOpt)
		if err != nil {
			return fmt.Errorf("loading topology: %w", err)
		}
		applyDisciplineOverride(spec, disciplineOpt)
		if horizonOpt > 0 {
			spec.Kernel.MaxSimTime = horizonOpt
		}
		if cmd.Flags().Changed("seed") {
			spec.Kernel.Seed = seedOpt
		}
		if junkCount > 0 {
			spec.Junk = &sim.JunkSpec{
				InterArrival: junkInterval,
				Size:         junkSize,
				Count:        junkCount,
				Pattern:      junkPattern,
				Class:        serviceClass,
			}
		}

		var writers []*tracewriter.Writer
		var traceFactory []sim.TraceFactory
		if traceDir != "" {
			sep, err := parseTraceSep(traceSep)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(traceDir, 0o755); err != nil {
				return fmt.Errorf("creating --trace-dir: %w", err)
			}
			traceFactory = append(traceFactory, func(entityName string) sim.TraceRecorder {
				w := tracewriter.New(filepath.Join(traceDir, entityName+".csv"), sep)
				writers = append(writers, w)
				return w
			})
		}

		k := sim.NewKernel()
		k.TraceFlag = spec.Kernel.Trace
		topo, err := sim.BuildTopology(k, spec, traceFactory...)
		if err != nil {
			return fmt.Errorf("building topology: %w", err)
		}

		if workloadPath != "" {
			remote := remoteName
			if remote == "" {
				remote = hostName
			}
			if err := submitWorkload(k, topo, workloadPath, hostName, remote, serviceClass, peRating, maxInFlight); err != nil {
				return fmt.Errorf("submitting workload: %w", err)
			}
		}

		if flowBytes > 0 {
			remote := remoteName
			if remote == "" {
				remote = hostName
			}
			if err := submitFlow(k, topo, hostName, remote, serviceClass, flowBytes); err != nil {
				return fmt.Errorf("submitting flow: %w", err)
			}
		}

		if spec.Kernel.MaxSimTime > 0 {
			scheduleHorizon(k, topo, sim.SimTime(spec.Kernel.MaxSimTime))
		}

		logrus.Infof("starting run: topology=%s workload=%s seed=%d", topologyPath, workloadPath, spec.Kernel.Seed)
		k.Start()
		logrus.Infof("run complete at t=%.6f: delivered=%d dropped=%d probes=%d bytes_in=%d",
			k.Clock(), topo.Metrics.Delivered, topo.Metrics.Dropped, topo.Metrics.Probes, topo.Metrics.BytesIn)
		for _, w := range writers {
			if err := w.Close(); err != nil {
				logrus.Warnf("closing trace file: %v", err)
			}
		}
		return nil
	},
}

// loadTopologySpec reads topologyPath as either a YAML config (format
// "yaml", the default) or the text router-mesh grammar (format
// "text"). The text grammar carries no per-link discipline or per-class
// parameter columns, so for that format discipline/weights/ratesPct (the
// same flags applyDisciplineOverride uses for a YAML file) are applied to
// every parsed link up front.
func loadTopologySpec(path, format, discipline, weights, ratesPct string) (*sim.TopologySpec, error) {
	switch format {
	case "", "yaml":
		return sim.LoadTopologySpec(path)
	case "text":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		opts := sim.TopologyFileOptions{
			Discipline:  sim.LinkDiscipline(discipline),
			AttachHosts: true,
		}
		if opts.Weights, err = parseFloatList(weights); err != nil {
			return nil, fmt.Errorf("--weights: %w", err)
		}
		if opts.RatesPct, err = parseFloatList(ratesPct); err != nil {
			return nil, fmt.Errorf("--rates-pct: %w", err)
		}
		return sim.ParseTopologyText(f, opts)
	default:
		return nil, fmt.Errorf("unknown --topology-format %q (want yaml or text)", format)
	}
}

// parseFloatList parses a comma-separated list of floats ("1,0.5,2"); an
// empty string yields a nil (empty) slice.
func parseFloatList(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", p)
		}
		out[i] = v
	}
	return out, nil
}

// parseTraceSep maps the --trace-sep flag onto a tracewriter separator.
func parseTraceSep(s string) (tracewriter.Separator, error) {
	switch s {
	case "", "comma":
		return tracewriter.Comma, nil
	case "tab":
		return tracewriter.Tab, nil
	case "space":
		return tracewriter.Space, nil
	default:
		return 0, fmt.Errorf("unknown --trace-sep %q (want comma, tab or space)", s)
	}
}

// applyDisciplineOverride forces every non-flow link in spec to use
// discipline when it is non-empty, so the same topology file can be
// compared across scheduling disciplines without editing it.
func applyDisciplineOverride(spec *sim.TopologySpec, discipline string) {
	if discipline == "" {
		return
	}
	d := sim.LinkDiscipline(discipline)
	for i := range spec.Links {
		if spec.Links[i].Discipline == sim.DisciplineFlow {
			continue
		}
		spec.Links[i].Discipline = d
	}
}

// hostPorts resolves hostName and remoteName to the submitting host's
// Input/Output pair and the remote host's Input.
func hostPorts(topo *sim.Topology, hostName, remoteName string) (hostID, outID, remoteID int, err error) {
	hostID, ok := topo.Hosts[hostName]
	if !ok {
		return 0, 0, 0, fmt.Errorf("host %q not found in topology", hostName)
	}
	outID, ok = topo.Outputs[hostName]
	if !ok {
		return 0, 0, 0, fmt.Errorf("host %q has no output port", hostName)
	}
	remoteID, ok = topo.Hosts[remoteName]
	if !ok {
		return 0, 0, 0, fmt.Errorf("remote host %q not found in topology", remoteName)
	}
	return hostID, outID, remoteID, nil
}

// submitWorkload reads an SWF trace and schedules one SEND_PACKET
// envelope per job at hostName's Output, addressed to remoteName. With
// maxInFlight > 0 an FCFS admission policy admits only the first
// maxInFlight jobs of the trace: no completion is ever reported back to
// it, so the jobs it queues are never released and are not replayed.
// The Output packetises each envelope to its attachment link's MTU,
// exactly as any application-level submission enters the network.
func submitWorkload(k *sim.Kernel, topo *sim.Topology, path, hostName, remoteName string, class int, peRating float64, maxInFlight int) error {
	hostID, outID, remoteID, err := hostPorts(topo, hostName, remoteName)
	if err != nil {
		return err
	}

	jobs, err := workload.ReadTrace(path, workload.StandardColumns)
	if err != nil {
		return err
	}
	requests := workload.ToRequests(jobs, hostID, class, peRating)

	var admission policy.AllocationPolicy = policy.ImmediateAdmit{}
	if maxInFlight > 0 {
		admission = policy.NewFCFSQueue(maxInFlight)
	}

	for _, req := range requests {
		if admission.Evaluate(req) != policy.Admit {
			logrus.Debugf("request %d queued, admission control is advisory for this CLI and does not replay queued work", req.ID)
			continue
		}
		k.Schedule(hostID, outID, sim.SimTime(req.ArrivalTime), sim.TagSendPacket, sim.DataEnvelope{
			Data:         req,
			ByteSize:     req.SizeBytes,
			DstID:        remoteID,
			ServiceClass: req.ServiceClass,
		})
	}
	return nil
}

// submitFlow hands one FLOW_SUBMIT to hostName's Output, addressed to
// remoteName, the way a bulk transfer enters a flow-discipline topology
// end to end: the Output relays the FlowPacket onto its attachment
// FlowLink, which admits it and carries it hop by hop to the remote
// Input.
func submitFlow(k *sim.Kernel, topo *sim.Topology, hostName, remoteName string, class, totalBytes int) error {
	hostID, outID, remoteID, err := hostPorts(topo, hostName, remoteName)
	if err != nil {
		return err
	}
	fp := sim.NewFlowPacket(k.AllocPacketID(), hostID, remoteID, totalBytes, class)
	k.Schedule(hostID, outID, 0, sim.TagFlowSubmit, fp)
	return nil
}

// scheduleHorizon schedules a single END_OF_SIMULATION event at t=horizon;
// the kernel stops dispatching as soon as any entity receives one, so it
// doesn't matter which live entity id it's addressed to.
func scheduleHorizon(k *sim.Kernel, topo *sim.Topology, horizon sim.SimTime) {
	for _, id := range topo.Routers {
		k.Schedule(id, id, horizon, sim.TagEndOfSimulation, nil)
		return
	}
}

func init() {
	runCmd.Flags().StringVar(&topologyPath, "topology", "", "Path to a topology file")
	runCmd.Flags().StringVar(&topologyFormat, "topology-format", "yaml", "Topology file format: yaml or text (router-mesh grammar)")
	runCmd.Flags().StringVar(&disciplineOpt, "discipline", "", "Override every link's scheduling discipline (fifo, scfq, rate)")
	runCmd.Flags().StringVar(&weightsOpt, "weights", "", "Comma-separated SCFQ per-class weights (text topology format only)")
	runCmd.Flags().StringVar(&ratesPctOpt, "rates-pct", "", "Comma-separated rate-controlled per-class percentages (text topology format only)")
	runCmd.Flags().StringVar(&workloadPath, "workload", "", "Path to an SWF trace to replay through --host")
	runCmd.Flags().StringVar(&hostName, "host", "", "Host name to replay --workload through")
	runCmd.Flags().StringVar(&remoteName, "remote", "", "Destination host for replayed jobs (defaults to --host)")
	runCmd.Flags().Float64Var(&horizonOpt, "horizon", 0, "Override the topology file's max_sim_time")
	runCmd.Flags().Int64Var(&seedOpt, "seed", 0, "Override the topology file's random seed (drives background-traffic destination choice)")
	runCmd.Flags().Float64Var(&peRating, "pe-rating", 1, "Processing-element rating scaling requested runtime into bytes")
	runCmd.Flags().IntVar(&serviceClass, "class", 0, "Service class assigned to replayed jobs")
	runCmd.Flags().IntVar(&maxInFlight, "max-inflight", 0, "Replay only the first this many jobs of the trace (0 = all)")
	runCmd.Flags().IntVar(&flowBytes, "flow-bytes", 0, "Submit a single flow-transport transfer of this many bytes from --host to --remote (flow-discipline topologies only)")
	runCmd.Flags().StringVar(&traceDir, "trace-dir", "", "Write one per-host trace report into this directory")
	runCmd.Flags().StringVar(&traceSep, "trace-sep", "comma", "Trace report field separator: comma, tab or space")
	runCmd.Flags().Float64Var(&junkInterval, "junk-interval", 1, "Background traffic: seconds between junk packets")
	runCmd.Flags().IntVar(&junkSize, "junk-size", 1000, "Background traffic: junk packet size in bytes")
	runCmd.Flags().IntVar(&junkCount, "junk-count", 0, "Background traffic: junk packets per host (0 disables)")
	runCmd.Flags().StringVar(&junkPattern, "junk-pattern", "all", "Background traffic fan-out: all hosts, or one chosen per packet")
	_ = runCmd.MarkFlagRequired("topology")
}
