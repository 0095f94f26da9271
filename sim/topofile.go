package sim

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TopologyFileOptions supplies the per-run parameters the text topology
// grammar doesn't encode in the file itself: the file lists routers
// and physical link characteristics only, so which of the four discipline
// variants (fifo/scfq/rate/flow) every link's egress scheduler uses, and
// that discipline's class parameters, are applied uniformly across every
// link line by the caller instead.
type TopologyFileOptions struct {
	Discipline LinkDiscipline
	Weights    []float64 // SCFQ per-class weights
	RatesPct   []float64 // rate-controlled per-class percentages, must sum <= 100

	// AttachHosts, when true, attaches one host named "<router>.host" to
	// each router, so a bare router-mesh file is runnable end to end
	// without a separate host-attachment file, the way GridSim's example
	// topologies are driven straight from a NetworkReader file.
	AttachHosts bool
}

// ParseTopologyText parses the GridSim-style text topology grammar:
//
//	# comments begin with '#'
//	<num_routers>
//	<router_name_1> [true|false]     # optional trace flag
//	<router_name_2> [true|false]
//	…
//	<router_a> <router_b> <baud_Gbps> <prop_delay_ms> <mtu_bytes>
//	…
//
// Router names must be declared in the router block before any link line
// references them. opts.Discipline (and its Weights/RatesPct) is applied to
// every parsed link, since the file format carries no per-link discipline
// column; one file can thereby drive all four discipline variants.
func ParseTopologyText(r io.Reader, opts TopologyFileOptions) (*TopologySpec, error) {
	lines, err := stripCommentsAndBlanks(r)
	if err != nil {
		return nil, fmt.Errorf("topology file: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("topology file: empty")
	}

	numRouters, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || numRouters <= 0 {
		return nil, fmt.Errorf("topology file: invalid router count %q", lines[0])
	}
	if len(lines) < 1+numRouters {
		return nil, fmt.Errorf("topology file: expected %d router lines, got %d", numRouters, len(lines)-1)
	}

	spec := &TopologySpec{}
	known := make(map[string]bool, numRouters)
	for i := 0; i < numRouters; i++ {
		fields := strings.Fields(lines[1+i])
		if len(fields) == 0 {
			return nil, fmt.Errorf("topology file: router line %d is empty", i+1)
		}
		name := fields[0]
		if known[name] {
			return nil, fmt.Errorf("topology file: router %q declared twice", name)
		}
		trace := false
		if len(fields) > 1 {
			trace, err = strconv.ParseBool(fields[1])
			if err != nil {
				return nil, fmt.Errorf("topology file: router %q: invalid trace flag %q", name, fields[1])
			}
		}
		known[name] = true
		rs := RouterSpec{Name: name, Trace: trace}
		if opts.AttachHosts {
			rs.Hosts = []string{name + ".host"}
		}
		spec.Routers = append(spec.Routers, rs)
	}

	for _, line := range lines[1+numRouters:] {
		fields := strings.Fields(line)
		if len(fields) != 5 {
			return nil, fmt.Errorf("topology file: link line %q: expected 5 fields, got %d", line, len(fields))
		}
		a, b := fields[0], fields[1]
		if !known[a] {
			return nil, fmt.Errorf("topology file: link references unknown router %q", a)
		}
		if !known[b] {
			return nil, fmt.Errorf("topology file: link references unknown router %q", b)
		}
		baudGbps, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("topology file: link %s-%s: invalid baud %q", a, b, fields[2])
		}
		propMs, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("topology file: link %s-%s: invalid propagation delay %q", a, b, fields[3])
		}
		mtu, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("topology file: link %s-%s: invalid MTU %q", a, b, fields[4])
		}
		if baudGbps <= 0 || propMs <= 0 || mtu <= 0 {
			return nil, fmt.Errorf("topology file: link %s-%s: baud/delay/mtu must all be positive", a, b)
		}
		spec.Links = append(spec.Links, LinkSpec{
			Name:       a + "-" + b,
			End1:       a,
			End2:       b,
			PropDelay:  propMs / 1000,
			BaudRate:   baudGbps * 1e9,
			MTU:        mtu,
			Discipline: opts.Discipline,
			Weights:    opts.Weights,
			RatesPct:   opts.RatesPct,
		})
	}

	if opts.Discipline == DisciplineSCFQ && len(opts.Weights) == 0 {
		return nil, fmt.Errorf("topology file: scfq discipline requires weights")
	}
	for _, w := range opts.Weights {
		if w <= 0 {
			return nil, fmt.Errorf("topology file: scfq weights must all be positive, got %v", w)
		}
	}
	if opts.Discipline == DisciplineRate {
		sum := 0.0
		for _, p := range opts.RatesPct {
			sum += p
		}
		if sum > 100 {
			return nil, fmt.Errorf("topology file: rate percentages sum to %.2f, exceeds 100", sum)
		}
	}

	return spec, nil
}

// stripCommentsAndBlanks reads r line by line, truncating everything from
// the first '#' onward and dropping lines that are blank afterward.
func stripCommentsAndBlanks(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
