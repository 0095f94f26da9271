package sim

import "github.com/sirupsen/logrus"

// FlowConfig parametrises a FlowLink: its nominal capacity in bits per
// second and propagation delay. Capacity is shared equally among every
// flow currently active on it, so the effective rate each flow sees is
// CapacityBps / active_flow_count.
//
// End1Out/End2Out are the output-port entity ids of each side, for sides
// that split input and output across two entities (a host's Input and
// Output); zero means the side has no separate output port, the same
// convention LinkConfig uses.
type FlowConfig struct {
	CapacityBps float64
	PropDelay   SimTime
	End1Out     int
	End2Out     int
}

// flowMember is one flow currently registered on a FlowLink: a pointer to
// the shared FlowPacket (consulted and mutated directly by every FlowLink
// it traverses, the same "mutated in place as the flow's fair share
// changes" contract packet.go documents for the type).
type flowMember struct {
	pkt *FlowPacket
}

// recomputeBottleneck sets fp's BottleneckBps/BottleneckLink to the
// minimum entry currently recorded in fp.LinkShares — the slowest of every
// link the flow currently holds a share on.
func recomputeBottleneck(fp *FlowPacket) {
	found := false
	var bestLink int
	var bestShare float64
	for linkID, share := range fp.LinkShares {
		if !found || share < bestShare {
			bestLink, bestShare, found = linkID, share, true
		}
	}
	if found {
		fp.BottleneckBps = bestShare
		fp.BottleneckLink = bestLink
	}
}

// NewFlowLink registers a FlowLink entity: a bidirectional wire,
// same as SimpleLink, that instead of queueing individual packets tracks
// the set of flows simultaneously occupying it. On every membership
// change it recomputes its equal-split share (CapacityBps / active count)
// and relays the admission message on to whichever endpoint didn't send
// it — the flow's ultimate path is the chain of FlowLinks a FLOW_SUBMIT
// is routed through, exactly like PKT_FORWARD through SimpleLinks, until
// it reaches the destination's Input (see port.go), which owns the
// flow's FLOW_HOLD completion timer and overall bottleneck bookkeeping.
func NewFlowLink(k *Kernel, name string, end1, end2 int, cfg FlowConfig) (int, error) {
	return k.AddEntity(name, func(ctx *Context) {
		members := make(map[int]flowMember)

		for {
			ev := ctx.GetNextMatching(func(ev *Event) bool {
				switch ev.Tag {
				case TagFlowSubmit, tagFlowDeregister, TagEndOfSimulation:
					return true
				}
				return false
			})
			switch ev.Tag {
			case TagEndOfSimulation:
				ctx.Schedule(end1, 0, TagEndOfSimulation, nil)
				ctx.Schedule(end2, 0, TagEndOfSimulation, nil)
				ctx.Terminate()
				return

			case TagFlowSubmit:
				fp, ok := ev.Payload.(*FlowPacket)
				if !ok {
					logrus.Warnf("sim: FlowLink %s got FLOW_SUBMIT with non-flow payload", ctx.Name())
					continue
				}

				// Admission: every already-active flow on this link whose
				// current overall bottleneck is looser
				// than the new share this link is about to offer gets
				// notified — its destination will recompute against the
				// updated LinkShares entry this sets below.
				newShare := cfg.CapacityBps / float64(len(members)+1)
				for id, m := range members {
					notify := m.pkt.BottleneckBps > newShare
					m.pkt.LinkShares[ctx.ID()] = newShare
					if notify {
						ctx.Schedule(m.pkt.Destination(), 0, TagFlowUpdate, flowUpdate{flowID: id, linkID: ctx.ID(), shareBps: newShare})
					}
				}

				fp.LinkShares[ctx.ID()] = newShare
				recomputeBottleneck(fp)
				fp.Traversed = append(fp.Traversed, ctx.ID())
				fp.Cumulative += cfg.PropDelay
				members[fp.PacketID()] = flowMember{pkt: fp}

				dst := end2
				if ev.SrcID == end2 || (cfg.End2Out != 0 && ev.SrcID == cfg.End2Out) {
					dst = end1
				}
				ctx.Schedule(dst, cfg.PropDelay, TagFlowSubmit, fp)

			case tagFlowDeregister:
				flowID, ok := ev.Payload.(int)
				if !ok {
					continue
				}
				delete(members, flowID)
				if len(members) == 0 {
					continue
				}
				newShare := cfg.CapacityBps / float64(len(members))
				for id, m := range members {
					wasBottleneck := m.pkt.BottleneckLink == ctx.ID()
					m.pkt.LinkShares[ctx.ID()] = newShare
					if wasBottleneck && m.pkt.BottleneckBps < newShare {
						ctx.Schedule(m.pkt.Destination(), 0, TagFlowUpdate, flowUpdate{flowID: id, linkID: ctx.ID(), shareBps: newShare})
					}
				}
			}
		}
	})
}

// flowUpdate is FLOW_UPDATE's payload: linkID's share of flowID's
// bandwidth has just changed to shareBps.
type flowUpdate struct {
	flowID   int
	linkID   int
	shareBps float64
}
