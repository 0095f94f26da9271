package sim

import "github.com/sirupsen/logrus"

// LinkConfig parametrises a SimpleLink: its one-way propagation delay and
// the baud rate used to compute a probe's per-hop bottleneck contribution.
// A SimpleLink can have any number of packets in flight at once, each
// delayed independently by the same constant PropDelay; because the delay
// is constant, packets that enter in order leave in order too — the
// kernel's FIFO tie-break among same-time events is what keeps them from
// ever actually overtaking each other.
//
// End1Out/End2Out are the output-port entity ids of each side, for sides
// that split their input and output across two entities (a host's Input
// and Output). A zero value means the side has no separate output port:
// routers use their own id for both directions, so only the input-side
// endpoint is recorded for them.
type LinkConfig struct {
	PropDelay SimTime
	BaudRate  float64
	End1Out   int
	End2Out   int
}

// NewSimpleLink registers a bidirectional point-to-point link between two
// endpoints end1 and end2 (their input-port ids). A packet arriving tagged
// PKT_FORWARD, EMPTY_PKT or JUNK_PKT is propagated to the far side after
// PropDelay; the tag is preserved across the hop so a junk packet stays
// junk and an empty fragment stays empty. ProbePacket hops are not
// recorded here — that happens at the router, which knows the full path —
// a link only delays and forwards.
//
// Direction is resolved from the delivering event's SrcID: a packet sent
// by side 2 (its input id end2, or its separate output port cfg.End2Out)
// is delivered to end1, anything else to end2. When a scheduler sits
// between a router and this link (as topology.go wires one per link), the
// scheduler itself is the observed sender, so in practice such a link
// only forwards end1 -> end2; give it end1/end2 in the direction
// scheduled traffic actually flows.
func NewSimpleLink(k *Kernel, name string, end1, end2 int, cfg LinkConfig) (int, error) {
	return k.AddEntity(name, func(ctx *Context) {
		for {
			ev := ctx.GetNextMatching(func(ev *Event) bool {
				switch ev.Tag {
				case TagPktForward, TagEmptyPkt, TagJunkPkt, tagLinkPropagate, TagEndOfSimulation:
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
			case tagLinkPropagate:
				fwd := ev.Payload.(linkDelivery)
				ctx.Schedule(fwd.dst, 0, fwd.tag, fwd.pkt)
			case TagPktForward, TagEmptyPkt, TagJunkPkt:
				pkt, ok := ev.Payload.(Packet)
				if !ok {
					logrus.Warnf("sim: link %s got %s with non-packet payload", ctx.Name(), ev.Tag)
					continue
				}
				dst := end2
				if ev.SrcID == end2 || (cfg.End2Out != 0 && ev.SrcID == cfg.End2Out) {
					dst = end1
				}
				ctx.Schedule(ctx.ID(), cfg.PropDelay, tagLinkPropagate, linkDelivery{dst: dst, tag: ev.Tag, pkt: pkt})
			}
		}
	})
}

// linkDelivery is the internal payload a link schedules to itself to
// model propagation delay before handing a packet to the far endpoint.
type linkDelivery struct {
	dst int
	tag Tag
	pkt Packet
}
