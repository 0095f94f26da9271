package sim

import (
	"math/rand"

	"github.com/sirupsen/logrus"
)

// JunkPattern selects how Output's background-traffic generator fans a
// generated tuple's packets out across known destinations.
type JunkPattern int

const (
	// SendAll sends one copy of each generated packet to every known
	// destination.
	SendAll JunkPattern = iota
	// SendOneOnly sends each generated packet to a single destination,
	// chosen uniformly at random per packet.
	SendOneOnly
)

// JunkTuple is one item a background-traffic generator yields: Count
// packets of Size bytes, InterArrival apart, tagged ServiceClass and
// fanned out per Pattern.
type JunkTuple struct {
	InterArrival SimTime
	Size         int
	Count        int
	Pattern      JunkPattern
	ServiceClass int
}

// JunkGenerator yields the next background-traffic tuple; ok is false once
// the generator has nothing further to offer, which stops the loop for
// good (it is never polled again).
type JunkGenerator func() (tuple JunkTuple, ok bool)

// JunkConfig configures Output's optional background-traffic generator:
// Gen is polled for a new JunkTuple whenever the previous one's
// Count packets have all been sent. Destinations lists every entity id
// JUNK_PKT traffic may target; Output never sends junk to itself even if
// it appears in Destinations. RNG supplies SendOneOnly's per-packet
// destination choice and must be supplied whenever Gen is.
type JunkConfig struct {
	Gen          JunkGenerator
	Destinations []int
	RNG          *rand.Rand
}

// PortConfig configures an Output/Input pair's attachment to the network:
// the MTU fragments are cut to, and (for a directly-wired pair with no
// intervening Link) the two endpoints' baud rates, used to compute a
// transmission delay in closed form instead of modeling propagation.
type PortConfig struct {
	MTU int

	// LinkID is the entity id of the SimpleLink or FlowLink this Output
	// hands fragments to; it is used only when HasLink is set. With
	// HasLink false Output delivers directly: it computes a transmission
	// delay itself and schedules straight to the peer Input.
	LinkID    int
	HasLink   bool
	SenderBps float64
	RecvBps   float64

	// Junk configures background-traffic generation; its zero value (nil
	// Gen) means Output never generates junk.
	Junk JunkConfig
}

// junkState is the self-scheduled payload driving Output's background
// traffic loop: sent counts how many of tuple's Count packets have gone
// out so far; once sent == tuple.Count the loop pulls a fresh tuple from
// the generator instead of sending again.
type junkState struct {
	tuple JunkTuple
	sent  int
}

// attachOutput is the payload of the REGISTER_LINK event that binds an
// Output to the link its host hangs off: the link's entity id, MTU and
// baud rate. Outputs are constructed before links exist (entity ids are
// assigned in registration order), so attachment arrives as an event the
// same way a router learns its links.
type attachOutput struct {
	linkID   int
	mtuBytes int
	baudBps  float64
}

// AttachOutput schedules a REGISTER_LINK event binding output to link,
// with mtuBytes the MTU fragments are cut to. Call before k.Start(); the
// kernel's FIFO tie-break guarantees the binding is processed before any
// same-instant SEND_PACKET submission enqueued later.
func AttachOutput(k *Kernel, output, link, mtuBytes int, baudBps float64) {
	k.Schedule(output, output, 0, TagRegisterLink, attachOutput{
		linkID: link, mtuBytes: mtuBytes, baudBps: baudBps,
	})
}

// NewOutput registers an Output entity named name. With a link attached
// (cfg.HasLink at construction, or a later AttachOutput binding),
// fragments go to cfg.LinkID; otherwise Output models direct delivery to
// the envelope's destination, holding each packet for a transmission
// delay computed from the two endpoints' baud rates. If cfg.Junk.Gen is
// set, Output also drives an independent background-traffic loop
// alongside ordinary SEND_PACKET submissions.
func NewOutput(k *Kernel, name string, cfg PortConfig) (int, error) {
	return k.AddEntity(name, func(ctx *Context) {
		if cfg.Junk.Gen != nil {
			ctx.Schedule(ctx.ID(), 0, tagJunkTick, junkState{})
		}
		for {
			ev := ctx.GetNextMatching(func(ev *Event) bool {
				switch ev.Tag {
				case TagSendPacket, TagFlowSubmit, TagRegisterLink, tagJunkTick, TagEndOfSimulation:
					return true
				}
				return false
			})
			switch ev.Tag {
			case TagEndOfSimulation:
				ctx.Terminate()
				return
			case TagRegisterLink:
				ao, ok := ev.Payload.(attachOutput)
				if !ok {
					logrus.Warnf("sim: Output %s got REGISTER_LINK with unrecognised payload %T", ctx.Name(), ev.Payload)
					continue
				}
				cfg.HasLink = true
				cfg.LinkID = ao.linkID
				cfg.MTU = ao.mtuBytes
				cfg.SenderBps = ao.baudBps
			case tagJunkTick:
				st, _ := ev.Payload.(junkState)
				outputJunkTick(ctx, cfg, st)
			case TagSendPacket:
				env, ok := ev.Payload.(DataEnvelope)
				if !ok {
					logrus.Warnf("sim: Output %s got SEND_PACKET with non-envelope payload", ctx.Name())
					continue
				}
				outputSend(ctx, cfg, env)
			case TagFlowSubmit:
				fp, ok := ev.Payload.(*FlowPacket)
				if !ok {
					logrus.Warnf("sim: Output %s got FLOW_SUBMIT with non-flow payload", ctx.Name())
					continue
				}
				if !cfg.HasLink {
					logrus.Warnf("sim: Output %s: flow transport requires a link-attached Output, dropping flow %d", ctx.Name(), fp.PacketID())
					continue
				}
				ctx.Schedule(cfg.LinkID, 0, TagFlowSubmit, fp)
			}
		}
	})
}

// outputJunkTick advances the background-traffic loop by one step: if the
// current tuple is exhausted it pulls a fresh one from cfg.Junk.Gen
// (stopping for good if the generator is dry), otherwise it sends one more
// packet from the current tuple and reschedules itself InterArrival later.
func outputJunkTick(ctx *Context, cfg PortConfig, st junkState) {
	if st.sent >= st.tuple.Count {
		tuple, ok := cfg.Junk.Gen()
		if !ok {
			return
		}
		st = junkState{tuple: tuple}
	}
	sendJunkPacket(ctx, cfg, st.tuple)
	st.sent++
	ctx.Schedule(ctx.ID(), st.tuple.InterArrival, tagJunkTick, st)
}

// sendJunkPacket delivers one JUNK_PKT of tuple.Size bytes to the
// destination(s) tuple.Pattern selects from cfg.Junk.Destinations, via the
// same link-or-direct delivery path ordinary data uses.
func sendJunkPacket(ctx *Context, cfg PortConfig, tuple JunkTuple) {
	candidates := make([]int, 0, len(cfg.Junk.Destinations))
	for _, d := range cfg.Junk.Destinations {
		if d != ctx.ID() {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return
	}

	var dests []int
	switch tuple.Pattern {
	case SendOneOnly:
		idx := cfg.Junk.RNG.Intn(len(candidates))
		dests = candidates[idx : idx+1]
	default:
		dests = candidates
	}

	for _, dst := range dests {
		pkt := &BasePacket{
			ID:           ctx.Kernel().AllocPacketID(),
			ByteSize:     tuple.Size,
			SrcID:        ctx.ID(),
			DstID:        dst,
			ServiceClass: tuple.ServiceClass,
		}
		deliverPacket(ctx, cfg, pkt, TagJunkPkt, dst)
	}
}

// outputSend fragments env into cfg.MTU-sized pieces and hands them to a
// link (PKT_FORWARD) or, with no link attached, computes a transmission
// delay from the two endpoints' baud rates and delivers straight to the
// peer Input: the delay is held at the sender rather than modeled as
// link propagation.
func outputSend(ctx *Context, cfg PortConfig, env DataEnvelope) {
	n := 1
	if cfg.MTU > 0 && env.ByteSize > cfg.MTU {
		n = (env.ByteSize + cfg.MTU - 1) / cfg.MTU
	}
	series := ctx.Kernel().AllocSeriesID()

	for i := 0; i < n; i++ {
		sz := cfg.MTU
		if i == n-1 {
			sz = env.ByteSize - cfg.MTU*(n-1)
		}
		if cfg.MTU <= 0 {
			sz = env.ByteSize
		}
		pkt := &DataPacket{
			BasePacket: BasePacket{
				ID:           ctx.Kernel().AllocPacketID(),
				ByteSize:     sz,
				SrcID:        ctx.ID(),
				DstID:        env.DstID,
				ServiceClass: env.ServiceClass,
				Series:       series,
			},
			SeqNo:         i,
			TotalInSeries: n,
		}
		if i == n-1 {
			pkt.Payload = env.Data
		}

		tag := TagPktForward
		if cfg.HasLink && pkt.Payload == nil && n > 1 {
			tag = TagEmptyPkt
		}
		deliverPacket(ctx, cfg, pkt, tag, env.DstID)
	}
}

// deliverPacket hands pkt to cfg.LinkID tagged tag (if cfg.HasLink) or,
// with no link attached, computes a transmission delay from the two
// endpoints' baud rates and schedules pkt straight to dst: the delay is
// held at the sender rather than modeled as link propagation.
func deliverPacket(ctx *Context, cfg PortConfig, pkt Packet, tag Tag, dst int) {
	if cfg.HasLink {
		ctx.Schedule(cfg.LinkID, 0, tag, pkt)
		return
	}
	bps := cfg.SenderBps
	if cfg.RecvBps > 0 && (bps <= 0 || cfg.RecvBps < bps) {
		bps = cfg.RecvBps
	}
	delay := SimTime(0)
	if bps > 0 {
		delay = SimTime(float64(pkt.Size()) * 8 / bps)
	}
	ctx.Pause(delay)
	ctx.Schedule(dst, 0, tag, pkt)
}

// reassembler accumulates DataPacket fragment sizes keyed by series id
// until the fragment carrying the series' payload arrives.
type reassembler struct {
	pending map[int]int // series id -> bytes accumulated so far
}

func newReassembler() *reassembler {
	return &reassembler{pending: make(map[int]int)}
}

// feed accounts pkt against its series; once the payload-carrying
// fragment arrives it returns that payload together with the series'
// total reassembled byte size. Empty fragments never carry the payload —
// it always rides on the final piece, no matter how many times routers
// along the path re-cut the series to their own egress MTUs — so payload
// presence, not sequence numbering, is what marks a series complete.
func (r *reassembler) feed(pkt *DataPacket) (any, int, bool) {
	total := r.pending[pkt.Series] + pkt.ByteSize
	if pkt.Payload == nil {
		r.pending[pkt.Series] = total
		return nil, 0, false
	}
	delete(r.pending, pkt.Series)
	return pkt.Payload, total, true
}

// NewInput registers an Input entity that reassembles DataPacket fragments
// addressed to it and forwards each completed envelope to sink.
// JUNK_PKT events are dropped silently. A fragment with a nil payload is
// only counted toward its series' size and is not forwarded on its own.
// A ProbePacket is forwarded on to sink as it arrives, so a caller can
// read BottleneckBps off it; its hop records come from the routers it
// crossed, and Input adds no hop record of its own.
//
// Input also owns the destination half of the flow transport: a
// FlowPacket arriving via FLOW_SUBMIT has just reached the end of its
// path (every FlowLink it traverses relays FLOW_SUBMIT onward rather than
// terminating it), so Input starts tracking it and schedules its first
// FLOW_HOLD forecast. FLOW_UPDATE folds elapsed time into RemainingBytes
// at the old bottleneck rate, recomputes the new one from the flow's
// LinkShares, and reschedules FLOW_HOLD. Once FLOW_HOLD fires with the
// transfer actually complete, Input deregisters the flow from every link
// it traversed and forwards the delivered bytes to sink exactly like a
// reassembled DataPacket.
func NewInput(k *Kernel, name string, sink int) (int, error) {
	return k.AddEntity(name, func(ctx *Context) {
		reasm := newReassembler()
		flows := make(map[int]*FlowPacket)

		scheduleHold := func(fp *FlowPacket) {
			if fp.BottleneckBps <= 0 {
				return
			}
			ctx.Schedule(ctx.ID(), SimTime(fp.RemainingBytes*8/fp.BottleneckBps), TagFlowHold, fp.PacketID())
		}

		for {
			ev := ctx.GetNextMatching(func(ev *Event) bool {
				switch ev.Tag {
				case TagPktForward, TagJunkPkt, TagEmptyPkt,
					TagFlowSubmit, TagFlowUpdate, TagFlowHold, TagEndOfSimulation:
					return true
				}
				return false
			})
			if ev.Tag == TagEndOfSimulation {
				ctx.Terminate()
				return
			}
			if ev.Tag == TagJunkPkt {
				// junk traffic is dropped here unconditionally, regardless
				// of payload kind, and is not counted anywhere.
				continue
			}

			switch ev.Tag {
			case TagFlowSubmit:
				fp, ok := ev.Payload.(*FlowPacket)
				if !ok {
					logrus.Warnf("sim: Input %s got FLOW_SUBMIT with non-flow payload", ctx.Name())
					continue
				}
				now := ctx.Kernel().Clock()
				fp.StartTime = now
				fp.LastUpdate = now
				flows[fp.PacketID()] = fp
				scheduleHold(fp)
				continue

			case TagFlowUpdate:
				fu, ok := ev.Payload.(flowUpdate)
				if !ok {
					continue
				}
				fp, tracked := flows[fu.flowID]
				if !tracked {
					// the flow already finished; a stale update on it is
					// simply dropped.
					continue
				}
				fp.Advance(ctx.Kernel().Clock())
				recomputeBottleneck(fp)
				ctx.CancelMatching(MatchTagPayload(TagFlowHold, fu.flowID))
				scheduleHold(fp)
				continue

			case TagFlowHold:
				flowID, ok := ev.Payload.(int)
				if !ok {
					continue
				}
				fp, tracked := flows[flowID]
				if !tracked {
					continue
				}
				fp.Advance(ctx.Kernel().Clock())
				if !fp.Done() {
					scheduleHold(fp)
					continue
				}
				delete(flows, flowID)
				for _, linkID := range fp.Traversed {
					ctx.Schedule(linkID, 0, tagFlowDeregister, flowID)
				}
				ctx.Schedule(sink, 0, TagInfopktSubmit, DataEnvelope{
					ByteSize:     fp.TotalBytes,
					DstID:        fp.Destination(),
					ServiceClass: fp.Class(),
				})
				continue
			}

			switch pkt := ev.Payload.(type) {
			case *DataPacket:
				if payload, total, done := reasm.feed(pkt); done {
					ctx.Schedule(sink, 0, TagInfopktSubmit, DataEnvelope{
						Data:         payload,
						ByteSize:     total,
						DstID:        pkt.DstID,
						ServiceClass: pkt.ServiceClass,
					})
				}
			case *ProbePacket:
				ctx.Schedule(sink, 0, TagInfopktReturn, pkt)
			default:
				logrus.Warnf("sim: Input %s got %s with unrecognised payload %T", ctx.Name(), ev.Tag, ev.Payload)
			}
		}
	})
}
