package sim

import "github.com/sirupsen/logrus"

// settleDelay is how long a router waits after advertising before acting
// on anything else, giving a flooded distance-vector update time to reach
// every router before a second round starts layering on top of it.
const settleDelay SimTime = 5

// maxHopCount is the RIP-style "infinity" for this router's distance
// vector: a route whose hop count would exceed it is treated as
// unreachable rather than installed.
const maxHopCount = 15

// routeEntry is one destination's best known route.
type routeEntry struct {
	cost       int
	egressLink int
}

// registerLink is the payload of a REGISTER_LINK event: it tells a router
// about a link to a neighboring router.
type registerLink struct {
	linkID       int
	peerRouterID int
	baudBps      float64
	mtuBytes     int
	schedulerID  int
}

// registerResource is the payload of REGISTER_RESOURCE /
// REGISTER_RESOURCE_AR: it attaches a directly-reachable host to a router
// over a link. The AR variant additionally marks the resource as
// reservation-capable; the router records that flag per host.
type registerResource struct {
	linkID      int
	hostID      int
	baudBps     float64
	mtuBytes    int
	schedulerID int
	reservable  bool
}

// routerAd is the payload of a ROUTER_AD event: the sender's distance
// vector, destination host id to hop count.
type routerAd struct {
	from   int
	vector map[int]int
}

// Router is the entity constructor for a distance-vector router: it
// learns reachability to directly attached hosts and to everything its
// neighbors advertise, forwards PKT_FORWARD/JUNK_PKT packets along the
// shortest known route, and records a ProbePacket's hop as it passes
// through. Attach hosts and neighbor links with AttachHost/AttachRouter
// (or by scheduling REGISTER_RESOURCE/REGISTER_LINK directly) before
// Start; routes converge, via flooded ROUTER_AD, within a few multiples
// of settleDelay. metrics may be nil; when given, a packet dropped for
// lack of a route is tallied into it.
func NewRouter(k *Kernel, name string, metrics *Metrics) (int, error) {
	return k.AddEntity(name, func(ctx *Context) {
		routes := make(map[int]routeEntry)
		neighbors := make(map[int]int)  // peer router id -> link id
		schedulers := make(map[int]int) // link id -> scheduler id
		linkBaud := make(map[int]float64)
		linkMTU := make(map[int]int)
		reservable := make(map[int]bool)

		// advertise floods this router's current distance vector straight to
		// every neighboring router. ROUTER_AD is a control-plane message
		// addressed router-to-router rather than queued through the data-
		// plane link and its scheduler, the same way RIP updates bypass
		// whatever forwarding delay they're advertising about.
		advertise := func() {
			vector := make(map[int]int, len(routes))
			for dest, re := range routes {
				vector[dest] = re.cost
			}
			for peerRouterID := range neighbors {
				ctx.Schedule(peerRouterID, 0, TagRouterAd, routerAd{from: ctx.ID(), vector: vector})
			}
		}

		forward := func(ev *Event) {
			pkt, ok := ev.Payload.(Packet)
			if !ok {
				logrus.Warnf("sim: router %s got %s with non-packet payload", ctx.Name(), ev.Tag)
				return
			}
			re, known := routes[pkt.Destination()]
			if !known {
				logrus.Warnf("sim: router %s: no route to %d, dropping %s", ctx.Name(), pkt.Destination(), ev.Tag)
				if metrics != nil {
					metrics.RecordDrop()
				}
				return
			}
			schedulerID, ok := schedulers[re.egressLink]
			if !ok {
				// the egress scheduler hasn't registered yet; retry shortly.
				ctx.Schedule(ctx.ID(), 0.001, ev.Tag, ev.Payload)
				return
			}
			if probe, ok := pkt.(*ProbePacket); ok {
				now := ctx.Kernel().Clock()
				probe.RecordHop(ctx.ID(), now, now, linkBaud[re.egressLink])
			}
			if fp, ok := pkt.(*FlowPacket); ok {
				// flow-level transport bypasses packet scheduling entirely:
				// schedulerID here is a FlowLink, admitted to directly with
				// FLOW_SUBMIT rather than enqueued like a scheduled packet.
				ctx.Schedule(schedulerID, 0, TagFlowSubmit, fp)
				return
			}
			for _, frag := range fragmentForLinkMTU(pkt, linkMTU[re.egressLink]) {
				ctx.Schedule(schedulerID, 0, TagSchedulerEnque, enqueuedPacket{pkt: frag, tag: ev.Tag, class: frag.Class()})
			}
		}

		for {
			ev := ctx.GetNextMatching(func(ev *Event) bool {
				switch ev.Tag {
				case TagRegisterLink, TagRegisterResource, TagRegisterResourceAR,
					TagRouterAd, TagPktForward, TagEmptyPkt, TagJunkPkt, TagFlowSubmit, TagSchedulerDeque, TagEndOfSimulation:
					return true
				}
				return false
			})

			switch ev.Tag {
			case TagEndOfSimulation:
				for _, sid := range schedulers {
					ctx.Schedule(sid, 0, TagEndOfSimulation, nil)
				}
				ctx.Terminate()
				return

			case TagRegisterLink:
				rl := ev.Payload.(registerLink)
				neighbors[rl.peerRouterID] = rl.linkID
				linkBaud[rl.linkID] = rl.baudBps
				linkMTU[rl.linkID] = rl.mtuBytes
				if rl.schedulerID != 0 {
					schedulers[rl.linkID] = rl.schedulerID
				}
				advertise()
				ctx.Pause(settleDelay)

			case TagRegisterResource, TagRegisterResourceAR:
				rr := ev.Payload.(registerResource)
				linkBaud[rr.linkID] = rr.baudBps
				linkMTU[rr.linkID] = rr.mtuBytes
				if rr.schedulerID != 0 {
					schedulers[rr.linkID] = rr.schedulerID
				}
				reservable[rr.hostID] = rr.reservable
				routes[rr.hostID] = routeEntry{cost: 0, egressLink: rr.linkID}
				advertise()
				ctx.Pause(settleDelay)

			case TagRouterAd:
				ad := ev.Payload.(routerAd)
				linkID, ok := neighbors[ad.from]
				if !ok {
					logrus.Warnf("sim: router %s got ROUTER_AD from unknown neighbor %d", ctx.Name(), ad.from)
					continue
				}
				changed := false
				for dest, peerCost := range ad.vector {
					newCost := peerCost + 1
					if newCost > maxHopCount {
						continue
					}
					existing, has := routes[dest]
					if !has || newCost < existing.cost {
						routes[dest] = routeEntry{cost: newCost, egressLink: linkID}
						changed = true
					}
				}
				if changed {
					advertise()
					ctx.Pause(settleDelay)
				}

			case TagPktForward, TagEmptyPkt, TagJunkPkt, TagFlowSubmit:
				forward(ev)

			case TagSchedulerDeque:
				// bookkeeping hook only; nothing to do once a scheduler
				// confirms a packet left the egress link.
			}
		}
	})
}

// AttachRouter schedules a REGISTER_LINK event installing a neighbor
// relationship from router to peerRouter over link, with scheduler as the
// egress scheduler router should hand link-bound traffic to and mtuBytes
// the link's MTU (0 means "no re-fragmentation at this hop"). Call this
// before k.Start(); it is not meaningful once the simulation is running.
func AttachRouter(k *Kernel, router, peerRouter, link, scheduler int, baudBps float64, mtuBytes int) {
	k.Schedule(router, router, 0, TagRegisterLink, registerLink{
		linkID: link, peerRouterID: peerRouter, baudBps: baudBps, mtuBytes: mtuBytes, schedulerID: scheduler,
	})
}

// AttachHost schedules a REGISTER_RESOURCE (or, if reservable, a
// REGISTER_RESOURCE_AR) event attaching host to router over link, with
// mtuBytes the link's MTU (0 means "no re-fragmentation at this hop").
func AttachHost(k *Kernel, router, host, link, scheduler int, baudBps float64, mtuBytes int, reservable bool) {
	tag := TagRegisterResource
	if reservable {
		tag = TagRegisterResourceAR
	}
	k.Schedule(router, router, 0, tag, registerResource{
		linkID: link, hostID: host, baudBps: baudBps, mtuBytes: mtuBytes, schedulerID: scheduler, reservable: reservable,
	})
}

// fragmentForLinkMTU splits pkt into ceil(size/mtu) pieces when it exceeds
// the egress link's MTU: every fragment but the last carries a nil
// payload and a reduced size; all share the original packet's id and series
// so the remote Input's reassembler treats them as one stream. mtu <= 0
// means the link has no configured MTU and pkt passes through whole.
// ProbePacket and FlowPacket are never split here: a probe's identity is its
// single path measurement, and a flow is carried by the flow-level
// transport, not packet fragmentation.
func fragmentForLinkMTU(pkt Packet, mtu int) []Packet {
	if mtu <= 0 || pkt.Size() <= mtu {
		return []Packet{pkt}
	}
	dp, ok := pkt.(*DataPacket)
	if !ok {
		return []Packet{pkt}
	}
	n := (dp.Size() + mtu - 1) / mtu
	frags := make([]Packet, n)
	for i := 0; i < n; i++ {
		sz := mtu
		if i == n-1 {
			sz = dp.Size() - mtu*(n-1)
		}
		frag := &DataPacket{
			BasePacket:    dp.BasePacket,
			SeqNo:         dp.SeqNo,
			TotalInSeries: dp.TotalInSeries,
		}
		frag.ByteSize = sz
		if i == n-1 {
			frag.Payload = dp.Payload
		}
		frags[i] = frag
	}
	return frags
}
