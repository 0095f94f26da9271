package sim

import "github.com/sirupsen/logrus"

// enqueuedPacket is what a router hands a scheduler: the packet itself,
// the tag it should keep when eventually forwarded (PKT_FORWARD vs
// JUNK_PKT survives scheduling), and which class it was classified into.
type enqueuedPacket struct {
	pkt   Packet
	tag   Tag
	class int
}

// txDelay returns the serialization delay for sz bytes at baudBps bits
// per second.
func txDelay(sz int, baudBps float64) SimTime {
	if baudBps <= 0 {
		return 0
	}
	return SimTime(float64(sz) * 8 / baudBps)
}

// NewFIFOScheduler registers a work-conserving, single-queue scheduler: it
// serves SCHEDULER_ENQUE arrivals strictly in arrival order at the egress
// link's baud rate, forwarding each to downstream and notifying router
// (the entity that enqueued it) with SCHEDULER_DEQUE once it has gone out.
//
// Service runs off a zero-delay self-tick rather than directly inside the
// enqueue handler: a burst of same-instant enqueues is fully drained into
// the queue before the first packet goes into service, since the kernel's
// FIFO tie-break delivers the tick after every enqueue event already in
// flight at the same instant.
func NewFIFOScheduler(k *Kernel, name string, downstream int, baudBps float64) (int, error) {
	return k.AddEntity(name, func(ctx *Context) {
		var queue []enqueuedPacket
		var routers []int // router to notify, parallel to queue
		tickScheduled := false

		kick := func() {
			if tickScheduled || len(queue) == 0 {
				return
			}
			tickScheduled = true
			ctx.Schedule(ctx.ID(), 0, tagDequeuePacket, nil)
		}

		for {
			ev := ctx.GetNextMatching(func(ev *Event) bool {
				switch ev.Tag {
				case TagSchedulerEnque, tagDequeuePacket, TagEndOfSimulation:
					return true
				}
				return false
			})
			switch ev.Tag {
			case TagEndOfSimulation:
				ctx.Terminate()
				return

			case TagSchedulerEnque:
				ep, ok := ev.Payload.(enqueuedPacket)
				if !ok {
					logrus.Warnf("sim: FIFO scheduler %s got malformed enqueue", ctx.Name())
					continue
				}
				queue = append(queue, ep)
				routers = append(routers, ev.SrcID)
				kick()

			case tagDequeuePacket:
				tickScheduled = false
				if len(queue) == 0 {
					continue
				}
				ep := queue[0]
				queue = queue[1:]
				router := routers[0]
				routers = routers[1:]
				ctx.Pause(txDelay(ep.pkt.Size(), baudBps))
				ctx.Schedule(downstream, 0, ep.tag, ep.pkt)
				ctx.Schedule(router, 0, TagSchedulerDeque, ep.pkt)
				kick()
			}
		}
	})
}
