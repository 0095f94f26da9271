package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// rateQueued is one packet waiting in a rate scheduler's per-class
// sub-queue or shared output queue, paired with the router to notify on
// SCHEDULER_DEQUE.
type rateQueued struct {
	ep     enqueuedPacket
	router int
}

// rateSubQueue is one class's private pacing queue: packets drain from it
// one at a time, each after a delay of size*8/rateBps on its own
// INTERNAL_DEQUEUE timer, independent of every other class's occupancy
// and of the shared output queue below it. That non-work-conserving
// behavior is the point — it's what lets a topology give, say, a
// control-traffic class a guaranteed ceiling independent of how much
// best-effort traffic is also queued.
type rateSubQueue struct {
	queue    []rateQueued
	rateBps  float64
	draining bool
}

// NewRateScheduler registers a rate-controlled scheduler: one
// sub-queue per class, paced at ratesPct[c]% of baudBps via its own
// INTERNAL_DEQUEUE timer, feeding a single shared output queue that in
// turn serializes onto the egress link at the link's full baudBps via
// DEQUEUE_PACKET. ratesPct must sum to at most 100.
func NewRateScheduler(k *Kernel, name string, downstream int, baudBps float64, ratesPct []float64) (int, error) {
	sum := 0.0
	for _, p := range ratesPct {
		sum += p
	}
	if sum > 100 {
		return 0, fmt.Errorf("sim: rate scheduler %s: class rates sum to %.2f%%, exceeds 100%%", name, sum)
	}

	return k.AddEntity(name, func(ctx *Context) {
		subs := make([]*rateSubQueue, len(ratesPct))
		for i, p := range ratesPct {
			subs[i] = &rateSubQueue{rateBps: baudBps * p / 100}
		}
		var output []rateQueued
		outputBusy := false

		// drainSub starts class's INTERNAL_DEQUEUE timer if it isn't
		// already running and there's something waiting to pace out.
		drainSub := func(class int) {
			sq := subs[class]
			if sq.draining || len(sq.queue) == 0 {
				return
			}
			sq.draining = true
			head := sq.queue[0]
			ctx.Schedule(ctx.ID(), txDelay(head.ep.pkt.Size(), sq.rateBps), tagInternalDequeue, class)
		}

		// drainOutput starts the shared DEQUEUE_PACKET timer if it isn't
		// already running and the output queue is non-empty.
		drainOutput := func() {
			if outputBusy || len(output) == 0 {
				return
			}
			outputBusy = true
			head := output[0]
			ctx.Schedule(ctx.ID(), txDelay(head.ep.pkt.Size(), baudBps), tagDequeuePacket, nil)
		}

		for {
			ev := ctx.GetNextMatching(func(ev *Event) bool {
				switch ev.Tag {
				case TagSchedulerEnque, tagInternalDequeue, tagDequeuePacket, TagEndOfSimulation:
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
					logrus.Warnf("sim: rate scheduler %s got malformed enqueue", ctx.Name())
					continue
				}
				class := ep.class
				if class < 0 || class >= len(subs) {
					logrus.Warnf("sim: rate scheduler %s: class %d out of range, clamped to 0", ctx.Name(), class)
					class = 0
				}
				subs[class].queue = append(subs[class].queue, rateQueued{ep: ep, router: ev.SrcID})
				drainSub(class)

			case tagInternalDequeue:
				class := ev.Payload.(int)
				sq := subs[class]
				sq.draining = false
				head := sq.queue[0]
				sq.queue = sq.queue[1:]
				wasEmpty := len(output) == 0
				output = append(output, head)
				if wasEmpty {
					drainOutput()
				}
				drainSub(class)

			case tagDequeuePacket:
				outputBusy = false
				head := output[0]
				output = output[1:]
				ctx.Schedule(downstream, 0, head.ep.tag, head.ep.pkt)
				ctx.Schedule(head.router, 0, TagSchedulerDeque, head.ep.pkt)
				drainOutput()
			}
		}
	})
}
