package sim

import "github.com/sirupsen/logrus"

// scfqWaiting is one packet sitting in the SCFQ ready queue, tagged with
// the virtual finish time it was assigned on arrival.
type scfqWaiting struct {
	enqueuedPacket
	router int
	finish float64
	seq    int
}

// scfqFlowKey identifies one (source, destination, class) flow for the
// purpose of SCFQ's per-flow virtual-clock watermark: two different
// (src,dst) pairs sharing a class must not share a last_flow_finish, or
// one flow's backlog would unfairly inflate another's finish times.
type scfqFlowKey struct {
	src, dst, class int
}

// NewSCFQScheduler registers a self-clocked fair queueing scheduler
// (Golestani): each class c has a weight weights[c] and a virtual finish
// time F; a packet of size sz arriving to a non-empty (src,dst,class)
// flow gets F = prevF + sz/weight, and to a newly-idle flow gets
// F = virtualClock + sz/weight. The packet with the smallest F across
// every flow is served next (ties broken in enqueue order); virtualClock
// tracks the finish time of whichever packet is currently being served,
// which is what makes the clock self- (not externally) timed.
//
// Service runs off a zero-delay self-tick so every same-instant enqueue
// already in flight lands in the ready queue before the next packet is
// chosen — picking the smallest F over the full backlog rather than over
// whichever arrival happened to be processed first.
//
// A class index outside [0, len(weights)) is clamped to 0 with a warning
// rather than rejected — misclassification shouldn't stall a link.
//
// weights should all be positive; NewSCFQScheduler clamps any class whose
// weight is <= 0 up to 1 and logs a warning, since a zero or negative
// weight would imply an unserviceable class.
func NewSCFQScheduler(k *Kernel, name string, downstream int, baudBps float64, weights []float64) (int, error) {
	w := make([]float64, len(weights))
	copy(w, weights)
	for i, wt := range w {
		if wt <= 0 {
			logrus.Warnf("sim: SCFQ scheduler %s: class %d has non-positive weight %v, using 1", name, i, wt)
			w[i] = 1
		}
	}
	lastF := make(map[scfqFlowKey]float64)

	return k.AddEntity(name, func(ctx *Context) {
		var waiting []scfqWaiting
		var virtualClock float64
		nextSeq := 0
		tickScheduled := false

		classWeight := func(class int) (int, float64) {
			if class < 0 || class >= len(w) {
				logrus.Warnf("sim: SCFQ scheduler %s: class %d out of range, clamped to 0", ctx.Name(), class)
				class = 0
			}
			return class, w[class]
		}

		kick := func() {
			if tickScheduled || len(waiting) == 0 {
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
					logrus.Warnf("sim: SCFQ scheduler %s got malformed enqueue", ctx.Name())
					continue
				}
				class, weight := classWeight(ep.class)
				key := scfqFlowKey{src: ep.pkt.Source(), dst: ep.pkt.Destination(), class: class}
				base := virtualClock
				if f, ok := lastF[key]; ok && f > base {
					base = f
				}
				finish := base + float64(ep.pkt.Size())/weight
				lastF[key] = finish

				waiting = append(waiting, scfqWaiting{enqueuedPacket: ep, router: ev.SrcID, finish: finish, seq: nextSeq})
				nextSeq++
				kick()

			case tagDequeuePacket:
				tickScheduled = false
				if len(waiting) == 0 {
					continue
				}
				best := 0
				for i := 1; i < len(waiting); i++ {
					if waiting[i].finish < waiting[best].finish ||
						(waiting[i].finish == waiting[best].finish && waiting[i].seq < waiting[best].seq) {
						best = i
					}
				}
				ep := waiting[best]
				waiting = append(waiting[:best], waiting[best+1:]...)

				virtualClock = ep.finish
				ctx.Pause(txDelay(ep.pkt.Size(), baudBps))
				ctx.Schedule(downstream, 0, ep.tag, ep.pkt)
				ctx.Schedule(ep.router, 0, TagSchedulerDeque, ep.pkt)
				kick()
			}
		}
	})
}
