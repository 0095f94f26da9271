package sim

import (
	"container/heap"
	"fmt"

	"github.com/sirupsen/logrus"
)

// eventHeap is a time-ordered priority queue of future Events, keyed by
// (DeliveryTime, seq) so ties break FIFO — see container/heap's canonical
// IntHeap example for the pattern this follows.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].DeliveryTime != h[j].DeliveryTime {
		return h[i].DeliveryTime < h[j].DeliveryTime
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Kernel is the process-wide discrete-event scheduler: it owns the future
// event queue, the entity registry and name index, and the simulated clock.
// There is no hidden global state — every constructor in this package takes
// a *Kernel explicitly, and there are no process-wide singletons.
type Kernel struct {
	clock        SimTime
	future       eventHeap
	nextEventID  uint64
	nextPacketID int
	nextSeriesID int

	entities []*entityHandle
	byName   map[string]int

	terminated bool
	hasRun     bool

	// TraceFlag enables verbose per-event kernel logging (routers consult
	// their own trace_flag separately; this is the kernel-wide switch).
	TraceFlag bool
}

// NewKernel creates a Kernel with an empty future queue and clock at 0.
func NewKernel() *Kernel {
	return &Kernel{byName: make(map[string]int)}
}

// Clock returns the current simulated time.
func (k *Kernel) Clock() SimTime { return k.clock }

// AddEntity registers a new entity running body, in NEW state. Names must
// be non-empty and globally unique; ids are dense and assigned in
// registration order.
func (k *Kernel) AddEntity(name string, body Body) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("sim: entity name must not be empty")
	}
	if _, exists := k.byName[name]; exists {
		return 0, fmt.Errorf("sim: entity name %q already registered", name)
	}
	id := len(k.entities)
	eh := &entityHandle{
		id:     id,
		name:   name,
		state:  StateNew,
		resume: make(chan *Event),
		yield:  make(chan struct{}),
		body:   body,
	}
	k.entities = append(k.entities, eh)
	k.byName[name] = id
	return id, nil
}

// GetEntityByName returns the id registered under name.
func (k *Kernel) GetEntityByName(name string) (int, bool) {
	id, ok := k.byName[name]
	return id, ok
}

// GetEntityName returns the name registered for id.
func (k *Kernel) GetEntityName(id int) (string, bool) {
	if id < 0 || id >= len(k.entities) {
		return "", false
	}
	return k.entities[id].name, true
}

// EntityState returns the current lifecycle state of id.
func (k *Kernel) EntityState(id int) (EntityState, bool) {
	if id < 0 || id >= len(k.entities) {
		return 0, false
	}
	return k.entities[id].state, true
}

// schedule enqueues an Event from src to dst at clock+delay. Scheduling to
// an unknown entity id, or with a negative delay, is a fatal simulator
// invariant violation.
func (k *Kernel) schedule(src, dst int, delay SimTime, tag Tag, payload any) {
	if delay < 0 {
		logrus.Fatalf("sim: negative delay %v scheduling tag %s from %d to %d", delay, tag, src, dst)
	}
	if dst < 0 || dst >= len(k.entities) {
		logrus.Fatalf("sim: schedule to unknown entity id %d (tag %s)", dst, tag)
	}
	k.nextEventID++
	ev := &Event{
		ID:           k.nextEventID,
		SrcID:        src,
		DstID:        dst,
		DeliveryTime: k.clock + delay,
		Tag:          tag,
		Payload:      payload,
		seq:          k.nextEventID,
	}
	heap.Push(&k.future, ev)
}

// AllocPacketID returns a fresh, kernel-unique packet id.
func (k *Kernel) AllocPacketID() int {
	k.nextPacketID++
	return k.nextPacketID
}

// AllocSeriesID returns a fresh, kernel-unique fragment-series id.
func (k *Kernel) AllocSeriesID() int {
	k.nextSeriesID++
	return k.nextSeriesID
}

// Schedule is the externally-callable form of schedule, for drivers that
// inject the very first events before Start (e.g. workload generators).
func (k *Kernel) Schedule(src, dst int, delay SimTime, tag Tag, payload any) {
	k.schedule(src, dst, delay, tag, payload)
}

// cancelMatching removes every future event addressed to entityID matching
// pred, returning the count removed.
func (k *Kernel) cancelMatching(entityID int, pred Predicate) int {
	kept := k.future[:0]
	removed := 0
	for _, ev := range k.future {
		if ev.DstID == entityID && (pred == nil || pred(ev)) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	k.future = kept
	heap.Init(&k.future)
	return removed
}

func (k *Kernel) allFinished() bool {
	for _, eh := range k.entities {
		if eh.state != StateFinished {
			return false
		}
	}
	return true
}

// runEntity runs eh's Body to completion in its own goroutine, then hands
// control back to the kernel exactly once more to report FINISHED. Because
// the kernel never resumes two entities concurrently (it blocks on yield
// for the whole duration an entity is runnable) at most one goroutine ever
// executes entity logic at a time — the "single-threaded cooperative"
// model is a property of this handoff, not of any lock.
func runEntity(k *Kernel, eh *entityHandle) {
	ctx := &Context{k: k, eh: eh}
	eh.body(ctx)
	eh.state = StateFinished
	eh.yield <- struct{}{}
}

// deliver routes ev to its destination entity's deferred queue and, if
// that entity is currently suspended awaiting a matching event, wakes it
// and blocks until it suspends again (or finishes).
func (k *Kernel) deliver(ev *Event) {
	dst := k.entities[ev.DstID]
	if dst.state == StateFinished {
		logrus.Warnf("sim: event %s for finished entity %q dropped", ev.Tag, dst.name)
		return
	}
	dst.queue.push(ev)
	if !dst.awaiting {
		return
	}
	match := dst.queue.popMatching(dst.pred)
	if match == nil {
		return
	}
	dst.awaiting = false
	dst.resume <- match
	<-dst.yield
}

// Start runs the event loop to completion: spawn every registered entity
// (each run sequentially up to its first suspension point, preserving
// strict single-threaded turn order even during startup), then repeatedly
// pop the earliest future event, advance the clock, deliver it, and give
// the destination entity a chance to progress. Returns when the future
// queue is empty, every entity has FINISHED, or an END_OF_SIMULATION event
// has been delivered. Panics if called twice.
func (k *Kernel) Start() {
	if k.hasRun {
		panic("sim: Kernel.Start called twice")
	}
	k.hasRun = true

	for _, eh := range k.entities {
		eh.state = StateRunning
		go runEntity(k, eh)
		<-eh.yield
	}

	for !k.terminated && !k.allFinished() {
		if len(k.future) == 0 {
			break
		}
		ev := heap.Pop(&k.future).(*Event)
		if ev.DeliveryTime < k.clock {
			logrus.Fatalf("sim: time moved backwards: clock=%v event=%v", k.clock, ev.DeliveryTime)
		}
		k.clock = ev.DeliveryTime
		if k.TraceFlag {
			logrus.Infof("[t=%.6f] %s -> %s: %s", k.clock, nameOr(k, ev.SrcID), nameOr(k, ev.DstID), ev.Tag)
		}
		k.deliver(ev)
		if ev.Tag == TagEndOfSimulation {
			k.terminated = true
		}
	}
}

func nameOr(k *Kernel, id int) string {
	if name, ok := k.GetEntityName(id); ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}
