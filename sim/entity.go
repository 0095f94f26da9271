package sim

// EntityState is the lifecycle state of a simulation entity.
type EntityState int

const (
	StateNew EntityState = iota
	StateRunning
	StateFinished
)

func (s EntityState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateRunning:
		return "RUNNING"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Body is the cooperative step routine a registered entity runs. It
// receives a Context through which it may schedule events, suspend itself
// waiting for the next (matching) event, pause for a delta, or terminate.
// Body runs to completion of the current step between suspension points;
// it may only suspend inside ctx.GetNext, ctx.GetNextMatching and
// ctx.Pause, matching the kernel's single-threaded cooperative model.
type Body func(ctx *Context)

// deferredQueue is the per-entity inbox of delivered-but-unconsumed events.
// It is exclusively owned by its entity: only the entity's own goroutine
// scans or removes from it, and only the kernel (while the entity is
// suspended) appends to it. That discipline — never touched by two
// goroutines at once — is what makes it safe without a mutex.
type deferredQueue struct {
	events []*Event
}

func (q *deferredQueue) push(ev *Event) {
	q.events = append(q.events, ev)
}

// popMatching scans from the front and removes+returns the first event
// matching pred, leaving the relative order of the rest untouched.
func (q *deferredQueue) popMatching(pred Predicate) *Event {
	for i, ev := range q.events {
		if pred == nil || pred(ev) {
			q.events = append(q.events[:i], q.events[i+1:]...)
			return ev
		}
	}
	return nil
}

// entityHandle is the kernel's bookkeeping record for a registered entity.
// Ports, Links, Routers and Schedulers are all entities: a single
// homogeneous entity kind whose behavior is supplied as a Body closure.
type entityHandle struct {
	id    int
	name  string
	state EntityState
	queue deferredQueue

	// resume hands the running goroutine its next (matching) event; a nil
	// payload-less wakeup (e.g. from Pause) still flows through here.
	resume chan *Event
	// yield is signalled by the entity's goroutine every time it suspends
	// (or finishes), handing control back to the kernel.
	yield chan struct{}

	// awaiting / pred describe what GetNext/GetNextMatching is currently
	// blocked on; the kernel consults this to decide whether to wake the
	// entity after routing it a new event.
	awaiting bool
	pred     Predicate

	body Body
}

// Context is the handle an entity's Body uses to interact with the kernel.
// A Context is only ever used by the single goroutine running its Body.
type Context struct {
	k  *Kernel
	eh *entityHandle
}

// ID returns this entity's kernel-assigned id.
func (c *Context) ID() int { return c.eh.id }

// Name returns this entity's registered name.
func (c *Context) Name() string { return c.eh.name }

// Kernel returns the owning Kernel, for components (routers, links,
// schedulers) that need to look up peer entities by name or id.
func (c *Context) Kernel() *Kernel { return c.k }

// Schedule enqueues an Event from this entity to dst at clock+delay. delay
// must be >= 0. Scheduling to an unknown entity id is a fatal simulator
// invariant violation.
func (c *Context) Schedule(dst int, delay SimTime, tag Tag, payload any) {
	c.k.schedule(c.eh.id, dst, delay, tag, payload)
}

// ScheduleByName is Schedule with symbolic addressing.
func (c *Context) ScheduleByName(dstName string, delay SimTime, tag Tag, payload any) {
	id, ok := c.k.GetEntityByName(dstName)
	if !ok {
		panic("sim: Schedule to unknown entity name " + dstName)
	}
	c.Schedule(id, delay, tag, payload)
}

// GetNext suspends the entity until the kernel has any event for it.
func (c *Context) GetNext() *Event {
	return c.GetNextMatching(nil)
}

// GetNextMatching suspends the entity until an event matching pred is
// available, scanning the deferred queue from the front first. Non-matching
// events already in the queue are left in place.
func (c *Context) GetNextMatching(pred Predicate) *Event {
	if ev := c.eh.queue.popMatching(pred); ev != nil {
		return ev
	}
	c.eh.awaiting = true
	c.eh.pred = pred
	c.eh.yield <- struct{}{}
	ev := <-c.eh.resume
	c.eh.awaiting = false
	c.eh.pred = nil
	return ev
}

// Pause suspends the entity for delta simulated seconds by scheduling an
// internal self wake-up event and waiting for it.
func (c *Context) Pause(delta SimTime) {
	c.Schedule(c.eh.id, delta, tagPauseWakeup, nil)
	c.GetNextMatching(MatchTag(tagPauseWakeup))
}

// Terminate marks the entity FINISHED. Body should return immediately
// after calling Terminate.
func (c *Context) Terminate() {
	c.eh.state = StateFinished
}

// CancelMatching removes every future event addressed to this entity that
// matches pred, returning the count removed. Used by Input's flow
// forecast revision (on FLOW_UPDATE) to cancel a stale FLOW_HOLD before
// rescheduling.
func (c *Context) CancelMatching(pred Predicate) int {
	return c.k.cancelMatching(c.eh.id, pred)
}
