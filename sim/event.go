package sim

// SimTime is simulated, monotonically non-decreasing time in seconds.
type SimTime float64

// Tag identifies the kind of an Event (and, for packets, the kind of a
// Packet) from a small closed set. Simulation-private tags used to drive
// internal timers (pauses, scheduler self-wakeups) live past the reserved
// gap below reservationTagBase.
type Tag int

const (
	TagNone Tag = iota

	TagEndOfSimulation
	TagRegisterLink
	TagRegisterResource
	TagRegisterResourceAR
	TagScheduleNow
	TagPktForward
	TagJunkPkt
	TagEmptyPkt
	TagInfopktSubmit
	TagInfopktReturn
	TagSchedulerEnque
	TagSchedulerDeque
	TagRouterAd
	TagInsignificant
	TagSendPacket
	TagFlowSubmit
	TagFlowHold
	TagFlowUpdate

	// Internal, implementation-private tags. These never appear on the
	// wire; they only drive an entity's own timers.
	tagPauseWakeup
	tagInternalDequeue
	tagDequeuePacket
	tagLinkPropagate
	tagRouterSettle
	tagJunkTick
	tagFlowDeregister

	// reservationTagBase is the first tag in the range reserved for
	// advance-reservation protocol messages.
	reservationTagBase Tag = 5000
)

// Reservation protocol tags, offset from reservationTagBase.
const (
	TagReservationCreate Tag = reservationTagBase + iota
	TagReservationCancel
	TagReservationModify
	TagReservationStatus
	TagReservationCommit
	TagReservationListFreeTime
)

func (t Tag) String() string {
	switch t {
	case TagEndOfSimulation:
		return "END_OF_SIMULATION"
	case TagRegisterLink:
		return "REGISTER_LINK"
	case TagRegisterResource:
		return "REGISTER_RESOURCE"
	case TagRegisterResourceAR:
		return "REGISTER_RESOURCE_AR"
	case TagScheduleNow:
		return "SCHEDULE_NOW"
	case TagPktForward:
		return "PKT_FORWARD"
	case TagJunkPkt:
		return "JUNK_PKT"
	case TagEmptyPkt:
		return "EMPTY_PKT"
	case TagInfopktSubmit:
		return "INFOPKT_SUBMIT"
	case TagInfopktReturn:
		return "INFOPKT_RETURN"
	case TagSchedulerEnque:
		return "SCHEDULER_ENQUE"
	case TagSchedulerDeque:
		return "SCHEDULER_DEQUE"
	case TagRouterAd:
		return "ROUTER_AD"
	case TagInsignificant:
		return "INSIGNIFICANT"
	case TagSendPacket:
		return "SEND_PACKET"
	case TagFlowSubmit:
		return "FLOW_SUBMIT"
	case TagFlowHold:
		return "FLOW_HOLD"
	case TagFlowUpdate:
		return "FLOW_UPDATE"
	case tagPauseWakeup:
		return "internal.PAUSE_WAKEUP"
	case tagInternalDequeue:
		return "internal.INTERNAL_DEQUEUE"
	case tagDequeuePacket:
		return "internal.DEQUEUE_PACKET"
	case tagLinkPropagate:
		return "internal.LINK_PROPAGATE"
	case tagRouterSettle:
		return "internal.ROUTER_SETTLE"
	case tagJunkTick:
		return "internal.JUNK_TICK"
	case tagFlowDeregister:
		return "internal.FLOW_DEREGISTER"
	case TagReservationCreate:
		return "RESERVATION_CREATE"
	case TagReservationCancel:
		return "RESERVATION_CANCEL"
	case TagReservationModify:
		return "RESERVATION_MODIFY"
	case TagReservationStatus:
		return "RESERVATION_STATUS"
	case TagReservationCommit:
		return "RESERVATION_COMMIT"
	case TagReservationListFreeTime:
		return "RESERVATION_LIST_FREE_TIME"
	default:
		return "UNKNOWN"
	}
}

// Event is an immutable (post-enqueue) record routed by the kernel from a
// source entity to a destination entity at a given simulated delivery time.
// Payload is a variant: nil, a Packet, a Flow, an int (IntegerId), a
// DataEnvelope, or a policy/reservation-specific payload. Downstream code
// dispatches on Tag and type-switches on Payload.
type Event struct {
	ID           uint64
	SrcID        int
	DstID        int
	DeliveryTime SimTime
	Tag          Tag
	Payload      any

	// seq is the enqueue sequence number; it breaks ties between events
	// with identical DeliveryTime in FIFO (enqueue) order. It is distinct
	// from ID only in that ID is also exposed to callers as a stable
	// handle, while seq is purely an ordering key.
	seq uint64
}

// DataEnvelope is the application-level payload Output packetises.
type DataEnvelope struct {
	Data         any
	ByteSize     int
	DstID        int
	ServiceClass int
}

// Predicate is an arbitrary boolean test over an event's tag and payload,
// used by GetNextMatching and by selective cancellation.
type Predicate func(ev *Event) bool

// MatchTag returns a Predicate that matches events with the given tag.
func MatchTag(tag Tag) Predicate {
	return func(ev *Event) bool { return ev.Tag == tag }
}

// MatchTagPayload returns a Predicate that matches events with the given tag
// whose payload equals want (compared with ==; payload must be comparable).
func MatchTagPayload(tag Tag, want any) Predicate {
	return func(ev *Event) bool { return ev.Tag == tag && ev.Payload == want }
}
