package sim

// ReservationStatus is the lifecycle state of an advance reservation.
type ReservationStatus int

const (
	ReservationUnknown ReservationStatus = iota
	ReservationNotCommitted
	ReservationCommitted
	ReservationInProgress
	ReservationFinished
	ReservationExpired
	ReservationCancelled
	ReservationFailed
)

func (s ReservationStatus) String() string {
	switch s {
	case ReservationUnknown:
		return "UNKNOWN"
	case ReservationNotCommitted:
		return "NOT_COMMITTED"
	case ReservationCommitted:
		return "COMMITTED"
	case ReservationInProgress:
		return "IN_PROGRESS"
	case ReservationFinished:
		return "FINISHED"
	case ReservationExpired:
		return "EXPIRED"
	case ReservationCancelled:
		return "CANCELLED"
	case ReservationFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Reservation is the data contract carried by the reserved tag range
// (>= 5000): a request to hold NumUnits of ResourceID for [Start, Start+
// Duration), and its eventual disposition. IDs are monotonic and
// process-wide (a caller-owned counter mints them — the Kernel itself
// does not, since reservations are owned by their
// originator and by the allocation policy, not by the event kernel). The
// negotiation protocol itself (retries, counter-offers, backfilling
// against it) is out of scope here and lives in whatever policy code
// issues these events; the core only routes the data contract.
type Reservation struct {
	ID             int
	UserID         int
	ResourceID     int
	StartTime      SimTime
	Duration       SimTime
	NumUnits       int
	Status         ReservationStatus
	SubmissionTime SimTime

	// Options carries policy-specific negotiation parameters (e.g. a
	// backfill flexibility window); nil when the issuing policy has none.
	Options any
}

// FreeWindow is one interval of unreserved capacity on a resource, as
// returned by a RESERVATION_LIST_FREE_TIME query.
type FreeWindow struct {
	Start SimTime
	End   SimTime
}
