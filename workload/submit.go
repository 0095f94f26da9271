package workload

import (
	"github.com/krfmo/gridsim/policy"
	"github.com/krfmo/gridsim/sim"
)

// ToRequests turns a parsed trace into policy.Requests ready to be fed
// into an AllocationPolicy, one per job, in trace order. SrcID and DstID
// are both set to hostID: a replayed trace has no notion of a
// counterparty, so callers that need one should rewrite DstID afterwards.
// peRating scales RequestedRuntime into the byte-equivalent size the
// network core schedules work by.
func ToRequests(jobs []Job, hostID int, serviceClass int, peRating float64) []policy.Request {
	requests := make([]policy.Request, 0, len(jobs))
	for _, j := range jobs {
		requests = append(requests, policy.Request{
			ID:           j.JobID,
			SrcID:        hostID,
			DstID:        hostID,
			SizeBytes:    int(j.WorkUnits(peRating)),
			ServiceClass: serviceClass,
			ArrivalTime:  sim.SimTime(j.SubmitTime),
		})
	}
	return requests
}
