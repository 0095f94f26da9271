package workload

import (
	"testing"

	"github.com/krfmo/gridsim/policy"
	"github.com/krfmo/gridsim/sim"
	"github.com/stretchr/testify/assert"
)

func TestToRequests_ConvertsJobsInTraceOrder(t *testing.T) {
	// GIVEN two parsed jobs
	jobs := []Job{
		{JobID: 1, SubmitTime: 0, RequestedRuntime: 10},
		{JobID: 2, SubmitTime: 5, RequestedRuntime: 20},
	}

	// WHEN converted to requests against host 3, service class 1, PE rating 2
	reqs := ToRequests(jobs, 3, 1, 2)

	// THEN each becomes a Request with size scaled by the PE rating
	assert.Equal(t, []policy.Request{
		{ID: 1, SrcID: 3, DstID: 3, SizeBytes: 20, ServiceClass: 1, ArrivalTime: sim.SimTime(0)},
		{ID: 2, SrcID: 3, DstID: 3, SizeBytes: 40, ServiceClass: 1, ArrivalTime: sim.SimTime(5)},
	}, reqs)
}
