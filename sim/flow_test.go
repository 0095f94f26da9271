package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeBottleneck_PicksMinimumAcrossLinks(t *testing.T) {
	// GIVEN a flow holding shares on three links
	fp := NewFlowPacket(1, 10, 20, 100, 0)
	fp.LinkShares[101] = 5_000_000
	fp.LinkShares[102] = 1_000_000
	fp.LinkShares[103] = 2_000_000

	// WHEN its bottleneck is recomputed
	recomputeBottleneck(fp)

	// THEN it picks the slowest link, not the most recently added one
	assert.Equal(t, 1_000_000.0, fp.BottleneckBps)
	assert.Equal(t, 102, fp.BottleneckLink)
}

func TestFlowPacket_AdvanceConsumesBytesAtBottleneckRate(t *testing.T) {
	// GIVEN a flow packet with a fixed bottleneck rate of 8 bits/sec
	fp := NewFlowPacket(1, 10, 20, 100, 0)
	fp.BottleneckBps = 8
	fp.LastUpdate = 0

	// WHEN one second of simulated time elapses
	fp.Advance(1)

	// THEN exactly 1 byte (8 bits at 8bps for 1s) is consumed
	assert.Equal(t, 99.0, fp.RemainingBytes)
	assert.False(t, fp.Done())
}

func TestFlowPacket_ETAReflectsCurrentBottleneck(t *testing.T) {
	// GIVEN a 100-byte flow bottlenecked at 800 bits/sec (100 bytes/sec)
	fp := NewFlowPacket(1, 10, 20, 100, 0)
	fp.BottleneckBps = 800
	fp.LastUpdate = 0

	// WHEN its ETA is queried at t=0
	eta := fp.ETA(0)

	// THEN it finishes in exactly one second
	assert.Equal(t, SimTime(1), eta)
}

// countingDestination registers a bare entity that tallies how many
// FLOW_UPDATE events it receives, without the bookkeeping a real Input
// would perform — isolating the FlowLink admission/departure protocol from
// the destination-side recompute pipeline exercised via NewInput elsewhere.
func countingDestination(t *testing.T, k *Kernel, name string, count *int) int {
	t.Helper()
	id, err := k.AddEntity(name, func(ctx *Context) {
		for {
			ev := ctx.GetNextMatching(func(ev *Event) bool {
				return ev.Tag == TagFlowUpdate || ev.Tag == TagEndOfSimulation
			})
			if ev.Tag == TagEndOfSimulation {
				ctx.Terminate()
				return
			}
			*count++
		}
	})
	require.NoError(t, err)
	return id
}

func TestFlowLink_AdmissionNotifiesOnlyExistingFlowsItThrottles(t *testing.T) {
	// GIVEN a lone flow already holding the full 1Gbps share of a FlowLink
	k := NewKernel()
	u, err := k.AddEntity("u", func(ctx *Context) { ctx.Terminate() })
	require.NoError(t, err)
	r, err := k.AddEntity("r", func(ctx *Context) { ctx.Terminate() })
	require.NoError(t, err)

	var updatesTo1, updatesTo2 int
	dst1 := countingDestination(t, k, "dst1", &updatesTo1)
	dst2 := countingDestination(t, k, "dst2", &updatesTo2)

	link, err := NewFlowLink(k, "L", u, r, FlowConfig{CapacityBps: 1_000_000_000})
	require.NoError(t, err)

	fp1 := NewFlowPacket(1, u, dst1, 1_000_000, 0)
	fp2 := NewFlowPacket(2, u, dst2, 1_000_000, 0)
	k.Schedule(u, link, 0, TagFlowSubmit, fp1)
	k.Schedule(u, link, 1, TagFlowSubmit, fp2)

	// WHEN a second flow joins a second later, halving the link's share
	k.Start()

	// THEN the already-active flow (throttled from 1Gbps to 500Mbps) is
	// notified exactly once; the joining flow, admitted straight onto the
	// already-shared rate, needs no notification of its own admission.
	assert.Equal(t, 1, updatesTo1)
	assert.Equal(t, 0, updatesTo2)
	assert.Equal(t, 500_000_000.0, fp1.LinkShares[link])
	assert.Equal(t, 500_000_000.0, fp2.LinkShares[link])
}

// recomputingDestination registers an entity standing in for the slice of
// Input's contract that matters to the FlowLink protocol in isolation: on
// every FLOW_UPDATE it tallies the event and recomputes fp's bottleneck
// from its LinkShares, exactly as NewInput's TagFlowUpdate handler does
// (minus the Advance() byte accounting, irrelevant to admission/departure
// notification correctness).
func recomputingDestination(t *testing.T, k *Kernel, name string, fp *FlowPacket, count *int) int {
	t.Helper()
	id, err := k.AddEntity(name, func(ctx *Context) {
		for {
			ev := ctx.GetNextMatching(func(ev *Event) bool {
				return ev.Tag == TagFlowUpdate || ev.Tag == TagEndOfSimulation
			})
			if ev.Tag == TagEndOfSimulation {
				ctx.Terminate()
				return
			}
			*count++
			recomputeBottleneck(fp)
		}
	})
	require.NoError(t, err)
	return id
}

func TestFlowLink_DepartureNotifiesOnlyTheFlowItWasBottleneckingFor(t *testing.T) {
	// GIVEN two flows evenly splitting a 1Gbps FlowLink
	k := NewKernel()
	u, err := k.AddEntity("u", func(ctx *Context) { ctx.Terminate() })
	require.NoError(t, err)
	r, err := k.AddEntity("r", func(ctx *Context) { ctx.Terminate() })
	require.NoError(t, err)

	link, err := NewFlowLink(k, "L", u, r, FlowConfig{CapacityBps: 1_000_000_000})
	require.NoError(t, err)

	fp1 := NewFlowPacket(1, u, 0, 1_000_000, 0)
	fp2 := NewFlowPacket(2, u, 0, 1_000_000, 0)
	var updatesTo1, updatesTo2 int
	dst1 := recomputingDestination(t, k, "dst1", fp1, &updatesTo1)
	dst2 := recomputingDestination(t, k, "dst2", fp2, &updatesTo2)
	fp1.DstID, fp2.DstID = dst1, dst2

	k.Schedule(u, link, 0, TagFlowSubmit, fp1)
	k.Schedule(u, link, 0, TagFlowSubmit, fp2)
	k.Schedule(link, link, 1, tagFlowDeregister, 1)

	// WHEN fp2 joins (throttling fp1 to its half-share, notified and
	// recomputed correctly) and then fp1 leaves a second later, freeing
	// the whole link back to fp2 alone
	k.Start()

	// THEN each flow is notified exactly once — fp1 on fp2's admission,
	// fp2 on fp1's departure — and each ends up with the correct live
	// share, not a stale one
	assert.Equal(t, 1, updatesTo1)
	assert.Equal(t, 1, updatesTo2)
	assert.Equal(t, 500_000_000.0, fp1.BottleneckBps)
	assert.Equal(t, 1_000_000_000.0, fp2.BottleneckBps)
}

func TestFlowTransport_MultiHopFairShare_MatchesFlowUpdateAndCompletionMath(t *testing.T) {
	// GIVEN U --L1(10Gbps)-- relay --L2(1Gbps)-- V, chained exactly the
	// way a FLOW_SUBMIT is routed hop-by-hop through a chain of FlowLinks,
	// with L2 the only bottleneck on the path
	k := NewKernel()
	u, err := k.AddEntity("u", func(ctx *Context) { ctx.Terminate() })
	require.NoError(t, err)

	var delivered []DataEnvelope
	var deliveredAt []SimTime
	sink, err := k.AddEntity("v.sink", func(ctx *Context) {
		for {
			ev := ctx.GetNextMatching(func(ev *Event) bool {
				return ev.Tag == TagInfopktSubmit || ev.Tag == TagEndOfSimulation
			})
			if ev.Tag == TagEndOfSimulation {
				ctx.Terminate()
				return
			}
			delivered = append(delivered, ev.Payload.(DataEnvelope))
			deliveredAt = append(deliveredAt, ctx.Kernel().Clock())
		}
	})
	require.NoError(t, err)
	v, err := NewInput(k, "v", sink)
	require.NoError(t, err)

	var l2id int
	// relay mimics the one thing a Router contributes to flow transport:
	// forwarding FLOW_SUBMIT on toward the destination, without any
	// routing-table convergence delay.
	relay, err := k.AddEntity("relay", func(ctx *Context) {
		for {
			ev := ctx.GetNextMatching(func(ev *Event) bool {
				return ev.Tag == TagFlowSubmit || ev.Tag == TagEndOfSimulation
			})
			if ev.Tag == TagEndOfSimulation {
				ctx.Terminate()
				return
			}
			fp := ev.Payload.(*FlowPacket)
			ctx.Schedule(l2id, 0, TagFlowSubmit, fp)
		}
	})
	require.NoError(t, err)

	l1, err := NewFlowLink(k, "L1", u, relay, FlowConfig{CapacityBps: 10_000_000_000})
	require.NoError(t, err)
	l2id, err = NewFlowLink(k, "L2", relay, v, FlowConfig{CapacityBps: 1_000_000_000})
	require.NoError(t, err)

	fp1 := NewFlowPacket(k.AllocPacketID(), u, v, 1_000_000_000, 0)
	fp2 := NewFlowPacket(k.AllocPacketID(), u, v, 1_000_000_000, 0)

	// WHEN F1 (1GB) starts at t=0 and F2 (1GB) starts a second later, same
	// path
	k.Schedule(u, l1, 0, TagFlowSubmit, fp1)
	k.Schedule(u, l1, 1, TagFlowSubmit, fp2)

	k.Start()

	// THEN both flows are fully delivered: F1 finishes at t=15 (1s at the
	// unthrottled 1Gbps bottleneck, consuming 125MB, then 14s more of the
	// remaining 875MB at the halved 500Mbps share once F2 joins at t=1),
	// and F2 at t=16, a second later, once F1's departure frees L2 back up
	// to F2 alone. Had both started simultaneously the closed form would
	// be 17s for both; the staggered start resolves to 15/16 under an
	// equal-split allocator because F1 banks a full second at the
	// unshared rate before F2 joins.
	require.Len(t, delivered, 2)
	assert.Equal(t, 1_000_000_000, delivered[0].ByteSize)
	assert.Equal(t, 1_000_000_000, delivered[1].ByteSize)
	require.Len(t, deliveredAt, 2)
	assert.Equal(t, SimTime(15), deliveredAt[0])
	assert.Equal(t, SimTime(16), deliveredAt[1])
}
