package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newInfoRecorder registers an entity that records every INFOPKT_SUBMIT
// payload it receives, for use as an Input sink in tests.
func newInfoRecorder(t *testing.T, k *Kernel, name string, got *[]any) int {
	t.Helper()
	id, err := k.AddEntity(name, func(ctx *Context) {
		for {
			ev := ctx.GetNextMatching(func(ev *Event) bool {
				return ev.Tag == TagInfopktSubmit || ev.Tag == TagEndOfSimulation
			})
			if ev.Tag == TagEndOfSimulation {
				ctx.Terminate()
				return
			}
			env := ev.Payload.(DataEnvelope)
			*got = append(*got, env.Data)
		}
	})
	require.NoError(t, err)
	return id
}

func TestRouter_ForwardsAcrossTwoHopsAfterConvergence(t *testing.T) {
	// GIVEN two routers joined by a link, with a host attached behind the
	// second router
	k := NewKernel()
	var delivered []any
	sink := newInfoRecorder(t, k, "sink", &delivered)
	host2, err := NewInput(k, "host2", sink)
	require.NoError(t, err)

	r1, err := NewRouter(k, "r1", nil)
	require.NoError(t, err)
	r2, err := NewRouter(k, "r2", nil)
	require.NoError(t, err)

	link12, err := NewSimpleLink(k, "link12", r1, r2, LinkConfig{PropDelay: 0.01, BaudRate: 1e6})
	require.NoError(t, err)
	sched12, err := NewFIFOScheduler(k, "sched12", link12, 1e6)
	require.NoError(t, err)

	linkHost2, err := NewSimpleLink(k, "linkHost2", r2, host2, LinkConfig{PropDelay: 0.001, BaudRate: 1e6})
	require.NoError(t, err)
	schedHost2, err := NewFIFOScheduler(k, "schedHost2", linkHost2, 1e6)
	require.NoError(t, err)

	AttachRouter(k, r1, r2, link12, sched12, 1e6, 0)
	AttachRouter(k, r2, r1, link12, sched12, 1e6, 0)
	AttachHost(k, r2, host2, linkHost2, schedHost2, 1e6, 0, false)

	// WHEN a packet addressed to host2 is injected at r1 well after the
	// distance vector has had time to converge
	k.Schedule(r1, r1, 20, TagPktForward, &DataPacket{
		BasePacket:    BasePacket{ID: 1, ByteSize: 100, DstID: host2},
		SeqNo:         0,
		TotalInSeries: 1,
		Payload:       "hello",
	})

	k.Start()

	// THEN it is reassembled and delivered to the attached host's sink
	require.Len(t, delivered, 1)
	assert.Equal(t, "hello", delivered[0])
}

func TestRouter_FragmentsForwardedPacketToEgressLinkMTU(t *testing.T) {
	// GIVEN a router whose only egress link to host2 has a 1000-byte MTU
	k := NewKernel()
	var received []*DataPacket
	sink, err := k.AddEntity("sink", func(ctx *Context) {
		for {
			ev := ctx.GetNextMatching(func(ev *Event) bool {
				switch ev.Tag {
				case TagPktForward, TagEmptyPkt, TagEndOfSimulation:
					return true
				}
				return false
			})
			if ev.Tag == TagEndOfSimulation {
				ctx.Terminate()
				return
			}
			received = append(received, ev.Payload.(*DataPacket))
		}
	})
	require.NoError(t, err)

	r1, err := NewRouter(k, "r1", nil)
	require.NoError(t, err)

	linkHost, err := NewSimpleLink(k, "linkHost", r1, sink, LinkConfig{PropDelay: 0.001, BaudRate: 1e7})
	require.NoError(t, err)
	schedHost, err := NewFIFOScheduler(k, "schedHost", linkHost, 1e7)
	require.NoError(t, err)

	AttachHost(k, r1, sink, linkHost, schedHost, 1e7, 1000, false)

	// WHEN a 2500-byte packet addressed to sink is injected at r1, well
	// after the router has had time to process its own registration
	k.Schedule(r1, r1, 1, TagPktForward, &DataPacket{
		BasePacket:    BasePacket{ID: 1, ByteSize: 2500, DstID: sink},
		SeqNo:         0,
		TotalInSeries: 1,
		Payload:       "hello",
	})
	k.Schedule(sink, sink, 10, TagEndOfSimulation, nil)

	k.Start()

	// THEN it arrives at sink split into 3 fragments (1000, 1000, 500
	// bytes), sharing the original packet id and series, only the last
	// carrying the payload
	require.Len(t, received, 3)
	assert.Equal(t, 1000, received[0].ByteSize)
	assert.Equal(t, 1000, received[1].ByteSize)
	assert.Equal(t, 500, received[2].ByteSize)
	assert.Nil(t, received[0].Payload)
	assert.Nil(t, received[1].Payload)
	assert.Equal(t, "hello", received[2].Payload)
	for _, f := range received {
		assert.Equal(t, 1, f.ID)
		assert.Equal(t, received[0].Series, f.Series)
	}
}

func TestRouter_DropsPacketsToUnknownDestinations(t *testing.T) {
	// GIVEN a router with no routes installed
	k := NewKernel()
	metrics := NewMetrics()
	r1, err := NewRouter(k, "r1", metrics)
	require.NoError(t, err)

	// WHEN a packet addressed to an unreachable destination arrives,
	// followed by END_OF_SIMULATION so Start returns
	k.Schedule(r1, r1, 0, TagPktForward, &DataPacket{
		BasePacket: BasePacket{ID: 1, ByteSize: 10, DstID: 999},
	})
	k.Schedule(r1, r1, 1, TagEndOfSimulation, nil)

	// THEN the router logs and drops it rather than panicking or stalling,
	// and the drop is tallied
	assert.NotPanics(t, func() { k.Start() })
	state, _ := k.EntityState(r1)
	assert.Equal(t, StateFinished, state)
	assert.Equal(t, 1, metrics.Dropped)
}
