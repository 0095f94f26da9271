package sim

// Packet is the capability set shared by everything that travels over a
// Link or through a Router. Concrete packet kinds embed BasePacket and add
// their own fields; Router and Link code type-switches on the concrete
// type only where behavior genuinely differs (probe hop accounting, flow
// bottleneck tracking), and otherwise only touches the Packet interface.
type Packet interface {
	PacketID() int
	Size() int
	Source() int
	Destination() int
	Class() int
	SeriesID() int
}

// BasePacket carries the fields every packet kind has in common: identity,
// wire size in bytes, routing endpoints and the service class a scheduler
// keys on.
type BasePacket struct {
	ID           int
	ByteSize     int
	SrcID        int
	DstID        int
	ServiceClass int

	// Series groups the fragments cut from one envelope by Output's
	// outputSend (and any re-fragmentation by routers on the way), so
	// Input can sum their sizes per series; the envelope is complete when
	// the fragment carrying the payload arrives.
	Series int
}

func (p *BasePacket) PacketID() int    { return p.ID }
func (p *BasePacket) Size() int        { return p.ByteSize }
func (p *BasePacket) Source() int      { return p.SrcID }
func (p *BasePacket) Destination() int { return p.DstID }
func (p *BasePacket) Class() int       { return p.ServiceClass }
func (p *BasePacket) SeriesID() int    { return p.Series }

// DataPacket is one MTU-sized fragment of a data envelope. Payload is nil
// on every fragment but the last; earlier fragments carry only the byte
// size needed to account for MTU splitting.
type DataPacket struct {
	BasePacket
	SeqNo         int
	TotalInSeries int
	Payload       any
}

// IsLast reports whether this is the final fragment of its series.
func (p *DataPacket) IsLast() bool { return p.SeqNo == p.TotalInSeries-1 }

// hopRecord is one router traversal recorded by a ProbePacket.
type hopRecord struct {
	RouterID  int
	EntryTime SimTime
	ExitTime  SimTime
	BaudRate  float64
}

// ProbePacket carries no payload; it exists to measure the bottleneck
// bandwidth along whatever path it is routed over. Every router it passes
// through appends a hopRecord and folds the egress link's baud rate into
// the running minimum.
type ProbePacket struct {
	BasePacket
	Hops          []hopRecord
	BottleneckBps float64
}

// NewProbePacket returns a ProbePacket with an unbounded running bottleneck.
func NewProbePacket(id, src, dst int) *ProbePacket {
	return &ProbePacket{
		BasePacket:    BasePacket{ID: id, SrcID: src, DstID: dst},
		BottleneckBps: -1, // -1 means "no hop observed yet", not a real rate
	}
}

// RecordHop appends a traversal and folds baudRate into the bottleneck.
func (p *ProbePacket) RecordHop(routerID int, entry, exit SimTime, baudRate float64) {
	p.Hops = append(p.Hops, hopRecord{RouterID: routerID, EntryTime: entry, ExitTime: exit, BaudRate: baudRate})
	if p.BottleneckBps < 0 || baudRate < p.BottleneckBps {
		p.BottleneckBps = baudRate
	}
}

// FlowPacket is the unit scheduled onto a FlowLink in the flow-level
// transport. Unlike DataPacket/ProbePacket it is never fragmented; a
// FlowPacket represents the entire remaining transfer and is mutated in
// place as the flow's fair share changes.
type FlowPacket struct {
	BasePacket
	TotalBytes     int
	RemainingBytes float64
	StartTime      SimTime
	LastUpdate     SimTime

	BottleneckBps  float64
	BottleneckLink int
	Traversed      []int

	// LinkShares is every FlowLink this flow currently holds a share on,
	// keyed by that link's entity id: the per-link fair share each one
	// most recently reported. BottleneckBps/BottleneckLink is always the
	// minimum entry here — the slowest hop on the flow's path.
	LinkShares map[int]float64

	Cumulative SimTime
}

// NewFlowPacket returns a FlowPacket for a transfer of totalBytes bytes.
func NewFlowPacket(id, src, dst, totalBytes, class int) *FlowPacket {
	return &FlowPacket{
		BasePacket:     BasePacket{ID: id, SrcID: src, DstID: dst, ByteSize: totalBytes, ServiceClass: class},
		TotalBytes:     totalBytes,
		RemainingBytes: float64(totalBytes),
		LinkShares:     make(map[int]float64),
	}
}

// Advance folds elapsed simulated time at the current bottleneck rate into
// RemainingBytes, and records now as the new LastUpdate. It is a no-op if
// the packet has no bottleneck rate yet (not yet admitted onto a link).
func (p *FlowPacket) Advance(now SimTime) {
	if p.BottleneckBps <= 0 {
		p.LastUpdate = now
		return
	}
	elapsed := float64(now - p.LastUpdate)
	if elapsed > 0 {
		p.RemainingBytes -= elapsed * p.BottleneckBps / 8
		if p.RemainingBytes < 0 {
			p.RemainingBytes = 0
		}
	}
	p.LastUpdate = now
}

// Done reports whether the flow has delivered every byte.
func (p *FlowPacket) Done() bool { return p.RemainingBytes <= 0 }

// ETA returns the simulated time at which the flow would finish if its
// current bottleneck rate held constant from now on.
func (p *FlowPacket) ETA(now SimTime) SimTime {
	if p.BottleneckBps <= 0 {
		return -1
	}
	return now + SimTime(p.RemainingBytes*8/p.BottleneckBps)
}
