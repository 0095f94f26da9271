// Package sim implements a discrete-event simulation kernel and the network
// transport layer built on top of it: entities communicating only through
// timestamped events, bidirectional I/O ports, propagation-delay links,
// per-egress packet schedulers, a distance-vector routing protocol, and an
// analytical flow-level transport with MIN-MAX fair-share bandwidth sharing.
package sim
