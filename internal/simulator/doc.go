// Package simulator plays either side of the laser/SFC serial handshake.
//
// The five-step transcript is:
//
//	1 laser -> sfc  <MO>,NEEDPSN<n>
//	2 sfc -> laser  ack ending in PASS
//	3 sfc -> laser  DSN list ending in PASS
//	4 laser -> sfc  carve result ending in PASSED=0|1
//	5 sfc -> laser  final result ending in PASS
//
// The SFC role answers triggers and carve results from a response pool; the
// laser role drives one cycle and returns what it observed. Run wires both
// roles in-process so the handshake can be exercised without hardware.
package simulator
