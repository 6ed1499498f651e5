// Package bridge implements the server side of the Prologix GPIB-Ethernet
// protocol: a TCP listener that terminates protocol sessions and relays
// instrument traffic onto real (or simulated) GPIB hardware through a
// visa.ResourceManager.
//
// Each accepted connection gets an independent handling goroutine with its own
// protocol state: the currently addressed device (default primary address 1),
// the auto-read flag, framing registers (eoi, eos, eot), and the emulated
// status byte. Lines carrying the "++" sentinel are dispatched through the
// meta-command catalogue; every other line is forwarded verbatim to the
// addressed instrument. Instrument-level failures are converted to single
// "Error: ..." reply lines and never terminate the connection; only transport
// failure or EOF does.
//
// # Shared-Bus Hazard
//
// GPIB permits one currently addressed talker/listener per bus. When two
// connections share one physical bus, interleaved ++addr commands can make one
// connection read a response produced by the other's command. The bridge does
// not resolve this internally: ordering is guaranteed only within one
// connection, and a deployment that shares a bus across clients must impose
// its own mutual exclusion around each select-address-then-transact sequence.
// A single-client deployment avoids the hazard entirely.
package bridge
