// Package prologix implements the Prologix GPIB-Ethernet controller command
// protocol: the line-oriented text grammar shared by the client adapter and the
// bridge, and the Controller type that speaks it over a TCP socket.
//
// # Protocol Overview
//
// The protocol is ASCII lines over TCP, one frame per line, terminated by a
// single newline. A line beginning with the two-character sentinel "++" is a
// meta-command addressed to the controller itself; every other line is data
// forwarded verbatim to the currently addressed GPIB instrument.
//
// Meta-commands come in a get form (bare verb, single-line typed reply) and a
// set form (verb plus arguments, no reply). The catalogue covers addressing
// (addr), controller/device role (mode), automatic read-after-write (auto),
// device reads (read), the bridge-side read timeout (read_tmo_ms), framing
// (eoi, eos, eot_enable, eot_char), bus-control signals (clr, ifc, loc, llo,
// lon, trg), protocol state reset (rst), service-request status (srq, spoll,
// status), and informational responses (ver, help).
//
// # Timeout Domains
//
// A Controller manages two independent timeout domains: the bridge-side
// per-operation read timeout programmed with read_tmo_ms, and the local
// socket deadline. The read timeout must be strictly less than the transport
// timeout so that a device-level timeout always surfaces as an explicit
// "Error: ..." protocol reply instead of an opaque socket timeout. The
// ordering is validated at construction and never silently corrected.
//
// # Concurrency
//
// A Controller is synchronous: exactly one request may be in flight per
// session, and there is no internal queuing or retry. Callers that share one
// Controller must serialize their own use of it.
package prologix
