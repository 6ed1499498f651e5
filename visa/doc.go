// Package visa provides a vendor-neutral instrument-access layer for GPIB and
// serial bench instruments, loosely modeled on the VISA resource model.
//
// A ResourceManager owns the set of registered transport backends and hands out
// Instrument handles for VISA-style resource names such as "GPIB0::22::INSTR"
// or "ASRL/dev/ttyUSB0::INSTR". The manager is constructed once at process
// startup with an explicit lifecycle and passed by reference to every component
// that needs instrument access; there is no hidden package-level singleton.
//
// The Instrument interface is the capability the bridge relays protocol
// commands into: write, read, query, device clear, trigger, and serial poll.
// Concrete transports live in the sub-packages sim (a YAML-driven instrument
// simulator) and serial (RS-232/USB-serial SCPI instruments).
package visa
