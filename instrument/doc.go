// Package instrument provides SCPI drivers for the bench instruments the
// automation suite drives: the HP 3458A multimeter, HP 53131A universal
// counter, GW Instek AFG-2225 function generator, and HP E4419B power meter.
//
// Drivers are thin command templates over an Adapter, the write/read/query
// capability satisfied by prologix.Controller. They validate arguments against
// the instruments' documented ranges and otherwise pass opaque SCPI strings
// through; they hold no protocol state of their own.
//
// The registry maps a closed DeviceType enumeration to driver constructors so
// an unknown device tag in configuration fails at load time, not at first use.
package instrument
