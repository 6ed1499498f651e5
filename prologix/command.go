package prologix

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandPrefix marks a meta-command line; anything else is instrument data.
const CommandPrefix = "++"

// DefaultPort is the TCP port a Prologix GPIB-Ethernet controller listens on.
const DefaultPort = 1234

// DefaultReadBufferSize is the receive buffer size for Query and Read when the
// caller gives no explicit size.
const DefaultReadBufferSize = 1024

// Meta-command verbs.
const (
	VerbAddr         = "addr"
	VerbMode         = "mode"
	VerbAuto         = "auto"
	VerbRead         = "read"
	VerbReadTimeout  = "read_tmo_ms"
	VerbEOI          = "eoi"
	VerbEOS          = "eos"
	VerbEOTEnable    = "eot_enable"
	VerbEOTChar      = "eot_char"
	VerbClear        = "clr"
	VerbIFC          = "ifc"
	VerbLocal        = "loc"
	VerbLocalLockout = "llo"
	VerbListenOnly   = "lon"
	VerbTrigger      = "trg"
	VerbReset        = "rst"
	VerbSRQ          = "srq"
	VerbSerialPoll   = "spoll"
	VerbStatus       = "status"
	VerbVersion      = "ver"
	VerbHelp         = "help"
)

// GPIB address domains: primary [0, 30], secondary [0, 15].
const (
	MinPrimaryAddr = 0
	MaxPrimaryAddr = 30

	MinSecondaryAddr = 0
	MaxSecondaryAddr = 15
)

// secondaryOffset is added to a secondary address on the wire, per the
// Prologix manual.
const secondaryOffset = 96

// MaxTriggerAddrs is the most addresses one ++trg may target.
const MaxTriggerAddrs = 15

// EOSMode selects the end-of-string terminator appended to instrument data.
type EOSMode int

const (
	EOSModeCRLF EOSMode = iota // append CR+LF
	EOSModeCR                  // append CR
	EOSModeLF                  // append LF
	EOSModeNone                // no terminator
)

func (m EOSMode) String() string {
	switch m {
	case EOSModeCRLF:
		return "CRLF"
	case EOSModeCR:
		return "CR"
	case EOSModeLF:
		return "LF"
	case EOSModeNone:
		return "none"
	default:
		return fmt.Sprintf("EOSMode(%d)", int(m))
	}
}

// Valid reports whether m is one of the four catalogue modes.
func (m EOSMode) Valid() bool {
	return m >= EOSModeCRLF && m <= EOSModeNone
}

// ParseEOSMode decodes a decimal EOS mode argument. Out-of-range values are
// rejected, never clamped.
func ParseEOSMode(s string) (EOSMode, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("prologix: %w: %q", ErrInvalidEOSMode, s)
	}
	m := EOSMode(n)
	if !m.Valid() {
		return 0, fmt.Errorf("prologix: %w: %d", ErrInvalidEOSMode, n)
	}

	return m, nil
}

// Address is a GPIB device address: a primary address and an optional
// secondary address.
type Address struct {
	Primary      int
	Secondary    int
	HasSecondary bool
}

// NewAddress builds a primary-only address.
func NewAddress(primary int) Address {
	return Address{Primary: primary}
}

// NewAddressWithSecondary builds an address with a secondary part.
func NewAddressWithSecondary(primary, secondary int) Address {
	return Address{Primary: primary, Secondary: secondary, HasSecondary: true}
}

// Validate checks the address domains. Out-of-range values are rejected,
// never clamped.
func (a Address) Validate() error {
	if a.Primary < MinPrimaryAddr || a.Primary > MaxPrimaryAddr {
		return fmt.Errorf("prologix: %w: %d", ErrPrimaryAddrRange, a.Primary)
	}
	if a.HasSecondary && (a.Secondary < MinSecondaryAddr || a.Secondary > MaxSecondaryAddr) {
		return fmt.Errorf("prologix: %w: %d", ErrSecondaryAddrRange, a.Secondary)
	}

	return nil
}

// Encode renders the address as ++addr arguments. The secondary address is
// offset by 96 on the wire per the Prologix manual.
func (a Address) Encode() string {
	if a.HasSecondary {
		return fmt.Sprintf("%d %d", a.Primary, a.Secondary+secondaryOffset)
	}

	return strconv.Itoa(a.Primary)
}

func (a Address) String() string {
	if a.HasSecondary {
		return fmt.Sprintf("%d:%d", a.Primary, a.Secondary)
	}

	return strconv.Itoa(a.Primary)
}

// ParseAddress decodes ++addr arguments (or an echoed ++addr reply) back into
// an Address, removing the wire offset from the secondary part and validating
// both domains.
func ParseAddress(args []string) (Address, error) {
	if len(args) < 1 || len(args) > 2 {
		return Address{}, fmt.Errorf("prologix: %w: addr wants 1 or 2 arguments, got %d",
			ErrInvalidReply, len(args))
	}

	primary, err := strconv.Atoi(args[0])
	if err != nil {
		return Address{}, fmt.Errorf("prologix: %w: primary %q", ErrInvalidReply, args[0])
	}
	addr := NewAddress(primary)

	if len(args) == 2 {
		encoded, err := strconv.Atoi(args[1])
		if err != nil {
			return Address{}, fmt.Errorf("prologix: %w: secondary %q", ErrInvalidReply, args[1])
		}
		addr.Secondary = encoded - secondaryOffset
		addr.HasSecondary = true
	}

	if err := addr.Validate(); err != nil {
		return Address{}, err
	}

	return addr, nil
}

// Command is one decoded protocol line: either a meta-command with a verb and
// arguments, or an opaque data line bound for the addressed instrument.
type Command struct {
	// Meta reports whether the line carried the "++" sentinel.
	Meta bool

	// Verb is the lower-cased meta-command verb (Meta only).
	Verb string

	// Args are the whitespace-separated meta-command arguments (Meta only).
	Args []string

	// Data is the verbatim instrument command (non-Meta only).
	Data string
}

// ParseLine decodes one received line, already stripped of its newline.
func ParseLine(line string) Command {
	if !strings.HasPrefix(line, CommandPrefix) {
		return Command{Data: line}
	}

	fields := strings.Fields(line[len(CommandPrefix):])
	if len(fields) == 0 {
		return Command{Meta: true}
	}

	return Command{
		Meta: true,
		Verb: strings.ToLower(fields[0]),
		Args: fields[1:],
	}
}

// FormatMeta renders a meta-command line without its trailing newline.
func FormatMeta(verb string, args ...string) string {
	if len(args) == 0 {
		return CommandPrefix + verb
	}

	return CommandPrefix + verb + " " + strings.Join(args, " ")
}

// ParseBoolReply decodes a "0"/"1" get-form reply.
func ParseBoolReply(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("prologix: %w: want 0 or 1, got %q", ErrInvalidReply, s)
	}
}

// ParseIntReply decodes a decimal get-form reply.
func ParseIntReply(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("prologix: %w: want integer, got %q", ErrInvalidReply, s)
	}

	return n, nil
}

// FormatBool renders a boolean set-form argument as "0" or "1".
func FormatBool(v bool) string {
	if v {
		return "1"
	}

	return "0"
}
