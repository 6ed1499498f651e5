package visa

import (
	"fmt"
	"strconv"
	"strings"
)

// Interface kinds recognized in resource names.
const (
	InterfaceGPIB = "GPIB"
	InterfaceASRL = "ASRL"
)

// GPIB address domains per IEEE-488: primary [0, 30], secondary [0, 15].
const (
	MinPrimaryAddr = 0
	MaxPrimaryAddr = 30

	MinSecondaryAddr = 0
	MaxSecondaryAddr = 15
)

// ResourceName is a parsed VISA-style resource name.
//
// Supported forms:
//
//	GPIB<board>::<primary>::INSTR
//	GPIB<board>::<primary>::<secondary>::INSTR
//	ASRL<port>::INSTR
type ResourceName struct {
	// Interface is the interface kind, InterfaceGPIB or InterfaceASRL.
	Interface string

	// Board is the GPIB board index (GPIB only).
	Board int

	// Port is the serial device path, e.g. "/dev/ttyUSB0" (ASRL only).
	Port string

	// Primary is the primary GPIB address (GPIB only).
	Primary int

	// Secondary is the secondary GPIB address; valid only when HasSecondary.
	Secondary int

	// HasSecondary reports whether a secondary address was given.
	HasSecondary bool
}

// String renders the resource name back to its canonical VISA form.
func (r ResourceName) String() string {
	switch r.Interface {
	case InterfaceASRL:
		return fmt.Sprintf("ASRL%s::INSTR", r.Port)
	case InterfaceGPIB:
		if r.HasSecondary {
			return fmt.Sprintf("GPIB%d::%d::%d::INSTR", r.Board, r.Primary, r.Secondary)
		}
		return fmt.Sprintf("GPIB%d::%d::INSTR", r.Board, r.Primary)
	default:
		return ""
	}
}

// GPIBResourceName builds a GPIB resource name for the given board and primary
// address. secondary < 0 means no secondary address.
func GPIBResourceName(board, primary, secondary int) ResourceName {
	r := ResourceName{
		Interface: InterfaceGPIB,
		Board:     board,
		Primary:   primary,
	}
	if secondary >= 0 {
		r.Secondary = secondary
		r.HasSecondary = true
	}

	return r
}

// ParseResourceName parses a VISA-style resource name string.
//
// Out-of-range GPIB addresses are rejected, never clamped.
func ParseResourceName(name string) (ResourceName, error) {
	parts := strings.Split(name, "::")
	if len(parts) < 2 || parts[len(parts)-1] != "INSTR" {
		return ResourceName{}, fmt.Errorf("visa: %w: %q", ErrInvalidResourceName, name)
	}

	head := parts[0]
	switch {
	case strings.HasPrefix(head, InterfaceGPIB):
		return parseGPIBName(name, head, parts[1:len(parts)-1])
	case strings.HasPrefix(head, InterfaceASRL):
		if len(parts) != 2 || len(head) == len(InterfaceASRL) {
			return ResourceName{}, fmt.Errorf("visa: %w: %q", ErrInvalidResourceName, name)
		}
		return ResourceName{Interface: InterfaceASRL, Port: head[len(InterfaceASRL):]}, nil
	default:
		return ResourceName{}, fmt.Errorf("visa: %w: %q", ErrInvalidResourceName, name)
	}
}

func parseGPIBName(name, head string, addrParts []string) (ResourceName, error) {
	board := 0
	if boardStr := head[len(InterfaceGPIB):]; boardStr != "" {
		b, err := strconv.Atoi(boardStr)
		if err != nil || b < 0 {
			return ResourceName{}, fmt.Errorf("visa: %w: bad board in %q", ErrInvalidResourceName, name)
		}
		board = b
	}

	if len(addrParts) < 1 || len(addrParts) > 2 {
		return ResourceName{}, fmt.Errorf("visa: %w: %q", ErrInvalidResourceName, name)
	}

	primary, err := strconv.Atoi(addrParts[0])
	if err != nil {
		return ResourceName{}, fmt.Errorf("visa: %w: bad primary address in %q", ErrInvalidResourceName, name)
	}
	if primary < MinPrimaryAddr || primary > MaxPrimaryAddr {
		return ResourceName{}, fmt.Errorf("visa: primary address %d out of range [%d, %d]",
			primary, MinPrimaryAddr, MaxPrimaryAddr)
	}

	r := ResourceName{Interface: InterfaceGPIB, Board: board, Primary: primary}

	if len(addrParts) == 2 {
		secondary, err := strconv.Atoi(addrParts[1])
		if err != nil {
			return ResourceName{}, fmt.Errorf("visa: %w: bad secondary address in %q", ErrInvalidResourceName, name)
		}
		if secondary < MinSecondaryAddr || secondary > MaxSecondaryAddr {
			return ResourceName{}, fmt.Errorf("visa: secondary address %d out of range [%d, %d]",
				secondary, MinSecondaryAddr, MaxSecondaryAddr)
		}
		r.Secondary = secondary
		r.HasSecondary = true
	}

	return r, nil
}
