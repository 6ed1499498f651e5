package prologix

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_Meta(t *testing.T) {
	cmd := ParseLine("++addr 22 101")
	assert.True(t, cmd.Meta)
	assert.Equal(t, VerbAddr, cmd.Verb)
	assert.Equal(t, []string{"22", "101"}, cmd.Args)

	cmd = ParseLine("++SRQ")
	assert.True(t, cmd.Meta)
	assert.Equal(t, VerbSRQ, cmd.Verb, "verbs are case-insensitive")
	assert.Empty(t, cmd.Args)
}

func TestParseLine_Data(t *testing.T) {
	cmd := ParseLine("*IDN?")
	assert.False(t, cmd.Meta)
	assert.Equal(t, "*IDN?", cmd.Data)

	// A '+' that is not the full sentinel is instrument data.
	cmd = ParseLine("+5.000E+00")
	assert.False(t, cmd.Meta)
}

func TestFormatMeta(t *testing.T) {
	assert.Equal(t, "++srq", FormatMeta(VerbSRQ))
	assert.Equal(t, "++addr 22", FormatMeta(VerbAddr, "22"))
	assert.Equal(t, "++trg 3 5", FormatMeta(VerbTrigger, "3", "5"))
}

func TestAddress_Validate(t *testing.T) {
	assert.NoError(t, NewAddress(0).Validate())
	assert.NoError(t, NewAddress(30).Validate())
	assert.ErrorIs(t, NewAddress(-1).Validate(), ErrPrimaryAddrRange)
	assert.ErrorIs(t, NewAddress(31).Validate(), ErrPrimaryAddrRange)

	assert.NoError(t, NewAddressWithSecondary(22, 0).Validate())
	assert.NoError(t, NewAddressWithSecondary(22, 15).Validate())
	assert.ErrorIs(t, NewAddressWithSecondary(22, -1).Validate(), ErrSecondaryAddrRange)
	assert.ErrorIs(t, NewAddressWithSecondary(22, 16).Validate(), ErrSecondaryAddrRange)
}

func TestAddress_EncodeDecodeRoundTrip(t *testing.T) {
	// Every valid primary/secondary pair survives the wire encoding, with the
	// secondary offset by 96.
	for primary := MinPrimaryAddr; primary <= MaxPrimaryAddr; primary++ {
		addr := NewAddress(primary)
		decoded, err := ParseAddress(strings.Fields(addr.Encode()))
		require.NoError(t, err)
		assert.Equal(t, addr, decoded)

		for secondary := MinSecondaryAddr; secondary <= MaxSecondaryAddr; secondary++ {
			addr := NewAddressWithSecondary(primary, secondary)
			fields := strings.Fields(addr.Encode())
			require.Len(t, fields, 2)
			assert.Equal(t, strconv.Itoa(secondary+96), fields[1])

			decoded, err := ParseAddress(fields)
			require.NoError(t, err)
			assert.Equal(t, addr, decoded)
		}
	}
}

func TestParseAddress_Invalid(t *testing.T) {
	tests := [][]string{
		{},
		{"abc"},
		{"31"},
		{"22", "95"},  // below the secondary wire offset
		{"22", "112"}, // above secondary 15 + 96
		{"22", "101", "5"},
	}

	for _, args := range tests {
		_, err := ParseAddress(args)
		assert.Error(t, err, "args %v", args)
	}
}

func TestParseEOSMode(t *testing.T) {
	for n, want := range []EOSMode{EOSModeCRLF, EOSModeCR, EOSModeLF, EOSModeNone} {
		mode, err := ParseEOSMode(fmt.Sprint(n))
		require.NoError(t, err)
		assert.Equal(t, want, mode)
	}

	for _, bad := range []string{"-1", "4", "crlf", ""} {
		_, err := ParseEOSMode(bad)
		assert.ErrorIs(t, err, ErrInvalidEOSMode, "input %q", bad)
	}
}

func TestParseBoolReply(t *testing.T) {
	v, err := ParseBoolReply("1")
	require.NoError(t, err)
	assert.True(t, v)

	v, err = ParseBoolReply("0\r\n")
	require.NoError(t, err, "stray framing whitespace is tolerated")
	assert.False(t, v)

	_, err = ParseBoolReply("2")
	assert.ErrorIs(t, err, ErrInvalidReply)
}
