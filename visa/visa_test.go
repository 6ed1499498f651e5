package visa

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResourceName_GPIB(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		board     int
		primary   int
		secondary int
		hasSec    bool
	}{
		{"board and primary", "GPIB0::22::INSTR", 0, 22, 0, false},
		{"implicit board", "GPIB::5::INSTR", 0, 5, 0, false},
		{"secondary address", "GPIB1::22::5::INSTR", 1, 22, 5, true},
		{"primary lower bound", "GPIB0::0::INSTR", 0, 0, 0, false},
		{"primary upper bound", "GPIB0::30::INSTR", 0, 30, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseResourceName(tt.input)
			require.NoError(t, err)
			assert.Equal(t, InterfaceGPIB, res.Interface)
			assert.Equal(t, tt.board, res.Board)
			assert.Equal(t, tt.primary, res.Primary)
			assert.Equal(t, tt.hasSec, res.HasSecondary)
			if tt.hasSec {
				assert.Equal(t, tt.secondary, res.Secondary)
			}
		})
	}
}

func TestParseResourceName_ASRL(t *testing.T) {
	res, err := ParseResourceName("ASRL/dev/ttyUSB0::INSTR")
	require.NoError(t, err)
	assert.Equal(t, InterfaceASRL, res.Interface)
	assert.Equal(t, "/dev/ttyUSB0", res.Port)
	assert.Equal(t, "ASRL/dev/ttyUSB0::INSTR", res.String())
}

func TestParseResourceName_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"GPIB0::INSTR",
		"GPIB0::31::INSTR",  // primary out of range
		"GPIB0::-1::INSTR",  // negative primary
		"GPIB0::22::16::INSTR", // secondary out of range
		"GPIB0::22",
		"ASRL::INSTR", // missing port
		"USB0::22::INSTR",
		"GPIBx::22::INSTR",
	}

	for _, name := range invalid {
		_, err := ParseResourceName(name)
		assert.Error(t, err, "input %q", name)
	}
}

func TestResourceName_RoundTrip(t *testing.T) {
	res := GPIBResourceName(0, 22, -1)
	assert.Equal(t, "GPIB0::22::INSTR", res.String())

	parsed, err := ParseResourceName(res.String())
	require.NoError(t, err)
	assert.Equal(t, res, parsed)

	res = GPIBResourceName(2, 7, 5)
	assert.Equal(t, "GPIB2::7::5::INSTR", res.String())
}

type fakeInstrument struct {
	closed bool
}

func (f *fakeInstrument) Write(string) error          { return nil }
func (f *fakeInstrument) Read() ([]byte, error)       { return []byte("ok"), nil }
func (f *fakeInstrument) Query(string) ([]byte, error) { return []byte("ok"), nil }
func (f *fakeInstrument) Clear() error                { return nil }
func (f *fakeInstrument) Trigger() error              { return nil }
func (f *fakeInstrument) ReadStatusByte() (byte, error) { return 0, nil }
func (f *fakeInstrument) Close() error {
	f.closed = true
	return nil
}

type fakeBackend struct {
	opened []ResourceName
	fail   error
	last   *fakeInstrument
}

func (b *fakeBackend) Open(name ResourceName) (Instrument, error) {
	if b.fail != nil {
		return nil, b.fail
	}
	b.opened = append(b.opened, name)
	b.last = &fakeInstrument{}
	return b.last, nil
}

func TestResourceManager_OpenAndClose(t *testing.T) {
	rm := NewResourceManager()
	backend := &fakeBackend{}
	rm.Register(InterfaceGPIB, backend)

	inst, err := rm.Open("GPIB0::22::INSTR")
	require.NoError(t, err)
	require.Len(t, backend.opened, 1)
	assert.Equal(t, 22, backend.opened[0].Primary)

	require.NoError(t, inst.Close())
	assert.True(t, backend.last.closed)

	// Close is idempotent on the handle.
	require.NoError(t, inst.Close())
}

func TestResourceManager_UnknownInterface(t *testing.T) {
	rm := NewResourceManager()

	_, err := rm.Open("GPIB0::22::INSTR")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownInterface)
}

func TestResourceManager_OpenFailurePropagates(t *testing.T) {
	rm := NewResourceManager()
	backend := &fakeBackend{fail: errors.New("device powered off")}
	rm.Register(InterfaceGPIB, backend)

	_, err := rm.Open("GPIB0::22::INSTR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device powered off")
}

func TestResourceManager_CloseReleasesHandles(t *testing.T) {
	rm := NewResourceManager()
	backend := &fakeBackend{}
	rm.Register(InterfaceGPIB, backend)

	_, err := rm.Open("GPIB0::22::INSTR")
	require.NoError(t, err)

	require.NoError(t, rm.Close())
	assert.True(t, backend.last.closed)

	_, err = rm.Open("GPIB0::22::INSTR")
	assert.ErrorIs(t, err, ErrManagerClosed)
}
