package prologix

import (
	"bufio"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBridge is a scripted loopback endpoint. It records every received line
// and answers through the handler; a nil or false-returning handler means no
// reply, matching set-form semantics.
type fakeBridge struct {
	t       *testing.T
	ln      net.Listener
	handler func(line string) (string, bool)

	mu    sync.Mutex
	lines []string
}

func newFakeBridge(t *testing.T, handler func(line string) (string, bool)) *fakeBridge {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	b := &fakeBridge{t: t, ln: ln, handler: handler}
	t.Cleanup(func() { _ = ln.Close() })

	go b.acceptLoop()

	return b
}

func (b *fakeBridge) acceptLoop() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		go b.serve(conn)
	}
}

func (b *fakeBridge) serve(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		b.mu.Lock()
		b.lines = append(b.lines, line)
		b.mu.Unlock()

		if b.handler == nil {
			continue
		}
		if reply, ok := b.handler(line); ok {
			_, _ = conn.Write([]byte(reply))
		}
	}
}

func (b *fakeBridge) received() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := make([]string, len(b.lines))
	copy(lines, b.lines)

	return lines
}

// waitLines polls until the bridge has received at least n lines.
func (b *fakeBridge) waitLines(n int) []string {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if lines := b.received(); len(lines) >= n {
			return lines
		}
		time.Sleep(5 * time.Millisecond)
	}
	b.t.Fatalf("bridge received %d lines, want at least %d", len(b.received()), n)

	return nil
}

func (b *fakeBridge) port() int {
	return b.ln.Addr().(*net.TCPAddr).Port
}

func newTestController(t *testing.T, b *fakeBridge, addr Address, opts ...ControllerOption) *Controller {
	t.Helper()

	opts = append([]ControllerOption{
		WithPort(b.port()),
		WithReadTimeout(100 * time.Millisecond),
		WithTransportTimeout(500 * time.Millisecond),
	}, opts...)

	cfg, err := NewControllerConfig("127.0.0.1", addr, opts...)
	require.NoError(t, err)

	c, err := NewController(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestNewController_SetupSequence(t *testing.T) {
	b := newFakeBridge(t, nil)
	newTestController(t, b, NewAddress(22))

	lines := b.waitLines(6)
	assert.Equal(t, []string{
		"++mode 1",
		"++auto 0",
		"++read_tmo_ms 100",
		"++eos 3",
		"++eoi 1",
		"++addr 22",
	}, lines[:6])
}

func TestNewController_ValidationBeforeDial(t *testing.T) {
	// The port is not listening; a validation failure must occur before any
	// dial is attempted, so the error is the validation error.
	cfg, err := NewControllerConfig("127.0.0.1", NewAddress(22), WithPort(1))
	require.NoError(t, err)
	cfg.readTimeout = 10 * time.Second // violate the invariant after construction

	_, err = NewController(cfg)
	assert.ErrorIs(t, err, ErrReadTimeoutRange)
}

func TestController_QueryRoundTrip(t *testing.T) {
	b := newFakeBridge(t, func(line string) (string, bool) {
		if line == FormatMeta(VerbRead, "eoi") {
			return "HEWLETT-PACKARD,3458A,0,A\n", true
		}
		return "", false
	})
	c := newTestController(t, b, NewAddress(22))

	got, err := c.Query("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "HEWLETT-PACKARD,3458A,0,A", got)

	lines := b.waitLines(8)
	assert.Equal(t, "*IDN?", lines[6])
	assert.Equal(t, "++read eoi", lines[7])
}

func TestController_SequentialQueriesKeepOrder(t *testing.T) {
	replies := []string{"first\n", "second\n"}
	var n int
	var mu sync.Mutex
	b := newFakeBridge(t, func(line string) (string, bool) {
		if line != FormatMeta(VerbRead, "eoi") {
			return "", false
		}
		mu.Lock()
		defer mu.Unlock()
		reply := replies[n]
		n++
		return reply, true
	})
	c := newTestController(t, b, NewAddress(22))

	got, err := c.Query("MEAS1?")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	got, err = c.Query("MEAS2?")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestController_ReadStripsExactlyOneTerminator(t *testing.T) {
	tests := []struct {
		name  string
		wire  string
		want  string
	}{
		{"LF", "29.3\n", "29.3"},
		{"CRLF as a unit", "29.3\r\n", "29.3"},
		{"CR", "29.3\r", "29.3"},
		{"double LF keeps the payload one", "29.3\n\n", "29.3\n"},
		{"no terminator", "29.3", "29.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBridge(t, func(line string) (string, bool) {
				if line == FormatMeta(VerbRead, "eoi") {
					return tt.wire, true
				}
				return "", false
			})
			c := newTestController(t, b, NewAddress(22))

			got, err := c.Read(DefaultReadBufferSize)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestController_AddressGetterRoundTrip(t *testing.T) {
	b := newFakeBridge(t, func(line string) (string, bool) {
		if line == FormatMeta(VerbAddr) {
			return "22 101\n", true
		}
		return "", false
	})
	c := newTestController(t, b, NewAddress(1))

	require.NoError(t, c.SetAddress(NewAddressWithSecondary(22, 5)))

	addr, err := c.Address()
	require.NoError(t, err)
	assert.Equal(t, NewAddressWithSecondary(22, 5), addr)

	lines := b.waitLines(8)
	assert.Equal(t, "++addr 22 101", lines[6], "secondary encoded as value+96")
}

func TestController_TypedGetters(t *testing.T) {
	b := newFakeBridge(t, func(line string) (string, bool) {
		switch line {
		case FormatMeta(VerbAuto):
			return "0\n", true
		case FormatMeta(VerbMode):
			return "1\n", true
		case FormatMeta(VerbEOS):
			return "3\n", true
		case FormatMeta(VerbReadTimeout):
			return "100\n", true
		case FormatMeta(VerbStatus):
			return "64\n", true
		case FormatMeta(VerbVersion):
			return "GPIB-ETHERNET bridge version 1.0\n", true
		}
		return "", false
	})
	c := newTestController(t, b, NewAddress(22))

	auto, err := c.AutoRead()
	require.NoError(t, err)
	assert.False(t, auto)

	mode, err := c.ControllerMode()
	require.NoError(t, err)
	assert.True(t, mode)

	eos, err := c.EOSMode()
	require.NoError(t, err)
	assert.Equal(t, EOSModeNone, eos)

	tmo, err := c.ReadTimeout()
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, tmo)

	status, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, byte(64), status)

	ver, err := c.Version()
	require.NoError(t, err)
	assert.Equal(t, "GPIB-ETHERNET bridge version 1.0", ver)
}

func TestController_BridgeErrorReply(t *testing.T) {
	b := newFakeBridge(t, func(line string) (string, bool) {
		if line == FormatMeta(VerbRead, "eoi") {
			return "Error: instrument read timeout\n", true
		}
		return "", false
	})
	c := newTestController(t, b, NewAddress(22))

	_, err := c.Read(DefaultReadBufferSize)
	require.Error(t, err)

	var bridgeErr *BridgeError
	require.ErrorAs(t, err, &bridgeErr)
	assert.Equal(t, "instrument read timeout", bridgeErr.Message)
}

func TestController_TransportTimeoutPropagates(t *testing.T) {
	// The bridge never answers the read; the socket deadline must surface as
	// a timeout error, not hang.
	b := newFakeBridge(t, nil)
	c := newTestController(t, b, NewAddress(22),
		WithReadTimeout(50*time.Millisecond),
		WithTransportTimeout(200*time.Millisecond),
	)

	start := time.Now()
	_, err := c.Read(DefaultReadBufferSize)
	require.Error(t, err)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestController_SetReadTimeoutRevalidates(t *testing.T) {
	b := newFakeBridge(t, nil)
	c := newTestController(t, b, NewAddress(22),
		WithReadTimeout(100*time.Millisecond),
		WithTransportTimeout(500*time.Millisecond),
	)

	assert.ErrorIs(t, c.SetReadTimeout(time.Second), ErrTimeoutOrder)
	assert.ErrorIs(t, c.SetReadTimeout(500*time.Microsecond), ErrReadTimeoutRange)
	assert.NoError(t, c.SetReadTimeout(200*time.Millisecond))
}

func TestController_Trigger(t *testing.T) {
	b := newFakeBridge(t, nil)
	c := newTestController(t, b, NewAddress(22))

	require.NoError(t, c.Trigger())
	require.NoError(t, c.Trigger(NewAddress(3), NewAddress(5)))

	lines := b.waitLines(8)
	assert.Equal(t, "++trg", lines[6])
	assert.Equal(t, "++trg 3 5", lines[7])

	tooMany := make([]Address, MaxTriggerAddrs+1)
	for i := range tooMany {
		tooMany[i] = NewAddress(i)
	}
	assert.ErrorIs(t, c.Trigger(tooMany...), ErrTooManyTriggerAddrs)
}

func TestController_SerialPoll(t *testing.T) {
	b := newFakeBridge(t, func(line string) (string, bool) {
		switch line {
		case FormatMeta(VerbSerialPoll):
			return "64\n", true
		case FormatMeta(VerbSerialPoll, "13"):
			return "0\n", true
		}
		return "", false
	})
	c := newTestController(t, b, NewAddress(22))

	stb, err := c.SerialPoll()
	require.NoError(t, err)
	assert.Equal(t, byte(64), stb)

	stb, err = c.SerialPoll(NewAddress(13))
	require.NoError(t, err)
	assert.Equal(t, byte(0), stb)
}

func TestController_WaitSRQ(t *testing.T) {
	var polls int
	var mu sync.Mutex
	b := newFakeBridge(t, func(line string) (string, bool) {
		if line != FormatMeta(VerbSRQ) {
			return "", false
		}
		mu.Lock()
		defer mu.Unlock()
		polls++
		if polls >= 3 {
			return "1\n", true
		}
		return "0\n", true
	})
	c := newTestController(t, b, NewAddress(22))

	err := c.WaitSRQ(10*time.Millisecond, 2*time.Second)
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, 3, polls)
	mu.Unlock()
}

func TestController_WaitSRQ_Timeout(t *testing.T) {
	b := newFakeBridge(t, func(line string) (string, bool) {
		if line == FormatMeta(VerbSRQ) {
			return "0\n", true
		}
		return "", false
	})
	c := newTestController(t, b, NewAddress(22))

	err := c.WaitSRQ(10*time.Millisecond, 80*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSRQWaitTimeout)

	var netErr net.Error
	assert.False(t, errors.As(err, &netErr), "SRQ wait timeout is not a transport timeout")
}

func TestController_ClosedSession(t *testing.T) {
	b := newFakeBridge(t, nil)
	c := newTestController(t, b, NewAddress(22))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")

	err := c.Write("*RST")
	assert.ErrorIs(t, err, ErrClosed)

	_, err = c.Read(DefaultReadBufferSize)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestController_StatusByteArgsEncoding(t *testing.T) {
	b := newFakeBridge(t, nil)
	c := newTestController(t, b, NewAddress(22))

	require.NoError(t, c.SetStatus(0x40))
	require.NoError(t, c.SetEOTChar(10))
	require.NoError(t, c.SetEOTEnable(true))

	lines := b.waitLines(9)
	assert.Equal(t, "++status "+strconv.Itoa(0x40), lines[6])
	assert.Equal(t, "++eot_char 10", lines[7])
	assert.Equal(t, "++eot_enable 1", lines[8])
}
