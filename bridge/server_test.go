package bridge

import (
	"bufio"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILoveBacteria/test-instrument-automation/visa"
	"github.com/ILoveBacteria/test-instrument-automation/visa/sim"
)

// testClient is a raw protocol client for driving the bridge in tests.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func newTestServer(t *testing.T, backend visa.Backend) *Server {
	t.Helper()

	rm := visa.NewResourceManager()
	rm.Register(visa.InterfaceGPIB, backend)
	t.Cleanup(func() { _ = rm.Close() })

	cfg, err := NewServerConfig("127.0.0.1", 0)
	require.NoError(t, err)

	srv, err := NewServer(cfg, rm)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Close() })

	return srv
}

func simBackend(t *testing.T) *sim.Backend {
	t.Helper()

	backend, err := sim.NewBackend(sim.DefaultDefinitions())
	require.NoError(t, err)

	return backend
}

func dialBridge(t *testing.T, srv *Server) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) send(line string) {
	c.t.Helper()

	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *testClient) recv() string {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)

	return line[:len(line)-1]
}

// recvNone asserts that no reply arrives within a short window; set forms
// produce no response line.
func (c *testClient) recvNone() {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err := c.reader.ReadString('\n')
	var netErr net.Error
	require.True(c.t, errors.As(err, &netErr) && netErr.Timeout(),
		"expected no reply, got error %v", err)
}

func TestBridge_AddressAndQuery(t *testing.T) {
	srv := newTestServer(t, simBackend(t))
	client := dialBridge(t, srv)

	client.send("++addr 22")
	client.send("ID?")
	client.send("++read eoi")
	assert.Equal(t, "HP3458A", client.recv())

	client.send("++addr")
	assert.Equal(t, "22", client.recv())
}

func TestBridge_DefaultAddressIsOne(t *testing.T) {
	srv := newTestServer(t, simBackend(t))
	client := dialBridge(t, srv)

	client.send("++addr")
	assert.Equal(t, "1", client.recv())

	// Nothing answers at address 1; data commands report it.
	client.send("*IDN?")
	assert.Contains(t, client.recv(), "Error: no instrument connected")
}

func TestBridge_UnknownVerb(t *testing.T) {
	srv := newTestServer(t, simBackend(t))
	client := dialBridge(t, srv)

	client.send("++frobnicate")
	assert.Equal(t, "Error: Unknown command 'frobnicate'", client.recv())

	// The connection stays usable.
	client.send("++ver")
	assert.Equal(t, versionReply, client.recv())
}

func TestBridge_AutoReadExactlyOnce(t *testing.T) {
	srv := newTestServer(t, simBackend(t))
	client := dialBridge(t, srv)

	client.send("++addr 22")
	client.send("++auto 1")

	// Each qualifying write triggers exactly one automatic read.
	client.send("ID?")
	assert.Equal(t, "HP3458A", client.recv())
	client.send("TEMP?")
	assert.Equal(t, "29.3", client.recv())

	// The device queue is now empty: a second read would have drained a
	// response that is not there.
	client.send("++read eoi")
	assert.Contains(t, client.recv(), "Error:")
}

func TestBridge_AutoReadDisabledByDefault(t *testing.T) {
	srv := newTestServer(t, simBackend(t))
	client := dialBridge(t, srv)

	client.send("++addr 22")
	client.send("ID?")
	client.recvNone()

	client.send("++read eoi")
	assert.Equal(t, "HP3458A", client.recv())
}

func TestBridge_Registers(t *testing.T) {
	srv := newTestServer(t, simBackend(t))
	client := dialBridge(t, srv)

	client.send("++auto")
	assert.Equal(t, "0", client.recv())
	client.send("++auto 1")
	client.send("++auto")
	assert.Equal(t, "1", client.recv())

	client.send("++mode")
	assert.Equal(t, "1", client.recv())

	client.send("++eoi")
	assert.Equal(t, "1", client.recv())

	client.send("++eos")
	assert.Equal(t, "3", client.recv())
	client.send("++eos 0")
	client.send("++eos")
	assert.Equal(t, "0", client.recv())

	client.send("++read_tmo_ms")
	assert.Equal(t, "1000", client.recv())
	client.send("++read_tmo_ms 250")
	client.send("++read_tmo_ms")
	assert.Equal(t, "250", client.recv())

	client.send("++status 64")
	client.send("++status")
	assert.Equal(t, "64", client.recv())
}

func TestBridge_RegisterValidation(t *testing.T) {
	srv := newTestServer(t, simBackend(t))
	client := dialBridge(t, srv)

	client.send("++read_tmo_ms 0")
	assert.Contains(t, client.recv(), "Error:")
	client.send("++read_tmo_ms 3001")
	assert.Contains(t, client.recv(), "Error:")

	client.send("++eos 4")
	assert.Contains(t, client.recv(), "Error:")

	client.send("++addr 31")
	assert.Contains(t, client.recv(), "Error:")
	client.send("++addr 22 95")
	assert.Contains(t, client.recv(), "Error:")

	// Out-of-range values are rejected, never clamped.
	client.send("++addr")
	assert.Equal(t, "1", client.recv())
}

func TestBridge_ReaddressOpenFailure(t *testing.T) {
	srv := newTestServer(t, simBackend(t))
	client := dialBridge(t, srv)

	// Nothing is bound at address 9; the open failure is an error reply, not
	// a dropped connection.
	client.send("++addr 9")
	assert.Contains(t, client.recv(), "Error:")

	client.send("++addr 22")
	client.send("ID?")
	client.send("++read eoi")
	assert.Equal(t, "HP3458A", client.recv())
}

func TestBridge_Reset(t *testing.T) {
	srv := newTestServer(t, simBackend(t))
	client := dialBridge(t, srv)

	client.send("++addr 22")
	client.send("++auto 1")
	client.send("++status 7")

	client.send("++rst")
	client.send("++auto")
	assert.Equal(t, "0", client.recv())
	client.send("++status")
	assert.Equal(t, "0", client.recv())

	// Addressing survives a protocol reset.
	client.send("++addr")
	assert.Equal(t, "22", client.recv())
}

func TestBridge_SRQAndSerialPoll(t *testing.T) {
	srv := newTestServer(t, simBackend(t))
	client := dialBridge(t, srv)

	client.send("++addr 22")
	client.send("++srq")
	assert.Equal(t, "0", client.recv())

	client.send("++spoll")
	assert.Equal(t, "0", client.recv())

	client.send("++spoll 13")
	assert.Equal(t, "0", client.recv())
}

func TestBridge_EOTTrailer(t *testing.T) {
	srv := newTestServer(t, simBackend(t))
	client := dialBridge(t, srv)

	client.send("++addr 22")
	client.send("++eot_enable 1")
	client.send("++eot_char 64") // '@'
	client.send("ID?")
	client.send("++read eoi")
	assert.Equal(t, "HP3458A@", client.recv())
}

func TestBridge_HelpIsMultiLine(t *testing.T) {
	srv := newTestServer(t, simBackend(t))
	client := dialBridge(t, srv)

	client.send("++help")
	first := client.recv()
	assert.Contains(t, first, "Prologix")
	assert.Contains(t, client.recv(), "++addr")
}

type failingInstrument struct {
	writeErr error
}

func (f *failingInstrument) Write(string) error           { return f.writeErr }
func (f *failingInstrument) Read() ([]byte, error)        { return nil, f.writeErr }
func (f *failingInstrument) Query(string) ([]byte, error) { return nil, f.writeErr }
func (f *failingInstrument) Clear() error                 { return f.writeErr }
func (f *failingInstrument) Trigger() error               { return f.writeErr }
func (f *failingInstrument) ReadStatusByte() (byte, error) { return 0, f.writeErr }
func (f *failingInstrument) Close() error                 { return nil }

type failingBackend struct {
	err error
}

func (b *failingBackend) Open(visa.ResourceName) (visa.Instrument, error) {
	return &failingInstrument{writeErr: b.err}, nil
}

func TestBridge_InstrumentErrorKeepsConnection(t *testing.T) {
	srv := newTestServer(t, &failingBackend{err: errors.New("bus power lost")})
	client := dialBridge(t, srv)

	client.send("*RST")
	reply := client.recv()
	assert.Contains(t, reply, "Error:")
	assert.Contains(t, reply, "bus power lost")

	// An ordinary instrument error never terminates the session.
	client.send("++ver")
	assert.Equal(t, versionReply, client.recv())
}

func TestBridge_MultipleClients(t *testing.T) {
	srv := newTestServer(t, simBackend(t))

	a := dialBridge(t, srv)
	b := dialBridge(t, srv)

	a.send("++addr 22")
	b.send("++addr 13")

	a.send("ID?")
	a.send("++read eoi")
	assert.Equal(t, "HP3458A", a.recv())

	b.send("*IDN?")
	b.send("++read eoi")
	assert.Equal(t, "HEWLETT-PACKARD,53131A,0,3944", b.recv())
}

func TestServer_StartAndClose(t *testing.T) {
	rm := visa.NewResourceManager()
	rm.Register(visa.InterfaceGPIB, simBackend(t))
	defer rm.Close()

	cfg, err := NewServerConfig("127.0.0.1", 0)
	require.NoError(t, err)

	srv, err := NewServer(cfg, rm)
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	assert.ErrorIs(t, srv.Start(), ErrAlreadyStarted)

	addr := srv.Addr().String()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close(), "close is idempotent")

	_, err = net.Dial("tcp", addr)
	assert.Error(t, err, "listener is gone after close")
}

func TestServer_PortAlreadyBound(t *testing.T) {
	rm := visa.NewResourceManager()
	rm.Register(visa.InterfaceGPIB, simBackend(t))
	defer rm.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	cfg, err := NewServerConfig("127.0.0.1", port)
	require.NoError(t, err)

	srv, err := NewServer(cfg, rm)
	require.NoError(t, err)
	assert.Error(t, srv.Start(), "bind failure is fatal at startup")
}
