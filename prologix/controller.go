package prologix

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ILoveBacteria/test-instrument-automation/internal/pool"
	"github.com/ILoveBacteria/test-instrument-automation/logger"
)

// Controller is the client-side adapter: one Prologix protocol session over
// one persistent TCP connection.
//
// Construction dials the bridge and runs the setup sequence: controller mode,
// auto-read off, the bridge-side read timeout, no EOS translation, EOI on,
// then selects the configured device address.
//
// Every method blocks until the bridge answers or the transport timeout
// elapses. Exactly one request may be in flight; callers must serialize their
// own use of one Controller. Transport failures propagate to the caller
// unmodified and are never retried internally.
type Controller struct {
	cfg    *ControllerConfig
	conn   net.Conn
	logger logger.Logger
	closed bool
}

// NewController validates cfg's timeout invariants, dials the bridge, and runs
// the setup sequence.
func NewController(cfg *ControllerConfig) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("prologix: controller config is nil")
	}
	// Construction-time validation happens before any socket I/O, even if the
	// config was mutated after NewControllerConfig.
	if err := validateTimeouts(cfg.readTimeout, cfg.transportTimeout); err != nil {
		return nil, err
	}

	conn, err := net.DialTimeout("tcp", cfg.Addr(), cfg.connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("prologix: dial %s: %w", cfg.Addr(), err)
	}

	c := &Controller{
		cfg:    cfg,
		conn:   conn,
		logger: cfg.GetLogger().With("bridge", cfg.Addr()),
	}

	if err := c.setup(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.logger.Debug("prologix: session established", "gpib_addr", cfg.addr.String())

	return c, nil
}

// setup programs the bridge for request/response operation.
func (c *Controller) setup() error {
	lines := []string{
		FormatMeta(VerbMode, "1"),
		FormatMeta(VerbAuto, "0"),
		FormatMeta(VerbReadTimeout, strconv.FormatInt(c.cfg.readTimeout.Milliseconds(), 10)),
		FormatMeta(VerbEOS, strconv.Itoa(int(EOSModeNone))),
		FormatMeta(VerbEOI, "1"),
		FormatMeta(VerbAddr, c.cfg.addr.Encode()),
	}
	for _, line := range lines {
		if err := c.send(line); err != nil {
			return err
		}
	}

	return nil
}

// Close shuts the session's socket. The Controller is unusable afterwards.
func (c *Controller) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	return c.conn.Close()
}

// Write forwards one instrument command verbatim. No reply is expected.
func (c *Controller) Write(cmd string) error {
	return c.send(cmd)
}

// Read asks the bridge to read from the addressed device until EOI, then
// receives up to n bytes with exactly one trailing line terminator stripped.
//
// A bridge-side failure (device timeout, instrument unreachable) is returned
// as a *BridgeError.
func (c *Controller) Read(n int) (string, error) {
	if err := c.send(FormatMeta(VerbRead, "eoi")); err != nil {
		return "", err
	}

	return c.recvReply(n)
}

// Query performs Write followed by Read with the default buffer size. It is
// the fundamental request/response primitive of every instrument driver.
func (c *Controller) Query(cmd string) (string, error) {
	if err := c.Write(cmd); err != nil {
		return "", err
	}

	return c.Read(DefaultReadBufferSize)
}

// --- Meta-command surface ---

// SetAddress selects the GPIB device subsequent commands target.
func (c *Controller) SetAddress(addr Address) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	if err := c.send(FormatMeta(VerbAddr, addr.Encode())); err != nil {
		return err
	}
	c.cfg.addr = addr

	return nil
}

// Address queries the currently addressed device from the bridge.
func (c *Controller) Address() (Address, error) {
	reply, err := c.getReply(VerbAddr)
	if err != nil {
		return Address{}, err
	}

	return ParseAddress(strings.Fields(reply))
}

// SetControllerMode selects controller (true) or device (false) role.
func (c *Controller) SetControllerMode(controller bool) error {
	return c.send(FormatMeta(VerbMode, FormatBool(controller)))
}

// ControllerMode reports whether the bridge is in controller role.
func (c *Controller) ControllerMode() (bool, error) {
	return c.getBool(VerbMode)
}

// SetAutoRead enables or disables the automatic read after a forwarded command
// containing '?'.
func (c *Controller) SetAutoRead(enabled bool) error {
	return c.send(FormatMeta(VerbAuto, FormatBool(enabled)))
}

// AutoRead queries the automatic read-after-write flag.
func (c *Controller) AutoRead() (bool, error) {
	return c.getBool(VerbAuto)
}

// SetReadTimeout programs the bridge-side per-operation read timeout. The
// timeout invariants are re-validated against the session's transport timeout.
func (c *Controller) SetReadTimeout(d time.Duration) error {
	if err := validateTimeouts(d, c.cfg.transportTimeout); err != nil {
		return err
	}
	if err := c.send(FormatMeta(VerbReadTimeout, strconv.FormatInt(d.Milliseconds(), 10))); err != nil {
		return err
	}
	c.cfg.readTimeout = d

	return nil
}

// ReadTimeout queries the bridge-side per-operation read timeout.
func (c *Controller) ReadTimeout() (time.Duration, error) {
	n, err := c.getInt(VerbReadTimeout)
	if err != nil {
		return 0, err
	}

	return time.Duration(n) * time.Millisecond, nil
}

// SetEOI enables or disables End-Or-Identify assertion with the last byte of
// forwarded data.
func (c *Controller) SetEOI(enabled bool) error {
	return c.send(FormatMeta(VerbEOI, FormatBool(enabled)))
}

// EOI queries the End-Or-Identify flag.
func (c *Controller) EOI() (bool, error) {
	return c.getBool(VerbEOI)
}

// SetEOSMode selects the end-of-string terminator appended to forwarded data.
func (c *Controller) SetEOSMode(mode EOSMode) error {
	if !mode.Valid() {
		return fmt.Errorf("prologix: %w: %d", ErrInvalidEOSMode, int(mode))
	}

	return c.send(FormatMeta(VerbEOS, strconv.Itoa(int(mode))))
}

// EOSMode queries the end-of-string terminator mode.
func (c *Controller) EOSMode() (EOSMode, error) {
	n, err := c.getInt(VerbEOS)
	if err != nil {
		return 0, err
	}
	mode := EOSMode(n)
	if !mode.Valid() {
		return 0, fmt.Errorf("prologix: %w: eos %d", ErrInvalidReply, n)
	}

	return mode, nil
}

// SetEOTEnable enables or disables appending the EOT character to device reads.
func (c *Controller) SetEOTEnable(enabled bool) error {
	return c.send(FormatMeta(VerbEOTEnable, FormatBool(enabled)))
}

// EOTEnable queries the EOT trailer flag.
func (c *Controller) EOTEnable() (bool, error) {
	return c.getBool(VerbEOTEnable)
}

// SetEOTChar sets the trailer byte appended to device reads when EOT is
// enabled.
func (c *Controller) SetEOTChar(b byte) error {
	return c.send(FormatMeta(VerbEOTChar, strconv.Itoa(int(b))))
}

// EOTChar queries the EOT trailer byte.
func (c *Controller) EOTChar() (byte, error) {
	n, err := c.getInt(VerbEOTChar)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("prologix: %w: eot_char %d", ErrInvalidReply, n)
	}

	return byte(n), nil
}

// Clear sends a Selected Device Clear to the addressed instrument.
func (c *Controller) Clear() error {
	return c.send(FormatMeta(VerbClear))
}

// InterfaceClear asserts the GPIB IFC line, making the bridge
// controller-in-charge.
func (c *Controller) InterfaceClear() error {
	return c.send(FormatMeta(VerbIFC))
}

// Local returns the addressed instrument to front-panel control.
func (c *Controller) Local() error {
	return c.send(FormatMeta(VerbLocal))
}

// LocalLockout locks the addressed instrument's front panel.
func (c *Controller) LocalLockout() error {
	return c.send(FormatMeta(VerbLocalLockout))
}

// SetListenOnly enables or disables listen-only mode (device role).
func (c *Controller) SetListenOnly(enabled bool) error {
	return c.send(FormatMeta(VerbListenOnly, FormatBool(enabled)))
}

// ListenOnly queries the listen-only flag.
func (c *Controller) ListenOnly() (bool, error) {
	return c.getBool(VerbListenOnly)
}

// Trigger issues a group-execute-trigger to the addressed device, or to the
// given devices (at most 15).
func (c *Controller) Trigger(addrs ...Address) error {
	if len(addrs) > MaxTriggerAddrs {
		return fmt.Errorf("prologix: %w: %d", ErrTooManyTriggerAddrs, len(addrs))
	}

	args := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if err := addr.Validate(); err != nil {
			return err
		}
		args = append(args, addr.Encode())
	}

	return c.send(FormatMeta(VerbTrigger, args...))
}

// Reset asks the bridge to reset its own protocol state. The instrument is
// untouched.
func (c *Controller) Reset() error {
	return c.send(FormatMeta(VerbReset))
}

// ServiceRequest reports whether the SRQ line is asserted.
func (c *Controller) ServiceRequest() (bool, error) {
	return c.getBool(VerbSRQ)
}

// SerialPoll reads the status byte of the given device, or of the currently
// addressed device when no address is given.
func (c *Controller) SerialPoll(addrs ...Address) (byte, error) {
	if len(addrs) > 1 {
		return 0, fmt.Errorf("prologix: spoll wants at most 1 address, got %d", len(addrs))
	}

	args := make([]string, 0, 1)
	if len(addrs) == 1 {
		if err := addrs[0].Validate(); err != nil {
			return 0, err
		}
		args = append(args, addrs[0].Encode())
	}

	if err := c.send(FormatMeta(VerbSerialPoll, args...)); err != nil {
		return 0, err
	}
	reply, err := c.recvReply(DefaultReadBufferSize)
	if err != nil {
		return 0, err
	}
	n, err := ParseIntReply(reply)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("prologix: %w: status byte %d", ErrInvalidReply, n)
	}

	return byte(n), nil
}

// SetStatus sets the status byte the bridge reports when serial-polled in
// device role.
func (c *Controller) SetStatus(b byte) error {
	return c.send(FormatMeta(VerbStatus, strconv.Itoa(int(b))))
}

// Status queries the bridge's emulated status byte.
func (c *Controller) Status() (byte, error) {
	n, err := c.getInt(VerbStatus)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("prologix: %w: status byte %d", ErrInvalidReply, n)
	}

	return byte(n), nil
}

// Version queries the bridge's version string.
func (c *Controller) Version() (string, error) {
	return c.getReply(VerbVersion)
}

// Help queries the bridge's command summary. The reply may span several lines.
func (c *Controller) Help() (string, error) {
	if err := c.send(FormatMeta(VerbHelp)); err != nil {
		return "", err
	}

	return c.recv(4 * DefaultReadBufferSize)
}

// WaitSRQ polls the SRQ line every interval until it is asserted or deadline
// elapses, returning ErrSRQWaitTimeout in the latter case. There is no
// interrupt-driven SRQ in this protocol; polling is the only mechanism.
func (c *Controller) WaitSRQ(interval, deadline time.Duration) error {
	if interval <= 0 || deadline <= 0 {
		return fmt.Errorf("prologix: SRQ poll interval %v and deadline %v must be positive", interval, deadline)
	}

	deadlineTimer := pool.GetTimer(deadline)
	defer pool.PutTimer(deadlineTimer)

	for {
		asserted, err := c.ServiceRequest()
		if err != nil {
			return err
		}
		if asserted {
			return nil
		}

		intervalTimer := pool.GetTimer(interval)
		select {
		case <-deadlineTimer.C:
			pool.PutTimer(intervalTimer)
			return fmt.Errorf("prologix: %w after %v", ErrSRQWaitTimeout, deadline)
		case <-intervalTimer.C:
			pool.PutTimer(intervalTimer)
		}
	}
}

// --- wire helpers ---

// send writes one line with the transport deadline applied.
func (c *Controller) send(line string) error {
	if c.closed {
		return fmt.Errorf("prologix: %w", ErrClosed)
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.transportTimeout)); err != nil {
		return fmt.Errorf("prologix: set write deadline: %w", err)
	}
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("prologix: send: %w", err)
	}

	return nil
}

// recv performs one read of up to n bytes with the transport deadline applied
// and exactly one trailing line terminator stripped.
func (c *Controller) recv(n int) (string, error) {
	if c.closed {
		return "", fmt.Errorf("prologix: %w", ErrClosed)
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.transportTimeout)); err != nil {
		return "", fmt.Errorf("prologix: set read deadline: %w", err)
	}

	buf := make([]byte, n)
	read, err := c.conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("prologix: recv: %w", err)
	}

	return stripTerminator(string(buf[:read])), nil
}

// recvReply receives one reply and classifies bridge error lines.
func (c *Controller) recvReply(n int) (string, error) {
	reply, err := c.recv(n)
	if err != nil {
		return "", err
	}
	if msg, ok := strings.CutPrefix(reply, "Error: "); ok {
		return "", &BridgeError{Message: msg}
	}

	return reply, nil
}

// getReply issues a bare verb and receives its single-line reply.
func (c *Controller) getReply(verb string) (string, error) {
	if err := c.send(FormatMeta(verb)); err != nil {
		return "", err
	}

	return c.recvReply(DefaultReadBufferSize)
}

func (c *Controller) getBool(verb string) (bool, error) {
	reply, err := c.getReply(verb)
	if err != nil {
		return false, err
	}

	return ParseBoolReply(reply)
}

func (c *Controller) getInt(verb string) (int, error) {
	reply, err := c.getReply(verb)
	if err != nil {
		return 0, err
	}

	return ParseIntReply(reply)
}

// stripTerminator removes exactly one trailing line terminator: CRLF as a
// unit, otherwise a single LF or CR.
func stripTerminator(s string) string {
	switch {
	case strings.HasSuffix(s, "\r\n"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "\n"), strings.HasSuffix(s, "\r"):
		return s[:len(s)-1]
	default:
		return s
	}
}
