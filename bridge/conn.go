package bridge

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ILoveBacteria/test-instrument-automation/logger"
	"github.com/ILoveBacteria/test-instrument-automation/prologix"
	"github.com/ILoveBacteria/test-instrument-automation/visa"
)

// versionReply answers ++ver. The bridge emulates the Prologix command set
// without claiming byte compatibility with any firmware revision.
const versionReply = "GPIB-ETHERNET bridge version 1.0 (Prologix compatible)"

// connState is the per-connection protocol register file.
type connState struct {
	addr          prologix.Address
	controller    bool
	autoRead      bool
	eoi           bool
	eos           prologix.EOSMode
	eotEnable     bool
	eotChar       byte
	listenOnly    bool
	status        byte
	readTimeoutMs int
}

// connection is one protocol session: a TCP client multiplexed onto an
// instrument handle. It owns at most one open handle at a time; re-addressing
// closes the old handle and opens a new one.
type connection struct {
	conn   net.Conn
	rm     *visa.ResourceManager
	cfg    *ServerConfig
	logger logger.Logger

	state connState
	inst  visa.Instrument
}

func newConnection(conn net.Conn, rm *visa.ResourceManager, cfg *ServerConfig) *connection {
	return &connection{
		conn:   conn,
		rm:     rm,
		cfg:    cfg,
		logger: cfg.GetLogger().With("client", conn.RemoteAddr().String()),
		state:  defaultState(),
	}
}

// serve runs the connection's dispatch loop until EOF, a transport failure,
// or server shutdown. Ordinary instrument errors never leave this loop; they
// become "Error: ..." replies.
func (c *connection) serve() {
	defer c.teardown()

	c.logger.Info("bridge: client connected")

	// Power-on default: address 1 selected and its resource opened. An open
	// failure is tolerated; data commands report it until re-addressed.
	if err := c.reopen(c.state.addr); err != nil {
		c.logger.Warn("bridge: default address not reachable",
			"gpib_addr", c.state.addr.String(), "error", err)
	}

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		c.logger.Debug("bridge: received", "line", line)
		c.dispatch(prologix.ParseLine(line))
	}

	if err := scanner.Err(); err != nil {
		c.logger.Warn("bridge: client read failed", "error", err)
	}
}

func (c *connection) teardown() {
	if c.inst != nil {
		_ = c.inst.Close()
		c.inst = nil
	}
	_ = c.conn.Close()
	c.logger.Info("bridge: client disconnected")
}

func (c *connection) dispatch(cmd prologix.Command) {
	if !cmd.Meta {
		c.forward(cmd.Data)
		return
	}

	switch cmd.Verb {
	case prologix.VerbAddr:
		c.handleAddr(cmd.Args)
	case prologix.VerbMode:
		c.handleBoolReg(cmd.Args, &c.state.controller)
	case prologix.VerbAuto:
		c.handleBoolReg(cmd.Args, &c.state.autoRead)
	case prologix.VerbRead:
		c.handleRead(cmd.Args)
	case prologix.VerbReadTimeout:
		c.handleReadTimeout(cmd.Args)
	case prologix.VerbEOI:
		c.handleBoolReg(cmd.Args, &c.state.eoi)
	case prologix.VerbEOS:
		c.handleEOS(cmd.Args)
	case prologix.VerbEOTEnable:
		c.handleBoolReg(cmd.Args, &c.state.eotEnable)
	case prologix.VerbEOTChar:
		c.handleByteReg(cmd.Args, &c.state.eotChar)
	case prologix.VerbClear:
		c.withInstrument(func(inst visa.Instrument) error { return inst.Clear() })
	case prologix.VerbIFC:
		// Interface clear is owned by the instrument-access backend; the
		// command is accepted for client compatibility.
	case prologix.VerbLocal, prologix.VerbLocalLockout:
		// REN line control is not exposed by the access layer; accepted.
	case prologix.VerbListenOnly:
		c.handleBoolReg(cmd.Args, &c.state.listenOnly)
	case prologix.VerbTrigger:
		c.handleTrigger(cmd.Args)
	case prologix.VerbReset:
		c.handleReset()
	case prologix.VerbSRQ:
		c.handleSRQ()
	case prologix.VerbSerialPoll:
		c.handleSerialPoll(cmd.Args)
	case prologix.VerbStatus:
		c.handleByteReg(cmd.Args, &c.state.status)
	case prologix.VerbVersion:
		c.reply(versionReply)
	case prologix.VerbHelp:
		c.reply(helpReply)
	default:
		c.reply("Error: Unknown command '" + cmd.Verb + "'")
	}
}

// forward relays an instrument command verbatim. With auto-read enabled and a
// '?' in the command, exactly one automatic read follows the write.
func (c *connection) forward(data string) {
	if c.inst == nil {
		c.reply("Error: no instrument connected at address " + c.state.addr.String())
		return
	}

	if err := c.inst.Write(data); err != nil {
		c.replyError(err)
		return
	}

	if c.state.autoRead && strings.Contains(data, "?") {
		c.readAndReply()
	}
}

// readAndReply performs one device read and sends the result, honoring the
// EOT trailer register.
func (c *connection) readAndReply() {
	if c.inst == nil {
		c.reply("Error: no instrument connected at address " + c.state.addr.String())
		return
	}

	data, err := c.inst.Read()
	if err != nil {
		c.replyError(err)
		return
	}
	if c.state.eotEnable {
		data = append(data, c.state.eotChar)
	}

	c.reply(string(data))
}

func (c *connection) handleAddr(args []string) {
	if len(args) == 0 {
		c.reply(c.state.addr.Encode())
		return
	}

	addr, err := prologix.ParseAddress(args)
	if err != nil {
		c.replyError(err)
		return
	}

	if err := c.reopen(addr); err != nil {
		// Re-addressing pays a fresh resource open, which may fail; that is
		// an instrument error, not a dead connection.
		c.replyError(err)
	}
}

// reopen closes the current instrument handle and opens one bound to addr.
// The address register changes even when the open fails, matching the
// controller's select-then-connect behavior.
func (c *connection) reopen(addr prologix.Address) error {
	if c.inst != nil {
		_ = c.inst.Close()
		c.inst = nil
	}
	c.state.addr = addr

	secondary := -1
	if addr.HasSecondary {
		secondary = addr.Secondary
	}

	inst, err := c.rm.OpenResource(visa.GPIBResourceName(c.cfg.Board(), addr.Primary, secondary))
	if err != nil {
		return err
	}
	c.inst = inst
	c.logger.Debug("bridge: addressed", "gpib_addr", addr.String())

	return nil
}

func (c *connection) handleRead(args []string) {
	if len(args) > 1 {
		c.reply("Error: read wants at most one argument")
		return
	}
	if len(args) == 1 && args[0] != "eoi" {
		// The alternative form names a terminator byte; the access layer
		// frames reads itself, so the argument is validated and accepted.
		if n, err := strconv.Atoi(args[0]); err != nil || n < 0 || n > 255 {
			c.reply("Error: invalid read terminator '" + args[0] + "'")
			return
		}
	}

	c.readAndReply()
}

func (c *connection) handleReadTimeout(args []string) {
	if len(args) == 0 {
		c.reply(strconv.Itoa(c.state.readTimeoutMs))
		return
	}

	ms, err := strconv.Atoi(args[0])
	if err != nil || ms < 1 || ms > 3000 {
		c.reply("Error: read_tmo_ms out of range [1, 3000]")
		return
	}
	c.state.readTimeoutMs = ms
}

func (c *connection) handleEOS(args []string) {
	if len(args) == 0 {
		c.reply(strconv.Itoa(int(c.state.eos)))
		return
	}

	mode, err := prologix.ParseEOSMode(args[0])
	if err != nil {
		c.replyError(err)
		return
	}
	c.state.eos = mode
}

// handleBoolReg implements the shared get/set shape of the 0|1 registers.
func (c *connection) handleBoolReg(args []string, reg *bool) {
	if len(args) == 0 {
		c.reply(prologix.FormatBool(*reg))
		return
	}

	v, err := prologix.ParseBoolReply(args[0])
	if err != nil {
		c.replyError(err)
		return
	}
	*reg = v
}

func (c *connection) handleByteReg(args []string, reg *byte) {
	if len(args) == 0 {
		c.reply(strconv.Itoa(int(*reg)))
		return
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 || n > 255 {
		c.reply("Error: argument out of range [0, 255]")
		return
	}
	*reg = byte(n)
}

func (c *connection) handleTrigger(args []string) {
	if len(args) == 0 {
		c.withInstrument(func(inst visa.Instrument) error { return inst.Trigger() })
		return
	}
	if len(args) > prologix.MaxTriggerAddrs {
		c.reply("Error: trg accepts at most 15 addresses")
		return
	}

	for _, arg := range args {
		addr, err := prologix.ParseAddress([]string{arg})
		if err != nil {
			c.replyError(err)
			return
		}
		if err := c.triggerAt(addr); err != nil {
			c.replyError(err)
			return
		}
	}
}

// triggerAt opens a short-lived handle to trigger a device other than the
// currently addressed one.
func (c *connection) triggerAt(addr prologix.Address) error {
	if addr == c.state.addr && c.inst != nil {
		return c.inst.Trigger()
	}

	inst, err := c.rm.OpenResource(visa.GPIBResourceName(c.cfg.Board(), addr.Primary, -1))
	if err != nil {
		return err
	}
	defer inst.Close()

	return inst.Trigger()
}

// handleReset restores the connection's protocol registers to power-on
// defaults. The instrument handle and its state are untouched; only the
// bridge's own registers reset.
func (c *connection) handleReset() {
	addr := c.state.addr
	c.state = defaultState()
	c.state.addr = addr
}

func (c *connection) handleSRQ() {
	c.withInstrumentReply(func(inst visa.Instrument) (string, error) {
		stb, err := inst.ReadStatusByte()
		if err != nil {
			return "", err
		}
		// The SRQ line mirrors bit 6 of the status byte.
		return prologix.FormatBool(stb&0x40 != 0), nil
	})
}

func (c *connection) handleSerialPoll(args []string) {
	if len(args) == 0 {
		c.withInstrumentReply(func(inst visa.Instrument) (string, error) {
			stb, err := inst.ReadStatusByte()
			if err != nil {
				return "", err
			}
			return strconv.Itoa(int(stb)), nil
		})
		return
	}

	addr, err := prologix.ParseAddress(args)
	if err != nil {
		c.replyError(err)
		return
	}

	secondary := -1
	if addr.HasSecondary {
		secondary = addr.Secondary
	}
	inst, err := c.rm.OpenResource(visa.GPIBResourceName(c.cfg.Board(), addr.Primary, secondary))
	if err != nil {
		c.replyError(err)
		return
	}
	defer inst.Close()

	stb, err := inst.ReadStatusByte()
	if err != nil {
		c.replyError(err)
		return
	}
	c.reply(strconv.Itoa(int(stb)))
}

// withInstrument runs op against the current handle, converting failure (or a
// missing handle) to an error reply.
func (c *connection) withInstrument(op func(visa.Instrument) error) {
	if c.inst == nil {
		c.reply("Error: no instrument connected at address " + c.state.addr.String())
		return
	}
	if err := op(c.inst); err != nil {
		c.replyError(err)
	}
}

func (c *connection) withInstrumentReply(op func(visa.Instrument) (string, error)) {
	if c.inst == nil {
		c.reply("Error: no instrument connected at address " + c.state.addr.String())
		return
	}

	resp, err := op(c.inst)
	if err != nil {
		c.replyError(err)
		return
	}
	c.reply(resp)
}

func (c *connection) reply(line string) {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout())); err != nil {
		c.logger.Warn("bridge: set write deadline failed", "error", err)
		return
	}
	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.logger.Warn("bridge: reply failed", "error", err)
	}
}

func (c *connection) replyError(err error) {
	msg := err.Error()
	if cut, ok := strings.CutPrefix(msg, "prologix: "); ok {
		msg = cut
	}
	c.reply("Error: " + msg)
}

const helpReply = `Prologix-compatible commands:
++addr [pad] [sad]    - get/set GPIB address (sad encoded as value+96)
++auto [0|1]          - get/set read-after-write
++clr                 - selected device clear
++eoi [0|1]           - get/set EOI assertion
++eos [0|1|2|3]       - get/set EOS mode (CRLF|CR|LF|none)
++eot_enable [0|1]    - get/set EOT trailer
++eot_char [n]        - get/set EOT trailer byte
++help                - this text
++ifc                 - interface clear
++llo                 - local lockout
++loc                 - go to local
++lon [0|1]           - get/set listen-only
++mode [0|1]          - get/set device|controller role
++read [eoi|n]        - read from addressed device
++read_tmo_ms [n]     - get/set read timeout in ms [1, 3000]
++rst                 - reset bridge protocol state
++spoll [pad] [sad]   - serial poll
++srq                 - query SRQ line
++status [n]          - get/set emulated status byte
++trg [addr...]       - group execute trigger
++ver                 - version`
