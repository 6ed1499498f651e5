package instrument

import (
	"fmt"
	"time"

	"github.com/ILoveBacteria/test-instrument-automation/internal/pool"
)

// defaultOPCPollInterval paces the service-request polling loop while
// waiting for an operation-complete event.
const defaultOPCPollInterval = 100 * time.Millisecond

// PowerUnit selects the reporting unit of a measurement window.
type PowerUnit string

const (
	UnitWatt PowerUnit = "W"
	UnitDBM  PowerUnit = "DBM"
)

// HPE4419B drives the HP E4419B dual-channel EPM power meter over SCPI.
// The meter has two sensor channels (1, 2) and two display windows (1, 2);
// each window computes its value from a sensor via a CALC math expression.
type HPE4419B struct {
	adapter Adapter
}

var _ Driver = (*HPE4419B)(nil)

func NewHPE4419B(adapter Adapter) *HPE4419B {
	return &HPE4419B{adapter: adapter}
}

// Setup resets the meter, clears status, and restores the power-on preset.
func (d *HPE4419B) Setup() error {
	if err := d.Reset(); err != nil {
		return err
	}
	if err := d.adapter.Write("*CLS"); err != nil {
		return err
	}

	return d.adapter.Write("SYST:PRES")
}

func (d *HPE4419B) Identify() (string, error) {
	return d.adapter.Query("*IDN?")
}

func (d *HPE4419B) Reset() error {
	return d.adapter.Write("*RST")
}

// Error reads the oldest entry from the SCPI error queue.
func (d *HPE4419B) Error() (string, error) {
	return d.adapter.Query(":SYST:ERR?")
}

// ConfigureWindow routes a sensor channel's reading to a display window.
func (d *HPE4419B) ConfigureWindow(window, channel int) error {
	if err := d.checkWindow(window); err != nil {
		return err
	}
	if err := d.checkChannel(channel); err != nil {
		return err
	}

	return d.adapter.Write(fmt.Sprintf(`CALC%d:MATH "(SENS%d)"`, window, channel))
}

// SetContinuous enables or disables continuous triggering on a channel.
func (d *HPE4419B) SetContinuous(channel int, on bool) error {
	if err := d.checkChannel(channel); err != nil {
		return err
	}
	state := "OFF"
	if on {
		state = "ON"
	}

	return d.adapter.Write(fmt.Sprintf("INIT%d:CONT %s", channel, state))
}

// SetUnits selects the reporting unit of a display window.
func (d *HPE4419B) SetUnits(window int, unit PowerUnit) error {
	if err := d.checkWindow(window); err != nil {
		return err
	}
	if unit != UnitWatt && unit != UnitDBM {
		return fmt.Errorf("instrument: unknown power unit %q", unit)
	}

	return d.adapter.Write(fmt.Sprintf("UNIT%d:POW %s", window, unit))
}

// Zero performs a zeroing of the sensor on a channel. The input signal must
// be removed before zeroing.
func (d *HPE4419B) Zero(channel int) error {
	if err := d.checkChannel(channel); err != nil {
		return err
	}

	return d.adapter.Write(fmt.Sprintf("CAL%d:ZERO:AUTO ONCE", channel))
}

// Calibrate runs the internal calibration on a channel against the 50 MHz
// reference output.
func (d *HPE4419B) Calibrate(channel int) error {
	if err := d.checkChannel(channel); err != nil {
		return err
	}

	return d.adapter.Write(fmt.Sprintf("CAL%d:AUTO ONCE", channel))
}

// Initiate triggers a single measurement cycle on a channel.
func (d *HPE4419B) Initiate(channel int) error {
	if err := d.checkChannel(channel); err != nil {
		return err
	}

	return d.adapter.Write(fmt.Sprintf("INIT%d:IMM", channel))
}

// Fetch returns the last completed measurement of a display window without
// triggering a new one.
func (d *HPE4419B) Fetch(window int) (float64, error) {
	if err := d.checkWindow(window); err != nil {
		return 0, err
	}
	resp, err := d.adapter.Query(fmt.Sprintf("FETC%d?", window))
	if err != nil {
		return 0, err
	}

	return parseFloat(resp)
}

// Measure triggers a measurement on the window's channel, waits for the
// operation-complete service request, and fetches the result. interval paces
// the SRQ polling; deadline bounds the total wait. The adapter must implement
// ServiceRequester, otherwise ErrNoSRQSupport is returned.
func (d *HPE4419B) Measure(window, channel int, interval, deadline time.Duration) (float64, error) {
	if err := d.checkWindow(window); err != nil {
		return 0, err
	}
	if err := d.checkChannel(channel); err != nil {
		return 0, err
	}
	if interval <= 0 {
		interval = defaultOPCPollInterval
	}

	// Arm the status system so *OPC raises SRQ: event status bit 0 (OPC)
	// into the summary, summary bit 5 into the service request mask.
	if err := d.adapter.Write("*ESE 1"); err != nil {
		return 0, err
	}
	if err := d.adapter.Write("*SRE 32"); err != nil {
		return 0, err
	}
	if err := d.Initiate(channel); err != nil {
		return 0, err
	}
	if err := d.adapter.Write("*OPC"); err != nil {
		return 0, err
	}

	if err := d.waitOPC(interval, deadline); err != nil {
		return 0, err
	}

	return d.Fetch(window)
}

// waitOPC polls the service request line until it asserts or the deadline
// passes. Status registers are cleared after a successful wait so a stale
// OPC event cannot satisfy the next one.
func (d *HPE4419B) waitOPC(interval, deadline time.Duration) error {
	sr, ok := d.adapter.(ServiceRequester)
	if !ok {
		return ErrNoSRQSupport
	}

	deadlineTimer := pool.GetTimer(deadline)
	defer pool.PutTimer(deadlineTimer)
	pollTimer := pool.GetTimer(interval)
	defer pool.PutTimer(pollTimer)

	for {
		asserted, err := sr.ServiceRequest()
		if err != nil {
			return err
		}
		if asserted {
			return d.adapter.Write("*CLS")
		}

		select {
		case <-deadlineTimer.C:
			return ErrOperationTimeout
		case <-pollTimer.C:
			pollTimer.Reset(interval)
		}
	}
}

func (d *HPE4419B) checkWindow(window int) error {
	if window != 1 && window != 2 {
		return fmt.Errorf("instrument: window %d out of range [1, 2]", window)
	}

	return nil
}

func (d *HPE4419B) checkChannel(channel int) error {
	if channel != 1 && channel != 2 {
		return fmt.Errorf("instrument: channel %d out of range [1, 2]", channel)
	}

	return nil
}
