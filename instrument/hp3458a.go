package instrument

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Range is a measurement range in the function's base unit. AutoRange selects
// the instrument's autoranging.
type Range float64

// AutoRange selects instrument autoranging in the Configure functions.
const AutoRange Range = -1

// maxDisplayLen is the HP 3458A front-panel message limit.
const maxDisplayLen = 75

// HP3458A drives the HP 3458A 8.5-digit digital multimeter. The 3458A predates
// SCPI; its command set is the instrument's own HP-IB dialect (FUNC, NRDGS,
// TRIG, ...).
type HP3458A struct {
	adapter Adapter
}

var (
	_ Driver          = (*HP3458A)(nil)
	_ VoltageMeasurer = (*HP3458A)(nil)
)

func NewHP3458A(adapter Adapter) *HP3458A {
	return &HP3458A{adapter: adapter}
}

// Setup holds triggering so configuration commands do not fire readings.
func (d *HP3458A) Setup() error {
	return d.adapter.Write("TRIG HOLD")
}

func (d *HP3458A) Identify() (string, error) {
	return d.adapter.Query("ID?")
}

func (d *HP3458A) Reset() error {
	return d.adapter.Write("RESET")
}

func (d *HP3458A) Beep() error {
	return d.adapter.Write("BEEP")
}

// Temperature reads the multimeter's internal temperature in Celsius.
func (d *HP3458A) Temperature() (float64, error) {
	resp, err := d.adapter.Query("TEMP?")
	if err != nil {
		return 0, err
	}

	return parseFloat(resp)
}

// Error reads the oldest error from the instrument's error queue, e.g.
// `0,"NO ERROR"` or `102,"TRIGGER TOO FAST"`.
func (d *HP3458A) Error() (string, error) {
	return d.adapter.Query("ERRSTR?")
}

// Display shows a message on the front panel. Messages longer than 75
// characters are rejected, matching the instrument's limit.
func (d *HP3458A) Display(message string) error {
	if len(message) > maxDisplayLen {
		return fmt.Errorf("instrument: display message exceeds %d characters", maxDisplayLen)
	}

	return d.adapter.Write(`DISP MSG,"` + message + `"`)
}

// MeasureVoltage configures a timed burst of DC voltage readings into FIFO
// memory and fires a single trigger.
func (d *HP3458A) MeasureVoltage(readingTimes int, interval time.Duration) error {
	if readingTimes < 1 {
		return fmt.Errorf("instrument: reading times %d must be >= 1", readingTimes)
	}
	if interval <= 0 {
		return fmt.Errorf("instrument: reading interval %v must be positive", interval)
	}

	cmds := []string{
		"FUNC DCV",
		"MEM FIFO", // enable memory, discarding existing readings
		fmt.Sprintf("TIMER %g", interval.Seconds()),
		fmt.Sprintf("NRDGS %d,TIMER", readingTimes),
		"TRIG SGL",
	}

	return d.writeAll(cmds)
}

// ExternalBuffer enables or disables the external trigger buffer.
func (d *HP3458A) ExternalBuffer(enabled bool) error {
	if enabled {
		return d.adapter.Write("TBUFF ON")
	}

	return d.adapter.Write("TBUFF OFF")
}

// EnableMemory enables FIFO reading memory, discarding buffered readings.
func (d *HP3458A) EnableMemory() error {
	return d.adapter.Write("MEM FIFO")
}

// ReadingCount reports the number of readings stored in memory.
func (d *HP3458A) ReadingCount() (int, error) {
	resp, err := d.adapter.Query("MCOUNT?")
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(strings.TrimSpace(resp))
	if err != nil {
		return 0, fmt.Errorf("instrument: parse reading count %q: %w", resp, err)
	}

	return n, nil
}

// Reading triggers a single reading and returns its value.
func (d *HP3458A) Reading() (float64, error) {
	if err := d.adapter.Write("TRIG SGL"); err != nil {
		return 0, err
	}
	resp, err := d.adapter.Read(readBufferSize)
	if err != nil {
		return 0, err
	}

	return parseFloat(resp)
}

// SetFilter enables or disables the 75 kHz low-pass filter.
func (d *HP3458A) SetFilter(enabled bool) error {
	if enabled {
		return d.adapter.Write("LFILTER ON")
	}

	return d.adapter.Write("LFILTER OFF")
}

// SetTriggering selects the trigger event source and the event that arms it.
// Common sources: SGL, EXT, HOLD, AUTO.
func (d *HP3458A) SetTriggering(source, armSource string) error {
	if err := d.adapter.Write("TARM " + armSource); err != nil {
		return err
	}

	return d.adapter.Write("TRIG " + source)
}

// SetReadingBurst configures count readings per trigger. A positive interval
// paces the burst on the internal timer; zero uses the AUTO sample event.
func (d *HP3458A) SetReadingBurst(count int, interval time.Duration) error {
	if count < 1 {
		return fmt.Errorf("instrument: burst count %d must be >= 1", count)
	}

	if interval > 0 {
		if err := d.adapter.Write(fmt.Sprintf("TIMER %g", interval.Seconds())); err != nil {
			return err
		}
		return d.adapter.Write(fmt.Sprintf("NRDGS %d,TIMER", count))
	}

	return d.adapter.Write(fmt.Sprintf("NRDGS %d,AUTO", count))
}

// ConfigureDCV sets up DC voltage measurement. AutoRange selects autoranging.
func (d *HP3458A) ConfigureDCV(rng Range, nplc float64, autoZero, highZ bool) error {
	return d.configure("DCV", rng, nplc, autoZero, highZ)
}

// ConfigureDCI sets up DC current measurement.
func (d *HP3458A) ConfigureDCI(rng Range, nplc float64, autoZero, highZ bool) error {
	return d.configure("DCI", rng, nplc, autoZero, highZ)
}

// ConfigureACV sets up true-RMS AC voltage measurement with synchronous
// sampling.
func (d *HP3458A) ConfigureACV(rng Range, nplc float64, autoZero, highZ bool) error {
	if err := d.writeAll([]string{"PRESET NORM", "ACV", "SETACV SYNC", "NDIG 6", "TRIG SGL"}); err != nil {
		return err
	}
	if err := d.setRange(rng, nplc); err != nil {
		return err
	}
	if err := d.autoZero(autoZero); err != nil {
		return err
	}

	return d.highImpedance(highZ)
}

// ConfigureACI sets up AC current measurement.
func (d *HP3458A) ConfigureACI(rng Range, nplc float64, autoZero, highZ bool) error {
	return d.configure("ACI", rng, nplc, autoZero, highZ)
}

// ConfigureOhm2W sets up 2-wire resistance measurement.
func (d *HP3458A) ConfigureOhm2W(rng Range, nplc float64, autoZero, offsetComp bool) error {
	return d.configureOhm("OHM", rng, nplc, autoZero, offsetComp)
}

// ConfigureOhm4W sets up 4-wire resistance measurement.
func (d *HP3458A) ConfigureOhm4W(rng Range, nplc float64, autoZero, offsetComp bool) error {
	return d.configureOhm("OHMF", rng, nplc, autoZero, offsetComp)
}

// gateTimeResolution maps the supported frequency gate times (seconds) to the
// FUNC resolution parameter the instrument expects.
var gateTimeResolution = map[float64]float64{
	1.0:    0.00001, // 7 digits
	0.1:    0.0001,  // 7 digits
	0.01:   0.001,   // 6 digits
	0.001:  0.01,    // 5 digits
	0.0001: 0.1,     // 4 digits
}

// ConfigureFrequency sets up frequency measurement on an AC voltage source
// signal. gateTime must be one of 1, 0.1, 0.01, 0.001, or 0.0001 seconds.
func (d *HP3458A) ConfigureFrequency(rng Range, gateTime float64) error {
	resolution, ok := gateTimeResolution[gateTime]
	if !ok {
		return fmt.Errorf("instrument: gate time %g not in {1, 0.1, 0.01, 0.001, 0.0001}", gateTime)
	}

	rangeParam := "AUTO"
	if rng != AutoRange {
		rangeParam = fmt.Sprintf("%.6f", float64(rng))
	}

	return d.writeAll([]string{
		"PRESET NORM",
		"FSOURCE ACV",
		fmt.Sprintf("FUNC FREQ, %s, %g", rangeParam, resolution),
		"TRIG SGL",
	})
}

// ConfigureACDCV sets up combined AC+DC true-RMS voltage measurement.
// acBandwidthLow is the lowest expected frequency component in Hz.
func (d *HP3458A) ConfigureACDCV(rng Range, nplc float64, acBandwidthLow int, highZ bool) error {
	cmds := []string{
		"PRESET NORM",
		"ACDCV",
		fmt.Sprintf("ACBAND %d", acBandwidthLow),
		"NDIG 6",
		"TRIG SGL",
	}
	if err := d.writeAll(cmds); err != nil {
		return err
	}
	if err := d.setRange(rng, nplc); err != nil {
		return err
	}
	if err := d.autoZero(true); err != nil {
		return err
	}

	return d.highImpedance(highZ)
}

func (d *HP3458A) configure(function string, rng Range, nplc float64, autoZero, highZ bool) error {
	if err := d.writeAll([]string{"PRESET NORM", function, "NDIG 6", "TRIG SGL"}); err != nil {
		return err
	}
	if err := d.setRange(rng, nplc); err != nil {
		return err
	}
	if err := d.autoZero(autoZero); err != nil {
		return err
	}

	return d.highImpedance(highZ)
}

func (d *HP3458A) configureOhm(function string, rng Range, nplc float64, autoZero, offsetComp bool) error {
	if err := d.writeAll([]string{"PRESET NORM", function, "NDIG 6", "TRIG SGL"}); err != nil {
		return err
	}
	if err := d.setRange(rng, nplc); err != nil {
		return err
	}
	if err := d.autoZero(autoZero); err != nil {
		return err
	}
	if offsetComp {
		return d.adapter.Write("OCOMP ON")
	}

	return d.adapter.Write("OCOMP OFF")
}

func (d *HP3458A) setRange(rng Range, nplc float64) error {
	if rng == AutoRange {
		if err := d.adapter.Write("RANGE AUTO"); err != nil {
			return err
		}
	} else if err := d.adapter.Write(fmt.Sprintf("RANGE %.6f", float64(rng))); err != nil {
		return err
	}

	return d.adapter.Write(fmt.Sprintf("NPLC %.3f", nplc))
}

func (d *HP3458A) autoZero(enabled bool) error {
	if enabled {
		return d.adapter.Write("AZERO ON")
	}

	return d.adapter.Write("AZERO OFF")
}

func (d *HP3458A) highImpedance(enabled bool) error {
	// FIXEDZ OFF selects the >10 GOhm input path.
	if enabled {
		return d.adapter.Write("FIXEDZ OFF")
	}

	return d.adapter.Write("FIXEDZ ON")
}

func (d *HP3458A) writeAll(cmds []string) error {
	for _, cmd := range cmds {
		if err := d.adapter.Write(cmd); err != nil {
			return err
		}
	}

	return nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("instrument: parse numeric response %q: %w", s, err)
	}

	return v, nil
}
