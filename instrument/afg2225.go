package instrument

import (
	"fmt"
)

// Waveform shapes accepted by the AFG-2225.
type Waveform string

const (
	WaveformSine   Waveform = "sine"
	WaveformSquare Waveform = "square"
	WaveformRamp   Waveform = "ramp"
	WaveformPulse  Waveform = "pulse"
	WaveformNoise  Waveform = "noise"
	WaveformUser   Waveform = "user"
)

// waveformParams maps the shape names to the SOURce:FUNCtion parameter.
var waveformParams = map[Waveform]string{
	WaveformSine:   "SIN",
	WaveformSquare: "SQU",
	WaveformRamp:   "RAMP",
	WaveformPulse:  "PULS",
	WaveformNoise:  "NOIS",
	WaveformUser:   "USER",
}

// AFG-2225 output limits.
const (
	minFrequencyHz = 1e-6
	maxFrequencyHz = 25e6
	minAmplitudeV  = 0.001
	maxAmplitudeV  = 10.0
)

// AFG2225 drives the GW Instek AFG-2225 two-channel arbitrary function
// generator over SCPI. Channel numbers are 1 or 2 throughout.
type AFG2225 struct {
	adapter Adapter
}

var _ Driver = (*AFG2225)(nil)

func NewAFG2225(adapter Adapter) *AFG2225 {
	return &AFG2225{adapter: adapter}
}

// Setup resets both channels to their power-on defaults.
func (d *AFG2225) Setup() error {
	return d.Reset()
}

func (d *AFG2225) Identify() (string, error) {
	return d.adapter.Query("*IDN?")
}

func (d *AFG2225) Reset() error {
	return d.adapter.Write("*RST")
}

// SetShape selects the output waveform for a channel.
func (d *AFG2225) SetShape(channel int, shape Waveform) error {
	param, ok := waveformParams[shape]
	if !ok {
		return fmt.Errorf("instrument: unknown waveform %q", shape)
	}
	if err := d.checkChannel(channel); err != nil {
		return err
	}

	return d.adapter.Write(fmt.Sprintf("SOURce%d:FUNCtion %s", channel, param))
}

// SetFrequency sets the channel output frequency in Hz.
func (d *AFG2225) SetFrequency(channel int, hz float64) error {
	if hz < minFrequencyHz || hz > maxFrequencyHz {
		return fmt.Errorf("instrument: frequency %g Hz out of range [%g, %g]", hz, minFrequencyHz, maxFrequencyHz)
	}
	if err := d.checkChannel(channel); err != nil {
		return err
	}

	return d.adapter.Write(fmt.Sprintf("SOURce%d:FREQuency %g", channel, hz))
}

// SetAmplitude sets the peak-to-peak output amplitude in volts.
func (d *AFG2225) SetAmplitude(channel int, volts float64) error {
	if volts < minAmplitudeV || volts > maxAmplitudeV {
		return fmt.Errorf("instrument: amplitude %g V out of range [%g, %g]", volts, minAmplitudeV, maxAmplitudeV)
	}
	if err := d.checkChannel(channel); err != nil {
		return err
	}

	return d.adapter.Write(fmt.Sprintf("SOURce%d:AMPlitude %g", channel, volts))
}

// SetOffset sets the DC offset in volts.
func (d *AFG2225) SetOffset(channel int, volts float64) error {
	if err := d.checkChannel(channel); err != nil {
		return err
	}

	return d.adapter.Write(fmt.Sprintf("SOURce%d:DCOffset %g", channel, volts))
}

// SetPhase sets the output phase in degrees.
func (d *AFG2225) SetPhase(channel int, degrees float64) error {
	if err := d.checkChannel(channel); err != nil {
		return err
	}

	return d.adapter.Write(fmt.Sprintf("SOURce%d:PHASe %g", channel, degrees))
}

// SetDutyCycle sets the square-wave duty cycle in percent.
func (d *AFG2225) SetDutyCycle(channel int, percent float64) error {
	if percent < 1 || percent > 99 {
		return fmt.Errorf("instrument: duty cycle %g%% out of range [1, 99]", percent)
	}
	if err := d.checkChannel(channel); err != nil {
		return err
	}

	return d.adapter.Write(fmt.Sprintf("SOURce%d:SQUare:DCYCle %g", channel, percent))
}

// SetOutputLoad selects the output termination: "50ohm" or "highZ".
func (d *AFG2225) SetOutputLoad(channel int, load string) error {
	var param string
	switch load {
	case "50ohm":
		param = "DEF"
	case "highZ":
		param = "INF"
	default:
		return fmt.Errorf("instrument: unknown output load %q (want \"50ohm\" or \"highZ\")", load)
	}
	if err := d.checkChannel(channel); err != nil {
		return err
	}

	return d.adapter.Write(fmt.Sprintf("OUTPut%d:LOAD %s", channel, param))
}

// EnableOutput switches the channel output on or off.
func (d *AFG2225) EnableOutput(channel int, on bool) error {
	if err := d.checkChannel(channel); err != nil {
		return err
	}
	state := "OFF"
	if on {
		state = "ON"
	}

	return d.adapter.Write(fmt.Sprintf("OUTPut%d %s", channel, state))
}

func (d *AFG2225) checkChannel(channel int) error {
	if channel != 1 && channel != 2 {
		return fmt.Errorf("instrument: channel %d out of range [1, 2]", channel)
	}

	return nil
}
