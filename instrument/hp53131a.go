package instrument

// HP53131A drives the HP 53131A universal frequency counter over its SCPI
// command set.
type HP53131A struct {
	adapter Adapter
}

var _ Driver = (*HP53131A)(nil)

func NewHP53131A(adapter Adapter) *HP53131A {
	return &HP53131A{adapter: adapter}
}

// Setup resets the counter and clears its status registers.
func (d *HP53131A) Setup() error {
	if err := d.Reset(); err != nil {
		return err
	}

	return d.adapter.Write("*CLS")
}

func (d *HP53131A) Identify() (string, error) {
	return d.adapter.Query("*IDN?")
}

func (d *HP53131A) Reset() error {
	return d.adapter.Write("*RST")
}

// Error reads the oldest entry from the SCPI error queue.
func (d *HP53131A) Error() (string, error) {
	return d.adapter.Query(":SYST:ERR?")
}

// MeasureFrequency configures a frequency measurement on channel 1 with
// default expected value and resolution, then fetches the result.
func (d *HP53131A) MeasureFrequency() (float64, error) {
	return d.configureAndFetch(":CONF:FREQ DEF,DEF,(@1)")
}

// MeasurePeriod configures a period measurement on channel 1, then fetches
// the result.
func (d *HP53131A) MeasurePeriod() (float64, error) {
	return d.configureAndFetch(":CONF:PER DEF,DEF,(@1)")
}

func (d *HP53131A) configureAndFetch(conf string) (float64, error) {
	if err := d.adapter.Write(conf); err != nil {
		return 0, err
	}
	resp, err := d.adapter.Query(":FETCH?")
	if err != nil {
		return 0, err
	}

	return parseFloat(resp)
}
