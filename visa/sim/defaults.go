package sim

// DefaultDefinitions returns canned definitions for the bench instruments the
// automation suite drives: an HP 3458A multimeter at GPIB address 22 and an
// HP 53131A universal counter at GPIB address 13.
//
// The dialogues mirror the instruments' front-panel SCPI surface closely
// enough for driver and bridge tests; they make no attempt at numerical
// realism.
func DefaultDefinitions() *Definitions {
	return &Definitions{
		Devices: []DeviceDefinition{
			{
				Name:      "HP3458A",
				Addresses: []int{22},
				Dialogues: []Exchange{
					{Q: "ID?", R: "HP3458A"},
					{Q: "ERRSTR?", R: `0,"NO ERROR"`},
					{Q: "TEMP?", R: "29.3"},
					{Q: "MCOUNT?", R: "1"},
					{Q: "TRIG SGL", R: "+9.817719000E-03"},
					{Q: "READ?", R: "+9.817719000E-03"},
				},
				Properties: []Property{
					{
						Name:    "nplc",
						Default: "1",
						Getter:  &Exchange{Q: "NPLC?", R: "{}"},
						Setter:  &Exchange{Q: "NPLC {}"},
					},
					{
						Name:    "nrdgs",
						Default: "1,AUTO",
						Getter:  &Exchange{Q: "NRDGS?", R: "{}"},
						Setter:  &Exchange{Q: "NRDGS {}"},
					},
				},
				ErrorResponse: `102,"SYNTAX ERROR"`,
			},
			{
				Name:      "HP53131A",
				Addresses: []int{13},
				Dialogues: []Exchange{
					{Q: "*IDN?", R: "HEWLETT-PACKARD,53131A,0,3944"},
					{Q: "*RST"},
					{Q: ":SYST:ERR?", R: `+0,"No error"`},
					{Q: ":CONF:FREQ DEF,DEF,(@1)"},
					{Q: ":CONF:PER DEF,DEF,(@1)"},
					{Q: ":FETCH?", R: "+9.99999255000000E+006"},
				},
				ErrorResponse: `-113,"Undefined header"`,
			},
		},
	}
}
