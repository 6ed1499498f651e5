package instrument

import (
	"fmt"
	"sort"
)

// DeviceType tags one supported instrument model.
type DeviceType string

const (
	DeviceHP3458A  DeviceType = "hp3458a"
	DeviceHP53131A DeviceType = "hp53131a"
	DeviceAFG2225  DeviceType = "afg2225"
	DeviceHPE4419B DeviceType = "hpe4419b"
)

// constructors is the closed mapping from device tag to driver constructor.
// Configuration loading validates tags against it so unknown devices fail
// immediately, never at first use.
var constructors = map[DeviceType]func(Adapter) Driver{
	DeviceHP3458A:  func(a Adapter) Driver { return NewHP3458A(a) },
	DeviceHP53131A: func(a Adapter) Driver { return NewHP53131A(a) },
	DeviceAFG2225:  func(a Adapter) Driver { return NewAFG2225(a) },
	DeviceHPE4419B: func(a Adapter) Driver { return NewHPE4419B(a) },
}

// ParseDeviceType validates a configuration tag against the registry.
func ParseDeviceType(s string) (DeviceType, error) {
	dt := DeviceType(s)
	if _, ok := constructors[dt]; !ok {
		return "", fmt.Errorf("instrument: %w: %q (known: %v)", ErrUnknownDeviceType, s, DeviceTypes())
	}

	return dt, nil
}

// New constructs the driver registered for dt over the given adapter.
func New(dt DeviceType, adapter Adapter) (Driver, error) {
	ctor, ok := constructors[dt]
	if !ok {
		return nil, fmt.Errorf("instrument: %w: %q", ErrUnknownDeviceType, dt)
	}

	return ctor(adapter), nil
}

// DeviceTypes lists the registered device tags in sorted order.
func DeviceTypes() []DeviceType {
	types := make([]DeviceType, 0, len(constructors))
	for dt := range constructors {
		types = append(types, dt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}
