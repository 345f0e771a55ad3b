package config

import "fmt"

// DeviceSelector chooses the capture and playback devices
type DeviceSelector interface {
	ResolveDeviceIndices() (input, output int, err error)
}

// StaticDevices resolves device indices from the config file. A negative
// index selects the system default device.
type StaticDevices struct {
	Devices DeviceConfig
}

func (s StaticDevices) ResolveDeviceIndices() (int, int, error) {
	if s.Devices.Input < -1 || s.Devices.Output < -1 {
		return 0, 0, fmt.Errorf("invalid device indices: input=%d output=%d", s.Devices.Input, s.Devices.Output)
	}
	return s.Devices.Input, s.Devices.Output, nil
}
