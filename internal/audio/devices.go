// SPDX-License-Identifier: MIT
/*
Package audio owns the PortAudio lifecycle: subsystem init/terminate pairing,
input device selection, and device enumeration for the CLI. Stream handling
lives in the engine; this package only resolves hardware.
*/
package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"

	"beatbox/internal/config"
	"beatbox/internal/errs"
)

// Initialize sets up the PortAudio subsystem. Must be called before any
// device or stream operation and paired with Terminate.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return errs.Wrap(errs.CodeInitFailed, err, "portaudio initialize")
	}
	return nil
}

// Terminate shuts down the PortAudio subsystem. Defer immediately after a
// successful Initialize.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return errs.Wrap(errs.CodeHardware, err, "portaudio terminate")
	}
	return nil
}

// InputDevice resolves an input device by index. MinDeviceID (-1) selects the
// system default input device.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == config.MinDeviceID {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, errs.Wrap(errs.CodeHardware, err, "no default input device")
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, errs.Wrap(errs.CodeHardware, err, "device enumeration")
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, errs.New(errs.CodeHardware, "device id %d outside [0, %d)", deviceID, len(devices))
	}
	if devices[deviceID].MaxInputChannels < 1 {
		return nil, errs.New(errs.CodeHardware, "device %d (%s) has no input channels",
			deviceID, devices[deviceID].Name)
	}
	return devices[deviceID], nil
}

// ListDevices prints every available device with its capabilities, so users
// can pick an id for the --device flag.
func ListDevices() error {
	devices, err := portaudio.Devices()
	if err != nil {
		return errs.Wrap(errs.CodeHardware, err, "device enumeration")
	}

	fmt.Printf("\nAvailable Audio Devices\n\n")
	for i, device := range devices {
		deviceType := ""
		switch {
		case device.MaxInputChannels > 0 && device.MaxOutputChannels > 0:
			deviceType = "Input/Output"
		case device.MaxInputChannels > 0:
			deviceType = "Input"
		case device.MaxOutputChannels > 0:
			deviceType = "Output"
		}

		fmt.Printf("[%d] %s (%s)\n", i, device.Name, deviceType)
		fmt.Printf("    Input channels: %d, Output channels: %d\n",
			device.MaxInputChannels, device.MaxOutputChannels)
		fmt.Printf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
		fmt.Printf("    Latency: Low=%.2fms, High=%.2fms\n",
			device.DefaultLowInputLatency.Seconds()*1000,
			device.DefaultHighInputLatency.Seconds()*1000)
		fmt.Println()
	}
	return nil
}
