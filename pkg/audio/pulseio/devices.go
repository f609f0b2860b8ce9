// Package pulseio captures microphone audio from a PulseAudio (or
// PipeWire) server and adapts it to the voice session's source contract.
package pulseio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const clientName = "auralis-voice"

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture device plus fallback context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// ListDevices returns available input sources with default and
// availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(clientName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves a requested device name against live devices,
// falling back to the server default when the request is empty or the
// requested device is unusable.
func SelectDevice(ctx context.Context, requested string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, requested)
}

// selectDeviceFromList applies selection policy to a pre-fetched list.
func selectDeviceFromList(devices []Device, requested string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	requested = strings.TrimSpace(strings.ToLower(requested))

	var defaultDevice, byRequest *Device
	for i := range devices {
		dev := &devices[i]
		if dev.Default {
			defaultDevice = dev
		}
		if byRequest == nil && requested != "" && requested != "default" && deviceMatches(*dev, requested) {
			byRequest = dev
		}
	}

	chooseDefault := func() (*Device, error) {
		if defaultDevice == nil {
			return nil, errors.New("default audio source is unavailable")
		}
		if !defaultDevice.Available {
			return nil, fmt.Errorf("default audio source %q is not available", defaultDevice.ID)
		}
		if defaultDevice.Muted {
			return nil, fmt.Errorf("default audio source %q is muted", defaultDevice.ID)
		}
		return defaultDevice, nil
	}

	if requested == "" || requested == "default" {
		dev, err := chooseDefault()
		if err != nil {
			return Selection{}, err
		}
		return Selection{Device: *dev}, nil
	}

	if byRequest == nil {
		return Selection{}, fmt.Errorf("microphone %q did not match any device", requested)
	}
	if byRequest.Available && !byRequest.Muted {
		return Selection{Device: *byRequest}, nil
	}

	reason := "unavailable"
	if byRequest.Muted {
		reason = "muted"
	}
	dev, err := chooseDefault()
	if err != nil {
		return Selection{}, fmt.Errorf("microphone %q is %s and no usable default: %w", byRequest.ID, reason, err)
	}
	return Selection{
		Device:   *dev,
		Warning:  fmt.Sprintf("microphone %q is %s; falling back to %q", byRequest.ID, reason, dev.ID),
		Fallback: byRequest.ID != dev.ID,
	}, nil
}

// deviceMatches reports whether a search term matches an id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

// sourceStateString maps Pulse source state constants to readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
