// Package audio handles Pulse device discovery, answer capture, and prompt playback.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
	// Monitor marks a loopback of an output sink.
	Monitor bool
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// ListDevices returns available Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
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
			Monitor:     isMonitorSource(source.SourceName),
		})
	}
	return devices, nil
}

// SelectDevice resolves audio.input/audio.fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// selectDeviceFromList applies selection policy to a pre-fetched device list.
// Monitor sources loop back playback, so they would record the question
// prompt instead of the participant; they are never selected implicitly.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	input = strings.TrimSpace(strings.ToLower(input))
	fallback = strings.TrimSpace(strings.ToLower(fallback))

	primary := findDevice(devices, input)
	if primary == nil {
		if isDefaultTerm(input) {
			return Selection{}, errors.New("default audio source is unavailable")
		}
		return Selection{}, fmt.Errorf("audio.input %q did not match any device", input)
	}
	primaryReason := unusableReason(*primary)
	if primaryReason == "" {
		return Selection{Device: *primary}, nil
	}

	var candidate *Device
	if isDefaultTerm(fallback) {
		candidate = findDevice(devices, "default")
		if candidate == nil || unusableReason(*candidate) != "" {
			candidate = firstUsable(devices)
		}
		if candidate == nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and no usable microphone was found", primary.ID, primaryReason)
		}
	} else {
		candidate = findDevice(devices, fallback)
		if candidate == nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, primaryReason, fallback)
		}
	}

	if reason := unusableReason(*candidate); reason != "" {
		return Selection{}, fmt.Errorf("audio fallback device %q is %s", candidate.ID, reason)
	}

	return Selection{
		Device:   *candidate,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, primaryReason, candidate.ID),
		Fallback: primary.ID != candidate.ID,
	}, nil
}

func isDefaultTerm(term string) bool {
	return term == "" || term == "default"
}

// findDevice resolves a preference term. Named terms skip monitor sources
// unless the term itself asks for one.
func findDevice(devices []Device, term string) *Device {
	if isDefaultTerm(term) {
		for i := range devices {
			if devices[i].Default {
				return &devices[i]
			}
		}
		return nil
	}
	allowMonitor := strings.Contains(term, "monitor")
	for i := range devices {
		if devices[i].Monitor && !allowMonitor {
			continue
		}
		if deviceMatches(devices[i], term) {
			return &devices[i]
		}
	}
	return nil
}

func firstUsable(devices []Device) *Device {
	for i := range devices {
		if unusableReason(devices[i]) == "" {
			return &devices[i]
		}
	}
	return nil
}

// unusableReason returns why device cannot record an answer, or "".
func unusableReason(device Device) string {
	switch {
	case device.Monitor:
		return "a playback monitor"
	case !device.Available:
		return "unavailable"
	case device.Muted:
		return "muted"
	default:
		return ""
	}
}

// deviceMatches reports whether a search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

// isMonitorSource follows the Pulse naming convention for sink monitors.
func isMonitorSource(name string) bool {
	return strings.HasSuffix(name, ".monitor")
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("viva"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceStateString maps Pulse source state constants to human-readable values.
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

// sourceAvailable maps Pulse source port availability to a simple boolean.
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
