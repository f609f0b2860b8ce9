package pulseio

import (
	"strings"
	"testing"
)

func TestSelectDeviceFromList(t *testing.T) {
	usb := Device{ID: "alsa_input.usb-mic", Description: "USB Microphone", Available: true}
	builtin := Device{ID: "alsa_input.pci-internal", Description: "Built-in Audio", Available: true, Default: true}
	mutedUSB := usb
	mutedUSB.Muted = true
	downUSB := usb
	downUSB.Available = false

	tests := []struct {
		name        string
		devices     []Device
		requested   string
		wantID      string
		wantWarn    bool
		wantErrPart string
	}{
		{
			name:      "empty request picks default",
			devices:   []Device{usb, builtin},
			requested: "",
			wantID:    builtin.ID,
		},
		{
			name:      "explicit default keyword",
			devices:   []Device{usb, builtin},
			requested: "default",
			wantID:    builtin.ID,
		},
		{
			name:      "match by id substring",
			devices:   []Device{usb, builtin},
			requested: "usb-mic",
			wantID:    usb.ID,
		},
		{
			name:      "match by description case-insensitive",
			devices:   []Device{usb, builtin},
			requested: "usb microphone",
			wantID:    usb.ID,
		},
		{
			name:        "no match",
			devices:     []Device{usb, builtin},
			requested:   "bluetooth",
			wantErrPart: "did not match",
		},
		{
			name:      "muted request falls back to default",
			devices:   []Device{mutedUSB, builtin},
			requested: "usb-mic",
			wantID:    builtin.ID,
			wantWarn:  true,
		},
		{
			name:      "unavailable request falls back to default",
			devices:   []Device{downUSB, builtin},
			requested: "usb-mic",
			wantID:    builtin.ID,
			wantWarn:  true,
		},
		{
			name:        "no devices",
			devices:     nil,
			requested:   "",
			wantErrPart: "no audio input devices",
		},
		{
			name: "default muted",
			devices: []Device{{
				ID: "alsa_input.pci-internal", Available: true, Muted: true, Default: true,
			}},
			requested:   "",
			wantErrPart: "muted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := selectDeviceFromList(tt.devices, tt.requested)
			if tt.wantErrPart != "" {
				if err == nil {
					t.Fatalf("selection succeeded with %q, want error", tt.requested)
				}
				if !strings.Contains(err.Error(), tt.wantErrPart) {
					t.Errorf("error = %v, want substring %q", err, tt.wantErrPart)
				}
				return
			}
			if err != nil {
				t.Fatalf("selection error: %v", err)
			}
			if sel.Device.ID != tt.wantID {
				t.Errorf("selected %q, want %q", sel.Device.ID, tt.wantID)
			}
			if tt.wantWarn != (sel.Warning != "") {
				t.Errorf("warning = %q, wantWarn=%v", sel.Warning, tt.wantWarn)
			}
		})
	}
}

func TestSourceCloseWithoutOpen(t *testing.T) {
	s := NewSource("", nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close on unopened source: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
