package transport

import (
	"path/filepath"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// ListPorts enumerates every serial port on the host.
func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	out := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		out = append(out, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
		})
	}
	return out, nil
}

// CandidatePorts lists the ports that could host a USB serial controller.
func CandidatePorts() ([]PortInfo, error) {
	ports, err := ListPorts()
	if err != nil {
		return nil, err
	}
	return FilterCandidatePorts(ports), nil
}

// FilterCandidatePorts keeps ports whose names match USB serial adapters.
func FilterCandidatePorts(ports []PortInfo) []PortInfo {
	candidates := []PortInfo{}
	for _, p := range ports {
		if IsCandidatePort(p.Name) {
			candidates = append(candidates, p)
		}
	}
	return candidates
}

// IsCandidatePort matches the usual USB serial device names on Linux, macOS
// and Windows.
func IsCandidatePort(name string) bool {
	for _, prefix := range []string{
		"/dev/ttyUSB", "/dev/ttyACM",
		"/dev/tty.usbmodem", "/dev/tty.usbserial", "/dev/cu.usbmodem", "/dev/cu.usbserial",
		"COM",
	} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// PortSuffix turns a device path into a short name for resources:
// /dev/ttyUSB0 -> ttyUSB0, /dev/cu.usbmodem1 -> usbmodem1, COM3 -> COM3.
func PortSuffix(name string) string {
	base := filepath.Base(name)
	for _, prefix := range []string{"tty.", "cu."} {
		if strings.HasPrefix(base, prefix+"usb") {
			return strings.TrimPrefix(base, prefix)
		}
	}
	return base
}
