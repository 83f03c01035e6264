// internal/discovery/serial/enumerator.go
package serial

import (
	"fmt"
	"path/filepath"
	"runtime"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"focuser-service/internal/discovery"
)

// Enumerator lists host serial ports through go.bug.st/serial
type Enumerator struct {
	patterns []string
	logger   *zap.Logger

	detailed func() ([]*enumerator.PortDetails, error)
	names    func() ([]string, error)
}

// NewEnumerator creates an enumerator keeping only ports matching one of the
// glob patterns. No patterns selects the platform defaults.
func NewEnumerator(patterns []string, logger *zap.Logger) *Enumerator {
	if len(patterns) == 0 {
		patterns = DefaultPortPatterns()
	}
	return &Enumerator{
		patterns: patterns,
		logger:   logger.With(zap.String("lister", "serial")),
		detailed: enumerator.GetDetailedPortsList,
		names:    serial.GetPortsList,
	}
}

// DefaultPortPatterns returns the port name patterns a USB serial adapter or
// native RS-232 port typically has on this platform
func DefaultPortPatterns() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"COM*"}
	case "darwin":
		return []string{"/dev/cu.*", "/dev/tty.usbserial*"}
	default:
		return []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyS*"}
	}
}

// ListPorts implements discovery.PortLister
func (e *Enumerator) ListPorts() ([]discovery.PortInfo, error) {
	var ports []discovery.PortInfo

	details, err := e.detailed()
	if err == nil {
		for _, d := range details {
			ports = append(ports, discovery.PortInfo{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
	} else {
		e.logger.Debug("Detailed port list unavailable, falling back to names", zap.Error(err))
		names, err := e.names()
		if err != nil {
			return nil, fmt.Errorf("failed to get serial ports: %w", err)
		}
		for _, name := range names {
			ports = append(ports, discovery.PortInfo{Name: name})
		}
	}

	filtered := ports[:0]
	for _, p := range ports {
		if e.matches(p.Name) {
			filtered = append(filtered, p)
		}
	}

	e.logger.Debug("Serial ports listed", zap.Int("total", len(ports)), zap.Int("matching", len(filtered)))
	return filtered, nil
}

func (e *Enumerator) matches(name string) bool {
	for _, pattern := range e.patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
