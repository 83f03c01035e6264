// internal/bootstrap/bootstrap.go
package bootstrap

import (
	"fmt"

	"go.uber.org/zap"

	"focuser-service/internal/config"
	"focuser-service/internal/discovery"
	serialdiscovery "focuser-service/internal/discovery/serial"
	"focuser-service/internal/protocol/serial"
	"focuser-service/internal/service"
	"focuser-service/internal/simulator"
)

// SimulatedPort returns the port name of the n-th configured simulated focuser, one based
func SimulatedPort(n int) string {
	return fmt.Sprintf("%sfocuser-%d", simulator.Scheme, n)
}

// NewFocuserService wires the port opener, the discovery scanner and the
// focuser service from configuration. Host serial ports are always available;
// simulated focusers are added when simulator.enabled is set.
func NewFocuserService(cfg *config.Config, events service.EventPublisher, logger *zap.Logger) (*service.FocuserService, *simulator.Registry) {
	opener := serial.Opener(serial.OpenOSPort)

	var registry *simulator.Registry
	if cfg.Simulator.Enabled {
		registry = simulator.NewRegistry(serial.OpenOSPort)
		for n := 1; n <= cfg.Simulator.Devices; n++ {
			registry.Add(SimulatedPort(n), simulator.NewDevice(cfg.Simulator.Position))
		}
		opener = registry.Open
		logger.Info("Focuser simulator enabled", zap.Int("devices", cfg.Simulator.Devices))
	}

	scanner := discovery.NewScanner(discovery.Config{
		ProbeTimeout:   cfg.Discovery.ProbeTimeout,
		VerifyChecksum: cfg.Focuser.VerifyChecksum,
	}, opener, logger)
	scanner.RegisterLister("serial", serialdiscovery.NewEnumerator(cfg.Discovery.PortPatterns, logger))
	if registry != nil {
		scanner.RegisterLister("simulator", registry)
	}

	return service.NewFocuserService(&cfg.Focuser, scanner, opener, events, logger), registry
}
