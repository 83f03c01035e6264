// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"focuser-service/internal/model"
	"focuser-service/internal/protocol/robofocus"
	"focuser-service/internal/protocol/serial"
)

// PortInfo describes a candidate port
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// PortLister supplies candidate ports
type PortLister interface {
	ListPorts() ([]PortInfo, error)
}

// Config controls how candidate ports are probed
type Config struct {
	ProbeTimeout   time.Duration
	VerifyChecksum bool
}

// Scanner finds Robofocus controllers by opening a throwaway connection on
// every candidate port. Ports are probed one at a time.
type Scanner struct {
	listers map[string]PortLister
	opener  serial.Opener
	config  Config
	logger  *zap.Logger
}

// NewScanner creates a scanner. A nil opener selects the host serial driver.
func NewScanner(config Config, opener serial.Opener, logger *zap.Logger) *Scanner {
	return &Scanner{
		listers: make(map[string]PortLister),
		opener:  opener,
		config:  config,
		logger:  logger.With(zap.String("component", "discovery")),
	}
}

// RegisterLister registers a port source under a name
func (s *Scanner) RegisterLister(name string, lister PortLister) {
	s.listers[name] = lister
	s.logger.Debug("Port lister registered", zap.String("type", name))
}

// ListPorts returns the candidate ports of every registered lister, sorted by name.
// A failing lister is logged and skipped.
func (s *Scanner) ListPorts() []PortInfo {
	var ports []PortInfo
	seen := make(map[string]bool)

	for name, lister := range s.listers {
		found, err := lister.ListPorts()
		if err != nil {
			s.logger.Warn("Port lister failed", zap.String("type", name), zap.Error(err))
			continue
		}
		for _, p := range found {
			if seen[p.Name] {
				continue
			}
			seen[p.Name] = true
			ports = append(ports, p)
		}
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports
}

// Scan probes every candidate port except those in exclude and returns the
// ones that answered the version probe. Cancellation is honoured between ports.
func (s *Scanner) Scan(ctx context.Context, exclude ...string) ([]model.DiscoveredFocuser, error) {
	ports := s.ListPorts()
	s.logger.Info("Starting focuser scan", zap.Int("ports", len(ports)))

	found := []model.DiscoveredFocuser{}
	for _, port := range ports {
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		default:
		}

		if slices.Contains(exclude, port.Name) {
			continue
		}

		version, err := s.Probe(ctx, port.Name)
		if err != nil {
			s.logger.Debug("No focuser on port", zap.String("port", port.Name), zap.Error(err))
			continue
		}

		found = append(found, model.DiscoveredFocuser{
			Port:         port.Name,
			Version:      version,
			IsUSB:        port.IsUSB,
			VID:          port.VID,
			PID:          port.PID,
			SerialNumber: port.SerialNumber,
			Product:      port.Product,
		})
		s.logger.Info("Focuser found", zap.String("port", port.Name), zap.String("version", version))
	}

	s.logger.Info("Focuser scan completed", zap.Int("focusers_found", len(found)))
	return found, nil
}

// Probe opens and closes a connection on port and returns the firmware version.
func (s *Scanner) Probe(ctx context.Context, port string) (string, error) {
	conn := robofocus.NewConnection(robofocus.Config{
		Port:           port,
		ReadTimeout:    s.config.ProbeTimeout,
		VerifyChecksum: s.config.VerifyChecksum,
	}, s.logger, robofocus.WithOpener(s.opener))

	if err := conn.Open(ctx); err != nil {
		return "", err
	}
	version := conn.Version()
	if err := conn.Close(); err != nil {
		return "", fmt.Errorf("release probe connection: %w", err)
	}
	return version, nil
}
