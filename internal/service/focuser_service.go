// internal/service/focuser_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"focuser-service/internal/config"
	"focuser-service/internal/discovery"
	rfdriver "focuser-service/internal/driver/robofocus"
	"focuser-service/internal/model"
	"focuser-service/internal/protocol/robofocus"
	"focuser-service/internal/protocol/serial"
	"focuser-service/internal/utils"
	"focuser-service/pkg/driver"
)

var (
	// ErrNoFocuser is returned by AutoConnect when no port is configured and the scan finds nothing
	ErrNoFocuser = errors.New("no focuser found")
	// ErrNoPort is returned by Connect when neither the caller nor the configuration names a port
	ErrNoPort = errors.New("no port given and focuser.port is not configured")
)

// EventPublisher receives focuser events
type EventPublisher interface {
	Publish(event model.FocuserEvent)
}

// FocuserService owns the single live focuser connection. Every operation
// holds the service mutex for its whole exchange, so the connection is never
// used from two goroutines at once.
type FocuserService struct {
	mu sync.Mutex

	conn    *robofocus.Connection
	focuser driver.FocuserDriver
	status  model.FocuserStatus

	config  *config.FocuserConfig
	scanner *discovery.Scanner
	opener  serial.Opener
	events  EventPublisher
	logger  *utils.ServiceLogger
}

// NewFocuserService creates a disconnected service. A nil opener selects the
// host serial driver; a nil publisher drops events.
func NewFocuserService(
	cfg *config.FocuserConfig,
	scanner *discovery.Scanner,
	opener serial.Opener,
	events EventPublisher,
	logger *zap.Logger,
) *FocuserService {
	return &FocuserService{
		status:  model.FocuserStatus{State: model.ConnectionStateClosed, UpdatedAt: time.Now()},
		config:  cfg,
		scanner: scanner,
		opener:  opener,
		events:  events,
		logger:  utils.NewServiceLogger(logger, "focuser-service"),
	}
}

// Connect opens port, replacing any existing connection. An empty port
// selects the configured one.
func (s *FocuserService) Connect(ctx context.Context, port string) (model.FocuserStatus, error) {
	if port == "" {
		port = s.config.Port
	}
	if port == "" {
		return model.FocuserStatus{}, ErrNoPort
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.disconnectLocked("replaced")
	}

	deviceLogger := utils.NewDeviceLogger(s.logger.Logger, port)
	conn := robofocus.NewConnection(robofocus.Config{
		Port:           port,
		ReadTimeout:    s.config.ReadTimeout,
		VerifyChecksum: s.config.VerifyChecksum,
	}, deviceLogger.Logger, robofocus.WithOpener(s.opener))

	if err := conn.Open(ctx); err != nil {
		deviceLogger.LogConnection("connect", false, err)
		s.publishError(port, "connect", err)
		return s.status, err
	}
	deviceLogger.LogConnection("connect", true, nil)

	s.conn = conn
	s.focuser = rfdriver.NewFocuser(conn, s.logger.Logger)
	s.status = model.FocuserStatus{
		Port:      port,
		State:     conn.State(),
		Version:   conn.Version(),
		UpdatedAt: time.Now(),
	}

	s.publish(model.EventFocuserConnected, port, map[string]interface{}{
		"version": conn.Version(),
	})
	return s.status, nil
}

// Disconnect closes the live connection, if any
func (s *FocuserService) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	return s.disconnectLocked("requested")
}

func (s *FocuserService) disconnectLocked(reason string) error {
	port := s.conn.Port()
	err := s.conn.Close()
	utils.NewDeviceLogger(s.logger.Logger, port).LogConnection("disconnect", err == nil, err)

	s.conn = nil
	s.focuser = nil
	s.status = model.FocuserStatus{State: model.ConnectionStateClosed, UpdatedAt: time.Now()}

	s.publish(model.EventFocuserDisconnected, port, map[string]interface{}{"reason": reason})
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", port, err)
	}
	return nil
}

// Status returns the last known focuser state without touching the device
func (s *FocuserService) Status() model.FocuserStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.status
	if s.conn != nil {
		status.State = s.conn.State()
	}
	if status.Position != nil {
		p := *status.Position
		status.Position = &p
	}
	if status.Power != nil {
		p := *status.Power
		status.Power = &p
	}
	return status
}

// Connected reports whether a Ready connection is held
func (s *FocuserService) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.conn.Ready()
}

// Version queries the firmware version
func (s *FocuserService) Version(ctx context.Context) (string, error) {
	var version string
	err := s.run("version", func(f driver.FocuserDriver) error {
		v, err := f.Version(ctx)
		if err != nil {
			return err
		}
		version = v
		s.status.Version = v
		return nil
	})
	return version, err
}

// Position queries the current absolute position
func (s *FocuserService) Position(ctx context.Context) (model.Position, error) {
	var pos model.Position
	err := s.run("position", func(f driver.FocuserDriver) error {
		p, err := f.QueryPosition(ctx)
		if err != nil {
			return err
		}
		pos = p
		s.setPosition(p, false)
		return nil
	})
	return pos, err
}

// Goto moves to an absolute position and returns where the focuser stopped
func (s *FocuserService) Goto(ctx context.Context, position int) (model.Position, error) {
	var pos model.Position
	err := s.run("goto", func(f driver.FocuserDriver) error {
		p, err := f.GotoPosition(ctx, position)
		if err != nil {
			return err
		}
		pos = p
		s.setPosition(p, true)
		return nil
	}, zap.Int("target", position))
	return pos, err
}

// Step moves by steps in dir. Zero steps selects focuser.default_steps.
func (s *FocuserService) Step(ctx context.Context, dir driver.Direction, steps int) (model.Position, error) {
	if steps == 0 {
		steps = s.config.DefaultSteps
	}

	var pos model.Position
	err := s.run("step", func(f driver.FocuserDriver) error {
		p, err := driver.Step(ctx, f, dir, steps)
		if err != nil {
			return err
		}
		pos = p
		s.setPosition(p, true)
		return nil
	}, zap.String("direction", string(dir)), zap.Int("steps", steps))
	return pos, err
}

// Power queries the four remote power outputs
func (s *FocuserService) Power(ctx context.Context) (model.PowerState, error) {
	var state model.PowerState
	err := s.run("power", func(f driver.FocuserDriver) error {
		ps, err := f.QueryRemotePower(ctx)
		if err != nil {
			return err
		}
		state = ps
		s.status.Power = &ps
		s.status.UpdatedAt = time.Now()
		return nil
	})
	return state, err
}

// SetPower switches one output and returns the state the device reports for it
func (s *FocuserService) SetPower(ctx context.Context, channel model.PowerChannel, on bool) (bool, error) {
	var result bool
	err := s.run("set_power", func(f driver.FocuserDriver) error {
		r, err := f.SetRemotePower(ctx, channel, on)
		if err != nil {
			return err
		}
		result = r

		if s.status.Power != nil {
			ps := s.status.Power.With(channel, r)
			s.status.Power = &ps
		}
		s.status.UpdatedAt = time.Now()
		s.publish(model.EventPowerChanged, s.conn.Port(), map[string]interface{}{
			"channel":   int(channel) + 1,
			"requested": on,
			"on":        r,
		})
		return nil
	}, zap.Stringer("channel", channel), zap.Bool("on", on))
	return result, err
}

// Discover scans the candidate ports, skipping the one in use
func (s *FocuserService) Discover(ctx context.Context) ([]model.DiscoveredFocuser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exclude []string
	if s.conn != nil {
		exclude = append(exclude, s.conn.Port())
	}

	found, err := s.scanner.Scan(ctx, exclude...)
	if err != nil {
		return found, fmt.Errorf("focuser scan failed: %w", err)
	}

	ports := make([]string, 0, len(found))
	for _, f := range found {
		ports = append(ports, f.Port)
	}
	s.publish(model.EventDiscoveryCompleted, "", map[string]interface{}{"ports": ports})
	return found, nil
}

// ListPorts returns the candidate ports without probing them
func (s *FocuserService) ListPorts() []discovery.PortInfo {
	return s.scanner.ListPorts()
}

// AutoConnect connects to the configured port, or to the first focuser a scan finds
func (s *FocuserService) AutoConnect(ctx context.Context) (model.FocuserStatus, error) {
	if s.config.Port != "" {
		return s.Connect(ctx, s.config.Port)
	}

	found, err := s.Discover(ctx)
	if err != nil {
		return model.FocuserStatus{}, err
	}
	if len(found) == 0 {
		return model.FocuserStatus{}, ErrNoFocuser
	}
	return s.Connect(ctx, found[0].Port)
}

// Close releases the connection on shutdown
func (s *FocuserService) Close() error {
	return s.Disconnect()
}

// run executes one command under the service lock with an operation logger
func (s *FocuserService) run(opType string, fn func(driver.FocuserDriver) error, fields ...zap.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.focuser == nil {
		return &robofocus.ConnectionError{Kind: robofocus.ErrNotReady}
	}

	opLogger := utils.NewOperationLogger(s.logger.Logger, opType, uuid.New().String())
	opLogger.Start(fields...)

	if err := fn(s.focuser); err != nil {
		opLogger.Error(err, fields...)
		if !errors.Is(err, robofocus.ErrOutOfBounds) {
			s.publishError(s.conn.Port(), opType, err)
		}
		return err
	}

	opLogger.Success(fields...)
	return nil
}

func (s *FocuserService) setPosition(p model.Position, moved bool) {
	s.status.Position = &p
	s.status.UpdatedAt = time.Now()
	if moved {
		s.publish(model.EventPositionChanged, s.conn.Port(), map[string]interface{}{"position": int(p)})
	}
}

func (s *FocuserService) publishError(port, op string, err error) {
	s.publish(model.EventFocuserError, port, map[string]interface{}{
		"operation": op,
		"error":     err.Error(),
	})
}

func (s *FocuserService) publish(eventType model.EventType, port string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(model.NewFocuserEvent(eventType, port, "focuser-service", data))
}
