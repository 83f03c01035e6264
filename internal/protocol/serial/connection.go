// internal/protocol/serial/connection.go
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// ErrPortNotOpen is returned by I/O on a closed connection
var ErrPortNotOpen = errors.New("port not open")

// Port is the subset of go.bug.st/serial.Port the connection relies on
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Opener opens a named port with the given mode
type Opener func(name string, mode *serial.Mode) (Port, error)

// OpenOSPort opens a host serial port through go.bug.st/serial
func OpenOSPort(name string, mode *serial.Mode) (Port, error) {
	return serial.Open(name, mode)
}

// Connection represents a serial port connection
type Connection struct {
	config *Config
	opener Opener
	port   Port
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
}

// Config represents serial port configuration
type Config struct {
	Port     string        `json:"port"`
	BaudRate int           `json:"baud_rate"`
	DataBits int           `json:"data_bits"`
	StopBits int           `json:"stop_bits"`
	Parity   string        `json:"parity"`
	Timeout  time.Duration `json:"timeout"`
}

// Mode converts the configuration into a go.bug.st/serial mode
func (c *Config) Mode() *serial.Mode {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: serial.OneStopBit,
	}

	if c.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch c.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode
}

// NewConnection creates a new serial connection. A nil opener selects the host serial driver.
func NewConnection(config *Config, opener Opener, logger *zap.Logger) (*Connection, error) {
	if config.Port == "" {
		return nil, fmt.Errorf("port is required")
	}
	if opener == nil {
		opener = OpenOSPort
	}

	return &Connection{
		config: config,
		opener: opener,
		logger: logger,
	}, nil
}

// Open opens the serial connection
func (c *Connection) Open(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.isOpen {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	port, err := c.opener(c.config.Port, c.config.Mode())
	if err != nil {
		c.logger.Debug("Failed to open serial port",
			zap.Error(err),
			zap.String("port", c.config.Port),
		)
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	if err := port.SetReadTimeout(c.config.Timeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	c.port = port
	c.isOpen = true

	c.logger.Debug("Serial port opened",
		zap.String("port", c.config.Port),
		zap.Int("baud_rate", c.config.BaudRate),
		zap.Duration("read_timeout", c.config.Timeout),
	)

	return nil
}

// Close closes the serial connection
func (c *Connection) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.isOpen || c.port == nil {
		return nil
	}

	err := c.port.Close()
	c.port = nil
	c.isOpen = false

	if err != nil {
		c.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	c.logger.Debug("Serial port closed", zap.String("port", c.config.Port))
	return nil
}

// DiscardInput drops any bytes received but not yet read
func (c *Connection) DiscardInput() error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.isOpen || c.port == nil {
		return ErrPortNotOpen
	}

	if err := c.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to reset input buffer: %w", err)
	}
	return nil
}

// Write writes data to the serial port
func (c *Connection) Write(ctx context.Context, data []byte) error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.isOpen || c.port == nil {
		return ErrPortNotOpen
	}

	// Check context cancellation
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	n, err := c.port.Write(data)
	if err != nil {
		c.logger.Error("Failed to write to serial port",
			zap.Error(err),
			zap.Int("bytes_to_write", len(data)),
		)
		return fmt.Errorf("failed to write to serial port: %w", err)
	}

	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	c.logger.Debug("Data written to serial port",
		zap.Int("bytes_written", n),
		zap.Binary("data", data),
	)

	return nil
}

// Read implements io.Reader. It blocks for at most the configured timeout and
// returns 0, nil when nothing arrived in that time.
func (c *Connection) Read(p []byte) (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.isOpen || c.port == nil {
		return 0, ErrPortNotOpen
	}

	n, err := c.port.Read(p)
	if err != nil && err != io.EOF {
		c.logger.Error("Failed to read from serial port", zap.Error(err))
		return n, fmt.Errorf("failed to read from serial port: %w", err)
	}
	return n, err
}

// IsOpen returns whether the connection is open
func (c *Connection) IsOpen() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.isOpen
}

// GetConfig returns the connection configuration
func (c *Connection) GetConfig() *Config {
	return c.config
}
