// internal/protocol/robofocus/connection.go
package robofocus

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"focuser-service/internal/model"
	"focuser-service/internal/protocol/serial"
)

const (
	// BaudRate is fixed by the controller firmware.
	BaudRate = 9600

	// DefaultReadTimeout bounds the wait for each reply byte.
	DefaultReadTimeout = 2 * time.Second
)

// Config holds the settings of one focuser connection.
type Config struct {
	Port           string        `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	VerifyChecksum bool          `json:"verify_checksum"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig(port string) Config {
	return Config{
		Port:           port,
		ReadTimeout:    DefaultReadTimeout,
		VerifyChecksum: true,
	}
}

// Option customizes a Connection.
type Option func(*Connection)

// WithOpener replaces the host serial driver, used for simulated devices.
func WithOpener(opener serial.Opener) Option {
	return func(c *Connection) {
		c.opener = opener
	}
}

// Connection owns the serial channel to a single focuser. It moves from Closed
// to Open when the port opens and to Ready once the device answers the
// version probe. A Connection is not safe for concurrent use.
type Connection struct {
	config  Config
	opener  serial.Opener
	channel *serial.Connection
	state   model.ConnectionState
	version string
	logger  *zap.Logger
}

// NewConnection creates a Closed connection for cfg.Port.
func NewConnection(cfg Config, logger *zap.Logger, opts ...Option) *Connection {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	c := &Connection{
		config: cfg,
		state:  model.ConnectionStateClosed,
		logger: logger.With(zap.String("port", cfg.Port)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open acquires the serial channel and probes the device identity. Any
// failure releases the channel and leaves the connection Closed.
func (c *Connection) Open(ctx context.Context) error {
	if c.state != model.ConnectionStateClosed {
		return nil
	}

	channel, err := serial.NewConnection(&serial.Config{
		Port:     c.config.Port,
		BaudRate: BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
		Timeout:  c.config.ReadTimeout,
	}, c.opener, c.logger)
	if err != nil {
		return &ConnectionError{Kind: ErrOpenFailed, Port: c.config.Port, Err: err}
	}
	if err := channel.Open(ctx); err != nil {
		return &ConnectionError{Kind: ErrOpenFailed, Port: c.config.Port, Err: err}
	}

	c.channel = channel
	c.state = model.ConnectionStateOpen

	reply, err := c.exchange(ctx, OpVersion, 0, OpVersion)
	if err != nil {
		c.logger.Debug("Focuser did not answer version probe", zap.Error(err))
		c.Close()
		return &ConnectionError{Kind: ErrProbeFailed, Port: c.config.Port, Err: err}
	}

	c.version = string(reply.Payload())
	c.state = model.ConnectionStateReady

	c.logger.Info("Focuser connected", zap.String("version", c.version))
	return nil
}

// Close releases the channel. Closing a Closed connection is a no-op.
func (c *Connection) Close() error {
	if c.state == model.ConnectionStateClosed {
		return nil
	}

	channel := c.channel
	c.channel = nil
	c.state = model.ConnectionStateClosed
	c.version = ""

	if err := channel.Close(); err != nil {
		return fmt.Errorf("close %s: %w", c.config.Port, err)
	}
	return nil
}

// Exchange sends one request and reads its reply. It fails with ErrNotReady
// without touching the port unless the connection is Ready. The context is
// only consulted before the request is written.
func (c *Connection) Exchange(ctx context.Context, opcode string, operand int, expectedOpcode string) (Reply, error) {
	if c.state != model.ConnectionStateReady {
		return Reply{}, &ConnectionError{Kind: ErrNotReady, Port: c.config.Port}
	}
	return c.exchange(ctx, opcode, operand, expectedOpcode)
}

// ExchangeOperand is Exchange with a literal 6 digit operand.
func (c *Connection) ExchangeOperand(ctx context.Context, opcode, operand, expectedOpcode string) (Reply, error) {
	if c.state != model.ConnectionStateReady {
		return Reply{}, &ConnectionError{Kind: ErrNotReady, Port: c.config.Port}
	}
	frame, err := EncodeRequestOperand(opcode, operand)
	if err != nil {
		return Reply{}, err
	}
	return c.roundTrip(ctx, frame, expectedOpcode)
}

func (c *Connection) exchange(ctx context.Context, opcode string, operand int, expectedOpcode string) (Reply, error) {
	frame, err := EncodeRequest(opcode, operand)
	if err != nil {
		return Reply{}, err
	}
	return c.roundTrip(ctx, frame, expectedOpcode)
}

func (c *Connection) roundTrip(ctx context.Context, frame []byte, expectedOpcode string) (Reply, error) {
	if err := c.channel.DiscardInput(); err != nil {
		return Reply{}, err
	}
	if err := c.channel.Write(ctx, frame); err != nil {
		return Reply{}, err
	}

	reply, err := ReadReply(c.channel, expectedOpcode, c.config.VerifyChecksum)
	if err != nil {
		return reply, err
	}

	c.logger.Debug("Focuser reply",
		zap.ByteString("request", frame[:FrameSize-1]),
		zap.ByteString("reply", reply.Frame[:FrameSize-1]),
		zap.Int("noise_bytes", reply.NoiseBytes),
	)
	return reply, nil
}

// State returns the lifecycle state.
func (c *Connection) State() model.ConnectionState {
	return c.state
}

// Ready reports whether commands may be issued.
func (c *Connection) Ready() bool {
	return c.state == model.ConnectionStateReady
}

// Port returns the port identifier.
func (c *Connection) Port() string {
	return c.config.Port
}

// Version returns the firmware version payload from the identity probe.
func (c *Connection) Version() string {
	return c.version
}
