// internal/driver/robofocus/driver.go
package robofocus

import (
	"context"

	"go.uber.org/zap"

	"focuser-service/internal/model"
	"focuser-service/internal/protocol/robofocus"
)

// Focuser issues Robofocus commands over a Ready connection. Each call is a
// single blocking request/reply exchange; the type keeps no state of its own.
type Focuser struct {
	conn   *robofocus.Connection
	logger *zap.Logger
}

// NewFocuser wraps an owned connection.
func NewFocuser(conn *robofocus.Connection, logger *zap.Logger) *Focuser {
	return &Focuser{
		conn:   conn,
		logger: logger.With(zap.String("component", "focuser"), zap.String("port", conn.Port())),
	}
}

// Connection returns the underlying connection.
func (f *Focuser) Connection() *robofocus.Connection {
	return f.conn
}

// Version queries the firmware version payload.
func (f *Focuser) Version(ctx context.Context) (string, error) {
	reply, err := f.conn.Exchange(ctx, robofocus.OpVersion, 0, robofocus.OpVersion)
	if err != nil {
		return "", err
	}
	return string(reply.Payload()), nil
}

// QueryPosition returns the current absolute position.
func (f *Focuser) QueryPosition(ctx context.Context) (model.Position, error) {
	return f.position(ctx, robofocus.OpPosition, 0)
}

// GotoPosition moves to pos, 0 < pos < 65000, and returns the final position.
func (f *Focuser) GotoPosition(ctx context.Context, pos int) (model.Position, error) {
	if err := checkTravel("goto", pos); err != nil {
		return 0, err
	}
	return f.move(ctx, robofocus.OpPosition, pos)
}

// StepIn moves inward by steps, 0 < steps < 65000, and returns the new absolute position.
func (f *Focuser) StepIn(ctx context.Context, steps int) (model.Position, error) {
	if err := checkTravel("step in", steps); err != nil {
		return 0, err
	}
	return f.move(ctx, robofocus.OpStepIn, steps)
}

// StepOut moves outward by steps, 0 < steps < 65000, and returns the new absolute position.
func (f *Focuser) StepOut(ctx context.Context, steps int) (model.Position, error) {
	if err := checkTravel("step out", steps); err != nil {
		return 0, err
	}
	return f.move(ctx, robofocus.OpStepOut, steps)
}

// QueryRemotePower returns the state of the four power outputs.
func (f *Focuser) QueryRemotePower(ctx context.Context) (model.PowerState, error) {
	reply, err := f.conn.Exchange(ctx, robofocus.OpPower, 0, robofocus.OpPower)
	if err != nil {
		return model.PowerState{}, err
	}
	return robofocus.ParsePowerState(reply.Payload())
}

// SetRemotePower switches one output and returns the state the device
// reports for it afterwards, which wins over the requested value.
func (f *Focuser) SetRemotePower(ctx context.Context, channel model.PowerChannel, on bool) (bool, error) {
	if !channel.Valid() {
		return false, &robofocus.RangeError{Op: "set power", Value: int(channel), Min: int(model.PowerChannel1) - 1, Max: model.PowerChannelCount}
	}

	reply, err := f.conn.Exchange(ctx, robofocus.OpPower, 0, robofocus.OpPower)
	if err != nil {
		return false, err
	}
	status, err := robofocus.PowerStatus(reply.Payload())
	if err != nil {
		return false, err
	}

	status[channel] = robofocus.PowerOff
	if on {
		status[channel] = robofocus.PowerOn
	}

	reply, err = f.conn.ExchangeOperand(ctx, robofocus.OpPower, robofocus.PowerOperand(status), robofocus.OpPower)
	if err != nil {
		return false, err
	}
	echoed, err := robofocus.PowerStatus(reply.Payload())
	if err != nil {
		return false, err
	}

	result := echoed[channel] == robofocus.PowerOn
	if result != on {
		f.logger.Warn("Focuser did not apply remote power change",
			zap.Stringer("channel", channel),
			zap.Bool("requested", on),
			zap.Bool("reported", result),
		)
	}
	return result, nil
}

// move sends a motion command. The device streams noise bytes while moving and
// completes with a position frame whose opcode is not checked.
func (f *Focuser) move(ctx context.Context, opcode string, operand int) (model.Position, error) {
	pos, err := f.position(ctx, opcode, operand)
	if err != nil {
		return 0, err
	}
	f.logger.Debug("Focuser moved", zap.String("opcode", opcode), zap.Int("operand", operand), zap.Int("position", int(pos)))
	return pos, nil
}

func (f *Focuser) position(ctx context.Context, opcode string, operand int) (model.Position, error) {
	reply, err := f.conn.Exchange(ctx, opcode, operand, "")
	if err != nil {
		return 0, err
	}
	return robofocus.ParsePosition(reply.Payload())
}

func checkTravel(op string, v int) error {
	if v <= 0 || v >= model.MaxPosition {
		return &robofocus.RangeError{Op: op, Value: v, Min: 0, Max: model.MaxPosition}
	}
	return nil
}
