// internal/protocol/robofocus/codec.go

// Package robofocus implements the Robofocus focuser wire protocol: request
// framing, reply parsing and the connection lifecycle built on a serial port.
//
// Every request and reply is a 9-byte frame: a 2 character opcode, a 6 digit
// ASCII operand or payload and a checksum byte equal to the low 8 bits of the
// sum of the other 8 bytes. While the motor moves the device emits 'I' or 'O'
// bytes ahead of the reply; those are skipped.
package robofocus

import (
	"fmt"
	"io"
	"strconv"

	"focuser-service/internal/model"
)

const (
	OpcodeSize  = 2
	OperandSize = 6
	FrameSize   = OpcodeSize + OperandSize + 1

	// MaxOperand is the largest value representable in the operand field.
	MaxOperand = 999999
)

// Opcodes understood by the focuser.
const (
	OpVersion  = "FV"
	OpPosition = "FG" // query with operand 0, goto otherwise
	OpStepIn   = "FI"
	OpStepOut  = "FO"
	OpPower    = "FP" // query with operand 0, set otherwise
	OpMoveDone = "FD" // sent by the device when a move completes
)

// Noise bytes emitted while the motor is moving.
const (
	NoiseIn  = 'I'
	NoiseOut = 'O'
)

// Power channel characters.
const (
	PowerOn  = '1'
	PowerOff = '2'
)

// Reply is one framed reply with any leading noise removed.
type Reply struct {
	Frame      [FrameSize]byte
	NoiseBytes int
}

// Opcode returns the echoed opcode.
func (r Reply) Opcode() string {
	return string(r.Frame[:OpcodeSize])
}

// Payload returns the 6 payload bytes.
func (r Reply) Payload() []byte {
	return r.Frame[OpcodeSize : OpcodeSize+OperandSize]
}

// Checksum returns the checksum byte as sent by the device.
func (r Reply) Checksum() byte {
	return r.Frame[FrameSize-1]
}

// Checksum returns the low 8 bits of the sum of b.
func Checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum += c
	}
	return sum
}

// EncodeRequest frames opcode with operand zero padded to 6 digits.
func EncodeRequest(opcode string, operand int) ([]byte, error) {
	if operand < 0 || operand > MaxOperand {
		return nil, fmt.Errorf("operand %d does not fit in %d digits", operand, OperandSize)
	}
	return EncodeRequestOperand(opcode, fmt.Sprintf("%06d", operand))
}

// EncodeRequestOperand frames opcode with a literal 6 digit operand.
func EncodeRequestOperand(opcode, operand string) ([]byte, error) {
	if len(opcode) != OpcodeSize {
		return nil, fmt.Errorf("opcode %q must be %d bytes", opcode, OpcodeSize)
	}
	if len(operand) != OperandSize {
		return nil, fmt.Errorf("operand %q must be %d bytes", operand, OperandSize)
	}
	for i := 0; i < len(operand); i++ {
		if operand[i] < '0' || operand[i] > '9' {
			return nil, fmt.Errorf("operand %q must be decimal digits", operand)
		}
	}

	frame := make([]byte, 0, FrameSize)
	frame = append(frame, opcode...)
	frame = append(frame, operand...)
	frame = append(frame, Checksum(frame))
	return frame, nil
}

// ReadReply reads one reply from r, one byte at a time.
//
// Leading noise bytes are discarded; the first other byte starts the frame and
// exactly 8 more are read. A read returning no data ends collection, so a
// reader with a read timeout turns a silent device into ErrTooShort. An empty
// expectedOpcode accepts any echo.
func ReadReply(r io.Reader, expectedOpcode string, verifyChecksum bool) (Reply, error) {
	var reply Reply
	buf := make([]byte, 1)
	n := 0

	for n < FrameSize {
		got, err := r.Read(buf)
		if got == 0 {
			if err != nil && err != io.EOF {
				return reply, fmt.Errorf("read reply: %w", err)
			}
			return reply, newProtocolError(ErrTooShort, reply.Frame[:n])
		}
		if n == 0 && (buf[0] == NoiseIn || buf[0] == NoiseOut) {
			reply.NoiseBytes++
			continue
		}
		reply.Frame[n] = buf[0]
		n++
	}

	if expectedOpcode != "" && reply.Opcode() != expectedOpcode {
		pe := newProtocolError(ErrOpcodeMismatch, reply.Frame[:])
		pe.Expected = expectedOpcode
		return reply, pe
	}

	if verifyChecksum && Checksum(reply.Frame[:FrameSize-1]) != reply.Checksum() {
		return reply, newProtocolError(ErrBadChecksum, reply.Frame[:])
	}

	return reply, nil
}

// ParsePosition decodes a 6 digit payload into a focuser position.
func ParsePosition(payload []byte) (model.Position, error) {
	if len(payload) != OperandSize {
		return 0, newProtocolError(ErrBadPayload, payload)
	}
	for _, c := range payload {
		if c < '0' || c > '9' {
			return 0, newProtocolError(ErrBadPayload, payload)
		}
	}
	v, err := strconv.Atoi(string(payload))
	if err != nil {
		return 0, newProtocolError(ErrBadPayload, payload)
	}
	pos := model.Position(v)
	if !pos.Valid() {
		return 0, newProtocolError(ErrBadPayload, payload)
	}
	return pos, nil
}

// PowerStatus returns the 4 channel characters at the end of a payload.
func PowerStatus(payload []byte) ([model.PowerChannelCount]byte, error) {
	var status [model.PowerChannelCount]byte
	if len(payload) != OperandSize {
		return status, newProtocolError(ErrBadPowerEncoding, payload)
	}
	copy(status[:], payload[OperandSize-model.PowerChannelCount:])
	for _, c := range status {
		if c != PowerOn && c != PowerOff {
			return status, newProtocolError(ErrBadPowerEncoding, payload)
		}
	}
	return status, nil
}

// ParsePowerState decodes the remote power payload, '1' meaning on and '2' off.
func ParsePowerState(payload []byte) (model.PowerState, error) {
	status, err := PowerStatus(payload)
	if err != nil {
		return model.PowerState{}, err
	}
	return model.PowerState{
		Channel1: status[0] == PowerOn,
		Channel2: status[1] == PowerOn,
		Channel3: status[2] == PowerOn,
		Channel4: status[3] == PowerOn,
	}, nil
}

// PowerOperand builds the power-set operand: "00" followed by the 4 status characters.
func PowerOperand(status [model.PowerChannelCount]byte) string {
	return "00" + string(status[:])
}
