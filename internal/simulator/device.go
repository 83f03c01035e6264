// internal/simulator/device.go

// Package simulator provides an in-process Robofocus controller that speaks
// the serial protocol, for running the service without hardware and for tests.
package simulator

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"focuser-service/internal/discovery"
	"focuser-service/internal/model"
	"focuser-service/internal/protocol/robofocus"
	pserial "focuser-service/internal/protocol/serial"
)

// Scheme prefixes port identifiers served by the simulator.
const Scheme = "sim://"

// DefaultVersion is the firmware version payload the simulator reports.
const DefaultVersion = "002105"

// ErrClosed is returned by I/O on a closed simulated port.
var ErrClosed = errors.New("simulated port closed")

// Fault alters how the simulated device answers.
type Fault int

const (
	FaultNone Fault = iota
	// FaultSilent makes the device never answer.
	FaultSilent
	// FaultWrongOpcode echoes "XX" instead of the request opcode.
	FaultWrongOpcode
	// FaultBadChecksum corrupts the reply checksum.
	FaultBadChecksum
	// FaultTruncated sends only the first 5 bytes of each reply.
	FaultTruncated
)

// Device is a simulated focuser. It implements the serial port interface used
// by the protocol layer; replies are queued on Write and drained by Read.
type Device struct {
	mu sync.Mutex

	version  string
	position int
	power    [model.PowerChannelCount]byte
	// StepsPerNoise controls how many motor steps produce one noise byte.
	StepsPerNoise int
	// MoveOpcode is the opcode echoed when a move completes.
	MoveOpcode string
	fault      Fault
	powerReply string

	pending  []byte
	out      []byte
	requests [][]byte
	written  int
	closed   bool
}

// NewDevice creates a simulated focuser at the given position with all power channels off.
func NewDevice(position int) *Device {
	return &Device{
		version:       DefaultVersion,
		position:      position,
		power:         [model.PowerChannelCount]byte{robofocus.PowerOff, robofocus.PowerOff, robofocus.PowerOff, robofocus.PowerOff},
		StepsPerNoise: 10,
		MoveOpcode:    robofocus.OpMoveDone,
	}
}

// SetFault changes the answering behaviour.
func (d *Device) SetFault(f Fault) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fault = f
}

// SetPowerStatus sets the 4 channel characters reported by power queries.
func (d *Device) SetPowerStatus(status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.power[:], status)
}

// SetPowerReply overrides the 4 channel characters of every power reply,
// simulating a controller that reports something other than what it was sent.
func (d *Device) SetPowerReply(status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.powerReply = status
}

// PowerStatus returns the current 4 channel characters.
func (d *Device) PowerStatus() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.power[:])
}

// Position returns the current motor position.
func (d *Device) Position() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position
}

// Requests returns a copy of every complete request frame received.
func (d *Device) Requests() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.requests))
	for i, r := range d.requests {
		out[i] = append([]byte(nil), r...)
	}
	return out
}

// BytesWritten returns the total number of bytes written to the device.
func (d *Device) BytesWritten() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written
}

// Queue appends raw bytes to the outgoing stream, ahead of any later reply.
func (d *Device) Queue(b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = append(d.out, b...)
}

// Write accepts request bytes and queues the reply for every complete frame.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	d.written += len(p)
	d.pending = append(d.pending, p...)
	for len(d.pending) >= robofocus.FrameSize {
		frame := append([]byte(nil), d.pending[:robofocus.FrameSize]...)
		d.pending = d.pending[robofocus.FrameSize:]
		d.requests = append(d.requests, frame)
		d.handle(frame)
	}
	return len(p), nil
}

// Read drains queued reply bytes. With nothing queued it returns 0, nil,
// which is how a go.bug.st serial port reports a read timeout.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil
}

// SetReadTimeout is accepted and ignored; reads never block.
func (d *Device) SetReadTimeout(time.Duration) error {
	return nil
}

// ResetInputBuffer drops queued reply bytes.
func (d *Device) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = nil
	return nil
}

// Close marks the port closed. A closed Device may be reopened through a Registry.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.out = nil
	d.pending = nil
	return nil
}

// IsClosed reports whether the last opener of the device closed it.
func (d *Device) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Device) reopen() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = false
}

func (d *Device) handle(frame []byte) {
	if d.fault == FaultSilent {
		return
	}
	if robofocus.Checksum(frame[:robofocus.FrameSize-1]) != frame[robofocus.FrameSize-1] {
		return
	}

	opcode := string(frame[:robofocus.OpcodeSize])
	operand := string(frame[robofocus.OpcodeSize : robofocus.FrameSize-1])
	value, err := strconv.Atoi(operand)
	if err != nil {
		return
	}

	switch opcode {
	case robofocus.OpVersion:
		d.reply(opcode, d.version)
	case robofocus.OpPosition:
		if value == 0 {
			d.reply(opcode, fmt.Sprintf("%06d", d.position))
			return
		}
		d.moveTo(value)
	case robofocus.OpStepIn:
		d.moveTo(d.position - value)
	case robofocus.OpStepOut:
		d.moveTo(d.position + value)
	case robofocus.OpPower:
		if value != 0 {
			status := operand[robofocus.OperandSize-model.PowerChannelCount:]
			if !strings.ContainsFunc(status, func(r rune) bool { return r != robofocus.PowerOn && r != robofocus.PowerOff }) {
				copy(d.power[:], status)
			}
		}
		status := string(d.power[:])
		if d.powerReply != "" {
			status = d.powerReply
		}
		d.reply(opcode, "00"+status)
	}
}

func (d *Device) moveTo(target int) {
	if target < 0 {
		target = 0
	}
	if target >= model.MaxPosition {
		target = model.MaxPosition - 1
	}

	noise := byte(robofocus.NoiseOut)
	delta := target - d.position
	if delta < 0 {
		noise = robofocus.NoiseIn
		delta = -delta
	}
	if d.StepsPerNoise > 0 {
		d.out = append(d.out, bytes.Repeat([]byte{noise}, delta/d.StepsPerNoise)...)
	}

	d.position = target
	d.reply(d.MoveOpcode, fmt.Sprintf("%06d", d.position))
}

func (d *Device) reply(opcode, payload string) {
	if d.fault == FaultWrongOpcode {
		opcode = "XX"
	}
	frame, err := robofocus.EncodeRequestOperand(opcode, payload)
	if err != nil {
		return
	}
	switch d.fault {
	case FaultBadChecksum:
		frame[robofocus.FrameSize-1]++
	case FaultTruncated:
		frame = frame[:5]
	}
	d.out = append(d.out, frame...)
}

// Registry maps sim:// port identifiers to simulated devices and falls back
// to another opener for every other port.
type Registry struct {
	mu       sync.Mutex
	devices  map[string]*Device
	fallback pserial.Opener
}

// NewRegistry creates an empty registry delegating unknown ports to fallback.
func NewRegistry(fallback pserial.Opener) *Registry {
	return &Registry{
		devices:  make(map[string]*Device),
		fallback: fallback,
	}
}

// Add registers a device under name, which should start with Scheme.
func (r *Registry) Add(name string, d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[name] = d
}

// Device returns the device registered under name.
func (r *Registry) Device(name string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[name]
	return d, ok
}

// ListPorts implements discovery.PortLister.
func (r *Registry) ListPorts() ([]discovery.PortInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ports := make([]discovery.PortInfo, 0, len(r.devices))
	for name := range r.devices {
		ports = append(ports, discovery.PortInfo{Name: name, Product: "Robofocus simulator"})
	}
	return ports, nil
}

// Open implements serial.Opener.
func (r *Registry) Open(name string, mode *serial.Mode) (pserial.Port, error) {
	if strings.HasPrefix(name, Scheme) {
		d, ok := r.Device(name)
		if !ok {
			return nil, fmt.Errorf("simulated port %s not registered", name)
		}
		d.reopen()
		return d, nil
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("no opener for port %s", name)
	}
	return r.fallback(name, mode)
}
