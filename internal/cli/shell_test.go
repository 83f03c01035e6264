package cli

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"focuser-service/internal/config"
	"focuser-service/internal/discovery"
	"focuser-service/internal/model"
	"focuser-service/internal/service"
	"focuser-service/internal/simulator"
)

func newTestShell(t *testing.T, devices map[string]*simulator.Device) *Shell {
	t.Helper()
	reg := simulator.NewRegistry(nil)
	for name, dev := range devices {
		reg.Add(name, dev)
	}
	scanner := discovery.NewScanner(discovery.Config{ProbeTimeout: 10 * time.Millisecond, VerifyChecksum: true}, reg.Open, zap.NewNop())
	scanner.RegisterLister("simulator", reg)
	svc := service.NewFocuserService(&config.FocuserConfig{
		ReadTimeout:    10 * time.Millisecond,
		VerifyChecksum: true,
		DefaultSteps:   50,
	}, scanner, reg.Open, nil, zap.NewNop())
	t.Cleanup(func() { svc.Close() })

	return &Shell{Service: svc, ctx: context.Background(), steps: 50}
}

func TestValidateSteps(t *testing.T) {
	s := &Shell{steps: 50}

	assert.Equal(t, 100, s.validateSteps("100"))
	assert.Equal(t, 100, s.validateSteps("0"), "zero keeps the previous size")
	assert.Equal(t, 100, s.validateSteps(strconv.Itoa(config.MaxDefaultSteps)))
	assert.Equal(t, 100, s.validateSteps("-3"))
	assert.Equal(t, 100, s.validateSteps("lots"))
	assert.Equal(t, config.MaxDefaultSteps-1, s.validateSteps(strconv.Itoa(config.MaxDefaultSteps-1)))
	assert.Equal(t, config.MaxDefaultSteps-1, s.Steps())
}

func TestSetStepsCommand(t *testing.T) {
	s := &Shell{steps: 50}

	res, err := s.setSteps([]string{"75"})
	require.NoError(t, err)
	assert.Equal(t, "75", res.text)

	_, err = s.setSteps([]string{"5000"})
	require.Error(t, err)
	assert.Equal(t, 75, s.Steps())

	res, err = s.setSteps(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"steps": 75}, res.data)
}

func TestConnectAndMove(t *testing.T) {
	dev := simulator.NewDevice(1000)
	dev.SetPowerStatus("2122")
	s := newTestShell(t, map[string]*simulator.Device{"sim://a": dev})

	out, err := s.connect(nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Connected to focuser on sim://a (version "+simulator.DefaultVersion+")")
	assert.Contains(t, out, "Position: 1000")
	assert.Contains(t, out, "Remote power: 1:off 2:on 3:off 4:off")

	res, err := s.stepper("in")(nil)
	require.NoError(t, err)
	assert.Equal(t, "950", res.text)

	res, err = s.stepper("out")([]string{"200"})
	require.NoError(t, err)
	assert.Equal(t, "1150", res.text)
	assert.Equal(t, 200, s.Steps(), "a valid count becomes the new step size")

	res, err = s.stepper("in")([]string{"9000"})
	require.NoError(t, err)
	assert.Equal(t, "950", res.text, "an invalid count falls back to the previous size")

	res, err = s.gotoPosition([]string{"4321"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"position": 4321}, res.data)

	_, err = s.gotoPosition([]string{"abc"})
	assert.Error(t, err)
	_, err = s.gotoPosition(nil)
	assert.Error(t, err)

	res, err = s.status(nil)
	require.NoError(t, err)
	assert.Contains(t, res.text, "Position: 4321")
	assert.Contains(t, res.text, "Step size: 200")
}

func TestPowerCommand(t *testing.T) {
	dev := simulator.NewDevice(0)
	s := newTestShell(t, map[string]*simulator.Device{"sim://a": dev})
	_, err := s.connect([]string{"sim://a"})
	require.NoError(t, err)

	res, err := s.power([]string{"3", "on"})
	require.NoError(t, err)
	assert.Equal(t, "Remote power channel 3 set to on", res.text)
	assert.Equal(t, "2212", dev.PowerStatus())

	res, err = s.power(nil)
	require.NoError(t, err)
	assert.Equal(t, "1:off 2:off 3:on 4:off", res.text)
	assert.Equal(t, model.PowerState{Channel3: true}, res.data)

	_, err = s.power([]string{"3"})
	assert.Error(t, err)
	_, err = s.power([]string{"3", "maybe"})
	assert.Error(t, err)
	_, err = s.power([]string{"9", "on"})
	assert.Error(t, err)
}

func TestCommandsNeedConnection(t *testing.T) {
	s := newTestShell(t, nil)

	_, err := s.position(nil)
	assert.Error(t, err)
	_, err = s.connect(nil)
	assert.ErrorIs(t, err, service.ErrNoFocuser)

	res, err := s.status(nil)
	require.NoError(t, err)
	assert.Equal(t, "Not connected", res.text)

	res, err = s.discover(nil)
	require.NoError(t, err)
	assert.Equal(t, "No focusers found", res.text)
}

func TestDisconnect(t *testing.T) {
	s := newTestShell(t, map[string]*simulator.Device{"sim://a": simulator.NewDevice(0)})
	_, err := s.connect([]string{"sim://a"})
	require.NoError(t, err)

	res, err := s.disconnect(nil)
	require.NoError(t, err)
	assert.Equal(t, "Disconnected", res.text)
	assert.False(t, s.Service.Connected())
}
