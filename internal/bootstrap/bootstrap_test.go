package bootstrap

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"focuser-service/internal/config"
	"focuser-service/internal/model"
)

func TestSimulatedFocuser(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Simulator.Enabled = true
	cfg.Simulator.Devices = 2
	cfg.Simulator.Position = 1234
	cfg.Discovery.PortPatterns = []string{"/nonexistent/tty*"}

	svc, registry := NewFocuserService(cfg, nil, zap.NewNop())
	require.NotNil(t, registry)
	defer svc.Close()

	found, err := svc.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, SimulatedPort(1), found[0].Port)

	status, err := svc.AutoConnect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SimulatedPort(1), status.Port)

	pos, err := svc.Position(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Position(1234), pos)
}

func TestSimulatorDisabled(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := config.Load()
	require.NoError(t, err)

	_, registry := NewFocuserService(cfg, nil, zap.NewNop())
	assert.Nil(t, registry)
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
