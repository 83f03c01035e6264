// pkg/driver/interfaces.go
package driver

import (
	"context"

	"focuser-service/internal/model"
)

// FocuserDriver is the command set a focuser controller exposes. Every call
// is one blocking exchange with the device.
type FocuserDriver interface {
	// Device information
	Version(ctx context.Context) (string, error)

	// Motion
	QueryPosition(ctx context.Context) (model.Position, error)
	GotoPosition(ctx context.Context, pos int) (model.Position, error)
	StepIn(ctx context.Context, steps int) (model.Position, error)
	StepOut(ctx context.Context, steps int) (model.Position, error)

	// Remote power outputs
	QueryRemotePower(ctx context.Context) (model.PowerState, error)
	SetRemotePower(ctx context.Context, channel model.PowerChannel, on bool) (bool, error)
}
