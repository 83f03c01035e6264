// pkg/driver/types.go
package driver

import (
	"context"
	"fmt"
	"strings"

	"focuser-service/internal/model"
)

// Direction selects which way a relative move travels
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// ParseDirection accepts "in" or "out" in any case
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case DirectionIn, DirectionOut:
		return d, nil
	default:
		return "", fmt.Errorf("invalid direction %q, want %q or %q", s, DirectionIn, DirectionOut)
	}
}

// Step moves the focuser by steps in the given direction
func Step(ctx context.Context, d FocuserDriver, dir Direction, steps int) (model.Position, error) {
	switch dir {
	case DirectionIn:
		return d.StepIn(ctx, steps)
	case DirectionOut:
		return d.StepOut(ctx, steps)
	default:
		return 0, fmt.Errorf("invalid direction %q", dir)
	}
}
