package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focuser-service/internal/model"
)

type recordingDriver struct {
	FocuserDriver
	calls []string
}

func (r *recordingDriver) StepIn(_ context.Context, steps int) (model.Position, error) {
	r.calls = append(r.calls, "in")
	return model.Position(1000 - steps), nil
}

func (r *recordingDriver) StepOut(_ context.Context, steps int) (model.Position, error) {
	r.calls = append(r.calls, "out")
	return model.Position(1000 + steps), nil
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection(" IN ")
	require.NoError(t, err)
	assert.Equal(t, DirectionIn, d)

	d, err = ParseDirection("out")
	require.NoError(t, err)
	assert.Equal(t, DirectionOut, d)

	_, err = ParseDirection("up")
	assert.Error(t, err)
}

func TestStep(t *testing.T) {
	r := &recordingDriver{}

	pos, err := Step(context.Background(), r, DirectionIn, 10)
	require.NoError(t, err)
	assert.Equal(t, model.Position(990), pos)

	pos, err = Step(context.Background(), r, DirectionOut, 10)
	require.NoError(t, err)
	assert.Equal(t, model.Position(1010), pos)

	_, err = Step(context.Background(), r, Direction("sideways"), 10)
	assert.Error(t, err)
	assert.Equal(t, []string{"in", "out"}, r.calls)
}
