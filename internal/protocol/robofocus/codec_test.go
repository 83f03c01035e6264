package robofocus

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focuser-service/internal/model"
)

func frameOf(t *testing.T, opcode, payload string) []byte {
	t.Helper()
	frame, err := EncodeRequestOperand(opcode, payload)
	require.NoError(t, err)
	return frame
}

func TestEncodeRequestChecksum(t *testing.T) {
	operands := []int{0, 1, 9, 50, 12345, 64999, 65000, 99999, 100000, 999998, 999999}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		operands = append(operands, rng.Intn(MaxOperand+1))
	}

	for _, op := range []string{OpVersion, OpPosition, OpStepIn, OpStepOut, OpPower} {
		for _, n := range operands {
			frame, err := EncodeRequest(op, n)
			require.NoError(t, err)
			require.Len(t, frame, FrameSize)

			var sum int
			for _, b := range frame[:FrameSize-1] {
				sum += int(b)
			}
			assert.Equal(t, byte(sum%256), frame[FrameSize-1], "opcode %s operand %d", op, n)
		}
	}
}

func TestEncodeRequestLayout(t *testing.T) {
	frame, err := EncodeRequest(OpStepIn, 50)
	require.NoError(t, err)
	assert.Equal(t, "FI000050", string(frame[:8]))
	assert.Equal(t, Checksum([]byte("FI000050")), frame[8])

	frame, err = EncodeRequest(OpVersion, 0)
	require.NoError(t, err)
	assert.Equal(t, "FV000000", string(frame[:8]))
	// 'F'+'V'+6*'0' = 70+86+288 = 444
	assert.Equal(t, byte(444%256), frame[8])
}

func TestEncodeRequestRejects(t *testing.T) {
	_, err := EncodeRequest(OpPosition, -1)
	assert.Error(t, err)
	_, err = EncodeRequest(OpPosition, MaxOperand+1)
	assert.Error(t, err)
	_, err = EncodeRequest("F", 1)
	assert.Error(t, err)
	_, err = EncodeRequestOperand(OpPower, "0012a2")
	assert.Error(t, err)
	_, err = EncodeRequestOperand(OpPower, "1212")
	assert.Error(t, err)
}

func TestReadReplySkipsNoise(t *testing.T) {
	frame := frameOf(t, OpMoveDone, "001234")
	want, err := ReadReply(bytes.NewReader(frame), "", true)
	require.NoError(t, err)
	assert.Equal(t, 0, want.NoiseBytes)

	rng := rand.New(rand.NewSource(7))
	for _, k := range []int{0, 1, 5, 50} {
		noise := make([]byte, k)
		for i := range noise {
			noise[i] = "IO"[rng.Intn(2)]
		}
		got, err := ReadReply(bytes.NewReader(append(noise, frame...)), "", true)
		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, want.Frame, got.Frame, "k=%d", k)
		assert.Equal(t, k, got.NoiseBytes)
	}
}

func TestReadReplyNoiseOnlyBeforeFrame(t *testing.T) {
	// 'I' and 'O' after the first frame byte are data, not noise
	frame := frameOf(t, "XX", "000000")
	copy(frame[2:4], "IO")
	frame[FrameSize-1] = Checksum(frame[:FrameSize-1])

	got, err := ReadReply(bytes.NewReader(append([]byte("OI"), frame...)), "", true)
	require.NoError(t, err)
	assert.Equal(t, 2, got.NoiseBytes)
	assert.Equal(t, "XX", got.Opcode())
	assert.Equal(t, "IO0000", string(got.Payload()))
}

func TestReadReplyTooShort(t *testing.T) {
	frame := frameOf(t, OpPosition, "000100")

	for _, n := range []int{0, 1, 8} {
		_, err := ReadReply(bytes.NewReader(frame[:n]), "", true)
		require.ErrorIs(t, err, ErrTooShort)

		var pe *ProtocolError
		require.True(t, errors.As(err, &pe))
		assert.Len(t, pe.Frame, n)
		assert.Equal(t, n == 0, pe.Timeout())
	}

	// noise followed by silence is still a timeout
	_, err := ReadReply(bytes.NewReader([]byte("IIIO")), "", true)
	require.ErrorIs(t, err, ErrTooShort)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device unplugged") }

func TestReadReplyReadError(t *testing.T) {
	_, err := ReadReply(failingReader{}, "", true)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTooShort)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestReadReplyOpcodeMismatch(t *testing.T) {
	frame := frameOf(t, OpPosition, "000100")

	_, err := ReadReply(bytes.NewReader(frame), OpVersion, true)
	require.ErrorIs(t, err, ErrOpcodeMismatch)

	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, OpVersion, pe.Expected)

	_, err = ReadReply(bytes.NewReader(frame), OpPosition, true)
	require.NoError(t, err)
}

func TestReadReplyChecksum(t *testing.T) {
	frame := frameOf(t, OpPosition, "000100")
	frame[FrameSize-1] ^= 0xFF

	_, err := ReadReply(bytes.NewReader(frame), OpPosition, true)
	require.ErrorIs(t, err, ErrBadChecksum)

	reply, err := ReadReply(bytes.NewReader(frame), OpPosition, false)
	require.NoError(t, err)
	assert.Equal(t, "000100", string(reply.Payload()))
}

func TestParsePosition(t *testing.T) {
	pos, err := ParsePosition([]byte("012345"))
	require.NoError(t, err)
	assert.Equal(t, model.Position(12345), pos)

	pos, err = ParsePosition([]byte("000000"))
	require.NoError(t, err)
	assert.Equal(t, model.Position(0), pos)

	for _, bad := range []string{"065000", "12345", "01234a", " 12345", "-12345"} {
		_, err := ParsePosition([]byte(bad))
		assert.ErrorIs(t, err, ErrBadPayload, bad)
	}
}

func TestParsePowerState(t *testing.T) {
	state, err := ParsePowerState([]byte("001212"))
	require.NoError(t, err)
	assert.Equal(t, [4]bool{true, false, true, false}, state.Channels())

	state, err = ParsePowerState([]byte("002221"))
	require.NoError(t, err)
	assert.Equal(t, model.PowerState{Channel4: true}, state)

	_, err = ParsePowerState([]byte("001299"))
	require.ErrorIs(t, err, ErrBadPowerEncoding)

	_, err = ParsePowerState([]byte("1212"))
	require.ErrorIs(t, err, ErrBadPowerEncoding)
}

func TestPowerOperand(t *testing.T) {
	assert.Equal(t, "001211", PowerOperand([4]byte{'1', '2', '1', '1'}))
}
