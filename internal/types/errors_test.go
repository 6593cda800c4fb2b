package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeKindErrors(t *testing.T) {
	cases := []struct {
		name string
		err  RexError
	}{
		{"session exists", NewSessionExistsError("default")},
		{"session does not exist", NewSessionDoesNotExistError("gone")},
		{"not initialized", NewSessionNotInitializedError("shell exited unexpectedly")},
		{"syntax", NewBashIncorrectSyntaxError("unterminated quoted string")},
		{"no exit code", NewNoExitCodeError("no exit code found in output")},
		{"deployment", NewDeploymentNotStartedError()},
		{"file op", NewFileOpError(errors.New("open /nope: no such file or directory"))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := EncodeError(tc.err)
			assert.Equal(t, tc.err.Kind(), env.ErrorKind)
			assert.Equal(t, tc.err.Error(), env.Message)

			back := DecodeError(env)
			assert.True(t, IsKind(back, tc.err.Kind()))
			assert.Equal(t, tc.err.Error(), back.Error())
		})
	}
}

func TestEncodeDecodeCommandTimeout(t *testing.T) {
	orig := &CommandTimeoutError{
		Timeout:       1.5,
		Recovered:     true,
		PartialOutput: "partial",
	}

	env := EncodeError(orig)
	assert.Equal(t, KindCommandTimeout, env.ErrorKind)

	// Cross a real JSON boundary so extra values take their wire types.
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var decoded ErrorEnvelope
	require.NoError(t, json.Unmarshal(raw, &decoded))

	back := DecodeError(decoded)
	var timeout *CommandTimeoutError
	require.True(t, errors.As(back, &timeout))
	assert.Equal(t, 1.5, timeout.Timeout)
	assert.True(t, timeout.Recovered)
	assert.Equal(t, "partial", timeout.PartialOutput)
	assert.Contains(t, timeout.Error(), "1.5")
}

func TestEncodeDecodeNonZeroExitCode(t *testing.T) {
	orig := &NonZeroExitCodeError{
		Message:  `command "false" failed with exit code 1`,
		ExitCode: 1,
		Output:   "",
	}

	raw, err := json.Marshal(EncodeError(orig))
	require.NoError(t, err)
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))

	back := DecodeError(env)
	var nonZero *NonZeroExitCodeError
	require.True(t, errors.As(back, &nonZero))
	assert.Equal(t, 1, nonZero.ExitCode)
	assert.Equal(t, orig.Message, nonZero.Error())
}

func TestEncodeWrappedError(t *testing.T) {
	inner := NewSessionDoesNotExistError("default")
	wrapped := fmt.Errorf("run_in_session: %w", inner)

	env := EncodeError(wrapped)
	assert.Equal(t, KindSessionDoesNotExist, env.ErrorKind)
}

func TestEncodeUnknownError(t *testing.T) {
	env := EncodeError(errors.New("boom"))
	assert.Equal(t, KindGeneric, env.ErrorKind)
	assert.Equal(t, "boom", env.Message)
}

func TestDecodeUnknownKind(t *testing.T) {
	back := DecodeError(ErrorEnvelope{ErrorKind: "FutureError", Message: "??"})
	assert.True(t, IsKind(back, KindGeneric))
	assert.Equal(t, "??", back.Error())
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewSessionExistsError("a"))
	assert.True(t, IsKind(err, KindSessionExists))
	assert.False(t, IsKind(err, KindSessionDoesNotExist))
	assert.False(t, IsKind(errors.New("plain"), KindSessionExists))
}
