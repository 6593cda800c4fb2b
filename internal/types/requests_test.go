package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandInputUnmarshal(t *testing.T) {
	t.Run("string form", func(t *testing.T) {
		var c CommandInput
		require.NoError(t, json.Unmarshal([]byte(`"echo hello"`), &c))
		assert.False(t, c.IsArgv)
		assert.Equal(t, "echo hello", c.String)
		assert.Nil(t, c.Argv)
	})

	t.Run("argv form", func(t *testing.T) {
		var c CommandInput
		require.NoError(t, json.Unmarshal([]byte(`["echo", "hello"]`), &c))
		assert.True(t, c.IsArgv)
		assert.Equal(t, []string{"echo", "hello"}, c.Argv)
	})

	t.Run("leading whitespace before array", func(t *testing.T) {
		var c CommandInput
		require.NoError(t, json.Unmarshal([]byte("\n\t [\"ls\"]"), &c))
		assert.True(t, c.IsArgv)
		assert.Equal(t, []string{"ls"}, c.Argv)
	})

	t.Run("round trip", func(t *testing.T) {
		for _, raw := range []string{`"true"`, `["sh","-c","true"]`} {
			var c CommandInput
			require.NoError(t, json.Unmarshal([]byte(raw), &c))
			out, err := json.Marshal(c)
			require.NoError(t, err)
			assert.JSONEq(t, raw, string(out))
		}
	})
}

func TestCommandInputEmpty(t *testing.T) {
	assert.True(t, CommandInput{}.Empty())
	assert.True(t, CommandInput{IsArgv: true}.Empty())
	assert.False(t, CommandInput{String: "true"}.Empty())
	assert.False(t, CommandInput{IsArgv: true, Argv: []string{"true"}}.Empty())
}

func TestSessionNameDefaults(t *testing.T) {
	create := CreateBashSessionRequest{}
	assert.Equal(t, "default", create.SessionName())
	create.Session = "build"
	assert.Equal(t, "build", create.SessionName())

	action := BashAction{}
	assert.Equal(t, "default", action.SessionName())

	closeReq := CloseBashSessionRequest{Session: "build"}
	assert.Equal(t, "build", closeReq.SessionName())
}

func TestTimeoutConversions(t *testing.T) {
	def := 30 * time.Second

	a := BashAction{}
	assert.Equal(t, def, a.TimeoutOrDefault(def))

	a.Timeout = 0.5
	assert.Equal(t, 500*time.Millisecond, a.TimeoutOrDefault(def))

	c := Command{}
	assert.Equal(t, time.Duration(0), c.TimeoutOrZero())

	c.Timeout = 2
	assert.Equal(t, 2*time.Second, c.TimeoutOrZero())

	r := CreateBashSessionRequest{StartupTimeout: 1}
	assert.Equal(t, time.Second, r.StartupTimeoutOrDefault(10*time.Second))
}

func TestBashActionWireNames(t *testing.T) {
	raw := `{
		"command": "sleep 30",
		"session": "default",
		"timeout": 1.5,
		"is_interactive_command": false,
		"is_interactive_quit": false,
		"check": "raise",
		"error_msg": "build failed",
		"expect": ["(gdb)"]
	}`
	var a BashAction
	require.NoError(t, json.Unmarshal([]byte(raw), &a))
	assert.Equal(t, "sleep 30", a.Command)
	assert.Equal(t, 1.5, a.Timeout)
	assert.Equal(t, CheckRaise, a.Check)
	assert.Equal(t, "build failed", a.ErrorMsg)
	assert.Equal(t, []string{"(gdb)"}, a.Expect)
}
