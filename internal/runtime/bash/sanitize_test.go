package bash

import (
	"testing"
)

const (
	testPS1 = "SWE-REX-PS1>"
	testPS2 = "SWE-REX-PS2>"
)

func TestNormalizeCRLF(t *testing.T) {
	got := normalizeCRLF([]byte("a\r\nb\rc\r\n"))
	want := "a\nb\rc\n"
	if got != want {
		t.Errorf("normalizeCRLF = %q, want %q (lone \\r is real output)", got, want)
	}
}

func TestStripControl(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"csi color", "\x1b[31mred\x1b[0m", "red"},
		{"cursor motion", "\x1b[2Jtext", "text"},
		{"two byte escape", "\x1bMline", "line"},
		{"bell", "ding\adong", "dingdong"},
		{"plain", "untouched", "untouched"},
		{"bracketed paste", "\x1b[?2004habc\x1b[?2004l", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripControl(tt.input); got != tt.want {
				t.Errorf("stripControl(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	nonce := "f00d"
	command := "echo hello"
	written := wrapCommand(command, nonce)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "echo off",
			raw:  "hello\r\n" + testPS1 + "SOUT:f00d\r\nSCODE:f00d:0\r\n" + testPS1,
			want: "hello\n",
		},
		{
			name: "full input echoed",
			raw:  written + "hello\r\n" + testPS1 + "SOUT:f00d\r\nSCODE:f00d:0\r\n" + testPS1,
			want: "hello\n",
		},
		{
			name: "line by line echo",
			raw: command + "\r\nhello\r\n" + testPS1 +
				"EC=$?; echo SOUT:f00d; echo SCODE:f00d:$EC\r\n" +
				"SOUT:f00d\r\nSCODE:f00d:0\r\n" + testPS1,
			want: "hello\n",
		},
		{
			name: "continuation prompts removed",
			raw:  testPS2 + "line1\r\n" + testPS2 + "line2\r\nSOUT:f00d\r\n",
			want: "line1\nline2\n",
		},
		{
			name: "ansi stripped",
			raw:  "\x1b[1mbold\x1b[0m\r\nSOUT:f00d\r\n",
			want: "bold\n",
		},
		{
			name: "prompt lookalike inside output removed",
			raw:  "before " + testPS1 + " after\r\nSOUT:f00d\r\n",
			want: "before  after\n",
		},
		{
			name: "no fuzzy echo stripping",
			raw:  "echo  hello\r\nSOUT:f00d\r\n",
			want: "echo  hello\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitize(normalizeCRLF([]byte(tt.raw)), written, command, nonce, testPS1, testPS2)
			if got != tt.want {
				t.Errorf("sanitize mismatch:\ngot  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeWithoutNonce(t *testing.T) {
	// Interactive reads have no sentinel; the marker cut must not run.
	raw := ">>> SOUT:stale output stays\r\n"
	got := sanitize(normalizeCRLF([]byte(raw)), "", "", "", testPS1, testPS2)
	want := ">>> SOUT:stale output stays\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitizeNonceScopedCut(t *testing.T) {
	// A stale sentinel printed by the command itself must not truncate
	// the output of a later call with a fresh nonce.
	raw := "old SOUT:aaaa marker\r\nreal output\r\nSOUT:bbbb\r\n"
	got := sanitize(normalizeCRLF([]byte(raw)), "", "cmd", "bbbb", testPS1, testPS2)
	want := "old SOUT:aaaa marker\nreal output\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStartupOutput(t *testing.T) {
	// Echo is on during the probe: the echoed probe line carries the
	// marker text, so the banner before it is all that survives. The
	// setup phase runs without echo, so rc output appears bare between
	// the pre-setup prompt and the setup marker.
	probeRaw := []byte("Welcome to the box\r\nbash-5.2$ stty -echo -icanon ; " +
		"export PS1='" + testPS1 + "' ; echo PROBE:n1:$((1+1))\r\nPROBE:n1:2\r\n")
	setupRaw := []byte(testPS1 + "rc says hi\r\nSETUP:n1:0\r\n" + testPS1)
	got := startupOutput(probeRaw, setupRaw, "n1", testPS1, testPS2)
	want := "Welcome to the box\nrc says hi\n"
	if got != want {
		t.Errorf("startupOutput = %q, want %q", got, want)
	}
}

func TestStartupOutputClean(t *testing.T) {
	// A quiet shell produces nothing but prompts and plumbing.
	probeRaw := []byte("bash-5.2$ stty -echo -icanon ; echo PROBE:n1:$((1+1))\r\nPROBE:n1:2\r\n")
	setupRaw := []byte(testPS1 + "SETUP:n1:0\r\n" + testPS1)
	if got := startupOutput(probeRaw, setupRaw, "n1", testPS1, testPS2); got != "" {
		t.Errorf("startupOutput = %q, want empty", got)
	}
}
