package bash

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Marker prefixes for the sentinel lines the session scans for. The
// nonce is regenerated for every call so that command output replaying
// an old sentinel can never be mistaken for completion.
const (
	outMarkerPrefix   = "SOUT:"
	codeMarkerPrefix  = "SCODE:"
	setupMarkerPrefix = "SETUP:"
	probeMarkerPrefix = "PROBE:"
)

// tailWindowSize bounds how far back completion scanning looks. The
// sentinel lines plus the prompt fit in well under this.
const tailWindowSize = 2048

func newNonce() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// wrapCommand builds the exact bytes written to the PTY for a normal
// command. The exit code is captured before the first echo because the
// echo itself resets $?, and the sentinel echoes run after the command
// so their appearance doubles as the completion signal.
func wrapCommand(command, nonce string) string {
	return command + "\n" +
		"EC=$?; echo " + outMarkerPrefix + nonce + "; echo " + codeMarkerPrefix + nonce + ":$EC\n"
}

// buildProbe builds the liveness probe written to a fresh shell, and
// the output to wait for. Terminal echo is still on at this point, so
// the expected string is produced by arithmetic expansion: the echoed
// input shows "$((1+1))" while only real shell output shows ":2". The
// probe also turns echo off and installs the prompts early so that the
// setup line is read without echo noise.
func buildProbe(ps1, ps2, nonce string) (line, want string) {
	parts := []string{
		"stty -echo -icanon",
		"export PS1=" + shellQuote(ps1),
		"export PS2=" + shellQuote(ps2),
		"export PS0=''",
		"PROMPT_COMMAND=''",
		"echo " + probeMarkerPrefix + nonce + ":$((1+1))",
	}
	return strings.Join(parts, " ; ") + "\n", probeMarkerPrefix + nonce + ":2"
}

// buildSetup builds the single line that configures a fresh shell:
// startup files first (they routinely clobber the prompt), then the
// deterministic prompt, echo and history settings, then a marker
// carrying the startup exit code.
func buildSetup(sources []string, ps1, ps2, nonce string) string {
	parts := make([]string, 0, len(sources)+8)
	if len(sources) > 0 {
		sourced := make([]string, len(sources))
		for i, p := range sources {
			sourced[i] = "source " + shellQuote(p)
		}
		parts = append(parts, strings.Join(sourced, " && "))
	} else {
		parts = append(parts, "true")
	}
	parts = append(parts,
		"SWEREX_RC=$?",
		"export PS1="+shellQuote(ps1),
		"export PS2="+shellQuote(ps2),
		"export PS0=''",
		"PROMPT_COMMAND=''",
		"set +H",
		"bind 'set enable-bracketed-paste off'",
		"stty -echo -icanon",
		"echo "+setupMarkerPrefix+nonce+":$SWEREX_RC",
	)
	return strings.Join(parts, " ; ") + "\n"
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// tailWindow returns the last n bytes of raw.
func tailWindow(raw []byte, n int) []byte {
	if len(raw) <= n {
		return raw
	}
	return raw[len(raw)-n:]
}

// promptAtTail reports whether the control-stripped tail of the buffer
// ends with the prompt, meaning the shell is idle.
func promptAtTail(raw []byte, ps1 string) bool {
	clean := stripControl(string(tailWindow(raw, tailWindowSize)))
	return strings.HasSuffix(strings.TrimRight(clean, " \t"), ps1)
}

// scanMarkerCode finds the last "<prefix><nonce>:<digits>" occurrence
// in clean. found reports the marker, ok whether digits followed it.
// Scanning from the end skips the input echo of the marker text, which
// precedes the real output when the PTY echoes.
func scanMarkerCode(clean, prefix, nonce string) (code int, found, ok bool) {
	marker := prefix + nonce + ":"
	i := strings.LastIndex(clean, marker)
	if i < 0 {
		return 0, false, false
	}
	rest := clean[i+len(marker):]
	j := 0
	for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
		j++
	}
	if j == 0 {
		return 0, true, false
	}
	n, err := strconv.Atoi(rest[:j])
	if err != nil {
		return 0, true, false
	}
	return n, true, true
}

// scanCompletion checks the tail of the raw buffer for the exit-code
// sentinel followed by the prompt. malformed is set when the sentinel
// is present but its exit-code suffix is unparseable, which indicates
// shell corruption.
func scanCompletion(raw []byte, nonce, ps1 string) (code int, done, malformed bool) {
	clean := stripControl(string(tailWindow(raw, tailWindowSize)))
	if !strings.HasSuffix(strings.TrimRight(clean, " \t"), ps1) {
		return 0, false, false
	}
	code, found, ok := scanMarkerCode(clean, codeMarkerPrefix, nonce)
	if !found {
		return 0, false, false
	}
	if !ok {
		return 0, true, true
	}
	return code, true, false
}

// firstExpectMatch finds the earliest occurrence of any expect string
// in the CRLF-normalized buffer. Ties go to the earlier entry in the
// list. It returns the matched string and the match index, or ("", -1).
func firstExpectMatch(normalized string, expect []string) (string, int) {
	matched := ""
	best := -1
	for _, e := range expect {
		if e == "" {
			continue
		}
		if i := strings.Index(normalized, e); i >= 0 && (best < 0 || i < best) {
			matched = e
			best = i
		}
	}
	return matched, best
}
