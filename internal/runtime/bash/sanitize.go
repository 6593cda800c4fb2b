package bash

import (
	"regexp"
	"strings"
)

// ansiEscape matches two-byte escape sequences and CSI sequences, the
// terminal chrome that survives TERM=dumb (cursor motion, colors,
// bracketed-paste toggles emitted before setup finished).
var ansiEscape = regexp.MustCompile(`\x1b(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

// stripControl removes escape sequences and bell characters.
func stripControl(s string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, "\a", "")
}

// normalizeCRLF folds the PTY's \r\n line endings back to \n. Lone
// carriage returns are kept; they are real command output.
func normalizeCRLF(raw []byte) string {
	return strings.ReplaceAll(string(raw), "\r\n", "\n")
}

// wrapperEcho is the sentinel line exactly as the PTY echoes it back
// when input echo is on. It must be removed before cutting at the
// output marker, because it contains the marker text itself.
func wrapperEcho(nonce string) string {
	return "EC=$?; echo " + outMarkerPrefix + nonce + "; echo " + codeMarkerPrefix + nonce + ":$EC"
}

// sanitize turns a CRLF-normalized raw buffer into observation output.
// The steps and their order are pinned by the test suite:
//
//  1. strip the echoed input from the head: the full written block
//     when the PTY echoed it, else the bare command, verbatim only,
//     never fuzzy
//  2. remove every echoed occurrence of the sentinel wrapper line
//  3. cut everything from the first real output sentinel onward
//  4. strip escape sequences and bells
//  5. remove every prompt occurrence (multi-statement commands emit a
//     prompt between statements)
func sanitize(normalized, written, command, nonce, ps1, ps2 string) string {
	out := normalized

	switch {
	case written != "" && strings.HasPrefix(out, written):
		out = out[len(written):]
	case command != "" && strings.HasPrefix(out, command+"\n"):
		out = out[len(command)+1:]
	case command != "" && strings.HasPrefix(out, command):
		out = out[len(command):]
	}

	if nonce != "" {
		echo := wrapperEcho(nonce)
		out = strings.ReplaceAll(out, echo+"\n", "")
		out = strings.ReplaceAll(out, echo, "")

		if i := strings.Index(out, outMarkerPrefix+nonce); i >= 0 {
			out = out[:i]
		}
	}

	out = stripControl(out)

	if ps1 != "" {
		out = strings.ReplaceAll(out, ps1, "")
	}
	if ps2 != "" {
		out = strings.ReplaceAll(out, ps2, "")
	}
	return out
}
