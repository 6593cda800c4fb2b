package bash

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/SWE-agent/SWE-ReX/internal/types"
)

// CheckSyntax rejects commands that are not complete bash statements:
// open quotes, open heredocs, trailing pipes or continuations,
// unterminated substitutions. An incomplete command would wedge the
// interactive shell at a continuation prompt, so the check is
// conservative and rejects anything the parser cannot accept.
func CheckSyntax(command string) error {
	// An unescaped backslash at the end swallows the newline of the
	// sentinel wrapper, so it is rejected regardless of what the
	// parser makes of a backslash at end of input.
	if trailingBackslashes(command)%2 == 1 {
		return types.NewBashIncorrectSyntaxError(
			fmt.Sprintf("command %q ends with a line continuation", command))
	}

	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	_, err := parser.Parse(strings.NewReader(command), "")
	if err == nil {
		return nil
	}
	if syntax.IsIncomplete(err) {
		return types.NewBashIncorrectSyntaxError(
			fmt.Sprintf("command %q is not a complete bash statement: %v", command, err))
	}
	return types.NewBashIncorrectSyntaxError(
		fmt.Sprintf("command %q is not valid bash: %v", command, err))
}

func trailingBackslashes(s string) int {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n
}
