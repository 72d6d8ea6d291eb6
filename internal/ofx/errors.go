package ofx

import (
	"errors"
	"fmt"
)

// Stage identifies which parsing stage produced a ParseError.
type Stage string

const (
	StageDecode   Stage = "decode"
	StageLocate   Stage = "locate"
	StageRepair   Stage = "repair"
	StageAssemble Stage = "assemble"
)

// maxSnippetLen bounds how much of the offending input a ParseError carries.
// Statements can run to thousands of transactions; dumping the whole list
// into logs or the UI helps nobody.
const maxSnippetLen = 240

// ParseError is the structured failure for a whole-file parse. Exactly one
// stage fails per file; there is no partial document assembly.
type ParseError struct {
	Stage   Stage
	Msg     string
	Snippet string // truncated offending input, may be empty
	Err     error  // underlying cause, may be nil
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("ofx: %s failed: %s", e.Stage, e.Msg)
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (near %q)", e.Snippet)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsStage reports whether err is, or wraps, a ParseError from the given
// stage.
func IsStage(err error, stage Stage) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.Stage == stage
}

// snippet truncates s for inclusion in a ParseError.
func snippet(s string) string {
	if len(s) <= maxSnippetLen {
		return s
	}
	return s[:maxSnippetLen] + "..."
}
