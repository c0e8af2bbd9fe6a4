package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/flowstate/orchestrator/internal/config"
)

// Exit codes (§6.2: "0 success; 1 failure; 2 bad arguments").
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// ExitError pairs an error with the exit code it should produce.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

func wrapExit(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

// exitCode maps an error to a process exit code. A *config.ConfigError
// (wrapped or not) is always a bad-arguments exit per §6.2; anything else
// defaults to a plain failure.
func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitCommandError
	}
	return ExitFailure
}

// printResult renders data as JSON or as its fmt.Stringer/%v text form,
// depending on format.
func printResult(w io.Writer, format string, data any) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	fmt.Fprintln(w, data)
	return nil
}
