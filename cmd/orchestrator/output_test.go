package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstate/orchestrator/internal/config"
)

func TestExitCodeMapsConfigErrorToCommandError(t *testing.T) {
	err := wrapExit(ExitCommandError, &config.ConfigError{Flag: "concepts", Message: "required"})
	assert.Equal(t, ExitCommandError, exitCode(err))
}

func TestExitCodeMapsPlainErrorToFailure(t *testing.T) {
	assert.Equal(t, ExitFailure, exitCode(errors.New("boom")))
}

func TestExitCodeUsesExitErrorCode(t *testing.T) {
	err := wrapExit(ExitCommandError, errors.New("bad args"))
	assert.Equal(t, ExitCommandError, exitCode(err))
}

func TestPrintResultJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, printResult(buf, "json", map[string]int{"cycle": 3}))
	assert.Contains(t, buf.String(), `"cycle": 3`)
}

func TestPrintResultText(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, printResult(buf, "text", "done"))
	assert.Equal(t, "done\n", buf.String())
}
