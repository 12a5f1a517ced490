package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("POLICY_INVALID", "policy failed validation")
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "POLICY_INVALID", resp.Error.Code)
	assert.Equal(t, "policy failed validation", resp.Error.Message)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("scan complete")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "scan complete")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Error("WORKSPACE_UNAVAILABLE", "cannot open workspace")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "WORKSPACE_UNAVAILABLE")
	assert.Contains(t, buf.String(), "cannot open workspace")
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "command error",
			err:  WrapExitError(ExitCommandError, "bad invocation", nil),
			want: ExitCommandError,
		},
		{
			name: "failure",
			err:  WrapExitError(ExitFailure, "run aborted", errors.New("disk full")),
			want: ExitFailure,
		},
		{
			name: "wrapped exit error",
			err:  fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", nil)),
			want: ExitCommandError,
		},
		{
			name: "plain error defaults to failure",
			err:  errors.New("unexpected"),
			want: ExitFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	bare := WrapExitError(ExitFailure, "run aborted", nil)
	assert.Equal(t, "run aborted", bare.Error())

	wrapped := WrapExitError(ExitFailure, "run aborted", errors.New("disk full"))
	assert.Equal(t, "run aborted: disk full", wrapped.Error())
	assert.ErrorContains(t, errors.Unwrap(wrapped), "disk full")
}
