package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/dx/pkg/lifecycle"
	"github.com/rescp17/dx/pkg/transfer"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("DX_CODE", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dx dev\n", out)
}

func TestSendNeedsSomething(t *testing.T) {
	_, err := execute(t, "send")
	assert.ErrorContains(t, err, "nothing to send")

	_, err = execute(t, "send", "file.txt", "--text", "hi")
	assert.ErrorContains(t, err, "not both")
}

func TestReceiveNeedsCode(t *testing.T) {
	_, err := execute(t, "receive")
	assert.Error(t, err)
}

func TestInvalidConfigRejected(t *testing.T) {
	_, err := execute(t, "receive", "--code", "123-4567-890", "--relay", "http://nope")
	assert.ErrorContains(t, err, "ws:// or wss://")

	_, err = execute(t, "send", "x", "--log-level", "loud")
	assert.ErrorContains(t, err, "unknown log level")
}

func TestExitStatus(t *testing.T) {
	assert.NoError(t, exitStatus(nil))
	assert.NoError(t, exitStatus(lifecycle.ErrInterrupted))
	assert.NoError(t, exitStatus(transfer.ErrCancelledByPeer))
	assert.NoError(t, exitStatus(transfer.ErrCompletionTimeout))

	failure := errors.New("boom")
	assert.Equal(t, failure, exitStatus(failure))
	assert.ErrorIs(t, exitStatus(transfer.ErrIncompleteTransfer), transfer.ErrIncompleteTransfer)
}
