package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	assert.Equal(t, AlertNotFound, Get("ALERT_NOT_FOUND"))

	unknown := Get("NOPE")
	assert.Equal(t, "NOPE", unknown.Code)
	assert.Equal(t, "Unexpected error", unknown.Message)
}

func TestTaxonomyUnwrap(t *testing.T) {
	root := stderrors.New("connection refused")

	err := fmt.Errorf("list shifts: %w", Transient("list_active_shifts", root))
	require.True(t, IsTransient(err))
	require.ErrorIs(t, err, root)
	require.False(t, IsConfig(err))

	terminal := &TerminalInfraError{Attempts: 3, Err: err}
	require.True(t, IsTransient(terminal))
	require.Contains(t, terminal.Error(), "after 3 attempts")

	cfgErr := &ConfigError{ShiftID: 7, Err: root}
	require.True(t, IsConfig(fmt.Errorf("evaluate: %w", cfgErr)))
	require.Contains(t, cfgErr.Error(), "shift 7")

	require.NoError(t, Transient("noop", nil))
}
