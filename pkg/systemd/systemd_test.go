package systemd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledIsNoop(t *testing.T) {
	n := New(false)
	sent, err := n.Ready()
	require.NoError(t, err)
	assert.False(t, sent)

	d, err := n.WatchdogInterval()
	require.NoError(t, err)
	assert.Zero(t, d)

	var nilN *Notifier
	assert.False(t, nilN.Enabled())
}

func TestEnabledWithoutSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")
	n := New(true)
	sent, err := n.Stopping()
	require.NoError(t, err)
	assert.False(t, sent)

	d, err := n.WatchdogInterval()
	require.NoError(t, err)
	assert.Zero(t, d)
}
