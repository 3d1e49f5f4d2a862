package network

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProbeTransitions(t *testing.T) {
	m := NewProbeMonitor("example.com:443", time.Second, time.Second, nil)

	var dialErr error
	m.dial = func(string, time.Duration) error { return dialErr }

	var transitions []bool
	m.OnChange(func(connected bool) { transitions = append(transitions, connected) })

	// First probe establishes state and always notifies.
	m.Probe()
	assert.True(t, m.IsConnected())
	assert.Equal(t, []bool{true}, transitions)

	// Same state: no callback.
	m.Probe()
	assert.Equal(t, []bool{true}, transitions)

	// Drop offline.
	dialErr = errors.New("no route to host")
	m.Probe()
	assert.False(t, m.IsConnected())
	assert.Equal(t, []bool{true, false}, transitions)

	// Recover.
	dialErr = nil
	m.Probe()
	assert.True(t, m.IsConnected())
	assert.Equal(t, []bool{true, false, true}, transitions)
}

func TestIsConnectedOptimisticBeforeFirstProbe(t *testing.T) {
	m := NewProbeMonitor("example.com:443", time.Second, time.Second, nil)
	assert.True(t, m.IsConnected())
}
