package network

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Monitor reports current connectivity and change events. The queue
// manager and sync orchestrator consume it; they never probe the
// network themselves.
type Monitor interface {
	IsConnected() bool
	OnChange(func(connected bool))
}

// ProbeMonitor polls a TCP endpoint to detect connectivity. A dial
// that completes within the timeout counts as online. Callbacks fire
// only on transitions.
type ProbeMonitor struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	dial     func(addr string, timeout time.Duration) error
	logger   *zerolog.Logger

	mu        sync.Mutex
	connected bool
	probed    bool
	callbacks []func(bool)
}

func NewProbeMonitor(addr string, interval, timeout time.Duration, logger *zerolog.Logger) *ProbeMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ProbeMonitor{
		addr:     addr,
		interval: interval,
		timeout:  timeout,
		dial:     dialProbe,
		logger:   logger,
	}
}

func dialProbe(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// IsConnected returns the last probed state. Before the first probe
// the monitor optimistically reports online.
func (m *ProbeMonitor) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.probed {
		return true
	}
	return m.connected
}

// OnChange registers a transition callback.
func (m *ProbeMonitor) OnChange(callback func(connected bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// Start runs the probe loop until ctx is done. The first probe fires
// immediately so consumers get an accurate state at startup.
func (m *ProbeMonitor) Start(ctx context.Context) {
	m.Probe()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe()
		}
	}
}

// Probe runs one connectivity check and fires callbacks on transition.
func (m *ProbeMonitor) Probe() {
	err := m.dial(m.addr, m.timeout)
	connected := err == nil

	m.mu.Lock()
	changed := !m.probed || connected != m.connected
	m.probed = true
	m.connected = connected
	callbacks := append([]func(bool){}, m.callbacks...)
	m.mu.Unlock()

	if !changed {
		return
	}
	if m.logger != nil {
		m.logger.Info().Bool("connected", connected).Msg("network state changed")
	}
	for _, callback := range callbacks {
		callback(connected)
	}
}
