package services

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prudhvinik1/episync/internal/repositories"
)

// Connectivity reports whether the remote replica can be reached right now.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func(ctx context.Context) bool

func (f ConnectivityFunc) Online(ctx context.Context) bool {
	return f(ctx)
}

// Signal is a manually driven connectivity flag.
type Signal struct {
	online atomic.Bool
}

func NewSignal(online bool) *Signal {
	s := &Signal{}
	s.online.Store(online)
	return s
}

func (s *Signal) Set(online bool) {
	s.online.Store(online)
}

func (s *Signal) Online(context.Context) bool {
	return s.online.Load()
}

// PingConnectivity is online when the remote store answers a ping within
// timeout.
type PingConnectivity struct {
	pinger  repositories.Pinger
	timeout time.Duration
}

func NewPingConnectivity(pinger repositories.Pinger, timeout time.Duration) *PingConnectivity {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PingConnectivity{pinger: pinger, timeout: timeout}
}

func (p *PingConnectivity) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.pinger.Ping(ctx) == nil
}

// Syncer is the part of SyncService the monitor drives.
type Syncer interface {
	Sync(ctx context.Context) (*SyncResult, error)
}

// ConnectivityMonitor polls connectivity on an interval and triggers a sync
// whenever the node goes from offline to online. The node starts out
// offline, so the first successful check also syncs. Failed attempts are not
// retried until the next transition or a manual sync.
type ConnectivityMonitor struct {
	connectivity Connectivity
	syncer       Syncer
	interval     time.Duration
	logger       *slog.Logger
	online       bool
}

func NewConnectivityMonitor(connectivity Connectivity, syncer Syncer, interval time.Duration, logger *slog.Logger) *ConnectivityMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectivityMonitor{
		connectivity: connectivity,
		syncer:       syncer,
		interval:     interval,
		logger:       logger,
	}
}

// Run polls until ctx is cancelled.
func (m *ConnectivityMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check polls once and reports whether it triggered a sync.
func (m *ConnectivityMonitor) Check(ctx context.Context) bool {
	online := m.connectivity.Online(ctx)
	wasOnline := m.online
	m.online = online

	if online == wasOnline {
		return false
	}
	if !online {
		m.logger.Info("connectivity lost")
		return false
	}

	// The syncer logs the outcome of syncs it runs.
	m.logger.Info("connectivity restored, starting sync")
	_, err := m.syncer.Sync(ctx)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		m.logger.Debug("sync already running")
	case errors.Is(err, ErrOffline):
		m.logger.Warn("sync aborted, remote went offline")
	}
	return true
}
