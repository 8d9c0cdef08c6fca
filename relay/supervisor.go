package relay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/otbeat2mqtt/internal/device"
	"github.com/srg/otbeat2mqtt/internal/groutine"
	"github.com/srg/otbeat2mqtt/internal/hrs"
)

// Supervisor owns the scan/connect loop: it discovers heart rate monitors,
// keeps exactly one Session per device address and rescans on an interval to
// pick up devices that appear later.
type Supervisor struct {
	cfg        Config
	discoverer Discoverer
	opener     Opener
	publisher  Publisher
	logger     *logrus.Logger

	sessions *hashmap.Map[string, *Session]
	wg       sync.WaitGroup
}

// NewSupervisor creates a supervisor. Zero cfg fields fall back to defaults.
func NewSupervisor(cfg Config, discoverer Discoverer, opener Opener, publisher Publisher, logger *logrus.Logger) *Supervisor {
	cfg.normalize()
	if logger == nil {
		logger = logrus.New()
	}

	return &Supervisor{
		cfg:        cfg,
		discoverer: discoverer,
		opener:     opener,
		publisher:  publisher,
		logger:     logger,
		sessions:   hashmap.New[string, *Session](),
	}
}

// Run scans for heart-rate devices and maintains their sessions until ctx is
// cancelled, then waits up to the shutdown grace for sessions to finish.
// Returns the ctx error that ended the loop.
func (sv *Supervisor) Run(ctx context.Context) error {
	sv.logger.WithFields(logrus.Fields{
		"scan_duration":   sv.cfg.ScanDuration,
		"rescan_interval": sv.cfg.RescanInterval,
		"name_markers":    strings.Join(sv.cfg.NameMarkers, ","),
	}).Info("Starting heart rate relay")

	sv.runLoop(ctx)
	sv.shutdown()
	return ctx.Err()
}

func (sv *Supervisor) runLoop(ctx context.Context) {
	for {
		sv.scanOnce(ctx)

		if ctx.Err() != nil {
			return
		}

		sv.logger.WithFields(logrus.Fields{
			"interval": sv.cfg.RescanInterval,
			"sessions": sv.SessionCount(),
		}).Info("Next scan scheduled")

		timer := time.NewTimer(sv.cfg.RescanInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (sv *Supervisor) scanOnce(ctx context.Context) {
	peers, err := sv.discoverer.Discover(ctx, sv.cfg.ScanDuration)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		sv.logger.WithField("error", err).Error("Scan failed")
		return
	}

	matches := 0
	for _, peer := range peers {
		if !sv.isHeartRateDevice(peer) {
			continue
		}
		matches++
		sv.startSession(ctx, peer)
	}

	if matches == 0 {
		sv.logger.Warn("No heart-rate devices found, will rescan")
	}
}

func (sv *Supervisor) isHeartRateDevice(peer device.PeerInfo) bool {
	return IsHeartRateDevice(peer, sv.cfg.NameMarkers)
}

// IsHeartRateDevice matches by name marker or by the advertised heart rate
// service, so renamed monitors are still picked up. Marker matching is case
// sensitive.
func IsHeartRateDevice(peer device.PeerInfo, markers []string) bool {
	for _, marker := range markers {
		if marker != "" && strings.Contains(peer.Name, marker) {
			return true
		}
	}
	return peer.HasService(hrs.ServiceUUID)
}

// startSession spawns a session for the peer unless one is already tracked
// for its address.
func (sv *Supervisor) startSession(ctx context.Context, peer device.PeerInfo) {
	s := newSession(peer, sv.opener, sv.publisher, sv.cfg, sv.logger, sv.sessionStopped)
	if _, loaded := sv.sessions.GetOrInsert(peer.Address, s); loaded {
		return
	}

	sv.logger.WithFields(logrus.Fields{
		"device":  peer.DisplayName(),
		"address": peer.Address,
		"rssi":    peer.RSSI,
	}).Info("Found heart-rate device")

	sv.wg.Add(1)
	groutine.Go(ctx, "hr-session-"+peer.Address, func(runCtx context.Context) {
		defer sv.wg.Done()
		s.run(runCtx)
	})
}

// sessionStopped frees the address so a later scan can start a fresh session.
func (sv *Supervisor) sessionStopped(address string) {
	sv.sessions.Del(address)
}

// SessionCount returns the number of sessions currently tracked.
func (sv *Supervisor) SessionCount() int {
	return sv.sessions.Len()
}

func (sv *Supervisor) shutdown() {
	sv.logger.Info("Shutting down, waiting for sessions to finish...")

	done := make(chan struct{})
	go func() {
		sv.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		sv.logger.Info("All sessions stopped")
	case <-time.After(sv.cfg.ShutdownGrace):
		sv.logger.WithField("grace", sv.cfg.ShutdownGrace).Warn("Shutdown grace period elapsed with sessions still running")
	}
}
