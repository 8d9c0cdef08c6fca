package relay

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/otbeat2mqtt/internal/device"
	"github.com/srg/otbeat2mqtt/internal/hrs"
	"github.com/srg/otbeat2mqtt/internal/ringchan"
)

// SessionState tracks the lifecycle of one device session.
type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionActive
	SessionDisconnected
)

const (
	// sampleBufferSize bounds buffered measurements per session; under
	// backpressure the oldest reading is dropped, never the newest.
	sampleBufferSize = 16

	// terminalPublishTimeout bounds the zero reading published when the
	// session ends.
	terminalPublishTimeout = 5 * time.Second
)

// Session relays heart rate measurements from one device to the publisher.
// It lives from connection attempt until link loss or cancellation and
// always ends by publishing a zero reading, so the dashboard shows the
// monitor offline.
type Session struct {
	peer      device.PeerInfo
	opener    Opener
	publisher Publisher
	cfg       Config
	logger    *logrus.Logger

	state   atomic.Int32
	samples *ringchan.RingChannel[[]byte]
	done    chan struct{}
	onStop  func(address string)
}

func newSession(peer device.PeerInfo, opener Opener, publisher Publisher, cfg Config, logger *logrus.Logger, onStop func(string)) *Session {
	return &Session{
		peer:      peer,
		opener:    opener,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		samples:   ringchan.New[[]byte](sampleBufferSize),
		done:      make(chan struct{}),
		onStop:    onStop,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Done is closed once the session has fully ended, terminal publish included.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// run drives the session to completion. It blocks until the link drops, the
// subscription fails or ctx ends.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.finish(ctx)

	log := s.logger.WithFields(logrus.Fields{
		"device":  s.peer.DisplayName(),
		"address": s.peer.Address,
	})

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	conn, err := s.opener.Open(connectCtx, s.peer.Address)
	cancel()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.WithField("error", err).Error("Failed to connect to heart-rate device")
		return
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			log.WithField("error", closeErr).Debug("Connection closed with errors")
		}
	}()

	// Discovery config is retained on the broker; losing one publish only
	// delays dashboard setup until the next session.
	if err := s.publisher.PublishDiscovery(ctx, s.peer.Address, s.peer.Name); err != nil {
		log.WithField("error", err).Warn("Failed to publish discovery config, continuing")
	}

	if err := conn.Subscribe(hrs.ServiceUUID, hrs.MeasurementUUID, s.handleMeasurement); err != nil {
		log.WithField("error", err).Error("Failed to subscribe to heart rate measurements")
		return
	}

	s.state.Store(int32(SessionActive))
	log.Info("Streaming heart rate measurements")

	ticker := time.NewTicker(s.cfg.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			log.Warn("Connection lost")
			return
		case <-ticker.C:
			if !conn.Live() {
				log.Warn("Connection no longer live")
				return
			}
		case data := <-s.samples.C():
			s.publishSample(ctx, data)
		}
	}
}

// handleMeasurement runs on the transport notification path and must not
// block; the ring buffer absorbs bursts and sheds the oldest under pressure.
func (s *Session) handleMeasurement(data []byte) {
	s.samples.ForceSend(data)
}

func (s *Session) publishSample(ctx context.Context, data []byte) {
	bpm, err := hrs.ParseMeasurement(data)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": s.peer.Address,
			"error":   err,
		}).Warn("Dropping malformed heart rate measurement")
		return
	}

	if err := s.publisher.PublishHeartRate(ctx, s.peer.Address, bpm); err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": s.peer.Address,
			"error":   err,
		}).Warn("Failed to publish heart rate")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"address": s.peer.Address,
		"bpm":     bpm,
	}).Debug("Published heart rate")
}

// finish publishes the terminal zero reading and reports the session end.
// It runs on every exit path, including failed connection attempts, and is
// detached from ctx so shutdown does not suppress the terminal publish.
func (s *Session) finish(ctx context.Context) {
	s.state.Store(int32(SessionDisconnected))

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalPublishTimeout)
	defer cancel()
	if err := s.publisher.PublishHeartRate(pubCtx, s.peer.Address, 0); err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": s.peer.Address,
			"error":   err,
		}).Warn("Failed to publish terminal zero reading")
	}

	if m := s.samples.GetMetrics(); m.Overwritten > 0 {
		s.logger.WithFields(logrus.Fields{
			"address": s.peer.Address,
			"dropped": m.Overwritten,
		}).Debug("Dropped buffered measurements under backpressure")
	}

	s.logger.WithFields(logrus.Fields{
		"device":  s.peer.DisplayName(),
		"address": s.peer.Address,
	}).Info("Session ended")

	if s.onStop != nil {
		s.onStop(s.peer.Address)
	}
}
