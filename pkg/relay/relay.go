// Package relay pushes the latest encoded frame to browsers over a WebRTC
// data channel named "frames".
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-obbcam/pkg/capture"
)

// FramesLabel is the data channel label the relay serves.
const FramesLabel = "frames"

// Defaults for Config.
const (
	DefaultFrameInterval = 50 * time.Millisecond
	maxBufferedAmount    = 4 << 20
)

// Errors returned by Answer.
var (
	ErrInvalidOffer = errors.New("relay: invalid offer")
	ErrClosed       = errors.New("relay: closed")
)

// FrameSource provides the latest encoded frame.
type FrameSource interface {
	CurrentFrame() (capture.EncodedFrame, bool)
}

// Config controls the relay.
type Config struct {
	ICEServers    []string
	FrameInterval time.Duration
	ChunkSize     int
	Logger        *slog.Logger
}

// Relay answers WebRTC offers and streams frames to each peer.
type Relay struct {
	cfg    Config
	src    FrameSource
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	peers  map[int64]*webrtc.PeerConnection
	nextID atomic.Int64
	closed bool
}

// New creates a relay reading frames from src.
func New(cfg Config, src FrameSource) *Relay {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.ChunkSize <= HeaderSize {
		cfg.ChunkSize = DefaultChunkSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		cfg:    cfg,
		src:    src,
		logger: logger.With("component", "relay"),
		ctx:    ctx,
		cancel: cancel,
		peers:  make(map[int64]*webrtc.PeerConnection),
	}
}

// Answer accepts an SDP offer and returns the answer with all ICE
// candidates gathered. Frames flow once the peer opens the "frames" channel.
func (r *Relay) Answer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return webrtc.SessionDescription{}, ErrClosed
	}
	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: want an offer with SDP", ErrInvalidOffer)
	}

	pcCfg := webrtc.Configuration{}
	if len(r.cfg.ICEServers) > 0 {
		pcCfg.ICEServers = []webrtc.ICEServer{{URLs: r.cfg.ICEServers}}
	}
	pc, err := webrtc.NewPeerConnection(pcCfg)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("relay: new peer connection: %w", err)
	}

	id := r.nextID.Add(1)
	logger := r.logger.With("peer", id)
	peerCtx, peerCancel := context.WithCancel(r.ctx)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Debug("peer state", "state", s.String())
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			peerCancel()
			r.remove(id)
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != FramesLabel {
			logger.Debug("ignoring data channel", "label", dc.Label())
			return
		}
		dc.OnOpen(func() {
			logger.Info("frames channel open")
			go r.pump(peerCtx, dc, logger)
		})
	})

	fail := func(err error) (webrtc.SessionDescription, error) {
		peerCancel()
		pc.Close()
		return webrtc.SessionDescription{}, err
	}

	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidOffer, err))
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(fmt.Errorf("relay: create answer: %w", err))
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(fmt.Errorf("relay: set local description: %w", err))
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fail(ErrClosed)
	}
	r.peers[id] = pc
	r.mu.Unlock()

	return *pc.LocalDescription(), nil
}

// pump sends every new frame to dc until ctx ends or a send fails.
func (r *Relay) pump(ctx context.Context, dc *webrtc.DataChannel, logger *slog.Logger) {
	ticker := time.NewTicker(r.cfg.FrameInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		f, ok := r.src.CurrentFrame()
		if !ok || f.Seq == last {
			continue
		}
		if dc.BufferedAmount() > maxBufferedAmount {
			// Receiver is behind; skip this frame
			continue
		}
		chunks, err := Chunk(f.Seq, f.Data, r.cfg.ChunkSize)
		if err != nil {
			logger.Warn("frame too large to relay", "error", err, "bytes", len(f.Data))
			last = f.Seq
			continue
		}
		for _, c := range chunks {
			if err := dc.Send(c); err != nil {
				logger.Debug("send failed, stopping pump", "error", err)
				return
			}
		}
		last = f.Seq
	}
}

func (r *Relay) remove(id int64) {
	r.mu.Lock()
	pc, ok := r.peers[id]
	delete(r.peers, id)
	r.mu.Unlock()
	if ok {
		pc.Close()
	}
}

// PeerCount returns the number of connected peers.
func (r *Relay) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Close disconnects every peer. Answer fails afterwards.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	peers := r.peers
	r.peers = make(map[int64]*webrtc.PeerConnection)
	r.mu.Unlock()

	r.cancel()
	var errs []error
	for _, pc := range peers {
		if err := pc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
