package core

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"
)

type CallState string

const (
	CallIdle            CallState = "idle"
	CallRequestingMedia CallState = "requesting-media"
	CallAnnounced       CallState = "announced"
	CallConnecting      CallState = "connecting"
	CallConnected       CallState = "connected"
	CallEnded           CallState = "ended"
)

// ICEState mirrors the ICE connection state of a peer connection.
type ICEState string

const (
	ICENew          ICEState = "new"
	ICEChecking     ICEState = "checking"
	ICEConnected    ICEState = "connected"
	ICECompleted    ICEState = "completed"
	ICEDisconnected ICEState = "disconnected"
	ICEFailed       ICEState = "failed"
	ICEClosed       ICEState = "closed"
)

var (
	ErrCallActive = errors.New("a call is already active")
	ErrNoCall     = errors.New("no active call")
)

type MediaStream interface {
	Close() error
}

// MediaSource acquires the local microphone and camera.
type MediaSource interface {
	Acquire(ctx context.Context, mode CallMode) (MediaStream, error)
}

// PeerConnection is one WebRTC connection to a remote participant. Implementations
// must be safe for concurrent use.
type PeerConnection interface {
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer(ctx context.Context, iceRestart bool) (SessionDescription, error)
	// CreateAnswer creates an answer and sets it as the local description.
	CreateAnswer(ctx context.Context) (SessionDescription, error)
	SetRemoteDescription(d SessionDescription) error
	AddICECandidate(c ICECandidate) error
	// GatheringComplete is closed once ICE gathering finished.
	GatheringComplete() <-chan struct{}
	// LocalDescription returns the local description including gathered candidates.
	LocalDescription() SessionDescription
	Close() error
}

// PeerEvents are invoked by a PeerConnection from any goroutine.
type PeerEvents struct {
	OnICEState  func(ICEState)
	OnCandidate func(ICECandidate)
}

type PeerFactory interface {
	NewPeer(remoteKey string, stream MediaStream, events PeerEvents) (PeerConnection, error)
}

// CallTransport sends call frames to the backend.
type CallTransport interface {
	StartCall(scope CallScope) error
	JoinCall(scope CallScope) error
	SendSignal(scope CallScope, to string, sig Signal) error
	EndCall(scope CallScope) error
}

type CallConfig struct {
	ICEGatheringTimeout time.Duration
	DisconnectGrace     time.Duration
	MaxICERestarts      int
}

func DefaultCallConfig() CallConfig {
	return CallConfig{
		ICEGatheringTimeout: 6000 * time.Millisecond,
		DisconnectGrace:     12 * time.Second,
		MaxICERestarts:      3,
	}
}

// AwaitGathering waits for ICE gathering to complete, at most timeout. It reports
// whether gathering really completed; on timeout the caller proceeds with the
// candidates gathered so far.
func AwaitGathering(ctx context.Context, pc PeerConnection, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-pc.GatheringComplete():
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

type CallEvent string

const (
	EventCallAnnounced  CallEvent = "announced"
	EventCallAborted    CallEvent = "aborted"
	EventCallEnded      CallEvent = "ended"
	EventPeerConnected  CallEvent = "peer-connected"
	EventICERestart     CallEvent = "ice-restart"
	EventPeerTornDown   CallEvent = "peer-torn-down"
	EventSignalRejected CallEvent = "signal-rejected"
)

type CallSessionOption func(*CallSession)

func WithCallLogger(logger *slog.Logger) CallSessionOption {
	return func(s *CallSession) {
		s.logger = logger
	}
}

// WithCallEvents registers a listener for call lifecycle events.
func WithCallEvents(fn func(CallEvent)) CallSessionOption {
	return func(s *CallSession) {
		s.onEvent = fn
	}
}

type remotePeer struct {
	key      string
	pc       PeerConnection
	ice      ICEState
	restarts int
	// offerer is true when we sent the first offer. Only the offerer restarts ICE so
	// both sides never offer at once.
	offerer bool
	// remoteSet is true once a remote description was applied. Candidates that
	// arrive before are queued.
	remoteSet bool
	queued    []ICECandidate
	// localSent is true once our offer or answer went out. Earlier candidates are
	// already part of that description.
	localSent bool
	stopGrace func() bool
}

type PeerSnapshot struct {
	Key      string   `json:"key"`
	ICE      ICEState `json:"ice"`
	Restarts int      `json:"restarts"`
}

type CallSnapshot struct {
	State CallState      `json:"state"`
	Scope *CallScope     `json:"scope,omitempty"`
	Peers []PeerSnapshot `json:"peers"`
}

// CallSession is the local side of at most one call. It must only be used from the
// goroutine its Scheduler runs closures on.
type CallSession struct {
	cfg       CallConfig
	sched     Scheduler
	media     MediaSource
	peers     PeerFactory
	transport CallTransport
	logger    *slog.Logger
	onEvent   func(CallEvent)

	localKey string
	state    CallState
	scope    CallScope
	ctx      context.Context
	stream   MediaStream
	remotes  map[string]*remotePeer
	token    SessionToken
}

func NewCallSession(sched Scheduler, media MediaSource, peers PeerFactory, transport CallTransport,
	cfg CallConfig, opts ...CallSessionOption) *CallSession {
	s := &CallSession{
		cfg:       cfg,
		sched:     sched,
		media:     media,
		peers:     peers,
		transport: transport,
		logger:    slog.Default(),
		state:     CallIdle,
		ctx:       context.Background(),
		remotes:   make(map[string]*remotePeer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CallSession) SetLocalKey(key string) {
	s.localKey = key
}

func (s *CallSession) State() CallState {
	return s.state
}

// Active reports whether a call is in progress, including while media is requested.
func (s *CallSession) Active() bool {
	return s.state != CallIdle && s.state != CallEnded
}

// Scope returns the scope of the active call.
func (s *CallSession) Scope() (CallScope, bool) {
	if !s.Active() {
		return CallScope{}, false
	}
	return s.scope, true
}

func (s *CallSession) Snapshot() CallSnapshot {
	snap := CallSnapshot{State: s.state, Peers: make([]PeerSnapshot, 0, len(s.remotes))}
	if s.Active() {
		scope := s.scope
		snap.Scope = &scope
	}
	for _, p := range s.remotes {
		snap.Peers = append(snap.Peers, PeerSnapshot{Key: p.key, ICE: p.ice, Restarts: p.restarts})
	}
	sort.Slice(snap.Peers, func(i, j int) bool { return snap.Peers[i].Key < snap.Peers[j].Key })
	return snap
}

func (s *CallSession) emit(e CallEvent) {
	if s.onEvent != nil {
		s.onEvent(e)
	}
}

// Start acquires media and announces a new call. ctx bounds media acquisition and
// ICE gathering for the lifetime of the call.
func (s *CallSession) Start(ctx context.Context, scope CallScope) error {
	return s.begin(ctx, scope, s.transport.StartCall)
}

// Join acquires media and joins a call announced by someone else. Participants
// already in the call send us their offers.
func (s *CallSession) Join(ctx context.Context, scope CallScope) error {
	return s.begin(ctx, scope, s.transport.JoinCall)
}

func (s *CallSession) begin(ctx context.Context, scope CallScope, announce func(CallScope) error) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if s.Active() {
		return ErrCallActive
	}
	s.state = CallRequestingMedia
	s.scope = scope
	s.ctx = ctx
	token := s.token.Next()

	go func() {
		stream, err := s.media.Acquire(ctx, scope.Mode)
		posted := s.sched.Post(func() {
			if !s.token.Valid(token) {
				if stream != nil {
					stream.Close()
				}
				return
			}
			if err != nil {
				// media failures are not surfaced to the user
				s.logger.Debug("media unavailable, call aborted", "error", err, "call", scope.CallID)
				s.reset(CallIdle)
				s.emit(EventCallAborted)
				return
			}
			s.stream = stream
			if err := announce(scope); err != nil {
				s.logger.Error("failed to announce call", "error", err, "call", scope.CallID)
				s.reset(CallIdle)
				s.emit(EventCallAborted)
				return
			}
			s.state = CallAnnounced
			s.emit(EventCallAnnounced)
		})
		if !posted && stream != nil {
			stream.Close()
		}
	}()
	return nil
}

// End ends the active call locally and tells the backend.
func (s *CallSession) End() error {
	if !s.Active() {
		return ErrNoCall
	}
	if s.state != CallRequestingMedia {
		if err := s.transport.EndCall(s.scope); err != nil {
			s.logger.Error("failed to send call end", "error", err, "call", s.scope.CallID)
		}
	}
	s.reset(CallEnded)
	s.emit(EventCallEnded)
	return nil
}

// Navigate ends the active call if the user moved away from its scope.
func (s *CallSession) Navigate(focus Focus) bool {
	if !s.Active() || s.scope.Survives(focus) {
		return false
	}
	s.End()
	return true
}

// HandleRemoteEnd processes a call-end from another participant. A voice channel
// outlives any single participant, so only that participant is dropped; any other
// call ends.
func (s *CallSession) HandleRemoteEnd(scope CallScope, from string) bool {
	if !s.Active() || !scope.Equal(s.scope) || from == s.localKey {
		return false
	}
	if s.scope.Kind == ScopeVoice && from != "" {
		s.dropPeer(from)
		return true
	}
	s.reset(CallEnded)
	s.emit(EventCallEnded)
	return true
}

func (s *CallSession) announced() bool {
	return s.state == CallAnnounced || s.state == CallConnecting || s.state == CallConnected
}

// HandleParticipant is called when someone else starts or joins the call we are in.
// We offer them a connection.
func (s *CallSession) HandleParticipant(scope CallScope, from string) bool {
	if !s.announced() || !scope.Equal(s.scope) || from == "" || from == s.localKey {
		return false
	}
	if _, ok := s.remotes[from]; ok {
		return false
	}
	p, err := s.newPeer(from)
	if err != nil {
		s.logger.Error("failed to create peer connection", "error", err, "peer", from)
		return false
	}
	p.offerer = true
	s.sendOffer(p, false)
	return true
}

// HandleSignal applies an offer, answer or candidate from a participant.
func (s *CallSession) HandleSignal(scope CallScope, from string, sig Signal) {
	if !s.announced() || !scope.Equal(s.scope) || from == "" || from == s.localKey {
		return
	}
	if err := sig.Validate(); err != nil {
		s.emit(EventSignalRejected)
		return
	}

	p, ok := s.remotes[from]
	switch sig.Type {
	case SignalOffer:
		if !ok {
			var err error
			if p, err = s.newPeer(from); err != nil {
				s.logger.Error("failed to create peer connection", "error", err, "peer", from)
				return
			}
		}
		if !s.applyRemote(p, sig.Description()) {
			return
		}
		s.sendAnswer(p)
	case SignalAnswer:
		if !ok {
			s.emit(EventSignalRejected)
			return
		}
		s.applyRemote(p, sig.Description())
	case SignalCandidate:
		if !ok {
			s.emit(EventSignalRejected)
			return
		}
		c := sig.ICECandidate()
		if !p.remoteSet {
			p.queued = append(p.queued, c)
			return
		}
		if err := p.pc.AddICECandidate(c); err != nil {
			s.logger.Warn("failed to add ice candidate", "error", err, "peer", from)
		}
	}
}

func (s *CallSession) applyRemote(p *remotePeer, d SessionDescription) bool {
	if err := p.pc.SetRemoteDescription(d); err != nil {
		s.logger.Warn("failed to set remote description", "error", err, "peer", p.key)
		s.emit(EventSignalRejected)
		return false
	}
	p.remoteSet = true
	for _, c := range p.queued {
		if err := p.pc.AddICECandidate(c); err != nil {
			s.logger.Warn("failed to add queued ice candidate", "error", err, "peer", p.key)
		}
	}
	p.queued = nil
	return true
}

func (s *CallSession) newPeer(key string) (*remotePeer, error) {
	token := s.token.Current()
	var p *remotePeer
	events := PeerEvents{
		OnICEState: func(state ICEState) {
			s.sched.Post(func() {
				if s.token.Valid(token) && s.remotes[key] == p {
					s.onICEState(p, state)
				}
			})
		},
		OnCandidate: func(c ICECandidate) {
			s.sched.Post(func() {
				if s.token.Valid(token) && s.remotes[key] == p && p.localSent {
					if err := s.transport.SendSignal(s.scope, key, c.Signal()); err != nil {
						s.logger.Warn("failed to send ice candidate", "error", err, "peer", key)
					}
				}
			})
		},
	}
	pc, err := s.peers.NewPeer(key, s.stream, events)
	if err != nil {
		return nil, err
	}
	p = &remotePeer{key: key, pc: pc, ice: ICENew}
	s.remotes[key] = p
	if s.state == CallAnnounced {
		s.state = CallConnecting
	}
	return p, nil
}

func (s *CallSession) sendOffer(p *remotePeer, restart bool) {
	s.negotiate(p, func(ctx context.Context) (SessionDescription, error) {
		return p.pc.CreateOffer(ctx, restart)
	})
}

func (s *CallSession) sendAnswer(p *remotePeer) {
	s.negotiate(p, p.pc.CreateAnswer)
}

// negotiate creates a local description off the loop, waits for ICE gathering and
// posts the description back to be sent.
func (s *CallSession) negotiate(p *remotePeer, create func(ctx context.Context) (SessionDescription, error)) {
	token := s.token.Current()
	ctx, scope, timeout := s.ctx, s.scope, s.cfg.ICEGatheringTimeout
	go func() {
		desc, err := create(ctx)
		if err == nil {
			AwaitGathering(ctx, p.pc, timeout)
			if local := p.pc.LocalDescription(); local.SDP != "" {
				desc = local
			}
		}
		s.sched.Post(func() {
			if !s.token.Valid(token) || s.remotes[p.key] != p {
				return
			}
			if err != nil {
				s.logger.Error("failed to create session description", "error", err, "peer", p.key)
				s.dropPeer(p.key)
				return
			}
			p.localSent = true
			if err := s.transport.SendSignal(scope, p.key, desc.Signal()); err != nil {
				s.logger.Warn("failed to send session description", "error", err, "peer", p.key)
			}
		})
	}()
}

func (s *CallSession) onICEState(p *remotePeer, state ICEState) {
	p.ice = state
	switch state {
	case ICEConnected, ICECompleted:
		p.restarts = 0
		s.stopGrace(p)
		if s.state == CallConnecting || s.state == CallAnnounced {
			s.state = CallConnected
		}
		s.emit(EventPeerConnected)
	case ICEDisconnected:
		s.startGrace(p)
	case ICEFailed:
		s.stopGrace(p)
		if p.restarts >= s.cfg.MaxICERestarts {
			s.logger.Info("ice restarts exhausted, tearing down", "peer", p.key, "restarts", p.restarts)
			s.dropPeer(p.key)
			return
		}
		p.restarts++
		if !p.offerer {
			// The offerer restarts. We answer its offer or give up after the grace.
			s.startGrace(p)
			return
		}
		s.emit(EventICERestart)
		s.sendOffer(p, true)
	case ICEClosed:
		s.dropPeer(p.key)
	}
}

// startGrace tears p down unless it reconnects within the disconnect grace.
func (s *CallSession) startGrace(p *remotePeer) {
	if p.stopGrace != nil {
		return
	}
	token := s.token.Current()
	p.stopGrace = s.sched.AfterFunc(s.cfg.DisconnectGrace, func() {
		if !s.token.Valid(token) || s.remotes[p.key] != p {
			return
		}
		p.stopGrace = nil
		if p.ice != ICEConnected && p.ice != ICECompleted {
			s.logger.Info("peer did not recover, tearing down", "peer", p.key)
			s.dropPeer(p.key)
		}
	})
}

func (s *CallSession) stopGrace(p *remotePeer) {
	if p.stopGrace != nil {
		p.stopGrace()
		p.stopGrace = nil
	}
}

// dropPeer closes the connection to one participant and removes them from the roster.
func (s *CallSession) dropPeer(key string) {
	p, ok := s.remotes[key]
	if !ok {
		return
	}
	s.stopGrace(p)
	if err := p.pc.Close(); err != nil {
		s.logger.Debug("failed to close peer connection", "error", err, "peer", key)
	}
	delete(s.remotes, key)
	s.emit(EventPeerTornDown)
	if len(s.remotes) == 0 && s.announced() {
		s.state = CallAnnounced
	}
}

// reset releases every resource of the call and invalidates its continuations.
func (s *CallSession) reset(state CallState) {
	s.token.Next()
	for key, p := range s.remotes {
		s.stopGrace(p)
		if err := p.pc.Close(); err != nil {
			s.logger.Debug("failed to close peer connection", "error", err, "peer", key)
		}
	}
	s.remotes = make(map[string]*remotePeer)
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			s.logger.Debug("failed to stop media", "error", err)
		}
		s.stream = nil
	}
	s.scope = CallScope{}
	s.ctx = context.Background()
	s.state = state
}
